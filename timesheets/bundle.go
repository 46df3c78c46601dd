package timesheets

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"contracthub/apperr"
	"contracthub/models"
)

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// BundleApproved writes a zip of every approved submission file for a
// task. The archive is assembled in memory and only written to w once
// it is complete, so callers never see zip bytes followed by an error.
// Entries whose stored file has gone missing are skipped with a warning
// rather than failing the archive. Owner only.
func (s *Service) BundleApproved(ctx context.Context, requesterID, taskID uint, w io.Writer) (int, error) {
	task, err := s.loadTask(ctx, taskID)
	if err != nil {
		return 0, err
	}
	owner, err := s.roster.HasRole(ctx, task.ContractID, requesterID, models.RoleOwner)
	if err != nil {
		return 0, err
	}
	if !owner {
		return 0, apperr.PermissionDenied("only contract owners can download bundles")
	}

	var subs []models.Submission
	err = s.db.WithContext(ctx).Preload("Submitter").
		Where("task_id = ? AND status = ? AND file_path <> ''", taskID, models.StatusApproved).
		Order("submitter_id asc, submitted_at desc").Find(&subs).Error
	if err != nil {
		return 0, fmt.Errorf("list approved submissions: %w", err)
	}
	if len(subs) == 0 {
		return 0, apperr.NotFound("no approved submissions for this task")
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	count := 0
	for i := range subs {
		sub := &subs[i]

		f, err := s.files.Open(ctx, sub.FilePath)
		if err != nil {
			s.log.Warn("bundle entry missing",
				zap.Uint("submission_id", sub.ID),
				zap.String("ref", sub.FilePath),
				zap.Error(err))
			continue
		}

		entry, err := zw.Create(bundleEntryName(sub, count))
		if err != nil {
			f.Close()
			return 0, fmt.Errorf("create zip entry: %w", err)
		}
		if _, err := io.Copy(entry, f); err != nil {
			f.Close()
			return 0, fmt.Errorf("write zip entry: %w", err)
		}
		f.Close()
		count++
	}

	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("finalize zip: %w", err)
	}
	if count == 0 {
		return 0, apperr.NotFound("no approved files to download")
	}
	if _, err := buf.WriteTo(w); err != nil {
		return 0, fmt.Errorf("write bundle: %w", err)
	}
	return count, nil
}

// DownloadName derives the serving filename for one submission from its
// submitter, not from the stored reference.
func DownloadName(sub *models.Submission) string {
	name := "unknown"
	if sub.Submitter != nil {
		name = unsafeName.ReplaceAllString(sub.Submitter.DisplayName(), "_")
	}
	ext := filepath.Ext(sub.FileName)
	if ext == "" {
		ext = ".pdf"
	}
	return name + "_timesheet" + ext
}

func bundleEntryName(sub *models.Submission, n int) string {
	base := DownloadName(sub)
	// The same submitter can have several approved uploads in one
	// bundle; suffix with the ordinal to keep entries unique.
	ext := filepath.Ext(base)
	return fmt.Sprintf("%s_%d%s", base[:len(base)-len(ext)], n+1, ext)
}

// GetSubmission loads a submission with its submitter for download
// handlers. Any member of the contract may download a file they can see.
func (s *Service) GetSubmission(ctx context.Context, requesterID, submissionID uint) (*models.Submission, error) {
	var submission models.Submission
	err := s.db.WithContext(ctx).Preload("Submitter").First(&submission, submissionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("submission %d not found", submissionID)
	}
	if err != nil {
		return nil, fmt.Errorf("load submission: %w", err)
	}
	member, err := s.roster.IsMember(ctx, submission.ContractID, requesterID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, apperr.Forbidden("not a member of this contract")
	}
	return &submission, nil
}

// OpenFile opens a submission's stored file for streaming.
func (s *Service) OpenFile(ctx context.Context, sub *models.Submission) (io.ReadCloser, error) {
	return s.files.Open(ctx, sub.FilePath)
}
