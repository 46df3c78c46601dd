package timesheets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"contracthub/apperr"
	"contracthub/metrics"
	"contracthub/models"
)

// Submit stores the upload and appends a submission record with a
// server-assigned timestamp. Any membership on the task's contract
// suffices; earlier submissions for the same task are superseded for
// display, never overwritten.
func (s *Service) Submit(ctx context.Context, submitterID, taskID uint, upload Upload) (*models.Submission, error) {
	if upload.Reader == nil || upload.Name == "" {
		return nil, apperr.ValidationFailed("timesheet file is required")
	}

	task, err := s.loadTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	member, err := s.roster.IsMember(ctx, task.ContractID, submitterID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, apperr.Forbidden("not a member of this contract")
	}

	ref, err := s.files.Save(ctx, upload.Reader, upload.Name)
	if err != nil {
		return nil, fmt.Errorf("store timesheet: %w", err)
	}

	submission := &models.Submission{
		TaskID:      task.ID,
		ContractID:  task.ContractID,
		SubmitterID: submitterID,
		FilePath:    ref,
		FileName:    upload.Name,
		Status:      models.StatusPending,
	}
	if err := s.db.WithContext(ctx).Create(submission).Error; err != nil {
		if derr := s.files.Delete(ctx, ref); derr != nil {
			s.log.Warn("orphaned upload cleanup failed",
				zap.String("ref", ref), zap.Error(derr))
		}
		return nil, fmt.Errorf("create submission: %w", err)
	}

	metrics.SubmissionsTotal.Inc()
	return submission, nil
}

// LatestFor returns the submitter's most recent submission for the task,
// or nil when they have never submitted.
func (s *Service) LatestFor(ctx context.Context, taskID, submitterID uint) (*models.Submission, error) {
	var submission models.Submission
	err := s.db.WithContext(ctx).
		Where("task_id = ? AND submitter_id = ?", taskID, submitterID).
		Order("submitted_at desc, id desc").First(&submission).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load latest submission: %w", err)
	}
	return &submission, nil
}

// DeleteSubmission removes a submission and its stored file. Only the
// submitter who uploaded it may delete it.
func (s *Service) DeleteSubmission(ctx context.Context, requesterID, submissionID uint) error {
	var submission models.Submission
	err := s.db.WithContext(ctx).First(&submission, submissionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("submission %d not found", submissionID)
	}
	if err != nil {
		return fmt.Errorf("load submission: %w", err)
	}
	if submission.SubmitterID != requesterID {
		return apperr.Forbidden("only the submitter can delete a submission")
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("submission_id = ?", submission.ID).
			Delete(&models.SupervisorApproval{}).Error; err != nil {
			return fmt.Errorf("delete approval records: %w", err)
		}
		if err := tx.Delete(&submission).Error; err != nil {
			return fmt.Errorf("delete submission: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if derr := s.files.Delete(ctx, submission.FilePath); derr != nil {
		s.log.Warn("stored file cleanup failed",
			zap.String("ref", submission.FilePath), zap.Error(derr))
	}
	return nil
}

// SupervisorStatus is one assigned supervisor's stance on a submission,
// defaulting to pending when no decision exists yet.
type SupervisorStatus struct {
	ID              uint                  `json:"id"`
	Name            string                `json:"name"`
	Status          models.ApprovalStatus `json:"status"`
	RejectionReason string                `json:"rejection_reason,omitempty"`
}

// OwnerItem is the owner's view of one submission: every assigned
// supervisor's stance plus the aggregate.
type OwnerItem struct {
	ID                 uint                  `json:"id"`
	Submitter          SubmitterRef          `json:"submitter"`
	SubmittedAt        time.Time             `json:"submitted_at"`
	FileURL            string                `json:"file_url"`
	SupervisorStatuses []SupervisorStatus    `json:"supervisor_statuses"`
	ApprovedCount      int                   `json:"approved_count"`
	TotalSupervisors   int                   `json:"total_supervisors"`
	OverallStatus      models.ApprovalStatus `json:"overall_status"`
}

// SupervisorItem is a supervisor's view of one of their submitters'
// submissions, carrying only that supervisor's own decision.
type SupervisorItem struct {
	ID              uint                  `json:"id"`
	Submitter       SubmitterRef          `json:"submitter"`
	SubmittedAt     time.Time             `json:"submitted_at"`
	FileURL         string                `json:"file_url"`
	Status          models.ApprovalStatus `json:"status"`
	RejectionReason string                `json:"rejection_reason,omitempty"`

	// RequiresMultipleApprovals tells the reviewer their decision alone
	// may not settle the overall status.
	RequiresMultipleApprovals bool `json:"requires_multiple_approvals"`
}

type SubmitterRef struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

// SubmitterView is a submitter's own latest submission with the
// aggregated verdict.
type SubmitterView struct {
	ID              uint                  `json:"id"`
	FileURL         string                `json:"file_url"`
	FileName        string                `json:"file_name"`
	Status          models.ApprovalStatus `json:"status"`
	RejectionReason string                `json:"rejection_reason,omitempty"`
}

// Listing is the role-filtered projection of a task's submissions. At
// most one of the three sections is populated, chosen by the viewer's
// strongest role on the contract (owner > supervisor > submitter).
type Listing struct {
	Role       models.Role      `json:"role"`
	Mine       *SubmitterView   `json:"submission,omitempty"`
	Items      []OwnerItem      `json:"submissions,omitempty"`
	Supervised []SupervisorItem `json:"supervised,omitempty"`
}

// ListFor builds the viewer's projection. The viewer's roles are
// aggregated over all their roster entries; holding any owner entry
// makes them an owner here even if they also submit.
func (s *Service) ListFor(ctx context.Context, requesterID, taskID, contractID uint) (*Listing, error) {
	if _, err := s.roster.GetContract(ctx, contractID); err != nil {
		return nil, err
	}
	if _, err := s.loadTask(ctx, taskID); err != nil {
		return nil, err
	}

	roles, err := s.roster.RolesOf(ctx, contractID, requesterID)
	if err != nil {
		return nil, err
	}
	if len(roles) == 0 {
		return nil, apperr.Forbidden("not a member of this contract")
	}

	has := func(r models.Role) bool {
		for _, x := range roles {
			if x == r {
				return true
			}
		}
		return false
	}

	switch {
	case has(models.RoleOwner):
		return s.listForOwner(ctx, taskID, contractID)
	case has(models.RoleSupervisor):
		return s.listForSupervisor(ctx, requesterID, taskID, contractID)
	default:
		return s.listForSubmitter(ctx, requesterID, taskID, contractID)
	}
}

func (s *Service) listForOwner(ctx context.Context, taskID, contractID uint) (*Listing, error) {
	var subs []models.Submission
	err := s.db.WithContext(ctx).Preload("Submitter").Preload("Approvals.Supervisor").
		Where("task_id = ? AND contract_id = ?", taskID, contractID).
		Order("submitted_at desc, id desc").Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}

	listing := &Listing{Role: models.RoleOwner}
	for i := range subs {
		sub := &subs[i]
		assigned, err := s.roster.SupervisorsOf(ctx, contractID, sub.SubmitterID)
		if err != nil {
			return nil, err
		}

		byID := make(map[uint]*models.SupervisorApproval, len(sub.Approvals))
		for j := range sub.Approvals {
			byID[sub.Approvals[j].SupervisorID] = &sub.Approvals[j]
		}

		item := OwnerItem{
			ID:          sub.ID,
			Submitter:   submitterRef(sub),
			SubmittedAt: sub.SubmittedAt,
			FileURL:     s.files.URL(sub.FilePath),
		}
		for _, supID := range assigned {
			status := SupervisorStatus{ID: supID, Status: models.StatusPending}
			if a := byID[supID]; a != nil {
				status.Status = a.Status
				status.RejectionReason = a.RejectionReason
				if a.Supervisor != nil {
					status.Name = a.Supervisor.DisplayName()
				}
			}
			if status.Name == "" {
				status.Name = s.supervisorName(ctx, supID)
			}
			if status.Status == models.StatusApproved {
				item.ApprovedCount++
			}
			item.SupervisorStatuses = append(item.SupervisorStatuses, status)
		}
		item.TotalSupervisors = len(assigned)
		item.OverallStatus = s.computeOverall(assigned, sub.Approvals)
		listing.Items = append(listing.Items, item)
	}
	return listing, nil
}

func (s *Service) listForSupervisor(ctx context.Context, supervisorID, taskID, contractID uint) (*Listing, error) {
	supervised, err := s.roster.SubmittersOf(ctx, contractID, supervisorID)
	if err != nil {
		return nil, err
	}

	listing := &Listing{Role: models.RoleSupervisor}
	if len(supervised) == 0 {
		return listing, nil
	}

	var subs []models.Submission
	err = s.db.WithContext(ctx).Preload("Submitter").Preload("Approvals").
		Where("task_id = ? AND contract_id = ? AND submitter_id IN ?", taskID, contractID, supervised).
		Order("submitted_at desc, id desc").Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("list supervised submissions: %w", err)
	}

	for i := range subs {
		sub := &subs[i]
		assigned, err := s.roster.SupervisorsOf(ctx, contractID, sub.SubmitterID)
		if err != nil {
			return nil, err
		}

		item := SupervisorItem{
			ID:                        sub.ID,
			Submitter:                 submitterRef(sub),
			SubmittedAt:               sub.SubmittedAt,
			FileURL:                   s.files.URL(sub.FilePath),
			Status:                    models.StatusPending,
			RequiresMultipleApprovals: len(assigned) > 1,
		}
		for j := range sub.Approvals {
			if sub.Approvals[j].SupervisorID == supervisorID {
				item.Status = sub.Approvals[j].Status
				item.RejectionReason = sub.Approvals[j].RejectionReason
				break
			}
		}
		listing.Supervised = append(listing.Supervised, item)
	}
	return listing, nil
}

func (s *Service) listForSubmitter(ctx context.Context, submitterID, taskID, contractID uint) (*Listing, error) {
	listing := &Listing{Role: models.RoleSubmitter}

	latest, err := s.LatestFor(ctx, taskID, submitterID)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return listing, nil
	}

	overall, err := s.OverallStatus(ctx, latest.ID)
	if err != nil {
		return nil, err
	}

	view := &SubmitterView{
		ID:       latest.ID,
		FileURL:  s.files.URL(latest.FilePath),
		FileName: latest.FileName,
		Status:   overall,
	}
	if overall == models.StatusRejected {
		var approvals []models.SupervisorApproval
		if err := s.db.WithContext(ctx).
			Where("submission_id = ? AND status = ?", latest.ID, models.StatusRejected).
			Order("id asc").Find(&approvals).Error; err != nil {
			return nil, fmt.Errorf("load rejections: %w", err)
		}
		if len(approvals) > 0 {
			view.RejectionReason = approvals[0].RejectionReason
		}
	}
	listing.Mine = view
	return listing, nil
}

func (s *Service) supervisorName(ctx context.Context, userID uint) string {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return ""
	}
	return user.DisplayName()
}

func submitterRef(sub *models.Submission) SubmitterRef {
	ref := SubmitterRef{ID: sub.SubmitterID}
	if sub.Submitter != nil {
		ref.Name = sub.Submitter.DisplayName()
	}
	return ref
}
