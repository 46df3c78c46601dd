package timesheets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"contracthub/apperr"
	"contracthub/metrics"
	"contracthub/models"
)

// RecordDecision upserts one supervisor's decision on a submission and
// recomputes the cached overall status in the same transaction. A
// supervisor may change their decision any number of times; the row is
// updated, not appended. Rejections require a reason.
func (s *Service) RecordDecision(ctx context.Context, supervisorID, submissionID uint, status models.ApprovalStatus, reason string) (*models.SupervisorApproval, error) {
	if !status.Valid() {
		return nil, apperr.ValidationFailed("invalid status %q", status)
	}
	if status == models.StatusRejected && reason == "" {
		return nil, apperr.InvalidArgument("a rejection requires a reason")
	}
	if status != models.StatusRejected {
		// A reason only accompanies a rejection.
		reason = ""
	}

	var submission models.Submission
	err := s.db.WithContext(ctx).First(&submission, submissionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("submission %d not found", submissionID)
	}
	if err != nil {
		return nil, fmt.Errorf("load submission: %w", err)
	}

	assigned, err := s.roster.SupervisorsOf(ctx, submission.ContractID, submission.SubmitterID)
	if err != nil {
		return nil, err
	}
	if !containsID(assigned, supervisorID) {
		return nil, apperr.Forbidden("not assigned to this submitter")
	}

	var approval models.SupervisorApproval
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("submission_id = ? AND supervisor_id = ?", submission.ID, supervisorID).
			First(&approval).Error
		switch {
		case err == nil:
			approval.Status = status
			approval.RejectionReason = reason
			approval.ReviewedAt = time.Now()
			if err := tx.Save(&approval).Error; err != nil {
				return fmt.Errorf("update approval: %w", err)
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			approval = models.SupervisorApproval{
				SubmissionID:    submission.ID,
				SupervisorID:    supervisorID,
				Status:          status,
				RejectionReason: reason,
				ReviewedAt:      time.Now(),
			}
			if err := tx.Create(&approval).Error; err != nil {
				return fmt.Errorf("create approval: %w", err)
			}
		default:
			return fmt.Errorf("find approval: %w", err)
		}

		return s.refreshOverall(ctx, tx, &submission)
	})
	if err != nil {
		return nil, err
	}

	metrics.DecisionsTotal.WithLabelValues(string(status)).Inc()
	return &approval, nil
}

// OverallStatus computes the aggregated verdict for a submission from
// the live supervision graph and approval records.
func (s *Service) OverallStatus(ctx context.Context, submissionID uint) (models.ApprovalStatus, error) {
	var submission models.Submission
	err := s.db.WithContext(ctx).First(&submission, submissionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", apperr.NotFound("submission %d not found", submissionID)
	}
	if err != nil {
		return "", fmt.Errorf("load submission: %w", err)
	}
	return s.overallFor(ctx, s.db.WithContext(ctx), &submission)
}

func (s *Service) overallFor(ctx context.Context, db *gorm.DB, submission *models.Submission) (models.ApprovalStatus, error) {
	assigned, err := s.roster.WithTx(db).SupervisorsOf(ctx, submission.ContractID, submission.SubmitterID)
	if err != nil {
		return "", err
	}

	var approvals []models.SupervisorApproval
	if err := db.Where("submission_id = ?", submission.ID).Find(&approvals).Error; err != nil {
		return "", fmt.Errorf("load approvals: %w", err)
	}

	return s.computeOverall(assigned, approvals), nil
}

// computeOverall applies the aggregation rule in precedence order: any
// rejection wins; otherwise every assigned supervisor must hold an
// approved record; otherwise pending. The empty assignment set follows
// the configured policy instead of resolving by vacuous truth.
func (s *Service) computeOverall(assigned []uint, approvals []models.SupervisorApproval) models.ApprovalStatus {
	for _, a := range approvals {
		if a.Status == models.StatusRejected {
			return models.StatusRejected
		}
	}

	if len(assigned) == 0 {
		if s.approveWhenUnsupervised {
			return models.StatusApproved
		}
		return models.StatusPending
	}

	approvedBy := make(map[uint]bool, len(approvals))
	for _, a := range approvals {
		if a.Status == models.StatusApproved {
			approvedBy[a.SupervisorID] = true
		}
	}
	for _, supID := range assigned {
		if !approvedBy[supID] {
			return models.StatusPending
		}
	}
	return models.StatusApproved
}

// refreshOverall recomputes and persists the cached status column.
func (s *Service) refreshOverall(ctx context.Context, tx *gorm.DB, submission *models.Submission) error {
	overall, err := s.overallFor(ctx, tx, submission)
	if err != nil {
		return err
	}
	if err := tx.Model(&models.Submission{}).
		Where("id = ?", submission.ID).
		Update("status", overall).Error; err != nil {
		return fmt.Errorf("cache overall status: %w", err)
	}
	submission.Status = overall
	return nil
}

func containsID(ids []uint, id uint) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
