package timesheets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"contracthub/apperr"
	"contracthub/models"
)

// TaskParams carries the owner-editable fields of a timesheet task.
type TaskParams struct {
	Title        string
	Details      string
	StartDate    time.Time
	DueDate      *time.Time
	Role         models.Role
	TemplateLink string
}

func (p TaskParams) validate() error {
	if p.Title == "" {
		return apperr.ValidationFailed("title is required")
	}
	if p.StartDate.IsZero() {
		return apperr.ValidationFailed("start date is required")
	}
	switch p.Role {
	case models.RoleSubmitter, models.RoleSupervisor:
	default:
		return apperr.ValidationFailed("task role must be submitter or supervisor")
	}
	return nil
}

// CreateTask adds a task to a contract. Owner only. An optional template
// upload is stored by reference alongside an optional template link.
func (s *Service) CreateTask(ctx context.Context, requesterID, contractID uint, p TaskParams, template *Upload) (*models.TimesheetTask, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if _, err := s.roster.GetContract(ctx, contractID); err != nil {
		return nil, err
	}
	owner, err := s.roster.HasRole(ctx, contractID, requesterID, models.RoleOwner)
	if err != nil {
		return nil, err
	}
	if !owner {
		return nil, apperr.PermissionDenied("only contract owners can manage tasks")
	}

	task := &models.TimesheetTask{
		ContractID:   contractID,
		Title:        p.Title,
		Details:      p.Details,
		StartDate:    p.StartDate,
		DueDate:      p.DueDate,
		Role:         p.Role,
		TemplateLink: p.TemplateLink,
	}

	if template != nil {
		ref, err := s.files.Save(ctx, template.Reader, template.Name)
		if err != nil {
			return nil, fmt.Errorf("store template: %w", err)
		}
		task.TemplateFile = ref
		task.TemplateFileName = template.Name
	}

	if err := s.db.WithContext(ctx).Create(task).Error; err != nil {
		if task.TemplateFile != "" {
			if derr := s.files.Delete(ctx, task.TemplateFile); derr != nil {
				s.log.Warn("orphaned template cleanup failed",
					zap.String("ref", task.TemplateFile), zap.Error(derr))
			}
		}
		return nil, fmt.Errorf("create task: %w", err)
	}
	return task, nil
}

// UpdateTask replaces a task's editable fields. Owner only. The role
// scope and contract are fixed at creation.
func (s *Service) UpdateTask(ctx context.Context, requesterID, taskID uint, p TaskParams, template *Upload) (*models.TimesheetTask, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	task, err := s.loadTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	owner, err := s.roster.HasRole(ctx, task.ContractID, requesterID, models.RoleOwner)
	if err != nil {
		return nil, err
	}
	if !owner {
		return nil, apperr.PermissionDenied("only contract owners can manage tasks")
	}

	task.Title = p.Title
	task.Details = p.Details
	task.StartDate = p.StartDate
	task.DueDate = p.DueDate
	task.TemplateLink = p.TemplateLink

	if template != nil {
		old := task.TemplateFile
		ref, err := s.files.Save(ctx, template.Reader, template.Name)
		if err != nil {
			return nil, fmt.Errorf("store template: %w", err)
		}
		task.TemplateFile = ref
		task.TemplateFileName = template.Name
		if old != "" {
			if derr := s.files.Delete(ctx, old); derr != nil {
				s.log.Warn("old template cleanup failed",
					zap.String("ref", old), zap.Error(derr))
			}
		}
	}

	if err := s.db.WithContext(ctx).Save(task).Error; err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	return task, nil
}

// DeleteTask removes a task and, via the schema cascade, its submission
// records. Owner only.
func (s *Service) DeleteTask(ctx context.Context, requesterID, taskID uint) error {
	task, err := s.loadTask(ctx, taskID)
	if err != nil {
		return err
	}
	owner, err := s.roster.HasRole(ctx, task.ContractID, requesterID, models.RoleOwner)
	if err != nil {
		return err
	}
	if !owner {
		return apperr.PermissionDenied("only contract owners can manage tasks")
	}

	if err := s.db.WithContext(ctx).Delete(task).Error; err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// GetTask loads a task for any member of its contract.
func (s *Service) GetTask(ctx context.Context, requesterID, taskID uint) (*models.TimesheetTask, error) {
	task, err := s.loadTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	member, err := s.roster.IsMember(ctx, task.ContractID, requesterID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, apperr.Forbidden("not a member of this contract")
	}
	return task, nil
}

// ListTasks returns a contract's tasks for any of its members.
func (s *Service) ListTasks(ctx context.Context, requesterID, contractID uint) ([]models.TimesheetTask, error) {
	if _, err := s.roster.GetContract(ctx, contractID); err != nil {
		return nil, err
	}
	member, err := s.roster.IsMember(ctx, contractID, requesterID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, apperr.Forbidden("not a member of this contract")
	}

	var tasks []models.TimesheetTask
	if err := s.db.WithContext(ctx).
		Where("contract_id = ?", contractID).
		Order("start_date asc, id asc").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// TemplateURL resolves a task's template file reference, or "" when the
// task has no uploaded template.
func (s *Service) TemplateURL(task *models.TimesheetTask) string {
	if task.TemplateFile == "" {
		return ""
	}
	return s.files.URL(task.TemplateFile)
}

func (s *Service) loadTask(ctx context.Context, taskID uint) (*models.TimesheetTask, error) {
	var task models.TimesheetTask
	err := s.db.WithContext(ctx).First(&task, taskID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("task %d not found", taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("load task: %w", err)
	}
	return &task, nil
}
