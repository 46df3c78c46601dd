// Package roster owns a contract's membership: who is on it, in which
// role, under which labels and effective window, and which supervisors
// oversee which submitters. The supervision_assignments table is the only
// source of truth for oversight; the legacy single-supervisor column on a
// membership entry is a display-only mirror.
package roster

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

type Service struct {
	db  *gorm.DB
	log *zap.Logger
}

func New(db *gorm.DB, log *zap.Logger) *Service {
	return &Service{db: db, log: log}
}

// WithTx returns a copy of the service bound to tx so callers can compose
// roster operations into their own transactions.
func (s *Service) WithTx(tx *gorm.DB) *Service {
	c := *s
	c.db = tx
	return &c
}

// Window is a membership entry's effective date range. Both ends are
// optional.
type Window struct {
	StartDate *time.Time
	DueDate   *time.Time
}

// MemberPatch updates a member. Nil fields are left untouched; non-nil
// fields replace the current value wholesale.
type MemberPatch struct {
	Window        *Window
	Labels        *[]models.Label
	SupervisorIDs *[]uint
}

// CreateContract creates a contract and attaches its creator as owner in
// one transaction, so a contract can never exist without an owner entry.
func (s *Service) CreateContract(ctx context.Context, creatorID uint, name, details string) (*models.Contract, error) {
	if name == "" {
		return nil, apperr.ValidationFailed("contract name is required")
	}
	if details == "" {
		return nil, apperr.ValidationFailed("contract details are required")
	}

	contract := &models.Contract{
		CreatorID: creatorID,
		Name:      name,
		Details:   details,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(contract).Error; err != nil {
			return fmt.Errorf("create contract: %w", err)
		}
		return s.WithTx(tx).AddOwner(ctx, contract.ID, creatorID)
	})
	if err != nil {
		return nil, err
	}
	return contract, nil
}

// AddOwner inserts the creator's owner entry. Called exactly once per
// contract, at creation.
func (s *Service) AddOwner(ctx context.Context, contractID, userID uint) error {
	entry := models.ContractMember{
		ContractID: contractID,
		UserID:     userID,
		Role:       models.RoleOwner,
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		return fmt.Errorf("add owner: %w", err)
	}
	return nil
}

// AttachExisting puts a registered user on a contract. If an entry with
// the same (role, label) already exists its window is updated in place;
// a different label gets a fresh entry, which is how one person holds TA
// and Intern submitter entries side by side.
func (s *Service) AttachExisting(ctx context.Context, contractID, userID uint, role models.Role, label *models.Label, window Window, supervisorIDs []uint) error {
	if !role.Valid() {
		return apperr.ValidationFailed("invalid role %q", role)
	}
	if label != nil {
		if !label.Valid() {
			return apperr.ValidationFailed("invalid label %q", *label)
		}
		if role != models.RoleSubmitter {
			return apperr.ValidationFailed("label is only valid for submitters")
		}
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var contract models.Contract
		if err := tx.First(&contract, contractID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("contract %d not found", contractID)
			}
			return fmt.Errorf("load contract: %w", err)
		}

		q := tx.Where("contract_id = ? AND user_id = ? AND role = ?", contractID, userID, role)
		if label == nil {
			q = q.Where("label IS NULL")
		} else {
			q = q.Where("label = ?", *label)
		}

		var entry models.ContractMember
		err := q.First(&entry).Error
		switch {
		case err == nil:
			entry.StartDate = window.StartDate
			entry.DueDate = window.DueDate
			if err := tx.Save(&entry).Error; err != nil {
				return fmt.Errorf("update membership entry: %w", err)
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			entry = models.ContractMember{
				ContractID: contractID,
				UserID:     userID,
				Role:       role,
				Label:      label,
				StartDate:  window.StartDate,
				DueDate:    window.DueDate,
			}
			if err := tx.Create(&entry).Error; err != nil {
				return fmt.Errorf("create membership entry: %w", err)
			}
		default:
			return fmt.Errorf("find membership entry: %w", err)
		}

		if role == models.RoleSubmitter && supervisorIDs != nil {
			return s.WithTx(tx).SetSupervisors(ctx, contractID, userID, supervisorIDs)
		}
		return nil
	})
}

// UpdateMember applies patch to every entry the user holds on the
// contract. Only owners may call it.
func (s *Service) UpdateMember(ctx context.Context, requesterID, contractID, userID uint, patch MemberPatch) error {
	owner, err := s.HasRole(ctx, contractID, requesterID, models.RoleOwner)
	if err != nil {
		return err
	}
	if !owner {
		return apperr.PermissionDenied("only contract owners can update members")
	}

	if patch.Labels != nil {
		for _, l := range *patch.Labels {
			if !l.Valid() {
				return apperr.ValidationFailed("invalid label %q", l)
			}
		}
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entries []models.ContractMember
		if err := tx.Where("contract_id = ? AND user_id = ?", contractID, userID).
			Order("id asc").Find(&entries).Error; err != nil {
			return fmt.Errorf("load membership entries: %w", err)
		}
		if len(entries) == 0 {
			return apperr.NotFound("member not on this contract")
		}

		if patch.SupervisorIDs != nil && !holdsRole(entries, models.RoleSubmitter) {
			return apperr.ValidationFailed("supervisors can only be assigned to submitters")
		}

		if patch.Labels != nil {
			if err := s.reconcileLabels(tx, contractID, userID, *patch.Labels, entries, patch.Window); err != nil {
				return err
			}
		}

		if patch.Window != nil {
			if err := tx.Model(&models.ContractMember{}).
				Where("contract_id = ? AND user_id = ?", contractID, userID).
				Updates(map[string]any{
					"start_date": patch.Window.StartDate,
					"due_date":   patch.Window.DueDate,
				}).Error; err != nil {
				return fmt.Errorf("update member window: %w", err)
			}
		}

		if patch.SupervisorIDs != nil {
			if err := s.WithTx(tx).SetSupervisors(ctx, contractID, userID, *patch.SupervisorIDs); err != nil {
				return err
			}
		}
		return nil
	})
}

// reconcileLabels makes the user's submitter entries match the desired
// label set exactly: one entry per label, extras removed. An empty set
// collapses to a single unlabeled submitter entry so the membership
// itself survives.
func (s *Service) reconcileLabels(tx *gorm.DB, contractID, userID uint, labels []models.Label, entries []models.ContractMember, window *Window) error {
	var submitterEntries []models.ContractMember
	for _, e := range entries {
		if e.Role == models.RoleSubmitter {
			submitterEntries = append(submitterEntries, e)
		}
	}
	if len(submitterEntries) == 0 {
		// Labels only apply to submitters; nothing to reconcile.
		return nil
	}

	start, due := submitterEntries[0].StartDate, submitterEntries[0].DueDate
	if window != nil {
		start, due = window.StartDate, window.DueDate
	}

	if len(labels) == 0 {
		keep := submitterEntries[0]
		keep.Label = nil
		if err := tx.Save(&keep).Error; err != nil {
			return fmt.Errorf("clear member label: %w", err)
		}
		for _, e := range submitterEntries[1:] {
			if err := tx.Delete(&models.ContractMember{}, e.ID).Error; err != nil {
				return fmt.Errorf("delete labeled entry: %w", err)
			}
		}
		return nil
	}

	desired := make(map[models.Label]bool, len(labels))
	for _, l := range labels {
		desired[l] = true
	}

	present := make(map[models.Label]bool)
	for _, e := range submitterEntries {
		if e.Label != nil && desired[*e.Label] && !present[*e.Label] {
			present[*e.Label] = true
			continue
		}
		if err := tx.Delete(&models.ContractMember{}, e.ID).Error; err != nil {
			return fmt.Errorf("delete stale entry: %w", err)
		}
	}

	for _, l := range labels {
		if present[l] {
			continue
		}
		label := l
		entry := models.ContractMember{
			ContractID: contractID,
			UserID:     userID,
			Role:       models.RoleSubmitter,
			Label:      &label,
			StartDate:  start,
			DueDate:    due,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("create labeled entry: %w", err)
		}
	}
	return nil
}

// RemoveMember detaches a user from a contract, cascading their
// supervision edges (both directions) and their approval records on the
// contract's submissions. Only owners may call it.
func (s *Service) RemoveMember(ctx context.Context, requesterID, contractID, userID uint) error {
	owner, err := s.HasRole(ctx, contractID, requesterID, models.RoleOwner)
	if err != nil {
		return err
	}
	if !owner {
		return apperr.PermissionDenied("only contract owners can remove members")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.ContractMember{}).
			Where("contract_id = ? AND user_id = ?", contractID, userID).
			Count(&count).Error; err != nil {
			return fmt.Errorf("check membership: %w", err)
		}
		if count == 0 {
			return apperr.NotFound("member not on this contract")
		}

		if err := tx.Where("contract_id = ? AND (submitter_id = ? OR supervisor_id = ?)",
			contractID, userID, userID).
			Delete(&models.SupervisionAssignment{}).Error; err != nil {
			return fmt.Errorf("delete supervision edges: %w", err)
		}

		contractSubmissions := tx.Model(&models.Submission{}).
			Select("id").Where("contract_id = ?", contractID)
		if err := tx.Where("supervisor_id = ? AND submission_id IN (?)", userID, contractSubmissions).
			Delete(&models.SupervisorApproval{}).Error; err != nil {
			return fmt.Errorf("delete approval records: %w", err)
		}

		// Clear the legacy mirror on anyone who pointed at this user.
		if err := tx.Model(&models.ContractMember{}).
			Where("contract_id = ? AND supervisor_id = ?", contractID, userID).
			Update("supervisor_id", nil).Error; err != nil {
			return fmt.Errorf("clear legacy supervisor: %w", err)
		}

		if err := tx.Where("contract_id = ? AND user_id = ?", contractID, userID).
			Delete(&models.ContractMember{}).Error; err != nil {
			return fmt.Errorf("delete membership entries: %w", err)
		}
		return nil
	})
}

// RoleOf returns the user's first role on the contract. Users can hold
// several roles; callers needing a specific one should use HasRole or
// RolesOf instead of assuming a single row.
func (s *Service) RoleOf(ctx context.Context, contractID, userID uint) (models.Role, bool, error) {
	var entry models.ContractMember
	err := s.db.WithContext(ctx).
		Where("contract_id = ? AND user_id = ?", contractID, userID).
		Order("id asc").First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load role: %w", err)
	}
	return entry.Role, true, nil
}

// RolesOf aggregates every role the user holds on the contract, in entry
// order without duplicates.
func (s *Service) RolesOf(ctx context.Context, contractID, userID uint) ([]models.Role, error) {
	var entries []models.ContractMember
	if err := s.db.WithContext(ctx).
		Where("contract_id = ? AND user_id = ?", contractID, userID).
		Order("id asc").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("load roles: %w", err)
	}
	seen := make(map[models.Role]bool, 3)
	var roles []models.Role
	for _, e := range entries {
		if !seen[e.Role] {
			seen[e.Role] = true
			roles = append(roles, e.Role)
		}
	}
	return roles, nil
}

func (s *Service) HasRole(ctx context.Context, contractID, userID uint, role models.Role) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.ContractMember{}).
		Where("contract_id = ? AND user_id = ? AND role = ?", contractID, userID, role).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check role: %w", err)
	}
	return count > 0, nil
}

func (s *Service) IsMember(ctx context.Context, contractID, userID uint) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.ContractMember{}).
		Where("contract_id = ? AND user_id = ?", contractID, userID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	return count > 0, nil
}

func holdsRole(entries []models.ContractMember, role models.Role) bool {
	for _, e := range entries {
		if e.Role == role {
			return true
		}
	}
	return false
}
