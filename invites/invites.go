// Package invites is the invitation ledger: tokenized, single-use offers
// to join a contract, addressed to emails with no account yet. Registered
// emails never enter the ledger, they are attached to the roster
// directly. An invite moves pending → consumed exactly once.
package invites

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"contracthub/apperr"
	"contracthub/config"
	"contracthub/directory"
	"contracthub/metrics"
	"contracthub/models"
	"contracthub/roster"
)

// Sender delivers invite notifications. Failures are logged by the
// caller and never fail the invite.
type Sender interface {
	SendInvite(ctx context.Context, invite *models.Invite, contractName string) error
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	roster *roster.Service
	dir    *directory.Directory
	sender Sender
	policy config.Policy
}

func New(db *gorm.DB, log *zap.Logger, r *roster.Service, dir *directory.Directory, sender Sender, policy config.Policy) *Service {
	return &Service{db: db, log: log, roster: r, dir: dir, sender: sender, policy: policy}
}

// CreateParams carries everything an invite snapshots at creation time.
type CreateParams struct {
	ContractID    uint
	Email         string
	Role          models.Role
	Label         *models.Label
	Window        roster.Window
	SupervisorIDs []uint
}

// Outcome reports what happened to one invited email: "attached" when
// the email already had an account, "invited" when a ledger entry was
// created (or an existing pending one refreshed).
type Outcome struct {
	Email  string         `json:"email"`
	Status string         `json:"status"`
	Invite *models.Invite `json:"invite,omitempty"`
}

func (s *Service) validateParams(p CreateParams) error {
	if p.Email == "" {
		return apperr.ValidationFailed("email is required")
	}
	switch p.Role {
	case models.RoleSubmitter, models.RoleSupervisor:
	default:
		return apperr.ValidationFailed("invitable roles are submitter and supervisor")
	}
	if p.Label != nil {
		if !p.Label.Valid() {
			return apperr.ValidationFailed("invalid label %q", *p.Label)
		}
		if p.Role != models.RoleSubmitter {
			return apperr.ValidationFailed("label is only valid for submitters")
		}
	}
	if len(p.SupervisorIDs) > 0 && p.Role != models.RoleSubmitter {
		return apperr.ValidationFailed("supervisors can only be assigned to submitters")
	}
	return nil
}

// Create processes one invitation. Only contract owners may invite. A
// registered email bypasses the ledger and lands on the roster
// immediately; anything else becomes (or refreshes) a pending invite and
// triggers a fire-and-forget notification.
func (s *Service) Create(ctx context.Context, inviterID uint, p CreateParams) (*Outcome, error) {
	if err := s.validateParams(p); err != nil {
		return nil, err
	}

	contract, err := s.roster.GetContract(ctx, p.ContractID)
	if err != nil {
		return nil, err
	}
	owner, err := s.roster.HasRole(ctx, p.ContractID, inviterID, models.RoleOwner)
	if err != nil {
		return nil, err
	}
	if !owner {
		return nil, apperr.PermissionDenied("only contract owners can invite members")
	}

	user, err := s.dir.FindByEmail(ctx, p.Email)
	if err != nil {
		return nil, err
	}
	if user != nil {
		err := s.roster.AttachExisting(ctx, p.ContractID, user.ID, p.Role, p.Label, p.Window, p.SupervisorIDs)
		if err != nil {
			return nil, err
		}
		metrics.InvitesTotal.WithLabelValues("attached").Inc()
		return &Outcome{Email: p.Email, Status: "attached"}, nil
	}

	invite, err := s.upsertPending(ctx, inviterID, p)
	if err != nil {
		return nil, err
	}
	metrics.InvitesTotal.WithLabelValues("invited").Inc()

	if err := s.sender.SendInvite(ctx, invite, contract.Name); err != nil {
		s.log.Warn("invite notification failed",
			zap.String("email", invite.Email),
			zap.Uint("contract_id", invite.ContractID),
			zap.Error(err))
	}

	return &Outcome{Email: p.Email, Status: "invited", Invite: invite}, nil
}

// upsertPending keeps at most one unconsumed invite per (contract,
// email, role, label): a repeat invite refreshes the existing snapshot
// instead of minting a duplicate token.
func (s *Service) upsertPending(ctx context.Context, inviterID uint, p CreateParams) (*models.Invite, error) {
	var invite models.Invite

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("contract_id = ? AND email = ? AND role = ? AND consumed = ?",
			p.ContractID, p.Email, p.Role, false)
		if p.Label == nil {
			q = q.Where("label IS NULL")
		} else {
			q = q.Where("label = ?", *p.Label)
		}

		err := q.First(&invite).Error
		switch {
		case err == nil:
			invite.StartDate = p.Window.StartDate
			invite.DueDate = p.Window.DueDate
			invite.InvitedBy = inviterID
			if err := invite.SetSupervisorIDs(p.SupervisorIDs); err != nil {
				return fmt.Errorf("encode supervisor ids: %w", err)
			}
			if err := tx.Save(&invite).Error; err != nil {
				return fmt.Errorf("refresh invite: %w", err)
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			invite = models.Invite{
				Token:      models.NewInviteToken(),
				ContractID: p.ContractID,
				Email:      p.Email,
				Role:       p.Role,
				Label:      p.Label,
				StartDate:  p.Window.StartDate,
				DueDate:    p.Window.DueDate,
				InvitedBy:  inviterID,
			}
			if err := invite.SetSupervisorIDs(p.SupervisorIDs); err != nil {
				return fmt.Errorf("encode supervisor ids: %w", err)
			}
			if err := tx.Create(&invite).Error; err != nil {
				return fmt.Errorf("create invite: %w", err)
			}
		default:
			return fmt.Errorf("find pending invite: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &invite, nil
}

// Accept materializes a pending invite for the requesting user: one
// roster entry plus the snapshotted supervision edges, then the invite
// flips to consumed. The consumed flag is advanced with a conditional
// update so exactly one of any concurrent accepts wins; the loser and
// every later replay get Conflict.
func (s *Service) Accept(ctx context.Context, user *models.User, token string) (*models.Invite, error) {
	var invite models.Invite

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("token = ?", token).First(&invite).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.NotFound("invite not found")
		}
		if err != nil {
			return fmt.Errorf("load invite: %w", err)
		}

		if invite.Consumed {
			return apperr.Conflict("invite already consumed")
		}
		if !s.emailMatches(invite.Email, user.Email) {
			return apperr.Forbidden("invite was issued to a different email")
		}

		res := tx.Model(&models.Invite{}).
			Where("id = ? AND consumed = ?", invite.ID, false).
			Update("consumed", true)
		if res.Error != nil {
			return fmt.Errorf("consume invite: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.Conflict("invite already consumed")
		}
		invite.Consumed = true

		window := roster.Window{StartDate: invite.StartDate, DueDate: invite.DueDate}
		if err := s.roster.WithTx(tx).AttachExisting(ctx, invite.ContractID, user.ID,
			invite.Role, invite.Label, window, invite.SupervisorIDList()); err != nil {
			return err
		}

		if s.policy.ConsumeSiblingInvites {
			if err := tx.Model(&models.Invite{}).
				Where("contract_id = ? AND email = ? AND consumed = ? AND id <> ?",
					invite.ContractID, invite.Email, false, invite.ID).
				Update("consumed", true).Error; err != nil {
				return fmt.Errorf("consume sibling invites: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.InvitesAcceptedTotal.Inc()
	return &invite, nil
}

func (s *Service) emailMatches(inviteEmail, userEmail string) bool {
	if s.policy.InviteEmailCaseInsensitive {
		return strings.EqualFold(inviteEmail, userEmail)
	}
	return inviteEmail == userEmail
}

// View is the public projection of a pending invite: the token itself is
// the capability, no authentication required.
type View struct {
	ContractName string        `json:"contract_name"`
	Email        string        `json:"email"`
	Role         models.Role   `json:"role"`
	Label        *models.Label `json:"label"`
	StartDate    *time.Time    `json:"start_date"`
	DueDate      *time.Time    `json:"due_date"`
}

func (s *Service) Show(ctx context.Context, token string) (*View, error) {
	var invite models.Invite
	err := s.db.WithContext(ctx).Preload("Contract").
		Where("token = ?", token).First(&invite).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("invite not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load invite: %w", err)
	}
	if invite.Consumed {
		return nil, apperr.Conflict("invite already consumed")
	}

	view := &View{
		Email:     invite.Email,
		Role:      invite.Role,
		Label:     invite.Label,
		StartDate: invite.StartDate,
		DueDate:   invite.DueDate,
	}
	if invite.Contract != nil {
		view.ContractName = invite.Contract.Name
	}
	return view, nil
}

// UpdateParams amends an invite. Nil fields are untouched. ClearLabel
// removes the label outright.
type UpdateParams struct {
	Role          *models.Role
	Label         *models.Label
	ClearLabel    bool
	Window        *roster.Window
	SupervisorIDs *[]uint
}

// Update amends a pending invite in place. On an already-consumed invite
// only a supervisor-set change is meaningful: the snapshot already
// materialized, so the new supervisors are appended to the accepted
// user's edges instead of replacing them.
func (s *Service) Update(ctx context.Context, requesterID, inviteID uint, p UpdateParams) (*models.Invite, error) {
	var invite models.Invite
	err := s.db.WithContext(ctx).First(&invite, inviteID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("invite not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load invite: %w", err)
	}

	owner, err := s.roster.HasRole(ctx, invite.ContractID, requesterID, models.RoleOwner)
	if err != nil {
		return nil, err
	}
	if !owner {
		return nil, apperr.PermissionDenied("only contract owners can update invites")
	}

	if invite.Consumed {
		return s.updateConsumed(ctx, &invite, p)
	}

	if p.Role != nil {
		switch *p.Role {
		case models.RoleSubmitter, models.RoleSupervisor:
			invite.Role = *p.Role
		default:
			return nil, apperr.ValidationFailed("invitable roles are submitter and supervisor")
		}
	}
	if p.ClearLabel {
		invite.Label = nil
	} else if p.Label != nil {
		if !p.Label.Valid() {
			return nil, apperr.ValidationFailed("invalid label %q", *p.Label)
		}
		invite.Label = p.Label
	}
	if invite.Label != nil && invite.Role != models.RoleSubmitter {
		return nil, apperr.ValidationFailed("label is only valid for submitters")
	}
	if p.Window != nil {
		invite.StartDate = p.Window.StartDate
		invite.DueDate = p.Window.DueDate
	}
	if p.SupervisorIDs != nil {
		if err := invite.SetSupervisorIDs(*p.SupervisorIDs); err != nil {
			return nil, fmt.Errorf("encode supervisor ids: %w", err)
		}
	}
	if len(invite.SupervisorIDList()) > 0 && invite.Role != models.RoleSubmitter {
		return nil, apperr.ValidationFailed("supervisors can only be assigned to submitters")
	}

	if err := s.db.WithContext(ctx).Save(&invite).Error; err != nil {
		return nil, fmt.Errorf("update invite: %w", err)
	}
	return &invite, nil
}

func (s *Service) updateConsumed(ctx context.Context, invite *models.Invite, p UpdateParams) (*models.Invite, error) {
	if p.SupervisorIDs == nil {
		return nil, apperr.Conflict("invite already consumed")
	}
	if p.Role != nil || p.Label != nil || p.ClearLabel || p.Window != nil {
		return nil, apperr.Conflict("only supervisors can be amended on a consumed invite")
	}

	user, err := s.dir.FindByEmail(ctx, invite.Email)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.NotFound("accepted user no longer exists")
	}

	// Supervision edges only ever point at submitters; a consumed
	// supervisor-role invite has nothing to append to.
	submitter, err := s.roster.HasRole(ctx, invite.ContractID, user.ID, models.RoleSubmitter)
	if err != nil {
		return nil, err
	}
	if !submitter {
		return nil, apperr.ValidationFailed("supervisors can only be assigned to submitters")
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.roster.WithTx(tx).AddSupervisors(ctx, invite.ContractID, user.ID, *p.SupervisorIDs); err != nil {
			return err
		}
		if err := invite.SetSupervisorIDs(*p.SupervisorIDs); err != nil {
			return fmt.Errorf("encode supervisor ids: %w", err)
		}
		if err := tx.Save(invite).Error; err != nil {
			return fmt.Errorf("update invite snapshot: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return invite, nil
}

// Delete removes a pending invite outright. Consumed invites are part of
// the contract's history and stay.
func (s *Service) Delete(ctx context.Context, requesterID, inviteID uint) error {
	var invite models.Invite
	err := s.db.WithContext(ctx).First(&invite, inviteID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("invite not found")
	}
	if err != nil {
		return fmt.Errorf("load invite: %w", err)
	}

	owner, err := s.roster.HasRole(ctx, invite.ContractID, requesterID, models.RoleOwner)
	if err != nil {
		return err
	}
	if !owner {
		return apperr.PermissionDenied("only contract owners can delete invites")
	}
	if invite.Consumed {
		return apperr.Conflict("invite already consumed")
	}

	if err := s.db.WithContext(ctx).Delete(&invite).Error; err != nil {
		return fmt.Errorf("delete invite: %w", err)
	}
	return nil
}

// ListByContract returns a contract's invites, newest first. Owner only.
func (s *Service) ListByContract(ctx context.Context, requesterID, contractID uint) ([]models.Invite, error) {
	if _, err := s.roster.GetContract(ctx, contractID); err != nil {
		return nil, err
	}
	owner, err := s.roster.HasRole(ctx, contractID, requesterID, models.RoleOwner)
	if err != nil {
		return nil, err
	}
	if !owner {
		return nil, apperr.PermissionDenied("only contract owners can list invites")
	}

	var invites []models.Invite
	if err := s.db.WithContext(ctx).
		Where("contract_id = ?", contractID).
		Order("created_at desc").Find(&invites).Error; err != nil {
		return nil, fmt.Errorf("list invites: %w", err)
	}
	return invites, nil
}
