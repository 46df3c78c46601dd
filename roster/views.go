package roster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"contracthub/apperr"
	"contracthub/models"
)

// MemberView is the aggregated projection of one user's presence on a
// contract: every read path folds the user's entries together instead of
// assuming one row per user.
type MemberView struct {
	UserID          uint            `json:"id"`
	Name            string          `json:"name"`
	Email           string          `json:"email"`
	Role            models.Role     `json:"role"`
	Roles           []models.Role   `json:"roles"`
	Labels          []models.Label  `json:"labels"`
	StartDate       *time.Time      `json:"start_date"`
	DueDate         *time.Time      `json:"due_date"`
	SupervisorIDs   []uint          `json:"supervisor_ids"`
	SupervisorNames []string        `json:"supervisor_names"`

	// LegacySupervisorID is the mirrored single-supervisor column, kept
	// in the payload for old clients only.
	LegacySupervisorID *uint `json:"supervisor_id"`
}

// GetContract loads a contract or reports NotFound.
func (s *Service) GetContract(ctx context.Context, contractID uint) (*models.Contract, error) {
	var contract models.Contract
	err := s.db.WithContext(ctx).First(&contract, contractID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("contract %d not found", contractID)
	}
	if err != nil {
		return nil, fmt.Errorf("load contract: %w", err)
	}
	return &contract, nil
}

// ListContracts returns every contract the user created or belongs to,
// newest first.
func (s *Service) ListContracts(ctx context.Context, userID uint) ([]models.Contract, error) {
	memberOf := s.db.Model(&models.ContractMember{}).
		Select("contract_id").Where("user_id = ?", userID)

	var contracts []models.Contract
	err := s.db.WithContext(ctx).
		Where("creator_id = ? OR id IN (?)", userID, memberOf).
		Order("created_at desc").Find(&contracts).Error
	if err != nil {
		return nil, fmt.Errorf("list contracts: %w", err)
	}
	return contracts, nil
}

// Members returns one aggregated view per distinct user on the contract.
func (s *Service) Members(ctx context.Context, contractID uint) ([]MemberView, error) {
	var entries []models.ContractMember
	err := s.db.WithContext(ctx).Preload("User").
		Where("contract_id = ?", contractID).
		Order("id asc").Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("load membership entries: %w", err)
	}

	var edges []models.SupervisionAssignment
	err = s.db.WithContext(ctx).Preload("Supervisor").
		Where("contract_id = ?", contractID).
		Order("id asc").Find(&edges).Error
	if err != nil {
		return nil, fmt.Errorf("load supervision edges: %w", err)
	}

	type supInfo struct {
		ids   []uint
		names []string
	}
	supervision := make(map[uint]*supInfo)
	for _, e := range edges {
		info := supervision[e.SubmitterID]
		if info == nil {
			info = &supInfo{}
			supervision[e.SubmitterID] = info
		}
		info.ids = append(info.ids, e.SupervisorID)
		name := ""
		if e.Supervisor != nil {
			name = e.Supervisor.DisplayName()
		}
		info.names = append(info.names, name)
	}

	var order []uint
	views := make(map[uint]*MemberView)
	for _, e := range entries {
		v := views[e.UserID]
		if v == nil {
			v = &MemberView{
				UserID:             e.UserID,
				Name:               e.User.DisplayName(),
				Email:              e.User.Email,
				Role:               e.Role,
				StartDate:          e.StartDate,
				DueDate:            e.DueDate,
				LegacySupervisorID: e.SupervisorID,
			}
			if info := supervision[e.UserID]; info != nil {
				v.SupervisorIDs = info.ids
				v.SupervisorNames = info.names
			}
			views[e.UserID] = v
			order = append(order, e.UserID)
		}
		if !containsRole(v.Roles, e.Role) {
			v.Roles = append(v.Roles, e.Role)
		}
		if e.Label != nil && !containsLabel(v.Labels, *e.Label) {
			v.Labels = append(v.Labels, *e.Label)
		}
	}

	out := make([]MemberView, 0, len(order))
	for _, id := range order {
		out = append(out, *views[id])
	}
	return out, nil
}

// ContractSupervisors lists the users holding a supervisor entry on the
// contract, for supervisor-set pickers.
func (s *Service) ContractSupervisors(ctx context.Context, contractID uint) ([]models.User, error) {
	var entries []models.ContractMember
	err := s.db.WithContext(ctx).Preload("User").
		Where("contract_id = ? AND role = ?", contractID, models.RoleSupervisor).
		Order("id asc").Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("load supervisors: %w", err)
	}

	seen := make(map[uint]bool, len(entries))
	users := make([]models.User, 0, len(entries))
	for _, e := range entries {
		if !seen[e.UserID] {
			seen[e.UserID] = true
			users = append(users, e.User)
		}
	}
	return users, nil
}

func containsRole(roles []models.Role, r models.Role) bool {
	for _, x := range roles {
		if x == r {
			return true
		}
	}
	return false
}

func containsLabel(labels []models.Label, l models.Label) bool {
	for _, x := range labels {
		if x == l {
			return true
		}
	}
	return false
}
