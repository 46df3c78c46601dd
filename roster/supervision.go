package roster

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"contracthub/models"
)

// SetSupervisors replaces a submitter's entire supervisor set. The
// delete-then-insert runs in one transaction; partial updates are not
// supported, so no stale edge can survive a set change.
func (s *Service) SetSupervisors(ctx context.Context, contractID, submitterID uint, supervisorIDs []uint) error {
	ids := dedup(supervisorIDs)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("contract_id = ? AND submitter_id = ?", contractID, submitterID).
			Delete(&models.SupervisionAssignment{}).Error; err != nil {
			return fmt.Errorf("delete supervision edges: %w", err)
		}

		for _, supID := range ids {
			edge := models.SupervisionAssignment{
				ContractID:   contractID,
				SubmitterID:  submitterID,
				SupervisorID: supID,
			}
			if err := tx.Create(&edge).Error; err != nil {
				return fmt.Errorf("create supervision edge: %w", err)
			}
		}

		s.mirrorLegacySupervisor(tx, contractID, submitterID, ids)
		return nil
	})
}

// AddSupervisors appends edges without touching existing ones. Used when
// an already-consumed invite is amended, where replacing the set would
// discard assignments made since acceptance.
func (s *Service) AddSupervisors(ctx context.Context, contractID, submitterID uint, supervisorIDs []uint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, supID := range dedup(supervisorIDs) {
			edge := models.SupervisionAssignment{
				ContractID:   contractID,
				SubmitterID:  submitterID,
				SupervisorID: supID,
			}
			if err := tx.Where(&models.SupervisionAssignment{
				ContractID:   contractID,
				SubmitterID:  submitterID,
				SupervisorID: supID,
			}).FirstOrCreate(&edge).Error; err != nil {
				return fmt.Errorf("upsert supervision edge: %w", err)
			}
		}

		all, err := s.WithTx(tx).SupervisorsOf(ctx, contractID, submitterID)
		if err != nil {
			return err
		}
		s.mirrorLegacySupervisor(tx, contractID, submitterID, all)
		return nil
	})
}

// mirrorLegacySupervisor writes the first supervisor id into the
// submitter's membership entries for old display paths. Best-effort: a
// failure is logged, never propagated, and the mirror is never read as
// authoritative.
func (s *Service) mirrorLegacySupervisor(tx *gorm.DB, contractID, submitterID uint, ids []uint) {
	var first *uint
	if len(ids) > 0 {
		first = &ids[0]
	}
	err := tx.Model(&models.ContractMember{}).
		Where("contract_id = ? AND user_id = ? AND role = ?", contractID, submitterID, models.RoleSubmitter).
		Update("supervisor_id", first).Error
	if err != nil {
		s.log.Warn("legacy supervisor mirror failed",
			zap.Uint("contract_id", contractID),
			zap.Uint("submitter_id", submitterID),
			zap.Error(err))
	}
}

// SupervisorsOf returns the supervisor ids assigned to a submitter, in
// assignment order.
func (s *Service) SupervisorsOf(ctx context.Context, contractID, submitterID uint) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).Model(&models.SupervisionAssignment{}).
		Where("contract_id = ? AND submitter_id = ?", contractID, submitterID).
		Order("id asc").Pluck("supervisor_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("load supervisors: %w", err)
	}
	return ids, nil
}

// SubmittersOf is the inverse lookup: every submitter a supervisor
// oversees on the contract.
func (s *Service) SubmittersOf(ctx context.Context, contractID, supervisorID uint) ([]uint, error) {
	var ids []uint
	err := s.db.WithContext(ctx).Model(&models.SupervisionAssignment{}).
		Where("contract_id = ? AND supervisor_id = ?", contractID, supervisorID).
		Order("id asc").Pluck("submitter_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("load submitters: %w", err)
	}
	return ids, nil
}

func dedup(ids []uint) []uint {
	seen := make(map[uint]bool, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
