package models

import (
	"time"
)

// SupervisionAssignment is one supervisor→submitter edge within a
// contract. Edges are many-to-many in both directions; the triple is
// unique so replacing a submitter's set can never leave duplicates.
type SupervisionAssignment struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	ContractID   uint      `gorm:"not null;uniqueIndex:idx_supervision_edge" json:"contract_id"`
	SubmitterID  uint      `gorm:"not null;uniqueIndex:idx_supervision_edge" json:"submitter_id"`
	SupervisorID uint      `gorm:"not null;uniqueIndex:idx_supervision_edge" json:"supervisor_id"`
	Submitter    *User     `gorm:"foreignKey:SubmitterID" json:"submitter,omitempty"`
	Supervisor   *User     `gorm:"foreignKey:SupervisorID" json:"supervisor,omitempty"`
}
