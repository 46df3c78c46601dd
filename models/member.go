package models

import (
	"time"
)

// ContractMember is one roster entry. The (contract, user) pair is
// deliberately not unique: a submitter holds one entry per label, so the
// same person can be a TA and an Intern on one contract at the same time.
type ContractMember struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	ContractID uint      `gorm:"not null;index" json:"contract_id"`
	UserID     uint      `gorm:"not null;index" json:"user_id"`
	User       User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Role       Role      `gorm:"not null;size:20" json:"role"`
	Label      *Label    `gorm:"size:20" json:"label"`
	StartDate  *time.Time `gorm:"type:date" json:"start_date"`
	DueDate    *time.Time `gorm:"type:date" json:"due_date"`

	// SupervisorID mirrors the first entry of the submitter's supervisor
	// set for display compatibility. The supervision_assignments table is
	// the source of truth; never branch on this column.
	SupervisorID *uint `json:"supervisor_id"`
}
