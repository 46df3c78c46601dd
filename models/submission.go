package models

import (
	"time"
)

// Submission is one uploaded timesheet. Records are append-only: a newer
// upload by the same submitter for the same task supersedes older ones
// for display but never overwrites them.
type Submission struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	SubmittedAt time.Time `gorm:"autoCreateTime;index" json:"submitted_at"`
	TaskID      uint      `gorm:"not null;index" json:"task_id"`
	ContractID  uint      `gorm:"not null;index" json:"contract_id"`
	SubmitterID uint      `gorm:"not null;index" json:"submitter_id"`
	Submitter   *User     `gorm:"foreignKey:SubmitterID" json:"submitter,omitempty"`
	FilePath    string    `gorm:"not null;size:512" json:"file_path"`
	FileName    string    `gorm:"not null;size:255" json:"file_name"`

	// Status caches the aggregated verdict and is recomputed inside the
	// same transaction as every recorded decision. OverallStatus is the
	// authoritative computation.
	Status ApprovalStatus `gorm:"not null;size:20;default:pending" json:"status"`

	Approvals []SupervisorApproval `gorm:"foreignKey:SubmissionID;constraint:OnDelete:CASCADE" json:"approvals,omitempty"`
}
