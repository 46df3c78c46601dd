package models

import (
	"time"
)

// SupervisorApproval is one supervisor's decision on one submission. The
// pair is unique; repeat decisions by the same supervisor upsert the same
// row rather than appending history.
type SupervisorApproval struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	SubmissionID    uint           `gorm:"not null;uniqueIndex:idx_submission_supervisor" json:"submission_id"`
	SupervisorID    uint           `gorm:"not null;uniqueIndex:idx_submission_supervisor" json:"supervisor_id"`
	Supervisor      *User          `gorm:"foreignKey:SupervisorID" json:"supervisor,omitempty"`
	Status          ApprovalStatus `gorm:"not null;size:20" json:"status"`
	RejectionReason string         `gorm:"size:255" json:"rejection_reason"`
	ReviewedAt      time.Time      `json:"reviewed_at"`
}
