package models

import (
	"time"
)

// TimesheetTask is an owner-managed unit of work that members submit
// timesheets against. Role scopes the task to submitters or supervisors.
type TimesheetTask struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	ContractID uint      `gorm:"not null;index" json:"contract_id"`
	Contract   *Contract `gorm:"foreignKey:ContractID" json:"contract,omitempty"`
	Title      string    `gorm:"not null;size:255" json:"title"`
	Details    string    `json:"details"`
	StartDate  time.Time  `gorm:"not null;type:date" json:"start_date"`
	DueDate    *time.Time `gorm:"type:date" json:"due_date"`
	Role       Role      `gorm:"not null;size:20" json:"role"`

	// A task template is either an external link or an uploaded file,
	// stored by reference.
	TemplateLink     string `gorm:"size:2048" json:"template_link"`
	TemplateFile     string `gorm:"size:512" json:"template_file"`
	TemplateFileName string `gorm:"size:255" json:"template_file_name"`

	Submissions []Submission `gorm:"foreignKey:TaskID;constraint:OnDelete:CASCADE" json:"submissions,omitempty"`
}
