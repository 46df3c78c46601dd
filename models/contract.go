package models

import (
	"time"
)

// Contract is the tenant-scoping unit: membership, tasks, invites and
// submissions all hang off one contract.
type Contract struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatorID uint      `gorm:"not null;index" json:"creator_id"`
	Creator   User      `gorm:"foreignKey:CreatorID" json:"creator,omitempty"`
	Name      string    `gorm:"not null;size:255" json:"name"`
	Details   string    `gorm:"not null" json:"details"`

	Members []ContractMember `gorm:"foreignKey:ContractID;constraint:OnDelete:CASCADE" json:"members,omitempty"`
	Invites []Invite         `gorm:"foreignKey:ContractID;constraint:OnDelete:CASCADE" json:"invites,omitempty"`
}
