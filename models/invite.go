package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Invite is a pending, single-use offer to join a contract, addressed to
// an email that had no account at invite time. All role-specific fields
// are snapshotted here and materialized into the roster on acceptance.
type Invite struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Token      string    `gorm:"uniqueIndex;not null;size:64" json:"token"`
	ContractID uint      `gorm:"not null;index" json:"contract_id"`
	Contract   *Contract `gorm:"foreignKey:ContractID" json:"contract,omitempty"`
	Email      string    `gorm:"not null;index;size:255" json:"email"`
	Role       Role      `gorm:"not null;size:20" json:"role"`
	Label      *Label    `gorm:"size:20" json:"label"`
	StartDate  *time.Time `gorm:"type:date" json:"start_date"`
	DueDate    *time.Time `gorm:"type:date" json:"due_date"`

	// SupervisorIDs holds the JSON-encoded supervisor id set snapshotted
	// at invite time. Decoded via SupervisorIDList.
	SupervisorIDs string `gorm:"type:text" json:"-"`

	InvitedBy uint  `gorm:"not null" json:"invited_by"`
	Inviter   *User `gorm:"foreignKey:InvitedBy" json:"inviter,omitempty"`
	Consumed  bool  `gorm:"not null;default:false" json:"consumed"`
}

// NewInviteToken returns an unguessable opaque token. The token is the
// capability: anyone holding it may view the invite.
func NewInviteToken() string {
	return uuid.NewString()
}

func (i *Invite) SetSupervisorIDs(ids []uint) error {
	if len(ids) == 0 {
		i.SupervisorIDs = ""
		return nil
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	i.SupervisorIDs = string(raw)
	return nil
}

func (i *Invite) SupervisorIDList() []uint {
	if i.SupervisorIDs == "" {
		return nil
	}
	var ids []uint
	if err := json.Unmarshal([]byte(i.SupervisorIDs), &ids); err != nil {
		return nil
	}
	return ids
}
