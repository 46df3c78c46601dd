package models

import "fmt"

// Role is a user's role within a single contract. Roles are per-contract:
// the same user can be an owner of one contract and a submitter on another.
type Role string

const (
	RoleOwner      Role = "owner"
	RoleSubmitter  Role = "submitter"
	RoleSupervisor Role = "supervisor"
)

func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleSubmitter, RoleSupervisor:
		return true
	}
	return false
}

// ParseRole converts a wire value into a Role, rejecting anything outside
// the closed set so typoed role strings fail loudly instead of silently
// matching nothing.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("invalid role %q", s)
	}
	return r, nil
}

// Label sub-classifies a submitter. One user can hold several submitter
// entries on the same contract, one per label.
type Label string

const (
	LabelTA     Label = "TA"
	LabelAA     Label = "AA"
	LabelIntern Label = "Intern"
)

func (l Label) Valid() bool {
	switch l {
	case LabelTA, LabelAA, LabelIntern:
		return true
	}
	return false
}

func ParseLabel(s string) (Label, error) {
	l := Label(s)
	if !l.Valid() {
		return "", fmt.Errorf("invalid label %q", s)
	}
	return l, nil
}

// ApprovalStatus is the per-supervisor decision state as well as the
// aggregated overall status of a submission.
type ApprovalStatus string

const (
	StatusPending  ApprovalStatus = "pending"
	StatusApproved ApprovalStatus = "approved"
	StatusRejected ApprovalStatus = "rejected"
)

func (s ApprovalStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

func ParseApprovalStatus(s string) (ApprovalStatus, error) {
	st := ApprovalStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("invalid status %q", s)
	}
	return st, nil
}
