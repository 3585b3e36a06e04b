package models

import (
	"time"
)

type AccountStatus string

const (
	AccountStatusActive   AccountStatus = "ACTIVE"
	AccountStatusInactive AccountStatus = "INACTIVE"
)

func (s AccountStatus) Valid() bool {
	return s == AccountStatusActive || s == AccountStatusInactive
}

// Account is a named ledger bucket scoped to a tenant. ParentAccountID, when set,
// references another account of the same tenant.
type Account struct {
	ID              string        `json:"id" db:"id"`
	TenantID        string        `json:"tenant_id" db:"tenant_id"`
	Name            string        `json:"name" db:"name"`
	Status          AccountStatus `json:"status" db:"status"`
	ParentAccountID *string       `json:"parent_account_id,omitempty" db:"parent_account_id"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at" db:"updated_at"`
}

func (a *Account) Active() bool {
	return a != nil && a.Status == AccountStatusActive
}

// ParentID returns the parent account id or "" for a root account.
func (a *Account) ParentID() string {
	if a == nil || a.ParentAccountID == nil {
		return ""
	}
	return *a.ParentAccountID
}

func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	if a.ParentAccountID != nil {
		p := *a.ParentAccountID
		c.ParentAccountID = &p
	}
	return &c
}
