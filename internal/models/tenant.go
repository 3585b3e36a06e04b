package models

import (
	"time"
)

type TenantStatus string

const (
	TenantStatusActive   TenantStatus = "ACTIVE"
	TenantStatusInactive TenantStatus = "INACTIVE"
)

func (s TenantStatus) Valid() bool {
	return s == TenantStatusActive || s == TenantStatusInactive
}

// Tenant is the isolation boundary for all ledger data. Tenants are never deleted.
type Tenant struct {
	ID        string       `json:"id" db:"id"`
	Name      string       `json:"name" db:"name"`
	Status    TenantStatus `json:"status" db:"status"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt time.Time    `json:"updated_at" db:"updated_at"`
}

func (t *Tenant) Active() bool {
	return t != nil && t.Status == TenantStatusActive
}
