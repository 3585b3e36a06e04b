package models

import (
	"time"
)

type Direction string

const (
	DirectionDebit  Direction = "DEBIT"
	DirectionCredit Direction = "CREDIT"
)

type TransactionStatus string

const (
	StatusPending   TransactionStatus = "PENDING"
	StatusPosted    TransactionStatus = "POSTED"
	StatusCancelled TransactionStatus = "CANCELLED"
)

// Terminal reports whether no further transition is allowed out of s.
func (s TransactionStatus) Terminal() bool {
	return s == StatusPosted || s == StatusCancelled
}

// Entry is one leg of a transaction. Amount is in the smallest currency unit
// (cents) and is always positive; Direction carries the sign.
type Entry struct {
	ID            string    `json:"id" db:"id"`
	TransactionID string    `json:"transaction_id" db:"transaction_id"`
	Position      int       `json:"position" db:"position"`
	AccountID     string    `json:"account_id" db:"account_id"`
	Direction     Direction `json:"direction" db:"direction"`
	Amount        int64     `json:"amount" db:"amount"`
}

// Transaction is a group of entries owned by one account. Entries are a
// composition: they are written and read together with their header.
type Transaction struct {
	ID          string            `json:"id" db:"id"`
	TenantID    string            `json:"tenant_id" db:"tenant_id"`
	AccountID   string            `json:"account_id" db:"account_id"`
	Memo        string            `json:"memo" db:"memo"`
	Currency    string            `json:"currency" db:"currency"`
	ExternalID  string            `json:"external_id" db:"external_id"`
	Status      TransactionStatus `json:"status" db:"status"`
	Entries     []Entry           `json:"entries"`
	CreatedAt   time.Time         `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at" db:"updated_at"`
	PostedAt    *time.Time        `json:"posted_at,omitempty" db:"posted_at"`
	CancelledAt *time.Time        `json:"cancelled_at,omitempty" db:"cancelled_at"`
}

func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	c := *t
	c.Entries = append([]Entry(nil), t.Entries...)
	if t.PostedAt != nil {
		p := *t.PostedAt
		c.PostedAt = &p
	}
	if t.CancelledAt != nil {
		p := *t.CancelledAt
		c.CancelledAt = &p
	}
	return &c
}

// PostedEntry is an entry of a POSTED transaction, as folded by the balance projector.
type PostedEntry struct {
	TransactionID string    `db:"transaction_id"`
	AccountID     string    `db:"account_id"`
	Direction     Direction `db:"direction"`
	Amount        int64     `db:"amount"`
}
