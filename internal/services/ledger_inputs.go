package services

import (
	"github.com/ruralpay/ledger/internal/models"
)

// Inputs accepted by LedgerService. Struct tags cover shape only; the ledger
// rules (entry count, amounts, balance, eligibility) are checked by
// TransactionValidator so they report their own error kinds.

type CreateTenantInput struct {
	ID   string `json:"id" validate:"omitempty,max=64"`
	Name string `json:"name" validate:"required,max=200"`
}

type SetTenantStatusInput struct {
	TenantID string              `json:"tenant_id" validate:"required,max=64"`
	Status   models.TenantStatus `json:"status" validate:"required,oneof=ACTIVE INACTIVE"`
}

type CreateAccountInput struct {
	TenantID        string `json:"tenant_id" validate:"required,max=64"`
	ID              string `json:"id" validate:"omitempty,max=64"`
	Name            string `json:"name" validate:"required,max=200"`
	ParentAccountID string `json:"parent_account_id" validate:"omitempty,max=64"`
}

// ReparentAccountInput moves an account. An empty ParentAccountID makes it a root.
type ReparentAccountInput struct {
	TenantID        string `json:"tenant_id" validate:"required,max=64"`
	AccountID       string `json:"account_id" validate:"required,max=64"`
	ParentAccountID string `json:"parent_account_id" validate:"omitempty,max=64"`
}

type SetAccountStatusInput struct {
	TenantID  string               `json:"tenant_id" validate:"required,max=64"`
	AccountID string               `json:"account_id" validate:"required,max=64"`
	Status    models.AccountStatus `json:"status" validate:"required,oneof=ACTIVE INACTIVE"`
}

// EntryInput is one leg of a new transaction. AccountID defaults to the
// transaction's account and otherwise must name one of its descendants.
type EntryInput struct {
	AccountID string           `json:"account_id" validate:"omitempty,max=64"`
	Direction models.Direction `json:"direction" validate:"required,oneof=DEBIT CREDIT"`
	Amount    int64            `json:"amount"`
}

type CreateTransactionInput struct {
	TenantID   string       `json:"tenant_id" validate:"required,max=64"`
	AccountID  string       `json:"account_id" validate:"required,max=64"`
	Memo       string       `json:"memo" validate:"max=500"`
	Currency   string       `json:"currency" validate:"max=16"`
	ExternalID string       `json:"external_id" validate:"omitempty,max=128"`
	Entries    []EntryInput `json:"entries" validate:"dive"`
}

type TransitionInput struct {
	TenantID      string `json:"tenant_id" validate:"required,max=64"`
	TransactionID string `json:"transaction_id" validate:"required,max=64"`
}

type BalanceInput struct {
	TenantID           string `json:"tenant_id" validate:"required,max=64"`
	AccountID          string `json:"account_id" validate:"required,max=64"`
	IncludeDescendants bool   `json:"include_descendants"`
}
