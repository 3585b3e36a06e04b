package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	ErrNotFound      = errors.New("ledger: not found")
	ErrAlreadyExists = errors.New("ledger: already exists")
	ErrInvalidInput  = errors.New("ledger: invalid input")

	// Validation rules. A *ValidationError matches ErrValidation and exactly one of these.
	ErrValidation            = errors.New("ledger: validation failed")
	ErrInsufficientEntries   = errors.New("ledger: insufficient entries")
	ErrInvalidAmount         = errors.New("ledger: invalid amount")
	ErrUnsupportedCurrency   = errors.New("ledger: unsupported currency")
	ErrUnbalancedTransaction = errors.New("ledger: unbalanced transaction")
	ErrAccountNotEligible    = errors.New("ledger: account not eligible")
	ErrInvalidHierarchy      = errors.New("ledger: invalid account hierarchy")
	ErrCyclicHierarchy       = errors.New("ledger: cyclic account hierarchy")
	ErrHierarchyCorrupt      = errors.New("ledger: account hierarchy corrupt")
	ErrInvalidTransition     = errors.New("ledger: invalid status transition")

	// Store errors. ErrContention is returned when a row lock could not be
	// acquired within the configured wait; ErrStatusConflict when a status
	// compare-and-swap matched no row.
	ErrContention     = errors.New("ledger: contention on locked row")
	ErrStatusConflict = errors.New("ledger: status changed concurrently")

	// ErrRetryable is the only error internal failures are surfaced as.
	ErrRetryable = errors.New("ledger: temporary failure, retry the request")
)

// IsRetryable reports whether the caller may retry the same request unchanged.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRetryable) || errors.Is(err, ErrContention)
}

// ValidationRule names the transaction rule a draft violated.
type ValidationRule string

const (
	RuleInsufficientEntries   ValidationRule = "InsufficientEntries"
	RuleInvalidAmount         ValidationRule = "InvalidAmount"
	RuleUnsupportedCurrency   ValidationRule = "UnsupportedCurrency"
	RuleUnbalancedTransaction ValidationRule = "UnbalancedTransaction"
	RuleAccountNotEligible    ValidationRule = "AccountNotEligible"
)

var ruleSentinels = map[ValidationRule]error{
	RuleInsufficientEntries:   ErrInsufficientEntries,
	RuleInvalidAmount:         ErrInvalidAmount,
	RuleUnsupportedCurrency:   ErrUnsupportedCurrency,
	RuleUnbalancedTransaction: ErrUnbalancedTransaction,
	RuleAccountNotEligible:    ErrAccountNotEligible,
}

// ValidationError describes the first rule a transaction draft violated.
// Difference is debits minus credits and is only set for UnbalancedTransaction.
type ValidationError struct {
	Rule       ValidationRule
	Message    string
	Difference int64
}

func NewValidationError(rule ValidationRule, format string, args ...any) *ValidationError {
	return &ValidationError{Rule: rule, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Rule == RuleUnbalancedTransaction {
		return fmt.Sprintf("ledger: %s(diff=%d): %s", e.Rule, e.Difference, e.Message)
	}
	return fmt.Sprintf("ledger: %s: %s", e.Rule, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation || target == ruleSentinels[e.Rule]
}

type HierarchyKind string

const (
	HierarchyInvalid HierarchyKind = "InvalidHierarchy"
	HierarchyCyclic  HierarchyKind = "CyclicHierarchy"
	HierarchyCorrupt HierarchyKind = "HierarchyCorrupt"
)

// HierarchyError reports a rejected or unreadable parent link.
type HierarchyError struct {
	Kind      HierarchyKind
	AccountID string
	ParentID  string
	Message   string
}

func (e *HierarchyError) Error() string {
	return fmt.Sprintf("ledger: %s: account %s, parent %s: %s", e.Kind, e.AccountID, e.ParentID, e.Message)
}

func (e *HierarchyError) Is(target error) bool {
	switch e.Kind {
	case HierarchyInvalid:
		return target == ErrInvalidHierarchy
	case HierarchyCyclic:
		// a cycle is a kind of invalid hierarchy
		return target == ErrCyclicHierarchy || target == ErrInvalidHierarchy
	case HierarchyCorrupt:
		return target == ErrHierarchyCorrupt
	}
	return false
}

// TransitionError is returned when a transaction is not in a state that allows
// the attempted transition.
type TransitionError struct {
	TransactionID string
	Current       TransactionStatus
	Attempted     TransactionStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("ledger: invalid transition of transaction %s from %s to %s", e.TransactionID, e.Current, e.Attempted)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// InputError wraps structural validation failures on a service input struct.
type InputError struct {
	Fields map[string]string
}

// NewInputError converts validator field errors into an InputError. Any other
// error is kept as a single "input" field.
func NewInputError(err error) *InputError {
	fields := make(map[string]string)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			fields[fe.Namespace()] = fmt.Sprintf("failed on '%s'", fe.Tag())
		}
	} else {
		fields["input"] = err.Error()
	}
	return &InputError{Fields: fields}
}

func (e *InputError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for f := range e.Fields {
		keys = append(keys, f)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, f := range keys {
		parts = append(parts, f+" "+e.Fields[f])
	}
	return "ledger: invalid input: " + strings.Join(parts, "; ")
}

func (e *InputError) Is(target error) bool {
	return target == ErrInvalidInput
}
