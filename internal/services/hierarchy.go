package services

import (
	"fmt"

	"github.com/ruralpay/ledger/internal/models"
)

// Hierarchy resolves parent links over one tenant's account snapshot. Every
// walk is bounded by the number of accounts in the snapshot, so a corrupted
// link graph is reported instead of looped on.
type Hierarchy struct {
	tenantID string
	accounts map[string]*models.Account
	children map[string][]string
}

// NewHierarchy indexes accounts. Accounts of other tenants are ignored.
func NewHierarchy(tenantID string, accounts []*models.Account) *Hierarchy {
	h := &Hierarchy{
		tenantID: tenantID,
		accounts: make(map[string]*models.Account, len(accounts)),
		children: make(map[string][]string),
	}
	for _, a := range accounts {
		if a.TenantID != tenantID {
			continue
		}
		h.accounts[a.ID] = a
	}
	// children in snapshot order for a stable breadth-first walk
	for _, a := range accounts {
		if _, ok := h.accounts[a.ID]; !ok {
			continue
		}
		if p := a.ParentID(); p != "" {
			h.children[p] = append(h.children[p], a.ID)
		}
	}
	return h
}

func (h *Hierarchy) Account(accountID string) (*models.Account, bool) {
	a, ok := h.accounts[accountID]
	return a, ok
}

func (h *Hierarchy) limit() int {
	return len(h.accounts)
}

// ValidateParent checks that accountID may hang under proposedParentID. An
// empty proposedParentID makes the account a root and is always valid.
func (h *Hierarchy) ValidateParent(tenantID, accountID, proposedParentID string) error {
	if proposedParentID == "" {
		return nil
	}
	if tenantID != h.tenantID {
		return &models.HierarchyError{
			Kind: models.HierarchyInvalid, AccountID: accountID, ParentID: proposedParentID,
			Message: "tenant does not match the hierarchy",
		}
	}
	if proposedParentID == accountID {
		return &models.HierarchyError{
			Kind: models.HierarchyCyclic, AccountID: accountID, ParentID: proposedParentID,
			Message: "account cannot be its own parent",
		}
	}
	if _, ok := h.accounts[proposedParentID]; !ok {
		return &models.HierarchyError{
			Kind: models.HierarchyInvalid, AccountID: accountID, ParentID: proposedParentID,
			Message: "parent account does not exist in tenant",
		}
	}

	current := proposedParentID
	for steps := 0; current != ""; steps++ {
		if steps > h.limit() {
			return h.corrupt(accountID, "parent chain exceeds account count")
		}
		if current == accountID {
			return &models.HierarchyError{
				Kind: models.HierarchyCyclic, AccountID: accountID, ParentID: proposedParentID,
				Message: "account is an ancestor of the proposed parent",
			}
		}
		a, ok := h.accounts[current]
		if !ok {
			return h.corrupt(accountID, fmt.Sprintf("dangling parent link to %s", current))
		}
		current = a.ParentID()
	}
	return nil
}

// AncestorsOf returns the parent chain of accountID, nearest first, ending at
// a root. The account itself is not included.
func (h *Hierarchy) AncestorsOf(accountID string) ([]string, error) {
	a, ok := h.accounts[accountID]
	if !ok {
		return nil, models.ErrNotFound
	}

	ancestors := make([]string, 0)
	seen := map[string]struct{}{accountID: {}}
	for current := a.ParentID(); current != ""; {
		if _, dup := seen[current]; dup || len(ancestors) >= h.limit() {
			return nil, h.corrupt(accountID, fmt.Sprintf("cycle through %s", current))
		}
		parent, ok := h.accounts[current]
		if !ok {
			return nil, h.corrupt(accountID, fmt.Sprintf("dangling parent link to %s", current))
		}
		seen[current] = struct{}{}
		ancestors = append(ancestors, current)
		current = parent.ParentID()
	}
	return ancestors, nil
}

// DescendantsOf returns every account below accountID, breadth first.
func (h *Hierarchy) DescendantsOf(accountID string) ([]string, error) {
	if _, ok := h.accounts[accountID]; !ok {
		return nil, models.ErrNotFound
	}

	descendants := make([]string, 0)
	seen := map[string]struct{}{accountID: {}}
	queue := append([]string(nil), h.children[accountID]...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if _, dup := seen[id]; dup || len(descendants) >= h.limit() {
			return nil, h.corrupt(accountID, fmt.Sprintf("cycle through %s", id))
		}
		seen[id] = struct{}{}
		descendants = append(descendants, id)
		queue = append(queue, h.children[id]...)
	}
	return descendants, nil
}

// IsDescendant reports whether accountID sits anywhere below ancestorID.
func (h *Hierarchy) IsDescendant(ancestorID, accountID string) (bool, error) {
	ancestors, err := h.AncestorsOf(accountID)
	if err != nil {
		return false, err
	}
	for _, id := range ancestors {
		if id == ancestorID {
			return true, nil
		}
	}
	return false, nil
}

func (h *Hierarchy) corrupt(accountID, msg string) error {
	return &models.HierarchyError{Kind: models.HierarchyCorrupt, AccountID: accountID, Message: msg}
}
