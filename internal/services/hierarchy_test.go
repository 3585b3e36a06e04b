package services

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruralpay/ledger/internal/models"
)

func acct(id, parent string) *models.Account {
	a := &models.Account{ID: id, TenantID: "t1", Name: id, Status: models.AccountStatusActive}
	if parent != "" {
		a.ParentAccountID = &parent
	}
	return a
}

// assets -> current -> cash
//        -> fixed
func sampleTree() []*models.Account {
	return []*models.Account{
		acct("assets", ""),
		acct("current", "assets"),
		acct("fixed", "assets"),
		acct("cash", "current"),
		acct("equity", ""),
	}
}

func TestHierarchy_ValidateParent(t *testing.T) {
	h := NewHierarchy("t1", sampleTree())

	tests := []struct {
		name    string
		account string
		parent  string
		wantErr error
	}{
		{"root is always valid", "cash", "", nil},
		{"valid move", "fixed", "current", nil},
		{"new account under existing parent", "new", "cash", nil},
		{"missing parent", "cash", "nope", models.ErrInvalidHierarchy},
		{"self parent", "cash", "cash", models.ErrCyclicHierarchy},
		{"descendant as parent", "assets", "cash", models.ErrCyclicHierarchy},
		{"direct child as parent", "current", "cash", models.ErrCyclicHierarchy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.ValidateParent("t1", tt.account, tt.parent)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("cycle is also an invalid hierarchy", func(t *testing.T) {
		err := h.ValidateParent("t1", "assets", "cash")
		assert.ErrorIs(t, err, models.ErrInvalidHierarchy)
		var herr *models.HierarchyError
		require.ErrorAs(t, err, &herr)
		assert.Equal(t, models.HierarchyCyclic, herr.Kind)
	})

	t.Run("parent in another tenant", func(t *testing.T) {
		foreign := acct("foreign", "")
		foreign.TenantID = "t2"
		h := NewHierarchy("t1", append(sampleTree(), foreign))
		assert.ErrorIs(t, h.ValidateParent("t1", "cash", "foreign"), models.ErrInvalidHierarchy)
	})

	t.Run("corrupted chain is reported", func(t *testing.T) {
		h := NewHierarchy("t1", []*models.Account{acct("a", "b"), acct("b", "a"), acct("c", "")})
		assert.ErrorIs(t, h.ValidateParent("t1", "c", "a"), models.ErrHierarchyCorrupt)
	})
}

func TestHierarchy_AncestorsOf(t *testing.T) {
	h := NewHierarchy("t1", sampleTree())

	t.Run("nearest first up to the root", func(t *testing.T) {
		ancestors, err := h.AncestorsOf("cash")
		require.NoError(t, err)
		assert.Equal(t, []string{"current", "assets"}, ancestors)
	})

	t.Run("root has none", func(t *testing.T) {
		ancestors, err := h.AncestorsOf("equity")
		require.NoError(t, err)
		assert.Empty(t, ancestors)
	})

	t.Run("unknown account", func(t *testing.T) {
		_, err := h.AncestorsOf("nope")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("cycle terminates as corrupt", func(t *testing.T) {
		h := NewHierarchy("t1", []*models.Account{acct("a", "b"), acct("b", "c"), acct("c", "a")})
		_, err := h.AncestorsOf("a")
		assert.ErrorIs(t, err, models.ErrHierarchyCorrupt)
	})

	t.Run("dangling link is corrupt", func(t *testing.T) {
		h := NewHierarchy("t1", []*models.Account{acct("a", "gone")})
		_, err := h.AncestorsOf("a")
		assert.ErrorIs(t, err, models.ErrHierarchyCorrupt)
	})

	t.Run("no duplicates on a long chain", func(t *testing.T) {
		accounts := []*models.Account{acct("n0", "")}
		for i := 1; i < 50; i++ {
			accounts = append(accounts, acct(nodeID(i), nodeID(i-1)))
		}
		h := NewHierarchy("t1", accounts)
		ancestors, err := h.AncestorsOf("n49")
		require.NoError(t, err)
		assert.Len(t, ancestors, 49)
		assert.Equal(t, "n0", ancestors[len(ancestors)-1])
		seen := map[string]bool{}
		for _, id := range ancestors {
			assert.False(t, seen[id], "duplicate ancestor %s", id)
			seen[id] = true
		}
	})
}

func nodeID(i int) string {
	return fmt.Sprintf("n%d", i)
}

func TestHierarchy_DescendantsOf(t *testing.T) {
	h := NewHierarchy("t1", sampleTree())

	descendants, err := h.DescendantsOf("assets")
	require.NoError(t, err)
	assert.Equal(t, []string{"current", "fixed", "cash"}, descendants)

	leaf, err := h.DescendantsOf("cash")
	require.NoError(t, err)
	assert.Empty(t, leaf)

	_, err = h.DescendantsOf("nope")
	assert.ErrorIs(t, err, models.ErrNotFound)

	below, err := h.IsDescendant("assets", "cash")
	require.NoError(t, err)
	assert.True(t, below)

	below, err = h.IsDescendant("cash", "assets")
	require.NoError(t, err)
	assert.False(t, below)
}
