package services

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruralpay/ledger/internal/models"
)

func TestValidationHelper_ValidateStruct(t *testing.T) {
	vh := NewValidationHelper()

	t.Run("valid struct", func(t *testing.T) {
		valid := CreateAccountInput{TenantID: "t1", Name: "Cash"}
		assert.NoError(t, vh.ValidateStruct(&valid))
	})

	t.Run("invalid struct - missing required fields", func(t *testing.T) {
		invalid := SetAccountStatusInput{Status: "FROZEN"}

		err := vh.ValidateStruct(&invalid)
		assert.Error(t, err)

		validationErrors, ok := err.(validator.ValidationErrors)
		assert.True(t, ok)
		assert.Len(t, validationErrors, 3) // tenant_id, account_id, status
	})

	t.Run("entries are validated one by one", func(t *testing.T) {
		in := CreateTransactionInput{
			TenantID:  "t1",
			AccountID: "a1",
			Entries: []EntryInput{
				{Direction: models.DirectionDebit, Amount: 1},
				{Direction: "", Amount: 1},
			},
		}
		err := vh.ValidateStruct(&in)
		validationErrors, ok := err.(validator.ValidationErrors)
		require.True(t, ok)
		require.Len(t, validationErrors, 1)
		assert.Equal(t, "CreateTransactionInput.entries[1].direction", validationErrors[0].Namespace())
	})
}

func TestValidationHelper_ValidateInput(t *testing.T) {
	vh := NewValidationHelper()

	err := vh.ValidateInput(CreateTenantInput{})
	require.ErrorIs(t, err, models.ErrInvalidInput)

	var ierr *models.InputError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, "failed on 'required'", ierr.Fields["CreateTenantInput.name"])

	assert.NoError(t, vh.ValidateInput(CreateTenantInput{Name: "Acme"}))
}

func TestNewValidationHelper(t *testing.T) {
	vh := NewValidationHelper()
	assert.NotNil(t, vh)
	assert.NotNil(t, vh.validator)
}
