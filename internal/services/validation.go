package services

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ruralpay/ledger/internal/models"
)

// ValidationHelper provides shared structural validation of service inputs
type ValidationHelper struct {
	validator *validator.Validate
}

// NewValidationHelper creates a new validation helper. Field errors are keyed
// by json name so they line up with request bodies.
func NewValidationHelper() *ValidationHelper {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return &ValidationHelper{validator: v}
}

// ValidateStruct validates a struct and returns validation errors
func (vh *ValidationHelper) ValidateStruct(s any) error {
	return vh.validator.Struct(s)
}

// ValidateInput is ValidateStruct with failures wrapped as *models.InputError.
func (vh *ValidationHelper) ValidateInput(s any) error {
	if err := vh.validator.Struct(s); err != nil {
		return models.NewInputError(err)
	}
	return nil
}
