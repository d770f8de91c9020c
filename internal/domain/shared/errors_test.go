package shared

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKindPredicates(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		isValidation bool
		isNotFound   bool
		isConflict   bool
	}{
		{
			name:         "validation error",
			err:          NewValidationError("INVALID_AMOUNT", "amount must be positive"),
			isValidation: true,
		},
		{
			name:       "not found error",
			err:        NewNotFoundError("INVOICE_NOT_FOUND", "invoice not found"),
			isNotFound: true,
		},
		{
			name:       "conflict error",
			err:        NewConflictError("EXCEEDS_OUTSTANDING", "allocation exceeds outstanding"),
			isConflict: true,
		},
		{
			name: "internal error",
			err:  NewDomainError("DB_FAILURE", "connection lost"),
		},
		{
			name: "plain error",
			err:  fmt.Errorf("some error"),
		},
		{
			name:       "wrapped domain error",
			err:        fmt.Errorf("saving invoice: %w", NewNotFoundError("INVOICE_NOT_FOUND", "invoice not found")),
			isNotFound: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.isValidation, IsValidation(tt.err))
			assert.Equal(t, tt.isNotFound, IsNotFound(tt.err))
			assert.Equal(t, tt.isConflict, IsConflict(tt.err))
		})
	}
}

func TestDomainErrorMessage(t *testing.T) {
	err := NewConflictError("DUPLICATE_REFERENCE", "Reference number PAY-1 already exists")
	assert.Equal(t, "Reference number PAY-1 already exists", err.Error())
	assert.Equal(t, "DUPLICATE_REFERENCE", err.Code)
	assert.Equal(t, ErrorKindConflict, err.Kind)
}
