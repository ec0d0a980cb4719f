package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorsIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("post movement: %w", NewInsufficientStock("ITEM/WH/", "65.0000", "60.0000"))

	assert.True(t, errors.Is(err, ErrInsufficientStock))
	assert.False(t, errors.Is(err, ErrInsufficientReservation))
	assert.True(t, IsInsufficientStock(err))
	assert.Equal(t, http.StatusUnprocessableEntity, GetHTTPStatus(err))
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"invalid movement", NewInvalidMovement("quantity must be positive"), CodeInvalidMovement},
		{"already cancelled", NewAlreadyCancelled("e1"), CodeAlreadyCancelled},
		{"negative", NewNegativeQuantity("below zero"), CodeNegativeQuantity},
		{"foreign", errors.New("boom"), CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CodeOf(tt.err))
		})
	}
}

func TestWithDetailAndCause(t *testing.T) {
	cause := errors.New("pg down")
	err := NewInternal(cause).WithDetail("op", "append")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "append", err.Details["op"])
	assert.Contains(t, err.Error(), "pg down")
}
