package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInsufficientStockError(t *testing.T) {
	err := error(&InsufficientStockError{ItemID: "i-1", Requested: 5, Available: 3})

	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.NotErrorIs(t, err, ErrInvalidQuantity)
	assert.Equal(t, "INSUFFICIENT_STOCK", Code(err))
	assert.Contains(t, err.Error(), "requested 5, available 3")

	var target *InsufficientStockError
	wrapped := fmt.Errorf("reserve: %w", err)
	assert.True(t, errors.As(wrapped, &target))
	assert.Equal(t, 3, target.Available)
}

func TestQuantityConstraintError(t *testing.T) {
	t.Run("with upper bound", func(t *testing.T) {
		max := 4
		err := &QuantityConstraintError{ItemID: "i-1", Requested: 9, Min: 2, Max: &max}
		assert.ErrorIs(t, err, ErrInvalidQuantity)
		assert.Equal(t, "quantity 9 for item i-1 must be between 2 and 4", err.Error())
	})

	t.Run("without upper bound", func(t *testing.T) {
		err := &QuantityConstraintError{ItemID: "i-1", Requested: 0, Min: 1}
		assert.Equal(t, "quantity 0 for item i-1 must be at least 1", err.Error())
	})
}

func TestCode(t *testing.T) {
	assert.Equal(t, "INVALID_INPUT", Code(Invalid("qty must be positive")))
	assert.Equal(t, "INVALID_STATE", Code(State("order is %s", "completed")))
	assert.Equal(t, "ALREADY_ASSIGNED", Code(fmt.Errorf("assign: %w", ErrAlreadyAssigned)))
	assert.Equal(t, "", Code(errors.New("connection reset")))
}
