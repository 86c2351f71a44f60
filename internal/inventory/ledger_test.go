package inventory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/storefront-ledger/internal/apperr"
	"github.com/ariefcatur/storefront-ledger/internal/catalog"
)

func TestReserve(t *testing.T) {
	t.Run("holds available stock", func(t *testing.T) {
		it := catalog.Item{ID: "i-1", Quantity: 10}
		require.NoError(t, Reserve(&it, 7))
		assert.Equal(t, 7, it.ReservedQuantity)
		assert.Equal(t, 3, it.AvailableQuantity())
	})

	t.Run("rejects more than available and leaves item unchanged", func(t *testing.T) {
		it := catalog.Item{ID: "i-1", Quantity: 10, ReservedQuantity: 7}
		err := Reserve(&it, 5)

		var se *apperr.InsufficientStockError
		require.ErrorAs(t, err, &se)
		assert.Equal(t, 5, se.Requested)
		assert.Equal(t, 3, se.Available)
		assert.Equal(t, 7, it.ReservedQuantity)
	})

	t.Run("rejects non-positive quantities", func(t *testing.T) {
		it := catalog.Item{ID: "i-1", Quantity: 10}
		assert.ErrorIs(t, Reserve(&it, 0), apperr.ErrInvalidInput)
		assert.ErrorIs(t, Reserve(&it, -1), apperr.ErrInvalidInput)
		assert.Equal(t, 0, it.ReservedQuantity)
	})
}

func TestRelease(t *testing.T) {
	it := catalog.Item{Quantity: 10, ReservedQuantity: 4}
	Release(&it, 3)
	assert.Equal(t, 1, it.ReservedQuantity)

	Release(&it, 5)
	assert.Equal(t, 0, it.ReservedQuantity, "over-release clamps at zero")
}

func TestReserveThenRelease_RestoresAvailability(t *testing.T) {
	for _, qty := range []int{1, 3, 6} {
		it := catalog.Item{Quantity: 6, ReservedQuantity: 0}
		before := it.AvailableQuantity()
		require.NoError(t, Reserve(&it, qty))
		Release(&it, qty)
		assert.Equal(t, before, it.AvailableQuantity())
	}
}

func TestConsume(t *testing.T) {
	t.Run("removes stock and its reservation", func(t *testing.T) {
		it := catalog.Item{ID: "i-1", Quantity: 10, ReservedQuantity: 4}
		require.NoError(t, Consume(&it, 4))
		assert.Equal(t, 6, it.Quantity)
		assert.Equal(t, 0, it.ReservedQuantity)
	})

	t.Run("clears at most the reserved amount", func(t *testing.T) {
		it := catalog.Item{ID: "i-1", Quantity: 10, ReservedQuantity: 2}
		require.NoError(t, Consume(&it, 5))
		assert.Equal(t, 5, it.Quantity)
		assert.Equal(t, 0, it.ReservedQuantity)
	})

	t.Run("keeps other reservations", func(t *testing.T) {
		it := catalog.Item{ID: "i-1", Quantity: 10, ReservedQuantity: 8}
		require.NoError(t, Consume(&it, 3))
		assert.Equal(t, 7, it.Quantity)
		assert.Equal(t, 5, it.ReservedQuantity)
		assert.LessOrEqual(t, it.ReservedQuantity, it.Quantity)
	})

	t.Run("fails beyond on-hand quantity", func(t *testing.T) {
		it := catalog.Item{ID: "i-1", Quantity: 2, ReservedQuantity: 2}
		err := Consume(&it, 3)
		assert.ErrorIs(t, err, apperr.ErrInsufficientStock)
		assert.Equal(t, 2, it.Quantity)
		assert.Equal(t, 2, it.ReservedQuantity)
	})
}
