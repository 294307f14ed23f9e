// Package market implements the purchase settlement subsystem: price
// reconciliation, checkout transaction bookkeeping, and the atomic movement
// of cart and buy-now records into finalized ownership records.
package market

import (
	"assetmarket/internal/models"
)

// LineItem is the priced input to reconciliation.
type LineItem struct {
	Price    models.Money
	Quantity int64
}

// Reconcile verifies that the sum of price times quantity over all items
// equals the declared amount, in exact minor units. It is pure and runs
// before any gateway call or store write, so a mismatched order never leaves
// the process.
func Reconcile(items []LineItem, declared models.Money) error {
	var computed models.Money
	for _, item := range items {
		computed = computed.Add(item.Price.MulQuantity(item.Quantity))
	}
	if !computed.Equal(declared) {
		return &MismatchError{Expected: computed, Got: declared}
	}
	return nil
}
