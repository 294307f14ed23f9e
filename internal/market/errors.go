package market

import (
	"errors"
	"fmt"

	"assetmarket/internal/models"
)

var (
	// ErrInvalidInput marks malformed or incomplete request data.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidTransition marks a status change away from a terminal
	// transaction state.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrStore marks a persistence failure. Nothing from the failing
	// operation is applied.
	ErrStore = errors.New("store error")
)

// MismatchError reports a price reconciliation failure: the sum of item
// subtotals does not equal the externally declared amount.
type MismatchError struct {
	Expected models.Money
	Got      models.Money
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("gross amount mismatch: expected %s, got %s", e.Expected, e.Got)
}

// DuplicateError reports an attempt to settle an asset that already has an
// ownership record. AssetID is empty when the duplicate was only detected by
// the storage layer at commit time.
type DuplicateError struct {
	AssetID string
}

func (e *DuplicateError) Error() string {
	if e.AssetID == "" {
		return "asset already settled"
	}
	return fmt.Sprintf("asset %s already settled", e.AssetID)
}

// NotFoundError reports a referenced document that does not exist.
type NotFoundError struct {
	Ref string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.Ref)
}
