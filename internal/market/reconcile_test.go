package market

import (
	"errors"
	"testing"

	"assetmarket/internal/models"
)

func TestReconcileMatchingAmount(t *testing.T) {
	items := []LineItem{
		{Price: models.MustParseMoney("1000"), Quantity: 2},
		{Price: models.MustParseMoney("500"), Quantity: 1},
	}
	if err := Reconcile(items, models.MustParseMoney("2500")); err != nil {
		t.Fatalf("expected reconciliation to pass: %v", err)
	}
}

func TestReconcileMismatchReportsBothAmounts(t *testing.T) {
	items := []LineItem{
		{Price: models.MustParseMoney("1000"), Quantity: 2},
		{Price: models.MustParseMoney("500"), Quantity: 1},
	}
	err := Reconcile(items, models.MustParseMoney("2000"))
	if err == nil {
		t.Fatal("expected mismatch error")
	}
	var mismatch *MismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected MismatchError, got %T", err)
	}
	if !mismatch.Expected.Equal(models.MustParseMoney("2500")) {
		t.Fatalf("unexpected expected amount: %s", mismatch.Expected)
	}
	if !mismatch.Got.Equal(models.MustParseMoney("2000")) {
		t.Fatalf("unexpected got amount: %s", mismatch.Got)
	}
}

func TestReconcileEmptyItemsMatchZeroOnly(t *testing.T) {
	if err := Reconcile(nil, models.Money{}); err != nil {
		t.Fatalf("empty items should reconcile against zero: %v", err)
	}
	if err := Reconcile(nil, models.MustParseMoney("1")); err == nil {
		t.Fatal("expected mismatch for non-zero declared amount")
	}
}

func TestReconcileExactMinorUnits(t *testing.T) {
	// 0.10 + 0.20 must equal exactly 0.30 in minor units; no float drift.
	items := []LineItem{
		{Price: models.MustParseMoney("0.10"), Quantity: 1},
		{Price: models.MustParseMoney("0.20"), Quantity: 1},
	}
	if err := Reconcile(items, models.MustParseMoney("0.30")); err != nil {
		t.Fatalf("minor-unit sum must be exact: %v", err)
	}
}
