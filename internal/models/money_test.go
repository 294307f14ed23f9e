package models

import (
	"encoding/json"
	"testing"
)

func TestParseMoneyValid(t *testing.T) {
	cases := []struct {
		name  string
		input string
		units int64
	}{
		{name: "zero", input: "0", units: 0},
		{name: "integer", input: "42", units: 4200},
		{name: "fraction", input: "5.5", units: 550},
		{name: "maxFraction", input: "0.25", units: 25},
		{name: "negative", input: "-1.25", units: -125},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			money, err := ParseMoney(tc.input)
			if err != nil {
				t.Fatalf("ParseMoney(%q) returned error: %v", tc.input, err)
			}
			if money.MinorUnits() != tc.units {
				t.Fatalf("expected %d minor units, got %d", tc.units, money.MinorUnits())
			}
			if got := money.DecimalString(); got != tc.input {
				t.Fatalf("DecimalString mismatch: want %q, got %q", tc.input, got)
			}
		})
	}
}

func TestParseMoneyInvalid(t *testing.T) {
	inputs := []string{"", "abc", "1.001", "0.999999"}
	for _, input := range inputs {
		if _, err := ParseMoney(input); err == nil {
			t.Fatalf("expected error for %q", input)
		}
	}
}

func TestMoneyJSONRoundTrip(t *testing.T) {
	original := MustParseMoney("12.34")
	payload, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(payload) != "12.34" {
		t.Fatalf("unexpected JSON encoding: %s", payload)
	}
	var decoded Money
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !decoded.Equal(original) {
		t.Fatalf("round trip mismatch: want %s, got %s", original, decoded)
	}
	var fromString Money
	if err := json.Unmarshal([]byte(`"10000"`), &fromString); err != nil {
		t.Fatalf("unmarshal string: %v", err)
	}
	if fromString.MinorUnits() != 1000000 {
		t.Fatalf("unexpected minor units: %d", fromString.MinorUnits())
	}
}

func TestMoneyArithmetic(t *testing.T) {
	a := MustParseMoney("1000")
	b := MustParseMoney("500")
	if got := a.Add(b); got.MinorUnits() != 150000 {
		t.Fatalf("Add: expected 150000 minor units, got %d", got.MinorUnits())
	}
	if got := a.MulQuantity(2); got.MinorUnits() != 200000 {
		t.Fatalf("MulQuantity: expected 200000 minor units, got %d", got.MinorUnits())
	}
}

func TestTransactionStatusHelpers(t *testing.T) {
	if !TerminalTransactionStatus(TransactionCompleted) || !TerminalTransactionStatus(TransactionFailed) {
		t.Fatal("completed and failed must be terminal")
	}
	if TerminalTransactionStatus(TransactionPending) {
		t.Fatal("pending must not be terminal")
	}
	if !ValidTransactionStatus(TransactionPending) {
		t.Fatal("pending must be valid")
	}
	if ValidTransactionStatus("refunded") {
		t.Fatal("unknown status must be invalid")
	}
}

func TestParseAssetKind(t *testing.T) {
	if kind, err := ParseAssetKind(" Image2D "); err != nil || kind != AssetKindImage2D {
		t.Fatalf("expected image2d, got %q (%v)", kind, err)
	}
	if _, err := ParseAssetKind("hologram"); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}
