package models

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"
)

const (
	moneyFractionDigits = 2
	moneyScale          = int64(100)
)

// Money represents a currency amount stored in minor units (hundredths of the
// major currency) to avoid floating point rounding issues. JSON encoding and
// string formatting expose the canonical decimal representation while all
// internal operations use the fixed-precision integer value.
type Money struct {
	minorUnits int64
}

// NewMoneyFromMinorUnits constructs a Money value from its minor-unit
// representation.
func NewMoneyFromMinorUnits(units int64) Money {
	return Money{minorUnits: units}
}

// MinorUnits exposes the internal integer representation.
func (m Money) MinorUnits() int64 {
	return m.minorUnits
}

// Add returns the sum of two Money values.
func (m Money) Add(other Money) Money {
	return Money{minorUnits: m.minorUnits + other.minorUnits}
}

// Sub returns the difference of two Money values.
func (m Money) Sub(other Money) Money {
	return Money{minorUnits: m.minorUnits - other.minorUnits}
}

// MulQuantity scales the amount by an item quantity.
func (m Money) MulQuantity(quantity int64) Money {
	return Money{minorUnits: m.minorUnits * quantity}
}

// Equal reports whether two amounts are exactly equal in minor units.
func (m Money) Equal(other Money) bool {
	return m.minorUnits == other.minorUnits
}

// IsZero reports whether the amount is exactly zero.
func (m Money) IsZero() bool {
	return m.minorUnits == 0
}

// DecimalString returns the canonical decimal representation with up to two
// fractional digits.
func (m Money) DecimalString() string {
	return formatMinorUnits(m.minorUnits)
}

// String implements fmt.Stringer.
func (m Money) String() string {
	return m.DecimalString()
}

// MarshalJSON encodes the fixed-precision amount as a JSON number.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.DecimalString()), nil
}

// UnmarshalJSON decodes a JSON number or string into the fixed-precision minor
// unit representation. A JSON null resets the value to zero.
func (m *Money) UnmarshalJSON(data []byte) error {
	if m == nil {
		return fmt.Errorf("models: cannot decode into nil Money pointer")
	}
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		*m = Money{}
		return nil
	}
	var raw string
	if data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("decode money string: %w", err)
		}
	} else {
		raw = trimmed
	}
	money, err := ParseMoney(raw)
	if err != nil {
		return err
	}
	*m = money
	return nil
}

// ParseMoney parses a human-readable decimal string into a Money value with up
// to two fractional digits.
func ParseMoney(value string) (Money, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return Money{}, fmt.Errorf("invalid money amount")
	}
	rat, ok := new(big.Rat).SetString(trimmed)
	if !ok {
		return Money{}, fmt.Errorf("invalid money amount")
	}
	rat.Mul(rat, big.NewRat(moneyScale, 1))
	if !rat.IsInt() {
		return Money{}, fmt.Errorf("amount supports up to %d decimal places", moneyFractionDigits)
	}
	numerator := rat.Num()
	if !numerator.IsInt64() {
		return Money{}, fmt.Errorf("money amount out of range")
	}
	return Money{minorUnits: numerator.Int64()}, nil
}

// MustParseMoney panics if the value cannot be parsed. It is intended for
// tests and static initialisation.
func MustParseMoney(value string) Money {
	money, err := ParseMoney(value)
	if err != nil {
		panic(err)
	}
	return money
}

func formatMinorUnits(units int64) string {
	negative := units < 0
	if negative {
		units = -units
	}
	major := units / moneyScale
	minor := units % moneyScale
	var builder strings.Builder
	if negative {
		builder.WriteByte('-')
	}
	builder.WriteString(fmt.Sprintf("%d", major))
	if minor == 0 {
		return builder.String()
	}
	builder.WriteByte('.')
	fraction := fmt.Sprintf("%0*d", moneyFractionDigits, minor)
	fraction = strings.TrimRight(fraction, "0")
	builder.WriteString(fraction)
	return builder.String()
}

// AssetKind identifies the shape of a marketplace asset. Display metadata is
// resolved once at ingestion instead of probing type-specific fields in every
// handler.
type AssetKind string

const (
	AssetKindDataset AssetKind = "dataset"
	AssetKindImage2D AssetKind = "image2d"
	AssetKindImage3D AssetKind = "image3d"
	AssetKindVideo   AssetKind = "video"
)

// ParseAssetKind validates a raw kind value.
func ParseAssetKind(value string) (AssetKind, error) {
	switch AssetKind(strings.ToLower(strings.TrimSpace(value))) {
	case AssetKindDataset:
		return AssetKindDataset, nil
	case AssetKindImage2D:
		return AssetKindImage2D, nil
	case AssetKindImage3D:
		return AssetKindImage3D, nil
	case AssetKindVideo:
		return AssetKindVideo, nil
	default:
		return "", fmt.Errorf("unknown asset kind %q", value)
	}
}

// AssetMetadata carries the display attributes resolved at ingestion time.
type AssetMetadata struct {
	Kind         AssetKind `json:"kind"`
	DisplayName  string    `json:"displayName"`
	ThumbnailURL string    `json:"thumbnailUrl,omitempty"`
	FileURL      string    `json:"fileUrl,omitempty"`
}

// DisplayNameFor returns the display name for an asset, falling back to the
// asset id when ingestion produced no name.
func (m AssetMetadata) DisplayNameFor(assetID string) string {
	if strings.TrimSpace(m.DisplayName) != "" {
		return m.DisplayName
	}
	return assetID
}

// CartItem is a priced asset sitting in a buyer's cart. It lives in the
// cartAssets collection, keyed by asset id, until settled or removed.
type CartItem struct {
	AssetID  string        `json:"assetId"`
	UserID   string        `json:"userId"`
	Price    Money         `json:"price"`
	Quantity int64         `json:"quantity"`
	Category string        `json:"category,omitempty"`
	Metadata AssetMetadata `json:"metadata"`
	AddedAt  time.Time     `json:"addedAt"`
}

// BuyNowItem mirrors CartItem for the immediate-purchase flow and lives in the
// buyNow collection.
type BuyNowItem struct {
	AssetID  string        `json:"assetId"`
	UserID   string        `json:"userId"`
	Price    Money         `json:"price"`
	Quantity int64         `json:"quantity"`
	Category string        `json:"category,omitempty"`
	Metadata AssetMetadata `json:"metadata"`
	AddedAt  time.Time     `json:"addedAt"`
}

// PurchasedAsset is the finalized ownership record in the buyAssets
// collection. Existence of a document for an asset id is the sole authority
// for "already owned".
type PurchasedAsset struct {
	GrantID       string        `json:"grantId"`
	AssetID       string        `json:"assetId"`
	BuyerUID      string        `json:"buyerUid"`
	Price         Money         `json:"price"`
	BoughtAt      time.Time     `json:"boughtAt"`
	SourceOrderID string        `json:"sourceOrderId,omitempty"`
	Source        string        `json:"source"`
	Status        string        `json:"status"`
	Metadata      AssetMetadata `json:"metadata"`
}

// Transaction status values. Transitions only move forward from pending.
const (
	TransactionPending   = "pending"
	TransactionCompleted = "completed"
	TransactionFailed    = "failed"
)

// TerminalTransactionStatus reports whether no further transition is allowed
// from the given status.
func TerminalTransactionStatus(status string) bool {
	return status == TransactionCompleted || status == TransactionFailed
}

// ValidTransactionStatus reports whether the value is a known status.
func ValidTransactionStatus(status string) bool {
	switch status {
	case TransactionPending, TransactionCompleted, TransactionFailed:
		return true
	default:
		return false
	}
}

// CustomerDetails identifies the buyer submitted to the payment gateway.
type CustomerDetails struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// TransactionItem is one priced line of an order.
type TransactionItem struct {
	AssetID  string `json:"assetId"`
	Name     string `json:"name"`
	Price    Money  `json:"price"`
	Quantity int64  `json:"quantity"`
}

// Subtotal returns price multiplied by quantity.
func (i TransactionItem) Subtotal() Money {
	return i.Price.MulQuantity(i.Quantity)
}

// Transaction is the checkout record in the transactions collection, keyed by
// order id. It is created once and afterwards mutated only through status
// updates; it is never deleted.
type Transaction struct {
	OrderID         string            `json:"orderId"`
	GrossAmount     Money             `json:"grossAmount"`
	CustomerDetails CustomerDetails   `json:"customerDetails"`
	Items           []TransactionItem `json:"items"`
	UID             string            `json:"uid"`
	Status          string            `json:"status"`
	PaymentToken    string            `json:"paymentToken"`
	ProviderRef     string            `json:"providerRef,omitempty"`
	Channel         string            `json:"channel,omitempty"`
	Source          string            `json:"source,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
	ExpiryTime      time.Time         `json:"expiryTime"`
}
