package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"assetmarket/internal/models"
	"assetmarket/internal/store"
)

// SourceCollection names a settlement source.
type SourceCollection string

const (
	SourceCart   SourceCollection = store.CollectionCartAssets
	SourceBuyNow SourceCollection = store.CollectionBuyNow
)

// ParseSourceCollection validates a raw source name.
func ParseSourceCollection(value string) (SourceCollection, error) {
	switch SourceCollection(strings.TrimSpace(value)) {
	case SourceCart:
		return SourceCart, nil
	case SourceBuyNow:
		return SourceBuyNow, nil
	default:
		return "", fmt.Errorf("%w: unknown source collection %q", ErrInvalidInput, value)
	}
}

// AssetRef identifies one pending record to settle.
type AssetRef struct {
	Source   SourceCollection
	AssetID  string
	BuyerUID string
	// OrderID links the resulting ownership record back to its checkout
	// transaction. Optional.
	OrderID string
}

// Engine converts pending cart and buy-now records into finalized ownership
// records. A settlement request is strict all-or-nothing: an already-owned
// asset or a missing source document aborts the whole request, and all writes
// land in one atomic batch.
type Engine struct {
	store  store.Store
	logger *slog.Logger
	now    func() time.Time
}

// EngineConfig wires the settlement engine's dependencies.
type EngineConfig struct {
	Store  store.Store
	Logger *slog.Logger
	Now    func() time.Time
}

// NewEngine builds a settlement engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Engine{store: cfg.Store, logger: logger, now: now}, nil
}

type stagedSettlement struct {
	ref    AssetRef
	record models.PurchasedAsset
}

// Settle moves every referenced asset into buyAssets and removes its source
// document, atomically. It returns the number of newly settled assets.
//
// The ownership check and the batch commit are not covered by a cross-request
// lock; two racing calls for the same asset both pass the check, and the
// loser's batch fails on the create-if-absent destination write instead of
// granting the asset twice.
func (e *Engine) Settle(ctx context.Context, refs []AssetRef) (int, error) {
	if len(refs) == 0 {
		return 0, fmt.Errorf("%w: no asset references", ErrInvalidInput)
	}
	seen := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		if strings.TrimSpace(ref.AssetID) == "" {
			return 0, fmt.Errorf("%w: asset id required", ErrInvalidInput)
		}
		if strings.TrimSpace(ref.BuyerUID) == "" {
			return 0, fmt.Errorf("%w: buyer uid required for asset %s", ErrInvalidInput, ref.AssetID)
		}
		if ref.Source != SourceCart && ref.Source != SourceBuyNow {
			return 0, fmt.Errorf("%w: unknown source collection %q", ErrInvalidInput, ref.Source)
		}
		if _, dup := seen[ref.AssetID]; dup {
			return 0, fmt.Errorf("%w: asset %s referenced twice", ErrInvalidInput, ref.AssetID)
		}
		seen[ref.AssetID] = struct{}{}
	}

	if err := e.rejectAlreadySettled(ctx, refs); err != nil {
		return 0, err
	}

	staged := make([]stagedSettlement, 0, len(refs))
	for _, ref := range refs {
		record, err := e.loadSource(ctx, ref)
		if err != nil {
			return 0, err
		}
		staged = append(staged, stagedSettlement{ref: ref, record: record})
	}

	batch := e.store.Batch()
	for _, entry := range staged {
		doc, err := store.Encode(entry.record)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrStore, err)
		}
		batch.Create(store.CollectionBuyAssets, entry.ref.AssetID, doc)
		batch.Delete(string(entry.ref.Source), entry.ref.AssetID)
	}
	if err := batch.Commit(ctx); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			// A concurrent settlement won the destination create.
			return 0, &DuplicateError{}
		}
		return 0, fmt.Errorf("%w: commit settlement batch: %v", ErrStore, err)
	}

	e.logger.Info("assets settled", "count", len(staged))
	return len(staged), nil
}

// rejectAlreadySettled checks every destination document concurrently and
// aborts the whole request on the first hit.
func (e *Engine) rejectAlreadySettled(ctx context.Context, refs []AssetRef) error {
	group, groupCtx := errgroup.WithContext(ctx)
	for _, ref := range refs {
		ref := ref
		group.Go(func() error {
			_, err := e.store.Get(groupCtx, store.CollectionBuyAssets, ref.AssetID)
			if err == nil {
				return &DuplicateError{AssetID: ref.AssetID}
			}
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			return fmt.Errorf("%w: check ownership of %s: %v", ErrStore, ref.AssetID, err)
		})
	}
	return group.Wait()
}

// loadSource reads the pending record and shapes the resulting ownership
// document. Cart settlements run after payment capture, so their recorded
// price is zeroed; buy-now settlements preserve the paid unit price.
func (e *Engine) loadSource(ctx context.Context, ref AssetRef) (models.PurchasedAsset, error) {
	doc, err := e.store.Get(ctx, string(ref.Source), ref.AssetID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.PurchasedAsset{}, &NotFoundError{Ref: fmt.Sprintf("%s/%s", ref.Source, ref.AssetID)}
		}
		return models.PurchasedAsset{}, fmt.Errorf("%w: read %s/%s: %v", ErrStore, ref.Source, ref.AssetID, err)
	}
	var item models.CartItem
	if err := store.Decode(doc, &item); err != nil {
		return models.PurchasedAsset{}, fmt.Errorf("%w: decode %s/%s: %v", ErrStore, ref.Source, ref.AssetID, err)
	}

	price := models.Money{}
	if ref.Source == SourceBuyNow {
		price = item.Price
	}
	return models.PurchasedAsset{
		GrantID:       uuid.NewString(),
		AssetID:       ref.AssetID,
		BuyerUID:      ref.BuyerUID,
		Price:         price,
		BoughtAt:      e.now(),
		SourceOrderID: ref.OrderID,
		Source:        string(ref.Source),
		Status:        "success",
		Metadata:      item.Metadata,
	}, nil
}
