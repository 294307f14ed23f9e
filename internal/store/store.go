// Package store provides the document datastore used by the marketplace:
// named collections of JSON-shaped documents with per-document operations and
// an atomic multi-document batch. Batches either fully apply or fully fail,
// and staged creates fail when the destination document already exists.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Collection names used by the purchase settlement subsystem.
const (
	CollectionCartAssets   = "cartAssets"
	CollectionBuyNow       = "buyNow"
	CollectionBuyAssets    = "buyAssets"
	CollectionTransactions = "transactions"
)

var (
	// ErrNotFound is returned when the requested document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrAlreadyExists is returned when a staged create loses to an existing
	// document at commit time.
	ErrAlreadyExists = errors.New("document already exists")
)

// Document is the wire shape of a stored record.
type Document map[string]any

// Encode converts a typed value into a Document via its JSON representation.
func Encode(value any) (Document, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return doc, nil
}

// Decode converts a Document back into a typed value via JSON.
func Decode(doc Document, dest any) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	if err := json.Unmarshal(payload, dest); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

// Store exposes the datastore operations required by the marketplace
// components. Every method honours the caller's context.
type Store interface {
	Ping(ctx context.Context) error
	Get(ctx context.Context, collection, key string) (Document, error)
	Query(ctx context.Context, collection, field string, value any) ([]Document, error)
	Set(ctx context.Context, collection, key string, doc Document) error
	Update(ctx context.Context, collection, key string, fields map[string]any) error
	Delete(ctx context.Context, collection, key string) error
	Batch() Batch
	Close(ctx context.Context) error
}

// Batch stages writes across collections and applies them atomically on
// Commit. A batch is single-use and not safe for concurrent staging.
type Batch interface {
	Set(collection, key string, doc Document)
	// Create stages a fail-if-exists write. Commit returns ErrAlreadyExists
	// (and applies nothing) when the destination document exists.
	Create(collection, key string, doc Document)
	Delete(collection, key string)
	Commit(ctx context.Context) error
}
