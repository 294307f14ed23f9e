package store

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStoreGetSetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, err := s.Get(ctx, CollectionCartAssets, "A1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	doc := Document{"assetId": "A1", "userId": "U1", "price": float64(1000)}
	if err := s.Set(ctx, CollectionCartAssets, "A1", doc); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := s.Get(ctx, CollectionCartAssets, "A1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got["userId"] != "U1" {
		t.Fatalf("unexpected document: %v", got)
	}
	// Mutating the returned document must not leak into the store.
	got["userId"] = "U2"
	again, err := s.Get(ctx, CollectionCartAssets, "A1")
	if err != nil {
		t.Fatalf("get again: %v", err)
	}
	if again["userId"] != "U1" {
		t.Fatal("store returned a shared document reference")
	}
	if err := s.Delete(ctx, CollectionCartAssets, "A1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, CollectionCartAssets, "A1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemoryStoreClonesNestedValues(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	doc := Document{
		"assetId":  "A1",
		"metadata": map[string]any{"format": "png", "tags": []any{"city"}},
	}
	if err := s.Set(ctx, CollectionCartAssets, "A1", doc); err != nil {
		t.Fatalf("set: %v", err)
	}
	// Mutating the caller's nested map after Set must not reach the store.
	doc["metadata"].(map[string]any)["format"] = "jpeg"

	got, err := s.Get(ctx, CollectionCartAssets, "A1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	meta := got["metadata"].(map[string]any)
	if meta["format"] != "png" {
		t.Fatalf("store shared the caller's nested map: %v", meta)
	}

	// Mutating a returned nested map and slice must not reach the store either.
	meta["format"] = "webp"
	meta["tags"].([]any)[0] = "night"

	again, err := s.Get(ctx, CollectionCartAssets, "A1")
	if err != nil {
		t.Fatalf("get again: %v", err)
	}
	meta = again["metadata"].(map[string]any)
	if meta["format"] != "png" {
		t.Fatalf("returned nested map was shared with the store: %v", meta)
	}
	if meta["tags"].([]any)[0] != "city" {
		t.Fatalf("returned nested slice was shared with the store: %v", meta["tags"])
	}
}

func TestMemoryStoreUpdate(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.Update(ctx, CollectionTransactions, "ORD1", map[string]any{"status": "completed"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Set(ctx, CollectionTransactions, "ORD1", Document{"orderId": "ORD1", "status": "pending", "uid": "U1"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.Update(ctx, CollectionTransactions, "ORD1", map[string]any{"status": "completed"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	doc, err := s.Get(ctx, CollectionTransactions, "ORD1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc["status"] != "completed" {
		t.Fatalf("status not updated: %v", doc["status"])
	}
	if doc["uid"] != "U1" {
		t.Fatal("update must leave other fields untouched")
	}
}

func TestMemoryStoreQuery(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	seed := []Document{
		{"assetId": "A1", "userId": "U1"},
		{"assetId": "A2", "userId": "U1"},
		{"assetId": "A3", "userId": "U2"},
	}
	for _, doc := range seed {
		if err := s.Set(ctx, CollectionCartAssets, doc["assetId"].(string), doc); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	results, err := s.Query(ctx, CollectionCartAssets, "userId", "U1")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 documents, got %d", len(results))
	}
	empty, err := s.Query(ctx, CollectionCartAssets, "userId", "U9")
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected no documents, got %d", len(empty))
	}
}

func TestMemoryBatchAppliesAtomically(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.Set(ctx, CollectionCartAssets, "A1", Document{"assetId": "A1"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	batch := s.Batch()
	batch.Create(CollectionBuyAssets, "A1", Document{"assetId": "A1", "buyerUid": "U1"})
	batch.Delete(CollectionCartAssets, "A1")
	if err := batch.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, err := s.Get(ctx, CollectionBuyAssets, "A1"); err != nil {
		t.Fatalf("destination missing after commit: %v", err)
	}
	if _, err := s.Get(ctx, CollectionCartAssets, "A1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("source still present after commit: %v", err)
	}
}

func TestMemoryBatchCreateFailsWhenDocumentExists(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.Set(ctx, CollectionBuyAssets, "A1", Document{"assetId": "A1", "buyerUid": "U1"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := s.Set(ctx, CollectionCartAssets, "A1", Document{"assetId": "A1"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	batch := s.Batch()
	batch.Create(CollectionBuyAssets, "A1", Document{"assetId": "A1", "buyerUid": "U2"})
	batch.Delete(CollectionCartAssets, "A1")
	if err := batch.Commit(ctx); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	// The losing batch must leave everything in place.
	if _, err := s.Get(ctx, CollectionCartAssets, "A1"); err != nil {
		t.Fatalf("source was deleted by a failed batch: %v", err)
	}
	doc, err := s.Get(ctx, CollectionBuyAssets, "A1")
	if err != nil {
		t.Fatalf("destination read: %v", err)
	}
	if doc["buyerUid"] != "U1" {
		t.Fatalf("existing ownership was overwritten: %v", doc["buyerUid"])
	}
}

func TestMemoryBatchCommitHookFailureLeavesNothing(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.Set(ctx, CollectionCartAssets, "A1", Document{"assetId": "A1"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	s.SetCommitHook(func() error { return errors.New("disk full") })

	batch := s.Batch()
	batch.Create(CollectionBuyAssets, "A1", Document{"assetId": "A1"})
	batch.Delete(CollectionCartAssets, "A1")
	if err := batch.Commit(ctx); err == nil {
		t.Fatal("expected commit failure")
	}
	if _, err := s.Get(ctx, CollectionBuyAssets, "A1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("destination written despite failed commit: %v", err)
	}
	if _, err := s.Get(ctx, CollectionCartAssets, "A1"); err != nil {
		t.Fatalf("source deleted despite failed commit: %v", err)
	}
}

func TestDocumentEncodeDecode(t *testing.T) {
	type payload struct {
		AssetID string `json:"assetId"`
		Price   int64  `json:"price"`
	}
	doc, err := Encode(payload{AssetID: "A1", Price: 1000})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if doc["assetId"] != "A1" {
		t.Fatalf("unexpected encoding: %v", doc)
	}
	var decoded payload
	if err := Decode(doc, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Price != 1000 {
		t.Fatalf("unexpected decode: %+v", decoded)
	}
}
