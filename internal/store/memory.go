package store

import (
	"context"
	"fmt"
	"reflect"
	"sync"
)

// MemoryStore is an in-process Store used by tests and the development mode.
// All batch writes are applied under one lock, so a commit is atomic with
// respect to every other operation.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]Document

	// commitHook allows tests to inject a failure between staging and
	// applying a batch.
	commitHook func() error
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string]Document)}
}

// SetCommitHook installs a hook invoked before a batch is applied. A non-nil
// error aborts the commit with nothing written.
func (s *MemoryStore) SetCommitHook(hook func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitHook = hook
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) Get(ctx context.Context, collection, key string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.data[collection][key]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, key, ErrNotFound)
	}
	return cloneDocument(doc), nil
}

func (s *MemoryStore) Query(ctx context.Context, collection, field string, value any) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var results []Document
	for _, doc := range s.data[collection] {
		if fieldMatches(doc[field], value) {
			results = append(results, cloneDocument(doc))
		}
	}
	return results, nil
}

func (s *MemoryStore) Set(ctx context.Context, collection, key string, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(collection, key, doc)
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, collection, key string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.data[collection][key]
	if !ok {
		return fmt.Errorf("%s/%s: %w", collection, key, ErrNotFound)
	}
	updated := cloneDocument(doc)
	for field, value := range fields {
		updated[field] = value
	}
	s.data[collection][key] = updated
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, collection, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data[collection], key)
	return nil
}

func (s *MemoryStore) Batch() Batch {
	return &memoryBatch{store: s}
}

func (s *MemoryStore) Close(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) setLocked(collection, key string, doc Document) {
	bucket, ok := s.data[collection]
	if !ok {
		bucket = make(map[string]Document)
		s.data[collection] = bucket
	}
	bucket[key] = cloneDocument(doc)
}

type batchOpKind int

const (
	batchOpSet batchOpKind = iota
	batchOpCreate
	batchOpDelete
)

type batchOp struct {
	kind       batchOpKind
	collection string
	key        string
	doc        Document
}

type memoryBatch struct {
	store *MemoryStore
	ops   []batchOp
}

func (b *memoryBatch) Set(collection, key string, doc Document) {
	b.ops = append(b.ops, batchOp{kind: batchOpSet, collection: collection, key: key, doc: doc})
}

func (b *memoryBatch) Create(collection, key string, doc Document) {
	b.ops = append(b.ops, batchOp{kind: batchOpCreate, collection: collection, key: key, doc: doc})
}

func (b *memoryBatch) Delete(collection, key string) {
	b.ops = append(b.ops, batchOp{kind: batchOpDelete, collection: collection, key: key})
}

// Commit validates every staged create against the current state and then
// applies all operations while holding the write lock. Nothing is applied when
// validation or the test hook fails.
func (b *memoryBatch) Commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.store.mu.Lock()
	defer b.store.mu.Unlock()

	for _, op := range b.ops {
		if op.kind != batchOpCreate {
			continue
		}
		if _, exists := b.store.data[op.collection][op.key]; exists {
			return fmt.Errorf("%s/%s: %w", op.collection, op.key, ErrAlreadyExists)
		}
	}
	if b.store.commitHook != nil {
		if err := b.store.commitHook(); err != nil {
			return err
		}
	}
	for _, op := range b.ops {
		switch op.kind {
		case batchOpSet, batchOpCreate:
			b.store.setLocked(op.collection, op.key, op.doc)
		case batchOpDelete:
			delete(b.store.data[op.collection], op.key)
		}
	}
	return nil
}

// cloneDocument deep-copies a document so callers and the store never share
// nested maps or slices.
func cloneDocument(doc Document) Document {
	if doc == nil {
		return nil
	}
	clone := make(Document, len(doc))
	for field, value := range doc {
		clone[field] = cloneValue(value)
	}
	return clone
}

func cloneValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		nested := make(map[string]any, len(v))
		for field, item := range v {
			nested[field] = cloneValue(item)
		}
		return nested
	case []any:
		items := make([]any, len(v))
		for i, item := range v {
			items[i] = cloneValue(item)
		}
		return items
	default:
		return value
	}
}

// fieldMatches compares a stored field against a query value. Numeric values
// survive a JSON round trip as float64, so mixed numeric kinds compare by
// string form.
func fieldMatches(stored, queried any) bool {
	if stored == nil || queried == nil {
		return stored == queried
	}
	if reflect.DeepEqual(stored, queried) {
		return true
	}
	return fmt.Sprintf("%v", stored) == fmt.Sprintf("%v", queried)
}
