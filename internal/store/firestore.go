package store

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore is the production Store backed by Cloud Firestore. Batch
// commits map onto Firestore write batches, which apply atomically, and
// staged creates use Firestore's own create-if-absent write.
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore opens a Firestore client for the given project.
func NewFirestoreStore(ctx context.Context, projectID string, opts ...option.ClientOption) (*FirestoreStore, error) {
	if strings.TrimSpace(projectID) == "" {
		return nil, fmt.Errorf("firestore project id required")
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("open firestore client: %w", err)
	}
	return &FirestoreStore{client: client}, nil
}

func (s *FirestoreStore) Ping(ctx context.Context) error {
	// Firestore has no dedicated health endpoint; a bounded read against a
	// known collection exercises the connection.
	iter := s.client.Collection(CollectionTransactions).Limit(1).Documents(ctx)
	defer iter.Stop()
	if _, err := iter.Next(); err != nil && err != iterator.Done {
		return fmt.Errorf("firestore ping: %w", err)
	}
	return nil
}

func (s *FirestoreStore) Get(ctx context.Context, collection, key string) (Document, error) {
	snap, err := s.client.Collection(collection).Doc(key).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("%s/%s: %w", collection, key, ErrNotFound)
		}
		return nil, fmt.Errorf("firestore get %s/%s: %w", collection, key, err)
	}
	return Document(snap.Data()), nil
}

func (s *FirestoreStore) Query(ctx context.Context, collection, field string, value any) ([]Document, error) {
	iter := s.client.Collection(collection).Where(field, "==", value).Documents(ctx)
	defer iter.Stop()
	var results []Document
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore query %s.%s: %w", collection, field, err)
		}
		results = append(results, Document(snap.Data()))
	}
	return results, nil
}

func (s *FirestoreStore) Set(ctx context.Context, collection, key string, doc Document) error {
	if _, err := s.client.Collection(collection).Doc(key).Set(ctx, map[string]any(doc)); err != nil {
		return fmt.Errorf("firestore set %s/%s: %w", collection, key, err)
	}
	return nil
}

func (s *FirestoreStore) Update(ctx context.Context, collection, key string, fields map[string]any) error {
	updates := make([]firestore.Update, 0, len(fields))
	for field, value := range fields {
		updates = append(updates, firestore.Update{Path: field, Value: value})
	}
	if _, err := s.client.Collection(collection).Doc(key).Update(ctx, updates); err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("%s/%s: %w", collection, key, ErrNotFound)
		}
		return fmt.Errorf("firestore update %s/%s: %w", collection, key, err)
	}
	return nil
}

func (s *FirestoreStore) Delete(ctx context.Context, collection, key string) error {
	if _, err := s.client.Collection(collection).Doc(key).Delete(ctx); err != nil {
		return fmt.Errorf("firestore delete %s/%s: %w", collection, key, err)
	}
	return nil
}

func (s *FirestoreStore) Batch() Batch {
	return &firestoreBatch{store: s, batch: s.client.Batch()}
}

func (s *FirestoreStore) Close(ctx context.Context) error {
	return s.client.Close()
}

type firestoreBatch struct {
	store *FirestoreStore
	batch *firestore.WriteBatch
}

func (b *firestoreBatch) Set(collection, key string, doc Document) {
	b.batch.Set(b.store.client.Collection(collection).Doc(key), map[string]any(doc))
}

func (b *firestoreBatch) Create(collection, key string, doc Document) {
	b.batch.Create(b.store.client.Collection(collection).Doc(key), map[string]any(doc))
}

func (b *firestoreBatch) Delete(collection, key string) {
	b.batch.Delete(b.store.client.Collection(collection).Doc(key))
}

func (b *firestoreBatch) Commit(ctx context.Context) error {
	if _, err := b.batch.Commit(ctx); err != nil {
		if status.Code(err) == codes.AlreadyExists {
			return fmt.Errorf("batch create: %w", ErrAlreadyExists)
		}
		return fmt.Errorf("firestore batch commit: %w", err)
	}
	return nil
}
