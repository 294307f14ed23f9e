package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresConfig tunes the pgx connection pool behind the Postgres store.
type PostgresConfig struct {
	DSN             string
	MaxConnections  int32
	MinConnections  int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	ApplicationName string
}

// PostgresStore keeps each collection as rows of a single jsonb documents
// table. Batch commits run inside one SQL transaction, so atomicity and
// create-if-absent come from the database itself.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS documents (
    collection TEXT NOT NULL,
    key        TEXT NOT NULL,
    doc        JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (collection, key)
)`

// NewPostgresStore opens a pooled connection and ensures the documents table
// exists.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConnections > 0 {
		poolCfg.MaxConns = cfg.MaxConnections
	}
	if cfg.MinConnections > 0 {
		poolCfg.MinConns = cfg.MinConnections
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.ApplicationName != "" {
		if poolCfg.ConnConfig.RuntimeParams == nil {
			poolCfg.ConnConfig.RuntimeParams = make(map[string]string)
		}
		poolCfg.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate documents table: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Get(ctx context.Context, collection, key string) (Document, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT doc FROM documents WHERE collection = $1 AND key = $2`,
		collection, key).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s/%s: %w", collection, key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres get %s/%s: %w", collection, key, err)
	}
	var doc Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", collection, key, err)
	}
	return doc, nil
}

func (s *PostgresStore) Query(ctx context.Context, collection, field string, value any) ([]Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT doc FROM documents WHERE collection = $1 AND doc->>$2 = $3`,
		collection, field, fmt.Sprintf("%v", value))
	if err != nil {
		return nil, fmt.Errorf("postgres query %s.%s: %w", collection, field, err)
	}
	defer rows.Close()
	var results []Document
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("postgres query scan: %w", err)
		}
		var doc Document
		if err := json.Unmarshal(payload, &doc); err != nil {
			return nil, fmt.Errorf("decode query result: %w", err)
		}
		results = append(results, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres query rows: %w", err)
	}
	return results, nil
}

func (s *PostgresStore) Set(ctx context.Context, collection, key string, doc Document) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, key, err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO documents (collection, key, doc) VALUES ($1, $2, $3)
         ON CONFLICT (collection, key) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`,
		collection, key, payload)
	if err != nil {
		return fmt.Errorf("postgres set %s/%s: %w", collection, key, err)
	}
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, collection, key string, fields map[string]any) error {
	payload, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode update for %s/%s: %w", collection, key, err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET doc = doc || $3::jsonb, updated_at = now()
         WHERE collection = $1 AND key = $2`,
		collection, key, payload)
	if err != nil {
		return fmt.Errorf("postgres update %s/%s: %w", collection, key, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s/%s: %w", collection, key, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, collection, key string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM documents WHERE collection = $1 AND key = $2`,
		collection, key); err != nil {
		return fmt.Errorf("postgres delete %s/%s: %w", collection, key, err)
	}
	return nil
}

func (s *PostgresStore) Batch() Batch {
	return &postgresBatch{store: s}
}

func (s *PostgresStore) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pool.Close()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

type postgresBatch struct {
	store *PostgresStore
	ops   []batchOp
}

func (b *postgresBatch) Set(collection, key string, doc Document) {
	b.ops = append(b.ops, batchOp{kind: batchOpSet, collection: collection, key: key, doc: doc})
}

func (b *postgresBatch) Create(collection, key string, doc Document) {
	b.ops = append(b.ops, batchOp{kind: batchOpCreate, collection: collection, key: key, doc: doc})
}

func (b *postgresBatch) Delete(collection, key string) {
	b.ops = append(b.ops, batchOp{kind: batchOpDelete, collection: collection, key: key})
}

func (b *postgresBatch) Commit(ctx context.Context) error {
	tx, err := b.store.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres batch begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, op := range b.ops {
		switch op.kind {
		case batchOpSet:
			payload, err := json.Marshal(op.doc)
			if err != nil {
				return fmt.Errorf("encode %s/%s: %w", op.collection, op.key, err)
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO documents (collection, key, doc) VALUES ($1, $2, $3)
                 ON CONFLICT (collection, key) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`,
				op.collection, op.key, payload); err != nil {
				return fmt.Errorf("postgres batch set %s/%s: %w", op.collection, op.key, err)
			}
		case batchOpCreate:
			payload, err := json.Marshal(op.doc)
			if err != nil {
				return fmt.Errorf("encode %s/%s: %w", op.collection, op.key, err)
			}
			tag, err := tx.Exec(ctx,
				`INSERT INTO documents (collection, key, doc) VALUES ($1, $2, $3)
                 ON CONFLICT (collection, key) DO NOTHING`,
				op.collection, op.key, payload)
			if err != nil {
				return fmt.Errorf("postgres batch create %s/%s: %w", op.collection, op.key, err)
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("%s/%s: %w", op.collection, op.key, ErrAlreadyExists)
			}
		case batchOpDelete:
			if _, err := tx.Exec(ctx,
				`DELETE FROM documents WHERE collection = $1 AND key = $2`,
				op.collection, op.key); err != nil {
				return fmt.Errorf("postgres batch delete %s/%s: %w", op.collection, op.key, err)
			}
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres batch commit: %w", err)
	}
	return nil
}
