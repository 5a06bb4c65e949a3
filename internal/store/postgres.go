package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresBackend mirrors SQLiteBackend on a shared PostgreSQL database so
// several app instances can serve the same LMS.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

func NewPostgresBackend(ctx context.Context, pool *pgxpool.Pool) (*PostgresBackend, error) {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS orthobox_kv (
			partition TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			PRIMARY KEY (partition, key)
		)`)
	if err != nil {
		return nil, fmt.Errorf("create orthobox_kv table: %w", err)
	}
	return &PostgresBackend{pool: pool}, nil
}

func (s *PostgresBackend) Get(ctx context.Context, p Partition, key string) ([]byte, error) {
	var value string
	err := s.pool.QueryRow(ctx,
		`SELECT value FROM orthobox_kv WHERE partition = $1 AND key = $2`, string(p), key,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(value), nil
}

func (s *PostgresBackend) Put(ctx context.Context, p Partition, key string, value []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO orthobox_kv (partition, key, value) VALUES ($1, $2, $3)
		ON CONFLICT (partition, key) DO UPDATE SET value = EXCLUDED.value`,
		string(p), key, string(value))
	return err
}

func (s *PostgresBackend) PutIfAbsent(ctx context.Context, p Partition, key string, value []byte) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO orthobox_kv (partition, key, value) VALUES ($1, $2, $3)
		ON CONFLICT (partition, key) DO NOTHING`,
		string(p), key, string(value))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresBackend) Delete(ctx context.Context, p Partition, key string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM orthobox_kv WHERE partition = $1 AND key = $2`, string(p), key)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresBackend) Pop(ctx context.Context, p Partition, key string) ([]byte, error) {
	var value string
	err := s.pool.QueryRow(ctx,
		`DELETE FROM orthobox_kv WHERE partition = $1 AND key = $2 RETURNING value`, string(p), key,
	).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(value), nil
}

func (s *PostgresBackend) Items(ctx context.Context, p Partition) ([]Item, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT key, value FROM orthobox_kv WHERE partition = $1 ORDER BY key`, string(p))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		items = append(items, Item{Key: key, Value: []byte(value)})
	}
	return items, rows.Err()
}

func (s *PostgresBackend) Len(ctx context.Context, p Partition) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM orthobox_kv WHERE partition = $1`, string(p)).Scan(&n)
	return n, err
}

func (s *PostgresBackend) Clear(ctx context.Context, p Partition) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM orthobox_kv WHERE partition = $1`, string(p))
	return err
}

func (s *PostgresBackend) Apply(ctx context.Context, b *Batch) error {
	if err := b.Err(); err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, op := range b.Ops() {
			var err error
			if op.Delete {
				_, err = tx.Exec(ctx,
					`DELETE FROM orthobox_kv WHERE partition = $1 AND key = $2`, string(op.Partition), op.Key)
			} else {
				_, err = tx.Exec(ctx, `
					INSERT INTO orthobox_kv (partition, key, value) VALUES ($1, $2, $3)
					ON CONFLICT (partition, key) DO UPDATE SET value = EXCLUDED.value`,
					string(op.Partition), op.Key, string(op.Value))
			}
			if err != nil {
				return fmt.Errorf("apply %s/%s: %w", op.Partition, op.Key, err)
			}
		}
		return nil
	})
}

// Close is a no-op; the pool is owned by the caller.
func (s *PostgresBackend) Close() error {
	return nil
}
