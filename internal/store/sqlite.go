package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SQLiteBackend keeps every partition in one kv table of an embedded
// SQLite database.
type SQLiteBackend struct {
	db *sql.DB
}

func NewSQLiteBackend(ctx context.Context, db *sql.DB) (*SQLiteBackend, error) {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS kv (
			partition TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			PRIMARY KEY (partition, key)
		)`)
	if err != nil {
		return nil, fmt.Errorf("create kv table: %w", err)
	}
	return &SQLiteBackend{db: db}, nil
}

func (s *SQLiteBackend) Get(ctx context.Context, p Partition, key string) ([]byte, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE partition = ? AND key = ?`, string(p), key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(value), nil
}

func (s *SQLiteBackend) Put(ctx context.Context, p Partition, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (partition, key, value) VALUES (?, ?, ?)
		ON CONFLICT (partition, key) DO UPDATE SET value = excluded.value`,
		string(p), key, string(value))
	return err
}

func (s *SQLiteBackend) PutIfAbsent(ctx context.Context, p Partition, key string, value []byte) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (partition, key, value) VALUES (?, ?, ?)
		ON CONFLICT (partition, key) DO NOTHING`,
		string(p), key, string(value))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *SQLiteBackend) Delete(ctx context.Context, p Partition, key string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM kv WHERE partition = ? AND key = ?`, string(p), key)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteBackend) Pop(ctx context.Context, p Partition, key string) ([]byte, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var value string
	err = tx.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE partition = ? AND key = ?`, string(p), key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM kv WHERE partition = ? AND key = ?`, string(p), key); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return []byte(value), nil
}

func (s *SQLiteBackend) Items(ctx context.Context, p Partition) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, value FROM kv WHERE partition = ? ORDER BY key`, string(p))
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

func (s *SQLiteBackend) Len(ctx context.Context, p Partition) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM kv WHERE partition = ?`, string(p)).Scan(&n)
	return n, err
}

func (s *SQLiteBackend) Clear(ctx context.Context, p Partition) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE partition = ?`, string(p))
	return err
}

func (s *SQLiteBackend) Apply(ctx context.Context, b *Batch) error {
	if err := b.Err(); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, op := range b.Ops() {
		if op.Delete {
			_, err = tx.ExecContext(ctx,
				`DELETE FROM kv WHERE partition = ? AND key = ?`, string(op.Partition), op.Key)
		} else {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO kv (partition, key, value) VALUES (?, ?, ?)
				ON CONFLICT (partition, key) DO UPDATE SET value = excluded.value`,
				string(op.Partition), op.Key, string(op.Value))
		}
		if err != nil {
			return fmt.Errorf("apply %s/%s: %w", op.Partition, op.Key, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}
