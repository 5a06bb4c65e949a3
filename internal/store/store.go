// Package store is the persistence layer: named partitions of string keys
// mapping to JSON text, backed by SQLite, PostgreSQL or Redis.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a key is absent from a partition.
var ErrNotFound = errors.New("store: key not found")

// Partition names one keyspace inside the store environment.
type Partition string

const (
	Sessions          Partition = "sessions"
	Data              Partition = "data"
	Metadata          Partition = "metadata"
	Users             Partition = "users"
	Resources         Partition = "resources"
	OAuth             Partition = "oauth"
	UnregisteredOAuth Partition = "unregistered_oauth"
	Nonces            Partition = "nonces"
	Criteria          Partition = "criteria"
	Outbox            Partition = "outbox"
)

// Partitions lists every partition the application uses.
var Partitions = []Partition{
	Sessions, Data, Metadata, Users, Resources,
	OAuth, UnregisteredOAuth, Nonces, Criteria, Outbox,
}

// Item is one raw key/value pair of a partition.
type Item struct {
	Key   string
	Value []byte
}

// Backend is the raw key-value engine. Every method runs in its own
// transaction; Apply commits a whole Batch atomically.
type Backend interface {
	Get(ctx context.Context, p Partition, key string) ([]byte, error)
	Put(ctx context.Context, p Partition, key string, value []byte) error
	// PutIfAbsent stores value only when key is missing and reports
	// whether it did.
	PutIfAbsent(ctx context.Context, p Partition, key string, value []byte) (bool, error)
	Delete(ctx context.Context, p Partition, key string) error
	Pop(ctx context.Context, p Partition, key string) ([]byte, error)
	Items(ctx context.Context, p Partition) ([]Item, error)
	Len(ctx context.Context, p Partition) (int, error)
	Clear(ctx context.Context, p Partition) error
	Apply(ctx context.Context, b *Batch) error
	Close() error
}

// Op is a single write inside a Batch.
type Op struct {
	Partition Partition
	Key       string
	Value     []byte
	Delete    bool
}

// Batch collects writes across partitions so they commit together.
// Deleting a missing key inside a batch is not an error.
type Batch struct {
	ops []Op
	err error
}

func NewBatch() *Batch {
	return &Batch{}
}

// Put JSON-encodes value. An encoding failure is reported by Err and
// aborts Apply.
func (b *Batch) Put(p Partition, key string, value interface{}) *Batch {
	if b.err != nil {
		return b
	}
	raw, err := json.Marshal(value)
	if err != nil {
		b.err = fmt.Errorf("encode %s/%s: %w", p, key, err)
		return b
	}
	b.ops = append(b.ops, Op{Partition: p, Key: key, Value: raw})
	return b
}

func (b *Batch) Delete(p Partition, key string) *Batch {
	b.ops = append(b.ops, Op{Partition: p, Key: key, Delete: true})
	return b
}

func (b *Batch) Ops() []Op {
	return b.ops
}

func (b *Batch) Err() error {
	return b.err
}

func (b *Batch) Len() int {
	return len(b.ops)
}
