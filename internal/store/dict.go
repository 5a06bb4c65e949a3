package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Dict is a typed dictionary facade over one partition. Values are
// JSON-encoded on write and decoded on read.
type Dict[T any] struct {
	backend Backend
	name    Partition
}

func NewDict[T any](backend Backend, name Partition) *Dict[T] {
	return &Dict[T]{backend: backend, name: name}
}

func (d *Dict[T]) Name() Partition {
	return d.name
}

// Get returns ErrNotFound when key is missing.
func (d *Dict[T]) Get(ctx context.Context, key string) (T, error) {
	var v T
	raw, err := d.backend.Get(ctx, d.name, key)
	if err != nil {
		return v, err
	}
	return d.decode(key, raw)
}

// Lookup is Get with the comma-ok convention for missing keys.
func (d *Dict[T]) Lookup(ctx context.Context, key string) (T, bool, error) {
	v, err := d.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return v, false, nil
	}
	if err != nil {
		return v, false, err
	}
	return v, true, nil
}

func (d *Dict[T]) Set(ctx context.Context, key string, value T) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", d.name, key, err)
	}
	return d.backend.Put(ctx, d.name, key, raw)
}

// SetDefault stores value if key is missing and returns whatever is
// stored afterwards.
func (d *Dict[T]) SetDefault(ctx context.Context, key string, value T) (T, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return value, fmt.Errorf("encode %s/%s: %w", d.name, key, err)
	}
	stored, err := d.backend.PutIfAbsent(ctx, d.name, key, raw)
	if err != nil {
		return value, err
	}
	if stored {
		return value, nil
	}
	return d.Get(ctx, key)
}

func (d *Dict[T]) Has(ctx context.Context, key string) (bool, error) {
	_, err := d.backend.Get(ctx, d.name, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Delete returns ErrNotFound when key is missing.
func (d *Dict[T]) Delete(ctx context.Context, key string) error {
	return d.backend.Delete(ctx, d.name, key)
}

// Pop removes key and returns its previous value.
func (d *Dict[T]) Pop(ctx context.Context, key string) (T, error) {
	var v T
	raw, err := d.backend.Pop(ctx, d.name, key)
	if err != nil {
		return v, err
	}
	return d.decode(key, raw)
}

func (d *Dict[T]) Keys(ctx context.Context) ([]string, error) {
	items, err := d.backend.Items(ctx, d.name)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(items))
	for _, item := range items {
		keys = append(keys, item.Key)
	}
	return keys, nil
}

func (d *Dict[T]) Items(ctx context.Context) (map[string]T, error) {
	items, err := d.backend.Items(ctx, d.name)
	if err != nil {
		return nil, err
	}
	out := make(map[string]T, len(items))
	for _, item := range items {
		v, err := d.decode(item.Key, item.Value)
		if err != nil {
			return nil, err
		}
		out[item.Key] = v
	}
	return out, nil
}

func (d *Dict[T]) Len(ctx context.Context) (int, error) {
	return d.backend.Len(ctx, d.name)
}

func (d *Dict[T]) Clear(ctx context.Context) error {
	return d.backend.Clear(ctx, d.name)
}

func (d *Dict[T]) decode(key string, raw []byte) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("decode %s/%s: %w", d.name, key, err)
	}
	return v, nil
}
