package store

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"orthobox-backend/internal/database"
)

type record struct {
	Name    string             `json:"name"`
	Grades  map[string]float64 `json:"grades"`
	Session []string           `json:"sessions"`
}

func newTestBackend(t *testing.T) Backend {
	t.Helper()

	db, err := database.OpenSQLite(t.TempDir())
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	backend, err := NewSQLiteBackend(context.Background(), db)
	if err != nil {
		t.Fatalf("NewSQLiteBackend failed: %v", err)
	}
	t.Cleanup(func() { _ = backend.Close() })
	return backend
}

func TestDictRoundTrip(t *testing.T) {
	ctx := context.Background()
	backend := newTestBackend(t)

	users := NewDict[record](backend, Users)
	want := record{
		Name:    "Admin User",
		Grades:  map[string]float64{"pokey": 1.0 / 3, "peggy": 0},
		Session: []string{"a", "b"},
	}
	if err := users.Set(ctx, "u1", want); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := users.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, want)
	}

	// Partitions are independent keyspaces.
	sessions := NewDict[record](backend, Sessions)
	if _, err := sessions.Get(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound from another partition, got %v", err)
	}
}

func TestDictMissingKey(t *testing.T) {
	ctx := context.Background()
	d := NewDict[string](newTestBackend(t), Sessions)

	if _, err := d.Get(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get missing = %v, want ErrNotFound", err)
	}
	if err := d.Delete(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Delete missing = %v, want ErrNotFound", err)
	}
	if _, err := d.Pop(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Pop missing = %v, want ErrNotFound", err)
	}
	if ok, err := d.Has(ctx, "nope"); err != nil || ok {
		t.Fatalf("Has missing = (%v, %v), want (false, nil)", ok, err)
	}
	if _, ok, err := d.Lookup(ctx, "nope"); err != nil || ok {
		t.Fatalf("Lookup missing = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestDictPopRemovesKey(t *testing.T) {
	ctx := context.Background()
	d := NewDict[string](newTestBackend(t), UnregisteredOAuth)

	if err := d.Set(ctx, "key", "secret"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	v, err := d.Pop(ctx, "key")
	if err != nil || v != "secret" {
		t.Fatalf("Pop = (%q, %v), want (secret, nil)", v, err)
	}
	if ok, _ := d.Has(ctx, "key"); ok {
		t.Fatalf("key still present after Pop")
	}
}

func TestDictSetDefault(t *testing.T) {
	ctx := context.Background()
	d := NewDict[int](newTestBackend(t), Nonces)

	v, err := d.SetDefault(ctx, "n", 10)
	if err != nil || v != 10 {
		t.Fatalf("first SetDefault = (%d, %v), want (10, nil)", v, err)
	}
	v, err = d.SetDefault(ctx, "n", 20)
	if err != nil || v != 10 {
		t.Fatalf("second SetDefault = (%d, %v), want (10, nil)", v, err)
	}
}

func TestDictKeysItemsLenClear(t *testing.T) {
	ctx := context.Background()
	d := NewDict[string](newTestBackend(t), Criteria)

	for _, k := range []string{"b", "a", "c"} {
		if err := d.Set(ctx, k, "v"+k); err != nil {
			t.Fatalf("Set(%s) failed: %v", k, err)
		}
	}

	keys, err := d.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	if !reflect.DeepEqual(keys, []string{"a", "b", "c"}) {
		t.Fatalf("Keys = %v", keys)
	}

	items, err := d.Items(ctx)
	if err != nil || items["b"] != "vb" {
		t.Fatalf("Items = (%v, %v)", items, err)
	}

	if n, err := d.Len(ctx); err != nil || n != 3 {
		t.Fatalf("Len = (%d, %v), want 3", n, err)
	}

	if err := d.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if n, _ := d.Len(ctx); n != 0 {
		t.Fatalf("Len after Clear = %d", n)
	}
}

func TestBatchAppliesAcrossPartitions(t *testing.T) {
	ctx := context.Background()
	backend := newTestBackend(t)
	sessions := NewDict[string](backend, Sessions)
	data := NewDict[string](backend, Data)

	if err := sessions.Set(ctx, "old", "x"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	b := NewBatch().
		Put(Sessions, "s1", "token").
		Put(Data, "s1", "payload").
		Delete(Sessions, "old").
		Delete(Sessions, "never-existed")
	if err := backend.Apply(ctx, b); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if v, err := sessions.Get(ctx, "s1"); err != nil || v != "token" {
		t.Fatalf("sessions[s1] = (%q, %v)", v, err)
	}
	if v, err := data.Get(ctx, "s1"); err != nil || v != "payload" {
		t.Fatalf("data[s1] = (%q, %v)", v, err)
	}
	if ok, _ := sessions.Has(ctx, "old"); ok {
		t.Fatalf("batched delete did not apply")
	}
}

func TestBatchEncodingErrorAbortsApply(t *testing.T) {
	ctx := context.Background()
	backend := newTestBackend(t)

	b := NewBatch().
		Put(Sessions, "s1", "ok").
		Put(Data, "bad", make(chan int))
	if b.Err() == nil {
		t.Fatalf("expected encoding error")
	}
	if err := backend.Apply(ctx, b); err == nil {
		t.Fatalf("Apply should fail on encoding error")
	}
	if ok, _ := NewDict[string](backend, Sessions).Has(ctx, "s1"); ok {
		t.Fatalf("partial batch was written")
	}
}
