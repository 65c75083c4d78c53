package memory

import (
	"bytes"
	"context"
	"testing"

	"github.com/shruggr/rewardledger/kvstore"
)

func put(key, value string) kvstore.Op {
	return kvstore.Op{Key: []byte(key), Value: []byte(value)}
}

func TestSetGetDelete(t *testing.T) {
	store := New()
	ctx := context.Background()

	if err := store.Apply(ctx, []kvstore.Op{put("k", "v")}); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	got, err := store.Get(ctx, []byte("k"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got, []byte("v")) {
		t.Errorf("Expected v, got %q", got)
	}

	if err := store.Apply(ctx, []kvstore.Op{{Key: []byte("k"), Delete: true}}); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	got, err = store.Get(ctx, []byte("k"))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil after delete, got %q", got)
	}
}

func TestValuesAreCopied(t *testing.T) {
	store := New()
	ctx := context.Background()

	value := []byte("abc")
	store.Apply(ctx, []kvstore.Op{{Key: []byte("k"), Value: value}})
	value[0] = 'z'

	got, _ := store.Get(ctx, []byte("k"))
	if string(got) != "abc" {
		t.Errorf("Store kept a reference to the caller's slice: %q", got)
	}

	got[1] = 'z'
	again, _ := store.Get(ctx, []byte("k"))
	if string(again) != "abc" {
		t.Errorf("Get returned internal storage: %q", again)
	}
}

func TestApply(t *testing.T) {
	store := New()
	ctx := context.Background()

	store.Apply(ctx, []kvstore.Op{put("old", "1")})

	err := store.Apply(ctx, []kvstore.Op{
		{Key: []byte("old"), Delete: true},
		put("new1", "2"),
		put("new2", "3"),
	})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}

	if store.Len() != 2 {
		t.Errorf("Expected 2 keys, got %d", store.Len())
	}
	if got, _ := store.Get(ctx, []byte("old")); got != nil {
		t.Error("old key should be deleted")
	}
	if got, _ := store.Get(ctx, []byte("new2")); string(got) != "3" {
		t.Errorf("Expected 3, got %q", got)
	}
}
