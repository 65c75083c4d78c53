package memory

import (
	"testing"

	"github.com/bsv-blockchain/go-sdk/chainhash"
	"github.com/shruggr/rewardledger/cache"
)

func TestPutGet(t *testing.T) {
	c, err := New(4)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	loc := cache.Location{Height: 3, Position: 1}
	c.Put(chainhash.Hash{1}, loc)

	got, ok := c.Get(chainhash.Hash{1})
	if !ok {
		t.Fatal("Expected cached location")
	}
	if got != loc {
		t.Errorf("Expected %+v, got %+v", loc, got)
	}

	if _, ok := c.Get(chainhash.Hash{2}); ok {
		t.Error("Unexpected hit for unknown txid")
	}
}

func TestEviction(t *testing.T) {
	c, err := New(2)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	c.Put(chainhash.Hash{1}, cache.Location{Height: 1})
	c.Put(chainhash.Hash{2}, cache.Location{Height: 2})
	c.Put(chainhash.Hash{3}, cache.Location{Height: 3})

	if _, ok := c.Get(chainhash.Hash{1}); ok {
		t.Error("Oldest entry should have been evicted")
	}
	if c.Len() != 2 {
		t.Errorf("Expected 2 entries, got %d", c.Len())
	}
}

func TestDelete(t *testing.T) {
	c, err := New(4)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	c.Put(chainhash.Hash{1}, cache.Location{})
	c.Put(chainhash.Hash{2}, cache.Location{})

	c.Delete(chainhash.Hash{1})
	if _, ok := c.Get(chainhash.Hash{1}); ok {
		t.Error("Deleted entry still present")
	}
	if c.Len() != 1 {
		t.Errorf("Expected 1 entry, got %d", c.Len())
	}
}

func TestNewRejectsZeroSize(t *testing.T) {
	if _, err := New(0); err == nil {
		t.Error("New should fail with size 0")
	}
}
