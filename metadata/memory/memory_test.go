package memory

import (
	"context"
	"testing"

	"github.com/bsv-blockchain/go-sdk/chainhash"
	"github.com/shruggr/rewardledger/metadata"
)

func TestPutAndLookup(t *testing.T) {
	store := New()
	ctx := context.Background()

	for h := uint64(0); h < 3; h++ {
		meta := &metadata.BlockMeta{Height: h, BlockHash: chainhash.Hash{byte(h + 1)}, TxCount: int(h)}
		if err := store.PutBlock(ctx, meta); err != nil {
			t.Fatalf("PutBlock failed: %v", err)
		}
	}

	byHeight, _ := store.GetBlock(ctx, 1)
	if byHeight == nil || byHeight.BlockHash != (chainhash.Hash{2}) {
		t.Errorf("Unexpected block at height 1: %+v", byHeight)
	}

	byHash, _ := store.GetBlockByHash(ctx, chainhash.Hash{3})
	if byHash == nil || byHash.Height != 2 {
		t.Errorf("Unexpected block for hash 3: %+v", byHash)
	}

	latest, _ := store.GetLatestBlock(ctx)
	if latest == nil || latest.Height != 2 {
		t.Errorf("Expected latest height 2, got %+v", latest)
	}

	missing, _ := store.GetBlock(ctx, 10)
	if missing != nil {
		t.Error("Expected nil for unknown height")
	}
}

func TestReturnedMetaIsCopy(t *testing.T) {
	store := New()
	ctx := context.Background()

	store.PutBlock(ctx, &metadata.BlockMeta{Height: 1, TxCount: 5})

	got, _ := store.GetBlock(ctx, 1)
	got.TxCount = 99

	again, _ := store.GetBlock(ctx, 1)
	if again.TxCount != 5 {
		t.Errorf("Store returned internal pointer, TxCount now %d", again.TxCount)
	}
}
