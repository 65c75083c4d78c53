package api

import (
	"fmt"

	"github.com/shruggr/rewardledger/block"
	"github.com/shruggr/rewardledger/merkle"
	"github.com/shruggr/rewardledger/transaction"
	"github.com/shruggr/rewardledger/utxo"
	"github.com/shruggr/rewardledger/wallet"
)

// Hashes are rendered as natural-order hex throughout the API.

type txInView struct {
	PrevTxID        string `json:"prevTxId"`
	PrevOutputIndex uint32 `json:"prevOutputIndex"`
	Signature       string `json:"signature,omitempty"`
	PublicKey       string `json:"publicKey,omitempty"`
}

type txOutView struct {
	Address wallet.Address `json:"address"`
	Value   uint64         `json:"value"`
}

type txView struct {
	TxID        string      `json:"txid"`
	WitnessHash string      `json:"witnessHash"`
	Version     uint32      `json:"version"`
	Vin         []txInView  `json:"vin"`
	Vout        []txOutView `json:"vout"`
	LockTime    uint32      `json:"lockTime"`
}

type blockView struct {
	Index        uint64   `json:"index"`
	Hash         string   `json:"hash"`
	PreviousHash string   `json:"previousHash"`
	MerkleRoot   string   `json:"merkleRoot"`
	Timestamp    int64    `json:"timestamp"`
	Bits         uint32   `json:"difficulty"`
	Nonce        uint64   `json:"nonce"`
	Transactions []txView `json:"transactions"`
}

type utxoView struct {
	TxID    string         `json:"txid"`
	Index   uint32         `json:"index"`
	Address wallet.Address `json:"address"`
	Value   uint64         `json:"value"`
}

type proofNodeView struct {
	Hash   string `json:"hash"`
	IsLeft bool   `json:"isLeft"`
}

type proofView struct {
	TxID       string          `json:"txid"`
	BlockHash  string          `json:"blockHash"`
	Height     uint64          `json:"height"`
	MerkleRoot string          `json:"merkleRoot"`
	Position   uint32          `json:"position"`
	Nodes      []proofNodeView `json:"nodes"`
	Valid      bool            `json:"valid"`
}

func newTxView(tx *transaction.Transaction) txView {
	v := txView{
		TxID:        transaction.HashHex(tx.ID()),
		WitnessHash: transaction.HashHex(tx.WitnessHash()),
		Version:     tx.Version,
		Vin:         make([]txInView, len(tx.Vin)),
		Vout:        make([]txOutView, len(tx.Vout)),
		LockTime:    tx.LockTime,
	}
	for i, in := range tx.Vin {
		v.Vin[i] = txInView{
			PrevTxID:        transaction.HashHex(in.PrevTxID),
			PrevOutputIndex: in.PrevOutputIndex,
			Signature:       in.Signature,
			PublicKey:       in.PublicKey,
		}
	}
	for i, out := range tx.Vout {
		v.Vout[i] = txOutView{Address: out.Address, Value: out.Value}
	}
	return v
}

func newTxViews(txs []*transaction.Transaction) []txView {
	views := make([]txView, len(txs))
	for i, tx := range txs {
		views[i] = newTxView(tx)
	}
	return views
}

func newBlockView(b *block.Block) blockView {
	return blockView{
		Index:        b.Index,
		Hash:         b.HashHex(),
		PreviousHash: transaction.HashHex(b.PreviousHash),
		MerkleRoot:   transaction.HashHex(b.MerkleRoot),
		Timestamp:    b.Timestamp,
		Bits:         b.Bits,
		Nonce:        b.Nonce,
		Transactions: newTxViews(b.Transactions),
	}
}

func newUTXOViews(entries []utxo.Entry) []utxoView {
	views := make([]utxoView, len(entries))
	for i, e := range entries {
		views[i] = utxoView{
			TxID:    transaction.HashHex(e.Outpoint.TxID),
			Index:   e.Outpoint.Index,
			Address: e.Output.Address,
			Value:   e.Output.Value,
		}
	}
	return views
}

func newProofView(p *merkle.Proof, b *block.Block) proofView {
	v := proofView{
		TxID:       transaction.HashHex(p.Leaf),
		BlockHash:  b.HashHex(),
		Height:     b.Index,
		MerkleRoot: transaction.HashHex(b.MerkleRoot),
		Position:   p.Position,
		Nodes:      make([]proofNodeView, len(p.Nodes)),
		Valid:      merkle.VerifyProof(p, b.MerkleRoot),
	}
	for i, n := range p.Nodes {
		v.Nodes[i] = proofNodeView{Hash: transaction.HashHex(n.Hash), IsLeft: n.IsLeft}
	}
	return v
}

// inputs decodes submitted inputs
func inputs(views []txInView) ([]transaction.TxIn, error) {
	vin := make([]transaction.TxIn, len(views))
	for i, v := range views {
		txid, err := transaction.ParseHash(v.PrevTxID)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		vin[i] = transaction.TxIn{
			PrevTxID:        txid,
			PrevOutputIndex: v.PrevOutputIndex,
			Signature:       v.Signature,
			PublicKey:       v.PublicKey,
		}
	}
	return vin, nil
}

func outputs(views []txOutView) []transaction.TxOut {
	vout := make([]transaction.TxOut, len(views))
	for i, v := range views {
		vout[i] = transaction.TxOut{Address: v.Address, Value: v.Value}
	}
	return vout
}
