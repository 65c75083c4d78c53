package utxo

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/bsv-blockchain/go-sdk/chainhash"
	"github.com/shruggr/rewardledger/transaction"
	"github.com/shruggr/rewardledger/wallet"
)

// OutpointSize is the encoded length of an Outpoint key
const OutpointSize = chainhash.HashSize + 4

var errCorruptEntry = errors.New("corrupt utxo entry")

// Outpoint identifies one output of one transaction
type Outpoint struct {
	TxID  chainhash.Hash
	Index uint32
}

// OutpointOf returns the outpoint an input spends
func OutpointOf(in transaction.TxIn) Outpoint {
	return Outpoint{TxID: in.PrevTxID, Index: in.PrevOutputIndex}
}

// Bytes encodes the outpoint as txid || big-endian index
func (o Outpoint) Bytes() []byte {
	buf := make([]byte, 0, OutpointSize)
	buf = append(buf, o.TxID[:]...)
	return binary.BigEndian.AppendUint32(buf, o.Index)
}

// String renders txid:index
func (o Outpoint) String() string {
	return fmt.Sprintf("%s:%d", transaction.HashHex(o.TxID), o.Index)
}

// Compare orders outpoints by txid bytes, then index
func (o Outpoint) Compare(other Outpoint) int {
	if c := bytes.Compare(o.TxID[:], other.TxID[:]); c != 0 {
		return c
	}
	switch {
	case o.Index < other.Index:
		return -1
	case o.Index > other.Index:
		return 1
	}
	return 0
}

// Entry is one unspent output
type Entry struct {
	Outpoint Outpoint
	Output   transaction.TxOut
}

func encodeOutput(out transaction.TxOut) []byte {
	buf := make([]byte, 0, 2+len(out.Address)+8)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(out.Address)))
	buf = append(buf, out.Address...)
	return binary.BigEndian.AppendUint64(buf, out.Value)
}

func decodeOutput(raw []byte) (transaction.TxOut, error) {
	if len(raw) < 2 {
		return transaction.TxOut{}, errCorruptEntry
	}
	n := int(binary.BigEndian.Uint16(raw))
	if len(raw) != 2+n+8 {
		return transaction.TxOut{}, fmt.Errorf("%w: length %d", errCorruptEntry, len(raw))
	}
	return transaction.TxOut{
		Address: wallet.Address(raw[2 : 2+n]),
		Value:   binary.BigEndian.Uint64(raw[2+n:]),
	}, nil
}
