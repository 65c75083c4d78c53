// Package transaction defines ledger transactions and their canonical
// encoding for hashing and signing.
package transaction

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"

	"github.com/bsv-blockchain/go-sdk/chainhash"
	"github.com/shruggr/rewardledger/wallet"
)

// DefaultVersion is the transaction version used when none is given
const DefaultVersion uint32 = 1

// ErrValueOverflow is returned when output values do not fit in a uint64 sum
var ErrValueOverflow = errors.New("value overflow")

// TxIn spends exactly one prior output
type TxIn struct {
	PrevTxID        chainhash.Hash
	PrevOutputIndex uint32
	Signature       string // DER hex, empty until signed
	PublicKey       string // SEC1 hex, empty until signed
}

// TxOut assigns value to an address
type TxOut struct {
	Address wallet.Address
	Value   uint64
}

// Transaction moves value from referenced outputs to new outputs.
// A transaction without inputs is a coinbase.
type Transaction struct {
	Version  uint32
	Vin      []TxIn
	Vout     []TxOut
	LockTime uint32
}

// Option customises a new transaction
type Option func(*Transaction)

// WithVersion sets the transaction version
func WithVersion(v uint32) Option {
	return func(t *Transaction) { t.Version = v }
}

// WithLockTime sets the lock time
func WithLockTime(lt uint32) Option {
	return func(t *Transaction) { t.LockTime = lt }
}

// New creates a transaction from inputs and outputs
func New(vin []TxIn, vout []TxOut, opts ...Option) *Transaction {
	tx := &Transaction{
		Version: DefaultVersion,
		Vin:     vin,
		Vout:    vout,
	}
	for _, opt := range opts {
		opt(tx)
	}
	return tx
}

// NewCoinbase creates a reward transaction paying value to address
func NewCoinbase(address wallet.Address, value uint64, lockTime uint32) *Transaction {
	return New(nil, []TxOut{{Address: address, Value: value}}, WithLockTime(lockTime))
}

// IsCoinbase reports whether the transaction has no inputs
func (t *Transaction) IsCoinbase() bool {
	return len(t.Vin) == 0
}

// ID is the double SHA-256 of the signature-free encoding
func (t *Transaction) ID() chainhash.Hash {
	return doubleSHA256(t.CanonicalBytes(false))
}

// SigningHash is the single SHA-256 of the signature-free encoding.
// Every input signs this value.
func (t *Transaction) SigningHash() chainhash.Hash {
	return chainhash.Hash(sha256.Sum256(t.CanonicalBytes(false)))
}

// WitnessHash is the double SHA-256 of the encoding including signatures
// and public keys
func (t *Transaction) WitnessHash() chainhash.Hash {
	return doubleSHA256(t.CanonicalBytes(true))
}

// OutputTotal sums the output values
func (t *Transaction) OutputTotal() (uint64, error) {
	var total uint64
	for i, out := range t.Vout {
		if out.Value > math.MaxUint64-total {
			return 0, fmt.Errorf("%w at output %d", ErrValueOverflow, i)
		}
		total += out.Value
	}
	return total, nil
}

// SignInput signs input i with privHex and attaches the matching public key
func (t *Transaction) SignInput(i int, privHex string) error {
	if i < 0 || i >= len(t.Vin) {
		return fmt.Errorf("input index %d out of range", i)
	}

	kp, err := wallet.KeyPairFromPrivate(privHex)
	if err != nil {
		return err
	}

	sig, err := wallet.Sign(t.SigningHash(), kp.PrivateKey)
	if err != nil {
		return err
	}

	t.Vin[i].Signature = sig
	t.Vin[i].PublicKey = kp.PublicKey
	return nil
}

// SignAll signs every input with the same key
func (t *Transaction) SignAll(privHex string) error {
	for i := range t.Vin {
		if err := t.SignInput(i, privHex); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a deep copy
func (t *Transaction) Clone() *Transaction {
	c := *t
	c.Vin = append([]TxIn(nil), t.Vin...)
	c.Vout = append([]TxOut(nil), t.Vout...)
	return &c
}

// HashHex encodes a hash in natural byte order. chainhash.Hash.String
// reverses bytes for Bitcoin display and is not used for ledger hashes.
func HashHex(h chainhash.Hash) string {
	return hex.EncodeToString(h[:])
}

// ParseHash decodes a 64-character natural-order hex hash
func ParseHash(s string) (chainhash.Hash, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("failed to decode hash: %w", err)
	}
	h, err := chainhash.NewHash(raw)
	if err != nil {
		return chainhash.Hash{}, fmt.Errorf("failed to parse hash: %w", err)
	}
	return *h, nil
}

// doubleSHA256 computes SHA256(SHA256(data))
func doubleSHA256(data []byte) chainhash.Hash {
	first := sha256.Sum256(data)
	return chainhash.Hash(sha256.Sum256(first[:]))
}
