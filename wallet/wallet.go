// Package wallet provides secp256k1 key management, address derivation and
// ECDSA signing for ledger ownership proofs.
package wallet

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

var (
	ErrInvalidPrivateKey = errors.New("invalid private key")
	ErrInvalidPublicKey  = errors.New("invalid public key")
)

// Address identifies the owner of an output. Derived addresses are
// "0x" followed by 40 lowercase hex characters.
type Address string

// SystemAddress receives the genesis coinbase. No key derives it.
const SystemAddress Address = "system"

// String returns the address text
func (a Address) String() string {
	return string(a)
}

// KeyPair holds hex-encoded key material and the derived address.
// The private key is the caller's to keep; nothing in this module stores it.
type KeyPair struct {
	PrivateKey string
	PublicKey  string
	Address    Address
}

// GenerateKeyPair creates a fresh secp256k1 key pair
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}

	pub := priv.PubKey().SerializeUncompressed()

	return &KeyPair{
		PrivateKey: hex.EncodeToString(priv.Serialize()),
		PublicKey:  hex.EncodeToString(pub),
		Address:    DeriveAddress(pub),
	}, nil
}

// DeriveAddress returns "0x" + the last 40 hex characters of SHA-256(pubKey)
func DeriveAddress(pubKey []byte) Address {
	sum := sha256.Sum256(pubKey)
	digest := hex.EncodeToString(sum[:])
	return Address("0x" + digest[len(digest)-40:])
}

// DeriveAddressHex derives the address of a hex-encoded public key
func DeriveAddressHex(pubKeyHex string) (Address, error) {
	raw, err := hex.DecodeString(pubKeyHex)
	if err != nil || len(raw) == 0 {
		return "", fmt.Errorf("%w: not hex", ErrInvalidPublicKey)
	}
	return DeriveAddress(raw), nil
}

// ParsePrivateKey decodes a 32-byte hex scalar. Zero and out-of-range
// scalars are rejected rather than silently reduced.
func ParsePrivateKey(privHex string) (*secp256k1.PrivateKey, error) {
	raw, err := hex.DecodeString(privHex)
	if err != nil {
		return nil, fmt.Errorf("%w: not hex", ErrInvalidPrivateKey)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("%w: expected 32 bytes, got %d", ErrInvalidPrivateKey, len(raw))
	}

	var scalar secp256k1.ModNScalar
	if overflow := scalar.SetByteSlice(raw); overflow || scalar.IsZero() {
		return nil, fmt.Errorf("%w: scalar out of range", ErrInvalidPrivateKey)
	}

	return secp256k1.NewPrivateKey(&scalar), nil
}

// ParsePublicKey decodes a hex-encoded SEC1 public key (compressed or not)
func ParsePublicKey(pubHex string) (*secp256k1.PublicKey, error) {
	raw, err := hex.DecodeString(pubHex)
	if err != nil {
		return nil, fmt.Errorf("%w: not hex", ErrInvalidPublicKey)
	}
	pub, err := secp256k1.ParsePubKey(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return pub, nil
}

// KeyPairFromPrivate rebuilds the key pair of an existing private key
func KeyPairFromPrivate(privHex string) (*KeyPair, error) {
	priv, err := ParsePrivateKey(privHex)
	if err != nil {
		return nil, err
	}

	pub := priv.PubKey().SerializeUncompressed()

	return &KeyPair{
		PrivateKey: hex.EncodeToString(priv.Serialize()),
		PublicKey:  hex.EncodeToString(pub),
		Address:    DeriveAddress(pub),
	}, nil
}

// Sign produces a canonical (low-S, RFC6979) DER signature over hash,
// returned as hex
func Sign(hash [32]byte, privHex string) (string, error) {
	priv, err := ParsePrivateKey(privHex)
	if err != nil {
		return "", err
	}

	sig := ecdsa.Sign(priv, hash[:])
	return hex.EncodeToString(sig.Serialize()), nil
}

// Verify reports whether sigHex is a valid canonical signature of hash by
// pubHex. Malformed input yields false.
func Verify(hash [32]byte, sigHex string, pubHex string) bool {
	// Only lowercase hex is canonical; the hex text is hashed into the
	// witness hash.
	if !isLowerHex(sigHex) || !isLowerHex(pubHex) {
		return false
	}

	pub, err := ParsePublicKey(pubHex)
	if err != nil {
		return false
	}

	raw, err := hex.DecodeString(sigHex)
	if err != nil {
		return false
	}

	sig, err := ecdsa.ParseDERSignature(raw)
	if err != nil {
		return false
	}

	// Serialize always emits low-S minimal DER, so any other encoding of
	// the same (r, s) is malleated.
	if !bytes.Equal(sig.Serialize(), raw) {
		return false
	}

	return sig.Verify(hash[:], pub)
}

func isLowerHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
