package transaction

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// EncodingVersion prefixes every canonical encoding. Bump it whenever the
// layout below changes.
const EncodingVersion byte = 0x01

// MaxFieldLength bounds every length-prefixed string in the encoding
const MaxFieldLength = 0xffff

// ErrFieldTooLong is returned for a string field that does not fit its
// u16 length prefix
var ErrFieldTooLong = errors.New("field too long")

// CheckFieldLengths reports the first signature, public key or address
// longer than MaxFieldLength. Transactions failing it have no canonical
// encoding and must not be hashed.
func (t *Transaction) CheckFieldLengths() error {
	for i, in := range t.Vin {
		if len(in.Signature) > MaxFieldLength {
			return fmt.Errorf("%w: input %d signature", ErrFieldTooLong, i)
		}
		if len(in.PublicKey) > MaxFieldLength {
			return fmt.Errorf("%w: input %d public key", ErrFieldTooLong, i)
		}
	}
	for i, out := range t.Vout {
		if len(out.Address) > MaxFieldLength {
			return fmt.Errorf("%w: output %d address", ErrFieldTooLong, i)
		}
	}
	return nil
}

// CanonicalBytes encodes the transaction with a fixed field order:
//
//	enc_version u8
//	version     u32
//	vin_count   u32
//	  prev_txid  [32]
//	  prev_index u32
//	  sig_len u16, sig, pub_len u16, pub   (only with signatures)
//	vout_count  u32
//	  addr_len u16, addr
//	  value    u64
//	lock_time   u32
//
// All integers are big-endian.
func (t *Transaction) CanonicalBytes(includeSignatures bool) []byte {
	buf := make([]byte, 0, 64+len(t.Vin)*40+len(t.Vout)*52)

	buf = append(buf, EncodingVersion)
	buf = binary.BigEndian.AppendUint32(buf, t.Version)

	buf = binary.BigEndian.AppendUint32(buf, uint32(len(t.Vin)))
	for _, in := range t.Vin {
		buf = append(buf, in.PrevTxID[:]...)
		buf = binary.BigEndian.AppendUint32(buf, in.PrevOutputIndex)
		if includeSignatures {
			buf = appendString(buf, in.Signature)
			buf = appendString(buf, in.PublicKey)
		}
	}

	buf = binary.BigEndian.AppendUint32(buf, uint32(len(t.Vout)))
	for _, out := range t.Vout {
		buf = appendString(buf, string(out.Address))
		buf = binary.BigEndian.AppendUint64(buf, out.Value)
	}

	buf = binary.BigEndian.AppendUint32(buf, t.LockTime)
	return buf
}

// appendString writes a u16 length prefix followed by s. Every path that
// creates blocks runs CheckFieldLengths first; longer strings would wrap
// the prefix.
func appendString(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(s)))
	return append(buf, s...)
}
