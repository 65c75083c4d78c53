package ledger

import (
	"errors"
	"fmt"
)

// Ledger errors
var (
	ErrMalformedTransaction = errors.New("malformed transaction")
	ErrUnresolvedOutput     = errors.New("unresolved output")
	ErrOwnershipMismatch    = errors.New("public key does not own the referenced output")
	ErrInvalidSignature     = errors.New("invalid signature")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrNoMinerConfigured    = errors.New("no miner address configured")
	ErrChainIntegrity       = errors.New("chain integrity violation")
	ErrNotFound             = errors.New("not found")
)

// ErrDoubleSpend is an unresolved output that another pending transaction
// already claims
var ErrDoubleSpend = fmt.Errorf("%w: double spend", ErrUnresolvedOutput)

// IsRejection reports whether err is an admission rejection rather than an
// infrastructure failure
func IsRejection(err error) bool {
	for _, target := range []error{
		ErrMalformedTransaction,
		ErrUnresolvedOutput,
		ErrOwnershipMismatch,
		ErrInvalidSignature,
		ErrInsufficientFunds,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
