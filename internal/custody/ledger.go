// ledger.go - Asset custody interface consumed by the venue.
//
// The venue never manipulates balances directly; every unit of traded asset
// or escrowed value moves through Debit/Credit on this ledger, keeping all
// value movement in one auditable code path.

package custody

import "errors"

// ErrInsufficientBalance is returned by Debit when the owner does not hold
// the requested amount.
var ErrInsufficientBalance = errors.New("insufficient balance")

// AssetLedger is an escrow-style ledger of fungible asset units keyed by
// owner and asset identifier. Implementations must make each call atomic:
// a failed Debit or Credit has no effect.
type AssetLedger interface {
	Debit(owner, asset string, amount uint64) error
	Credit(owner, asset string, amount uint64) error
	Balance(owner, asset string) uint64
}
