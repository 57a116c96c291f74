// errors.go - Error kinds for the commit-reveal order engine.
//
// Every rejection surfaces one of these sentinel errors (possibly wrapped
// with context) so callers can assert on the cause with errors.Is. A failed
// operation leaves all venue state untouched.

package venue

import "errors"

// Validation errors: bad parameters, rejected before any lookup.
var (
	ErrInvalidCommitment = errors.New("commitment hash is zero")
	ErrInvalidAmount     = errors.New("order amount out of bounds")
	ErrInvalidExpiry     = errors.New("order expiry is not in the future")
	ErrInvalidMinFill    = errors.New("minimum fill exceeds order amount")
	ErrInvalidPrice      = errors.New("non-market order requires a price")
	ErrInvalidFeeRate    = errors.New("fee rate exceeds maximum")
	ErrAssetNotListed    = errors.New("asset is not whitelisted for trading")
	ErrValueOverflow     = errors.New("value computation overflows")
)

// Authorization errors.
var (
	ErrNotOwner          = errors.New("caller does not own the commitment")
	ErrOwnershipMismatch = errors.New("commitment owner differs from revealer")
	ErrNotOrderOwner     = errors.New("caller does not own the order")
	ErrNotOperator       = errors.New("caller is not an operator")
	ErrPaused            = errors.New("venue is paused")
)

// Protocol-state errors: the entity exists but the requested transition is
// not legal from its current state.
var (
	ErrDuplicateCommitment = errors.New("commitment already pending")
	ErrUnknownCommitment   = errors.New("commitment not pending")
	ErrRevealTooEarly      = errors.New("reveal delay has not elapsed")
	ErrCommitmentExpired   = errors.New("commitment has expired")
	ErrUnknownOrder        = errors.New("order not found")
	ErrOrderNotOpen        = errors.New("order is not open for matching")
	ErrNotCancellable      = errors.New("order is not cancellable")
	ErrSameSide            = errors.New("orders are not on opposite sides")
	ErrPairMismatch        = errors.New("orders are for different asset pairs")
	ErrSelfTrade           = errors.New("buy and sell orders reference the same order")
	ErrOverFill            = errors.New("match amount exceeds remaining quantity")
	ErrPriceMismatch       = errors.New("buy price below sell price")
	ErrBelowMinFill        = errors.New("match amount below minimum fill")
	ErrUnknownMatch        = errors.New("match not found")
	ErrAlreadySettled      = errors.New("match already settled")
	ErrNullifierUsed       = errors.New("nullifier already used")
	ErrBusy                = errors.New("entity is mid-operation")
)

// Integration errors: an external collaborator declined.
var (
	ErrVerifierNotConfigured = errors.New("no proof verifier configured")
	ErrProofRejected         = errors.New("proof verification failed")
	ErrInsufficientEscrow    = errors.New("escrow does not cover order value")
)

// ErrMatchFrozen marks a fatal invariant violation: a recorded match could
// not be settled. The match is quarantined and every further operation on it
// fails until an operator intervenes.
var ErrMatchFrozen = errors.New("match is frozen pending operator intervention")
