// reveal.go - Proof gateway: proof-gated disclosure of committed orders.
//
// A reveal discloses the order parameters bound inside a commitment and
// proves, via the attached verifier, that they open the commitment and that
// the nullifier is fresh. Replay defense is layered: the verifier tracks
// nullifiers, and the registry independently refuses a consumed commitment
// even if the verifier would accept the same proof again.

package venue

import "fmt"

// RevealOrder authenticates orderParams against a pending commitment and,
// on success, atomically consumes the commitment and admits the order to
// the book, inheriting the commitment's escrow. Any rejection leaves the
// commitment pending and its escrow recoverable via CancelCommitment.
func (v *Venue) RevealOrder(trader TraderID, commitment Hash, proof []byte, nullifier Hash, params OrderParams) (Hash, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.checkOpen(); err != nil {
		return ZeroHash, err
	}
	if v.verifier == nil {
		return ZeroHash, ErrVerifierNotConfigured
	}
	c, ok := v.commitments[commitment]
	if !ok {
		return ZeroHash, ErrUnknownCommitment
	}
	if c.Owner != trader {
		return ZeroHash, ErrOwnershipMismatch
	}
	key := commitmentKey(commitment)
	if err := v.acquire(key); err != nil {
		return ZeroHash, err
	}
	defer v.release(key)

	if err := v.checkRevealWindow(c); err != nil {
		return ZeroHash, err
	}
	if v.verifier.IsNullifierUsed(nullifier) {
		return ZeroHash, ErrNullifierUsed
	}
	if err := v.verifier.Verify(proof, RevealInputs{
		Commitment: commitment,
		Nullifier:  nullifier,
		Trader:     trader,
		Params:     params,
	}); err != nil {
		return ZeroHash, fmt.Errorf("%w: %v", ErrProofRejected, err)
	}
	if err := v.validateParams(params); err != nil {
		return ZeroHash, err
	}

	// Escrow checks and movements before any state is consumed.
	var escrowPayment uint64
	switch params.Side {
	case Buy:
		required, err := mulChecked(params.Amount, params.Price)
		if err != nil {
			return ZeroHash, err
		}
		// A buy inherits the commitment's escrow as payment, so the escrow
		// asset must be the order's payment asset even when the order names
		// no up-front notional (market buy). Inheriting escrow denominated
		// in another asset would disburse value that was never deposited.
		if c.Escrow > 0 && c.EscrowAsset != params.SizeUnit {
			return ZeroHash, fmt.Errorf("%w: committed %d %s, order pays in %s",
				ErrInsufficientEscrow, c.Escrow, c.EscrowAsset, params.SizeUnit)
		}
		if c.Escrow < required {
			return ZeroHash, fmt.Errorf("%w: committed %d %s, need %d %s",
				ErrInsufficientEscrow, c.Escrow, c.EscrowAsset, required, params.SizeUnit)
		}
		escrowPayment = c.Escrow
	case Sell:
		if err := v.moveToEscrow(trader, params.Asset, params.Amount); err != nil {
			return ZeroHash, err
		}
		// A sell does not consume payment escrow; return whatever the
		// commitment carried.
		if c.Escrow > 0 {
			if err := v.releaseFromEscrow(trader, c.EscrowAsset, c.Escrow); err != nil {
				v.releaseFromEscrow(trader, params.Asset, params.Amount)
				return ZeroHash, err
			}
		}
	}

	delete(v.commitments, commitment)
	v.verifier.MarkNullifier(nullifier)

	o := v.insertOrder(trader, params, false, escrowPayment)
	v.emit(Event{
		Type:       EventOrderRevealed,
		Trader:     trader,
		Commitment: commitment.Hex(),
		OrderHash:  o.Hash.Hex(),
		Asset:      o.Asset,
		SizeUnit:   o.SizeUnit,
		Amount:     o.Amount,
		Price:      o.Price,
	})
	return o.Hash, nil
}
