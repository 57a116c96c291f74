// commitment.go - Commitment registry.
//
// A commitment is an opaque hash standing in for a not-yet-revealed order,
// optionally escrowing payment. It is single-use: exactly one of reveal or
// cancellation consumes it. Reveal timing is gated by RevealDelay (no early
// visibility for the matching layer) and CommitmentExpiry; an expired
// commitment is no longer revealable but stays cancellable, so escrow is
// never stranded.

package venue

import "fmt"

// CommitOrder registers a pending order commitment, custodying escrow with
// the venue until reveal or cancellation.
func (v *Venue) CommitOrder(trader TraderID, commitment Hash, escrowAsset AssetID, escrow uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.checkOpen(); err != nil {
		return err
	}
	if commitment.IsZero() {
		return ErrInvalidCommitment
	}
	if _, exists := v.commitments[commitment]; exists {
		return ErrDuplicateCommitment
	}
	key := commitmentKey(commitment)
	if err := v.acquire(key); err != nil {
		return err
	}
	defer v.release(key)

	if escrow > 0 {
		if err := v.custody.Debit(string(trader), string(escrowAsset), escrow); err != nil {
			return fmt.Errorf("escrow debit: %w", err)
		}
		if err := v.custody.Credit(EscrowAccount, string(escrowAsset), escrow); err != nil {
			// Undo the debit so no value is stranded mid-transfer.
			v.custody.Credit(string(trader), string(escrowAsset), escrow)
			return fmt.Errorf("escrow credit: %w", err)
		}
	}

	v.commitments[commitment] = &Commitment{
		ID:          commitment,
		Owner:       trader,
		CreatedAt:   v.clock.Now(),
		EscrowAsset: escrowAsset,
		Escrow:      escrow,
	}
	v.emit(Event{
		Type:       EventCommitmentCommitted,
		Trader:     trader,
		Commitment: commitment.Hex(),
		Asset:      escrowAsset,
		Amount:     escrow,
	})
	return nil
}

// CancelCommitment deletes a pending commitment and returns its full escrow
// to the owner. Safe to call at any age of the commitment, including after
// expiry; it races reveal only logically, since both run under the venue
// lock and the in-flight guard, so exactly one of them consumes the record.
func (v *Venue) CancelCommitment(trader TraderID, commitment Hash) (uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.checkOpen(); err != nil {
		return 0, err
	}
	c, ok := v.commitments[commitment]
	if !ok {
		return 0, ErrUnknownCommitment
	}
	if c.Owner != trader {
		return 0, ErrNotOwner
	}
	key := commitmentKey(commitment)
	if err := v.acquire(key); err != nil {
		return 0, err
	}
	defer v.release(key)

	if c.Escrow > 0 {
		if err := v.custody.Debit(EscrowAccount, string(c.EscrowAsset), c.Escrow); err != nil {
			return 0, fmt.Errorf("escrow release: %w", err)
		}
		if err := v.custody.Credit(string(trader), string(c.EscrowAsset), c.Escrow); err != nil {
			v.custody.Credit(EscrowAccount, string(c.EscrowAsset), c.Escrow)
			return 0, fmt.Errorf("escrow refund: %w", err)
		}
	}

	delete(v.commitments, commitment)
	v.emit(Event{
		Type:       EventCommitmentCancelled,
		Trader:     trader,
		Commitment: commitment.Hex(),
		Asset:      c.EscrowAsset,
		Amount:     c.Escrow,
	})
	return c.Escrow, nil
}

// checkRevealWindow enforces the commitment timing policy. Both bounds are
// policy constants, not security parameters of the proof.
func (v *Venue) checkRevealWindow(c *Commitment) error {
	now := v.clock.Now()
	if now.Before(c.CreatedAt.Add(v.cfg.RevealDelay)) {
		return ErrRevealTooEarly
	}
	if now.After(c.CreatedAt.Add(v.cfg.CommitmentExpiry)) {
		return ErrCommitmentExpired
	}
	return nil
}
