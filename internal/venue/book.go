// book.go - Order book: direct placement, cancellation, and expiry.
//
// The book owns all revealed and public orders. A buy order escrows quote
// value covering amount*price at submission; a sell order escrows its asset
// units. Cancellation and expiry refund exactly the escrow not yet consumed
// by settlement, so every escrowed unit is disbursed once on every exit
// path.

package venue

import "fmt"

// validateParams applies the submission rules shared by the public path and
// the reveal path.
func (v *Venue) validateParams(p OrderParams) error {
	if !v.assets[p.Asset] || !v.assets[p.SizeUnit] {
		return ErrAssetNotListed
	}
	if p.Amount < v.cfg.MinOrderSize || p.Amount > v.cfg.MaxOrderSize {
		return ErrInvalidAmount
	}
	if p.Kind != Market && p.Price == 0 {
		return ErrInvalidPrice
	}
	if !p.Expiry.After(v.clock.Now()) {
		return ErrInvalidExpiry
	}
	if p.MinFill > p.Amount {
		return ErrInvalidMinFill
	}
	return nil
}

// newIceberg applies the visibility policy: 10% of the total is advertised.
// Tiny orders advertise everything.
func newIceberg(amount uint64) *IcebergState {
	visible := amount / 10
	if visible == 0 {
		visible = amount
	}
	return &IcebergState{Total: amount, Visible: visible}
}

// insertOrder builds the order record and registers it under its
// content-derived hash. Caller holds v.mu and has already moved escrow.
func (v *Venue) insertOrder(trader TraderID, p OrderParams, public bool, escrowPayment uint64) *Order {
	v.orderSeq++
	now := v.clock.Now()
	o := &Order{
		ID:              v.orderSeq,
		Hash:            orderDigest(trader, p, now, v.orderSeq),
		Trader:          trader,
		Asset:           p.Asset,
		SizeUnit:        p.SizeUnit,
		Kind:            p.Kind,
		Side:            p.Side,
		Amount:          p.Amount,
		Price:           p.Price,
		MinFill:         p.MinFill,
		CreatedAt:       now,
		Expiry:          p.Expiry,
		Status:          StatusPending,
		Public:          public,
		EscrowedPayment: escrowPayment,
		escrowRemaining: escrowPayment,
	}
	if p.Kind == Iceberg {
		o.Iceberg = newIceberg(p.Amount)
	}
	v.orders[o.Hash] = o
	return o
}

// PlaceOrder submits an order on the direct, public path, bypassing
// commit-reveal. Buy orders custody escrow quote value (at least
// amount*price for priced orders); sell orders custody exactly their asset
// units.
func (v *Venue) PlaceOrder(trader TraderID, p OrderParams, escrow uint64) (Hash, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.checkOpen(); err != nil {
		return ZeroHash, err
	}
	if err := v.validateParams(p); err != nil {
		return ZeroHash, err
	}

	var escrowPayment uint64
	switch p.Side {
	case Buy:
		required, err := mulChecked(p.Amount, p.Price)
		if err != nil {
			return ZeroHash, err
		}
		if escrow < required {
			return ZeroHash, fmt.Errorf("%w: have %d, need %d", ErrInsufficientEscrow, escrow, required)
		}
		if err := v.moveToEscrow(trader, p.SizeUnit, escrow); err != nil {
			return ZeroHash, err
		}
		escrowPayment = escrow
	case Sell:
		if err := v.moveToEscrow(trader, p.Asset, p.Amount); err != nil {
			return ZeroHash, err
		}
	}

	o := v.insertOrder(trader, p, true, escrowPayment)
	v.emit(Event{
		Type:      EventOrderPlaced,
		Trader:    trader,
		OrderHash: o.Hash.Hex(),
		Asset:     o.Asset,
		SizeUnit:  o.SizeUnit,
		Amount:    o.Amount,
		Price:     o.Price,
	})
	return o.Hash, nil
}

// CancelOrder cancels an open order and refunds the unfilled escrow: the
// undisbursed quote value for a buy, the unfilled asset units for a sell.
func (v *Venue) CancelOrder(trader TraderID, orderHash Hash) (uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.checkOpen(); err != nil {
		return 0, err
	}
	o, ok := v.orders[orderHash]
	if !ok {
		return 0, ErrUnknownOrder
	}
	if o.Trader != trader {
		return 0, ErrNotOrderOwner
	}
	if !o.open() {
		return 0, fmt.Errorf("%w: status %s", ErrNotCancellable, o.Status)
	}
	key := orderKey(orderHash)
	if err := v.acquire(key); err != nil {
		return 0, err
	}
	defer v.release(key)

	refund, err := v.releaseOrderEscrow(o)
	if err != nil {
		return 0, err
	}
	o.Status = StatusCancelled
	v.emit(Event{
		Type:      EventOrderCancelled,
		Trader:    trader,
		OrderHash: orderHash.Hex(),
		Asset:     o.Asset,
		Amount:    refund,
	})
	return refund, nil
}

// ExpireOrders transitions every open order whose expiry has passed to
// Expired and refunds its remaining escrow. Returns the number of orders
// expired.
func (v *Venue) ExpireOrders() (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.checkOpen(); err != nil {
		return 0, err
	}
	now := v.clock.Now()
	expired := 0
	for _, o := range v.orders {
		if !o.open() || o.Expiry.After(now) {
			continue
		}
		key := orderKey(o.Hash)
		if err := v.acquire(key); err != nil {
			continue
		}
		refund, err := v.releaseOrderEscrow(o)
		v.release(key)
		if err != nil {
			return expired, err
		}
		o.Status = StatusExpired
		expired++
		v.emit(Event{
			Type:      EventOrderExpired,
			Trader:    o.Trader,
			OrderHash: o.Hash.Hex(),
			Asset:     o.Asset,
			Amount:    refund,
		})
	}
	return expired, nil
}

// releaseOrderEscrow returns the order's remaining escrow to its owner and
// zeroes the on-order accounting. Caller holds v.mu and the order guard.
func (v *Venue) releaseOrderEscrow(o *Order) (uint64, error) {
	var refund uint64
	var asset AssetID
	if o.Side == Buy {
		refund = o.escrowRemaining
		asset = o.SizeUnit
	} else {
		refund = o.Remaining()
		asset = o.Asset
	}
	if refund == 0 {
		return 0, nil
	}
	if err := v.releaseFromEscrow(o.Trader, asset, refund); err != nil {
		return 0, err
	}
	if o.Side == Buy {
		o.escrowRemaining = 0
	}
	return refund, nil
}

// moveToEscrow debits the trader and credits the venue escrow account,
// compensating the first leg if the second fails.
func (v *Venue) moveToEscrow(trader TraderID, asset AssetID, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if err := v.custody.Debit(string(trader), string(asset), amount); err != nil {
		return fmt.Errorf("escrow debit: %w", err)
	}
	if err := v.custody.Credit(EscrowAccount, string(asset), amount); err != nil {
		v.custody.Credit(string(trader), string(asset), amount)
		return fmt.Errorf("escrow credit: %w", err)
	}
	return nil
}

// releaseFromEscrow moves custodied units back to (or on to) an owner.
func (v *Venue) releaseFromEscrow(to TraderID, asset AssetID, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if err := v.custody.Debit(EscrowAccount, string(asset), amount); err != nil {
		return fmt.Errorf("escrow release: %w", err)
	}
	if err := v.custody.Credit(string(to), string(asset), amount); err != nil {
		v.custody.Credit(EscrowAccount, string(asset), amount)
		return fmt.Errorf("escrow payout: %w", err)
	}
	return nil
}
