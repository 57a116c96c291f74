// matching.go - Matching engine.
//
// An operator proposes a match between two open orders; the engine
// validates compatibility, resolves the execution price, and settles in the
// same step. Fill state is applied only after settlement succeeds, so a
// match that cannot settle never leaves an order in a filled state.
//
// Price policy: a market order executes at the counterparty's limit price;
// two priced orders execute at the midpoint of their limits. The midpoint
// rule is a deliberate simplification of price discovery, documented as
// policy, not an optimality claim.

package venue

import "fmt"

// MatchOrders validates and records a match of `amount` between a buy and a
// sell order and immediately settles it. Returns the match identifier.
func (v *Venue) MatchOrders(operator TraderID, buyHash, sellHash Hash, amount uint64) (uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.checkOpen(); err != nil {
		return 0, err
	}
	if err := v.requireOperator(operator); err != nil {
		return 0, err
	}
	if buyHash == sellHash {
		return 0, ErrSelfTrade
	}
	buy, ok := v.orders[buyHash]
	if !ok {
		return 0, fmt.Errorf("%w: buy %s", ErrUnknownOrder, buyHash)
	}
	sell, ok := v.orders[sellHash]
	if !ok {
		return 0, fmt.Errorf("%w: sell %s", ErrUnknownOrder, sellHash)
	}
	if buy.Side != Buy || sell.Side != Sell {
		return 0, ErrSameSide
	}
	now := v.clock.Now()
	for _, o := range []*Order{buy, sell} {
		if !o.open() || !o.Expiry.After(now) {
			return 0, fmt.Errorf("%w: %s is %s", ErrOrderNotOpen, o.Hash, o.Status)
		}
	}
	if buy.Asset != sell.Asset || buy.SizeUnit != sell.SizeUnit {
		return 0, ErrPairMismatch
	}
	if amount == 0 {
		return 0, ErrInvalidAmount
	}
	if amount > buy.Remaining() || amount > sell.Remaining() {
		return 0, fmt.Errorf("%w: amount %d, buy remaining %d, sell remaining %d",
			ErrOverFill, amount, buy.Remaining(), sell.Remaining())
	}
	for _, o := range []*Order{buy, sell} {
		if amount < o.MinFill && amount != o.Remaining() {
			return 0, fmt.Errorf("%w: amount %d below %d on %s", ErrBelowMinFill, amount, o.MinFill, o.Hash)
		}
		if v.cfg.EnforceIcebergVisibility && o.Iceberg != nil && amount > o.Iceberg.Visible {
			return 0, fmt.Errorf("%w: amount %d exceeds visible %d on %s",
				ErrOverFill, amount, o.Iceberg.Visible, o.Hash)
		}
	}

	price, err := resolvePrice(buy, sell)
	if err != nil {
		return 0, err
	}

	bKey, sKey := orderKey(buyHash), orderKey(sellHash)
	if err := v.acquire(bKey); err != nil {
		return 0, err
	}
	defer v.release(bKey)
	if err := v.acquire(sKey); err != nil {
		return 0, err
	}
	defer v.release(sKey)

	v.matchSeq++
	m := &Match{
		ID:        v.matchSeq,
		BuyHash:   buyHash,
		SellHash:  sellHash,
		Amount:    amount,
		Price:     price,
		Timestamp: now,
	}
	v.matches[m.ID] = m
	v.emit(Event{
		Type:      EventMatchCreated,
		Trader:    operator,
		MatchID:   m.ID,
		Asset:     buy.Asset,
		SizeUnit:  buy.SizeUnit,
		Amount:    amount,
		Price:     price,
	})

	// Matching and settlement are one atomic step. A recorded match that
	// cannot settle is a fatal invariant violation: it is frozen, never
	// silently skipped, and the orders keep their pre-match fill state.
	if err := v.executeSettlement(m, buy, sell); err != nil {
		m.Frozen = true
		v.log.Error().Uint64("match", m.ID).Err(err).Msg("settlement failed; match frozen")
		return m.ID, fmt.Errorf("%w: %v", ErrMatchFrozen, err)
	}
	return m.ID, nil
}

// Settle drives an existing match to settlement. Matching settles inline,
// so this is the idempotence and operator surface: settling a settled match
// is a no-op error, and a frozen match stays frozen.
func (v *Venue) Settle(matchID uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.checkOpen(); err != nil {
		return err
	}
	m, ok := v.matches[matchID]
	if !ok {
		return ErrUnknownMatch
	}
	if m.Settled {
		return ErrAlreadySettled
	}
	if m.Frozen {
		return ErrMatchFrozen
	}
	key := matchKey(matchID)
	if err := v.acquire(key); err != nil {
		return err
	}
	defer v.release(key)

	buy, sell := v.orders[m.BuyHash], v.orders[m.SellHash]
	if buy == nil || sell == nil {
		return fmt.Errorf("%w: orders missing for match %d", ErrMatchFrozen, matchID)
	}
	return v.executeSettlement(m, buy, sell)
}

// resolvePrice applies the price policy.
func resolvePrice(buy, sell *Order) (uint64, error) {
	buyMarket, sellMarket := buy.Kind == Market, sell.Kind == Market
	switch {
	case buyMarket && sellMarket:
		return 0, fmt.Errorf("%w: two market orders carry no price", ErrPriceMismatch)
	case buyMarket:
		return sell.Price, nil
	case sellMarket:
		return buy.Price, nil
	default:
		if buy.Price < sell.Price {
			return 0, fmt.Errorf("%w: buy %d < sell %d", ErrPriceMismatch, buy.Price, sell.Price)
		}
		return (buy.Price + sell.Price) / 2, nil
	}
}
