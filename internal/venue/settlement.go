// settlement.go - Settlement and escrow disbursement.
//
// Settlement is the only place value leaves escrow for a trade: the traded
// asset units go to the buyer, the proceeds net of fee to the seller, the
// fee to the collector, and any buy-side midpoint surplus straight back to
// the buyer. The legs are applied with compensation: if any leg fails, the
// completed ones are re-escrowed and the match is left unsettled.
//
// Buy-side escrow accounting is exact by construction. A priced buy
// consumes the pro-rata share floor(E*filledAfter/A) - floor(E*filledBefore/A)
// per fill; the shares telescope to exactly E over a full fill, and each
// share covers the spend because E >= A*price. A market buy consumes its
// spend directly. What a fill does not consume is refunded on cancel or
// expiry, so every escrowed unit is disbursed exactly once.

package venue

import (
	"fmt"
	"math/big"
)

// feeSplit computes the fee and seller proceeds for a trade value.
// The fee is integer-truncated; proceeds absorb the remainder, so
// fee + proceeds == totalValue exactly.
func feeSplit(totalValue, feeRateBps uint64) (fee, proceeds uint64, err error) {
	scaled, err := mulChecked(totalValue, feeRateBps)
	if err != nil {
		return 0, 0, err
	}
	fee = scaled / 10_000
	return fee, totalValue - fee, nil
}

// buyEscrowShare computes how much of the buy order's escrowed payment this
// fill consumes.
func buyEscrowShare(buy *Order, amount, totalValue uint64) uint64 {
	if buy.Kind == Market {
		return totalValue
	}
	e := new(big.Int).SetUint64(buy.EscrowedPayment)
	a := new(big.Int).SetUint64(buy.Amount)
	before := new(big.Int).Mul(e, new(big.Int).SetUint64(buy.Filled))
	before.Quo(before, a)
	after := new(big.Int).Mul(e, new(big.Int).SetUint64(buy.Filled+amount))
	after.Quo(after, a)
	return after.Sub(after, before).Uint64()
}

type settlementLeg struct {
	to     TraderID
	asset  AssetID
	amount uint64
}

// executeSettlement disburses a match and applies fill state. Caller holds
// v.mu and the relevant guards. On error no value has moved and no fill
// state has changed.
func (v *Venue) executeSettlement(m *Match, buy, sell *Order) error {
	totalValue, err := mulChecked(m.Amount, m.Price)
	if err != nil {
		return err
	}
	fee, proceeds, err := feeSplit(totalValue, v.cfg.FeeRateBps)
	if err != nil {
		return err
	}

	share := buyEscrowShare(buy, m.Amount, totalValue)
	if share < totalValue || share > buy.escrowRemaining {
		return fmt.Errorf("%w: fill needs %d, escrow share %d, remaining %d",
			ErrInsufficientEscrow, totalValue, share, buy.escrowRemaining)
	}
	surplus := share - totalValue

	// A fill that completes the buy also releases whatever escrow the
	// shares did not consume; a market buy escrowed above its eventual
	// spend would otherwise strand the difference on a filled order.
	var residual uint64
	if buy.Filled+m.Amount == buy.Amount {
		residual = buy.escrowRemaining - share
	}

	legs := []settlementLeg{
		{buy.Trader, buy.Asset, m.Amount},        // traded units to the buyer
		{sell.Trader, sell.SizeUnit, proceeds},   // net proceeds to the seller
		{v.cfg.FeeCollector, sell.SizeUnit, fee}, // fee to the collector
	}
	if surplus+residual > 0 {
		legs = append(legs, settlementLeg{buy.Trader, buy.SizeUnit, surplus + residual})
	}
	for i, leg := range legs {
		if leg.amount == 0 {
			continue
		}
		if err := v.releaseFromEscrow(leg.to, leg.asset, leg.amount); err != nil {
			if cerr := v.compensate(m.ID, legs[:i]); cerr != nil {
				m.Frozen = true
				return fmt.Errorf("%w: %v; %v", ErrMatchFrozen, err, cerr)
			}
			return err
		}
	}

	buy.Filled += m.Amount
	sell.Filled += m.Amount
	buy.escrowRemaining -= share + residual
	buy.refreshStatus()
	sell.refreshStatus()
	updateIceberg(buy, m.Amount)
	updateIceberg(sell, m.Amount)
	m.Settled = true

	v.recordTrade(buy.Asset, buy.SizeUnit, m.Amount, m.Price)
	v.emit(Event{
		Type:     EventTradeSettled,
		MatchID:  m.ID,
		Asset:    buy.Asset,
		SizeUnit: buy.SizeUnit,
		Amount:   m.Amount,
		Price:    m.Price,
	})
	return nil
}

// compensate re-escrows already-applied settlement legs after a later leg
// failed. An undo leg that itself fails leaves value outside escrow; every
// such leg is logged with its full destination and amount, and the total is
// returned so the caller can freeze the match with the discrepancy on
// record.
func (v *Venue) compensate(matchID uint64, applied []settlementLeg) error {
	var stranded uint64
	for _, leg := range applied {
		if leg.amount == 0 {
			continue
		}
		if err := v.custody.Debit(string(leg.to), string(leg.asset), leg.amount); err != nil {
			v.log.Error().Uint64("match", matchID).Str("owner", string(leg.to)).
				Str("asset", string(leg.asset)).Uint64("amount", leg.amount).
				Err(err).Msg("compensation debit failed; value left outside escrow")
			stranded += leg.amount
			continue
		}
		if err := v.custody.Credit(EscrowAccount, string(leg.asset), leg.amount); err != nil {
			v.log.Error().Uint64("match", matchID).Str("owner", string(leg.to)).
				Str("asset", string(leg.asset)).Uint64("amount", leg.amount).
				Err(err).Msg("compensation credit failed; value left outside escrow")
			stranded += leg.amount
		}
	}
	if stranded > 0 {
		return fmt.Errorf("compensation incomplete: %d units left outside escrow", stranded)
	}
	return nil
}

// updateIceberg advances the executed quantity and shrinks the advertised
// remainder. Visibility never gates the fill itself unless the enforcement
// option is on.
func updateIceberg(o *Order, amount uint64) {
	if o.Iceberg == nil {
		return
	}
	o.Iceberg.Executed += amount
	if left := o.Iceberg.Total - o.Iceberg.Executed; o.Iceberg.Visible > left {
		o.Iceberg.Visible = left
	}
}
