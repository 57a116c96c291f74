// stats.go - Per-pair trade statistics, accumulated from settled matches.

package venue

// recordTrade folds a settled trade into the pair's aggregates. Caller
// holds v.mu.
func (v *Venue) recordTrade(asset, unit AssetID, amount, price uint64) {
	key := pairKey{asset, unit}
	s, ok := v.stats[key]
	if !ok {
		s = &TradeStats{
			Asset:     asset,
			SizeUnit:  unit,
			LowPrice:  price,
			HighPrice: price,
		}
		v.stats[key] = s
	}
	s.TotalVolume += amount
	s.TotalTrades++
	s.LastPrice = price
	if price > s.HighPrice {
		s.HighPrice = price
	}
	if price < s.LowPrice {
		s.LowPrice = price
	}
	s.LastUpdate = v.clock.Now()
}
