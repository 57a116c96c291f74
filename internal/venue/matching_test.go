package venue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMatchMidpointPricing(t *testing.T) {
	f := defaultFixture(t)
	buyHash := f.placeLimitBuy(alice, 10, 100, 1000)
	sellHash := f.placeLimitSell(bob, 10, 95)

	id, err := f.v.MatchOrders(opID, buyHash, sellHash, 10)
	require.NoError(t, err)

	m, ok := f.v.Match(id)
	require.True(t, ok)
	require.Equal(t, uint64(97), m.Price)
	require.True(t, m.Settled)
}

func TestMarketOrderTakesCounterpartyPrice(t *testing.T) {
	f := defaultFixture(t)

	p := f.limitParams(Buy, 10, 0)
	p.Kind = Market
	f.ledger.Mint(string(alice), string(assetUSD), 950)
	buyHash, err := f.v.PlaceOrder(alice, p, 950)
	require.NoError(t, err)
	sellHash := f.placeLimitSell(bob, 10, 95)

	id, err := f.v.MatchOrders(opID, buyHash, sellHash, 10)
	require.NoError(t, err)
	m, _ := f.v.Match(id)
	require.Equal(t, uint64(95), m.Price)

	// Sell-side market takes the buy limit.
	buyHash2 := f.placeLimitBuy(alice, 10, 100, 1000)
	ps := f.limitParams(Sell, 10, 0)
	ps.Kind = Market
	f.ledger.Mint(string(bob), string(assetBTC), 10)
	sellHash2, err := f.v.PlaceOrder(bob, ps, 0)
	require.NoError(t, err)

	id, err = f.v.MatchOrders(opID, buyHash2, sellHash2, 10)
	require.NoError(t, err)
	m, _ = f.v.Match(id)
	require.Equal(t, uint64(100), m.Price)
}

func TestTwoMarketOrdersRejected(t *testing.T) {
	f := defaultFixture(t)

	pb := f.limitParams(Buy, 10, 0)
	pb.Kind = Market
	f.ledger.Mint(string(alice), string(assetUSD), 10_000)
	buyHash, err := f.v.PlaceOrder(alice, pb, 10_000)
	require.NoError(t, err)

	ps := f.limitParams(Sell, 10, 0)
	ps.Kind = Market
	f.ledger.Mint(string(bob), string(assetBTC), 10)
	sellHash, err := f.v.PlaceOrder(bob, ps, 0)
	require.NoError(t, err)

	_, err = f.v.MatchOrders(opID, buyHash, sellHash, 10)
	require.ErrorIs(t, err, ErrPriceMismatch)
}

func TestCrossedLimitsRejected(t *testing.T) {
	f := defaultFixture(t)
	buyHash := f.placeLimitBuy(alice, 10, 90, 900)
	sellHash := f.placeLimitSell(bob, 10, 95)

	_, err := f.v.MatchOrders(opID, buyHash, sellHash, 10)
	require.ErrorIs(t, err, ErrPriceMismatch)
}

func TestMatchRejectsSelfAndSameSide(t *testing.T) {
	f := defaultFixture(t)
	buyHash := f.placeLimitBuy(alice, 10, 100, 1000)
	buyHash2 := f.placeLimitBuy(bob, 10, 100, 1000)

	_, err := f.v.MatchOrders(opID, buyHash, buyHash, 10)
	require.ErrorIs(t, err, ErrSelfTrade)

	_, err = f.v.MatchOrders(opID, buyHash, buyHash2, 10)
	require.ErrorIs(t, err, ErrSameSide)
}

func TestMatchPairMismatch(t *testing.T) {
	f := defaultFixture(t)
	require.NoError(t, f.v.WhitelistAsset(opID, assetETH))

	buyHash := f.placeLimitBuy(alice, 10, 100, 1000)

	p := f.limitParams(Sell, 10, 95)
	p.Asset = assetETH
	f.ledger.Mint(string(bob), string(assetETH), 10)
	sellHash, err := f.v.PlaceOrder(bob, p, 0)
	require.NoError(t, err)

	_, err = f.v.MatchOrders(opID, buyHash, sellHash, 10)
	require.ErrorIs(t, err, ErrPairMismatch)
}

func TestMatchOverFill(t *testing.T) {
	f := defaultFixture(t)
	buyHash := f.placeLimitBuy(alice, 10, 100, 1000)
	sellHash := f.placeLimitSell(bob, 5, 95)

	_, err := f.v.MatchOrders(opID, buyHash, sellHash, 6)
	require.ErrorIs(t, err, ErrOverFill)

	_, err = f.v.MatchOrders(opID, buyHash, sellHash, 0)
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestMatchMinFill(t *testing.T) {
	f := defaultFixture(t)

	p := f.limitParams(Buy, 100, 2)
	p.MinFill = 50
	f.ledger.Mint(string(alice), string(assetUSD), 200)
	buyHash, err := f.v.PlaceOrder(alice, p, 200)
	require.NoError(t, err)
	sellHash := f.placeLimitSell(bob, 100, 2)

	_, err = f.v.MatchOrders(opID, buyHash, sellHash, 40)
	require.ErrorIs(t, err, ErrBelowMinFill)

	// A fill below MinFill is allowed when it clears the whole remainder.
	_, err = f.v.MatchOrders(opID, buyHash, sellHash, 60)
	require.NoError(t, err)
	id, err := f.v.MatchOrders(opID, buyHash, sellHash, 40)
	require.NoError(t, err)
	m, _ := f.v.Match(id)
	require.True(t, m.Settled)

	o, _ := f.v.Order(buyHash)
	require.Equal(t, StatusFilled, o.Status)
}

func TestMatchUpdatesFillStatus(t *testing.T) {
	f := defaultFixture(t)
	buyHash := f.placeLimitBuy(alice, 10, 100, 1000)
	sellHash := f.placeLimitSell(bob, 20, 95)

	_, err := f.v.MatchOrders(opID, buyHash, sellHash, 4)
	require.NoError(t, err)

	buy, _ := f.v.Order(buyHash)
	sell, _ := f.v.Order(sellHash)
	require.Equal(t, StatusPartiallyFilled, buy.Status)
	require.Equal(t, uint64(6), buy.Remaining())
	require.Equal(t, StatusPartiallyFilled, sell.Status)

	_, err = f.v.MatchOrders(opID, buyHash, sellHash, 6)
	require.NoError(t, err)

	buy, _ = f.v.Order(buyHash)
	require.Equal(t, StatusFilled, buy.Status)
	require.Equal(t, uint64(10), sellSideFilled(t, f, sellHash))
}

func sellSideFilled(t *testing.T, f *fixture, h Hash) uint64 {
	t.Helper()
	o, ok := f.v.Order(h)
	require.True(t, ok)
	return o.Filled
}

func TestMatchExpiredOrderRejected(t *testing.T) {
	f := defaultFixture(t)
	buyHash := f.placeLimitBuy(alice, 10, 100, 1000)
	sellHash := f.placeLimitSell(bob, 10, 95)

	f.clock.advance(2 * time.Hour)

	_, err := f.v.MatchOrders(opID, buyHash, sellHash, 10)
	require.ErrorIs(t, err, ErrOrderNotOpen)
}

func TestIcebergVisibilityEnforcement(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnforceIcebergVisibility = true
	f := newFixture(t, cfg)

	p := f.limitParams(Sell, 1000, 95)
	p.Kind = Iceberg
	f.ledger.Mint(string(bob), string(assetBTC), 1000)
	sellHash, err := f.v.PlaceOrder(bob, p, 0)
	require.NoError(t, err)
	buyHash := f.placeLimitBuy(alice, 1000, 100, 100_000)

	// Visible slice is 10%: a fill above it is refused.
	_, err = f.v.MatchOrders(opID, buyHash, sellHash, 150)
	require.ErrorIs(t, err, ErrOverFill)

	_, err = f.v.MatchOrders(opID, buyHash, sellHash, 100)
	require.NoError(t, err)

	o, _ := f.v.Order(sellHash)
	require.Equal(t, uint64(100), o.Iceberg.Executed)
	require.Equal(t, uint64(100), o.Iceberg.Visible)
}

func TestIcebergVisibleShrinksNearCompletion(t *testing.T) {
	f := defaultFixture(t)

	p := f.limitParams(Sell, 100, 95)
	p.Kind = Iceberg
	f.ledger.Mint(string(bob), string(assetBTC), 100)
	sellHash, err := f.v.PlaceOrder(bob, p, 0)
	require.NoError(t, err)
	buyHash := f.placeLimitBuy(alice, 100, 95, 9500)

	_, err = f.v.MatchOrders(opID, buyHash, sellHash, 95)
	require.NoError(t, err)

	o, _ := f.v.Order(sellHash)
	require.Equal(t, uint64(5), o.Iceberg.Visible)
}
