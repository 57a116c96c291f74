package venue

import (
	"crypto/sha256"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"darkpool/internal/custody"
)

const (
	opID  = TraderID("op")
	alice = TraderID("alice")
	bob   = TraderID("bob")

	assetBTC = AssetID("BTC")
	assetETH = AssetID("ETH")
	assetUSD = AssetID("USD")
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

type stubVerifier struct {
	rejectErr error
	used      map[Hash]bool
}

func newStubVerifier() *stubVerifier { return &stubVerifier{used: make(map[Hash]bool)} }

func (s *stubVerifier) Verify(proof []byte, in RevealInputs) error { return s.rejectErr }
func (s *stubVerifier) IsNullifierUsed(n Hash) bool                { return s.used[n] }
func (s *stubVerifier) MarkNullifier(n Hash)                       { s.used[n] = true }

type fixture struct {
	t        *testing.T
	v        *Venue
	clock    *fakeClock
	ledger   *custody.MemoryLedger
	sink     *MemorySink
	verifier *stubVerifier
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	ledger := custody.NewMemoryLedger()
	sink := &MemorySink{}
	v, err := New(cfg, ledger, clock, zerolog.Nop(), sink, opID)
	require.NoError(t, err)

	verifier := newStubVerifier()
	require.NoError(t, v.SetVerifier(opID, verifier))
	require.NoError(t, v.WhitelistAsset(opID, assetBTC))
	require.NoError(t, v.WhitelistAsset(opID, assetUSD))

	return &fixture{t: t, v: v, clock: clock, ledger: ledger, sink: sink, verifier: verifier}
}

func defaultFixture(t *testing.T) *fixture { return newFixture(t, DefaultConfig()) }

// hashOf derives a deterministic nonzero hash for test identifiers.
func hashOf(seed string) Hash {
	sum := sha256.Sum256([]byte(seed))
	return HashFromBytes(sum[:])
}

func (f *fixture) limitParams(side Side, amount, price uint64) OrderParams {
	return OrderParams{
		Asset:    assetBTC,
		SizeUnit: assetUSD,
		Kind:     Limit,
		Side:     side,
		Amount:   amount,
		Price:    price,
		Expiry:   f.clock.now.Add(time.Hour),
	}
}

// placeLimitBuy mints the escrow, places the order, and returns its hash.
func (f *fixture) placeLimitBuy(trader TraderID, amount, price, escrow uint64) Hash {
	f.t.Helper()
	f.ledger.Mint(string(trader), string(assetUSD), escrow)
	h, err := f.v.PlaceOrder(trader, f.limitParams(Buy, amount, price), escrow)
	require.NoError(f.t, err)
	return h
}

// placeLimitSell mints the asset units, places the order, and returns its hash.
func (f *fixture) placeLimitSell(trader TraderID, amount, price uint64) Hash {
	f.t.Helper()
	f.ledger.Mint(string(trader), string(assetBTC), amount)
	h, err := f.v.PlaceOrder(trader, f.limitParams(Sell, amount, price), 0)
	require.NoError(f.t, err)
	return h
}

func TestNewRequiresLedger(t *testing.T) {
	_, err := New(DefaultConfig(), nil, nil, zerolog.Nop(), nil, opID)
	require.Error(t, err)
}

func TestNewRejectsExcessiveFee(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FeeRateBps = MaxFeeRateBps + 1
	_, err := New(cfg, custody.NewMemoryLedger(), nil, zerolog.Nop(), nil, opID)
	require.ErrorIs(t, err, ErrInvalidFeeRate)
}

func TestOperatorSurfaceGated(t *testing.T) {
	f := defaultFixture(t)

	require.ErrorIs(t, f.v.WhitelistAsset(alice, assetETH), ErrNotOperator)
	require.ErrorIs(t, f.v.SetFeeRate(alice, 20), ErrNotOperator)
	require.ErrorIs(t, f.v.Pause(alice), ErrNotOperator)
	_, err := f.v.MatchOrders(alice, hashOf("a"), hashOf("b"), 1)
	require.ErrorIs(t, err, ErrNotOperator)

	require.NoError(t, f.v.AddOperator(opID, alice))
	require.NoError(t, f.v.WhitelistAsset(alice, assetETH))
}

func TestSetFeeRateBounded(t *testing.T) {
	f := defaultFixture(t)
	require.NoError(t, f.v.SetFeeRate(opID, MaxFeeRateBps))
	require.ErrorIs(t, f.v.SetFeeRate(opID, MaxFeeRateBps+1), ErrInvalidFeeRate)
}

func TestSetOrderSizeBounds(t *testing.T) {
	f := defaultFixture(t)
	require.ErrorIs(t, f.v.SetOrderSizeBounds(opID, 0, 10), ErrInvalidAmount)
	require.ErrorIs(t, f.v.SetOrderSizeBounds(opID, 10, 5), ErrInvalidAmount)
	require.NoError(t, f.v.SetOrderSizeBounds(opID, 5, 50))

	f.ledger.Mint(string(alice), string(assetUSD), 1000)
	_, err := f.v.PlaceOrder(alice, f.limitParams(Buy, 4, 10), 1000)
	require.ErrorIs(t, err, ErrInvalidAmount)
	_, err = f.v.PlaceOrder(alice, f.limitParams(Buy, 51, 10), 1000)
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestPauseBlocksMutations(t *testing.T) {
	f := defaultFixture(t)
	buyHash := f.placeLimitBuy(alice, 10, 100, 1000)

	require.NoError(t, f.v.Pause(opID))

	require.ErrorIs(t, f.v.CommitOrder(alice, hashOf("c"), assetUSD, 0), ErrPaused)
	_, err := f.v.PlaceOrder(alice, f.limitParams(Buy, 10, 100), 1000)
	require.ErrorIs(t, err, ErrPaused)
	_, err = f.v.CancelOrder(alice, buyHash)
	require.ErrorIs(t, err, ErrPaused)
	_, err = f.v.MatchOrders(opID, buyHash, hashOf("s"), 1)
	require.ErrorIs(t, err, ErrPaused)
	require.ErrorIs(t, f.v.Settle(1), ErrPaused)

	// Reads stay available while paused.
	_, ok := f.v.Order(buyHash)
	require.True(t, ok)

	require.NoError(t, f.v.Unpause(opID))
	_, err = f.v.CancelOrder(alice, buyHash)
	require.NoError(t, err)
}

func TestOpenOrdersListsOnlyOpen(t *testing.T) {
	f := defaultFixture(t)
	buyHash := f.placeLimitBuy(alice, 10, 100, 1000)
	sellHash := f.placeLimitSell(bob, 5, 90)

	_, err := f.v.CancelOrder(bob, sellHash)
	require.NoError(t, err)

	open := f.v.OpenOrders()
	require.Len(t, open, 1)
	require.Equal(t, buyHash, open[0].Hash)
}

func TestBusyGuardRejectsReentry(t *testing.T) {
	f := defaultFixture(t)
	f.v.inflight[commitmentKey(hashOf("c"))] = struct{}{}

	err := f.v.CommitOrder(alice, hashOf("c"), assetUSD, 0)
	require.ErrorIs(t, err, ErrBusy)
}

var errLedgerDown = errors.New("ledger unavailable")
