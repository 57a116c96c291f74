// venue.go - The venue aggregate: authoritative store, serialization, and
// the administrative surface.
//
// All commitments, orders, matches, and statistics live in one store behind
// a single mutex, mirroring the all-or-nothing transaction semantics the
// protocol assumes: no operation is ever observed half-applied. On top of
// the lock, an explicit per-entity in-flight guard rejects re-entrant
// invocation on the same commitment, order, or match, preventing
// double-fill, double-refund, and double-settlement.

package venue

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"darkpool/internal/custody"
)

// EscrowAccount is the custody owner under which the venue holds all
// escrowed assets and value.
const EscrowAccount = "venue:escrow"

// MaxFeeRateBps caps the trading fee at 5%.
const MaxFeeRateBps = 500

// RevealInputs are the public inputs a reveal proof is checked against: the
// commitment being opened, its single-use nullifier, and the disclosed
// order parameters the proof binds to the commitment.
type RevealInputs struct {
	Commitment Hash
	Nullifier  Hash
	Trader     TraderID
	Params     OrderParams
}

// ProofVerifier is the external proof-verification subsystem. It is
// untrusted but authoritative: any non-nil Verify error rejects the reveal.
// Nullifier bookkeeping lives here; the venue additionally refuses consumed
// commitments on its own, so replay defense is layered.
type ProofVerifier interface {
	Verify(proof []byte, in RevealInputs) error
	IsNullifierUsed(nullifier Hash) bool
	MarkNullifier(nullifier Hash)
}

// Config carries the venue policy constants.
type Config struct {
	RevealDelay      time.Duration
	CommitmentExpiry time.Duration
	FeeRateBps       uint64
	FeeCollector     TraderID
	MinOrderSize     uint64
	MaxOrderSize     uint64

	// EnforceIcebergVisibility caps a single fill of an iceberg order at its
	// visible amount. Off by default: visibility is advertisement only.
	EnforceIcebergVisibility bool
}

// DefaultConfig returns the venue policy defaults.
func DefaultConfig() Config {
	return Config{
		RevealDelay:      10 * time.Second,
		CommitmentExpiry: 24 * time.Hour,
		FeeRateBps:       10,
		FeeCollector:     "venue:fees",
		MinOrderSize:     1,
		MaxOrderSize:     1_000_000_000,
	}
}

// Venue is the commit-reveal order engine and matching/settlement pipeline.
type Venue struct {
	mu  sync.Mutex
	cfg Config

	clock    Clock
	log      zerolog.Logger
	custody  custody.AssetLedger
	verifier ProofVerifier
	sink     EventSink

	operators map[TraderID]bool
	paused    bool

	assets      map[AssetID]bool
	commitments map[Hash]*Commitment
	orders      map[Hash]*Order
	matches     map[uint64]*Match
	stats       map[pairKey]*TradeStats

	inflight map[string]struct{}

	orderSeq uint64
	matchSeq uint64
}

// New creates a venue. The operator identity is the initial holder of the
// administrative surface; ledger custody is mandatory.
func New(cfg Config, ledger custody.AssetLedger, clock Clock, log zerolog.Logger, sink EventSink, operator TraderID) (*Venue, error) {
	if ledger == nil {
		return nil, fmt.Errorf("custody ledger is required")
	}
	if cfg.FeeRateBps > MaxFeeRateBps {
		return nil, ErrInvalidFeeRate
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if sink == nil {
		sink = &MemorySink{}
	}
	return &Venue{
		cfg:         cfg,
		clock:       clock,
		log:         log,
		custody:     ledger,
		sink:        sink,
		operators:   map[TraderID]bool{operator: true},
		assets:      make(map[AssetID]bool),
		commitments: make(map[Hash]*Commitment),
		orders:      make(map[Hash]*Order),
		matches:     make(map[uint64]*Match),
		stats:       make(map[pairKey]*TradeStats),
		inflight:    make(map[string]struct{}),
	}, nil
}

// acquire marks an entity as mid-operation. The caller must hold v.mu.
// This is the explicit analog of the source environment's reentrancy guard:
// the global lock already serializes operations, but the guard keeps nested
// invocation on the same entity (e.g. a sink calling back into the venue)
// from double-applying an effect.
func (v *Venue) acquire(key string) error {
	if _, busy := v.inflight[key]; busy {
		return fmt.Errorf("%w: %s", ErrBusy, key)
	}
	v.inflight[key] = struct{}{}
	return nil
}

func (v *Venue) release(key string) { delete(v.inflight, key) }

func commitmentKey(h Hash) string { return "commitment/" + h.Hex() }
func orderKey(h Hash) string      { return "order/" + h.Hex() }
func matchKey(id uint64) string   { return fmt.Sprintf("match/%d", id) }

// checkOpen rejects mutating calls while the venue is paused.
func (v *Venue) checkOpen() error {
	if v.paused {
		return ErrPaused
	}
	return nil
}

func (v *Venue) requireOperator(caller TraderID) error {
	if !v.operators[caller] {
		return ErrNotOperator
	}
	return nil
}

func (v *Venue) emit(e Event) {
	e.Time = v.clock.Now()
	v.log.Info().
		Str("event", string(e.Type)).
		Str("trader", string(e.Trader)).
		Str("order", e.OrderHash).
		Uint64("match", e.MatchID).
		Msg("venue event")
	v.sink.Emit(e)
}

// ---- administrative surface ----

// WhitelistAsset lists an asset for trading.
func (v *Venue) WhitelistAsset(caller TraderID, asset AssetID) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireOperator(caller); err != nil {
		return err
	}
	v.assets[asset] = true
	v.emit(Event{Type: EventAssetWhitelisted, Trader: caller, Asset: asset})
	return nil
}

// SetFeeRate updates the trading fee, bounded by MaxFeeRateBps.
func (v *Venue) SetFeeRate(caller TraderID, bps uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireOperator(caller); err != nil {
		return err
	}
	if bps > MaxFeeRateBps {
		return ErrInvalidFeeRate
	}
	v.cfg.FeeRateBps = bps
	return nil
}

// SetOrderSizeBounds updates the accepted [min, max] order amount.
func (v *Venue) SetOrderSizeBounds(caller TraderID, min, max uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireOperator(caller); err != nil {
		return err
	}
	if min == 0 || max < min {
		return ErrInvalidAmount
	}
	v.cfg.MinOrderSize = min
	v.cfg.MaxOrderSize = max
	return nil
}

// Pause stops all mutating operations. Reads stay available.
func (v *Venue) Pause(caller TraderID) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireOperator(caller); err != nil {
		return err
	}
	v.paused = true
	v.log.Warn().Msg("venue paused")
	return nil
}

func (v *Venue) Unpause(caller TraderID) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireOperator(caller); err != nil {
		return err
	}
	v.paused = false
	v.log.Info().Msg("venue unpaused")
	return nil
}

// SetVerifier attaches the proof-verification subsystem. Reveals fail with
// ErrVerifierNotConfigured until one is set.
func (v *Venue) SetVerifier(caller TraderID, pv ProofVerifier) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireOperator(caller); err != nil {
		return err
	}
	v.verifier = pv
	return nil
}

// AddOperator grants the administrative surface to another identity.
func (v *Venue) AddOperator(caller, op TraderID) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.requireOperator(caller); err != nil {
		return err
	}
	v.operators[op] = true
	return nil
}

// ---- read surface ----

// Order returns a copy of the order, if known.
func (v *Venue) Order(h Hash) (Order, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	o, ok := v.orders[h]
	if !ok {
		return Order{}, false
	}
	cp := *o
	if o.Iceberg != nil {
		ice := *o.Iceberg
		cp.Iceberg = &ice
	}
	return cp, true
}

// Match returns a copy of the match, if known.
func (v *Venue) Match(id uint64) (Match, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	m, ok := v.matches[id]
	if !ok {
		return Match{}, false
	}
	return *m, true
}

// PendingCommitment returns a copy of a pending commitment, if any.
func (v *Venue) PendingCommitment(h Hash) (Commitment, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	c, ok := v.commitments[h]
	if !ok {
		return Commitment{}, false
	}
	return *c, true
}

// Stats returns the aggregate trade statistics for an asset pair.
func (v *Venue) Stats(asset, unit AssetID) (TradeStats, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	s, ok := v.stats[pairKey{asset, unit}]
	if !ok {
		return TradeStats{}, false
	}
	return *s, true
}

// OpenOrders lists the matchable orders, icebergs advertising only their
// visible remainder.
func (v *Venue) OpenOrders() []Order {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []Order
	for _, o := range v.orders {
		if !o.open() {
			continue
		}
		cp := *o
		if o.Iceberg != nil {
			ice := *o.Iceberg
			cp.Iceberg = &ice
		}
		out = append(out, cp)
	}
	return out
}
