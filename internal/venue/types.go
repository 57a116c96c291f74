// types.go - Core data model for the private trading venue.
//
// A trader either places an order publicly or registers an opaque commitment
// and later reveals it through a zero-knowledge proof. Revealed and public
// orders live in the same book, keyed by a content-derived MiMC hash.

package venue

import (
	"encoding/hex"
	"time"
)

// Hash is a MiMC digest over the BW6-761 scalar field, used both for order
// commitments and for content-derived order identifiers.
type Hash [48]byte

// ZeroHash is the invalid all-zero hash.
var ZeroHash Hash

func (h Hash) IsZero() bool { return h == ZeroHash }

func (h Hash) Hex() string { return hex.EncodeToString(h[:]) }

func (h Hash) String() string { return h.Hex()[:16] }

// HashFromBytes copies b into a Hash, right-aligned like a big-endian field
// element.
func HashFromBytes(b []byte) Hash {
	var h Hash
	if len(b) > len(h) {
		b = b[len(b)-len(h):]
	}
	copy(h[len(h)-len(b):], b)
	return h
}

// TraderID identifies a participant on the custody ledger.
type TraderID string

// AssetID identifies a fungible asset on the custody ledger.
type AssetID string

type Side uint8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Sell {
		return "sell"
	}
	return "buy"
}

type OrderKind uint8

const (
	Market OrderKind = iota
	Limit
	Iceberg
	// VWAP and TWAP are named execution variants. Their scheduling lives
	// outside the venue; inside the book they price and match like limit
	// orders.
	VWAP
	TWAP
)

func (k OrderKind) String() string {
	switch k {
	case Market:
		return "market"
	case Limit:
		return "limit"
	case Iceberg:
		return "iceberg"
	case VWAP:
		return "vwap"
	case TWAP:
		return "twap"
	default:
		return "unknown"
	}
}

type OrderStatus uint8

const (
	StatusPending OrderStatus = iota
	StatusPartiallyFilled
	StatusFilled
	StatusCancelled
	StatusExpired
)

func (st OrderStatus) String() string {
	switch st {
	case StatusPending:
		return "pending"
	case StatusPartiallyFilled:
		return "partially_filled"
	case StatusFilled:
		return "filled"
	case StatusCancelled:
		return "cancelled"
	case StatusExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// OrderParams are the trader-supplied order fields, either given in the
// clear to PlaceOrder or bound inside a commitment and disclosed at reveal.
type OrderParams struct {
	Asset    AssetID
	SizeUnit AssetID // quote asset the order is paid in
	Kind     OrderKind
	Side     Side
	Amount   uint64
	Price    uint64 // SizeUnit per unit of Asset; zero for market orders
	MinFill  uint64
	Expiry   time.Time
}

// Commitment is a pending, not-yet-revealed order registration. It is
// deleted when revealed or cancelled; it is never reused.
type Commitment struct {
	ID          Hash
	Owner       TraderID
	CreatedAt   time.Time
	EscrowAsset AssetID
	Escrow      uint64
}

// IcebergState tracks the advertised versus executed quantity of an iceberg
// order. Visible is informational: the full amount remains matchable unless
// visibility enforcement is switched on.
type IcebergState struct {
	Total    uint64
	Visible  uint64
	Executed uint64
}

// Order is a revealed or public order owned by the book. Fill state is
// mutated only by the matching engine; cancellation only by the owner.
type Order struct {
	ID       uint64
	Hash     Hash
	Trader   TraderID
	Asset    AssetID
	SizeUnit AssetID
	Kind     OrderKind
	Side     Side
	Amount   uint64
	Filled   uint64
	Price    uint64
	MinFill  uint64

	CreatedAt time.Time
	Expiry    time.Time
	Status    OrderStatus
	Public    bool

	// EscrowedPayment is the quote value custodied at submission (buy side).
	// escrowRemaining is the portion not yet disbursed through settlement or
	// refund; it reaches zero exactly when the order is fully filled or the
	// remainder refunded.
	EscrowedPayment uint64
	escrowRemaining uint64

	Iceberg *IcebergState
}

// Remaining returns the unfilled quantity.
func (o *Order) Remaining() uint64 { return o.Amount - o.Filled }

// open reports whether the order can still participate in a match.
func (o *Order) open() bool {
	return o.Status == StatusPending || o.Status == StatusPartiallyFilled
}

// refreshStatus derives Pending/PartiallyFilled/Filled from fill state.
// Cancelled and Expired are explicit transitions and never recomputed.
func (o *Order) refreshStatus() {
	switch {
	case o.Filled == o.Amount:
		o.Status = StatusFilled
	case o.Filled > 0:
		o.Status = StatusPartiallyFilled
	default:
		o.Status = StatusPending
	}
}

// Match pairs a buy and a sell order at an agreed amount and price. Once
// settled it is immutable; a frozen match records a settlement that could
// not complete and blocks until operator intervention.
type Match struct {
	ID        uint64
	BuyHash   Hash
	SellHash  Hash
	Amount    uint64
	Price     uint64
	Timestamp time.Time
	Settled   bool
	Frozen    bool
}

// TradeStats aggregates settled trades per asset pair. Values only grow.
type TradeStats struct {
	Asset       AssetID
	SizeUnit    AssetID
	TotalVolume uint64
	TotalTrades uint64
	LastPrice   uint64
	HighPrice   uint64
	LowPrice    uint64
	LastUpdate  time.Time
}

// Clock supplies the venue's notion of time. All reveal-window checks and
// expiry comparisons use it so tests can drive time explicitly.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

type pairKey struct {
	asset AssetID
	unit  AssetID
}
