// events.go - Notifications emitted for off-system indexing.
//
// Every state transition that an observer could care about (commitments,
// order lifecycle, matches, settlements, listings) is emitted through an
// EventSink carrying the relevant entity identifiers. Sinks must not block;
// durable delivery is the outbox's job.

package venue

import "time"

type EventType string

const (
	EventCommitmentCommitted EventType = "commitment_committed"
	EventCommitmentCancelled EventType = "commitment_cancelled"
	EventOrderPlaced         EventType = "order_placed"
	EventOrderRevealed       EventType = "order_revealed"
	EventOrderCancelled      EventType = "order_cancelled"
	EventOrderExpired        EventType = "order_expired"
	EventMatchCreated        EventType = "match_created"
	EventTradeSettled        EventType = "trade_settled"
	EventAssetWhitelisted    EventType = "asset_whitelisted"
)

type Event struct {
	Type       EventType `json:"type"`
	Trader     TraderID  `json:"trader,omitempty"`
	Commitment string    `json:"commitment,omitempty"`
	OrderHash  string    `json:"order_hash,omitempty"`
	MatchID    uint64    `json:"match_id,omitempty"`
	Asset      AssetID   `json:"asset,omitempty"`
	SizeUnit   AssetID   `json:"size_unit,omitempty"`
	Amount     uint64    `json:"amount,omitempty"`
	Price      uint64    `json:"price,omitempty"`
	Time       time.Time `json:"time"`
}

type EventSink interface {
	Emit(Event)
}

// MemorySink buffers events in order. Used by tests and as the default sink
// when no outbox is configured.
type MemorySink struct {
	Events []Event
}

func (s *MemorySink) Emit(e Event) { s.Events = append(s.Events, e) }

// OfType returns the buffered events matching t.
func (s *MemorySink) OfType(t EventType) []Event {
	var out []Event
	for _, e := range s.Events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
