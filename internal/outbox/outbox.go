// outbox.go - Durable notification outbox.
//
// Venue events are written here first and published to the broker
// asynchronously, so a crash between state change and publication never
// loses a notification. Records move NEW -> SENT -> ACKED; anything not yet
// ACKED is replayed by the broadcaster.

package outbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/rs/zerolog"

	"darkpool/internal/venue"
)

type State uint8

const (
	StateNew State = iota
	StateSent
	StateAcked
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	default:
		return "UNKNOWN"
	}
}

// Record is one queued notification. Payload is the JSON-encoded event.
type Record struct {
	Seq     uint64
	State   State
	Payload []byte
}

// value encoding: [state:1][payload...]
func encodeValue(state State, payload []byte) []byte {
	buf := make([]byte, 1+len(payload))
	buf[0] = byte(state)
	copy(buf[1:], payload)
	return buf
}

func decodeValue(b []byte) (State, []byte, error) {
	if len(b) < 1 {
		return 0, nil, errors.New("invalid outbox record")
	}
	return State(b[0]), b[1:], nil
}

// Outbox is a pebble-backed event queue. It implements venue.EventSink.
type Outbox struct {
	mu  sync.Mutex
	db  *pebble.DB
	seq uint64
	log zerolog.Logger
}

func Open(dir string, log zerolog.Logger) (*Outbox, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	o := &Outbox{db: db, log: log}
	if err := o.recoverSeq(); err != nil {
		db.Close()
		return nil, err
	}
	return o, nil
}

func (o *Outbox) Close() error { return o.db.Close() }

// recoverSeq resumes the sequence counter from the highest stored key.
func (o *Outbox) recoverSeq() error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("event/"),
		UpperBound: []byte("event/~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()
	if iter.Last() && iter.Valid() {
		seq, err := parseKey(iter.Key())
		if err != nil {
			return err
		}
		o.seq = seq
	}
	return iter.Error()
}

// Emit queues a venue event. EventSink must not block or fail the venue
// operation, so encoding or storage errors are logged and dropped here.
func (o *Outbox) Emit(e venue.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		o.log.Error().Err(err).Str("event", string(e.Type)).Msg("outbox encode failed")
		return
	}
	if _, err := o.Append(payload); err != nil {
		o.log.Error().Err(err).Str("event", string(e.Type)).Msg("outbox append failed")
	}
}

// Append stores a new pending record and returns its sequence number.
func (o *Outbox) Append(payload []byte) (uint64, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.seq++
	if err := o.db.Set(keyFor(o.seq), encodeValue(StateNew, payload), pebble.Sync); err != nil {
		o.seq--
		return 0, err
	}
	return o.seq, nil
}

// setState rewrites a record's state, preserving its payload.
func (o *Outbox) setState(seq uint64, state State) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	val, closer, err := o.db.Get(keyFor(seq))
	if err != nil {
		return err
	}
	_, payload, err := decodeValue(val)
	closer.Close()
	if err != nil {
		return err
	}
	return o.db.Set(keyFor(seq), encodeValue(state, payload), pebble.Sync)
}

// MarkSent records that a publish attempt has started (idempotent).
func (o *Outbox) MarkSent(seq uint64) error { return o.setState(seq, StateSent) }

// MarkAcked records broker acknowledgement; acked records are skipped by
// ScanPending and may be garbage-collected.
func (o *Outbox) MarkAcked(seq uint64) error { return o.setState(seq, StateAcked) }

// Delete removes an acked record.
func (o *Outbox) Delete(seq uint64) error {
	return o.db.Delete(keyFor(seq), pebble.Sync)
}

// ScanPending iterates all records not yet acked, in sequence order.
func (o *Outbox) ScanPending(fn func(rec *Record) error) error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("event/"),
		UpperBound: []byte("event/~"),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		state, payload, err := decodeValue(iter.Value())
		if err != nil {
			return err
		}
		if state == StateAcked {
			continue
		}
		seq, err := parseKey(iter.Key())
		if err != nil {
			return err
		}
		rec := &Record{Seq: seq, State: state, Payload: append([]byte(nil), payload...)}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return iter.Error()
}

func keyFor(seq uint64) []byte {
	return []byte(fmt.Sprintf("event/%020d", seq))
}

func parseKey(key []byte) (uint64, error) {
	var seq uint64
	_, err := fmt.Sscanf(string(key), "event/%d", &seq)
	return seq, err
}
