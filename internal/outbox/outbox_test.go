package outbox

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"darkpool/internal/venue"
)

func openTestOutbox(t *testing.T) *Outbox {
	t.Helper()
	ob, err := Open(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { ob.Close() })
	return ob
}

func TestAppendAndScan(t *testing.T) {
	ob := openTestOutbox(t)

	s1, err := ob.Append([]byte("one"))
	require.NoError(t, err)
	s2, err := ob.Append([]byte("two"))
	require.NoError(t, err)
	require.Equal(t, s1+1, s2)

	var got []Record
	require.NoError(t, ob.ScanPending(func(rec *Record) error {
		got = append(got, *rec)
		return nil
	}))
	require.Len(t, got, 2)
	require.Equal(t, []byte("one"), got[0].Payload)
	require.Equal(t, StateNew, got[0].State)
	require.Equal(t, []byte("two"), got[1].Payload)
}

func TestAckedRecordsSkipped(t *testing.T) {
	ob := openTestOutbox(t)

	s1, err := ob.Append([]byte("a"))
	require.NoError(t, err)
	s2, err := ob.Append([]byte("b"))
	require.NoError(t, err)

	require.NoError(t, ob.MarkSent(s1))
	require.NoError(t, ob.MarkAcked(s1))

	var seqs []uint64
	require.NoError(t, ob.ScanPending(func(rec *Record) error {
		seqs = append(seqs, rec.Seq)
		return nil
	}))
	require.Equal(t, []uint64{s2}, seqs)
}

func TestSeqRecoveredAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ob, err := Open(dir, zerolog.Nop())
	require.NoError(t, err)
	s1, err := ob.Append([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, ob.Close())

	ob, err = Open(dir, zerolog.Nop())
	require.NoError(t, err)
	defer ob.Close()
	s2, err := ob.Append([]byte("y"))
	require.NoError(t, err)
	require.Equal(t, s1+1, s2)
}

func TestEmitQueuesEvent(t *testing.T) {
	ob := openTestOutbox(t)

	ob.Emit(venue.Event{
		Type:    venue.EventTradeSettled,
		MatchID: 7,
		Amount:  10,
		Price:   97,
		Time:    time.Unix(1700000000, 0).UTC(),
	})

	var payloads [][]byte
	require.NoError(t, ob.ScanPending(func(rec *Record) error {
		payloads = append(payloads, rec.Payload)
		return nil
	}))
	require.Len(t, payloads, 1)

	var ev venue.Event
	require.NoError(t, json.Unmarshal(payloads[0], &ev))
	require.Equal(t, venue.EventTradeSettled, ev.Type)
	require.Equal(t, uint64(7), ev.MatchID)
}
