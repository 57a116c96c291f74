package outbox

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// Broadcaster drains the outbox to a Kafka topic. Records are replayed
// until the broker acknowledges them, so consumers must deduplicate by
// sequence number.
type Broadcaster struct {
	ob       *Outbox
	writer   *kafka.Writer
	interval time.Duration
	log      zerolog.Logger
}

func NewBroadcaster(ob *Outbox, brokers []string, topic string, interval time.Duration, log zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		ob: ob,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireAll,
		},
		interval: interval,
		log:      log,
	}
}

// Run publishes pending records on a fixed interval until ctx is cancelled.
func (b *Broadcaster) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return b.writer.Close()
		case <-ticker.C:
			if err := b.publishPending(ctx); err != nil {
				b.log.Error().Err(err).Msg("broadcast pass failed")
			}
		}
	}
}

func (b *Broadcaster) publishPending(ctx context.Context) error {
	return b.ob.ScanPending(func(rec *Record) error {
		if err := b.ob.MarkSent(rec.Seq); err != nil {
			return err
		}
		msg := kafka.Message{
			Key:   keyFor(rec.Seq),
			Value: rec.Payload,
		}
		if err := b.writer.WriteMessages(ctx, msg); err != nil {
			// left in SENT, replayed next pass
			return err
		}
		if err := b.ob.MarkAcked(rec.Seq); err != nil {
			return err
		}
		b.log.Debug().Uint64("seq", rec.Seq).Msg("event published")
		return nil
	})
}
