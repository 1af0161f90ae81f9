package kafka

import (
	"context"
	"log"

	"github.com/Basi6788/romeo-s-emporium/internal/domain/order"
	"github.com/Basi6788/romeo-s-emporium/internal/feed"
	"github.com/segmentio/kafka-go"
)

// ChangeSource delivers the order table's change feed from a Kafka topic
// carrying {kind, record} envelopes. It implements feed.Source: each Changes
// call opens a fresh reader, and the returned channel closes when the
// transport drops, leaving reconnection to the feed client.
type ChangeSource struct {
	brokers []string
	topic   string
	groupID string
}

func NewChangeSource(brokers []string, topic, groupID string) *ChangeSource {
	return &ChangeSource{brokers: brokers, topic: topic, groupID: groupID}
}

func (s *ChangeSource) Changes(ctx context.Context) (<-chan order.ChangeEvent, error) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  s.brokers,
		Topic:    s.topic,
		GroupID:  s.groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})

	ch := make(chan order.ChangeEvent)
	go func() {
		defer close(ch)
		defer reader.Close()
		for {
			msg, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() == nil {
					log.Printf("[Kafka] Read failed: %v", err)
				}
				return
			}
			ev, err := feed.ParseChangeEvent(msg.Value)
			if err != nil {
				log.Printf("[Kafka] Skipping message: %v", err)
				continue
			}
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}
