package rabbitmq

import (
	"context"
	"fmt"
	"log"

	"github.com/Basi6788/romeo-s-emporium/internal/domain/order"
	"github.com/Basi6788/romeo-s-emporium/internal/feed"
	amqp "github.com/rabbitmq/amqp091-go"
)

// prefetch keeps at most one undelivered message in flight; the cache's
// ingest is O(1) amortized so no deeper buffering is needed.
const prefetch = 1

// ChangeSource delivers the order change feed from a durable AMQP queue
// carrying {kind, record} envelopes. It implements feed.Source; the dial
// happens per Changes call and the channel closes on transport failure.
type ChangeSource struct {
	url   string
	queue string
}

func NewChangeSource(url, queue string) *ChangeSource {
	return &ChangeSource{url: url, queue: queue}
}

func (s *ChangeSource) Changes(ctx context.Context) (<-chan order.ChangeEvent, error) {
	conn, err := amqp.Dial(s.url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := channel.Qos(prefetch, 0, false); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	// Declare is idempotent; the producer side declares the same queue.
	if _, err := channel.QueueDeclare(s.queue, true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	deliveries, err := channel.Consume(s.queue, "", false, false, false, false, nil)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("register consumer: %w", err)
	}

	ch := make(chan order.ChangeEvent)
	go func() {
		defer close(ch)
		defer conn.Close()
		defer channel.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case d, open := <-deliveries:
				if !open {
					log.Printf("[RabbitMQ] Delivery channel closed")
					return
				}
				ev, err := feed.ParseChangeEvent(d.Body)
				if err != nil {
					log.Printf("[RabbitMQ] Rejecting message: %v", err)
					d.Nack(false, false)
					continue
				}
				select {
				case ch <- ev:
					d.Ack(false)
				case <-ctx.Done():
					d.Nack(false, true)
					return
				}
			}
		}
	}()
	return ch, nil
}
