package feed

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Basi6788/romeo-s-emporium/internal/domain/order"
)

// envelope is the wire shape every transport delivers: the change kind plus
// the full row image.
type envelope struct {
	Kind   order.ChangeKind `json:"kind"`
	Record order.Order      `json:"record"`
}

// ParseChangeEvent decodes one transport message into a change event.
// ReceivedAt is stamped here, at the moment of decoding.
func ParseChangeEvent(data []byte) (order.ChangeEvent, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return order.ChangeEvent{}, fmt.Errorf("decode change envelope: %w", err)
	}
	if !env.Kind.Valid() {
		return order.ChangeEvent{}, fmt.Errorf("%w: unknown change kind %q", order.ErrMalformedRecord, env.Kind)
	}
	return order.ChangeEvent{
		Kind:       env.Kind,
		Record:     env.Record,
		ReceivedAt: time.Now(),
	}, nil
}
