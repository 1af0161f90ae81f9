package command

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/Basi6788/romeo-s-emporium/internal/domain/order"
)

var ErrMissingOrderID = errors.New("missing order id")

// StatusWriter updates an order's status in the external store. The write
// goes around the pipeline on purpose: the resulting change event flows back
// through the feed like any other update, so the admin never special-cases
// its own writes.
type StatusWriter interface {
	UpdateOrderStatus(ctx context.Context, orderID string, status order.Status) error
}

// Handler is the one command surface of the admin order table.
type Handler struct {
	writer StatusWriter
}

func NewHandler(writer StatusWriter) *Handler {
	return &Handler{writer: writer}
}

// UpdateStatus sets an order's status. Only the status value is validated;
// any status may be set from any status, so an administrator can correct a
// mis-shipped order by hand.
func (h *Handler) UpdateStatus(ctx context.Context, orderID string, status order.Status) error {
	if orderID == "" {
		return ErrMissingOrderID
	}
	if !status.Valid() {
		return fmt.Errorf("%w: %q", order.ErrInvalidStatus, status)
	}
	if err := h.writer.UpdateOrderStatus(ctx, orderID, status); err != nil {
		return fmt.Errorf("update order %s status: %w", orderID, err)
	}
	log.Printf("[Command] Order %s status set to %s", orderID, status)
	return nil
}
