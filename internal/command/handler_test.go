package command

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Basi6788/romeo-s-emporium/internal/domain/order"
)

type writeCall struct {
	orderID string
	status  order.Status
}

type mockWriter struct {
	calls []writeCall
	err   error
}

func (m *mockWriter) UpdateOrderStatus(ctx context.Context, orderID string, status order.Status) error {
	m.calls = append(m.calls, writeCall{orderID: orderID, status: status})
	return m.err
}

func TestUpdateStatus(t *testing.T) {
	writer := &mockWriter{}
	h := NewHandler(writer)

	err := h.UpdateStatus(context.Background(), "ord-1", order.StatusShipped)
	require.NoError(t, err)
	require.Len(t, writer.calls, 1)
	assert.Equal(t, writeCall{orderID: "ord-1", status: order.StatusShipped}, writer.calls[0])
}

// Any status may be set from any status; there is no transition guard, so
// administrators can correct orders by hand.
func TestUpdateStatus_Permissive(t *testing.T) {
	writer := &mockWriter{}
	h := NewHandler(writer)

	require.NoError(t, h.UpdateStatus(context.Background(), "ord-1", order.StatusDelivered))
	require.NoError(t, h.UpdateStatus(context.Background(), "ord-1", order.StatusPending))
	assert.Len(t, writer.calls, 2)
}

func TestUpdateStatus_InvalidStatus(t *testing.T) {
	writer := &mockWriter{}
	h := NewHandler(writer)

	err := h.UpdateStatus(context.Background(), "ord-1", order.Status("cancelled"))
	assert.ErrorIs(t, err, order.ErrInvalidStatus)
	assert.Empty(t, writer.calls)
}

func TestUpdateStatus_MissingID(t *testing.T) {
	writer := &mockWriter{}
	h := NewHandler(writer)

	err := h.UpdateStatus(context.Background(), "", order.StatusShipped)
	assert.ErrorIs(t, err, ErrMissingOrderID)
	assert.Empty(t, writer.calls)
}

func TestUpdateStatus_WriterError(t *testing.T) {
	writer := &mockWriter{err: errors.New("store unavailable")}
	h := NewHandler(writer)

	err := h.UpdateStatus(context.Background(), "ord-1", order.StatusShipped)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ord-1")
}
