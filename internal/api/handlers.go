package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/Basi6788/romeo-s-emporium/internal/command"
	"github.com/Basi6788/romeo-s-emporium/internal/domain/order"
	"github.com/Basi6788/romeo-s-emporium/internal/query"
)

// Handlers exposes the pipeline's three read-only projections plus the one
// status-update command over HTTP.
type Handlers struct {
	queries  *query.Handler
	commands *command.Handler
}

func NewHandlers(queries *query.Handler, commands *command.Handler) *Handlers {
	return &Handlers{queries: queries, commands: commands}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, status, map[string]string{"error": message})
}

// GetDashboard serves the aggregate snapshot and the most recent orders.
func (h *Handlers) GetDashboard(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.queries.Dashboard())
}

// GetOrders serves the full ordered collection, optionally narrowed by the
// status and q query parameters. Filtering is local; upstream is never
// re-queried.
func (h *Handlers) GetOrders(w http.ResponseWriter, r *http.Request) {
	f := query.Filter{
		Status: order.Status(r.URL.Query().Get("status")),
		Search: r.URL.Query().Get("q"),
	}
	if f.Status != "" && !f.Status.Valid() {
		respondError(w, "unknown status", http.StatusBadRequest)
		return
	}
	orders := h.queries.Orders(f)
	respondJSON(w, http.StatusOK, map[string]any{
		"orders": orders,
		"count":  len(orders),
	})
}

// GetOrder serves one cached order.
func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/orders/")
	o, ok := h.queries.Order(id)
	if !ok {
		respondError(w, "order not found", http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

// UpdateOrderStatus writes a new status straight to the external store. The
// change event it causes flows back through the feed like any other update.
func (h *Handlers) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/orders/")
	id = strings.TrimSuffix(id, "/status")

	var req struct {
		Status order.Status `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	err := h.commands.UpdateStatus(r.Context(), id, req.Status)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(req.Status)})
	case errors.Is(err, order.ErrInvalidStatus), errors.Is(err, command.ErrMissingOrderID):
		respondError(w, err.Error(), http.StatusBadRequest)
	default:
		respondError(w, "failed to update status", http.StatusBadGateway)
	}
}

// GetNotifications serves the bounded new-order feed and its unread count.
func (h *Handlers) GetNotifications(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"notifications": h.queries.Notifications(),
		"unread":        h.queries.UnreadCount(),
	})
}

// MarkNotificationsRead clears the bell feed for this session only; nothing
// is acknowledged upstream.
func (h *Handlers) MarkNotificationsRead(w http.ResponseWriter, r *http.Request) {
	h.queries.MarkRead()
	respondJSON(w, http.StatusOK, map[string]any{"unread": 0})
}

// GetFeedState reports the subscription state so clients can surface a
// reconnecting affordance.
func (h *Handlers) GetFeedState(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"state": string(h.queries.FeedState())})
}

// Healthz is the unauthenticated liveness probe.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
