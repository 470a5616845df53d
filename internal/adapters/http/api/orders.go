package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/okian/offerwise/internal/adapters/repository"
	"github.com/okian/offerwise/internal/domain/model"
	"github.com/okian/offerwise/internal/domain/notify"
)

const (
	defaultTopN  = 10
	maxListLimit = 1000
)

// OrdersDependencies defines the interface for history reads.
type OrdersDependencies interface {
	Orders(ctx context.Context, f repository.OrderFilter) ([]*model.Order, error)
	OrderRank(ctx context.Context, orderID string) (repository.Entry, error)
	TopOrders(ctx context.Context, n int) ([]repository.Entry, error)
	Notifications(after uint64) []notify.Notification
}

// OrdersHandler handles order history and notification requests.
type OrdersHandler struct {
	deps OrdersDependencies
}

// NewOrdersHandler creates a new orders handler.
func NewOrdersHandler(deps OrdersDependencies) *OrdersHandler {
	return &OrdersHandler{deps: deps}
}

// HandleList handles GET /v1/orders?session_id=&status=&limit=.
func (h *OrdersHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), 0, maxListLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	list, err := h.deps.Orders(r.Context(), repository.OrderFilter{
		SessionID: q.Get("session_id"),
		Status:    q.Get("status"),
		Limit:     limit,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": nonNil(list)})
}

// HandleTop handles GET /v1/orders/top?n=.
func (h *OrdersHandler) HandleTop(w http.ResponseWriter, r *http.Request) {
	n, err := intParam(r.URL.Query().Get("n"), defaultTopN, maxListLimit)
	if err != nil {
		writeError(w, err)
		return
	}
	entries, err := h.deps.TopOrders(r.Context(), n)
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []repository.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// HandleRank handles GET /v1/orders/{orderID}/rank.
func (h *OrdersHandler) HandleRank(w http.ResponseWriter, r *http.Request) {
	entry, err := h.deps.OrderRank(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// HandleNotifications handles GET /v1/notifications?after=.
func (h *OrdersHandler) HandleNotifications(w http.ResponseWriter, r *http.Request) {
	var after uint64
	if raw := r.URL.Query().Get("after"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, fmt.Errorf("%w: invalid after", ErrBadRequest))
			return
		}
		after = v
	}
	list := h.deps.Notifications(after)
	if list == nil {
		list = []notify.Notification{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": list})
}

// intParam parses an optional positive integer query value.
func intParam(raw string, def, maxValue int) (int, error) {
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 || v > maxValue {
		return 0, fmt.Errorf("%w: must be 1..%d", ErrBadRequest, maxValue)
	}
	return v, nil
}
