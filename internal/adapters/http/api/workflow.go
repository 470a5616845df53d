package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/okian/offerwise/internal/domain/lifecycle"
	"github.com/okian/offerwise/internal/domain/model"
)

// WorkflowDependencies defines the interface for the order workflow.
type WorkflowDependencies interface {
	Offer(ctx context.Context, o *model.Order) (lifecycle.Result, error)
	Workflow(ctx context.Context) (lifecycle.Result, error)
	Advance(ctx context.Context, action string) (lifecycle.Result, error)
}

// WorkflowHandler handles offer and transition requests.
type WorkflowHandler struct {
	deps WorkflowDependencies
}

// NewWorkflowHandler creates a new workflow handler.
func NewWorkflowHandler(deps WorkflowDependencies) *WorkflowHandler {
	return &WorkflowHandler{deps: deps}
}

// HandleOffer handles POST /v1/offers.
func (h *WorkflowHandler) HandleOffer(w http.ResponseWriter, r *http.Request) {
	var o model.Order
	if err := decode(r, &o, false); err != nil {
		writeError(w, err)
		return
	}
	res, err := h.deps.Offer(r.Context(), &o)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// HandleGet handles GET /v1/workflow, used to resume the client.
func (h *WorkflowHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	res, err := h.deps.Workflow(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleAdvance handles POST /v1/workflow/{action}.
func (h *WorkflowHandler) HandleAdvance(w http.ResponseWriter, r *http.Request) {
	res, err := h.deps.Advance(r.Context(), chi.URLParam(r, "action"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
