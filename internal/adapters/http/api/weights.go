package api

import (
	"context"
	"net/http"

	"github.com/okian/offerwise/internal/domain/model"
	"github.com/okian/offerwise/internal/domain/weights"
)

// WeightsDependencies defines the interface for the weight store.
type WeightsDependencies interface {
	Weights(ctx context.Context) (*model.WeightSet, error)
	Train(ctx context.Context, batch []*model.Order) (weights.TrainResult, error)
	ResetWeights(ctx context.Context) error
}

// WeightsHandler handles weight requests.
type WeightsHandler struct {
	deps WeightsDependencies
}

// NewWeightsHandler creates a new weights handler.
func NewWeightsHandler(deps WeightsDependencies) *WeightsHandler {
	return &WeightsHandler{deps: deps}
}

type weightsResponse struct {
	Algorithm string           `json:"algorithm"`
	WeightSet *model.WeightSet `json:"weight_set,omitempty"`
}

type trainRequest struct {
	Orders []*model.Order `json:"orders"`
}

// HandleGet handles GET /v1/weights.
func (h *WeightsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ws, err := h.deps.Weights(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	resp := weightsResponse{Algorithm: "heuristic", WeightSet: ws}
	if ws != nil {
		resp.Algorithm = "weighted"
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleTrain handles POST /v1/weights/train. Without a body it trains on
// completed orders from history.
func (h *WeightsHandler) HandleTrain(w http.ResponseWriter, r *http.Request) {
	var req trainRequest
	if err := decode(r, &req, true); err != nil {
		writeError(w, err)
		return
	}
	res, err := h.deps.Train(r.Context(), req.Orders)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleReset handles DELETE /v1/weights.
func (h *WeightsHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.ResetWeights(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
