package api

import (
	"context"
	"net/http"

	"github.com/okian/offerwise/internal/domain/model"
)

// ScoreDependencies defines the interface for scoring.
type ScoreDependencies interface {
	Score(ctx context.Context, o *model.Order) (model.Score, error)
}

// ScoreHandler handles scoring requests.
type ScoreHandler struct {
	deps ScoreDependencies
}

// NewScoreHandler creates a new score handler.
func NewScoreHandler(deps ScoreDependencies) *ScoreHandler {
	return &ScoreHandler{deps: deps}
}

type quickScoreResponse struct {
	QuickScore    int    `json:"quick_score"`
	QuickDecision string `json:"quick_decision"`
	Algorithm     string `json:"algorithm"`
}

// HandleScore handles POST /v1/score, the full 1..10 verdict.
func (h *ScoreHandler) HandleScore(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.score(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

// HandleQuickScore handles POST /v1/score/quick, the live 1..4 verdict.
func (h *ScoreHandler) HandleQuickScore(w http.ResponseWriter, r *http.Request) {
	sc, ok := h.score(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, quickScoreResponse{
		QuickScore:    sc.QuickScore,
		QuickDecision: sc.QuickDecision,
		Algorithm:     sc.Algorithm,
	})
}

func (h *ScoreHandler) score(w http.ResponseWriter, r *http.Request) (model.Score, bool) {
	var o model.Order
	if err := decode(r, &o, false); err != nil {
		writeError(w, err)
		return model.Score{}, false
	}
	sc, err := h.deps.Score(r.Context(), &o)
	if err != nil {
		writeError(w, err)
		return model.Score{}, false
	}
	return sc, true
}
