package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/okian/offerwise/internal/domain/lifecycle"
	"github.com/okian/offerwise/internal/domain/model"
)

// SurveyDependencies defines the interface for survey operations.
type SurveyDependencies interface {
	ImmediateSurveys(ctx context.Context) ([]*model.Order, error)
	SubmitImmediateSurvey(ctx context.Context, orderID string, in lifecycle.ImmediateSurvey) (lifecycle.Result, error)
	DelayedSurveys(ctx context.Context) ([]*model.Order, error)
	SubmitDelayedSurvey(ctx context.Context, orderID string, in lifecycle.DelayedSurvey) (lifecycle.Result, error)
	DismissDelayedSurvey(ctx context.Context, orderID string) (lifecycle.Result, error)
}

// SurveyHandler handles immediate and delayed survey requests.
type SurveyHandler struct {
	deps SurveyDependencies
}

// NewSurveyHandler creates a new survey handler.
func NewSurveyHandler(deps SurveyDependencies) *SurveyHandler {
	return &SurveyHandler{deps: deps}
}

type surveyQueue struct {
	Orders []*model.Order `json:"orders"`
}

// HandleListImmediate handles GET /v1/surveys/immediate.
func (h *SurveyHandler) HandleListImmediate(w http.ResponseWriter, r *http.Request) {
	list, err := h.deps.ImmediateSurveys(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, surveyQueue{Orders: nonNil(list)})
}

// HandleSubmitImmediate handles POST /v1/surveys/immediate/{orderID}.
func (h *SurveyHandler) HandleSubmitImmediate(w http.ResponseWriter, r *http.Request) {
	var in lifecycle.ImmediateSurvey
	if err := decode(r, &in, false); err != nil {
		writeError(w, err)
		return
	}
	res, err := h.deps.SubmitImmediateSurvey(r.Context(), chi.URLParam(r, "orderID"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleListDelayed handles GET /v1/surveys/delayed.
func (h *SurveyHandler) HandleListDelayed(w http.ResponseWriter, r *http.Request) {
	list, err := h.deps.DelayedSurveys(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, surveyQueue{Orders: nonNil(list)})
}

// HandleSubmitDelayed handles POST /v1/surveys/delayed/{orderID}.
func (h *SurveyHandler) HandleSubmitDelayed(w http.ResponseWriter, r *http.Request) {
	var in lifecycle.DelayedSurvey
	if err := decode(r, &in, false); err != nil {
		writeError(w, err)
		return
	}
	res, err := h.deps.SubmitDelayedSurvey(r.Context(), chi.URLParam(r, "orderID"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleDismissDelayed handles DELETE /v1/surveys/delayed/{orderID}.
func (h *SurveyHandler) HandleDismissDelayed(w http.ResponseWriter, r *http.Request) {
	res, err := h.deps.DismissDelayedSurvey(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func nonNil(list []*model.Order) []*model.Order {
	if list == nil {
		return []*model.Order{}
	}
	return list
}
