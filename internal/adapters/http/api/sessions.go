package api

import (
	"context"
	"net/http"

	"github.com/okian/offerwise/internal/domain/model"
)

// SessionDependencies defines the interface for shift sessions.
type SessionDependencies interface {
	StartSession(ctx context.Context) (*model.Session, error)
	CurrentSession(ctx context.Context) (*model.Session, error)
	EndSession(ctx context.Context) (*model.Session, error)
	RecalculateSession(ctx context.Context) (*model.Session, error)
}

// SessionHandler handles session requests.
type SessionHandler struct {
	deps SessionDependencies
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(deps SessionDependencies) *SessionHandler {
	return &SessionHandler{deps: deps}
}

// HandleStart handles POST /v1/sessions.
func (h *SessionHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.deps.StartSession, http.StatusCreated)
}

// HandleCurrent handles GET /v1/sessions/current.
func (h *SessionHandler) HandleCurrent(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.deps.CurrentSession, http.StatusOK)
}

// HandleEnd handles POST /v1/sessions/current/end.
func (h *SessionHandler) HandleEnd(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.deps.EndSession, http.StatusOK)
}

// HandleRecalculate handles POST /v1/sessions/current/recalculate.
func (h *SessionHandler) HandleRecalculate(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.deps.RecalculateSession, http.StatusOK)
}

func (h *SessionHandler) respond(w http.ResponseWriter, r *http.Request, fn func(context.Context) (*model.Session, error), status int) {
	sess, err := fn(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, status, sess)
}
