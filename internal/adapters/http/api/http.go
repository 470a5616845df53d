// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/okian/offerwise/internal/adapters/repository"
	"github.com/okian/offerwise/internal/domain/dedupe"
	"github.com/okian/offerwise/internal/domain/lifecycle"
	"github.com/okian/offerwise/internal/domain/model"
	"github.com/okian/offerwise/internal/domain/notify"
	"github.com/okian/offerwise/internal/domain/weights"
	"github.com/okian/offerwise/pkg/logger"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	Score(ctx context.Context, o *model.Order) (model.Score, error)

	Offer(ctx context.Context, o *model.Order) (lifecycle.Result, error)
	Workflow(ctx context.Context) (lifecycle.Result, error)
	Advance(ctx context.Context, action string) (lifecycle.Result, error)

	ImmediateSurveys(ctx context.Context) ([]*model.Order, error)
	SubmitImmediateSurvey(ctx context.Context, orderID string, in lifecycle.ImmediateSurvey) (lifecycle.Result, error)
	DelayedSurveys(ctx context.Context) ([]*model.Order, error)
	SubmitDelayedSurvey(ctx context.Context, orderID string, in lifecycle.DelayedSurvey) (lifecycle.Result, error)
	DismissDelayedSurvey(ctx context.Context, orderID string) (lifecycle.Result, error)

	StartSession(ctx context.Context) (*model.Session, error)
	CurrentSession(ctx context.Context) (*model.Session, error)
	EndSession(ctx context.Context) (*model.Session, error)
	RecalculateSession(ctx context.Context) (*model.Session, error)

	Weights(ctx context.Context) (*model.WeightSet, error)
	Train(ctx context.Context, batch []*model.Order) (weights.TrainResult, error)
	ResetWeights(ctx context.Context) error

	Orders(ctx context.Context, f repository.OrderFilter) ([]*model.Order, error)
	OrderRank(ctx context.Context, orderID string) (repository.Entry, error)
	TopOrders(ctx context.Context, n int) ([]repository.Entry, error)

	Notifications(after uint64) []notify.Notification
}

// Option applies a configuration option to the Server.
type Option func(*Server)

// WithRateLimit sets the per-IP request budget per minute for /v1.
func WithRateLimit(perMinute int) Option {
	return func(s *Server) {
		s.rateLimit = perMinute
	}
}

// WithDeduper enables Idempotency-Key handling on /v1 with d.
func WithDeduper(d dedupe.Deduper) Option {
	return func(s *Server) {
		s.deduper = d
	}
}

// WithLogger sets a custom logger for the server.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// Server wires HTTP routes for the business API.
type Server struct {
	rateLimit int
	deduper   dedupe.Deduper
	logger    logger.Logger

	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	scoreHandler    *ScoreHandler
	workflowHandler *WorkflowHandler
	surveyHandler   *SurveyHandler
	sessionHandler  *SessionHandler
	weightsHandler  *WeightsHandler
	ordersHandler   *OrdersHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...Option) *Server {
	s := &Server{
		logger:          logger.Get().Named("http"),
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		scoreHandler:    NewScoreHandler(deps),
		workflowHandler: NewWorkflowHandler(deps),
		surveyHandler:   NewSurveyHandler(deps),
		sessionHandler:  NewSessionHandler(deps),
		weightsHandler:  NewWeightsHandler(deps),
		ordersHandler:   NewOrdersHandler(deps),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router builds the chi router with every route attached.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(Recover(s.logger))

	r.Get("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	r.Get("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	r.Route("/v1", func(r chi.Router) {
		r.Use(RateLimit(s.rateLimit))
		if s.deduper != nil {
			r.Use(Idempotency(s.deduper))
		}
		// Inside Idempotency, so a panic is a 500 that releases its key.
		r.Use(Recover(s.logger))

		r.Post("/score", MetricsMiddleware(s.scoreHandler.HandleScore, "score"))
		r.Post("/score/quick", MetricsMiddleware(s.scoreHandler.HandleQuickScore, "score_quick"))

		r.Post("/offers", MetricsMiddleware(s.workflowHandler.HandleOffer, "offers"))
		r.Get("/workflow", MetricsMiddleware(s.workflowHandler.HandleGet, "workflow"))
		r.Post("/workflow/{action}", MetricsMiddleware(s.workflowHandler.HandleAdvance, "workflow_action"))

		r.Route("/surveys", func(r chi.Router) {
			r.Get("/immediate", MetricsMiddleware(s.surveyHandler.HandleListImmediate, "surveys_immediate"))
			r.Post("/immediate/{orderID}", MetricsMiddleware(s.surveyHandler.HandleSubmitImmediate, "surveys_immediate"))
			r.Get("/delayed", MetricsMiddleware(s.surveyHandler.HandleListDelayed, "surveys_delayed"))
			r.Post("/delayed/{orderID}", MetricsMiddleware(s.surveyHandler.HandleSubmitDelayed, "surveys_delayed"))
			r.Delete("/delayed/{orderID}", MetricsMiddleware(s.surveyHandler.HandleDismissDelayed, "surveys_delayed"))
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", MetricsMiddleware(s.sessionHandler.HandleStart, "sessions"))
			r.Get("/current", MetricsMiddleware(s.sessionHandler.HandleCurrent, "sessions_current"))
			r.Post("/current/end", MetricsMiddleware(s.sessionHandler.HandleEnd, "sessions_end"))
			r.Post("/current/recalculate", MetricsMiddleware(s.sessionHandler.HandleRecalculate, "sessions_recalculate"))
		})

		r.Route("/weights", func(r chi.Router) {
			r.Get("/", MetricsMiddleware(s.weightsHandler.HandleGet, "weights"))
			r.Delete("/", MetricsMiddleware(s.weightsHandler.HandleReset, "weights"))
			r.Post("/train", MetricsMiddleware(s.weightsHandler.HandleTrain, "weights_train"))
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", MetricsMiddleware(s.ordersHandler.HandleList, "orders"))
			r.Get("/top", MetricsMiddleware(s.ordersHandler.HandleTop, "orders_top"))
			r.Get("/{orderID}/rank", MetricsMiddleware(s.ordersHandler.HandleRank, "orders_rank"))
		})

		r.Get("/notifications", MetricsMiddleware(s.ordersHandler.HandleNotifications, "notifications"))
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, errorResponse{Code: "not_found", Message: http.StatusText(http.StatusNotFound)})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Code: "method_not_allowed", Message: http.StatusText(http.StatusMethodNotAllowed)})
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// decode reads a JSON body into v. An empty body leaves v untouched when
// optional is set.
func decode(r *http.Request, v any, optional bool) error {
	if r.Body == nil || (optional && r.ContentLength == 0) {
		return nil
	}
	if err := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes)).Decode(v); err != nil {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return nil
}
