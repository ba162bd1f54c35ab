// Package api exposes the admission engine and guild settings over HTTP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/okian/rollcall/internal/adapters/http/swagger"
	"github.com/okian/rollcall/internal/app/admission"
	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/internal/domain/view"
	"github.com/okian/rollcall/pkg/logger"
)

const maxBodyBytes = 1 << 20

// Admission is the command surface the handlers drive.
type Admission interface {
	CreateEvent(ctx context.Context, ev model.Event, actor admission.Actor) (model.Event, error)
	EditEvent(ctx context.Context, eventID string, patch admission.EventPatch, actor admission.Actor) (model.Event, error)
	CancelEvent(ctx context.Context, eventID string, actor admission.Actor) (model.Event, error)
	GetEvent(ctx context.Context, eventID string) (model.Event, error)
	View(ctx context.Context, eventID string) (view.EventView, error)
	ListParticipants(ctx context.Context, eventID string) ([]model.Participant, error)

	Join(ctx context.Context, req admission.JoinRequest) (admission.Result, error)
	Leave(ctx context.Context, eventID, userID string) (admission.Result, error)
	Approve(ctx context.Context, eventID string, userIDs []string, actor admission.Actor) (admission.BatchResult, error)
	Reject(ctx context.Context, eventID string, userIDs []string, actor admission.Actor) (admission.BatchResult, error)
	Promote(ctx context.Context, eventID, userID string, actor admission.Actor) (admission.Result, error)
	PromoteNext(ctx context.Context, eventID string, actor admission.Actor) (admission.Result, error)
	UpdateRole(ctx context.Context, eventID, userID, role, spec string) (admission.Result, error)
}

// GuildSettings persists per-guild lifecycle policy.
type GuildSettings interface {
	GetGuildSettings(ctx context.Context, guildID string) (model.GuildSettings, error)
	UpsertGuildSettings(ctx context.Context, s model.GuildSettings) error
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	eventsHandler *EventsHandler
	guildsHandler *GuildsHandler

	requestTimeout time.Duration
	logger         logger.Logger
}

// NewServer creates a new API server with all handlers.
func NewServer(adm Admission, guilds GuildSettings, readiness Readiness, stats StatsProvider, opts ...Option) *Server {
	s := &Server{
		requestTimeout: defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("api")
	}
	s.healthHandler = NewHealthHandler(readiness)
	s.statsHandler = NewStatsHandler(stats)
	s.eventsHandler = NewEventsHandler(adm, s.logger)
	s.guildsHandler = NewGuildsHandler(guilds, s.logger)
	return s
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	r.Get("/metrics", s.healthHandler.HandleMetrics)
	r.Get("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	swagger.Register(r)

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(s.requestTimeout))

		e := s.eventsHandler
		r.Route("/events", func(r chi.Router) {
			r.Post("/", MetricsMiddleware(e.HandleCreate, "create_event"))
			r.Route("/{eventID}", func(r chi.Router) {
				r.Get("/", MetricsMiddleware(e.HandleGet, "get_event"))
				r.Patch("/", MetricsMiddleware(e.HandleEdit, "edit_event"))
				r.Post("/cancel", MetricsMiddleware(e.HandleCancel, "cancel_event"))
				r.Get("/view", MetricsMiddleware(e.HandleView, "view"))
				r.Get("/participants", MetricsMiddleware(e.HandleParticipants, "participants"))
				r.Post("/join", MetricsMiddleware(e.HandleJoin, "join"))
				r.Post("/leave", MetricsMiddleware(e.HandleLeave, "leave"))
				r.Post("/approve", MetricsMiddleware(e.HandleApprove, "approve"))
				r.Post("/reject", MetricsMiddleware(e.HandleReject, "reject"))
				r.Post("/promote", MetricsMiddleware(e.HandlePromote, "promote"))
				r.Post("/promote-next", MetricsMiddleware(e.HandlePromoteNext, "promote_next"))
				r.Post("/role", MetricsMiddleware(e.HandleRole, "role"))
			})
		})

		g := s.guildsHandler
		r.Route("/guilds/{guildID}/settings", func(r chi.Router) {
			r.Get("/", MetricsMiddleware(g.HandleGet, "get_guild_settings"))
			r.Put("/", MetricsMiddleware(g.HandlePut, "put_guild_settings"))
		})
	})
	return r
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil && status < http.StatusInternalServerError {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// fail maps err to a response; server-side failures are logged, not echoed.
func fail(ctx context.Context, l logger.Logger, w http.ResponseWriter, op string, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		l.Error(ctx, "request failed",
			logger.String("op", op),
			logger.String("request_id", chimiddleware.GetReqID(ctx)),
			logger.Error(err))
	}
	writeError(w, status, code, err)
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return nil
}

// actorFrom reads the acting user from request headers.
func actorFrom(r *http.Request) admission.Actor {
	return admission.Actor{ID: r.Header.Get("X-Actor-ID"), Name: r.Header.Get("X-Actor-Name")}
}
