package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"duochat/auth"
	"duochat/database"
	"duochat/logging"
	"duochat/messaging"
	"duochat/metrics"
	"duochat/middleware"
	"duochat/models"
	"duochat/realtime"
)

// Handler serves the REST and WebSocket surface
type Handler struct {
	store    *database.Store
	tokens   *auth.Tokens
	gate     *auth.Gatekeeper
	registry *realtime.Registry
	presence *realtime.Presence
	typing   *realtime.Typing
	router   *messaging.Router
	ledger   *messaging.Ledger
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// Deps bundles everything a Handler needs.
type Deps struct {
	Store    *database.Store
	Tokens   *auth.Tokens
	Gate     *auth.Gatekeeper
	Registry *realtime.Registry
	Presence *realtime.Presence
	Typing   *realtime.Typing
	Router   *messaging.Router
	Ledger   *messaging.Ledger
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
}

func New(d Deps) *Handler {
	return &Handler{
		store:    d.Store,
		tokens:   d.Tokens,
		gate:     d.Gate,
		registry: d.Registry,
		presence: d.Presence,
		typing:   d.Typing,
		router:   d.Router,
		ledger:   d.Ledger,
		metrics:  d.Metrics,
		logger:   logging.OrNop(d.Logger),
	}
}

// Routes builds the mux. corsOrigin may be empty to disable CORS headers.
func (h *Handler) Routes(corsOrigin string) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.Handle("/metrics", h.metrics).Methods(http.MethodGet)
	r.HandleFunc("/ws", h.WebSocket).Methods(http.MethodGet)

	r.HandleFunc("/auth/register", h.Register).Methods(http.MethodPost)
	r.HandleFunc("/auth/login", h.Login).Methods(http.MethodPost)

	protected := r.NewRoute().Subrouter()
	protected.Use(middleware.Auth(h.gate, h.logger))
	protected.HandleFunc("/auth/me", h.Me).Methods(http.MethodGet)
	protected.HandleFunc("/contacts", h.ListContacts).Methods(http.MethodGet)
	protected.HandleFunc("/contacts/add", h.AddContact).Methods(http.MethodPost)
	protected.HandleFunc("/messages/unread/count", h.UnreadCounts).Methods(http.MethodGet)
	protected.HandleFunc("/messages/{contactId:[0-9]+}", h.GetMessages).Methods(http.MethodGet)
	protected.HandleFunc("/messages/{contactId:[0-9]+}", h.SendMessage).Methods(http.MethodPost)
	protected.HandleFunc("/messages/{contactId:[0-9]+}/mark-read", h.MarkRead).Methods(http.MethodPost)

	return middleware.CORS(corsOrigin)(r)
}

// Health reports liveness
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"sessions": h.registry.Count(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP statuses. Storage failures are
// logged and reported without detail.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	msg := "Server error"
	switch {
	case errors.Is(err, models.ErrUnauthenticated):
		status, msg = http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, models.ErrValidation):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, models.ErrNotFound):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, models.ErrConflict):
		status, msg = http.StatusConflict, err.Error()
	default:
		h.logger.Error("request failed",
			zap.String("method", r.Method), zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func contactIDFromPath(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["contactId"], 10, 64)
	if err != nil || id <= 0 {
		return 0, models.Validation("invalid contact id")
	}
	return id, nil
}
