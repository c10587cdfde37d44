package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/rl1809/library-circulation/internal/core/service"
)

const (
	requestIDHeader  = "X-Request-ID"
	readinessTimeout = 2 * time.Second
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type HTTPHandler struct {
	circulation  *service.CirculationService
	catalog      *service.CatalogService
	members      *service.MemberService
	auth         *service.AuthService
	log          *zap.Logger
	cookieSecure bool
	store        Pinger
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HTTPOption func(*HTTPHandler)

// WithReadiness makes /health answer 503 while store cannot be reached.
func WithReadiness(store Pinger) HTTPOption {
	return func(h *HTTPHandler) { h.store = store }
}

// WithSecureCookies marks the session cookie Secure.
func WithSecureCookies(secure bool) HTTPOption {
	return func(h *HTTPHandler) { h.cookieSecure = secure }
}

func NewHTTPHandler(
	circulation *service.CirculationService,
	catalog *service.CatalogService,
	members *service.MemberService,
	auth *service.AuthService,
	log *zap.Logger,
	opts ...HTTPOption,
) *HTTPHandler {
	h := &HTTPHandler{
		circulation: circulation,
		catalog:     catalog,
		members:     members,
		auth:        auth,
		log:         log,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns the API behind the session gate and request logging.
func (h *HTTPHandler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.HealthCheck)

	mux.HandleFunc("POST /api/login", h.Login)
	mux.HandleFunc("POST /api/logout", h.Logout)

	mux.HandleFunc("POST /api/issues", h.IssueBook)
	mux.HandleFunc("PATCH /api/issues/{id}/return", h.ReturnIssue)
	mux.HandleFunc("POST /api/issues/{id}/return", h.ReturnIssue)
	mux.HandleFunc("GET /api/members/{id}/history", h.MemberHistory)

	mux.HandleFunc("GET /api/members", h.ListMembers)
	mux.HandleFunc("POST /api/members", h.CreateMember)
	mux.HandleFunc("GET /api/members/{id}", h.GetMember)

	mux.HandleFunc("GET /api/books", h.ListBooks)
	mux.HandleFunc("POST /api/books", h.CreateBook)
	mux.HandleFunc("GET /api/books/{id}", h.GetBook)

	return h.logRequests(h.gate(mux))
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()
		if err := h.store.Ping(ctx); err != nil {
			h.log.Warn("store not ready", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (h *HTTPHandler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		start := time.Now()
		ctx, slot := withSessionSlot(r.Context())
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		h.log.Info("http request", append([]zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", requestID),
		}, slot.fields()...)...)
	})
}

// pathID parses a positive integer path parameter; anything else is 0 so the
// service rejects it with its own validation error.
func pathID(r *http.Request, name string) int64 {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0
	}
	return id
}

func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps a service error to its status and stable message. Only
// transient failures are logged here; the services log the rest.
func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatus(err)
	message := errorMessage(err)
	if status == http.StatusInternalServerError {
		message = internalErrorMessage
		h.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeJSON(w, status, errorResponse{Error: message})
}
