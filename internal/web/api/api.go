// Package api exposes the query engine over HTTP: POST or GET /query runs a
// request, /entities describes the registry, /healthz and /metrics serve
// operations.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/conduit-lang/flatquery/internal/engine"
	"github.com/conduit-lang/flatquery/internal/web/middleware"
)

// maxBodyBytes caps the size of a POST /query body
const maxBodyBytes = 1 << 20

// Pinger reports store health
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Options configures the router
type Options struct {
	Logger *zap.Logger
	// Prefix mounts every route under a path such as "/api"
	Prefix string
	// Gatherer backs /metrics; nil disables the endpoint
	Gatherer prometheus.Gatherer
	// Pinger backs /healthz; nil reports healthy unconditionally
	Pinger Pinger
	// RequestTimeout bounds every request; zero disables it
	RequestTimeout time.Duration
	// Limiter throttles /query per client; nil disables it
	Limiter middleware.Limiter
}

type handler struct {
	engine *engine.Engine
	pinger Pinger
}

// NewRouter builds the HTTP handler for e
func NewRouter(e *engine.Engine, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &handler{engine: e, pinger: opts.Pinger}

	throttle := middleware.RateLimit(opts.Limiter, middleware.ClientIP)
	routes := func(r chi.Router) {
		r.With(throttle).Post("/query", h.postQuery)
		r.With(throttle).Get("/query", h.getQuery)
		r.Get("/entities", h.listEntities)
		r.Get("/entities/{name}", h.getEntity)
		r.Get("/healthz", h.healthz)
		if opts.Gatherer != nil {
			r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
		}
	}

	mux := chi.NewRouter()
	mux.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	mux.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	if opts.Prefix != "" {
		mux.Route(opts.Prefix, routes)
	} else {
		routes(mux)
	}

	chain := middleware.NewChain(
		middleware.RequestID(logger),
		middleware.Logging(logger, "/healthz", opts.Prefix+"/healthz"),
		middleware.Recovery(logger),
		middleware.Timeout(opts.RequestTimeout),
	)
	return chain.Then(mux)
}

func (h *handler) postQuery(w http.ResponseWriter, r *http.Request) {
	var req engine.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	h.execute(w, r, req)
}

// getQuery accepts the request as query parameters. fields may repeat or
// carry a comma-separated list.
func (h *handler) getQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := engine.Request{
		Entity:  q.Get("entity"),
		Where:   q.Get("where"),
		OrderBy: q.Get("orderBy"),
	}
	for _, f := range q["fields"] {
		for _, part := range strings.Split(f, ",") {
			if part = strings.TrimSpace(part); part != "" {
				req.Fields = append(req.Fields, part)
			}
		}
	}

	var err error
	if req.First, err = intParam(q.Get("first"), "first"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.MaxDepth, err = intParam(q.Get("maxDepth"), "maxDepth"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.execute(w, r, req)
}

func (h *handler) execute(w http.ResponseWriter, r *http.Request, req engine.Request) {
	res, err := h.engine.Execute(r.Context(), req)
	if err != nil {
		middleware.Logger(r.Context()).Debug("query failed",
			zap.String("kind", engine.KindOf(err).String()),
			zap.Error(err))
		writeJSON(w, StatusFor(err), &engine.Result{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		if err := h.pinger.PingContext(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// StatusFor maps an engine failure to an HTTP status: caller mistakes are
// 400, store failures 502 and everything else 500
func StatusFor(err error) int {
	switch engine.KindOf(err) {
	case engine.KindInputValidation, engine.KindUnknownEntity, engine.KindUnknownProperty,
		engine.KindNotANavigation, engine.KindPlanComposition:
		return http.StatusBadRequest
	case engine.KindStoreExecution:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func intParam(raw, name string) (*int, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%s must be an integer, got %q", name, raw)
	}
	return &v, nil
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
