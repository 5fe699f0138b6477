// Package api serves a queue engine over HTTP.
package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"flushq/internal/queue"
	logx "flushq/pkg/logx"
)

const maxBody = 4 << 20

// Engine is the part of *queue.Engine[T] the API needs.
type Engine[T any] interface {
	Enqueue(payloads ...T) []*queue.Item[T]
	Cancel(id string) bool
	Flush() bool
	Pending() []*queue.Item[T]
	Succeeded() []*queue.Item[T]
	Snapshot() (pending, succeeded []*queue.Item[T])
	Lookup(id string) (*queue.Item[T], bool)
	Stats() queue.Stats
}

// ItemView is the JSON shape of an item.
type ItemView[T any] struct {
	ID          string          `json:"id"`
	State       string          `json:"state"`
	Payload     T               `json:"payload"`
	SubmittedAt time.Time       `json:"submitted_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Attempts    []queue.Attempt `json:"attempts,omitempty"`
	Canceled    bool            `json:"canceled,omitempty"`
}

func viewOf[T any](it *queue.Item[T]) ItemView[T] {
	v := ItemView[T]{
		ID:          it.ID(),
		State:       it.State().String(),
		Payload:     it.Payload(),
		SubmittedAt: it.SubmittedAt(),
		Attempts:    it.Attempts(),
		Canceled:    it.Canceled(),
	}
	if at, ok := it.CompletedAt(); ok {
		v.CompletedAt = &at
	}
	return v
}

func views[T any](items []*queue.Item[T]) []ItemView[T] {
	out := make([]ItemView[T], 0, len(items))
	for _, it := range items {
		out = append(out, viewOf(it))
	}
	return out
}

type EnqueueRequest[T any] struct {
	Payloads []T `json:"payloads"`
}

type FlushResponse struct {
	Synchronous bool `json:"synchronous"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler serves one engine.
type Handler[T any] struct {
	eng Engine[T]
	log logx.Logger
}

func NewHandler[T any](eng Engine[T], log logx.Logger) *Handler[T] {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Handler[T]{eng: eng, log: log}
}

// RegisterRoutes mounts the item and flush endpoints on r.
func (h *Handler[T]) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/items", h.Enqueue).Methods(http.MethodPost)
	v1.HandleFunc("/items", h.List).Methods(http.MethodGet)
	v1.HandleFunc("/items/{id}", h.Get).Methods(http.MethodGet)
	v1.HandleFunc("/items/{id}", h.Cancel).Methods(http.MethodDelete)
	v1.HandleFunc("/flush", h.Flush).Methods(http.MethodPost)
	v1.HandleFunc("/stats", h.Stats).Methods(http.MethodGet)
}

// NewRouter returns a router with the API routes and, when reg is non-nil,
// a /metrics endpoint for it.
func NewRouter[T any](eng Engine[T], log logx.Logger, reg *prometheus.Registry) *mux.Router {
	h := NewHandler(eng, log)
	r := mux.NewRouter()
	r.Use(h.logRequests)
	h.RegisterRoutes(r)
	if reg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	return r
}

func (h *Handler[T]) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler[T]) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRequest[T]
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Payloads) == 0 {
		writeError(w, http.StatusBadRequest, "payloads must not be empty")
		return
	}
	items := h.eng.Enqueue(req.Payloads...)
	h.log.Debug("items enqueued via api", logx.Int("count", len(items)))
	writeJSON(w, http.StatusAccepted, views(items))
}

func (h *Handler[T]) List(w http.ResponseWriter, r *http.Request) {
	state := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("state")))
	var items []*queue.Item[T]
	switch state {
	case "pending":
		items = h.eng.Pending()
	case "succeeded":
		items = h.eng.Succeeded()
	case "":
		pending, succeeded := h.eng.Snapshot()
		items = append(pending, succeeded...)
	default:
		writeError(w, http.StatusBadRequest, "state must be pending or succeeded")
		return
	}
	writeJSON(w, http.StatusOK, views(items))
}

func (h *Handler[T]) Get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	it, ok := h.eng.Lookup(id)
	if !ok {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}
	writeJSON(w, http.StatusOK, viewOf(it))
}

func (h *Handler[T]) Cancel(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if !h.eng.Cancel(id) {
		writeError(w, http.StatusNotFound, "no pending item with that id")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler[T]) Flush(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, FlushResponse{Synchronous: h.eng.Flush()})
}

func (h *Handler[T]) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.eng.Stats())
}

func (h *Handler[T]) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		h.log.Trace("http request",
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Int("status", sw.status),
			logx.Duration("dur", time.Since(start)),
		)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
