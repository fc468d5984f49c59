package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
)

// Tree is the part of arbor.Tree the read API needs.
type Tree interface {
	Snapshot() []arbor.Node
	Children(ctx context.Context, it *arbor.Item) ([]*arbor.Item, error)
	FindByPath(ctx context.Context, contributor string, ids ...string) (*arbor.Item, error)
	FindByPredicate(ctx context.Context, match, descend arbor.Predicate) (*arbor.Item, error)
	Subscribe(fn arbor.Listener) string
	Unsubscribe(id string) bool
	Submit(ctx context.Context, ev domain.Event) *arbor.Future
}

// Server exposes a tree over HTTP.
type Server struct {
	tree    Tree
	streams *StreamManager
	router  chi.Router
	metrics http.Handler
	logger  *slog.Logger
	sub     string
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics mounts a metrics handler on /metrics.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates the handler and starts forwarding tree events to SSE
// clients. Call Close to stop forwarding.
func NewServer(tree Tree, opts ...Option) *Server {
	s := &Server{tree: tree, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	s.streams = NewStreamManager(s.logger)
	s.sub = tree.Subscribe(s.forward)

	r := chi.NewRouter()
	r.Use(enableCORS)
	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/roots", s.GetRoots)
	r.Get("/items/{contributor}", s.GetItem)
	r.Get("/items/{contributor}/*", s.GetItem)
	r.Get("/find", s.Find)
	r.Get("/events", s.SubscribeEvents)
	r.Post("/events", s.PostEvent)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close stops forwarding tree events.
func (s *Server) Close() {
	s.tree.Unsubscribe(s.sub)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// forward runs on the model executor; Broadcast never blocks.
func (s *Server) forward(ctx context.Context, ev domain.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.logger.Error("SSE: Event encode failed", "event", ev.String(), "err", err)
		return
	}
	s.streams.Broadcast(ev.Contributor, string(data))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Response encode failed", "err", err)
	}
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":     "arbor-http",
		"version": strings.TrimSpace(arbor.Version),
	})
}

// GetRoots handles GET /roots: the loaded tree, without forcing loads.
func (s *Server) GetRoots(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.tree.Snapshot())
}

// GetItem handles GET /items/{contributor}/{id}/...: the item at that path
// with its children loaded.
func (s *Server) GetItem(w http.ResponseWriter, r *http.Request) {
	contributor := chi.URLParam(r, "contributor")
	var ids []string
	if rest := strings.Trim(chi.URLParam(r, "*"), "/"); rest != "" {
		ids = strings.Split(rest, "/")
	}

	it, err := s.tree.FindByPath(r.Context(), contributor, ids...)
	if err != nil {
		s.fail(w, "FindByPath", err)
		return
	}
	if it == nil {
		http.Error(w, "Item not found", http.StatusNotFound)
		return
	}
	if _, err := s.tree.Children(r.Context(), it); err != nil {
		s.fail(w, "Children", err)
		return
	}
	s.writeJSON(w, http.StatusOK, arbor.NodeOf(it))
}

// FindResponse is the body of GET /find.
type FindResponse struct {
	Contributor string     `json:"contributor"`
	Path        []string   `json:"path"`
	Node        arbor.Node `json:"node"`
}

// Find handles GET /find?id=... or /find?text=...; lazy subtrees are loaded
// as needed.
func (s *Server) Find(w http.ResponseWriter, r *http.Request) {
	id, text := r.URL.Query().Get("id"), r.URL.Query().Get("text")
	var match arbor.Predicate
	switch {
	case id != "":
		match = func(it *arbor.Item) bool { return it.ID() == id }
	case text != "":
		match = func(it *arbor.Item) bool { return strings.EqualFold(it.Text(), text) }
	default:
		http.Error(w, "id or text query parameter required", http.StatusBadRequest)
		return
	}

	it, err := s.tree.FindByPredicate(r.Context(), match, nil)
	if err != nil {
		s.fail(w, "Find", err)
		return
	}
	if it == nil {
		http.Error(w, "Item not found", http.StatusNotFound)
		return
	}
	contributor, path := arbor.Path(it)
	s.writeJSON(w, http.StatusOK, FindResponse{Contributor: contributor, Path: path, Node: arbor.NodeOf(it)})
}

// PostEvent handles POST /events: a change event pushed by a remote
// contributor. Values are resolved by ID.
func (s *Server) PostEvent(w http.ResponseWriter, r *http.Request) {
	var ev domain.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		http.Error(w, fmt.Sprintf("Invalid event: %v", err), http.StatusBadRequest)
		s.logger.Warn("PostEvent: Invalid request body", "err", err)
		return
	}
	if err := s.tree.Submit(r.Context(), ev).Wait(r.Context()); err != nil {
		s.fail(w, "Submit", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// SubscribeEvents handles GET /events (SSE). ?contributor= narrows the stream
// to one contributor class.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	topic := r.URL.Query().Get("contributor")
	ch, cancel := s.streams.Subscribe(topic)
	defer cancel()
	s.logger.Debug("SSE: Client subscribed", "topic", topic)

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("SSE: Client disconnected", "topic", topic)
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusServiceUnavailable
	}
	http.Error(w, fmt.Sprintf("%s error: %v", op, err), status)
	s.logger.Error(op+" failed", "err", err)
}
