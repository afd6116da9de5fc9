package mockagent

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"
)

// DefaultChunkSize is small and odd so writes split lines, JSON values and
// multi-byte runes.
const DefaultChunkSize = 7

// Options configures the mock endpoint.
type Options struct {
	// Fixture, when set, is replayed for every prompt. Otherwise
	// DefaultScript answers each prompt.
	Fixture *Fixture
	// ChunkSize is the number of bytes per write.
	ChunkSize int
	// Delay is the pause between writes.
	Delay time.Duration
	// Logger receives request diagnostics.
	Logger *log.Entry
}

// Handler serves the mock agent routes.
type Handler struct {
	options Options
	logger  *log.Entry
}

// NewServer returns a router with POST /invocations and GET /healthz.
func NewServer(options Options) http.Handler {
	if options.ChunkSize <= 0 {
		options.ChunkSize = DefaultChunkSize
	}
	logger := options.Logger
	if logger == nil {
		logger = log.WithField("component", "mockagent")
	}
	handler := &Handler{options: options, logger: logger}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	RegisterRoutes(router, handler)
	return router
}

// RegisterRoutes mounts the mock agent on r.
func RegisterRoutes(r chi.Router, h *Handler) {
	r.Post("/invocations", h.invoke)
	r.Get("/healthz", h.health)
}

// invocationRequest is the body the console posts.
type invocationRequest struct {
	Prompt string `json:"prompt"`
}

func (h *Handler) invoke(w http.ResponseWriter, r *http.Request) {
	var request invocationRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if request.Prompt == "" {
		http.Error(w, "prompt is required", http.StatusBadRequest)
		return
	}

	fixture := DefaultScript(request.Prompt)
	if h.options.Fixture != nil {
		fixture = *h.options.Fixture
	}
	payload := fixture.Bytes()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)

	h.logger.WithField("bytes", len(payload)).Debug("streaming fixture")
	for start := 0; start < len(payload); start += h.options.ChunkSize {
		end := min(start+h.options.ChunkSize, len(payload))
		if _, err := w.Write(payload[start:end]); err != nil {
			h.logger.WithError(err).Debug("client went away")
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
		if h.options.Delay > 0 {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(h.options.Delay):
			}
		}
	}
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
