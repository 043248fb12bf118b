// Package backendstub serves canned answers over the knowledge-search backend contract.
// It backs tests and offline development; it does no retrieval of its own.
package backendstub

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/altiplano/parasearch/internal/models"
)

// KnowledgeCutoff is reported in every stub response.
const KnowledgeCutoff = "January 2025"

// Recorded is one request the stub received.
type Recorded struct {
	Request   models.SearchRequest
	RequestID string
	Header    http.Header
}

// Stub is a programmable backend.
type Stub struct {
	mu           sync.Mutex
	results      []models.SearchResult
	byQuery      map[string][]models.SearchResult
	status       int
	rawBody      string
	delay        time.Duration
	warning      string
	healthy      bool
	modelNames   []string
	defaultModel string
	recorded     []Recorded

	logger *zap.Logger
	server *http.Server
}

// Option configures a Stub.
type Option func(*Stub)

// WithLogger sets a logger for request output.
func WithLogger(l *zap.Logger) Option {
	return func(s *Stub) { s.logger = l }
}

// WithResults sets the default answer set.
func WithResults(results ...models.SearchResult) Option {
	return func(s *Stub) { s.results = results }
}

// New returns a healthy stub answering every query with SampleResults.
func New(opts ...Option) *Stub {
	s := &Stub{
		results:      SampleResults(),
		byQuery:      make(map[string][]models.SearchResult),
		healthy:      true,
		modelNames:   []string{"llama3.2", "mistral", "qwen2.5"},
		defaultModel: "llama3.2",
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetResults replaces the default answer set.
func (s *Stub) SetResults(results []models.SearchResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = results
}

// SetResultsFor answers query (after trimming) with results instead of the default set.
func (s *Stub) SetResultsFor(query string, results []models.SearchResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byQuery[strings.TrimSpace(query)] = results
}

// FailWith makes every search answer with status. Zero restores normal answers.
func (s *Stub) FailWith(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// SetRawBody makes every successful search answer with body verbatim. Empty restores
// normal answers.
func (s *Stub) SetRawBody(body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rawBody = body
}

// SetDelay holds every search for d before answering.
func (s *Stub) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// SetWarning attaches a warning to every search response.
func (s *Stub) SetWarning(w string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warning = w
}

// SetHealthy toggles the upstream health the stub reports.
func (s *Stub) SetHealthy(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthy = ok
}

// Requests returns a copy of the search requests received so far.
func (s *Stub) Requests() []Recorded {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Recorded(nil), s.recorded...)
}

// Handler returns the stub's router.
func (s *Stub) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Post("/search", s.handleSearch)
	r.Get("/health", s.handleHealth)
	r.Get("/models", s.handleModels)
	return r
}

// Start listens on addr and blocks until the server stops.
func (s *Stub) Start(addr string) error {
	s.mu.Lock()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           middleware.Logger(s.Handler()),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()
	s.logger.Info("Starting backend stub", zap.String("addr", addr))
	return srv.ListenAndServe()
}

// Stop gracefully shuts down a started stub.
func (s *Stub) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}

func (s *Stub) handleSearch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req models.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondDetail(w, http.StatusUnprocessableEntity, "invalid request body")
		return
	}

	s.mu.Lock()
	s.recorded = append(s.recorded, Recorded{
		Request:   req,
		RequestID: r.Header.Get("X-Request-ID"),
		Header:    r.Header.Clone(),
	})
	delay, status, raw, warning := s.delay, s.status, s.rawBody, s.warning
	results, ok := s.byQuery[strings.TrimSpace(req.Query)]
	if !ok {
		results = s.results
	}
	s.mu.Unlock()

	s.logger.Debug("stub search", zap.String("query", req.Query), zap.Int("num_results", req.NumResults))

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}
	if status != 0 {
		respondDetail(w, status, http.StatusText(status))
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		respondDetail(w, http.StatusBadRequest, "Query cannot be empty")
		return
	}
	if raw != "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(raw))
		return
	}
	if req.NumResults > 0 && len(results) > req.NumResults {
		results = results[:req.NumResults]
	}
	resp := models.SearchResponse{
		Query:           req.Query,
		Results:         results,
		ProcessingTime:  time.Since(start).Seconds(),
		ModelUsed:       s.defaultModel,
		KnowledgeCutoff: KnowledgeCutoff,
	}
	if resp.Results == nil {
		resp.Results = []models.SearchResult{}
	}
	if warning != "" {
		resp.Warning = &warning
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Stub) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	healthy := s.healthy
	s.mu.Unlock()
	resp := models.HealthResponse{
		Status:    "healthy",
		Ollama:    models.UpstreamHealth{Status: "healthy"},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if !healthy {
		resp.Status = "degraded"
		resp.Ollama = models.UpstreamHealth{Status: "unhealthy", Error: "connection refused"}
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Stub) handleModels(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	healthy := s.healthy
	resp := models.ModelsResponse{
		Models:  append([]string(nil), s.modelNames...),
		Default: s.defaultModel,
	}
	s.mu.Unlock()
	if !healthy {
		respondDetail(w, http.StatusServiceUnavailable, "Ollama not available")
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondDetail(w http.ResponseWriter, status int, detail string) {
	respondJSON(w, status, map[string]string{"detail": detail})
}
