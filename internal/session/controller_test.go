package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/altiplano/parasearch/internal/backendstub"
	"github.com/altiplano/parasearch/internal/client"
	"github.com/altiplano/parasearch/internal/models"
	"github.com/altiplano/parasearch/internal/trust"
)

const waitTimeout = 5 * time.Second

// gatedSearcher blocks each search until the test releases it by query.
// It ignores cancellation so tests control settlement order.
type gatedSearcher struct {
	mu       sync.Mutex
	requests []*models.SearchRequest
	gates    map[string]chan reply
	ctxErrs  map[string]error
	arrived  chan string
}

type reply struct {
	resp *models.SearchResponse
	err  error
}

func newGatedSearcher() *gatedSearcher {
	return &gatedSearcher{
		gates:   make(map[string]chan reply),
		ctxErrs: make(map[string]error),
		arrived: make(chan string, 16),
	}
}

func (g *gatedSearcher) gate(query string) chan reply {
	g.mu.Lock()
	defer g.mu.Unlock()
	ch, ok := g.gates[query]
	if !ok {
		ch = make(chan reply, 1)
		g.gates[query] = ch
	}
	return ch
}

func (g *gatedSearcher) Search(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error) {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()
	g.arrived <- req.Query
	r := <-g.gate(req.Query)
	g.mu.Lock()
	g.ctxErrs[req.Query] = ctx.Err()
	g.mu.Unlock()
	return r.resp, r.err
}

func (g *gatedSearcher) release(query string, resp *models.SearchResponse, err error) {
	g.gate(query) <- reply{resp: resp, err: err}
}

func (g *gatedSearcher) requestCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

func responseWith(results ...models.SearchResult) *models.SearchResponse {
	return &models.SearchResponse{Results: results, ModelUsed: "test-model", KnowledgeCutoff: "January 2025"}
}

func expandable(title string) models.SearchResult {
	content := title + " in depth"
	return models.SearchResult{Title: title, Snippet: "s", Confidence: 90, RelevanceScore: 9,
		HallucinationRisk: "low", ExpandedContent: &content}
}

func plain(title string) models.SearchResult {
	return models.SearchResult{Title: title, Snippet: "s", Confidence: 50, RelevanceScore: 4, HallucinationRisk: "high"}
}

func startController(t *testing.T, s Searcher, opts ...Option) *Controller {
	t.Helper()
	c := New(s, opts...)
	c.Start(context.Background())
	t.Cleanup(c.Stop)
	return c
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	t.Cleanup(cancel)
	return ctx
}

func TestNew_idle(t *testing.T) {
	c := New(newGatedSearcher())
	s := c.Snapshot()
	assert.Equal(t, PhaseIdle, s.Phase)
	assert.False(t, s.Loading)
	assert.Empty(t, s.Results)
	assert.Empty(t, s.ErrorMessage())
	assert.Equal(t, 0, s.Expanded.Len())
}

func TestSubmit_emptyQueryIsNoop(t *testing.T) {
	g := newGatedSearcher()
	c := startController(t, g)
	c.SetQuery("draft")
	before := c.Snapshot()

	for _, q := range []string{"", " ", "\t\n", "   \r\n  "} {
		seq, ok := c.Submit(q)
		assert.False(t, ok, "Submit(%q)", q)
		assert.Zero(t, seq)
	}
	assert.Equal(t, before, c.Snapshot())
	assert.Zero(t, g.requestCount())
}

func TestSubmit_loadingBeforeIO(t *testing.T) {
	g := newGatedSearcher()
	c := startController(t, g)

	seq, ok := c.Submit("  What is quantum mechanics?  ")
	require.True(t, ok)
	s := c.Snapshot()
	assert.True(t, s.Loading)
	assert.Equal(t, PhaseLoading, s.Phase)
	assert.Nil(t, s.Err)
	assert.Empty(t, s.Results)
	assert.Equal(t, seq, s.Seq)
	assert.Equal(t, "What is quantum mechanics?", s.Submitted)

	assert.Equal(t, "What is quantum mechanics?", <-g.arrived)
	g.release("What is quantum mechanics?", responseWith(plain("a")), nil)
	s, err := c.Await(waitCtx(t), seq)
	require.NoError(t, err)
	assert.False(t, s.Loading)
	assert.Equal(t, PhaseSuccess, s.Phase)

	g.mu.Lock()
	req := g.requests[0]
	g.mu.Unlock()
	assert.Equal(t, models.DefaultNumResults, req.NumResults)
	assert.InDelta(t, models.DefaultTemperature, req.Temperature, 1e-9)
}

func TestSubmit_clearsPreviousResultsAndError(t *testing.T) {
	g := newGatedSearcher()
	c := startController(t, g)

	seq, _ := c.Submit("first")
	<-g.arrived
	g.release("first", nil, errors.New("connection refused"))
	s, err := c.Await(waitCtx(t), seq)
	require.NoError(t, err)
	require.Equal(t, PhaseError, s.Phase)

	seq, _ = c.Submit("second")
	s = c.Snapshot()
	assert.Nil(t, s.Err, "error cleared at dispatch")
	assert.True(t, s.Loading)
	<-g.arrived
	g.release("second", responseWith(expandable("x")), nil)
	s, err = c.Await(waitCtx(t), seq)
	require.NoError(t, err)
	require.True(t, c.Toggle(0))

	seq, _ = c.Submit("third")
	s = c.Snapshot()
	assert.Empty(t, s.Results, "results cleared at dispatch")
	assert.Equal(t, 0, s.Expanded.Len(), "expansion reset with results")
	<-g.arrived
	g.release("third", responseWith(), nil)
	_, err = c.Await(waitCtx(t), seq)
	require.NoError(t, err)
}

func TestSubmit_loadingTransitionsExactlyOnce(t *testing.T) {
	tests := []struct {
		name string
		resp *models.SearchResponse
		err  error
	}{
		{"success", responseWith(plain("a")), nil},
		{"backend error", nil, &client.StatusError{StatusCode: 500, StatusText: "Internal Server Error"}},
		{"transport error", nil, errors.New("dial tcp: connection refused")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var mu sync.Mutex
			var loading []bool
			g := newGatedSearcher()
			c := startController(t, g, WithObserver(func(s State) {
				mu.Lock()
				loading = append(loading, s.Loading)
				mu.Unlock()
			}))

			seq, _ := c.Submit("q")
			<-g.arrived
			g.release("q", tt.resp, tt.err)
			_, err := c.Await(waitCtx(t), seq)
			require.NoError(t, err)

			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, []bool{true, false}, loading)
		})
	}
}

func TestSettle_failureKinds(t *testing.T) {
	tests := []struct {
		name     string
		resp     *models.SearchResponse
		err      error
		wantKind FailureKind
		wantMsg  string
	}{
		{
			name:     "backend status",
			err:      &client.StatusError{StatusCode: 503, StatusText: "Service Unavailable"},
			wantKind: FailureBackend,
			wantMsg:  "Search failed: Service Unavailable",
		},
		{
			name:     "transport with message",
			err:      &client.TransportError{Op: "search", Err: errors.New("dial tcp 127.0.0.1:8000: connect: connection refused")},
			wantKind: FailureTransport,
			wantMsg:  "dial tcp 127.0.0.1:8000: connect: connection refused",
		},
		{
			name:     "transport without message",
			err:      errors.New(""),
			wantKind: FailureTransport,
			wantMsg:  FallbackMessage,
		},
		{
			name:     "malformed",
			err:      models.ErrMalformedResponse,
			wantKind: FailureMalformed,
			wantMsg:  "malformed search response",
		},
		{
			name:     "nil response",
			wantKind: FailureMalformed,
			wantMsg:  "malformed search response: empty response",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newGatedSearcher()
			c := startController(t, g)
			seq, _ := c.Submit("q")
			<-g.arrived
			g.release("q", tt.resp, tt.err)
			s, err := c.Await(waitCtx(t), seq)
			require.NoError(t, err)
			require.NotNil(t, s.Err)
			assert.Equal(t, tt.wantKind, s.Err.Kind)
			assert.Equal(t, tt.wantMsg, s.ErrorMessage())
			assert.Equal(t, PhaseError, s.Phase)
			assert.Empty(t, s.Results)
			assert.False(t, s.Loading)
		})
	}
}

func TestSettle_resultsVerbatim(t *testing.T) {
	g := newGatedSearcher()
	c := startController(t, g)
	results := []models.SearchResult{plain("low first"), expandable("high second"), plain("third")}
	warning := "This query asks about recent events."
	resp := responseWith(results...)
	resp.Warning = &warning
	resp.ProcessingTime = 1.5

	seq, _ := c.Submit("q")
	<-g.arrived
	g.release("q", resp, nil)
	s, err := c.Await(waitCtx(t), seq)
	require.NoError(t, err)
	assert.Equal(t, results, s.Results, "order and content preserved")
	require.NotNil(t, s.Info)
	assert.Equal(t, warning, s.Info.Warning)
	assert.Equal(t, "test-model", s.Info.ModelUsed)
	assert.InDelta(t, 1.5, s.Info.ProcessingTime, 1e-9)
}

func TestToggle(t *testing.T) {
	g := newGatedSearcher()
	c := startController(t, g)
	seq, _ := c.Submit("q")
	<-g.arrived
	g.release("q", responseWith(expandable("a"), plain("b"), expandable("c")), nil)
	_, err := c.Await(waitCtx(t), seq)
	require.NoError(t, err)

	t.Run("toggle twice restores set", func(t *testing.T) {
		before := c.Snapshot().Expanded
		require.True(t, c.Toggle(2))
		assert.True(t, c.Snapshot().IsExpanded(2))
		require.True(t, c.Toggle(2))
		after := c.Snapshot().Expanded
		assert.True(t, before.Equal(after), "before %v after %v", before.Indices(), after.Indices())
		assert.Equal(t, before, after)
	})

	t.Run("independent per result", func(t *testing.T) {
		require.True(t, c.Toggle(0))
		require.True(t, c.Toggle(2))
		require.True(t, c.Toggle(0))
		s := c.Snapshot()
		assert.False(t, s.IsExpanded(0))
		assert.True(t, s.IsExpanded(2))
		require.True(t, c.Toggle(2))
	})

	t.Run("non-expandable result is rejected", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			assert.False(t, c.Toggle(1))
		}
		assert.False(t, c.Snapshot().IsExpanded(1))
	})

	t.Run("out of range is rejected", func(t *testing.T) {
		before := c.Snapshot()
		assert.False(t, c.Toggle(-1))
		assert.False(t, c.Toggle(3))
		assert.Equal(t, before, c.Snapshot())
	})
}

func TestExamples(t *testing.T) {
	g := newGatedSearcher()
	examples := []string{"What is quantum mechanics?", "Explain photosynthesis"}
	c := startController(t, g, WithExamples(examples))

	assert.Equal(t, examples, c.Snapshot().Examples)
	got := c.Examples()
	got[0] = "mutated"
	assert.Equal(t, examples, c.Examples())
	require.True(t, c.UseExample(1))
	s := c.Snapshot()
	assert.Equal(t, "Explain photosynthesis", s.Query)
	assert.False(t, s.Loading, "example shortcuts never submit")
	assert.Equal(t, PhaseIdle, s.Phase)
	assert.False(t, c.UseExample(2))
	assert.Zero(t, g.requestCount())

	c.SetExamples([]string{"History of ancient Rome"})
	require.True(t, c.UseExample(0))
	assert.Equal(t, "History of ancient Rome", c.Snapshot().Query)
}

func TestSubscribe(t *testing.T) {
	g := newGatedSearcher()
	c := startController(t, g)
	ctx, cancel := context.WithCancel(waitCtx(t))
	updates := c.Subscribe(ctx)

	first := <-updates
	assert.Equal(t, PhaseIdle, first.Phase)

	seq, ok := c.Submit("quantum")
	require.True(t, ok)
	<-g.arrived
	g.release("quantum", responseWith(plain("Quantum Mechanics")), nil)

	for s := range updates {
		if s.Settled(seq) {
			assert.Equal(t, PhaseSuccess, s.Phase)
			require.Len(t, s.Results, 1)
			break
		}
	}

	cancel()
	for range updates {
	}
}

func TestTrySubmit(t *testing.T) {
	g := newGatedSearcher()
	c := startController(t, g)

	_, err := c.TrySubmit("   ")
	assert.ErrorIs(t, err, models.ErrEmptyQuery)

	seq, err := c.TrySubmit("first")
	require.NoError(t, err)
	<-g.arrived

	_, err = c.TrySubmit("second")
	assert.ErrorIs(t, err, ErrBusy)
	s := c.Snapshot()
	assert.Equal(t, seq, s.Seq, "refused submit leaves the state alone")
	assert.Equal(t, "first", s.Submitted)

	g.release("first", responseWith(plain("a")), nil)
	_, err = c.Await(waitCtx(t), seq)
	require.NoError(t, err)

	next, err := c.TrySubmit("second")
	require.NoError(t, err)
	assert.Equal(t, seq+1, next)
	<-g.arrived
	g.release("second", responseWith(), nil)
	_, err = c.Await(waitCtx(t), next)
	require.NoError(t, err)
	assert.Equal(t, 2, g.requestCount())
}

func TestTrySubmit_concurrentCallersDispatchOnce(t *testing.T) {
	g := newGatedSearcher()
	c := startController(t, g)

	const n = 8
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.TrySubmit("q")
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, err := range errs {
		if err == nil {
			accepted++
		} else {
			assert.ErrorIs(t, err, ErrBusy)
		}
	}
	assert.Equal(t, 1, accepted)
	<-g.arrived
	g.release("q", responseWith(), nil)
	_, err := c.Await(waitCtx(t), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, g.requestCount())
}

func TestSubmit_queryBufferPersists(t *testing.T) {
	g := newGatedSearcher()
	c := startController(t, g)
	seq, _ := c.Submit("  photosynthesis ")
	<-g.arrived
	g.release("photosynthesis", responseWith(), nil)
	s, err := c.Await(waitCtx(t), seq)
	require.NoError(t, err)
	assert.Equal(t, "  photosynthesis ", s.Query)
}

// A slower first request settling after a faster second one must not overwrite the
// second's results.
func TestSubmit_latestRequestWins(t *testing.T) {
	g := newGatedSearcher()
	c := startController(t, g)

	first, _ := c.Submit("first")
	<-g.arrived
	second, _ := c.Submit("second")
	<-g.arrived
	require.Greater(t, second, first)

	g.release("second", responseWith(plain("from second")), nil)
	s, err := c.Await(waitCtx(t), second)
	require.NoError(t, err)
	require.Len(t, s.Results, 1)
	assert.Equal(t, "from second", s.Results[0].Title)

	g.release("first", responseWith(plain("from first")), nil)
	s, err = c.WaitFor(waitCtx(t), func(s State) bool { return s.StaleDiscarded == 1 })
	require.NoError(t, err)
	assert.Equal(t, "from second", s.Results[0].Title)
	assert.False(t, s.Loading)
	assert.Equal(t, PhaseSuccess, s.Phase)

	g.mu.Lock()
	defer g.mu.Unlock()
	assert.ErrorIs(t, g.ctxErrs["first"], context.Canceled, "superseded request is cancelled")
	assert.NoError(t, g.ctxErrs["second"])
}

func TestSubmit_staleResponseWhileLatestPending(t *testing.T) {
	g := newGatedSearcher()
	c := startController(t, g)

	c.Submit("first")
	<-g.arrived
	second, _ := c.Submit("second")
	<-g.arrived

	g.release("first", responseWith(plain("from first")), nil)
	s, err := c.WaitFor(waitCtx(t), func(s State) bool { return s.StaleDiscarded == 1 })
	require.NoError(t, err)
	assert.True(t, s.Loading, "latest search still pending")
	assert.Empty(t, s.Results)

	g.release("second", nil, errors.New("boom"))
	s, err = c.Await(waitCtx(t), second)
	require.NoError(t, err)
	assert.Equal(t, "boom", s.ErrorMessage())
}

func TestWithRequestDefaults(t *testing.T) {
	g := newGatedSearcher()
	c := startController(t, g, WithRequestDefaults(3, 0.7), WithRequestDefaults(0, 1.5))
	seq, _ := c.Submit("q")
	<-g.arrived
	g.release("q", responseWith(), nil)
	_, err := c.Await(waitCtx(t), seq)
	require.NoError(t, err)

	g.mu.Lock()
	defer g.mu.Unlock()
	assert.Equal(t, 3, g.requests[0].NumResults)
	assert.InDelta(t, 0.7, g.requests[0].Temperature, 1e-9)
}

func TestCommandsBeforeStartAndAfterStop(t *testing.T) {
	g := newGatedSearcher()
	c := New(g)
	_, ok := c.Submit("q")
	assert.False(t, ok, "not started")
	c.Stop()

	c.Start(context.Background())
	c.Stop()
	_, ok = c.Submit("q")
	assert.False(t, ok, "stopped")
	assert.False(t, c.Toggle(0))
	_, err := c.WaitFor(context.Background(), func(State) bool { return false })
	assert.ErrorIs(t, err, ErrStopped)
	assert.Zero(t, g.requestCount())
}

func newBackend(t *testing.T) (*backendstub.Stub, *client.Client) {
	t.Helper()
	stub := backendstub.New()
	srv := httptest.NewServer(stub.Handler())
	t.Cleanup(srv.Close)
	return stub, client.New(srv.URL)
}

func TestEndToEnd_singleResult(t *testing.T) {
	stub, cl := newBackend(t)
	content := "Longer explanation."
	stub.SetResults([]models.SearchResult{{
		Title: "Quantum Mechanics", Snippet: "Physics of the small.", Confidence: 92,
		RelevanceScore: 9, HallucinationRisk: "Low", ExpandedContent: &content,
	}})
	c := startController(t, cl)

	seq, ok := c.Submit("What is quantum mechanics?")
	require.True(t, ok)
	s, err := c.Await(waitCtx(t), seq)
	require.NoError(t, err)

	require.Len(t, s.Results, 1)
	a := trust.Classify(s.Results[0])
	assert.Equal(t, trust.TierHigh, a.Confidence)
	assert.Equal(t, trust.TierLow, a.Risk)
	assert.False(t, s.Loading)
	assert.Nil(t, s.Err)
	assert.Empty(t, s.ErrorMessage())

	reqs := stub.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, models.SearchRequest{Query: "What is quantum mechanics?", NumResults: 5, Temperature: 0.3}, reqs[0].Request)
}

func TestEndToEnd_backendFailure(t *testing.T) {
	stub, cl := newBackend(t)
	stub.FailWith(http.StatusInternalServerError)
	c := startController(t, cl)

	seq, _ := c.Submit("x")
	s, err := c.Await(waitCtx(t), seq)
	require.NoError(t, err)
	assert.Empty(t, s.Results)
	assert.NotEmpty(t, s.ErrorMessage())
	assert.Equal(t, "Search failed: Internal Server Error", s.ErrorMessage())
	assert.False(t, s.Loading)
}

func TestEndToEnd_transportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	c := startController(t, client.New(url))

	seq, _ := c.Submit("x")
	s, err := c.Await(waitCtx(t), seq)
	require.NoError(t, err)
	require.NotNil(t, s.Err)
	assert.Equal(t, FailureTransport, s.Err.Kind)
	assert.NotEmpty(t, s.Err.Message)
	assert.False(t, s.Loading)
}

func TestEndToEnd_malformedResponse(t *testing.T) {
	stub, cl := newBackend(t)
	stub.SetRawBody(`{"query": "x", "results": [{"title": "t", "snippet": "s", "confidence": 250, "relevance_score": 1}]}`)
	c := startController(t, cl)

	seq, _ := c.Submit("x")
	s, err := c.Await(waitCtx(t), seq)
	require.NoError(t, err)
	require.NotNil(t, s.Err)
	assert.Equal(t, FailureMalformed, s.Err.Kind)
	assert.Empty(t, s.Results)
}

func TestEndToEnd_noExpandedContentNeverExpands(t *testing.T) {
	stub, cl := newBackend(t)
	stub.SetResults([]models.SearchResult{plain("no detail")})
	c := startController(t, cl)

	seq, _ := c.Submit("x")
	_, err := c.Await(waitCtx(t), seq)
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		assert.False(t, c.Toggle(0))
	}
	assert.Equal(t, 0, c.Snapshot().Expanded.Len())
}
