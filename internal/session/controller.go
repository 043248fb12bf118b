// Package session implements the search session controller: it owns the query buffer,
// the latest answer set, loading and error state, and per-result expansion.
//
// All transitions run on a single loop goroutine and publish a new immutable State.
// Each search is tagged with a sequence number at dispatch; a settlement is applied only
// if it belongs to the latest dispatched search, so the results shown always answer the
// most recent query. A superseded request is cancelled through its context.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/altiplano/parasearch/internal/client"
	"github.com/altiplano/parasearch/internal/models"
)

var (
	// ErrStopped is returned by WaitFor and TrySubmit once the controller has stopped.
	ErrStopped = errors.New("session controller stopped")
	// ErrBusy is returned by TrySubmit while a search is in flight.
	ErrBusy = errors.New("a search is already in progress")
)

// Searcher performs one search round trip. *client.Client implements it.
type Searcher interface {
	Search(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error)
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets a logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithRequestDefaults overrides num_results and temperature sent with every search.
// Values outside the backend contract are ignored.
func WithRequestDefaults(numResults int, temperature float64) Option {
	return func(c *Controller) {
		if numResults >= 1 {
			c.numResults = numResults
		}
		if temperature >= 0 && temperature <= 1 {
			c.temperature = temperature
		}
	}
}

// WithExamples sets the example query shortcuts.
func WithExamples(examples []string) Option {
	return func(c *Controller) { c.initial.Examples = append([]string(nil), examples...) }
}

// WithObserver registers fn to receive every published State, in order, on the loop
// goroutine. fn must not call back into the controller.
func WithObserver(fn func(State)) Option {
	return func(c *Controller) { c.observers = append(c.observers, fn) }
}

type command struct {
	// apply returns the next state, or nil to leave the state unchanged.
	apply func(cur *State) *State
	done  chan struct{}
}

// Controller mediates query-to-results round trips for one session.
type Controller struct {
	searcher    Searcher
	logger      *zap.Logger
	numResults  int
	temperature float64
	observers   []func(State)
	initial     State

	cmds    chan command
	mu      sync.Mutex
	state   atomic.Pointer[State]
	changed chan struct{}

	ctx       context.Context
	cancelAll context.CancelFunc
	started   atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
	stopped   chan struct{}
	inflight  sync.WaitGroup

	// Owned by the loop goroutine.
	cancelLatest context.CancelFunc
}

// New creates a controller in the Idle phase. Call Start before issuing commands.
func New(searcher Searcher, opts ...Option) *Controller {
	c := &Controller{
		searcher:    searcher,
		logger:      zap.NewNop(),
		numResults:  models.DefaultNumResults,
		temperature: models.DefaultTemperature,
		initial:     State{Phase: PhaseIdle},
		cmds:        make(chan command),
		changed:     make(chan struct{}),
		stopped:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	initial := c.initial
	c.state.Store(&initial)
	return c
}

// Start runs the update loop until ctx is cancelled or Stop is called.
func (c *Controller) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		c.ctx, c.cancelAll = context.WithCancel(ctx)
		c.started.Store(true)
		go c.run()
	})
}

// Stop cancels any in-flight search and waits for the loop to exit.
func (c *Controller) Stop() {
	if !c.started.Load() {
		return
	}
	c.stopOnce.Do(c.cancelAll)
	<-c.stopped
	c.inflight.Wait()
}

func (c *Controller) run() {
	defer close(c.stopped)
	for {
		select {
		case cmd := <-c.cmds:
			if next := cmd.apply(c.state.Load()); next != nil {
				c.publish(next)
			}
			close(cmd.done)
		case <-c.ctx.Done():
			if c.cancelLatest != nil {
				c.cancelLatest()
				c.cancelLatest = nil
			}
			return
		}
	}
}

func (c *Controller) publish(next *State) {
	c.mu.Lock()
	c.state.Store(next)
	close(c.changed)
	c.changed = make(chan struct{})
	c.mu.Unlock()
	for _, fn := range c.observers {
		fn(*next)
	}
}

// exec runs fn on the loop and waits for it. It reports false if the controller is not running.
func (c *Controller) exec(fn func(cur *State) *State) bool {
	if !c.started.Load() {
		return false
	}
	cmd := command{apply: fn, done: make(chan struct{})}
	select {
	case c.cmds <- cmd:
	case <-c.stopped:
		return false
	}
	select {
	case <-cmd.done:
		return true
	case <-c.stopped:
		return false
	}
}

// post queues fn without waiting; it is dropped if the controller stops first.
func (c *Controller) post(fn func(cur *State) *State) {
	select {
	case c.cmds <- command{apply: fn, done: make(chan struct{})}:
	case <-c.stopped:
	}
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() State {
	return *c.state.Load()
}

// WaitFor blocks until pred holds for the current state, ctx is done, or the controller stops.
// It returns the state that satisfied pred, or the latest state with the error.
func (c *Controller) WaitFor(ctx context.Context, pred func(State) bool) (State, error) {
	for {
		c.mu.Lock()
		s := *c.state.Load()
		ch := c.changed
		c.mu.Unlock()
		if pred(s) {
			return s, nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return s, ctx.Err()
		case <-c.stopped:
			return c.Snapshot(), ErrStopped
		}
	}
}

// Subscribe delivers the current state and then each newly published state until ctx is
// done or the controller stops. Delivery is coalesced: a slow reader sees the latest state,
// not every intermediate one. The channel is closed on return.
func (c *Controller) Subscribe(ctx context.Context) <-chan State {
	out := make(chan State, 1)
	go func() {
		defer close(out)
		var last *State
		for {
			c.mu.Lock()
			cur := c.state.Load()
			ch := c.changed
			c.mu.Unlock()
			if cur != last {
				select {
				case <-out:
				default:
				}
				out <- *cur
				last = cur
			}
			select {
			case <-ch:
			case <-ctx.Done():
				return
			case <-c.stopped:
				return
			}
		}
	}()
	return out
}

// Examples returns the example query shortcuts.
func (c *Controller) Examples() []string {
	return append([]string(nil), c.state.Load().Examples...)
}

// Await blocks until the search seq has settled or been superseded.
func (c *Controller) Await(ctx context.Context, seq uint64) (State, error) {
	return c.WaitFor(ctx, func(s State) bool { return s.Settled(seq) })
}

// SetQuery replaces the input buffer without searching.
func (c *Controller) SetQuery(query string) {
	c.exec(func(cur *State) *State {
		if cur.Query == query {
			return nil
		}
		next := *cur
		next.Query = query
		return &next
	})
}

// SetExamples replaces the example query shortcuts.
func (c *Controller) SetExamples(examples []string) {
	examples = append([]string(nil), examples...)
	c.exec(func(cur *State) *State {
		next := *cur
		next.Examples = examples
		return &next
	})
}

// UseExample copies example i into the input buffer without searching.
// It reports false if i does not name an example.
func (c *Controller) UseExample(i int) bool {
	var ok bool
	c.exec(func(cur *State) *State {
		if i < 0 || i >= len(cur.Examples) {
			return nil
		}
		ok = true
		next := *cur
		next.Query = cur.Examples[i]
		return &next
	})
	return ok
}

// Submit starts a search for query. An empty or whitespace-only query is a no-op and
// reports false. Otherwise, before Submit returns, the state is Loading with no results
// and no error, and the returned sequence number identifies the dispatched search.
// A search already in flight is superseded.
func (c *Controller) Submit(query string) (uint64, bool) {
	seq, err := c.submit(query, false)
	return seq, err == nil
}

// TrySubmit is Submit, except that it refuses with ErrBusy while a search is in flight.
// The check and the dispatch happen in one transition. An empty query returns
// models.ErrEmptyQuery.
func (c *Controller) TrySubmit(query string) (uint64, error) {
	return c.submit(query, true)
}

func (c *Controller) submit(query string, refuseBusy bool) (uint64, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return 0, models.ErrEmptyQuery
	}
	var seq uint64
	var busy bool
	ok := c.exec(func(cur *State) *State {
		if refuseBusy && cur.Loading {
			busy = true
			return nil
		}
		if c.cancelLatest != nil {
			c.cancelLatest()
		}
		next := *cur
		next.Seq = cur.Seq + 1
		next.Query = query
		next.Submitted = trimmed
		next.Loading = true
		next.Err = nil
		next.Results = nil
		next.Expanded = ExpansionSet{}
		next.Info = nil
		next.Phase = PhaseLoading
		seq = next.Seq

		req := &models.SearchRequest{
			Query:       trimmed,
			NumResults:  c.numResults,
			Temperature: c.temperature,
		}
		ctx, cancel := context.WithCancel(c.ctx)
		c.cancelLatest = cancel
		c.inflight.Add(1)
		go c.dispatch(ctx, seq, req)

		c.logger.Info("search submitted", zap.Uint64("seq", seq), zap.String("query", trimmed))
		return &next
	})
	switch {
	case !ok:
		return 0, ErrStopped
	case busy:
		return 0, ErrBusy
	}
	return seq, nil
}

func (c *Controller) dispatch(ctx context.Context, seq uint64, req *models.SearchRequest) {
	defer c.inflight.Done()
	resp, err := c.searcher.Search(ctx, req)
	c.post(func(cur *State) *State {
		return c.settle(cur, seq, resp, err)
	})
}

func (c *Controller) settle(cur *State, seq uint64, resp *models.SearchResponse, err error) *State {
	next := *cur
	if seq != cur.Seq {
		c.logger.Debug("discarding stale search response",
			zap.Uint64("seq", seq), zap.Uint64("latest", cur.Seq), zap.Error(err))
		next.StaleDiscarded++
		return &next
	}
	if c.cancelLatest != nil {
		c.cancelLatest()
		c.cancelLatest = nil
	}
	if err == nil && resp == nil {
		err = fmt.Errorf("%w: empty response", models.ErrMalformedResponse)
	}
	if err != nil {
		next.Err = failureFrom(err)
		next.Results = nil
		next.Phase = PhaseError
		c.logger.Warn("search failed",
			zap.Uint64("seq", seq),
			zap.String("kind", string(next.Err.Kind)),
			zap.Error(err))
	} else {
		next.Results = resp.Results
		next.Phase = PhaseSuccess
		info := &ResponseInfo{
			ModelUsed:       resp.ModelUsed,
			ProcessingTime:  resp.ProcessingTime,
			KnowledgeCutoff: resp.KnowledgeCutoff,
		}
		if resp.Warning != nil {
			info.Warning = *resp.Warning
		}
		next.Info = info
		c.logger.Debug("search settled", zap.Uint64("seq", seq), zap.Int("results", len(resp.Results)))
	}
	next.Loading = false
	return &next
}

// Toggle flips the expansion of result i. It reports false, leaving the state unchanged,
// when i is out of range or the result has no expanded content.
func (c *Controller) Toggle(i int) bool {
	var ok bool
	c.exec(func(cur *State) *State {
		if i < 0 || i >= len(cur.Results) || !cur.Results[i].Expandable() {
			return nil
		}
		ok = true
		next := *cur
		next.Expanded = cur.Expanded.Toggle(i)
		return &next
	})
	return ok
}

func failureFrom(err error) *Failure {
	var statusErr *client.StatusError
	switch {
	case errors.As(err, &statusErr):
		return &Failure{Kind: FailureBackend, Message: FallbackMessage + ": " + statusErr.StatusText}
	case errors.Is(err, models.ErrMalformedResponse):
		return &Failure{Kind: FailureMalformed, Message: err.Error()}
	default:
		msg := strings.TrimSpace(err.Error())
		if msg == "" {
			msg = FallbackMessage
		}
		return &Failure{Kind: FailureTransport, Message: msg}
	}
}
