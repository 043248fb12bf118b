package session

import "github.com/altiplano/parasearch/internal/models"

// Phase is the session-level state machine position.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseLoading Phase = "loading"
	PhaseSuccess Phase = "success"
	PhaseError   Phase = "error"
)

// FailureKind classifies why the last search failed.
type FailureKind string

const (
	// FailureBackend: the backend answered with a non-success status.
	FailureBackend FailureKind = "backend"
	// FailureTransport: no response was obtained.
	FailureTransport FailureKind = "transport"
	// FailureMalformed: the response violated the declared schema.
	FailureMalformed FailureKind = "malformed"
)

// FallbackMessage is shown when a failure carries no message of its own.
const FallbackMessage = "Search failed"

// Failure is the last search error as presented to the user.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
}

// ResponseInfo carries the metadata of the last successful response.
type ResponseInfo struct {
	ModelUsed       string  `json:"model_used"`
	ProcessingTime  float64 `json:"processing_time"`
	KnowledgeCutoff string  `json:"knowledge_cutoff"`
	Warning         string  `json:"warning,omitempty"`
}

// State is an immutable snapshot of the session. Every transition produces a new State;
// slices reachable from a State must not be modified.
type State struct {
	// Query is the input buffer. It persists across searches.
	Query string `json:"query"`
	// Submitted is the trimmed query of the latest dispatched search.
	Submitted string `json:"submitted,omitempty"`
	// Results is the current answer set in backend order.
	Results []models.SearchResult `json:"results"`
	// Loading is true strictly between dispatch and settlement of the latest search.
	Loading bool `json:"loading"`
	// Err is the last failure, nil when none.
	Err *Failure `json:"error,omitempty"`
	// Expanded holds positional indices into Results.
	Expanded ExpansionSet `json:"expanded"`
	Phase    Phase        `json:"phase"`
	// Seq is the sequence number of the latest dispatched search; 0 before the first.
	Seq uint64 `json:"seq"`
	// StaleDiscarded counts settlements dropped because a newer search had been dispatched.
	StaleDiscarded uint64        `json:"stale_discarded"`
	Info           *ResponseInfo `json:"info,omitempty"`
	Examples       []string      `json:"examples,omitempty"`
}

// ErrorMessage returns the failure message, or "" when the last search did not fail.
func (s State) ErrorMessage() string {
	if s.Err == nil {
		return ""
	}
	return s.Err.Message
}

// IsExpanded reports whether result i is shown expanded.
func (s State) IsExpanded(i int) bool {
	return s.Expanded.Contains(i)
}

// Settled reports whether the search with sequence number seq is no longer pending,
// either because it settled or because a newer search superseded it.
func (s State) Settled(seq uint64) bool {
	return s.Seq != seq || !s.Loading
}
