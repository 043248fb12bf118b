// Package models defines the wire types exchanged with the knowledge-search backend.
package models

import (
	"errors"
	"fmt"
	"strings"
)

// Request parameters the client sends when none are configured.
const (
	DefaultNumResults  = 5
	DefaultTemperature = 0.3
)

// ErrEmptyQuery is returned when a query is empty or whitespace-only.
var ErrEmptyQuery = errors.New("query cannot be empty")

// SearchRequest is the body of POST /search.
type SearchRequest struct {
	Query       string  `json:"query"`
	NumResults  int     `json:"num_results"`
	Temperature float64 `json:"temperature"`
}

// NewSearchRequest returns a request for the trimmed query with the default parameters.
func NewSearchRequest(query string) *SearchRequest {
	return &SearchRequest{
		Query:       strings.TrimSpace(query),
		NumResults:  DefaultNumResults,
		Temperature: DefaultTemperature,
	}
}

// Validate checks the request against the backend contract.
// The query must be non-empty after trimming; num_results >= 1; 0 <= temperature <= 1.
func (r *SearchRequest) Validate() error {
	if strings.TrimSpace(r.Query) == "" {
		return ErrEmptyQuery
	}
	if r.NumResults < 1 {
		return fmt.Errorf("num_results must be at least 1, got %d", r.NumResults)
	}
	if r.Temperature < 0 || r.Temperature > 1 {
		return fmt.Errorf("temperature must be within [0, 1], got %g", r.Temperature)
	}
	return nil
}
