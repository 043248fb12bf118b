package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrMalformedResponse is returned when a search response violates the declared schema.
var ErrMalformedResponse = errors.New("malformed search response")

// Score bounds declared by the backend contract.
const (
	MaxConfidence     = 100.0
	MaxRelevanceScore = 10.0
)

// SearchResult is one ranked answer candidate.
type SearchResult struct {
	Title             string  `json:"title"`
	Snippet           string  `json:"snippet"`
	Confidence        float64 `json:"confidence"`
	RelevanceScore    float64 `json:"relevance_score"`
	ExpandedContent   *string `json:"expanded_content,omitempty"`
	HallucinationRisk string  `json:"hallucination_risk"`
}

// Expandable reports whether the result carries extended text.
func (r SearchResult) Expandable() bool {
	return r.ExpandedContent != nil && *r.ExpandedContent != ""
}

// SearchResponse is the body returned by POST /search.
// Results keep the backend's order, which is the authoritative relevance order.
type SearchResponse struct {
	Query           string         `json:"query"`
	Results         []SearchResult `json:"results"`
	ProcessingTime  float64        `json:"processing_time"`
	ModelUsed       string         `json:"model_used"`
	KnowledgeCutoff string         `json:"knowledge_cutoff"`
	Warning         *string        `json:"warning,omitempty"`
}

// wireResult tracks field presence so missing fields can be told apart from zero values.
type wireResult struct {
	Title             *string         `json:"title"`
	Snippet           *string         `json:"snippet"`
	Confidence        *float64        `json:"confidence"`
	RelevanceScore    *float64        `json:"relevance_score"`
	ExpandedContent   *string         `json:"expanded_content"`
	HallucinationRisk json.RawMessage `json:"hallucination_risk"`
}

type wireResponse struct {
	Query           string        `json:"query"`
	Results         *[]wireResult `json:"results"`
	ProcessingTime  float64       `json:"processing_time"`
	ModelUsed       string        `json:"model_used"`
	KnowledgeCutoff string        `json:"knowledge_cutoff"`
	Warning         *string       `json:"warning"`
}

// DecodeSearchResponse reads a search response from r and validates it at the boundary.
// Violations are reported as ErrMalformedResponse. hallucination_risk is permissive:
// a missing or non-string value decodes to "".
func DecodeSearchResponse(r io.Reader) (*SearchResponse, error) {
	var wire wireResponse
	if err := json.NewDecoder(r).Decode(&wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if wire.Results == nil {
		return nil, fmt.Errorf("%w: missing results", ErrMalformedResponse)
	}
	results := make([]SearchResult, 0, len(*wire.Results))
	for i, wr := range *wire.Results {
		res, err := wr.toResult()
		if err != nil {
			return nil, fmt.Errorf("%w: results[%d]: %v", ErrMalformedResponse, i, err)
		}
		results = append(results, res)
	}
	return &SearchResponse{
		Query:           wire.Query,
		Results:         results,
		ProcessingTime:  wire.ProcessingTime,
		ModelUsed:       wire.ModelUsed,
		KnowledgeCutoff: wire.KnowledgeCutoff,
		Warning:         wire.Warning,
	}, nil
}

func (w wireResult) toResult() (SearchResult, error) {
	switch {
	case w.Title == nil:
		return SearchResult{}, errors.New("missing title")
	case w.Snippet == nil:
		return SearchResult{}, errors.New("missing snippet")
	case w.Confidence == nil:
		return SearchResult{}, errors.New("missing confidence")
	case w.RelevanceScore == nil:
		return SearchResult{}, errors.New("missing relevance_score")
	}
	if c := *w.Confidence; c < 0 || c > MaxConfidence {
		return SearchResult{}, fmt.Errorf("confidence %g out of range [0, %g]", c, MaxConfidence)
	}
	if s := *w.RelevanceScore; s < 0 || s > MaxRelevanceScore {
		return SearchResult{}, fmt.Errorf("relevance_score %g out of range [0, %g]", s, MaxRelevanceScore)
	}
	var risk string
	if len(w.HallucinationRisk) > 0 {
		// Non-string values fall through to "" and classify as unknown.
		_ = json.Unmarshal(w.HallucinationRisk, &risk)
	}
	res := SearchResult{
		Title:             *w.Title,
		Snippet:           *w.Snippet,
		Confidence:        *w.Confidence,
		RelevanceScore:    *w.RelevanceScore,
		HallucinationRisk: risk,
	}
	if w.ExpandedContent != nil && *w.ExpandedContent != "" {
		content := *w.ExpandedContent
		res.ExpandedContent = &content
	}
	return res, nil
}
