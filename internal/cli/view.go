package cli

import (
	"github.com/altiplano/parasearch/internal/session"
	"github.com/altiplano/parasearch/internal/trust"
)

// ResultView is one rendered result. ExpandedContent is set only while the result is expanded.
type ResultView struct {
	Index             int        `json:"index"`
	Title             string     `json:"title"`
	Snippet           string     `json:"snippet"`
	Confidence        float64    `json:"confidence"`
	ConfidenceTier    trust.Tier `json:"confidence_tier"`
	RelevanceScore    float64    `json:"relevance_score"`
	HallucinationRisk string     `json:"hallucination_risk"`
	RiskTier          trust.Tier `json:"risk_tier"`
	Expandable        bool       `json:"expandable"`
	Expanded          bool       `json:"expanded"`
	ExpandedContent   *string    `json:"expanded_content,omitempty"`
}

// SessionView is the render model of a session state.
type SessionView struct {
	Query     string                `json:"query"`
	Submitted string                `json:"submitted,omitempty"`
	Phase     session.Phase         `json:"phase"`
	Loading   bool                  `json:"loading"`
	Error     *session.Failure      `json:"error,omitempty"`
	Results   []ResultView          `json:"results"`
	Info      *session.ResponseInfo `json:"info,omitempty"`
	Examples  []string              `json:"examples,omitempty"`
}

// NewSessionView builds the render model for s.
func NewSessionView(s session.State) SessionView {
	v := SessionView{
		Query:     s.Query,
		Submitted: s.Submitted,
		Phase:     s.Phase,
		Loading:   s.Loading,
		Error:     s.Err,
		Results:   make([]ResultView, 0, len(s.Results)),
		Info:      s.Info,
		Examples:  s.Examples,
	}
	for i, r := range s.Results {
		a := trust.Classify(r)
		rv := ResultView{
			Index:             i,
			Title:             r.Title,
			Snippet:           r.Snippet,
			Confidence:        r.Confidence,
			ConfidenceTier:    a.Confidence,
			RelevanceScore:    r.RelevanceScore,
			HallucinationRisk: r.HallucinationRisk,
			RiskTier:          a.Risk,
			Expandable:        r.Expandable(),
		}
		if rv.Expandable && s.IsExpanded(i) {
			rv.Expanded = true
			rv.ExpandedContent = r.ExpandedContent
		}
		v.Results = append(v.Results, rv)
	}
	return v
}
