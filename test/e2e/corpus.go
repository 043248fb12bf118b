// Package e2e provides end-to-end tests that drive the session server against a canned backend.
package e2e

import (
	"fmt"

	"github.com/altiplano/parasearch/internal/models"
)

// QueryCase is a query together with the answer set the backend returns for it.
type QueryCase struct {
	Query   string
	Results []models.SearchResult
	// Expandable lists the indices of results carrying expanded content.
	Expandable []int
}

// Corpus holds the query cases served by the backend in end-to-end runs.
type Corpus struct {
	Cases []QueryCase
}

var topics = []struct {
	query string
	title string
	risk  string
}{
	{"What is quantum mechanics?", "Quantum Mechanics", "low"},
	{"Who was Leonardo da Vinci?", "Leonardo da Vinci", "Low"},
	{"Explain photosynthesis", "Photosynthesis", "medium"},
	{"History of ancient Rome", "Ancient Rome", "MEDIUM"},
	{"How do black holes form?", "Black Holes", "high"},
	{"What causes the seasons?", "Seasons", "unrated"},
	{"Who wrote the Odyssey?", "The Odyssey", ""},
	{"How does the immune system work?", "Immune System", "High"},
}

// BuildCorpus returns one case per topic. Result i of each case has confidence
// 95 - 15*i, so every answer set spans the high, medium and low tiers, and every
// other result carries expanded content.
func BuildCorpus() *Corpus {
	c := &Corpus{}
	for n, tp := range topics {
		qc := QueryCase{Query: tp.query}
		count := 3 + n%3
		for i := 0; i < count; i++ {
			r := models.SearchResult{
				Title:             fmt.Sprintf("%s, part %d", tp.title, i+1),
				Snippet:           fmt.Sprintf("Summary %d about %s.", i+1, tp.title),
				Confidence:        float64(95 - 15*i),
				RelevanceScore:    float64(10 - i),
				HallucinationRisk: tp.risk,
			}
			if i%2 == 0 {
				content := fmt.Sprintf("Extended discussion %d of %s.", i+1, tp.title)
				r.ExpandedContent = &content
				qc.Expandable = append(qc.Expandable, i)
			}
			qc.Results = append(qc.Results, r)
		}
		c.Cases = append(c.Cases, qc)
	}
	return c
}
