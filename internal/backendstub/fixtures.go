package backendstub

import "github.com/altiplano/parasearch/internal/models"

// SampleResults returns a small answer set covering every trust tier, with and without
// expanded content.
func SampleResults() []models.SearchResult {
	return []models.SearchResult{
		{
			Title:             "Quantum Mechanics",
			Snippet:           "The branch of physics describing nature at the scale of atoms and subatomic particles.",
			Confidence:        92,
			RelevanceScore:    9,
			ExpandedContent:   ptr("Quantum mechanics replaces definite trajectories with wave functions whose squared amplitude gives outcome probabilities."),
			HallucinationRisk: "Low",
		},
		{
			Title:             "Wave-Particle Duality",
			Snippet:           "Quantum objects show both wave-like and particle-like behavior depending on the experiment.",
			Confidence:        74,
			RelevanceScore:    7,
			HallucinationRisk: "medium",
		},
		{
			Title:             "Interpretations of Quantum Theory",
			Snippet:           "Copenhagen, many-worlds and pilot-wave accounts differ on what measurement means.",
			Confidence:        55,
			RelevanceScore:    5,
			ExpandedContent:   ptr("No experiment to date distinguishes the mainstream interpretations; the debate is largely philosophical."),
			HallucinationRisk: "HIGH",
		},
	}
}

func ptr(s string) *string { return &s }
