// Package cli renders search session state for terminals and other consumers.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/altiplano/parasearch/internal/session"
	"github.com/altiplano/parasearch/internal/trust"
	"github.com/altiplano/parasearch/pkg/utils"
)

// OutputFormat is the format for session output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact is one tab-separated result per line.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
	// OutputXLSX is a spreadsheet workbook.
	OutputXLSX OutputFormat = "xlsx"
)

// ParseOutputFormat validates a user-supplied format name.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case OutputText, OutputCompact, OutputJSON, OutputXLSX:
		return f, nil
	case "":
		return OutputText, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text, compact, json, or xlsx", s)
	}
}

// RenderOptions tunes text output.
type RenderOptions struct {
	// Color enables tier colors when the writer supports them.
	Color bool
	// SnippetWidth truncates snippets to this many runes; 0 disables truncation.
	SnippetWidth int
	// BackendURL is named in the hint shown with errors.
	BackendURL string
}

// WriteSession writes the session state to w in the given format.
func WriteSession(w io.Writer, s session.State, format OutputFormat, opts RenderOptions) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(NewSessionView(s))
	case OutputCompact:
		writeCompact(w, NewSessionView(s))
		return nil
	case OutputXLSX:
		return writeXLSX(w, NewSessionView(s))
	default:
		writeText(w, NewSessionView(s), newStyles(w, opts.Color), opts)
		return nil
	}
}

type styles struct {
	heading lipgloss.Style
	title   lipgloss.Style
	dim     lipgloss.Style
	errText lipgloss.Style
	warn    lipgloss.Style
	action  lipgloss.Style
	tiers   map[trust.Tier]lipgloss.Style
}

func newStyles(w io.Writer, color bool) styles {
	r := lipgloss.NewRenderer(w)
	if !color {
		plain := r.NewStyle()
		return styles{
			heading: plain, title: plain, dim: plain, errText: plain, warn: plain, action: plain,
			tiers: map[trust.Tier]lipgloss.Style{},
		}
	}
	return styles{
		heading: r.NewStyle().Bold(true).Foreground(lipgloss.Color("#5b3a29")),
		title:   r.NewStyle().Bold(true),
		dim:     r.NewStyle().Foreground(lipgloss.Color("#6e7681")),
		errText: r.NewStyle().Foreground(lipgloss.Color("#b91c1c")),
		warn:    r.NewStyle().Foreground(lipgloss.Color("#ca8a04")),
		action:  r.NewStyle().Foreground(lipgloss.Color("#ea580c")),
		tiers: map[trust.Tier]lipgloss.Style{
			trust.TierHigh:    r.NewStyle().Foreground(lipgloss.Color("#16a34a")),
			trust.TierMedium:  r.NewStyle().Foreground(lipgloss.Color("#ca8a04")),
			trust.TierLow:     r.NewStyle().Foreground(lipgloss.Color("#dc2626")),
			trust.TierUnknown: r.NewStyle().Foreground(lipgloss.Color("#4b5563")),
		},
	}
}

// tier returns the style for a confidence tier.
func (st styles) tier(t trust.Tier) lipgloss.Style {
	if s, ok := st.tiers[t]; ok {
		return s
	}
	return lipgloss.NewStyle()
}

// risk returns the style for a risk tier. Risk colors run opposite to confidence:
// low risk is good.
func (st styles) risk(t trust.Tier) lipgloss.Style {
	switch t {
	case trust.TierLow:
		return st.tier(trust.TierHigh)
	case trust.TierHigh:
		return st.tier(trust.TierLow)
	default:
		return st.tier(t)
	}
}

const separator = "─────────────────────────────────────────────────────────"

func writeText(w io.Writer, v SessionView, st styles, opts RenderOptions) {
	if v.Loading {
		fmt.Fprintln(w, st.dim.Render("Searching..."))
		return
	}
	if v.Error != nil {
		fmt.Fprintln(w, st.errText.Render(v.Error.Message))
		backend := opts.BackendURL
		if backend == "" {
			backend = "localhost:8000"
		}
		fmt.Fprintln(w, st.dim.Render("Make sure the ParaSearch backend is running on "+backend))
		return
	}
	if v.Phase == session.PhaseSuccess && len(v.Results) == 0 {
		fmt.Fprintf(w, "No results for %q\n", v.Submitted)
		return
	}
	if len(v.Results) == 0 {
		return
	}

	fmt.Fprintln(w, st.heading.Render(fmt.Sprintf("Search Results (%d)", len(v.Results))))
	if v.Info != nil && v.Info.Warning != "" {
		fmt.Fprintln(w, st.warn.Render("Warning: "+v.Info.Warning))
	}
	for _, r := range v.Results {
		writeOneResult(w, r, st, opts)
	}
	fmt.Fprintln(w, st.dim.Render(separator))
	if v.Info != nil {
		fmt.Fprintln(w, st.dim.Render(fmt.Sprintf("Model: %s | %.2fs | knowledge cutoff %s",
			v.Info.ModelUsed, v.Info.ProcessingTime, v.Info.KnowledgeCutoff)))
	}
}

func writeOneResult(w io.Writer, r ResultView, st styles, opts RenderOptions) {
	risk := r.HallucinationRisk
	if risk == "" {
		risk = string(trust.TierUnknown)
	}
	fmt.Fprintln(w, st.dim.Render(separator))
	fmt.Fprintf(w, "[%d] %s\n", r.Index+1, st.title.Render(r.Title))
	fmt.Fprintf(w, "    %s | %s | Score: %g/10\n",
		st.tier(r.ConfidenceTier).Render(fmt.Sprintf("%g%% confidence", r.Confidence)),
		st.risk(r.RiskTier).Render(risk+" risk"),
		r.RelevanceScore)
	fmt.Fprintf(w, "\n    %s\n", utils.Truncate(r.Snippet, opts.SnippetWidth))
	if !r.Expandable {
		fmt.Fprintln(w)
		return
	}
	if r.Expanded && r.ExpandedContent != nil {
		fmt.Fprintf(w, "\n    %s\n", *r.ExpandedContent)
		fmt.Fprintln(w, st.action.Render(fmt.Sprintf("    [-] Show less (:toggle %d)", r.Index+1)))
	} else {
		fmt.Fprintln(w, st.action.Render(fmt.Sprintf("    [+] Show more (:toggle %d)", r.Index+1)))
	}
	fmt.Fprintln(w)
}

func writeCompact(w io.Writer, v SessionView) {
	for _, r := range v.Results {
		fmt.Fprintf(w, "%d\t%g%%\t%s\t%g/10\t%s\n", r.Index, r.Confidence, r.RiskTier, r.RelevanceScore, TruncateWords(r.Title, compactTitleWords))
	}
	if v.Error != nil {
		fmt.Fprintf(w, "error\t%s\t%s\n", v.Error.Kind, v.Error.Message)
	}
}
