package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/dshills/newsdigest-mcp/internal/composer"
	"github.com/dshills/newsdigest-mcp/pkg/types"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D56F4"))
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#04B575"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#767676"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB86C"))
	boxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

func renderResult(res *composer.Result, verbose bool) string {
	var b strings.Builder
	if res.Failed() {
		b.WriteString(errorStyle.Render("Composition failed"))
		b.WriteString("\n")
		if res.Error != nil {
			fmt.Fprintf(&b, "%s\n", res.Error.Error)
			b.WriteString(dimStyle.Render(fmt.Sprintf("session %s at %s", res.Error.SessionID, res.Error.Timestamp.Format("2006-01-02 15:04:05"))))
			b.WriteString("\n")
		}
	} else {
		b.WriteString(renderReport(res.Report))
	}

	if verbose {
		if res.Ingest != nil {
			s := res.Ingest
			b.WriteString(headingStyle.Render("Ingestion"))
			fmt.Fprintf(&b, "\n  articles %d indexed, %d skipped of %d; chunks %d created, %d failed (%s)\n",
				s.ArticlesIndexed, s.ArticlesSkipped, s.ArticlesTotal, s.ChunksCreated, s.ChunksFailed, s.Duration.Round(1e6))
		}
		if len(res.Transitions) > 0 {
			states := make([]string, len(res.Transitions))
			for i, t := range res.Transitions {
				states[i] = string(t.State)
			}
			b.WriteString(dimStyle.Render("states: " + strings.Join(states, " > ")))
			b.WriteString("\n")
		}
	}
	for _, w := range res.Warnings {
		b.WriteString(warnStyle.Render("warning: " + w))
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderReport(r *types.Report) string {
	if r == nil {
		return ""
	}
	var b strings.Builder
	header := fmt.Sprintf("%s\n%s", titleStyle.Render(r.Company+" ("+r.Industry+")"),
		dimStyle.Render("session "+r.SessionID+" at "+r.Timestamp.Format("2006-01-02 15:04:05")))
	b.WriteString(boxStyle.Render(header))
	b.WriteString("\n")

	for _, fs := range r.NewsSummary {
		b.WriteString("\n")
		b.WriteString(headingStyle.Render(fs.FocusPoint))
		b.WriteString("\n")
		switch {
		case fs.Error != "":
			b.WriteString(errorStyle.Render("  retrieval failed: " + fs.Error))
			b.WriteString("\n")
		case len(fs.Articles) == 0:
			b.WriteString(dimStyle.Render("  no articles"))
			b.WriteString("\n")
		}
		for i, a := range fs.Articles {
			fmt.Fprintf(&b, "  %d. %s %s\n", i+1, a.Title, dimStyle.Render(fmt.Sprintf("[%.2f]", a.RelevanceScore)))
			fmt.Fprintf(&b, "     %s\n", dimStyle.Render(a.URL))
			if a.Snippet != "" {
				fmt.Fprintf(&b, "     %s\n", a.Snippet)
			}
		}
	}
	return b.String()
}

func renderSessions(sessions ...types.Session) string {
	var b strings.Builder
	for _, s := range sessions {
		fmt.Fprintf(&b, "%s  %s  %s (%s)\n",
			titleStyle.Render(s.SessionID),
			dimStyle.Render(s.Timestamp.Format("2006-01-02 15:04:05")),
			s.Company, s.Industry)
		if len(s.FocusPoints) > 0 {
			fmt.Fprintf(&b, "  focus: %s\n", strings.Join(s.FocusPoints, ", "))
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
