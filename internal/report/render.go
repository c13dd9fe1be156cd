package report

import (
	"fmt"
	"strings"

	"github.com/meridianlabs-ai/deepresearch/internal/research"
)

// Render produces the plain-text document form of a report.
func Render(r *research.Report) string {
	var b strings.Builder

	b.WriteString(r.Title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", len(r.Title)))
	b.WriteString("\n\n")

	if r.ExecutiveSummary != "" {
		b.WriteString("Executive Summary\n-----------------\n")
		b.WriteString(r.ExecutiveSummary)
		b.WriteString("\n\n")
	}

	for i, s := range r.Sections {
		fmt.Fprintf(&b, "%d. %s\n", i+1, s.Heading)
		b.WriteString(s.Content)
		b.WriteString("\n\n")
	}

	if len(r.References) > 0 {
		b.WriteString("References\n----------\n")
		for i, ref := range r.References {
			title := ref.Title
			if title == "" {
				title = ref.URL
			}
			fmt.Fprintf(&b, "[%d] %s\n    %s\n", i+1, title, ref.URL)
		}
	}

	fmt.Fprintf(&b, "\nGenerated at %s\n", r.GeneratedAt.UTC().Format("2006-01-02 15:04:05 UTC"))
	return b.String()
}
