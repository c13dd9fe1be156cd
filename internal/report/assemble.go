// Package report normalizes raw synthesizer output into the final research
// report: section counts are clamped into the publishable range and the
// reference list is deduplicated.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/meridianlabs-ai/deepresearch/internal/research"
)

const (
	MinSections = 5
	MaxSections = 8
)

// Assemble produces the final report from synthesizer output and the run's
// findings. Section count is forced into [MinSections, MaxSections]:
// undershoot is padded from finding summaries, overshoot merges the smallest
// adjacent pair until within range. References are the union of finding
// sources, deduplicated by URL with the first occurrence winning.
func Assemble(title, summary string, sections []research.ReportSection, findings []research.Finding, now time.Time) *research.Report {
	sections = dropEmptySections(sections)
	sections = padSections(sections, findings)
	sections = clampSections(sections)

	return &research.Report{
		Title:            title,
		ExecutiveSummary: summary,
		Sections:         sections,
		References:       DedupeReferences(findings),
		GeneratedAt:      now,
	}
}

func dropEmptySections(in []research.ReportSection) []research.ReportSection {
	out := make([]research.ReportSection, 0, len(in))
	for _, s := range in {
		if strings.TrimSpace(s.Content) == "" {
			continue
		}
		if strings.TrimSpace(s.Heading) == "" {
			s.Heading = "Details"
		}
		out = append(out, s)
	}
	return out
}

// padSections deterministically extends an undersized report using finding
// summaries, then generic closing sections if findings run out.
func padSections(sections []research.ReportSection, findings []research.Finding) []research.ReportSection {
	for _, f := range findings {
		if len(sections) >= MinSections {
			return sections
		}
		if strings.TrimSpace(f.Summary) == "" {
			continue
		}
		heading := fmt.Sprintf("Supporting Detail %d", f.SubtaskID)
		if sectionExists(sections, f.Summary) {
			continue
		}
		sections = append(sections, research.ReportSection{Heading: heading, Content: f.Summary})
	}
	fillers := []research.ReportSection{
		{Heading: "Methodology", Content: "Findings were gathered from web, academic, and encyclopedia sources, then cross-checked for coverage before synthesis."},
		{Heading: "Limitations", Content: "Coverage reflects the sources retrieved during this run; aspects without retrievable evidence may be underrepresented."},
		{Heading: "Conclusion", Content: "The sections above summarize the evidence collected for this query."},
	}
	for _, f := range fillers {
		if len(sections) >= MinSections {
			break
		}
		sections = append(sections, f)
	}
	return sections
}

func sectionExists(sections []research.ReportSection, content string) bool {
	for _, s := range sections {
		if s.Content == content {
			return true
		}
	}
	return false
}

// clampSections merges the adjacent pair with the smallest combined content
// until the section count fits, preserving document order.
func clampSections(sections []research.ReportSection) []research.ReportSection {
	for len(sections) > MaxSections {
		best := 0
		bestLen := -1
		for i := 0; i+1 < len(sections); i++ {
			l := len(sections[i].Content) + len(sections[i+1].Content)
			if bestLen == -1 || l < bestLen {
				best, bestLen = i, l
			}
		}
		merged := research.ReportSection{
			Heading: sections[best].Heading,
			Content: sections[best].Content + "\n\n" + sections[best+1].Content,
		}
		sections = append(sections[:best], append([]research.ReportSection{merged}, sections[best+2:]...)...)
	}
	return sections
}

// DedupeReferences collects every finding source with a distinct URL, in
// finding order; the first source seen for a URL wins.
func DedupeReferences(findings []research.Finding) []research.Source {
	seen := make(map[string]bool)
	var refs []research.Source
	for _, f := range findings {
		for _, s := range f.Sources {
			if s.URL == "" || seen[s.URL] {
				continue
			}
			seen[s.URL] = true
			refs = append(refs, s)
		}
	}
	return refs
}

// Fallback builds a deterministic report directly from findings when the
// synthesizer is unavailable. The run still completes with a citable artifact.
func Fallback(query string, findings []research.Finding, now time.Time) *research.Report {
	sections := make([]research.ReportSection, 0, len(findings))
	for _, f := range findings {
		if strings.TrimSpace(f.Summary) == "" {
			continue
		}
		sections = append(sections, research.ReportSection{
			Heading: fmt.Sprintf("Finding %d", f.SubtaskID),
			Content: f.Summary,
		})
	}
	summary := fmt.Sprintf("Automated summary of %d research findings for: %s", len(sections), query)
	return Assemble("Research Report: "+query, summary, sections, findings, now)
}
