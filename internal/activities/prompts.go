package activities

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/meridianlabs-ai/deepresearch/internal/research"
)

const plannerSystem = `You are a research planner. Analyze the research query and break it into manageable subtasks.

Available tools:
- web_search: web search for current information
- academic_search: scientific papers and academic research
- encyclopedia_search: background knowledge and definitions
- calculator: arithmetic expressions (put the exact expression in the subtask description)
- code_executor: short Python snippets for demonstrations (put the exact code in the subtask description)

Guidelines:
1. Break complex topics into 3-5 subtasks
2. For each subtask, list only the tools that would genuinely help
3. Suggest 5-8 sections for the final report
4. Keep subtask descriptions specific enough to be used directly as search queries`

const plannerSchemaHint = `{
  "query_analysis": "your understanding of what the user wants to learn",
  "complexity": "simple | moderate | complex",
  "subtasks": [
    {"id": 1, "description": "what to research", "tools_needed": ["web_search", "encyclopedia_search"]}
  ],
  "expected_sections": ["Section 1", "Section 2"]
}`

func plannerPrompt(query string) string {
	return "Research Query: " + query
}

const executorSystem = `Summarize the research evidence into 2-3 detailed paragraphs.
Be specific and informative. Include facts, definitions, and key insights.
If tool failures are listed, work with the evidence that remains and note gaps honestly.`

const executorSchemaHint = `{"summary": "your detailed summary here"}`

func executorPrompt(in ExecuteInput, sources []research.Source, failures []research.ToolFailure) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Overall query: %s\n", in.Query)
	fmt.Fprintf(&b, "Subtask: %s\n\nEvidence:\n", in.Subtask.Description)

	if len(sources) == 0 {
		fmt.Fprintf(&b, "(no evidence retrieved)\n")
	}
	for i, s := range sources {
		if i >= 8 {
			break
		}
		snippet := research.TruncateText(s.Snippet, 500)
		fmt.Fprintf(&b, "[%s]: %s\n", s.Title, snippet)
	}
	if len(failures) > 0 {
		b.WriteString("\nTool failures during research:\n")
		for _, f := range failures {
			fmt.Fprintf(&b, "- %s: %s\n", f.Tool, f.Error)
		}
	}
	return b.String()
}

const verifierSystem = `You are a research verifier. Review the findings for completeness and accuracy against the original query and plan.

Evaluation criteria:
1. COMPLETENESS: do the findings cover all aspects of the query?
2. ACCURACY: are the findings factually sound and well-sourced?
3. DEPTH: is there enough detail for a comprehensive report?
4. CITATIONS: are there enough sources to support claims?

Report confidence as an integer from 0 to 100. List missing aspects only when the findings genuinely lack them. Be reasonably lenient: if the core aspects are covered, score accordingly.`

const verifierSchemaHint = `{
  "confidence": 0,
  "coverage_notes": "why you scored it this way",
  "missing_aspects": ["aspect that is missing"]
}`

func verifierPrompt(in VerifyInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Original Query: %s\n\nResearch Plan:\n", in.Query)
	if planJSON, err := json.MarshalIndent(in.Plan, "", "  "); err == nil {
		b.Write(planJSON)
	}

	sourceCount := 0
	b.WriteString("\n\nCollected Findings:")
	for _, f := range in.Findings {
		fmt.Fprintf(&b, "\n\nSubtask %d:\n%s\nSources: %d", f.SubtaskID, f.Summary, len(f.Sources))
		sourceCount += len(f.Sources)
		for _, te := range f.ToolErrors {
			fmt.Fprintf(&b, "\nTool failure: %s: %s", te.Tool, te.Error)
		}
	}
	fmt.Fprintf(&b, "\n\nTotal sources: %d\n\nEvaluate this research:", sourceCount)
	return b.String()
}

const synthesizerSystem = `You are a research report writer. Create a comprehensive report.

IMPORTANT:
- Create 5 to 8 sections with descriptive headings
- Each section should have 2-3 paragraphs of content
- Include inline citations like [1], [2] referring to the numbered sources
- Make content detailed and educational`

const synthesizerSchemaHint = `{
  "title": "Clear Title About the Topic",
  "executive_summary": "2-3 paragraph summary of the research findings",
  "sections": [
    {"heading": "Introduction", "content": "..."},
    {"heading": "Core Concepts", "content": "..."}
  ]
}`

const synthesizerRetrySystem = `Create a JSON report with title, executive_summary, and a sections array of at least 5 entries. Each section has heading and content.`

func synthesizerPrompt(in SynthesizeInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n\nResearch Findings:\n", in.Query)

	for _, f := range in.Findings {
		if strings.TrimSpace(f.Summary) == "" {
			continue
		}
		summary := research.TruncateText(f.Summary, 1500)
		fmt.Fprintf(&b, "\n%s\n", summary)
	}

	b.WriteString("\nAvailable Sources:\n")
	idx := 0
	for _, f := range in.Findings {
		for _, s := range f.Sources {
			if idx >= 15 {
				break
			}
			idx++
			fmt.Fprintf(&b, "[%d] %s - %s\n", idx, s.Title, s.URL)
		}
	}
	if idx == 0 {
		b.WriteString("General knowledge sources\n")
	}

	b.WriteString("\nGenerate the research report JSON:")
	return b.String()
}
