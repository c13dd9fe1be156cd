package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/meridianlabs-ai/deepresearch/internal/research"
)

const defaultTavilyBaseURL = "https://api.tavily.com"

// tavilyTool backs web_search with the Tavily search API.
type tavilyTool struct {
	baseURL    string
	apiKey     string
	maxResults int
	httpc      *http.Client
}

func newTavilyTool(baseURL, apiKey string, maxResults int) *tavilyTool {
	if baseURL == "" {
		baseURL = defaultTavilyBaseURL
	}
	if maxResults <= 0 {
		maxResults = 5
	}
	return &tavilyTool{
		baseURL:    baseURL,
		apiKey:     apiKey,
		maxResults: maxResults,
		httpc:      &http.Client{},
	}
}

func (t *tavilyTool) ID() string { return ToolWebSearch }

type tavilyRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	MaxResults    int    `json:"max_results"`
	IncludeAnswer bool   `json:"include_answer"`
}

type tavilyResponse struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

func (t *tavilyTool) Search(ctx context.Context, query string) ([]research.Source, error) {
	body, err := json.Marshal(tavilyRequest{
		APIKey:        t.apiKey,
		Query:         query,
		MaxResults:    t.maxResults,
		IncludeAnswer: true,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpc.Do(req)
	if err != nil {
		return nil, markTransient(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, upstreamStatusError(ToolWebSearch, resp.StatusCode)
	}

	var out tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode tavily response: %w", err)
	}

	sources := make([]research.Source, 0, len(out.Results)+1)
	if out.Answer != "" {
		// The aggregate answer has no URL of its own. It is kept as raw
		// evidence for synthesis but dropped from finding citations.
		sources = append(sources, research.Source{Title: "Search summary", Snippet: out.Answer})
	}
	for _, r := range out.Results {
		sources = append(sources, research.Source{Title: r.Title, URL: r.URL, Snippet: r.Content})
	}
	return sources, nil
}
