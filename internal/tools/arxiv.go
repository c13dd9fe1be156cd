package tools

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/meridianlabs-ai/deepresearch/internal/research"
)

const defaultArxivBaseURL = "http://export.arxiv.org/api/query"

// arxivTool backs academic_search with the arXiv Atom API.
type arxivTool struct {
	baseURL    string
	maxResults int
	httpc      *http.Client
}

func newArxivTool(baseURL string, maxResults int) *arxivTool {
	if baseURL == "" {
		baseURL = defaultArxivBaseURL
	}
	if maxResults <= 0 {
		maxResults = 3
	}
	return &arxivTool{baseURL: baseURL, maxResults: maxResults, httpc: &http.Client{}}
}

func (t *arxivTool) ID() string { return ToolAcademic }

type arxivFeed struct {
	Entries []struct {
		ID      string `xml:"id"`
		Title   string `xml:"title"`
		Summary string `xml:"summary"`
		Authors []struct {
			Name string `xml:"name"`
		} `xml:"author"`
	} `xml:"entry"`
}

func (t *arxivTool) Search(ctx context.Context, query string) ([]research.Source, error) {
	params := url.Values{}
	params.Set("search_query", fmt.Sprintf("all:%q", query))
	params.Set("max_results", fmt.Sprint(t.maxResults))
	params.Set("sortBy", "relevance")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.httpc.Do(req)
	if err != nil {
		return nil, markTransient(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, upstreamStatusError(ToolAcademic, resp.StatusCode)
	}

	var feed arxivFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("decode arxiv feed: %w", err)
	}

	sources := make([]research.Source, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		title := strings.Join(strings.Fields(e.Title), " ")
		snippet := strings.Join(strings.Fields(e.Summary), " ")
		if len(e.Authors) > 0 {
			names := make([]string, 0, len(e.Authors))
			for _, a := range e.Authors {
				names = append(names, a.Name)
			}
			snippet = "Authors: " + strings.Join(names, ", ") + ". " + snippet
		}
		sources = append(sources, research.Source{Title: title, URL: e.ID, Snippet: snippet})
	}
	return sources, nil
}
