package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"

	"github.com/meridianlabs-ai/deepresearch/internal/research"
)

const defaultWikiBaseURL = "https://en.wikipedia.org/w/api.php"

// wikipediaTool backs encyclopedia_search with the MediaWiki API.
type wikipediaTool struct {
	baseURL    string
	maxResults int
	httpc      *http.Client
}

func newWikipediaTool(baseURL string, maxResults int) *wikipediaTool {
	if baseURL == "" {
		baseURL = defaultWikiBaseURL
	}
	if maxResults <= 0 {
		maxResults = 2
	}
	return &wikipediaTool{baseURL: baseURL, maxResults: maxResults, httpc: &http.Client{}}
}

func (t *wikipediaTool) ID() string { return ToolEncyclopedia }

type wikiResponse struct {
	Query struct {
		Pages map[string]struct {
			Title   string `json:"title"`
			Extract string `json:"extract"`
			FullURL string `json:"fullurl"`
			Index   int    `json:"index"`
		} `json:"pages"`
	} `json:"query"`
}

func (t *wikipediaTool) Search(ctx context.Context, query string) ([]research.Source, error) {
	params := url.Values{}
	params.Set("action", "query")
	params.Set("format", "json")
	params.Set("generator", "search")
	params.Set("gsrsearch", query)
	params.Set("gsrlimit", fmt.Sprint(t.maxResults))
	params.Set("prop", "extracts|info")
	params.Set("exintro", "1")
	params.Set("explaintext", "1")
	params.Set("inprop", "url")

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
		return nil, upstreamStatusError(ToolEncyclopedia, resp.StatusCode)
	}

	var out wikiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode wikipedia response: %w", err)
	}

	type page struct {
		index  int
		source research.Source
	}
	pages := make([]page, 0, len(out.Query.Pages))
	for _, p := range out.Query.Pages {
		snippet := research.TruncateText(p.Extract, 1000)
		pages = append(pages, page{
			index:  p.Index,
			source: research.Source{Title: p.Title, URL: p.FullURL, Snippet: snippet},
		})
	}
	// The pages map is unordered; the index field carries search rank.
	sort.Slice(pages, func(i, j int) bool { return pages[i].index < pages[j].index })

	sources := make([]research.Source, 0, len(pages))
	for _, p := range pages {
		sources = append(sources, p.source)
	}
	return sources, nil
}
