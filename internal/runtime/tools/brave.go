package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// BraveSearch searches the web via Brave Search API.
type BraveSearch struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// NewBraveSearch creates a new Brave Search tool.
func NewBraveSearch(apiKey string) *BraveSearch {
	return &BraveSearch{
		apiKey:  apiKey,
		baseURL: "https://api.search.brave.com/res/v1/web/search",
		client:  newHTTPClient(15 * time.Second),
	}
}

func (b *BraveSearch) Name() string        { return "brave_search" }
func (b *BraveSearch) Description() string { return "Search the web using Brave Search" }
func (b *BraveSearch) Parameters() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"query": {"type": "string", "description": "Search query"},
			"count": {"type": "integer", "description": "Number of results (default: 5, max: 20)"}
		},
		"required": ["query"]
	}`)
}

type braveResponse struct {
	Web braveWeb `json:"web"`
}

type braveWeb struct {
	Results []braveResult `json:"results"`
}

type braveResult struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

func (b *BraveSearch) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var params struct {
		Query string `json:"query"`
		Count int    `json:"count"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("parse args: %w", err)
	}
	if params.Query == "" {
		return "", fmt.Errorf("query is required")
	}
	params.Count = min(max(params.Count, 0), 20)
	if params.Count == 0 {
		params.Count = 5
	}

	q := url.Values{}
	q.Set("q", params.Query)
	q.Set("count", strconv.Itoa(params.Count))

	header := http.Header{}
	header.Set("Accept", "application/json")
	header.Set("X-Subscription-Token", b.apiKey)

	var result braveResponse
	if err := getJSON(ctx, b.client, b.baseURL+"?"+q.Encode(), header, &result); err != nil {
		return "", fmt.Errorf("brave search: %w", err)
	}

	if len(result.Web.Results) == 0 {
		return "No results found.", nil
	}

	var sb strings.Builder
	for i, r := range result.Web.Results {
		fmt.Fprintf(&sb, "%d. %s\n   %s\n   %s\n\n", i+1, r.Title, r.URL, r.Description)
	}
	return sb.String(), nil
}
