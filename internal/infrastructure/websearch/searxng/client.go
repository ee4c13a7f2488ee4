package searxng

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mickgian/pratikoai-kb/internal/core/domain"
)

// Client queries a SearxNG-compatible JSON endpoint and shapes results as
// retrieval candidates. It is an optional, lowest-trust source; failures
// contribute an empty candidate list upstream.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *Client) Search(ctx context.Context, query string, limit int) ([]domain.ScoredChunk, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("language", "it")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create web search request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("web search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("web search status: %s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}

	var searchResp struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Content string `json:"content"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decode web search response: %w", err)
	}

	out := make([]domain.ScoredChunk, 0, limit)
	for i, r := range searchResp.Results {
		if i >= limit {
			break
		}
		if strings.TrimSpace(r.Content) == "" {
			continue
		}
		out = append(out, domain.ScoredChunk{
			ChunkID:  "web:" + r.URL,
			ItemID:   "web:" + r.URL,
			Position: i,
			Text:     r.Content,
			Heading:  r.Title,
			SourceID: "web",
			DocType:  domain.TypeUnknown,
			Score:    1.0 / float64(i+1),
		})
	}
	return out, nil
}
