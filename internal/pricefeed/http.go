package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPSource fetches the reference price from a JSON endpoint returning
// {"price": <number>}. It backs up the on-chain oracle when RPC reads fail.
type HTTPSource struct {
	url    string
	client *http.Client
}

// NewHTTPSource creates an HTTP price source with a bounded request timeout.
func NewHTTPSource(url string) *HTTPSource {
	return &HTTPSource{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *HTTPSource) Name() string {
	return "http"
}

func (s *HTTPSource) FetchPrice(ctx context.Context) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return 0, fmt.Errorf("pricefeed: build price request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("pricefeed: fetch %s: %w", s.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("pricefeed: %s returned status %d", s.url, resp.StatusCode)
	}

	var body struct {
		Price float64 `json:"price"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("pricefeed: decode price response: %w", err)
	}
	if body.Price <= 0 {
		return 0, fmt.Errorf("pricefeed: %s reported non-positive price %v", s.url, body.Price)
	}
	return body.Price, nil
}
