package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"crossfund/internal/model"
)

// DefaultURLTemplate is the CoinGecko simple/price endpoint; %s is the feed id.
const DefaultURLTemplate = "https://api.coingecko.com/api/v3/simple/price?ids=%s&vs_currencies=usd"

const maxFeedBody = 1 << 20

var ErrFeedUnavailable = errors.New("price feed unavailable")

// Feed returns the USD price of one unit of a single currency.
type Feed interface {
	FetchUSD(ctx context.Context) (float64, error)
}

// FeedFunc adapts a function to the Feed interface.
type FeedFunc func(ctx context.Context) (float64, error)

func (f FeedFunc) FetchUSD(ctx context.Context) (float64, error) {
	return f(ctx)
}

// HTTPFeed reads a single numeric field from a JSON endpoint.
type HTTPFeed struct {
	url     string
	path    []string
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPFeed builds a feed for url extracting the dotted JSON path.
// A nil limiter disables pacing; a nil client uses a 10s timeout client.
func NewHTTPFeed(url, path string, client *http.Client, limiter *rate.Limiter) *HTTPFeed {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPFeed{
		url:     url,
		path:    strings.Split(path, "."),
		client:  client,
		limiter: limiter,
	}
}

// NewDefaultFeeds builds one HTTP feed per configured currency from a URL template.
func NewDefaultFeeds(urlTemplate string, client *http.Client, limiter *rate.Limiter) map[model.Currency]Feed {
	if urlTemplate == "" {
		urlTemplate = DefaultURLTemplate
	}
	feeds := make(map[model.Currency]Feed)
	for _, info := range model.Currencies() {
		url := fmt.Sprintf(urlTemplate, info.FeedID)
		feeds[info.Currency] = NewHTTPFeed(url, info.FeedID+".usd", client, limiter)
	}
	return feeds
}

func (f *HTTPFeed) FetchUSD(ctx context.Context) (float64, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return 0, fmt.Errorf("wait rate limiter: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrFeedUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: status %d from %s", ErrFeedUnavailable, resp.StatusCode, f.url)
	}

	dec := json.NewDecoder(io.LimitReader(resp.Body, maxFeedBody))
	dec.UseNumber()
	var body any
	if err := dec.Decode(&body); err != nil {
		return 0, fmt.Errorf("decode feed response: %w", err)
	}
	return extractNumber(body, f.path)
}

func extractNumber(v any, path []string) (float64, error) {
	for _, key := range path {
		obj, ok := v.(map[string]any)
		if !ok {
			return 0, fmt.Errorf("field %q: parent is not an object", key)
		}
		v, ok = obj[key]
		if !ok {
			return 0, fmt.Errorf("field %q not found", key)
		}
	}
	switch n := v.(type) {
	case json.Number:
		return n.Float64()
	case string:
		return strconv.ParseFloat(n, 64)
	default:
		return 0, fmt.Errorf("field %q is not numeric", strings.Join(path, "."))
	}
}
