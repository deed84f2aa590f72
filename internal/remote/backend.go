package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"crossfund/internal/model"
)

// ErrRejected marks a backend response that retrying cannot fix.
var ErrRejected = errors.New("rejected by backend")

// Backend is the persistence API behind the ledger.
type Backend interface {
	Create(ctx context.Context, rec model.Contribution) error
	List(ctx context.Context, projectID string) ([]model.Contribution, error)
}

// HTTPBackend talks to the CRUD API over REST.
type HTTPBackend struct {
	baseURL string
	client  *http.Client
}

func NewHTTPBackend(baseURL string, client *http.Client) *HTTPBackend {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPBackend{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type listResponse struct {
	Contributions []model.Contribution `json:"contributions"`
}

// Create posts a record. A 409 means the backend already holds it.
func (b *HTTPBackend) Create(ctx context.Context, rec model.Contribution) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal contribution: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/contributions", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("post contribution: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300, resp.StatusCode == http.StatusConflict:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		return fmt.Errorf("post contribution: status %d: %w", resp.StatusCode, ErrRejected)
	default:
		return fmt.Errorf("post contribution: status %d", resp.StatusCode)
	}
}

// List returns the backend's records for a project.
func (b *HTTPBackend) List(ctx context.Context, projectID string) ([]model.Contribution, error) {
	endpoint := b.baseURL + "/projects/" + url.PathEscape(projectID) + "/contributions"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get contributions: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get contributions: status %d", resp.StatusCode)
	}

	var out listResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode contributions: %w", err)
	}
	return out.Contributions, nil
}

// NopBackend accepts every write and knows no records. It backs ledgers
// that run without persistence.
type NopBackend struct{}

func (NopBackend) Create(context.Context, model.Contribution) error { return nil }

func (NopBackend) List(context.Context, string) ([]model.Contribution, error) {
	return []model.Contribution{}, nil
}
