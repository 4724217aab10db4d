package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Config holds the configuration for connecting to the Quantum Forge platform.
type Config struct {
	APIURL        string // Base URL, e.g. "http://localhost:8080"
	SessionToken  string // Optional session token ("qft_...") for authenticated calls
	WalletAddress string // Caller's wallet address, used as the default reviewer
}

// PlatformClient is a pure HTTP client for the Quantum Forge platform API.
type PlatformClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewPlatformClient creates a new client for the Quantum Forge platform.
func NewPlatformClient(cfg Config) *PlatformClient {
	return &PlatformClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiError represents an error response from the platform.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest makes an HTTP request to the platform and returns the response body.
func (c *PlatformClient) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if c.cfg.SessionToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.SessionToken)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// SearchTrader looks up a trader profile by wallet address.
func (c *PlatformClient) SearchTrader(ctx context.Context, walletAddress string) (json.RawMessage, error) {
	q := url.Values{}
	q.Set("walletAddress", walletAddress)
	return c.doRequest(ctx, http.MethodGet, "/traders/search", q, nil)
}

// GetTrader returns a trader profile by address.
func (c *PlatformClient) GetTrader(ctx context.Context, address string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/traders/"+address, nil, nil)
}

// ListTraders returns traders ordered by reputation.
func (c *PlatformClient) ListTraders(ctx context.Context, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.doRequest(ctx, http.MethodGet, "/traders", q, nil)
}

// ListReviews returns the review history for a subject, newest first.
func (c *PlatformClient) ListReviews(ctx context.Context, subjectID string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/reviews/"+subjectID, nil, nil)
}

// SubmitReview posts a review for a trader.
func (c *PlatformClient) SubmitReview(ctx context.Context, subjectID, reviewerID string, rating int, comment string) (json.RawMessage, error) {
	body := map[string]any{
		"subjectId":  subjectID,
		"reviewerId": reviewerID,
		"rating":     rating,
		"comment":    comment,
	}
	return c.doRequest(ctx, http.MethodPost, "/reviews", nil, body)
}
