package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/glowcheck/backend/internal/domain/enums"
)

var ErrNotConfigured = errors.New("analysis endpoint is not configured")

const maxResponseSize = 4 << 20

type Request struct {
	AttemptID string            `json:"attempt_id"`
	UserID    string            `json:"user_id"`
	Feature   enums.FeatureType `json:"feature"`
	ImageURL  string            `json:"image_url"`
}

// Client calls the external vision API. The result body is passed through untouched.
type Client struct {
	http     *http.Client
	endpoint string
	apiKey   string
}

func NewClient(httpClient *http.Client, endpoint, apiKey string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		http:     httpClient,
		endpoint: strings.TrimSpace(endpoint),
		apiKey:   strings.TrimSpace(apiKey),
	}
}

func (c *Client) Analyze(ctx context.Context, in Request) (json.RawMessage, error) {
	if c.endpoint == "" {
		return nil, ErrNotConfigured
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("encode analysis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build analysis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Attempt-ID", in.AttemptID)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call analysis api: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read analysis response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("analysis api status %d", resp.StatusCode)
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("analysis api returned invalid json")
	}

	return json.RawMessage(body), nil
}
