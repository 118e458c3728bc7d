package wingman

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/casualjim/wingman/stream"
	json "github.com/goccy/go-json"
)

// ModelInfo describes one model the API offers.
type ModelInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version"`
	Vendor  string `json:"vendor"`

	Capabilities struct {
		Family    string `json:"family"`
		Type      string `json:"type"`
		Tokenizer string `json:"tokenizer"`
		Supports  struct {
			Streaming bool `json:"streaming"`
			ToolCalls bool `json:"tool_calls"`
			Vision    bool `json:"vision"`
		} `json:"supports"`
		Limits struct {
			MaxContextWindowTokens int `json:"max_context_window_tokens"`
			MaxOutputTokens        int `json:"max_output_tokens"`
			MaxPromptTokens        int `json:"max_prompt_tokens"`
		} `json:"limits"`
	} `json:"capabilities"`
}

// Models lists the models available to the authenticated user.
func (c *Client) Models(ctx context.Context) ([]ModelInfo, error) {
	req, err := c.authenticated(ctx, http.MethodGet, "/models", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("models request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return nil, err
	}

	var out struct {
		Data []ModelInfo `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to parse models response: %w", err)
	}
	return out.Data, nil
}

// EmbeddingsRequest is the payload for an embeddings call.
type EmbeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// Embedding is one vector in an embeddings response.
type Embedding struct {
	Index     int       `json:"index"`
	Embedding []float64 `json:"embedding"`
}

// EmbeddingsResponse carries the vectors plus token accounting.
type EmbeddingsResponse struct {
	Data  []Embedding   `json:"data"`
	Usage *stream.Usage `json:"usage,omitempty"`
}

// Embeddings computes embedding vectors for the given inputs.
func (c *Client) Embeddings(ctx context.Context, payload EmbeddingsRequest) (*EmbeddingsResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode embeddings request: %w", err)
	}

	req, err := c.authenticated(ctx, http.MethodPost, "/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embeddings request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return nil, err
	}

	var out EmbeddingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to parse embeddings response: %w", err)
	}
	return &out, nil
}

// QuotaSnapshot is the remaining allowance for one quota bucket.
type QuotaSnapshot struct {
	Entitlement      float64 `json:"entitlement"`
	Remaining        float64 `json:"remaining"`
	PercentRemaining float64 `json:"percent_remaining"`
	Unlimited        bool    `json:"unlimited"`
}

// UsageReport is the account's current plan and per-bucket quota state.
type UsageReport struct {
	Plan           string                   `json:"copilot_plan"`
	QuotaResetDate string                   `json:"quota_reset_date"`
	Snapshots      map[string]QuotaSnapshot `json:"quota_snapshots"`
}

// Usage reports the account's current quota state.
func (c *Client) Usage(ctx context.Context) (*UsageReport, error) {
	req, err := c.authenticated(ctx, http.MethodGet, "/usage", nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("usage request failed: %w", err)
	}
	defer resp.Body.Close()

	if err := checkResponse(resp); err != nil {
		return nil, err
	}

	var out UsageReport
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to parse usage response: %w", err)
	}
	return &out, nil
}
