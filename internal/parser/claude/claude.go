package claude

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"energodoc/internal/config"
	"energodoc/internal/parser"
	"energodoc/internal/port"
)

const (
	apiURL     = "https://api.anthropic.com/v1/messages"
	apiVersion = "2023-06-01"
	maxTokens  = 4096
)

// Mapper implements port.SemanticMapper using the Anthropic Messages API.
type Mapper struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

// NewMapper creates a Claude-backed mapper from a provider config.
func NewMapper(cfg *config.ProviderConfig) *Mapper {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = apiURL
	}
	return newMapper(cfg, endpoint)
}

// NewMapperWithEndpoint creates a mapper pointing at a custom API endpoint (for testing).
func NewMapperWithEndpoint(cfg *config.ProviderConfig, endpoint string) *Mapper {
	return newMapper(cfg, endpoint)
}

func newMapper(cfg *config.ProviderConfig, endpoint string) *Mapper {
	model := cfg.DefaultModel
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Mapper{
		apiKey:   cfg.APIKey,
		model:    model,
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (m *Mapper) ProposeMapping(ctx context.Context, in port.MappingRequest) (*port.MappingProposal, error) {
	prompt, err := parser.BuildMappingPrompt(in)
	if err != nil {
		return nil, err
	}

	reqBody := map[string]any{
		"model":       m.model,
		"max_tokens":  maxTokens,
		"temperature": 0,
		"messages": []map[string]any{
			{
				"role":    "user",
				"content": []map[string]any{{"type": "text", "text": prompt}},
			},
		},
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", m.apiKey)
	req.Header.Set("anthropic-version", apiVersion)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling anthropic API: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		baseErr := fmt.Errorf("anthropic API error (status %d): %s", resp.StatusCode, string(respBody))
		if resp.StatusCode == http.StatusTooManyRequests {
			retryAfter := parser.ParseRetryAfterHeader(resp.Header.Get("Retry-After"))
			return nil, parser.NewRateLimitError("claude", baseErr, retryAfter)
		}
		return nil, baseErr
	}

	return parseResponse(respBody, m.model)
}

// apiResponse models the Anthropic Messages API response.
type apiResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

func parseResponse(body []byte, model string) (*port.MappingProposal, error) {
	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: unmarshaling response: %v", parser.ErrMalformedResponse, err)
	}
	if resp.StopReason == "max_tokens" {
		return nil, fmt.Errorf("%w: output truncated (stop_reason: max_tokens)", parser.ErrMalformedResponse)
	}
	for _, c := range resp.Content {
		if c.Type == "text" {
			return parser.DecodeProposal(c.Text, model)
		}
	}
	return nil, fmt.Errorf("%w: empty response from API", parser.ErrMalformedResponse)
}
