package openai

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

const apiURL = "https://api.openai.com/v1/chat/completions"

// Mapper implements port.SemanticMapper using the OpenAI Chat Completions API.
type Mapper struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
}

// NewMapper creates an OpenAI-backed mapper from a provider config.
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
		model = "gpt-4o"
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
		"model":                 m.model,
		"max_completion_tokens": 4096,
		"temperature":           0,
		"messages": []map[string]any{
			{"role": "user", "content": prompt},
		},
		"response_format": map[string]any{"type": "json_object"},
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
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling openai API: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		baseErr := fmt.Errorf("openai API error (status %d): %s", resp.StatusCode, string(respBody))
		if resp.StatusCode == http.StatusTooManyRequests {
			retryAfter := parser.ParseRetryAfterHeader(resp.Header.Get("Retry-After"))
			return nil, parser.NewRateLimitError("openai", baseErr, retryAfter)
		}
		return nil, baseErr
	}

	return parseResponse(respBody, m.model)
}

// apiResponse models the OpenAI Chat Completions API response.
type apiResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func parseResponse(body []byte, model string) (*port.MappingProposal, error) {
	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: unmarshaling response: %v", parser.ErrMalformedResponse, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty response from API: no choices", parser.ErrMalformedResponse)
	}
	if resp.Choices[0].FinishReason == "length" {
		return nil, fmt.Errorf("%w: output truncated (finish_reason: length)", parser.ErrMalformedResponse)
	}
	return parser.DecodeProposal(resp.Choices[0].Message.Content, model)
}
