package gemini_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"energodoc/internal/config"
	"energodoc/internal/parser"
	"energodoc/internal/parser/gemini"
	"energodoc/internal/port"
)

var request = port.MappingRequest{
	SectionID:     "page-1",
	SampleRows:    []port.GridRow{{Row: 1, Cells: []string{"Issiqlik", "42"}}},
	LanguageHints: []string{"uz"},
}

func newTestMapper(serverURL string) *gemini.Mapper {
	return gemini.NewMapperWithEndpoint(&config.ProviderConfig{
		Provider: "gemini",
		APIKey:   "g-key",
	}, serverURL)
}

func TestMapper_ProposeMapping_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "g-key", r.Header.Get("x-goog-api-key"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gen := body["generationConfig"].(map[string]any)
		assert.Equal(t, "application/json", gen["responseMimeType"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{"parts": []map[string]any{{
					"text": `{"proposed_mapping":[{"canonical_path":"resources.heat.annual","cell_range":"B1","unit":"Gcal"}],"confidence":0.66}`,
				}}},
				"finishReason": "STOP",
			}},
		})
	}))
	defer server.Close()

	p, err := newTestMapper(server.URL).ProposeMapping(context.Background(), request)

	require.NoError(t, err)
	assert.Equal(t, "resources.heat.annual", p.Mapping[0].Path)
	assert.Equal(t, "gemini-2.0-flash", p.Model)
}

func TestMapper_ProposeMapping_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "5")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := newTestMapper(server.URL).ProposeMapping(context.Background(), request)

	var rlErr *parser.RateLimitError
	require.ErrorAs(t, err, &rlErr)
	assert.Equal(t, "gemini", rlErr.Provider)
	assert.Equal(t, 5.0, rlErr.RetryAfter.Seconds())
}

func TestMapper_ProposeMapping_NotJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"no table here"}]},"finishReason":"STOP"}]}`))
	}))
	defer server.Close()

	_, err := newTestMapper(server.URL).ProposeMapping(context.Background(), request)

	assert.ErrorIs(t, err, parser.ErrMalformedResponse)
}
