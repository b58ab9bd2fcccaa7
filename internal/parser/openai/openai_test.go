package openai_test

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
	"energodoc/internal/parser/openai"
	"energodoc/internal/port"
)

var request = port.MappingRequest{
	SectionID:  "Sheet2",
	SampleRows: []port.GridRow{{Row: 3, Cells: []string{"Gas", "1500"}}},
}

func newTestMapper(serverURL string) *openai.Mapper {
	return openai.NewMapperWithEndpoint(&config.ProviderConfig{
		Provider:     "openai",
		APIKey:       "sk-test",
		DefaultModel: "gpt-4o",
	}, serverURL)
}

func TestMapper_ProposeMapping_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4o", body["model"])
		assert.Equal(t, map[string]any{"type": "json_object"}, body["response_format"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"message":       map[string]any{"content": `{"proposed_mapping":[{"canonical_path":"resources.gas.annual","cell_range":"B3","unit":"m3"}],"confidence":0.75}`},
				"finish_reason": "stop",
			}},
		})
	}))
	defer server.Close()

	p, err := newTestMapper(server.URL).ProposeMapping(context.Background(), request)

	require.NoError(t, err)
	require.Len(t, p.Mapping, 1)
	assert.Equal(t, "B3", p.Mapping[0].CellRange)
	assert.Equal(t, "gpt-4o", p.Model)
}

func TestMapper_ProposeMapping_RateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := newTestMapper(server.URL).ProposeMapping(context.Background(), request)

	var rlErr *parser.RateLimitError
	require.ErrorAs(t, err, &rlErr)
	assert.Equal(t, "openai", rlErr.Provider)
}

func TestMapper_ProposeMapping_NoChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	_, err := newTestMapper(server.URL).ProposeMapping(context.Background(), request)

	assert.ErrorIs(t, err, parser.ErrMalformedResponse)
}

func TestMapper_ProposeMapping_LengthCutoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{"},"finish_reason":"length"}]}`))
	}))
	defer server.Close()

	_, err := newTestMapper(server.URL).ProposeMapping(context.Background(), request)

	assert.ErrorIs(t, err, parser.ErrMalformedResponse)
}
