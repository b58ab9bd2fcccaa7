// Package providers registers the built-in fallback providers with the
// parser factory. Import it for side effects.
package providers

import (
	"energodoc/internal/config"
	"energodoc/internal/parser"
	"energodoc/internal/parser/claude"
	"energodoc/internal/parser/gemini"
	"energodoc/internal/parser/openai"
	"energodoc/internal/port"
)

func init() {
	parser.RegisterProvider("claude", func(cfg *config.ProviderConfig) (port.SemanticMapper, error) {
		return claude.NewMapper(cfg), nil
	})
	parser.RegisterProvider("openai", func(cfg *config.ProviderConfig) (port.SemanticMapper, error) {
		return openai.NewMapper(cfg), nil
	})
	parser.RegisterProvider("gemini", func(cfg *config.ProviderConfig) (port.SemanticMapper, error) {
		return gemini.NewMapper(cfg), nil
	})
}
