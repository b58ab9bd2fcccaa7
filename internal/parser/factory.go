package parser

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"energodoc/internal/config"
	"energodoc/internal/port"
)

// ProviderFactory creates a SemanticMapper from a provider config.
type ProviderFactory func(cfg *config.ProviderConfig) (port.SemanticMapper, error)

// registry of provider factories, populated by the providers package or
// explicitly via RegisterProvider.
var providers = map[string]ProviderFactory{}

// RegisterProvider registers a provider factory by name.
func RegisterProvider(name string, factory ProviderFactory) {
	providers[name] = factory
}

// NewMapper creates a SemanticMapper from a provider config using the registered factory.
func NewMapper(cfg *config.ProviderConfig) (port.SemanticMapper, error) {
	factory, ok := providers[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown fallback provider: %s", cfg.Provider)
	}
	return factory(cfg)
}

// NewChain builds one mapper per configured provider and chains them in
// order. A single provider is returned unwrapped.
func NewChain(cfgs []*config.ProviderConfig, log *zap.Logger) (port.SemanticMapper, error) {
	if len(cfgs) == 0 {
		return nil, fmt.Errorf("no fallback providers configured")
	}
	mappers := make([]port.SemanticMapper, 0, len(cfgs))
	names := make([]string, 0, len(cfgs))
	for _, c := range cfgs {
		m, err := NewMapper(c)
		if err != nil {
			return nil, err
		}
		mappers = append(mappers, m)
		names = append(names, c.Provider)
	}
	if len(mappers) == 1 {
		return mappers[0], nil
	}
	return NewFallbackMapper(mappers, names, log), nil
}

// ChainID identifies the provider chain for cache keys: a different model
// must not reuse another model's proposals.
func ChainID(cfgs []*config.ProviderConfig) string {
	parts := make([]string, 0, len(cfgs))
	for _, c := range cfgs {
		parts = append(parts, c.Provider+"/"+c.DefaultModel)
	}
	return strings.Join(parts, ",")
}

// Registered lists the registered provider names.
func Registered() []string {
	out := make([]string, 0, len(providers))
	for name := range providers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
