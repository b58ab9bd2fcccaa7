// Package app wires the extraction engine from configuration. The server
// and the offline CLI share it.
package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"energodoc/internal/cache/memory"
	rediscache "energodoc/internal/cache/redis"
	"energodoc/internal/classifier"
	"energodoc/internal/config"
	"energodoc/internal/metrics"
	"energodoc/internal/ocr"
	"energodoc/internal/parser"
	_ "energodoc/internal/parser/providers"
	"energodoc/internal/pipeline"
	"energodoc/internal/port"
	"energodoc/internal/rules"
)

// Engine is a wired pipeline together with the resources it owns.
type Engine struct {
	Runner *pipeline.Runner
	Rules  *rules.Ruleset
	// Redis is set only when the fallback cache lives in Redis.
	Redis *goredis.Client
}

// LoadRules returns the ruleset at path, or the embedded one when path is empty.
func LoadRules(path string) (*rules.Ruleset, error) {
	if path == "" {
		return rules.Default()
	}
	return rules.LoadFile(path)
}

// OCRConfig maps the OCR section of cfg onto the engine settings.
func OCRConfig(cfg *config.Config) ocr.Config {
	return ocr.Config{
		Pdftotext:    cfg.OCR.Pdftotext,
		Pdftoppm:     cfg.OCR.Pdftoppm,
		Tesseract:    cfg.OCR.Tesseract,
		Lang:         cfg.OCR.Lang,
		DPI:          cfg.OCR.DPI,
		MaxPages:     cfg.OCR.MaxPages,
		PSM:          cfg.OCR.PSM,
		TessdataDir:  cfg.OCR.TessdataDir,
		MinPageChars: cfg.OCR.MinPageChars,
	}
}

// NewEngine builds the pipeline described by cfg. The semantic fallback is
// wired only when cfg.Fallback.Enabled is set. m may be nil.
func NewEngine(ctx context.Context, cfg *config.Config, m *metrics.Metrics, log *zap.Logger) (*Engine, error) {
	rs, err := LoadRules(cfg.Rules.Path)
	if err != nil {
		return nil, err
	}

	ocrEngine := ocr.NewEngine(OCRConfig(cfg), ocr.NewExecRunner(log), log)

	e := &Engine{Rules: rs}

	var mapper port.SemanticMapper
	if cfg.Fallback.Enabled {
		mapper, err = e.newMapper(ctx, cfg, rs, m, log)
		if err != nil {
			_ = e.Close()
			return nil, err
		}
	}

	runner, err := pipeline.New(pipeline.Deps{
		Rules:       rs,
		Classifier:  classifier.New(ocrEngine, log),
		Extractor:   ocrEngine,
		Mapper:      mapper,
		Metrics:     m,
		Log:         log,
		Concurrency: cfg.Queue.Concurrency,
	})
	if err != nil {
		_ = e.Close()
		return nil, err
	}
	e.Runner = runner

	log.Info("app: engine ready",
		zap.String("ruleset_version", rs.Version),
		zap.String("ruleset_fingerprint", rs.Fingerprint()),
		zap.Bool("fallback", mapper != nil))
	return e, nil
}

func (e *Engine) newMapper(ctx context.Context, cfg *config.Config, rs *rules.Ruleset, m *metrics.Metrics, log *zap.Logger) (port.SemanticMapper, error) {
	providers := cfg.Fallback.Providers()
	chain, err := parser.NewChain(providers, log)
	if err != nil {
		return nil, fmt.Errorf("building fallback providers: %w", err)
	}

	var cache port.ProposalCache
	switch cfg.Fallback.CacheBackend {
	case "redis":
		client, err := rediscache.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		e.Redis = client
		cache = rediscache.New(client, cfg.Redis.Prefix, log)
	case "memory":
		cache = memory.New()
	default:
		return nil, fmt.Errorf("unknown fallback cache backend %q", cfg.Fallback.CacheBackend)
	}

	return parser.NewGuardedMapper(chain, cache, parser.GuardOptions{
		Timeout:    cfg.Fallback.Timeout(),
		MaxRetries: cfg.Fallback.MaxRetries,
		Backoff:    cfg.Fallback.Backoff(),
		CacheTTL:   cfg.Fallback.CacheTTL,
		KeySalt:    rs.Fingerprint() + "|" + parser.ChainID(providers),
	}, m, log), nil
}

// Close releases the Redis client, if any.
func (e *Engine) Close() error {
	if e.Redis == nil {
		return nil
	}
	return e.Redis.Close()
}
