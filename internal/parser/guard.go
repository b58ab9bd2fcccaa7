package parser

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"energodoc/internal/domain"
	"energodoc/internal/metrics"
	"energodoc/internal/port"
)

// GuardOptions bound a single fallback call.
type GuardOptions struct {
	Timeout    time.Duration
	MaxRetries int
	Backoff    time.Duration
	CacheTTL   time.Duration
	// KeySalt is mixed into cache keys. It carries the ruleset fingerprint
	// and the provider chain so rule or model changes miss the cache.
	KeySalt string
}

// GuardedMapper wraps a provider chain with caching, a per-attempt timeout
// and retries. Failures degrade to "no proposal"; only cancellation of the
// caller's context is returned as an error.
type GuardedMapper struct {
	inner   port.SemanticMapper
	cache   port.ProposalCache
	opts    GuardOptions
	metrics *metrics.Metrics
	log     *zap.Logger
}

// NewGuardedMapper creates a GuardedMapper. cache and m may be nil.
func NewGuardedMapper(inner port.SemanticMapper, cache port.ProposalCache, opts GuardOptions, m *metrics.Metrics, log *zap.Logger) *GuardedMapper {
	return &GuardedMapper{inner: inner, cache: cache, opts: opts, metrics: m, log: log}
}

// CacheKey fingerprints a request together with salt.
func CacheKey(req port.MappingRequest, salt string) (string, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encoding mapping request: %w", err)
	}
	h := sha256.New()
	h.Write(b)
	h.Write([]byte{0})
	h.Write([]byte(salt))
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (g *GuardedMapper) ProposeMapping(ctx context.Context, req port.MappingRequest) (*port.MappingProposal, error) {
	log := g.log.With(zap.String("section", req.SectionID))

	key, err := CacheKey(req, g.opts.KeySalt)
	if err != nil {
		log.Warn("parser.GuardedMapper: no proposal", zap.Error(err))
		g.metrics.Fallback(metrics.FallbackError)
		return nil, nil
	}
	if g.cache != nil {
		p, ok, err := g.cache.Get(ctx, key)
		switch {
		case err != nil:
			log.Warn("parser.GuardedMapper: cache read failed", zap.Error(err))
		case ok:
			log.Debug("parser.GuardedMapper: cache hit", zap.String("key", key))
			g.metrics.Fallback(metrics.FallbackCacheHit)
			return p, nil
		}
	}

	var lastErr error
	for attempt := 0; attempt <= g.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, g.opts.Backoff<<(attempt-1)); err != nil {
				return nil, err
			}
		}
		p, err := g.attempt(ctx, req)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err == nil {
			if p == nil {
				g.metrics.Fallback(metrics.FallbackNoProposal)
				return nil, nil
			}
			g.store(ctx, log, key, p)
			g.metrics.Fallback(metrics.FallbackProposal)
			return p, nil
		}
		lastErr = err
		log.Info("parser.GuardedMapper: attempt failed", zap.Int("attempt", attempt+1), zap.Error(err))
		if NoRetry(err) {
			break
		}
	}

	log.Warn("parser.GuardedMapper: no proposal",
		zap.Error(fmt.Errorf("%w: %w", domain.ErrFallbackUnavailable, lastErr)))
	g.metrics.Fallback(metrics.FallbackError)
	return nil, nil
}

func (g *GuardedMapper) attempt(ctx context.Context, req port.MappingRequest) (*port.MappingProposal, error) {
	if g.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()
	}
	return g.inner.ProposeMapping(ctx, req)
}

func (g *GuardedMapper) store(ctx context.Context, log *zap.Logger, key string, p *port.MappingProposal) {
	if g.cache == nil {
		return
	}
	if err := g.cache.Set(ctx, key, p, g.opts.CacheTTL); err != nil {
		log.Warn("parser.GuardedMapper: cache write failed", zap.Error(err))
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
