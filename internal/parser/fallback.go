package parser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"energodoc/internal/port"
)

// circuitState tracks rate-limit backoff for a single provider.
type circuitState struct {
	mu      sync.RWMutex
	resetAt time.Time // zero value = closed (healthy)
}

func (c *circuitState) isOpenWithReset(now time.Time) (time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.resetAt, !c.resetAt.IsZero() && now.Before(c.resetAt)
}

func (c *circuitState) open(resetAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetAt = resetAt
}

// FallbackMapper tries providers in order, skipping those with open circuits.
// It implements port.SemanticMapper.
type FallbackMapper struct {
	mappers  []port.SemanticMapper
	circuits []*circuitState
	names    []string
	log      *zap.Logger
	now      func() time.Time
}

// NewFallbackMapper creates a FallbackMapper from an ordered list of mappers and their names.
func NewFallbackMapper(mappers []port.SemanticMapper, names []string, log *zap.Logger) *FallbackMapper {
	circuits := make([]*circuitState, len(mappers))
	for i := range circuits {
		circuits[i] = &circuitState{}
	}
	return &FallbackMapper{
		mappers:  mappers,
		circuits: circuits,
		names:    names,
		log:      log,
		now:      time.Now,
	}
}

func (f *FallbackMapper) ProposeMapping(ctx context.Context, req port.MappingRequest) (*port.MappingProposal, error) {
	now := f.now()
	var lastErr error
	allRateLimited := true
	var earliestReset time.Time

	for i, m := range f.mappers {
		if resetAt, open := f.circuits[i].isOpenWithReset(now); open {
			f.log.Debug("parser.FallbackMapper: skipping provider, circuit open",
				zap.String("provider", f.names[i]), zap.Time("reset_at", resetAt))
			if earliestReset.IsZero() || resetAt.Before(earliestReset) {
				earliestReset = resetAt
			}
			continue
		}

		p, err := m.ProposeMapping(ctx, req)
		if err == nil {
			return p, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		f.log.Warn("parser.FallbackMapper: provider failed",
			zap.String("provider", f.names[i]), zap.String("section", req.SectionID), zap.Error(err))
		lastErr = err

		var rlErr *RateLimitError
		if errors.As(err, &rlErr) {
			resetAt := now.Add(rlErr.RetryAfter)
			f.circuits[i].open(resetAt)
			if earliestReset.IsZero() || resetAt.Before(earliestReset) {
				earliestReset = resetAt
			}
		} else {
			allRateLimited = false
		}
	}

	if lastErr == nil || allRateLimited {
		retryAfter := earliestReset.Sub(now)
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		return nil, NewRateLimitError("all", fmt.Errorf("all providers rate limited"), int(retryAfter.Seconds()))
	}
	return nil, fmt.Errorf("all providers failed: %w", lastErr)
}
