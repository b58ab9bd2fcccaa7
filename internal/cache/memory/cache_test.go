package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"energodoc/internal/cache/memory"
	"energodoc/internal/port"
)

func TestCache_SetGet(t *testing.T) {
	c := memory.New()
	ctx := context.Background()
	p := &port.MappingProposal{Mapping: []port.ProposedCell{{Path: "resources.coal.annual", CellRange: "B2"}}, Confidence: 0.8}

	require.NoError(t, c.Set(ctx, "k", p, 0))
	p.Mapping[0].CellRange = "Z99"

	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "B2", got.Mapping[0].CellRange)
	assert.Equal(t, 1, c.Len())
}

func TestCache_Expiry(t *testing.T) {
	c := memory.New()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	c.SetClock(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", &port.MappingProposal{Confidence: 0.7}, time.Minute))

	_, ok, _ := c.Get(ctx, "k")
	assert.True(t, ok)

	now = now.Add(time.Minute)
	_, ok, _ = c.Get(ctx, "k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}
