package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type entry struct {
	TotalHa float64 `msgpack:"total_ha"`
	Label   string  `msgpack:"label"`
}

func baseParams() KeyParams {
	return KeyParams{
		AOI:     "polonnaruwa",
		Start:   time.Date(2023, time.October, 1, 0, 0, 0, 0, time.UTC),
		End:     time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC),
		Variant: "seasonal",
		Anchors: []time.Time{
			time.Date(2023, time.October, 13, 0, 0, 0, 0, time.UTC),
			time.Date(2023, time.December, 25, 0, 0, 0, 0, time.UTC),
			time.Date(2024, time.February, 13, 0, 0, 0, 0, time.UTC),
		},
		Params: map[string]any{"enl": 4.0, "radius": 2, "min_area_m2": 10000.0},
	}
}

func TestKeyIsDeterministic(t *testing.T) {
	a, err := Key(baseParams())
	require.NoError(t, err)
	b, err := Key(baseParams())
	require.NoError(t, err)
	assert.Equal(t, a, b)

	local := baseParams()
	local.Start = local.Start.In(time.FixedZone("IST", 19800))
	c, err := Key(local)
	require.NoError(t, err)
	assert.Equal(t, a, c, "the same instant in another zone must map to the same key")
}

func TestKeyChangesWithEveryComponent(t *testing.T) {
	base, err := Key(baseParams())
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*KeyParams)
	}{
		{"aoi", func(p *KeyParams) { p.AOI = "ampara" }},
		{"start", func(p *KeyParams) { p.Start = p.Start.AddDate(0, 0, 1) }},
		{"end", func(p *KeyParams) { p.End = p.End.AddDate(0, 0, -1) }},
		{"variant", func(p *KeyParams) { p.Variant = "monitoring" }},
		{"anchor", func(p *KeyParams) { p.Anchors[1] = p.Anchors[1].AddDate(0, 0, 12) }},
		{"params", func(p *KeyParams) { p.Params = map[string]any{"enl": 5.0, "radius": 2, "min_area_m2": 10000.0} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := baseParams()
			tt.mutate(&p)
			k, err := Key(p)
			require.NoError(t, err)
			assert.NotEqual(t, base, k)
		})
	}
}

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := New(zap.NewNop().Sugar())
	key, err := Key(baseParams())
	require.NoError(t, err)

	var got entry
	found, err := c.Get(ctx, key, &got)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Put(ctx, key, entry{TotalHa: 12.5, Label: "maha"}))
	found, err = c.Get(ctx, key, &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, entry{TotalHa: 12.5, Label: "maha"}, got)

	require.NoError(t, c.Invalidate(ctx, key))
	found, err = c.Get(ctx, key, &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPersistentCache(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")
	key, err := Key(baseParams())
	require.NoError(t, err)

	c, err := Open(path, zap.NewNop().Sugar())
	require.NoError(t, err)
	require.NoError(t, c.Put(ctx, key, entry{TotalHa: 3, Label: "yala"}))
	require.NoError(t, c.Put(ctx, key, entry{TotalHa: 4, Label: "yala"}))
	require.NoError(t, c.Close())

	reopened, err := Open(path, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, 0, reopened.Len())

	var got entry
	found, err := reopened.Get(ctx, key, &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 4.0, got.TotalHa)
	assert.Equal(t, 1, reopened.Len())

	require.NoError(t, reopened.Purge(ctx))
	found, err = reopened.Get(ctx, key, &got)
	require.NoError(t, err)
	assert.False(t, found)
}
