package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
engine:
  workers: 4
  reduce-timeout: 30s
  remote-reducer-url: http://worker:8080
pipeline:
  min-object-area-m2: 5000
  excluded-landcover: [50]
assets:
  aois:
    polonnaruwa: /data/aoi/polonnaruwa.geojson
  points: /data/points.geojson
  roads: /data/roads.geojson
  scenes: /data/scenes
storage:
  cache: /var/lib/paddymap/cache.db
rest:
  listen-addr: 127.0.0.1
`

func TestYAMLProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	p := NewYAMLProvider(path)
	c, err := p.LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 4, c.Engine.Workers)
	assert.Equal(t, 30*time.Second, c.Engine.ReduceTimeout)
	assert.Equal(t, "http://worker:8080", c.Engine.RemoteReducerURL)
	assert.Equal(t, DefaultReduceRetries, c.Engine.ReduceRetries)

	assert.Equal(t, 5000.0, c.Pipeline.MinObjectAreaM2)
	assert.Equal(t, []int{50}, c.Pipeline.ExcludedLandCover)
	assert.Equal(t, DefaultENL, c.Pipeline.ENL)
	assert.Equal(t, DefaultSeasonStartMonth, c.Pipeline.SeasonStartMonth)

	assert.Equal(t, "/data/aoi/polonnaruwa.geojson", c.Assets.AOIs["polonnaruwa"])
	assert.Equal(t, DefaultRESTPort, c.REST.Port)
	assert.Equal(t, DefaultRetainedResults, c.REST.RetainedResults)

	storage, err := p.GetStorageConfig()
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/paddymap/cache.db", storage.Cache)
	assert.Empty(t, storage.Results)
	assert.True(t, p.IsReadOnly())
}

func TestApplyDefaults(t *testing.T) {
	var c ConfigData
	ApplyDefaults(&c)

	assert.Equal(t, DefaultSpeckleRadius, c.Pipeline.SpeckleRadius)
	assert.Equal(t, DefaultKernelRadius, c.Pipeline.KernelRadius)
	assert.Equal(t, DefaultMinObjectAreaM2, c.Pipeline.MinObjectAreaM2)
	assert.Equal(t, DefaultRoadBufferM, c.Pipeline.RoadBufferM)
	assert.Equal(t, []int{10, 50}, c.Pipeline.ExcludedLandCover)
	assert.Equal(t, DefaultTileRows, c.Engine.TileRows)

	c.Pipeline.ExcludedLandCover[0] = 99
	assert.Equal(t, 10, DefaultExcludedLandCover[0], "defaults must not be aliased")
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"no AOI", "assets: {points: p.geojson, scenes: s}"},
		{"no points", "assets: {aois: {a: a.geojson}, scenes: s}"},
		{"bad month", "assets: {aois: {a: a.geojson}, points: p, scenes: s}\npipeline: {season-start-month: 13}"},
		{"unknown key", "assets: {aois: {a: a.geojson}, points: p, scenes: s}\nweather: true"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}
