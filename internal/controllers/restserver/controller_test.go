package restserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/chrissnell/paddymap/internal/classify"
	"github.com/chrissnell/paddymap/internal/engine"
	"github.com/chrissnell/paddymap/internal/pipeline"
	"github.com/chrissnell/paddymap/internal/raster"
	"github.com/chrissnell/paddymap/internal/runs"
	"github.com/chrissnell/paddymap/internal/stats"
	"github.com/chrissnell/paddymap/internal/storage/results"
	"github.com/chrissnell/paddymap/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testGrid = raster.Grid{Width: 2, Height: 2, OriginY: 20, PixelWidth: 10, PixelHeight: 10}

type fakeRunner struct {
	err error
}

func (f fakeRunner) Run(_ context.Context, req pipeline.Request, progress pipeline.ProgressFunc) (*pipeline.Result, error) {
	progress("acquisitions")
	if f.err != nil {
		return nil, f.err
	}
	mask := &raster.Mask{Grid: testGrid, Data: []bool{true, true, false, false}}
	month := raster.New(testGrid)
	month.Set(0, 10)
	month.Set(1, 11)
	return &pipeline.Result{
		Request:     req,
		CacheKey:    "key",
		RawMask:     mask,
		Attributes:  &classify.Attributes{Mask: mask, StartMonth: month},
		SeasonStart: 10,
		Statistics: &stats.Statistics{
			TotalHa: 0.02,
			ByMonth: stats.AreaStatistic{10: 0.01, 11: 0.01},
		},
	}, nil
}

type savedRun struct {
	run *results.Run
	st  *stats.Statistics
}

type fakeStore struct {
	mu    sync.Mutex
	saved []savedRun
}

func (f *fakeStore) SaveRun(_ context.Context, run *results.Run, st *stats.Statistics, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, savedRun{run, st})
	return nil
}

func (f *fakeStore) runs() []savedRun {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]savedRun(nil), f.saved...)
}

func newServer(t *testing.T, runner Runner, store ResultStore, reducer engine.Reducer) (*httptest.Server, *Controller) {
	t.Helper()
	opts := Options{Runner: runner, AOIs: []string{"north"}, Results: store, Reducer: reducer}
	return newServerWith(t, config.RESTServerData{}, opts)
}

func newServerWith(t *testing.T, rc config.RESTServerData, opts Options) (*httptest.Server, *Controller) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})

	ctrl, err := NewController(ctx, &wg, rc, opts, zap.NewNop().Sugar())
	require.NoError(t, err)

	srv := httptest.NewServer(ctrl.Server.Handler)
	t.Cleanup(srv.Close)
	return srv, ctrl
}

const seasonalBody = `{"aoi":"north","start":"2023-10-01","end":"2023-12-01","variant":"seasonal",
	"anchors":{"onset":"2023-10-01","peak":"2023-11-01","harvest":"2023-11-25"}}`

func submit(t *testing.T, srv *httptest.Server, body string) (*http.Response, RunResponse) {
	t.Helper()
	resp, err := http.Post(srv.URL+"/api/v1/runs", "application/json", bytes.NewBufferString(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	var rr RunResponse
	if resp.StatusCode == http.StatusAccepted {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&rr))
	}
	return resp, rr
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func waitFor(t *testing.T, srv *httptest.Server, id, state string) {
	t.Helper()
	require.Eventually(t, func() bool {
		var got map[string]any
		getJSON(t, srv.URL+"/api/v1/runs/"+id, &got)
		return got["status"] == state
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSubmitAndFetchRun(t *testing.T) {
	store := &fakeStore{}
	srv, _ := newServer(t, fakeRunner{}, store, nil)

	resp, rr := submit(t, srv, seasonalBody)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.NotNil(t, rr.Status)
	assert.Equal(t, "north", rr.AOI)
	assert.Equal(t, "/api/v1/runs/"+rr.ID, resp.Header.Get("Location"))

	waitFor(t, srv, rr.ID, runs.StatusSucceeded)

	var run map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/runs/"+rr.ID, &run))
	result, ok := run["result"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "key", result["cache_key"])

	var st map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/runs/"+rr.ID+"/stats", &st))
	assert.Equal(t, false, st["no_classified_pixels"])
	assert.InDelta(t, 0.02, st["total_ha"], 1e-12)
	byMonth := st["by_month"].([]any)
	require.Len(t, byMonth, 2)
	assert.EqualValues(t, 10, byMonth[0].(map[string]any)["key"])

	var layers []string
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/runs/"+rr.ID+"/layers", &layers))
	assert.Equal(t, pipeline.LayerNames(), layers)

	var layer raster.Raster
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/runs/"+rr.ID+"/layers/"+pipeline.LayerMask, &layer))
	assert.True(t, layer.Grid.Equal(testGrid))
	assert.Equal(t, []bool{true, true, false, false}, layer.Valid)

	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/v1/runs/"+rr.ID+"/layers/rainfall", nil))

	var list []map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/runs", &list))
	assert.Len(t, list, 1)

	require.Eventually(t, func() bool { return len(store.runs()) == 1 }, 5*time.Second, 10*time.Millisecond)
	saved := store.runs()[0]
	assert.Equal(t, rr.ID, saved.run.RunID)
	assert.Equal(t, runs.StatusSucceeded, saved.run.Status)
	assert.InDelta(t, 0.02, saved.run.TotalHa, 1e-12)
	assert.NotNil(t, saved.st)
}

func TestFailedRun(t *testing.T) {
	store := &fakeStore{}
	srv, _ := newServer(t, fakeRunner{err: errors.New("thresholds: no samples")}, store, nil)

	resp, rr := submit(t, srv, seasonalBody)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	waitFor(t, srv, rr.ID, runs.StatusFailed)

	var run map[string]any
	getJSON(t, srv.URL+"/api/v1/runs/"+rr.ID, &run)
	assert.Equal(t, "thresholds: no samples", run["error"])
	assert.Nil(t, run["result"])

	assert.Equal(t, http.StatusConflict, getJSON(t, srv.URL+"/api/v1/runs/"+rr.ID+"/stats", nil))

	require.Eventually(t, func() bool { return len(store.runs()) == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, runs.StatusFailed, store.runs()[0].run.Status)
	assert.Nil(t, store.runs()[0].st)
}

func TestOldResultsAreEvicted(t *testing.T) {
	store := &fakeStore{}
	srv, _ := newServerWith(t, config.RESTServerData{RetainedResults: 1},
		Options{Runner: fakeRunner{}, AOIs: []string{"north"}, Results: store})

	_, first := submit(t, srv, seasonalBody)
	waitFor(t, srv, first.ID, runs.StatusSucceeded)
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/runs/"+first.ID+"/stats", nil))

	_, second := submit(t, srv, seasonalBody)
	waitFor(t, srv, second.ID, runs.StatusSucceeded)

	assert.Equal(t, http.StatusGone, getJSON(t, srv.URL+"/api/v1/runs/"+first.ID+"/stats", nil))
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/runs/"+second.ID+"/stats", nil))

	var run map[string]any
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/runs/"+first.ID, &run))
	assert.Equal(t, runs.StatusSucceeded, run["status"])
	assert.Nil(t, run["result"])

	require.Eventually(t, func() bool { return len(store.runs()) == 2 }, 5*time.Second, 10*time.Millisecond)
}

func TestRejectedRequests(t *testing.T) {
	srv, _ := newServer(t, fakeRunner{}, nil, nil)

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed", `{"aoi":`, http.StatusBadRequest},
		{"unknown field", `{"aoi":"north","colour":"green"}`, http.StatusBadRequest},
		{"bad date", `{"aoi":"north","start":"01/10/2023","end":"2023-12-01","variant":"monitoring"}`, http.StatusBadRequest},
		{"missing anchors", `{"aoi":"north","start":"2023-10-01","end":"2023-12-01"}`, http.StatusBadRequest},
		{"unknown variant", `{"aoi":"north","start":"2023-10-01","end":"2023-12-01","variant":"weekly"}`, http.StatusBadRequest},
		{"unordered anchors", `{"aoi":"north","start":"2023-10-01","end":"2023-12-01",
			"anchors":{"onset":"2023-11-01","peak":"2023-10-01","harvest":"2023-11-25"}}`, http.StatusBadRequest},
		{"unknown AOI", `{"aoi":"south","start":"2023-10-01","end":"2023-12-01","variant":"monitoring"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := submit(t, srv, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestUnknownRun(t *testing.T) {
	srv, _ := newServer(t, fakeRunner{}, nil, nil)
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/v1/runs/nope", nil))
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/v1/runs/nope/layers/mask", nil))
}

func TestHealthAndAOIs(t *testing.T) {
	srv, _ := newServer(t, fakeRunner{}, nil, nil)

	var health HealthResponse
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/health", &health))
	assert.Equal(t, "ok", health.Status)

	var aois []string
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/v1/aois", &aois))
	assert.Equal(t, []string{"north"}, aois)
}

func TestReduceEndpoint(t *testing.T) {
	srv, _ := newServer(t, fakeRunner{}, nil, nil)
	resp, err := http.Post(srv.URL+"/api/v1/reduce", "application/x-msgpack", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "reduce is only served when a reducer is configured")

	local := engine.NewLocal(engine.LocalConfig{}, zap.NewNop().Sugar())
	srv, _ = newServer(t, fakeRunner{}, nil, local)
	resp, err = http.Get(srv.URL + "/api/v1/reduce")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestNewControllerDefaults(t *testing.T) {
	var wg sync.WaitGroup
	_, err := NewController(context.Background(), &wg, config.RESTServerData{}, Options{}, zap.NewNop().Sugar())
	assert.Error(t, err)

	ctrl, err := NewController(context.Background(), &wg, config.RESTServerData{}, Options{Runner: fakeRunner{}}, zap.NewNop().Sugar())
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8080", ctrl.Server.Addr)
	assert.Equal(t, config.DefaultRetainedResults, ctrl.restConfig.RetainedResults)
}
