package classify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chrissnell/paddymap/internal/engine"
	"github.com/chrissnell/paddymap/internal/raster"
	"github.com/chrissnell/paddymap/internal/streak"
	"github.com/chrissnell/paddymap/internal/threshold"
	"go.uber.org/zap"
)

var (
	pixelGrid = raster.Grid{Width: 1, Height: 1, PixelWidth: 10, PixelHeight: 10}
	times     = []time.Time{
		time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 10, 16, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 11, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 11, 16, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 12, 16, 0, 0, 0, 0, time.UTC),
	}
)

func testEngine() engine.Engine {
	return engine.NewLocal(engine.LocalConfig{TileRows: 1}, zap.NewNop().Sugar())
}

func pixelSeries(values ...float64) raster.Series {
	var s raster.Series
	for i, v := range values {
		r := raster.Filled(pixelGrid, v)
		s = append(s, raster.Frame{Time: times[i], Raster: r})
	}
	return s
}

func TestSeasonalRuleScenarioA(t *testing.T) {
	th := &threshold.Seasonal{DiffOnsetPeak: 0.2, DiffPeakHarvest: 0.2, Q3Onset: 0.2, Q1Peak: 0.4}

	// series 0.1 0.4 0.5 0.3 0.2 0.1: onset window min 0.1, peak window max 0.5,
	// harvest window min 0.1
	if !SeasonalRule(0.1, 0.5, 0.1, th, true) {
		t.Error("expected the pixel to classify")
	}
	if SeasonalRule(0.1, 0.5, 0.1, th, false) {
		t.Error("time pattern must be required")
	}
	if SeasonalRule(0.3, 0.5, 0.1, th, true) {
		t.Error("onset above Q3 must not classify")
	}
}

func TestSeasonalClassify(t *testing.T) {
	series := pixelSeries(1000, 4000, 5000, 3000, 2000, 1000)
	th := &threshold.Seasonal{DiffOnsetPeak: 2000, DiffPeakHarvest: 2000, Q3Onset: 1500, Q1Peak: 4500}
	anchors := threshold.SeasonalAnchors{Onset: times[0], Peak: times[2], Harvest: times[5]}

	c := NewSeasonal(testEngine(), zap.NewNop().Sugar())
	m, err := c.Classify(context.Background(), SeasonalInput{
		Composites: series,
		Dekads:     times,
		Anchors:    anchors,
		Thresholds: th,
	})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if !m.Data[0] {
		t.Error("scenario A pixel should be classified")
	}

	// strictly decreasing series never grows
	m, err = c.Classify(context.Background(), SeasonalInput{
		Composites: pixelSeries(6000, 5000, 4000, 3000, 2000, 1000),
		Dekads:     times,
		Anchors:    anchors,
		Thresholds: th,
	})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if m.Data[0] {
		t.Error("decreasing pixel should not be classified")
	}
}

func TestSeasonalClassifyRequiresAMonth(t *testing.T) {
	series := pixelSeries(1000, 4000, 5000, 3000, 2000, 1000)
	th := &threshold.Seasonal{DiffOnsetPeak: 2000, DiffPeakHarvest: 2000, Q3Onset: 1500, Q1Peak: 4500}

	m, err := NewSeasonal(testEngine(), zap.NewNop().Sugar()).Classify(context.Background(), SeasonalInput{
		Composites: series,
		Dekads:     times,
		Anchors:    threshold.SeasonalAnchors{Onset: times[0], Peak: times[1], Harvest: times[5]},
		Thresholds: th,
	})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if m.Data[0] {
		t.Error("onset and peak 15 days apart should not classify")
	}
}

func TestMonitoringRule(t *testing.T) {
	th := &threshold.Monitoring{DiffSOSPeak: 4000, DiffStartSOS: 2000, Q3SOS: 2500, Q1Peak: 6500}

	tests := []struct {
		name                      string
		startMax, sosMin, peakMax float64
		expected                  bool
	}{
		{"typical season", 5000, 2000, 7000, true},
		{"no decline into onset", 2500, 2000, 7000, false},
		{"weak growth", 5000, 2000, 3500, false},
		{"peak under Q1", 5000, 2000, 6400, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MonitoringRule(tt.startMax, tt.sosMin, tt.peakMax, th); got != tt.expected {
				t.Errorf("MonitoringRule(%v, %v, %v) = %v, expected %v", tt.startMax, tt.sosMin, tt.peakMax, got, tt.expected)
			}
		})
	}
}

func TestMonitoringClassify(t *testing.T) {
	th := &threshold.Monitoring{
		Anchors:      threshold.MonitoringAnchors{Start: times[0], SOS: times[2], Peak: times[5]},
		DiffSOSPeak:  4000,
		DiffStartSOS: 2000,
		Q3SOS:        2500,
		Q1Peak:       6500,
	}

	m, err := NewMonitoring(testEngine(), zap.NewNop().Sugar()).Classify(context.Background(), MonitoringInput{
		Composites: pixelSeries(5000, 3000, 2000, 2500, 4000, 7000),
		Dekads:     times,
		Thresholds: th,
	})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if !m.Data[0] {
		t.Error("expected the pixel to classify")
	}
}

func TestWindowExtremum(t *testing.T) {
	series := pixelSeries(1000, 4000, 5000, 3000, 2000, 1000)
	// drop the composite of times[3]; the window around times[4] keeps 4 and 5
	series = append(series[:3], series[4:]...)

	got, err := WindowExtremum(context.Background(), testEngine(), series, times, times[4], Max)
	if err != nil {
		t.Fatalf("WindowExtremum: %v", err)
	}
	if v, _ := got.At(0); v != 2000 {
		t.Errorf("max = %v, expected 2000", v)
	}

	got, err = WindowExtremum(context.Background(), testEngine(), series, times, times[0], Min)
	if err != nil {
		t.Fatalf("WindowExtremum: %v", err)
	}
	if v, _ := got.At(0); v != 1000 {
		t.Errorf("min = %v, expected 1000", v)
	}

	_, err = WindowExtremum(context.Background(), testEngine(), nil, times, times[0], Min)
	if !errors.Is(err, ErrEmptyWindow) {
		t.Errorf("expected ErrEmptyWindow, got %v", err)
	}
}

func TestRemoveSmallObjectsScenarioC(t *testing.T) {
	g := raster.Grid{Width: 40, Height: 40, PixelWidth: 10, PixelHeight: 10}
	m := raster.NewMask(g)
	for col := 0; col < 5; col++ {
		m.Data[g.Index(col, 0)] = true
	}
	for row := 10; row < 20; row++ {
		for col := 10; col < 30; col++ {
			m.Data[g.Index(col, row)] = true
		}
	}

	out := RemoveSmallObjects(m, DefaultMinAreaM2, false)
	if out.Data[g.Index(2, 0)] {
		t.Error("500 m² object should be removed")
	}
	if got := out.Count(); got != 200 {
		t.Errorf("kept %d pixels, expected 200", got)
	}
}

func TestLabelConnectivity(t *testing.T) {
	g := raster.Grid{Width: 3, Height: 3, PixelWidth: 1, PixelHeight: 1}
	m := raster.NewMask(g)
	// diagonal line
	m.Data[0], m.Data[4], m.Data[8] = true, true, true

	if _, sizes := Label(m, false); len(sizes)-1 != 3 {
		t.Errorf("4-connected: %d components, expected 3", len(sizes)-1)
	}
	if _, sizes := Label(m, true); len(sizes)-1 != 1 || sizes[1] != 3 {
		t.Errorf("8-connected: sizes %v, expected one component of 3", sizes)
	}
}

func TestDilate(t *testing.T) {
	g := raster.Grid{Width: 5, Height: 5, PixelWidth: 10, PixelHeight: 10}
	m := raster.NewMask(g)
	m.Data[g.Index(2, 2)] = true

	out, err := Dilate(context.Background(), testEngine(), m, 1)
	if err != nil {
		t.Fatalf("Dilate: %v", err)
	}
	if out.Count() != 5 {
		t.Errorf("dilated to %d pixels, expected 5", out.Count())
	}
	if out.Data[g.Index(1, 1)] {
		t.Error("radius 1 circle must not reach the diagonal")
	}
}

func TestCleanerMasksLandCover(t *testing.T) {
	g := raster.Grid{Width: 20, Height: 20, PixelWidth: 10, PixelHeight: 10}
	m := raster.NewMask(g)
	for i := range m.Data {
		m.Data[i] = true
	}
	// tree cover in the left half
	lc := raster.Filled(g, 40)
	for row := 0; row < g.Height; row++ {
		for col := 0; col < 10; col++ {
			lc.Set(g.Index(col, row), LandCoverTree)
		}
	}

	out, err := NewCleaner(testEngine(), DefaultCleanupParams(), zap.NewNop().Sugar()).Clean(context.Background(), m, lc)
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	// the right half plus one dilated column
	if got := out.Count(); got != 20*11 {
		t.Errorf("kept %d pixels, expected %d", got, 20*11)
	}
	if out.Data[g.Index(0, 0)] {
		t.Error("tree cover pixel far from cropland should be removed")
	}
}

func TestErase(t *testing.T) {
	g := raster.Grid{Width: 3, Height: 1, PixelWidth: 10, PixelHeight: 10}
	m := &raster.Mask{Grid: g, Data: []bool{true, true, false}}
	ex := &raster.Mask{Grid: g, Data: []bool{false, true, true}}

	out, err := Erase(m, ex)
	if err != nil {
		t.Fatalf("Erase: %v", err)
	}
	if !out.Data[0] || out.Data[1] || out.Data[2] {
		t.Errorf("unexpected mask %v", out.Data)
	}
}

func TestAttribute(t *testing.T) {
	g := raster.Grid{Width: 4, Height: 1, PixelWidth: 10, PixelHeight: 10}
	m := &raster.Mask{Grid: g, Data: []bool{true, true, true, false}}

	longest, _ := raster.FromValues(g, []float64{2, 0, 3, 4})
	start, _ := raster.FromValues(g, []float64{0, 0, 100, 30})
	month, _ := raster.FromValues(g, []float64{10, 0, 11, 12})
	mmdd, _ := raster.FromValues(g, []float64{1001, 0, 1113, 1201})
	start.Unset(1)
	month.Unset(1)
	mmdd.Unset(1)

	a, err := Attribute(context.Background(), testEngine(), m, &streak.Result{
		LongestLength: longest, LongestStart: start, StartMonth: month, StartMonthDay: mmdd,
	})
	if err != nil {
		t.Fatalf("Attribute: %v", err)
	}

	// a classified pixel without a growth run stays classified
	for i, want := range m.Data {
		if a.Mask.Data[i] != want {
			t.Errorf("mask[%d] = %v, expected %v", i, a.Mask.Data[i], want)
		}
	}
	if a.Mask.Count() != 3 {
		t.Errorf("mask has %d pixels, expected 3", a.Mask.Count())
	}
	expectedAttributed := []bool{true, false, true, false}
	for i, want := range expectedAttributed {
		if a.StartMonthDay.Valid[i] != want {
			t.Errorf("MMDD valid[%d] = %v, expected %v", i, a.StartMonthDay.Valid[i], want)
		}
		if a.LongestLength.Valid[i] != want {
			t.Errorf("longest length valid[%d] = %v, expected %v", i, a.LongestLength.Valid[i], want)
		}
	}
	if v, _ := a.StartMonth.At(2); v != 11 {
		t.Errorf("start month = %v, expected 11", v)
	}
	if v, _ := a.GrowingSeason.At(0); v != SeasonEarly {
		t.Errorf("season of earliest pixel = %v, expected early", v)
	}
	if v, _ := a.GrowingSeason.At(2); v != SeasonLate {
		t.Errorf("season of latest pixel = %v, expected late", v)
	}
}

func TestGrowingSeason(t *testing.T) {
	g := raster.Grid{Width: 5, Height: 1, PixelWidth: 10, PixelHeight: 10}
	start, _ := raster.FromValues(g, []float64{0, 30, 50, 100, 0})
	start.Unset(4)

	classes, err := GrowingSeason(context.Background(), testEngine(), start)
	if err != nil {
		t.Fatalf("GrowingSeason: %v", err)
	}
	expected := []float64{SeasonEarly, SeasonEarly, SeasonMid, SeasonLate}
	for i, want := range expected {
		if v, ok := classes.At(i); !ok || v != want {
			t.Errorf("class[%d] = %v (%v), expected %v", i, v, ok, want)
		}
	}
	if classes.Valid[4] {
		t.Error("masked start date should stay unclassified")
	}
}
