package raster

import (
	"math"
	"path/filepath"
	"testing"
	"time"
)

// The encoding is unsigned, so the round trip holds on [0, 1] only. Negative
// inputs clamp to zero; see the clamping cases in TestEncodeFixed.
func TestFixedRoundTrip(t *testing.T) {
	for x := 0.0; x <= 1.0; x += 0.00037 {
		got := DecodeFixed(EncodeFixed(x))
		if math.Abs(got-x) >= 1e-4 {
			t.Fatalf("round trip of %v gave %v", x, got)
		}
	}
}

func TestEncodeFixed(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want uint16
	}{
		{"zero", 0, 0},
		{"truncates", 0.12349, 1234},
		{"one", 1, 10000},
		{"negative clamps", -0.5, 0},
		{"overflow clamps", 7, math.MaxUint16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EncodeFixed(tt.in); got != tt.want {
				t.Errorf("EncodeFixed(%v) = %d, expected %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestGridPixelArea(t *testing.T) {
	projected := Grid{Width: 4, Height: 4, PixelWidth: 10, PixelHeight: 10}
	if a := projected.PixelArea(2); a != 100 {
		t.Errorf("projected pixel area = %v, expected 100", a)
	}

	// 10m-ish pixels near the equator and at 60N
	equator := Grid{Width: 2, Height: 2, OriginX: 80, OriginY: 0.0001, PixelWidth: 0.0001, PixelHeight: 0.0001, Geographic: true}
	north := Grid{Width: 2, Height: 2, OriginX: 80, OriginY: 60, PixelWidth: 0.0001, PixelHeight: 0.0001, Geographic: true}

	ae := equator.PixelArea(0)
	an := north.PixelArea(0)
	if ae < 110 || ae > 130 {
		t.Errorf("equatorial pixel area = %v, expected ~123", ae)
	}
	if an >= ae*0.6 {
		t.Errorf("area at 60N (%v) should be about half the equatorial area (%v)", an, ae)
	}
}

func TestGridPixelOf(t *testing.T) {
	g := Grid{Width: 3, Height: 2, OriginX: 100, OriginY: 50, PixelWidth: 10, PixelHeight: 10}

	col, row, ok := g.PixelOf(g.PixelCenter(2, 1))
	if !ok || col != 2 || row != 1 {
		t.Errorf("PixelOf(center(2,1)) = (%d,%d,%v)", col, row, ok)
	}

	if _, _, ok := g.PixelOf(g.PixelCenter(3, 0)); ok {
		t.Error("expected point east of the grid to be outside")
	}
}

func TestSetMasksNonFinite(t *testing.T) {
	r := New(Grid{Width: 2, Height: 1, PixelWidth: 1, PixelHeight: 1})
	r.Set(0, math.NaN())
	r.Set(1, math.Inf(1))
	if r.ValidCount() != 0 {
		t.Errorf("expected non-finite values to be masked, got %d valid", r.ValidCount())
	}
}

func TestSceneFileRoundTrip(t *testing.T) {
	g := Grid{Width: 2, Height: 2, PixelWidth: 10, PixelHeight: 10}
	vv, _ := FromValues(g, []float64{0.1, 0.2, 0.3, 0.4})
	vh, _ := FromValues(g, []float64{0.01, 0.02, 0.03, 0.04})
	s := &Scene{
		ID:            "S1A_TEST",
		Time:          time.Date(2024, 11, 3, 0, 31, 0, 0, time.UTC),
		Mode:          "IW",
		Polarizations: []string{"VV", "VH"},
		ResolutionM:   10,
		VV:            vv,
		VH:            vh,
	}

	path := filepath.Join(t.TempDir(), "scene.msgpack")
	if err := WriteScene(path, s); err != nil {
		t.Fatalf("WriteScene: %v", err)
	}

	info, err := ReadSceneInfo(path)
	if err != nil {
		t.Fatalf("ReadSceneInfo: %v", err)
	}
	if info.ID != s.ID || !info.Time.Equal(s.Time) || !info.Grid.Equal(g) {
		t.Errorf("header mismatch: %+v", info)
	}

	got, err := ReadScene(path)
	if err != nil {
		t.Fatalf("ReadScene: %v", err)
	}
	if got.VH.Data[3] != 0.04 || !got.VV.Valid[0] {
		t.Errorf("payload mismatch: %+v", got.VH)
	}
}
