package raster

import "math"

// FixedScale is the multiplier of the unsigned 16-bit fixed-point encoding
// used to exchange composites between stages.
const FixedScale = 10000

// EncodeFixed converts an index value to its fixed-point representation,
// truncating towards negative infinity and clamping to the uint16 range.
func EncodeFixed(x float64) uint16 {
	v := math.Floor(x * FixedScale)
	switch {
	case v <= 0:
		return 0
	case v >= math.MaxUint16:
		return math.MaxUint16
	}
	return uint16(v)
}

// DecodeFixed converts a fixed-point value back to index units.
func DecodeFixed(y uint16) float64 {
	return float64(y) / FixedScale
}

// FixedRaster is the uint16 form of a Raster. It is what composites look like
// on disk, in the cache and on the wire.
type FixedRaster struct {
	Grid  Grid     `msgpack:"grid" json:"grid"`
	Data  []uint16 `msgpack:"data" json:"data"`
	Valid []bool   `msgpack:"valid" json:"valid"`
}

// ToFixed encodes r. Masked pixels stay masked.
func ToFixed(r *Raster) *FixedRaster {
	f := &FixedRaster{
		Grid:  r.Grid,
		Data:  make([]uint16, len(r.Data)),
		Valid: make([]bool, len(r.Valid)),
	}
	for i, v := range r.Data {
		if r.Valid[i] {
			f.Data[i] = EncodeFixed(v)
			f.Valid[i] = true
		}
	}
	return f
}

// Quantize rounds r through the fixed-point encoding while keeping values in
// raw fixed-point units (v×10000 truncated), which is the unit classification
// thresholds are expressed in.
func Quantize(r *Raster) *Raster {
	out := New(r.Grid)
	for i, v := range r.Data {
		if r.Valid[i] {
			out.Set(i, float64(EncodeFixed(v)))
		}
	}
	return out
}

// Float returns the fixed-point values as a float raster without rescaling.
func (f *FixedRaster) Float() *Raster {
	r := New(f.Grid)
	for i, v := range f.Data {
		if f.Valid[i] {
			r.Set(i, float64(v))
		}
	}
	return r
}

// Decode returns the raster in index units.
func (f *FixedRaster) Decode() *Raster {
	r := New(f.Grid)
	for i, v := range f.Data {
		if f.Valid[i] {
			r.Set(i, DecodeFixed(v))
		}
	}
	return r
}
