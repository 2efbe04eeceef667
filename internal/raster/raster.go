package raster

import (
	"fmt"
	"math"
)

// Raster is a single float band over a Grid. A pixel with Valid[i] == false
// is absent: it carries no value and is excluded from every reduction.
type Raster struct {
	Grid  Grid      `msgpack:"grid" json:"grid"`
	Data  []float64 `msgpack:"data" json:"data"`
	Valid []bool    `msgpack:"valid" json:"valid"`
}

// New returns a raster over g with every pixel masked.
func New(g Grid) *Raster {
	return &Raster{
		Grid:  g,
		Data:  make([]float64, g.Len()),
		Valid: make([]bool, g.Len()),
	}
}

// Filled returns a raster over g with every pixel valid and set to v.
func Filled(g Grid, v float64) *Raster {
	r := New(g)
	for i := range r.Data {
		r.Data[i] = v
		r.Valid[i] = true
	}
	return r
}

// FromValues builds a fully valid raster from row-major values.
func FromValues(g Grid, values []float64) (*Raster, error) {
	if len(values) != g.Len() {
		return nil, fmt.Errorf("got %d values for a %dx%d grid", len(values), g.Width, g.Height)
	}
	r := New(g)
	for i, v := range values {
		r.Set(i, v)
	}
	return r, nil
}

// At returns the value at linear index i and whether it is present.
func (r *Raster) At(i int) (float64, bool) {
	return r.Data[i], r.Valid[i]
}

// Set stores v at i. Non-finite values mask the pixel instead.
func (r *Raster) Set(i int, v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		r.Data[i] = 0
		r.Valid[i] = false
		return
	}
	r.Data[i] = v
	r.Valid[i] = true
}

// Unset masks pixel i.
func (r *Raster) Unset(i int) {
	r.Data[i] = 0
	r.Valid[i] = false
}

// Clone returns a deep copy.
func (r *Raster) Clone() *Raster {
	c := &Raster{
		Grid:  r.Grid,
		Data:  make([]float64, len(r.Data)),
		Valid: make([]bool, len(r.Valid)),
	}
	copy(c.Data, r.Data)
	copy(c.Valid, r.Valid)
	return c
}

// ValidCount returns the number of present pixels.
func (r *Raster) ValidCount() int {
	n := 0
	for _, ok := range r.Valid {
		if ok {
			n++
		}
	}
	return n
}

// UpdateMask returns a copy of r with every pixel outside m masked.
func (r *Raster) UpdateMask(m *Mask) (*Raster, error) {
	if !r.Grid.Equal(m.Grid) {
		return nil, ErrGridMismatch
	}
	out := r.Clone()
	for i, keep := range m.Data {
		if !keep {
			out.Unset(i)
		}
	}
	return out, nil
}

// Mask is a boolean band. It doubles as the classification raster exposed to
// collaborators.
type Mask struct {
	Grid Grid   `msgpack:"grid" json:"grid"`
	Data []bool `msgpack:"data" json:"data"`
}

// NewMask returns an all-false mask over g.
func NewMask(g Grid) *Mask {
	return &Mask{Grid: g, Data: make([]bool, g.Len())}
}

// Count returns the number of set pixels.
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.Data {
		if v {
			n++
		}
	}
	return n
}

// Clone returns a deep copy.
func (m *Mask) Clone() *Mask {
	c := &Mask{Grid: m.Grid, Data: make([]bool, len(m.Data))}
	copy(c.Data, m.Data)
	return c
}

// And returns the pixelwise conjunction of m and o.
func (m *Mask) And(o *Mask) (*Mask, error) {
	if !m.Grid.Equal(o.Grid) {
		return nil, ErrGridMismatch
	}
	out := NewMask(m.Grid)
	for i := range m.Data {
		out.Data[i] = m.Data[i] && o.Data[i]
	}
	return out, nil
}

// Or returns the pixelwise disjunction of m and o.
func (m *Mask) Or(o *Mask) (*Mask, error) {
	if !m.Grid.Equal(o.Grid) {
		return nil, ErrGridMismatch
	}
	out := NewMask(m.Grid)
	for i := range m.Data {
		out.Data[i] = m.Data[i] || o.Data[i]
	}
	return out, nil
}

// Not returns the pixelwise negation of m.
func (m *Mask) Not() *Mask {
	out := NewMask(m.Grid)
	for i, v := range m.Data {
		out.Data[i] = !v
	}
	return out
}

// AsRaster converts the mask to a 1/absent raster (a self-masked image).
func (m *Mask) AsRaster() *Raster {
	r := New(m.Grid)
	for i, v := range m.Data {
		if v {
			r.Set(i, 1)
		}
	}
	return r
}

// MaskOf returns a mask that is true where r is present and non-zero.
func MaskOf(r *Raster) *Mask {
	m := NewMask(r.Grid)
	for i := range r.Data {
		m.Data[i] = r.Valid[i] && r.Data[i] != 0
	}
	return m
}

// SameGrid returns ErrGridMismatch unless every raster shares the grid of the
// first one.
func SameGrid(rs ...*Raster) error {
	for _, r := range rs[1:] {
		if !r.Grid.Equal(rs[0].Grid) {
			return ErrGridMismatch
		}
	}
	return nil
}

// PixelAreas returns a raster holding the ground area in square metres of
// every pixel of g.
func PixelAreas(g Grid) *Raster {
	r := New(g)
	for row := 0; row < g.Height; row++ {
		area := g.PixelArea(row)
		for col := 0; col < g.Width; col++ {
			r.Set(g.Index(col, row), area)
		}
	}
	return r
}
