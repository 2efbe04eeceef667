package engine

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Offset is one kernel tap relative to the centre pixel.
type Offset struct {
	DX, DY int
}

// Kernel is a set of neighbourhood taps. The centre (0,0) is included when the
// kernel covers it.
type Kernel struct {
	Name    string
	Offsets []Offset
}

// Square returns the (2r+1)x(2r+1) square kernel.
func Square(r int) Kernel {
	k := Kernel{Name: "square"}
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			k.Offsets = append(k.Offsets, Offset{dx, dy})
		}
	}
	return k
}

// Circle returns every tap within Euclidean distance r of the centre. Radius 1
// is the 4-neighbourhood plus the centre.
func Circle(r int) Kernel {
	k := Kernel{Name: "circle"}
	limit := float64(r) + 1e-9
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if math.Hypot(float64(dx), float64(dy)) <= limit {
				k.Offsets = append(k.Offsets, Offset{dx, dy})
			}
		}
	}
	return k
}

// Focal reduces the present values inside a kernel window. Window taps that
// fall outside the grid or on masked pixels are not passed in.
type Focal interface {
	Outputs() int
	Reduce(values []float64, out []float64, outOK []bool)
}

// MeanVariance yields the window mean and population variance.
type MeanVariance struct{}

func (MeanVariance) Outputs() int { return 2 }

func (MeanVariance) Reduce(values []float64, out []float64, outOK []bool) {
	if len(values) == 0 {
		outOK[0], outOK[1] = false, false
		return
	}
	out[0], out[1] = stat.PopMeanVariance(values, nil)
	outOK[0], outOK[1] = true, true
}

// FocalMax yields the window maximum. On a self-masked binary raster this is
// a morphological dilation.
type FocalMax struct{}

func (FocalMax) Outputs() int { return 1 }

func (FocalMax) Reduce(values []float64, out []float64, outOK []bool) {
	if len(values) == 0 {
		outOK[0] = false
		return
	}
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	out[0], outOK[0] = m, true
}
