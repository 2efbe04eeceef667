package engine

import (
	"fmt"
	"math"
	"sort"

	"github.com/chrissnell/paddymap/internal/raster"
	"gonum.org/v1/gonum/floats"
)

// ReducerKind names a region reduction.
type ReducerKind string

const (
	// ReduceSum sums the values band.
	ReduceSum ReducerKind = "sum"
	// ReduceGroupedSum sums the values band per integer key of the groups band.
	ReduceGroupedSum ReducerKind = "grouped_sum"
	// ReduceMinMax returns the minimum and maximum of the values band.
	ReduceMinMax ReducerKind = "min_max"
)

// RegionRequest describes a blocking reduction over a region. It is also the
// wire body sent to remote reduction workers.
type RegionRequest struct {
	Kind   ReducerKind    `msgpack:"kind" json:"kind"`
	Values *raster.Raster `msgpack:"values" json:"values"`
	Groups *raster.Raster `msgpack:"groups,omitempty" json:"groups,omitempty"`
	Region *raster.Mask   `msgpack:"region,omitempty" json:"region,omitempty"`
}

// Validate checks the request shape.
func (r *RegionRequest) Validate() error {
	if r.Values == nil {
		return fmt.Errorf("region reduction %q has no values band", r.Kind)
	}
	switch r.Kind {
	case ReduceSum, ReduceMinMax:
	case ReduceGroupedSum:
		if r.Groups == nil {
			return fmt.Errorf("grouped reduction requires a groups band")
		}
		if !r.Groups.Grid.Equal(r.Values.Grid) {
			return raster.ErrGridMismatch
		}
	default:
		return fmt.Errorf("unknown reducer %q", r.Kind)
	}
	if r.Region != nil && !r.Region.Grid.Equal(r.Values.Grid) {
		return raster.ErrGridMismatch
	}
	return nil
}

// RegionResult holds the outcome of a reduction. Count is the number of
// pixels that contributed; zero means the region was empty or fully masked.
type RegionResult struct {
	Count  int               `msgpack:"count" json:"count"`
	Sum    float64           `msgpack:"sum" json:"sum"`
	Min    float64           `msgpack:"min" json:"min"`
	Max    float64           `msgpack:"max" json:"max"`
	Groups map[int64]float64 `msgpack:"groups,omitempty" json:"groups,omitempty"`
}

// GroupKeys returns the group keys in ascending order.
func (r *RegionResult) GroupKeys() []int64 {
	keys := make([]int64, 0, len(r.Groups))
	for k := range r.Groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// rowPartial is the reduction of a single grid row. Rows are the unit of
// accumulation so that merged results do not depend on how rows were tiled.
type rowPartial struct {
	count  int
	sum    float64
	min    float64
	max    float64
	groups map[int64]float64
}

func reduceRow(req *RegionRequest, row int) rowPartial {
	g := req.Values.Grid
	p := rowPartial{min: math.Inf(1), max: math.Inf(-1)}
	if req.Kind == ReduceGroupedSum {
		p.groups = make(map[int64]float64)
	}
	for col := 0; col < g.Width; col++ {
		i := g.Index(col, row)
		if req.Region != nil && !req.Region.Data[i] {
			continue
		}
		v, ok := req.Values.At(i)
		if !ok {
			continue
		}
		switch req.Kind {
		case ReduceGroupedSum:
			key, ok := req.Groups.At(i)
			if !ok {
				continue
			}
			p.groups[int64(math.Round(key))] += v
			p.sum += v
		case ReduceMinMax:
			p.min = math.Min(p.min, v)
			p.max = math.Max(p.max, v)
		default:
			p.sum += v
		}
		p.count++
	}
	return p
}

// mergeRows folds row partials in row order.
func mergeRows(kind ReducerKind, rows []rowPartial) *RegionResult {
	res := &RegionResult{Min: math.Inf(1), Max: math.Inf(-1)}
	sums := make([]float64, len(rows))
	groupSums := make(map[int64][]float64)
	for i, p := range rows {
		res.Count += p.count
		sums[i] = p.sum
		res.Min = math.Min(res.Min, p.min)
		res.Max = math.Max(res.Max, p.max)
		for k, v := range p.groups {
			groupSums[k] = append(groupSums[k], v)
		}
	}
	res.Sum = floats.Sum(sums)
	if kind == ReduceGroupedSum {
		res.Groups = make(map[int64]float64, len(groupSums))
		for k, vs := range groupSums {
			res.Groups[k] = floats.Sum(vs)
		}
	}
	if res.Count == 0 {
		res.Min, res.Max = 0, 0
	}
	return res
}

// ReduceSequential evaluates req on the calling goroutine. Remote workers use
// it to serve reductions.
func ReduceSequential(req *RegionRequest) (*RegionResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	rows := make([]rowPartial, req.Values.Grid.Height)
	for row := range rows {
		rows[row] = reduceRow(req, row)
	}
	return mergeRows(req.Kind, rows), nil
}
