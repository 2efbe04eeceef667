package config

import (
	"errors"
	"fmt"
	"time"
)

// Defaults for unset configuration values.
const (
	DefaultTileRows         = 64
	DefaultReduceTimeout    = 2 * time.Minute
	DefaultReduceRetries    = 3
	DefaultReduceBackoff    = time.Second
	DefaultSpeckleRadius    = 2
	DefaultENL              = 4.0
	DefaultKernelRadius     = 1
	DefaultMinObjectAreaM2  = 10000.0
	DefaultRoadBufferM      = 3.0
	DefaultSeasonStartMonth = 10
	DefaultRESTPort         = 8080
	DefaultRetainedResults  = 32
)

// DefaultExcludedLandCover holds the tree cover and built-up classes.
var DefaultExcludedLandCover = []int{10, 50}

// ApplyDefaults fills every unset value of c.
func ApplyDefaults(c *ConfigData) {
	if c.Engine.TileRows == 0 {
		c.Engine.TileRows = DefaultTileRows
	}
	if c.Engine.ReduceTimeout == 0 {
		c.Engine.ReduceTimeout = DefaultReduceTimeout
	}
	if c.Engine.ReduceRetries == 0 {
		c.Engine.ReduceRetries = DefaultReduceRetries
	}
	if c.Engine.ReduceBackoff == 0 {
		c.Engine.ReduceBackoff = DefaultReduceBackoff
	}

	p := &c.Pipeline
	if p.SpeckleRadius == 0 {
		p.SpeckleRadius = DefaultSpeckleRadius
	}
	if p.ENL == 0 {
		p.ENL = DefaultENL
	}
	if p.KernelRadius == 0 {
		p.KernelRadius = DefaultKernelRadius
	}
	if p.MinObjectAreaM2 == 0 {
		p.MinObjectAreaM2 = DefaultMinObjectAreaM2
	}
	if p.RoadBufferM == 0 {
		p.RoadBufferM = DefaultRoadBufferM
	}
	if p.SeasonStartMonth == 0 {
		p.SeasonStartMonth = DefaultSeasonStartMonth
	}
	if p.ExcludedLandCover == nil {
		p.ExcludedLandCover = append([]int(nil), DefaultExcludedLandCover...)
	}

	if c.REST.Port == 0 {
		c.REST.Port = DefaultRESTPort
	}
	if c.REST.RetainedResults <= 0 {
		c.REST.RetainedResults = DefaultRetainedResults
	}
}

// Validate checks values that defaults cannot repair.
func (c *ConfigData) Validate() error {
	if len(c.Assets.AOIs) == 0 {
		return errors.New("assets: at least one AOI is required")
	}
	if c.Assets.Points == "" {
		return errors.New("assets: a sample point layer is required")
	}
	if c.Assets.Scenes == "" {
		return errors.New("assets: a scene directory is required")
	}
	if m := c.Pipeline.SeasonStartMonth; m < 1 || m > 12 {
		return fmt.Errorf("pipeline: season-start-month %d is not a month", m)
	}
	if c.Pipeline.ENL < 0 || c.Pipeline.SpeckleRadius < 0 || c.Pipeline.KernelRadius < 0 {
		return errors.New("pipeline: speckle and kernel parameters must not be negative")
	}
	if c.Engine.ReduceRetries < 0 {
		return errors.New("engine: reduce-retries must not be negative")
	}
	return nil
}
