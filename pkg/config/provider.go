package config

import (
	"time"
)

// ConfigProvider defines the interface for configuration data sources
type ConfigProvider interface {
	// Load complete configuration
	LoadConfig() (*ConfigData, error)

	// Get specific configuration sections
	GetEngineConfig() (*EngineData, error)
	GetPipelineConfig() (*PipelineData, error)
	GetAssetsConfig() (*AssetsData, error)
	GetStorageConfig() (*StorageData, error)
	GetRESTConfig() (*RESTServerData, error)

	IsReadOnly() bool
	Close() error
}

// ConfigData represents the complete configuration structure
type ConfigData struct {
	Engine   EngineData     `yaml:"engine" json:"engine"`
	Pipeline PipelineData   `yaml:"pipeline" json:"pipeline"`
	Assets   AssetsData     `yaml:"assets" json:"assets"`
	Storage  StorageData    `yaml:"storage,omitempty" json:"storage,omitempty"`
	REST     RESTServerData `yaml:"rest,omitempty" json:"rest,omitempty"`
}

// EngineData configures the raster engine and its region reductions
type EngineData struct {
	Workers          int           `yaml:"workers,omitempty" json:"workers,omitempty"`
	TileRows         int           `yaml:"tile-rows,omitempty" json:"tile_rows,omitempty"`
	ReduceTimeout    time.Duration `yaml:"reduce-timeout,omitempty" json:"reduce_timeout,omitempty"`
	ReduceRetries    int           `yaml:"reduce-retries,omitempty" json:"reduce_retries,omitempty"`
	ReduceBackoff    time.Duration `yaml:"reduce-backoff,omitempty" json:"reduce_backoff,omitempty"`
	RemoteReducerURL string        `yaml:"remote-reducer-url,omitempty" json:"remote_reducer_url,omitempty"`
}

// PipelineData holds the algorithm parameters of a run
type PipelineData struct {
	SpeckleRadius     int     `yaml:"speckle-radius,omitempty" json:"speckle_radius,omitempty"`
	ENL               float64 `yaml:"enl,omitempty" json:"enl,omitempty"`
	KernelRadius      int     `yaml:"kernel-radius,omitempty" json:"kernel_radius,omitempty"`
	MinObjectAreaM2   float64 `yaml:"min-object-area-m2,omitempty" json:"min_object_area_m2,omitempty"`
	EightConnected    bool    `yaml:"eight-connected,omitempty" json:"eight_connected,omitempty"`
	RoadBufferM       float64 `yaml:"road-buffer-m,omitempty" json:"road_buffer_m,omitempty"`
	SeasonStartMonth  int     `yaml:"season-start-month,omitempty" json:"season_start_month,omitempty"`
	ExcludedLandCover []int   `yaml:"excluded-landcover,omitempty" json:"excluded_landcover,omitempty"`
}

// AssetsData locates the input layers
type AssetsData struct {
	AOIs      map[string]string `yaml:"aois" json:"aois"`
	Points    string            `yaml:"points" json:"points"`
	Roads     string            `yaml:"roads,omitempty" json:"roads,omitempty"`
	Water     string            `yaml:"water,omitempty" json:"water,omitempty"`
	LandCover string            `yaml:"landcover,omitempty" json:"landcover,omitempty"`
	Scenes    string            `yaml:"scenes" json:"scenes"`
}

// StorageData holds the configuration for the optional persistence backends
type StorageData struct {
	Cache   string `yaml:"cache,omitempty" json:"cache,omitempty"`
	Results string `yaml:"results,omitempty" json:"results,omitempty"`
}

// RESTServerData configures the REST API
type RESTServerData struct {
	Cert       string `yaml:"cert,omitempty" json:"cert,omitempty"`
	Key        string `yaml:"key,omitempty" json:"key,omitempty"`
	Port       int    `yaml:"port,omitempty" json:"port,omitempty"`
	ListenAddr string `yaml:"listen-addr,omitempty" json:"listen_addr,omitempty"`

	// RetainedResults bounds how many finished run results are held in memory.
	RetainedResults int `yaml:"retained-results,omitempty" json:"retained_results,omitempty"`
}
