package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// YAMLProvider implements ConfigProvider for YAML configuration files
type YAMLProvider struct {
	filename string
	config   *ConfigData
}

// NewYAMLProvider creates a new YAML configuration provider
func NewYAMLProvider(filename string) *YAMLProvider {
	return &YAMLProvider{
		filename: filename,
	}
}

// LoadConfig loads the complete configuration from YAML file
func (y *YAMLProvider) LoadConfig() (*ConfigData, error) {
	cfgFile, err := os.ReadFile(y.filename)
	if err != nil {
		return nil, err
	}

	config, err := Parse(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", y.filename, err)
	}

	y.config = config
	return config, nil
}

// Parse decodes a YAML document, applies defaults and validates the result.
func Parse(data []byte) (*ConfigData, error) {
	var config ConfigData
	if err := yaml.UnmarshalStrict(data, &config); err != nil {
		return nil, err
	}
	ApplyDefaults(&config)
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (y *YAMLProvider) loaded() (*ConfigData, error) {
	if y.config == nil {
		return y.LoadConfig()
	}
	return y.config, nil
}

// GetEngineConfig returns the engine configuration
func (y *YAMLProvider) GetEngineConfig() (*EngineData, error) {
	c, err := y.loaded()
	if err != nil {
		return nil, err
	}
	return &c.Engine, nil
}

// GetPipelineConfig returns the pipeline parameters
func (y *YAMLProvider) GetPipelineConfig() (*PipelineData, error) {
	c, err := y.loaded()
	if err != nil {
		return nil, err
	}
	return &c.Pipeline, nil
}

// GetAssetsConfig returns the asset locations
func (y *YAMLProvider) GetAssetsConfig() (*AssetsData, error) {
	c, err := y.loaded()
	if err != nil {
		return nil, err
	}
	return &c.Assets, nil
}

// GetStorageConfig returns storage configuration
func (y *YAMLProvider) GetStorageConfig() (*StorageData, error) {
	c, err := y.loaded()
	if err != nil {
		return nil, err
	}
	return &c.Storage, nil
}

// GetRESTConfig returns the REST server configuration
func (y *YAMLProvider) GetRESTConfig() (*RESTServerData, error) {
	c, err := y.loaded()
	if err != nil {
		return nil, err
	}
	return &c.REST, nil
}

// IsReadOnly returns true since YAML files are read-only through this interface
func (y *YAMLProvider) IsReadOnly() bool {
	return true
}

// Close is a no-op for YAML provider
func (y *YAMLProvider) Close() error {
	return nil
}
