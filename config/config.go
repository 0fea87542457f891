package config

import (
	"github.com/dustin/go-humanize"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v2"
)

const (
	// EvictionPolicyLRU evicts the least-recently-used page
	EvictionPolicyLRU = "lru"
	// EvictionPolicyLFU evicts the least-frequently-used page
	EvictionPolicyLFU = "lfu"

	// PageSizeDefault is the default maximum bytes per page
	PageSizeDefault int64 = 1024 * 1024 // 1MiB
	// CacheSizeDefault is the default raw byte budget
	CacheSizeDefault int64 = 512 * 1024 * 1024 // 512MiB
	// OverheadRatioDefault is the default storage overhead per stored byte
	OverheadRatioDefault float64 = 0.05

	DataRootPathDefault string = "/tmp/pagecache"
)

// Config holds the cache configuration
type Config struct {
	DataRootPath   string
	PageSize       int64
	CacheSize      int64
	EvictionPolicy string
	OverheadRatio  float64
}

// yamlConfig is the on-disk form; byte sizes accept human-readable values
// such as "512MB"
type yamlConfig struct {
	DataRootPath   string  `yaml:"data_root"`
	PageSize       string  `yaml:"page_size"`
	CacheSize      string  `yaml:"cache_size"`
	EvictionPolicy string  `yaml:"eviction_policy"`
	OverheadRatio  float64 `yaml:"overhead_ratio"`
}

// NewDefaultConfig creates a new Config with default values
func NewDefaultConfig() *Config {
	return &Config{
		DataRootPath:   DataRootPathDefault,
		PageSize:       PageSizeDefault,
		CacheSize:      CacheSizeDefault,
		EvictionPolicy: EvictionPolicyLRU,
		OverheadRatio:  OverheadRatioDefault,
	}
}

// NewConfigFromYAML creates a Config from YAML. Unset keys keep their
// default values.
func NewConfigFromYAML(yamlBytes []byte) (*Config, error) {
	rawConfig := yamlConfig{}
	err := yaml.Unmarshal(yamlBytes, &rawConfig)
	if err != nil {
		return nil, xerrors.Errorf("failed to unmarshal yaml: %w", err)
	}

	config := NewDefaultConfig()

	if len(rawConfig.DataRootPath) > 0 {
		config.DataRootPath = rawConfig.DataRootPath
	}

	if len(rawConfig.PageSize) > 0 {
		pageSize, err := humanize.ParseBytes(rawConfig.PageSize)
		if err != nil {
			return nil, xerrors.Errorf("failed to parse page_size %q: %w", rawConfig.PageSize, err)
		}
		config.PageSize = int64(pageSize)
	}

	if len(rawConfig.CacheSize) > 0 {
		cacheSize, err := humanize.ParseBytes(rawConfig.CacheSize)
		if err != nil {
			return nil, xerrors.Errorf("failed to parse cache_size %q: %w", rawConfig.CacheSize, err)
		}
		config.CacheSize = int64(cacheSize)
	}

	if len(rawConfig.EvictionPolicy) > 0 {
		config.EvictionPolicy = rawConfig.EvictionPolicy
	}

	if rawConfig.OverheadRatio > 0 {
		config.OverheadRatio = rawConfig.OverheadRatio
	}

	err = config.Validate()
	if err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (config *Config) Validate() error {
	if len(config.DataRootPath) == 0 {
		return xerrors.Errorf("data root path is not given")
	}

	if config.PageSize <= 0 {
		return xerrors.Errorf("page size %d must be positive", config.PageSize)
	}

	if config.CacheSize < config.PageSize {
		return xerrors.Errorf("cache size %d must not be smaller than page size %d", config.CacheSize, config.PageSize)
	}

	if config.EvictionPolicy != EvictionPolicyLRU && config.EvictionPolicy != EvictionPolicyLFU {
		return xerrors.Errorf("unknown eviction policy %q", config.EvictionPolicy)
	}

	if config.OverheadRatio < 0 {
		return xerrors.Errorf("overhead ratio %f must not be negative", config.OverheadRatio)
	}

	return nil
}
