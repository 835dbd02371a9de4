package config

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full pipeline configuration. It is built once per run
// and passed explicitly into every component; nothing reads it through
// package-level state.
type Config struct {
	Paths     PathsConfig     `yaml:"paths" mapstructure:"paths"`
	Reconcile ReconcileConfig `yaml:"reconcile" mapstructure:"reconcile"`
	Country   CountryConfig   `yaml:"country" mapstructure:"country"`
	Linker    LinkerConfig    `yaml:"linker" mapstructure:"linker"`
	Sorter    SorterConfig    `yaml:"sorter" mapstructure:"sorter"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// PathsConfig holds every directory root and static input file. All are
// overridable via LOANTAPE_PATHS_* environment variables.
type PathsConfig struct {
	BaseDir         string `yaml:"base_dir" mapstructure:"base_dir"`
	ECBDir          string `yaml:"ecb_dir" mapstructure:"ecb_dir"`
	ESMARawDir      string `yaml:"esma_raw_dir" mapstructure:"esma_raw_dir"`
	ESMAMergedDir   string `yaml:"esma_merged_dir" mapstructure:"esma_merged_dir"`
	MergedDir       string `yaml:"merged_dir" mapstructure:"merged_dir"`
	CountryDir      string `yaml:"country_dir" mapstructure:"country_dir"`
	SortedDir       string `yaml:"sorted_dir" mapstructure:"sorted_dir"`
	ScratchDir      string `yaml:"scratch_dir" mapstructure:"scratch_dir"`
	TemplatePath    string `yaml:"template_path" mapstructure:"template_path"`
	PoolMappingPath string `yaml:"pool_mapping_path" mapstructure:"pool_mapping_path"`
}

// ReconcileConfig configures the cross-source reconciler.
type ReconcileConfig struct {
	// LargePoolBytes is the compressed size above which a pool is
	// processed in chunked mode instead of in memory.
	LargePoolBytes int64 `yaml:"large_pool_bytes" mapstructure:"large_pool_bytes"`

	// MemorySafeBytes is the ceiling above which neither side of a
	// matched pool is loaded into memory.
	MemorySafeBytes int64 `yaml:"memory_safe_bytes" mapstructure:"memory_safe_bytes"`

	// ChunkRows sizes the re-stream chunks of the post-hoc dedup pass.
	ChunkRows int `yaml:"chunk_rows" mapstructure:"chunk_rows"`

	// LoadRetries bounds attempts per source file.
	LoadRetries int `yaml:"load_retries" mapstructure:"load_retries"`

	// OverlapPools lists the pools with verified temporal overlap between
	// the two sources. Only these pools are deduplicated.
	OverlapPools []string `yaml:"overlap_pools" mapstructure:"overlap_pools"`
}

// CountryConfig configures the country aggregator.
type CountryConfig struct {
	ChunkRows  int `yaml:"chunk_rows" mapstructure:"chunk_rows"`
	SampleRows int `yaml:"sample_rows" mapstructure:"sample_rows"`
}

// LinkerConfig configures the UE/Collateral linker.
type LinkerConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// SorterConfig configures the external sort engine contract.
type SorterConfig struct {
	// MemoryFraction of available RAM given to the engine cache.
	MemoryFraction float64 `yaml:"memory_fraction" mapstructure:"memory_fraction"`
	MinMemoryBytes int64   `yaml:"min_memory_bytes" mapstructure:"min_memory_bytes"`
	MaxMemoryBytes int64   `yaml:"max_memory_bytes" mapstructure:"max_memory_bytes"`
	InsertBatch    int     `yaml:"insert_batch" mapstructure:"insert_batch"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// OverlapSet returns the overlap pools as a set.
func (c ReconcileConfig) OverlapSet() map[string]bool {
	set := make(map[string]bool, len(c.OverlapPools))
	for _, p := range c.OverlapPools {
		set[p] = true
	}
	return set
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("LOANTAPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("paths.base_dir", "data")
	v.SetDefault("reconcile.large_pool_bytes", int64(100*1024*1024))
	v.SetDefault("reconcile.memory_safe_bytes", int64(500*1024*1024))
	v.SetDefault("reconcile.chunk_rows", 100000)
	v.SetDefault("reconcile.load_retries", 3)
	v.SetDefault("reconcile.overlap_pools", []string{
		"RMBMBE000095100120084",
		"RMBMFR000083100220149",
		"RMBMNL000185100120109",
	})
	v.SetDefault("country.chunk_rows", 100000)
	v.SetDefault("country.sample_rows", 100)
	v.SetDefault("linker.workers", 1)
	v.SetDefault("sorter.memory_fraction", 0.7)
	v.SetDefault("sorter.min_memory_bytes", int64(1*1024*1024*1024))
	v.SetDefault("sorter.max_memory_bytes", int64(64*1024*1024*1024))
	v.SetDefault("sorter.insert_batch", 500)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	cfg.applyPathDefaults()

	return &cfg, nil
}

// applyPathDefaults derives unset paths from the base directory, matching
// the upstream layout of the raw exports.
func (c *Config) applyPathDefaults() {
	base := c.Paths.BaseDir
	def := func(p *string, elems ...string) {
		if *p == "" {
			*p = filepath.Join(elems...)
		}
	}
	def(&c.Paths.ECBDir, base, "ECB_Data")
	def(&c.Paths.ESMARawDir, base, "ESMA_Raw")
	def(&c.Paths.ESMAMergedDir, base, "ESMA_UE_Collat_Merged")
	def(&c.Paths.MergedDir, base, "ECB_ESMA_MERGED")
	def(&c.Paths.CountryDir, base, "ECB_ESMA_BY_COUNTRY_ALL")
	def(&c.Paths.SortedDir, base, "ECB_ESMA_BY_COUNTRY_SORTED")
	def(&c.Paths.ScratchDir, base, "sort_scratch")
	def(&c.Paths.TemplatePath, base, "ESMA_Template.xlsx")
	def(&c.Paths.PoolMappingPath, base, "pool_mapping.json")
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
