package config

import (
	"io"
	"os"
	"runtime"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Algorithm names accepted by clustering.algorithm
const (
	AlgorithmLouvain   = "louvain"
	AlgorithmLabelProp = "labelprop"
)

// Config manages service configuration using Viper
type Config struct {
	v *viper.Viper
}

// NewConfig creates a new configuration with defaults
func NewConfig() *Config {
	v := viper.New()

	// Louvain parameters
	v.SetDefault("algorithm.max_levels", 50)
	v.SetDefault("algorithm.max_passes", 100)
	v.SetDefault("algorithm.min_modularity_gain", 1e-6)

	// Label propagation parameters
	v.SetDefault("labelprop.max_iterations", 100)

	// Similarity graph construction
	v.SetDefault("similarity.parallel", false)
	v.SetDefault("similarity.num_workers", runtime.NumCPU())
	v.SetDefault("similarity.chunk_size", 64)

	v.SetDefault("clustering.algorithm", AlgorithmLouvain)

	// Output
	v.SetDefault("output.dir", "output")
	v.SetDefault("output.write_graphs", true)
	v.SetDefault("output.write_partitions", true)
	v.SetDefault("output.write_community_graphs", false)
	v.SetDefault("output.write_report", true)

	// Logging parameters
	v.SetDefault("logging.level", "info")

	v.SetDefault("server.address", ":3002")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.max_jobs", 4)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.textfile", "")

	v.SetEnvPrefix("MORTALITY")
	v.AutomaticEnv()

	return &Config{v: v}
}

// LoadFromFile loads configuration from file
func (c *Config) LoadFromFile(path string) error {
	c.v.SetConfigFile(path)
	return c.v.ReadInConfig()
}

// Viper exposes the underlying store so CLI flags can be bound to keys.
func (c *Config) Viper() *viper.Viper { return c.v }

// Getters for Louvain parameters
func (c *Config) MaxLevels() int             { return c.v.GetInt("algorithm.max_levels") }
func (c *Config) MaxPasses() int             { return c.v.GetInt("algorithm.max_passes") }
func (c *Config) MinModularityGain() float64 { return c.v.GetFloat64("algorithm.min_modularity_gain") }

func (c *Config) LabelPropMaxIterations() int { return c.v.GetInt("labelprop.max_iterations") }

func (c *Config) SimilarityParallel() bool { return c.v.GetBool("similarity.parallel") }
func (c *Config) NumWorkers() int          { return c.v.GetInt("similarity.num_workers") }
func (c *Config) ChunkSize() int           { return c.v.GetInt("similarity.chunk_size") }

func (c *Config) Algorithm() string { return c.v.GetString("clustering.algorithm") }

func (c *Config) OutputDir() string          { return c.v.GetString("output.dir") }
func (c *Config) WriteGraphs() bool          { return c.v.GetBool("output.write_graphs") }
func (c *Config) WritePartitions() bool      { return c.v.GetBool("output.write_partitions") }
func (c *Config) WriteCommunityGraphs() bool { return c.v.GetBool("output.write_community_graphs") }
func (c *Config) WriteReport() bool          { return c.v.GetBool("output.write_report") }

func (c *Config) LogLevel() string { return c.v.GetString("logging.level") }

func (c *Config) ServerAddress() string    { return c.v.GetString("server.address") }
func (c *Config) AllowedOrigins() []string { return c.v.GetStringSlice("server.allowed_origins") }
func (c *Config) MaxJobs() int             { return c.v.GetInt("server.max_jobs") }

func (c *Config) MetricsEnabled() bool    { return c.v.GetBool("metrics.enabled") }
func (c *Config) MetricsTextfile() string { return c.v.GetString("metrics.textfile") }

// Set allows dynamic configuration changes
func (c *Config) Set(key string, value interface{}) {
	c.v.Set(key, value)
}

// CreateLogger creates a zerolog logger based on config
func (c *Config) CreateLogger() zerolog.Logger {
	return c.CreateLoggerTo(os.Stderr)
}

// CreateLoggerTo is CreateLogger with an explicit sink.
func (c *Config) CreateLoggerTo(out io.Writer) zerolog.Logger {
	level, err := zerolog.ParseLevel(c.LogLevel())
	if err != nil {
		level = zerolog.InfoLevel
	}

	return zerolog.New(zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: "15:04:05",
	}).Level(level).With().Timestamp().Str("service", "mortality-clustering").Logger()
}
