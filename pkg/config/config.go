package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	SQLite   SQLiteConfig
	Redis    RedisConfig
	Storage  StorageConfig
	Paths    PathsConfig
	Pipeline PipelineConfig
	Split    SplitConfig
	Window   WindowConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int `validate:"gt=0,lt=65536"`
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
	// RunsPerMinute bounds run requests per client; 0 disables the limit.
	RunsPerMinute int `validate:"gte=0"`
	Development   bool
	AccessLog     bool
}

type SQLiteConfig struct {
	Path string `validate:"required"`
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	TTLSec   int `validate:"gte=0"`
}

type StorageConfig struct {
	Backend  string `validate:"oneof=local s3"`
	Root     string
	Bucket   string `validate:"required_if=Backend s3"`
	Region   string
	Endpoint string
}

// PathsConfig holds artifact key prefixes, relative to the storage root or bucket.
type PathsConfig struct {
	Metrics string `validate:"required"`
	Events  string `validate:"required"`
	Models  string `validate:"required"`
	Output  string `validate:"required"`
}

type PipelineConfig struct {
	SamplesPerDay    int     `validate:"gt=0"`
	MinutesPerSample int     `validate:"gt=0"`
	DaysPerCycle     int     `validate:"gt=0"`
	Periods          []int   `validate:"min=1,dive,gt=0"`
	ClipCeiling      float64 `validate:"gt=0"`
	ClipSoftness     float64 `validate:"gte=0"`
	MetricKind       string  `validate:"required"`
	EventTypes       []string
	// Targets is the number of leading columns forecast at predict time; 0 means every metric column.
	Targets int `validate:"gte=0"`
}

type SplitConfig struct {
	SampleSize int `validate:"gt=0"`
	Cycles     int `validate:"gt=0"`
	StepSize   int `validate:"gt=0"`
}

type WindowConfig struct {
	Steps     int `validate:"gt=0"`
	BatchSize int `validate:"gt=0"`
}

type LoggingConfig struct {
	Level      string
	Format     string `validate:"oneof=json console"`
	OutputPath string
}

var validate = validator.New()

func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile reads configuration from path, or from the default search paths when path is empty.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/forecaster")
	}

	v.SetEnvPrefix("FORECASTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

const minutesPerDay = 24 * 60

func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if covered := c.Pipeline.SamplesPerDay * c.Pipeline.MinutesPerSample; covered != minutesPerDay {
		return fmt.Errorf("invalid config: pipeline samplesPerDay x minutesPerSample covers %d minutes, want %d",
			covered, minutesPerDay)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 300)
	v.SetDefault("server.bodyLimit", 10485760)
	v.SetDefault("server.runsPerMinute", 6)
	v.SetDefault("server.development", false)
	v.SetDefault("server.accessLog", true)

	v.SetDefault("sqlite.path", "./data/records.db")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttlSec", 86400)

	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.root", ".")
	v.SetDefault("storage.region", "us-east-1")

	v.SetDefault("paths.metrics", "metrics/relax")
	v.SetDefault("paths.events", "metrics/events")
	v.SetDefault("paths.models", "models")
	v.SetDefault("paths.output", "predictions")

	v.SetDefault("pipeline.samplesPerDay", 96)
	v.SetDefault("pipeline.minutesPerSample", 15)
	v.SetDefault("pipeline.daysPerCycle", 7)
	v.SetDefault("pipeline.periods", []int{1, 3, 6, 12, 24, 7 * 24})
	v.SetDefault("pipeline.clipCeiling", 15.0)
	v.SetDefault("pipeline.clipSoftness", 0.2)
	v.SetDefault("pipeline.metricKind", "relax")
	v.SetDefault("pipeline.eventTypes", []string{"error", "warning"})
	v.SetDefault("pipeline.targets", 0)

	v.SetDefault("split.sampleSize", 96)
	v.SetDefault("split.cycles", 3)
	v.SetDefault("split.stepSize", 2)

	v.SetDefault("window.steps", 96)
	v.SetDefault("window.batchSize", 32)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}
