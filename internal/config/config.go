package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"dicommart/pkg/contracts/domain"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "DICOMMART"

// Config represents the complete application configuration
type Config struct {
	Source    SourceConfig    `yaml:"source" envconfig:"SOURCE"`
	Paths     PathsConfig     `yaml:"paths" envconfig:"PATHS"`
	Pipeline  PipelineConfig  `yaml:"pipeline" envconfig:"PIPELINE"`
	Logging   LoggingConfig   `yaml:"logging" envconfig:"LOGGING"`
	Server    ServerConfig    `yaml:"server" envconfig:"SERVER"`
	Telemetry TelemetryConfig `yaml:"telemetry" envconfig:"TELEMETRY"`
	Notify    NotifyConfig    `yaml:"notify" envconfig:"NOTIFY"`
	Catalog   CatalogConfig   `yaml:"catalog" envconfig:"CATALOG"`
}

// SourceConfig describes where raw objects are listed and fetched from.
// Credentials are optional; the AWS default chain is used when empty.
type SourceConfig struct {
	Driver          string  `yaml:"driver" envconfig:"DRIVER" validate:"oneof=s3 fs"`
	Bucket          string  `yaml:"bucket" envconfig:"BUCKET" validate:"required_if=Driver s3"`
	Region          string  `yaml:"region" envconfig:"REGION"`
	Endpoint        string  `yaml:"endpoint" envconfig:"ENDPOINT" validate:"omitempty,url"`
	PathStyle       bool    `yaml:"path_style" envconfig:"PATH_STYLE"`
	AccessKeyID     string  `yaml:"access_key_id" envconfig:"ACCESS_KEY_ID"`
	SecretAccessKey string  `yaml:"secret_access_key" envconfig:"SECRET_ACCESS_KEY"`
	SessionToken    string  `yaml:"session_token" envconfig:"SESSION_TOKEN"`
	Root            string  `yaml:"root" envconfig:"ROOT" validate:"required_if=Driver fs"`
	Prefix          string  `yaml:"prefix" envconfig:"PREFIX"`
	RateLimit       float64 `yaml:"rate_limit" envconfig:"RATE_LIMIT" validate:"gte=0"`
	Burst           int     `yaml:"burst" envconfig:"BURST" validate:"gte=0"`
}

// PathsConfig contains file system paths configuration
type PathsConfig struct {
	TransformedDir string `yaml:"transformed_dir" envconfig:"TRANSFORMED_DIR" validate:"required"`
	DatamartDir    string `yaml:"datamart_dir" envconfig:"DATAMART_DIR" validate:"required"`
	SummaryFile    string `yaml:"summary_file" envconfig:"SUMMARY_FILE" validate:"required"`
	WorkbookFile   string `yaml:"workbook_file" envconfig:"WORKBOOK_FILE"`
	LedgerFile     string `yaml:"ledger_file" envconfig:"LEDGER_FILE"`
	PublishBucket  string `yaml:"publish_bucket" envconfig:"PUBLISH_BUCKET"`
	PublishPrefix  string `yaml:"publish_prefix" envconfig:"PUBLISH_PREFIX"`
}

// PipelineConfig tunes a run.
type PipelineConfig struct {
	Workers  int           `yaml:"workers" envconfig:"WORKERS" validate:"gte=1"`
	Timeout  time.Duration `yaml:"timeout" envconfig:"TIMEOUT" validate:"gte=0"`
	Workbook bool          `yaml:"workbook" envconfig:"WORKBOOK"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level         string `yaml:"level" envconfig:"LEVEL" validate:"oneof=debug info warn error"`
	Output        string `yaml:"output" envconfig:"OUTPUT" validate:"oneof=console file both"`
	FilePath      string `yaml:"file_path" envconfig:"FILE_PATH"`
	ErrorFilePath string `yaml:"error_file_path" envconfig:"ERROR_FILE_PATH"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" validate:"gte=1,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" validate:"gt=0"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	AllowedOrigins  []string      `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`

	// RateLimit caps /api requests per second; zero disables the limiter.
	RateLimit float64 `yaml:"rate_limit" envconfig:"RATE_LIMIT" validate:"gte=0"`
	RateBurst int     `yaml:"rate_burst" envconfig:"RATE_BURST" validate:"gte=0"`
}

// TelemetryConfig selects the tracing and metrics exporters.
type TelemetryConfig struct {
	ServiceName    string  `yaml:"service_name" envconfig:"SERVICE_NAME"`
	Tracing        string  `yaml:"tracing" envconfig:"TRACING" validate:"oneof=none stdout"`
	SampleRatio    float64 `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO" validate:"gte=0,lte=1"`
	MetricsEnabled bool    `yaml:"metrics_enabled" envconfig:"METRICS_ENABLED"`
}

// NotifyConfig selects where run events are published.
type NotifyConfig struct {
	Driver       string   `yaml:"driver" envconfig:"DRIVER" validate:"oneof=none log kafka sqs"`
	KafkaBrokers []string `yaml:"kafka_brokers" envconfig:"KAFKA_BROKERS" validate:"required_if=Driver kafka"`
	KafkaTopic   string   `yaml:"kafka_topic" envconfig:"KAFKA_TOPIC" validate:"required_if=Driver kafka"`
	SQSQueueURL  string   `yaml:"sqs_queue_url" envconfig:"SQS_QUEUE_URL" validate:"required_if=Driver sqs"`
	SQSRegion    string   `yaml:"sqs_region" envconfig:"SQS_REGION"`
}

// CatalogConfig holds the attribute list and the datamart layout. File, when
// set, points at a YAML document with the same shape that replaces both.
type CatalogConfig struct {
	File       string                    `yaml:"file" envconfig:"FILE"`
	Attributes []string                  `yaml:"attributes" envconfig:"ATTRIBUTES"`
	Datamarts  []domain.DatamartCategory `yaml:"datamarts" ignored:"true"`
}

// Load builds the configuration from defaults, then the YAML file at path
// (or the first default location found when path is empty), then
// DICOMMART_* environment variables. Later layers win.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = getConfigFilePath()
	}
	if path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if cfg.Catalog.File != "" {
		if err := cfg.Catalog.loadFile(); err != nil {
			return nil, fmt.Errorf("failed to load catalog: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// loadFromFile overlays the YAML file at filePath onto cfg
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func (c *CatalogConfig) loadFile() error {
	data, err := os.ReadFile(c.File)
	if err != nil {
		return err
	}
	var fileCatalog CatalogConfig
	if err := yaml.Unmarshal(data, &fileCatalog); err != nil {
		return err
	}
	if len(fileCatalog.Attributes) > 0 {
		c.Attributes = fileCatalog.Attributes
	}
	if len(fileCatalog.Datamarts) > 0 {
		c.Datamarts = fileCatalog.Datamarts
	}
	return nil
}

// Validate checks struct constraints and the catalog.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	return c.Catalog.Validate()
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	locations := []string{
		"dicommart.yaml",
		"configs/dicommart.yaml",
		"../configs/dicommart.yaml",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return ""
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Source: SourceConfig{
			Driver: "s3",
			Bucket: DefaultRawBucket,
			Region: DefaultRegion,
			Prefix: DefaultRootPrefix,
		},
		Paths: PathsConfig{
			TransformedDir: "data/transformed",
			DatamartDir:    "data/Datamarts",
			SummaryFile:    "data/Summary.csv",
			WorkbookFile:   "data/Datamarts.xlsx",
			LedgerFile:     "data/runs.db",
		},
		Pipeline: PipelineConfig{
			Workers: runtime.NumCPU(),
		},
		Logging: LoggingConfig{
			Level:         "info",
			Output:        "both",
			FilePath:      "logs/success.log",
			ErrorFilePath: "logs/error.log",
		},
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			AllowedOrigins:  []string{"http://localhost:8080"},
		},
		Telemetry: TelemetryConfig{
			ServiceName:    "dicommart",
			Tracing:        "none",
			SampleRatio:    1,
			MetricsEnabled: true,
		},
		Notify: NotifyConfig{
			Driver: "none",
		},
		Catalog: DefaultCatalog(),
	}
}
