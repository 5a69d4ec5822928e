package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// EnvPrefix namespaces every environment variable, e.g. CSVMAIL_SERVER_PORT.
const EnvPrefix = "CSVMAIL"

// Config represents the complete application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server" envconfig:"SERVER"`
	Security   SecurityConfig   `yaml:"security" envconfig:"SECURITY"`
	Logging    LoggingConfig    `yaml:"logging" envconfig:"LOGGING"`
	Paths      PathsConfig      `yaml:"paths" envconfig:"PATHS"`
	Artifacts  ArtifactsConfig  `yaml:"artifacts" envconfig:"ARTIFACTS"`
	Stats      StatsConfig      `yaml:"stats" envconfig:"STATS"`
	Validation ValidationConfig `yaml:"validation" envconfig:"VALIDATION"`
	Telemetry  TelemetryConfig  `yaml:"telemetry" envconfig:"TELEMETRY"`
	WebSocket  WebSocketConfig  `yaml:"websocket" envconfig:"WEBSOCKET"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host" envconfig:"HOST"`
	Port            int           `yaml:"port" envconfig:"PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT"`
	MaxHeaderBytes  int           `yaml:"max_header_bytes" envconfig:"MAX_HEADER_BYTES"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"`
	RequestTimeout  time.Duration `yaml:"request_timeout" envconfig:"REQUEST_TIMEOUT"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes" envconfig:"MAX_UPLOAD_BYTES"`
}

// Addr returns the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SecurityConfig contains security-related configuration
type SecurityConfig struct {
	AllowedOrigins []string        `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	EnableCORS     bool            `yaml:"enable_cors" envconfig:"ENABLE_CORS"`
	RateLimit      RateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// RateLimitConfig contains rate limiting configuration
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled" envconfig:"ENABLED"`
	RPS     float64 `yaml:"rps" envconfig:"RPS"`
	Burst   int     `yaml:"burst" envconfig:"BURST"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL"`
	Format   string `yaml:"format" envconfig:"FORMAT"`
	Output   string `yaml:"output" envconfig:"OUTPUT"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH"`
}

// PathsConfig contains file system paths configuration
type PathsConfig struct {
	DataDir string `yaml:"data_dir" envconfig:"DATA_DIR"`
	LogsDir string `yaml:"logs_dir" envconfig:"LOGS_DIR"`
}

// ArtifactsConfig selects and tunes the artifact store.
type ArtifactsConfig struct {
	Backend         string        `yaml:"backend" envconfig:"BACKEND"`
	Dir             string        `yaml:"dir" envconfig:"DIR"`
	TTL             time.Duration `yaml:"ttl" envconfig:"TTL"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" envconfig:"CLEANUP_INTERVAL"`
	MaxSize         int64         `yaml:"max_size" envconfig:"MAX_SIZE"`
	Redis           RedisConfig   `yaml:"redis" envconfig:"REDIS"`
}

// RedisConfig configures the Redis artifact backend.
type RedisConfig struct {
	Addr     string `yaml:"addr" envconfig:"ADDR"`
	Password string `yaml:"password" envconfig:"PASSWORD"`
	DB       int    `yaml:"db" envconfig:"DB"`
	Prefix   string `yaml:"prefix" envconfig:"PREFIX"`
}

// StatsConfig tunes statistics computation.
type StatsConfig struct {
	// DedupMode is "exact" or "hashed".
	DedupMode string `yaml:"dedup_mode" envconfig:"DEDUP_MODE"`
}

// ValidationConfig tunes email validation.
type ValidationConfig struct {
	Workers          int           `yaml:"workers" envconfig:"WORKERS"`
	QueueWorkers     int           `yaml:"queue_workers" envconfig:"QUEUE_WORKERS"`
	QueueSize        int           `yaml:"queue_size" envconfig:"QUEUE_SIZE"`
	CheckTimeout     time.Duration `yaml:"check_timeout" envconfig:"CHECK_TIMEOUT"`
	JobBudget        time.Duration `yaml:"job_budget" envconfig:"JOB_BUDGET"`
	WaitTimeout      time.Duration `yaml:"wait_timeout" envconfig:"WAIT_TIMEOUT"`
	Retention        time.Duration `yaml:"retention" envconfig:"RETENTION"`
	MaxAttempts      int           `yaml:"max_attempts" envconfig:"MAX_ATTEMPTS"`
	InitialBackoff   time.Duration `yaml:"initial_backoff" envconfig:"INITIAL_BACKOFF"`
	MaxBackoff       time.Duration `yaml:"max_backoff" envconfig:"MAX_BACKOFF"`
	Multiplier       float64       `yaml:"multiplier" envconfig:"MULTIPLIER"`
	CacheTTL         time.Duration `yaml:"cache_ttl" envconfig:"CACHE_TTL"`
	LookupsPerSecond float64       `yaml:"lookups_per_second" envconfig:"LOOKUPS_PER_SECOND"`
	LookupBurst      int           `yaml:"lookup_burst" envconfig:"LOOKUP_BURST"`
	// Resolver pins DNS queries to host:port. Empty uses the system resolver.
	Resolver string `yaml:"resolver" envconfig:"RESOLVER"`
}

// TelemetryConfig configures OpenTelemetry.
type TelemetryConfig struct {
	Enabled        bool    `yaml:"enabled" envconfig:"ENABLED"`
	ServiceName    string  `yaml:"service_name" envconfig:"SERVICE_NAME"`
	Environment    string  `yaml:"environment" envconfig:"ENVIRONMENT"`
	TraceExporter  string  `yaml:"trace_exporter" envconfig:"TRACE_EXPORTER"`
	MetricExporter string  `yaml:"metric_exporter" envconfig:"METRIC_EXPORTER"`
	SampleRatio    float64 `yaml:"sample_ratio" envconfig:"SAMPLE_RATIO"`
}

// WebSocketConfig contains WebSocket configuration
type WebSocketConfig struct {
	ReadBufferSize  int `yaml:"read_buffer_size" envconfig:"READ_BUFFER_SIZE"`
	WriteBufferSize int `yaml:"write_buffer_size" envconfig:"WRITE_BUFFER_SIZE"`
}

// Load loads configuration from defaults, then the config file if one is
// found, then environment variables. Later sources win.
func Load() (*Config, error) {
	return LoadFrom(getConfigFilePath())
}

// LoadFrom is Load with an explicit config file. An empty path skips the file.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// Fields without a matching variable keep their current value.
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile overlays a YAML file onto cfg
func loadFromFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("server max upload bytes must be positive")
	}

	if c.Security.EnableCORS && len(c.Security.AllowedOrigins) == 0 {
		return fmt.Errorf("at least one allowed origin must be specified")
	}
	if c.Security.RateLimit.Enabled && (c.Security.RateLimit.RPS <= 0 || c.Security.RateLimit.Burst <= 0) {
		return fmt.Errorf("rate limit rps and burst must be positive")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid logging level: %q", c.Logging.Level)
	}
	switch c.Logging.Output {
	case "console", "file", "both":
	default:
		return fmt.Errorf("invalid logging output: %q", c.Logging.Output)
	}
	// Logs are always JSON.
	c.Logging.Format = "json"
	if c.Logging.Output != "console" && c.Logging.FilePath == "" {
		return fmt.Errorf("logging file path is required for output %q", c.Logging.Output)
	}

	switch c.Artifacts.Backend {
	case "file":
		if c.Artifacts.Dir == "" {
			return fmt.Errorf("artifacts dir is required for the file backend")
		}
	case "redis":
		if c.Artifacts.Redis.Addr == "" {
			return fmt.Errorf("artifacts redis addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("invalid artifacts backend: %q", c.Artifacts.Backend)
	}
	if c.Artifacts.TTL <= 0 {
		return fmt.Errorf("artifacts ttl must be positive")
	}

	switch c.Stats.DedupMode {
	case "exact", "hashed":
	default:
		return fmt.Errorf("invalid stats dedup mode: %q", c.Stats.DedupMode)
	}

	v := c.Validation
	if v.Workers <= 0 || v.QueueWorkers <= 0 {
		return fmt.Errorf("validation workers must be positive")
	}
	if v.CheckTimeout <= 0 {
		return fmt.Errorf("validation check timeout must be positive")
	}
	if v.MaxAttempts <= 0 {
		return fmt.Errorf("validation max attempts must be positive")
	}
	if v.Multiplier < 1 {
		return fmt.Errorf("validation backoff multiplier must be at least 1")
	}
	if v.JobBudget < 0 || v.WaitTimeout < 0 {
		return fmt.Errorf("validation budgets must not be negative")
	}

	t := c.Telemetry
	if t.SampleRatio < 0 || t.SampleRatio > 1 {
		return fmt.Errorf("telemetry sample ratio must be within [0, 1]")
	}
	switch t.TraceExporter {
	case "stdout", "none":
	default:
		return fmt.Errorf("unsupported trace exporter: %q", t.TraceExporter)
	}
	switch t.MetricExporter {
	case "prometheus", "none":
	default:
		return fmt.Errorf("unsupported metric exporter: %q", t.MetricExporter)
	}

	return nil
}

// getConfigFilePath returns the path to the config file
func getConfigFilePath() string {
	if path := os.Getenv(EnvPrefix + "_CONFIG_FILE"); path != "" {
		return path
	}

	locations := []string{
		"config.yaml",
		"configs/config.yaml",
	}
	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			return location
		}
	}

	return "" // No config file found, use env vars only
}

// Default returns default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    DefaultWaitTimeout + 30*time.Second,
			IdleTimeout:     60 * time.Second,
			MaxHeaderBytes:  1 << 20, // 1MB
			ShutdownTimeout: 30 * time.Second,
			RequestTimeout:  60 * time.Second,
			MaxUploadBytes:  DefaultMaxUploadBytes,
		},
		Security: SecurityConfig{
			AllowedOrigins: []string{"http://localhost:3000"},
			EnableCORS:     true,
			RateLimit: RateLimitConfig{
				Enabled: true,
				RPS:     50,
				Burst:   100,
			},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: "logs/csvmail.log",
		},
		Paths: PathsConfig{
			DataDir: "data",
			LogsDir: "logs",
		},
		Artifacts: ArtifactsConfig{
			Backend:         "file",
			Dir:             "data/artifacts",
			TTL:             DefaultArtifactTTL,
			CleanupInterval: 5 * time.Minute,
			MaxSize:         DefaultMaxUploadBytes * 2,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "csvmail:",
			},
		},
		Stats: StatsConfig{
			DedupMode: "exact",
		},
		Validation: ValidationConfig{
			Workers:          16,
			QueueWorkers:     2,
			QueueSize:        16,
			CheckTimeout:     5 * time.Second,
			JobBudget:        15 * time.Minute,
			WaitTimeout:      DefaultWaitTimeout,
			Retention:        time.Hour,
			MaxAttempts:      3,
			InitialBackoff:   200 * time.Millisecond,
			MaxBackoff:       2 * time.Second,
			Multiplier:       2,
			CacheTTL:         10 * time.Minute,
			LookupsPerSecond: 200,
			LookupBurst:      50,
		},
		Telemetry: TelemetryConfig{
			Enabled:        true,
			ServiceName:    AppName,
			Environment:    "development",
			TraceExporter:  "none",
			MetricExporter: "prometheus",
			SampleRatio:    1.0,
		},
		WebSocket: WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}
