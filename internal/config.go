package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env           string              `mapstructure:"env"`
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Security      SecurityConfig      `mapstructure:"security" validate:"required"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Payment       PaymentConfig       `mapstructure:"payment"`
	Order         OrderConfig         `mapstructure:"order"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"required,min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"required,min=1"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"required,min=1m"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" validate:"required,min=1m"`
	Source          string        `mapstructure:"source"`
}

type SecurityConfig struct {
	JWTSecret           string        `mapstructure:"jwt_secret" validate:"required,min=32"`
	AccessTokenDuration time.Duration `mapstructure:"access_token_duration"`
}

// PaymentConfig holds the Mercado Pago credentials and the reconciliation policy.
type PaymentConfig struct {
	APIURL         string        `mapstructure:"api_url" validate:"required,url"`
	AccessToken    string        `mapstructure:"access_token" validate:"required"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"`
	MaxWorkers     int           `mapstructure:"max_workers"`
	JobQueueSize   int           `mapstructure:"job_queue_size"`
	WorkerPoolSize int           `mapstructure:"worker_pool_size"`
	ResumeInterval time.Duration `mapstructure:"resume_interval"`
}

type OrderConfig struct {
	StatusWindow time.Duration `mapstructure:"status_window"`
}

type ObservabilityConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type MetricsConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint" validate:"required_if=Enabled true"`
}

type TracingConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	ServiceName  string  `mapstructure:"service_name" validate:"required_if=Enabled true"`
	SamplingRate float64 `mapstructure:"sampling_rate" validate:"min=0,max=1"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint" validate:"required_if=Enabled true"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

const (
	DefaultPaymentAPIURL   = "https://api.mercadopago.com"
	DefaultMaxAttempts     = 5
	DefaultRetryDelay      = 5 * time.Second
	DefaultStatusWindow    = 5 * time.Minute
	DefaultRequestTimeout  = 10 * time.Second
	DefaultResumeInterval  = 30 * time.Second
	DefaultAccessTokenTTL  = time.Hour
	DefaultServiceName     = "offszn-marketplace"
	defaultMaxWorkers      = 10
	defaultJobQueueSize    = 100
	defaultHTTPPort        = 8080
	defaultDBMaxOpenConns  = 25
	defaultDBMaxIdleConns  = 5
	defaultServerTimeout   = 15 * time.Second
	defaultDBConnLifetime  = time.Hour
	defaultDBConnIdleTime  = 30 * time.Minute
	defaultLoggingLevel    = "info"
	defaultLoggingFormat   = "json"
	defaultTracingSampling = 1.0
)

// ApplyDefaults fills zero values so a sparse config file still yields the documented policy.
func (c *Config) ApplyDefaults() {
	if c.Env == "" {
		c.Env = "development"
	}
	if c.Server.Port == 0 {
		c.Server.Port = defaultHTTPPort
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = defaultServerTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = defaultServerTimeout
	}
	if c.Server.IdleTimeout == 0 {
		c.Server.IdleTimeout = 4 * defaultServerTimeout
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = defaultDBMaxOpenConns
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = defaultDBMaxIdleConns
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = defaultDBConnLifetime
	}
	if c.Database.ConnMaxIdleTime == 0 {
		c.Database.ConnMaxIdleTime = defaultDBConnIdleTime
	}
	if c.Security.AccessTokenDuration == 0 {
		c.Security.AccessTokenDuration = DefaultAccessTokenTTL
	}
	if c.Payment.APIURL == "" {
		c.Payment.APIURL = DefaultPaymentAPIURL
	}
	if c.Payment.RequestTimeout == 0 {
		c.Payment.RequestTimeout = DefaultRequestTimeout
	}
	if c.Payment.MaxAttempts == 0 {
		c.Payment.MaxAttempts = DefaultMaxAttempts
	}
	if c.Payment.RetryDelay == 0 {
		c.Payment.RetryDelay = DefaultRetryDelay
	}
	if c.Payment.MaxWorkers == 0 {
		c.Payment.MaxWorkers = defaultMaxWorkers
	}
	if c.Payment.JobQueueSize == 0 {
		c.Payment.JobQueueSize = defaultJobQueueSize
	}
	if c.Payment.WorkerPoolSize == 0 {
		c.Payment.WorkerPoolSize = c.Payment.MaxWorkers
	}
	if c.Payment.ResumeInterval == 0 {
		c.Payment.ResumeInterval = DefaultResumeInterval
	}
	if c.Order.StatusWindow == 0 {
		c.Order.StatusWindow = DefaultStatusWindow
	}
	if c.Observability.Logging.Level == "" {
		c.Observability.Logging.Level = defaultLoggingLevel
	}
	if c.Observability.Logging.Format == "" {
		c.Observability.Logging.Format = defaultLoggingFormat
	}
	if c.Observability.Tracing.ServiceName == "" {
		c.Observability.Tracing.ServiceName = DefaultServiceName
	}
	if c.Observability.Tracing.SamplingRate == 0 {
		c.Observability.Tracing.SamplingRate = defaultTracingSampling
	}
}

// LoadConfigFromEnv builds the configuration for container deployments.
func LoadConfigFromEnv() *Config {
	cfg := &Config{
		Env: getEnv("APP_ENV", "production"),
		Server: ServerConfig{
			Port:              getEnvAsInt("PORT", defaultHTTPPort),
			BaseURL:           getEnv("BASE_URL", ""),
			AllowedOrigins:    getEnv("ALLOWED_ORIGINS", ""),
			ReadHeaderTimeout: getEnvAsDuration("READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("READ_TIMEOUT", defaultServerTimeout),
			WriteTimeout:      getEnvAsDuration("WRITE_TIMEOUT", defaultServerTimeout),
			IdleTimeout:       getEnvAsDuration("IDLE_TIMEOUT", 4*defaultServerTimeout),
		},
		Database: DatabaseConfig{
			Source:          getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", defaultDBMaxOpenConns),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", defaultDBMaxIdleConns),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", defaultDBConnLifetime),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", defaultDBConnIdleTime),
		},
		Security: SecurityConfig{
			JWTSecret:           getEnv("JWT_SECRET", ""),
			AccessTokenDuration: getEnvAsDuration("ACCESS_TOKEN_DURATION", DefaultAccessTokenTTL),
		},
		Payment: PaymentConfig{
			APIURL:         getEnv("MERCADOPAGO_API_URL", DefaultPaymentAPIURL),
			AccessToken:    getEnv("MERCADOPAGO_ACCESS_TOKEN", ""),
			RequestTimeout: getEnvAsDuration("MERCADOPAGO_REQUEST_TIMEOUT", DefaultRequestTimeout),
			MaxAttempts:    getEnvAsInt("RECONCILE_MAX_ATTEMPTS", DefaultMaxAttempts),
			RetryDelay:     getEnvAsDuration("RECONCILE_RETRY_DELAY", DefaultRetryDelay),
			MaxWorkers:     getEnvAsInt("RECONCILE_MAX_WORKERS", defaultMaxWorkers),
			JobQueueSize:   getEnvAsInt("RECONCILE_JOB_QUEUE_SIZE", defaultJobQueueSize),
			ResumeInterval: getEnvAsDuration("RECONCILE_RESUME_INTERVAL", DefaultResumeInterval),
		},
		Order: OrderConfig{
			StatusWindow: getEnvAsDuration("ORDER_STATUS_WINDOW", DefaultStatusWindow),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", defaultLoggingLevel),
				Format: getEnv("LOG_FORMAT", defaultLoggingFormat),
			},
			Metrics: MetricsConfig{
				Enabled:      getEnvAsBool("METRICS_ENABLED", false),
				OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			},
			Tracing: TracingConfig{
				Enabled:      getEnvAsBool("TRACING_ENABLED", false),
				ServiceName:  getEnv("SERVICE_NAME", DefaultServiceName),
				OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			},
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if err := c.Payment.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("payment config: %v", err))
	}

	if err := c.Observability.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("observability config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		for _, origin := range c.Origins() {
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *ServerConfig) Origins() []string {
	if c.AllowedOrigins == "" {
		return nil
	}
	var origins []string
	for _, origin := range strings.Split(c.AllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

func (c *DatabaseConfig) Validate() error {
	if c.Source == "" {
		return errors.New("source is required")
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *SecurityConfig) Validate() error {
	if len(c.JWTSecret) < 32 {
		return errors.New("jwt_secret must be at least 32 characters")
	}
	return nil
}

func (c *PaymentConfig) Validate() error {
	if c.APIURL == "" {
		return errors.New("api_url is required")
	}
	if _, err := url.ParseRequestURI(c.APIURL); err != nil {
		return fmt.Errorf("invalid api_url: %w", err)
	}
	if c.AccessToken == "" {
		return errors.New("access_token is required")
	}
	if c.MaxAttempts < 1 {
		return errors.New("max_attempts must be at least 1")
	}
	if c.RetryDelay < 0 {
		return errors.New("retry_delay cannot be negative")
	}
	return nil
}

func (c *ObservabilityConfig) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid logging format %q", c.Logging.Format)
	}
	if c.Metrics.Enabled && c.Metrics.OTLPEndpoint == "" {
		return errors.New("metrics.otlp_endpoint is required when metrics are enabled")
	}
	if c.Tracing.Enabled && c.Tracing.OTLPEndpoint == "" {
		return errors.New("tracing.otlp_endpoint is required when tracing is enabled")
	}
	if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
		return errors.New("tracing.sampling_rate must be between 0 and 1")
	}
	return nil
}
