package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	domainconfig "clickchain/domain/config"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerAddress string `yaml:"server_address"`
	Environment   string `yaml:"environment"`

	// Engine configuration
	CausalWindow      time.Duration `yaml:"causal_window"`
	TickPeriod        time.Duration `yaml:"tick_period"`
	PlaybackStep      float64       `yaml:"playback_step"`
	MarkerCount       int           `yaml:"marker_count"`
	MaxEventsPerBatch int           `yaml:"max_events_per_batch"`
	MaxSessions       int           `yaml:"max_sessions"`

	// Log sources
	DefaultSession string        `yaml:"default_session"`
	LogFile        string        `yaml:"log_file"`
	SourceURL      string        `yaml:"source_url"`
	PollInterval   time.Duration `yaml:"poll_interval"`

	// AWS configuration
	AWSRegion    string `yaml:"aws_region"`
	EventBusName string `yaml:"event_bus_name"`

	// Lambda configuration
	IsLambda bool `yaml:"is_lambda"`

	// Logging
	LogLevel string `yaml:"log_level"`

	// Authentication
	JWTSecret  string `yaml:"jwt_secret"`
	JWTIssuer  string `yaml:"jwt_issuer"`
	EnableAuth bool   `yaml:"enable_auth"`

	// Feature flags
	EnableMetrics      bool     `yaml:"enable_metrics"`
	EnableTracing      bool     `yaml:"enable_tracing"`
	OTLPEndpoint       string   `yaml:"otlp_endpoint"`
	ServiceName        string   `yaml:"service_name"`
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`

	// LoadedFrom lists the sources applied, lowest priority first
	LoadedFrom []string `yaml:"-"`
}

// Defaults returns the configuration used when nothing overrides it
func Defaults() *Config {
	d := domainconfig.DefaultDomainConfig()
	return &Config{
		ServerAddress:      ":8080",
		Environment:        "development",
		CausalWindow:       d.CausalWindow,
		TickPeriod:         d.TickPeriod,
		PlaybackStep:       d.PlaybackStep,
		MarkerCount:        d.MarkerCount,
		MaxEventsPerBatch:  d.MaxEventsPerBatch,
		MaxSessions:        d.MaxSessions,
		DefaultSession:     "default",
		PollInterval:       5 * time.Second,
		AWSRegion:          "us-west-2",
		LogLevel:           "info",
		JWTIssuer:          "clickchain",
		OTLPEndpoint:       "localhost:4317",
		ServiceName:        "clickchain",
		CORSAllowedOrigins: []string{"*"},
		LoadedFrom:         []string{"defaults"},
	}
}

// LoadConfig loads configuration from defaults, the optional YAML file named
// by CONFIG_FILE, then environment variables
func LoadConfig() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.loadEnvironmentVariables()

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Load is an alias for LoadConfig
func Load() (*Config, error) {
	return LoadConfig()
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	c.LoadedFrom = append(c.LoadedFrom, path)
	return nil
}

func (c *Config) loadEnvironmentVariables() {
	c.ServerAddress = getEnv("SERVER_ADDRESS", c.ServerAddress)
	c.Environment = getEnv("ENVIRONMENT", c.Environment)

	c.CausalWindow = getEnvMillis("CAUSAL_WINDOW_MS", c.CausalWindow)
	c.TickPeriod = getEnvMillis("TICK_PERIOD_MS", c.TickPeriod)
	c.PlaybackStep = getEnvFloat("PLAYBACK_STEP", c.PlaybackStep)
	c.MarkerCount = getEnvInt("MARKER_COUNT", c.MarkerCount)
	c.MaxEventsPerBatch = getEnvInt("MAX_EVENTS_PER_BATCH", c.MaxEventsPerBatch)
	c.MaxSessions = getEnvInt("MAX_SESSIONS", c.MaxSessions)

	c.DefaultSession = getEnv("DEFAULT_SESSION", c.DefaultSession)
	c.LogFile = getEnv("LOG_FILE", c.LogFile)
	c.SourceURL = getEnv("SOURCE_URL", c.SourceURL)
	c.PollInterval = getEnvDuration("POLL_INTERVAL", c.PollInterval)

	c.AWSRegion = getEnv("AWS_REGION", c.AWSRegion)
	c.EventBusName = getEnv("EVENT_BUS_NAME", c.EventBusName)
	c.IsLambda = getEnvBool("IS_LAMBDA", c.IsLambda || os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "")

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)
	c.JWTIssuer = getEnv("JWT_ISSUER", c.JWTIssuer)
	c.EnableAuth = getEnvBool("ENABLE_AUTH", c.EnableAuth)

	c.EnableMetrics = getEnvBool("ENABLE_METRICS", c.EnableMetrics)
	c.EnableTracing = getEnvBool("ENABLE_TRACING", c.EnableTracing)
	c.OTLPEndpoint = getEnv("OTLP_ENDPOINT", c.OTLPEndpoint)
	c.ServiceName = getEnv("SERVICE_NAME", c.ServiceName)
	if origins := os.Getenv("CORS_ALLOWED_ORIGINS"); origins != "" {
		c.CORSAllowedOrigins = splitList(origins)
	}

	c.LoadedFrom = append(c.LoadedFrom, "environment")
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	if err := c.DomainConfig().Validate(); err != nil {
		return fmt.Errorf("invalid engine configuration: %w", err)
	}
	if c.SourceURL != "" && c.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be positive when SOURCE_URL is set")
	}
	if c.EnableTracing && c.OTLPEndpoint == "" {
		return fmt.Errorf("OTLP_ENDPOINT is required when tracing is enabled")
	}
	if c.Environment == "production" && c.EnableAuth && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required in production")
	}

	return nil
}

// DomainConfig extracts the engine rules
func (c *Config) DomainConfig() *domainconfig.DomainConfig {
	return &domainconfig.DomainConfig{
		CausalWindow:      c.CausalWindow,
		MarkerCount:       c.MarkerCount,
		TickPeriod:        c.TickPeriod,
		PlaybackStep:      c.PlaybackStep,
		MaxEventsPerBatch: c.MaxEventsPerBatch,
		MaxSessions:       c.MaxSessions,
	}
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat gets a float environment variable with a default value
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvMillis reads a whole number of milliseconds
func getEnvMillis(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if ms, err := strconv.Atoi(value); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}

// getEnvDuration reads a Go duration string such as "5s"
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
