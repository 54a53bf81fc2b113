package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the configuration for the service.
// It's populated from defaults, an optional config.yaml and environment variables.
type Config struct {
	ServiceName string `mapstructure:"service_name"`
	AppPort     int    `mapstructure:"app_port"`
	MetricsPort int    `mapstructure:"metrics_port"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	LogFile   string `mapstructure:"log_file"`

	CreatorName        string `mapstructure:"creator_name"`
	MeetDelayMinMs     int    `mapstructure:"meet_delay_min_ms"`
	MeetDelayMaxMs     int    `mapstructure:"meet_delay_max_ms"`
	DebugEndpoint      string `mapstructure:"debug_endpoint"`
	VisitorDBDSN       string `mapstructure:"visitor_db_dsn"`
	DiskUsagePath      string `mapstructure:"disk_usage_path"`
	CollectionInterval int    `mapstructure:"collection_interval_s"`
	ShutdownTimeout    int    `mapstructure:"shutdown_timeout_s"`

	CadvisorURL           string `mapstructure:"cadvisor_url"`
	CollaboratorTimeoutMs int    `mapstructure:"collaborator_timeout_ms"`
	CollaboratorStrict    bool   `mapstructure:"collaborator_strict"`

	ProfilingEnabled            bool `mapstructure:"profiling_enabled"`
	ProfilingLatencyThresholdMs int  `mapstructure:"profiling_latency_threshold_ms"`
	ProfilingDurationS          int  `mapstructure:"profiling_duration_s"`
	ProfilingCooldownS          int  `mapstructure:"profiling_cooldown_s"`

	RepeatedQueryEnabled   bool `mapstructure:"repeated_query_enabled"`
	RepeatedQueryThreshold int  `mapstructure:"repeated_query_threshold"`
}

var defaults = map[string]any{
	"service_name": "apm-greeter",
	"app_port":     8000,
	"metrics_port": 8001,

	"log_level":  "info",
	"log_format": "text",
	"log_file":   "",

	"creator_name":          "Saanav Somani",
	"meet_delay_min_ms":     0,
	"meet_delay_max_ms":     0,
	"debug_endpoint":        "/debug/apm",
	"visitor_db_dsn":        "file:visitors?mode=memory&cache=shared",
	"disk_usage_path":       "/",
	"collection_interval_s": 10,
	"shutdown_timeout_s":    10,

	"cadvisor_url":            "http://localhost:8080/metrics",
	"collaborator_timeout_ms": 2000,
	"collaborator_strict":     false,

	"profiling_enabled":              true,
	"profiling_latency_threshold_ms": 500,
	"profiling_duration_s":           10,
	"profiling_cooldown_s":           60,

	"repeated_query_enabled":   true,
	"repeated_query_threshold": 5,
}

// Load reads config.yaml from path (if present), applies environment
// overrides such as APP_PORT or LOG_LEVEL and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.AppPort == c.MetricsPort {
		return errors.New("app_port and metrics_port must differ")
	}
	if c.MeetDelayMaxMs < c.MeetDelayMinMs {
		return errors.New("meet_delay_max_ms must not be lower than meet_delay_min_ms")
	}
	if c.CollaboratorTimeoutMs <= 0 {
		return errors.New("collaborator_timeout_ms must be positive")
	}
	if err := validateDebugEndpoint(c.DebugEndpoint); err != nil {
		return err
	}
	return nil
}

// reservedPaths are served by the application itself.
var reservedPaths = []string{"/home", "/metrics", "/cadvisor-metrics", "/visitors"}

// validateDebugEndpoint accepts "" (disabled) or a literal path that does not
// shadow an application route.
func validateDebugEndpoint(path string) error {
	if path == "" {
		return nil
	}
	if !strings.HasPrefix(path, "/") || path == "/" {
		return fmt.Errorf("debug_endpoint %q must be an absolute path other than /", path)
	}
	if strings.ContainsAny(path, "{} \t") {
		return fmt.Errorf("debug_endpoint %q must be a literal path", path)
	}
	if slices.Contains(reservedPaths, path) || path == "/meet" || strings.HasPrefix(path, "/meet/") {
		return fmt.Errorf("debug_endpoint %q collides with an application route", path)
	}
	return nil
}

// MeetDelay returns the artificial delay bounds of the meet route.
func (c *Config) MeetDelay() (time.Duration, time.Duration) {
	return time.Duration(c.MeetDelayMinMs) * time.Millisecond, time.Duration(c.MeetDelayMaxMs) * time.Millisecond
}

// CollaboratorTimeout bounds a single fetch from the collaborator.
func (c *Config) CollaboratorTimeout() time.Duration {
	return time.Duration(c.CollaboratorTimeoutMs) * time.Millisecond
}

// CollectionPeriod is the tick of the background collector. Zero disables it.
func (c *Config) CollectionPeriod() time.Duration {
	return time.Duration(c.CollectionInterval) * time.Second
}

// ShutdownGrace bounds graceful server shutdown.
func (c *Config) ShutdownGrace() time.Duration {
	return time.Duration(c.ShutdownTimeout) * time.Second
}

// ProfilingLatencyThreshold is the request latency above which a CPU profile is captured.
func (c *Config) ProfilingLatencyThreshold() time.Duration {
	return time.Duration(c.ProfilingLatencyThresholdMs) * time.Millisecond
}

// ProfilingDuration is how long a triggered CPU profile runs.
func (c *Config) ProfilingDuration() time.Duration {
	return time.Duration(c.ProfilingDurationS) * time.Second
}

// ProfilingCooldown is the minimum gap between two profiles of the same route.
func (c *Config) ProfilingCooldown() time.Duration {
	return time.Duration(c.ProfilingCooldownS) * time.Second
}
