// Package config provides configuration management for zapengine using
// Viper. It supports configuration from files, environment variables, and
// defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultServerPort            = 8080
	defaultServerTimeout         = 30 * time.Second
	defaultShutdownTimeout       = 10 * time.Second
	defaultMaxOpenConns          = 25
	defaultMaxIdleConns          = 10
	defaultConnMaxIdleTime       = 30 * time.Minute
	defaultSegmentLengthSeconds  = 2
	defaultThumbnailIntervalSecs = 300
	defaultMinEventIntervalSecs  = 15
	defaultBlocklistPollSeconds  = 5
)

// Config holds all configuration for the application.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Ingress    IngressConfig    `mapstructure:"ingress"`
	Overseer   OverseerConfig   `mapstructure:"overseer"`
	Segmenting SegmentingConfig `mapstructure:"segmenting"`
	Viewers    ViewersConfig    `mapstructure:"viewers"`
	FFmpeg     FFmpegConfig     `mapstructure:"ffmpeg"`
}

// ServerConfig holds HTTP server configuration for the ambient status
// surface (health/docs) — see spec.md §1 Non-goals: the admin and segment
// HTTP/WebSocket API is an external collaborator, not implemented here.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// DatabaseConfig holds database connection configuration for the
// overseer's persistence adapter.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, postgres, mysql
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// StorageConfig holds the HLS output layout, per spec.md §6.
type StorageConfig struct {
	OutputDir string `mapstructure:"output_dir"`
	PublicURL string `mapstructure:"public_url"`
	TempDir   string `mapstructure:"temp_dir"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// IngressConfig holds the ingress listener configuration, per spec.md §6.
type IngressConfig struct {
	Listen           []string `mapstructure:"listen"`            // rtmp://, srt://, tcp://, test-pattern:// URIs
	PublicHostname    string   `mapstructure:"public_hostname"`   // hostname returned in client-facing ingest URLs
	NodeName          string   `mapstructure:"node_name"`         // identifier stamped on user_stream rows
}

// OverseerConfig holds the policy/coordination layer configuration.
type OverseerConfig struct {
	Nsec                  string                       `mapstructure:"nsec"`   // Nostr signing key
	Relays                []string                     `mapstructure:"relays"` // Nostr relay URLs
	Payments              string                       `mapstructure:"payments"`
	LowBalanceNotification LowBalanceNotificationConfig `mapstructure:"low_balance_notification"`
}

// LowBalanceNotificationConfig configures the single encrypted-DM low-
// balance warning per stream session.
type LowBalanceNotificationConfig struct {
	AdminPubkey   string `mapstructure:"admin_pubkey"`
	ThresholdMsat int64  `mapstructure:"threshold_msats"`
}

// SegmentingConfig holds segmenting/timing parameters shared by the
// pipeline runner, muxer, and overseer.
type SegmentingConfig struct {
	SegmentLengthSeconds         float64 `mapstructure:"segment_length_seconds"`
	ThumbnailIntervalSeconds     int     `mapstructure:"thumbnail_interval_seconds"`
	MinEventUpdateIntervalSeconds int   `mapstructure:"min_event_update_interval_seconds"`
	BlocklistPollSeconds         int     `mapstructure:"blocklist_poll_seconds"`
}

// ViewersConfig holds the distributed viewer-tracker connection.
type ViewersConfig struct {
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	ViewerTTL     time.Duration `mapstructure:"viewer_ttl"`
}

// FFmpegConfig holds FFmpeg binary configuration used by the pipeline's
// transcoder.
type FFmpegConfig struct {
	BinaryPath      string   `mapstructure:"binary_path"`      // Path to ffmpeg binary (empty = auto-detect)
	ProbePath       string   `mapstructure:"probe_path"`       // Path to ffprobe binary (empty = auto-detect)
	HWAccelPriority []string `mapstructure:"hwaccel_priority"` // Priority order: vaapi, nvenc, qsv, amf
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with ZAPENGINE_ and use underscores
// for nesting. Example: ZAPENGINE_SERVER_PORT=8080.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/zapengine")
		v.AddConfigPath("$HOME/.zapengine")
	}

	v.SetEnvPrefix("ZAPENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultServerTimeout)
	v.SetDefault("server.write_timeout", defaultServerTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "zapengine.db")
	v.SetDefault("database.max_open_conns", defaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", defaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", defaultConnMaxIdleTime)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("storage.output_dir", "./data/output")
	v.SetDefault("storage.public_url", "http://localhost:8080")
	v.SetDefault("storage.temp_dir", "./data/temp")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	v.SetDefault("ingress.listen", []string{"rtmp://0.0.0.0:1935", "srt://0.0.0.0:9710"})
	v.SetDefault("ingress.node_name", "node-1")

	v.SetDefault("overseer.relays", []string{})
	v.SetDefault("overseer.low_balance_notification.threshold_msats", 0)

	v.SetDefault("segmenting.segment_length_seconds", defaultSegmentLengthSeconds)
	v.SetDefault("segmenting.thumbnail_interval_seconds", defaultThumbnailIntervalSecs)
	v.SetDefault("segmenting.min_event_update_interval_seconds", defaultMinEventIntervalSecs)
	v.SetDefault("segmenting.blocklist_poll_seconds", defaultBlocklistPollSeconds)

	v.SetDefault("viewers.redis_addr", "")
	v.SetDefault("viewers.redis_db", 0)
	v.SetDefault("viewers.viewer_ttl", 60*time.Second)

	v.SetDefault("ffmpeg.binary_path", "")
	v.SetDefault("ffmpeg.probe_path", "")
	v.SetDefault("ffmpeg.hwaccel_priority", []string{"vaapi", "nvenc", "qsv", "amf"})
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	const maxPort = 65535
	if c.Server.Port < 1 || c.Server.Port > maxPort {
		return fmt.Errorf("server.port must be between 1 and %d", maxPort)
	}

	validDrivers := map[string]bool{"sqlite": true, "postgres": true, "mysql": true}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("database.driver must be one of: sqlite, postgres, mysql")
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}

	if c.Storage.OutputDir == "" {
		return fmt.Errorf("storage.output_dir is required")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if len(c.Ingress.Listen) == 0 {
		return fmt.Errorf("ingress.listen must name at least one listen URI")
	}

	if c.Segmenting.SegmentLengthSeconds <= 0 {
		return fmt.Errorf("segmenting.segment_length_seconds must be positive")
	}

	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
