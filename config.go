package dashrelay

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Profile selects a set of deployment constants. The profile is resolved
// once at startup; components receive the resulting Config by value and
// never re-read the environment.
type Profile string

// Supported deployment profiles.
const (
	ProfileDevelopment Profile = "development"
	ProfileProduction  Profile = "production"
	ProfileTesting     Profile = "testing"
)

// Duration is a time.Duration that decodes from "30s"-style strings in
// YAML and JSON config files.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Config holds the full configuration for the relay. Construct it with
// DefaultConfig (optionally overlaid by LoadConfig) and pass it into New.
type Config struct {
	// Profile the config was built for. Informational after construction.
	Profile Profile `json:"profile" yaml:"profile"`
	// Server is the HTTP listen configuration.
	Server ServerConfig `json:"server" yaml:"server"`
	// Upstreams holds the base URLs of both proxied services.
	Upstreams UpstreamConfig `json:"upstreams" yaml:"upstreams"`
	// Timeouts bound each single upstream call.
	Timeouts TimeoutConfig `json:"timeouts" yaml:"timeouts"`
	// Limits guard the pagination loop.
	Limits LimitConfig `json:"limits" yaml:"limits"`
	// Cache controls TTLs for the records cache.
	Cache CacheConfig `json:"cache" yaml:"cache"`
	// CORSOrigins is the browser origin allow-list. Empty means allow any.
	CORSOrigins []string `json:"cors_origins,omitempty" yaml:"cors_origins,omitempty"`
	// Log configures structured logging.
	Log LogConfig `json:"log" yaml:"log"`
	// RequestLog configures the optional persistent request log.
	RequestLog RequestLogConfig `json:"request_log" yaml:"request_log"`
}

// ServerConfig is the HTTP listener configuration.
type ServerConfig struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// UpstreamConfig holds the base URLs of the proxied services.
type UpstreamConfig struct {
	// ChatURL is the root of the Anthropic Messages API.
	ChatURL string `json:"chat_url" yaml:"chat_url"`
	// AirtableURL is the root of the Airtable REST API (v0).
	AirtableURL string `json:"airtable_url" yaml:"airtable_url"`
}

// TimeoutConfig bounds individual upstream calls. A call exceeding its
// bound is aborted; there is no retry.
type TimeoutConfig struct {
	Chat        Duration `json:"chat" yaml:"chat"`
	Airtable    Duration `json:"airtable" yaml:"airtable"`
	HealthProbe Duration `json:"health_probe" yaml:"health_probe"`
}

// LimitConfig guards the pagination loop and caps request sizes.
type LimitConfig struct {
	// PageSize is the upstream's per-page record limit.
	PageSize int `json:"page_size" yaml:"page_size"`
	// MaxTotalRecords is the largest cap a caller may request.
	MaxTotalRecords int `json:"max_total_records" yaml:"max_total_records"`
	// MaxPages is the hard ceiling on pages fetched per aggregation.
	MaxPages int `json:"max_pages" yaml:"max_pages"`
	// MaxFilterLength is the longest accepted filter formula.
	MaxFilterLength int `json:"max_filter_length" yaml:"max_filter_length"`
}

// CacheConfig holds the TTL classes for the records cache. Filtered
// queries get the shorter TTL: they are assumed more volatile and less
// likely to repeat.
type CacheConfig struct {
	UnfilteredTTL Duration `json:"unfiltered_ttl" yaml:"unfiltered_ttl"`
	FilteredTTL   Duration `json:"filtered_ttl" yaml:"filtered_ttl"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `json:"level" yaml:"level"`
	// Format is "json" (default) or "text".
	Format string `json:"format" yaml:"format"`
}

// RequestLogConfig selects the persistent request-log backend.
// An empty driver disables persistence.
type RequestLogConfig struct {
	// Driver is "", "sqlite", or "postgres".
	Driver string `json:"driver,omitempty" yaml:"driver,omitempty"`
	DSN    string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
}

// DefaultConfig returns the constants for a deployment profile.
// Unknown profiles get production values.
func DefaultConfig(profile Profile) Config {
	cfg := Config{
		Profile: ProfileProduction,
		Server:  ServerConfig{Host: "127.0.0.1", Port: 8000},
		Upstreams: UpstreamConfig{
			ChatURL:     "https://api.anthropic.com",
			AirtableURL: "https://api.airtable.com/v0",
		},
		Timeouts: TimeoutConfig{
			Chat:        Duration(30 * time.Second),
			Airtable:    Duration(15 * time.Second),
			HealthProbe: Duration(5 * time.Second),
		},
		Limits: LimitConfig{
			PageSize:        100,
			MaxTotalRecords: 10000,
			MaxPages:        100,
			MaxFilterLength: 1000,
		},
		Cache: CacheConfig{
			UnfilteredTTL: Duration(5 * time.Minute),
			FilteredTTL:   Duration(time.Minute),
		},
		CORSOrigins: []string{"http://localhost:8000", "http://127.0.0.1:8000"},
		Log:         LogConfig{Level: "info", Format: "json"},
	}

	switch profile {
	case ProfileDevelopment:
		cfg.Profile = ProfileDevelopment
		cfg.Log.Level = "debug"
		cfg.Log.Format = "text"
		cfg.CORSOrigins = append(cfg.CORSOrigins, "http://localhost:3000")
	case ProfileTesting:
		cfg.Profile = ProfileTesting
		cfg.Limits.MaxTotalRecords = 100
		cfg.Limits.MaxPages = 5
		cfg.Log.Level = "warn"
	default:
		// Production keeps a lower total-record ceiling than the API default.
		cfg.Limits.MaxTotalRecords = 5000
	}

	return cfg
}
