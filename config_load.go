package dashrelay

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed config.schema.json
var configSchema []byte

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func schema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource("config.schema.json", bytes.NewReader(configSchema)); err != nil {
			schemaErr = err
			return
		}
		compiledSchema, schemaErr = c.Compile("config.schema.json")
	})
	return compiledSchema, schemaErr
}

// LoadConfig reads an overlay config file from path and applies it on top
// of the defaults for the profile named in the file (production when the
// file names none). Supported formats: JSON (.json), YAML (.yaml, .yml).
// The document is checked against the embedded JSON Schema before it is
// decoded, so typos in field names or malformed values fail loudly.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var raw any
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parsing YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parsing JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file extension %q: use .json, .yaml, or .yml", ext)
	}

	// Round-trip through JSON so the schema validator sees canonical
	// JSON types regardless of the source format.
	canonical, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("normalizing config document: %w", err)
	}
	var doc any
	if err := json.Unmarshal(canonical, &doc); err != nil {
		return nil, fmt.Errorf("normalizing config document: %w", err)
	}
	s, err := schema()
	if err != nil {
		return nil, fmt.Errorf("compiling config schema: %w", err)
	}
	if err := s.Validate(doc); err != nil {
		return nil, fmt.Errorf("config does not match schema: %w", err)
	}

	// Peek at the profile so defaults are drawn from the right set, then
	// decode the file over those defaults.
	var head struct {
		Profile Profile `json:"profile" yaml:"profile"`
	}
	_ = json.Unmarshal(canonical, &head)
	profile := head.Profile
	if profile == "" {
		profile = ProfileProduction
	}

	cfg := DefaultConfig(profile)
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("decoding YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("decoding JSON config: %w", err)
		}
	}

	return &cfg, nil
}

// ValidateConfig checks a Config for semantic correctness beyond what the
// schema can express.
func ValidateConfig(cfg Config) error {
	switch cfg.Profile {
	case ProfileDevelopment, ProfileProduction, ProfileTesting:
	default:
		return fmt.Errorf("unknown profile: %q", cfg.Profile)
	}

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", cfg.Server.Port)
	}
	if cfg.Upstreams.ChatURL == "" {
		return fmt.Errorf("upstreams.chat_url is required")
	}
	if cfg.Upstreams.AirtableURL == "" {
		return fmt.Errorf("upstreams.airtable_url is required")
	}

	if cfg.Timeouts.Chat <= 0 || cfg.Timeouts.Airtable <= 0 {
		return fmt.Errorf("upstream timeouts must be positive")
	}
	if cfg.Timeouts.HealthProbe <= 0 {
		return fmt.Errorf("health probe timeout must be positive")
	}

	if cfg.Limits.PageSize <= 0 {
		return fmt.Errorf("limits.page_size must be positive")
	}
	if cfg.Limits.MaxTotalRecords <= 0 {
		return fmt.Errorf("limits.max_total_records must be positive")
	}
	if cfg.Limits.MaxPages <= 0 {
		return fmt.Errorf("limits.max_pages must be positive")
	}
	if cfg.Limits.MaxFilterLength <= 0 {
		return fmt.Errorf("limits.max_filter_length must be positive")
	}

	if cfg.Cache.UnfilteredTTL <= 0 || cfg.Cache.FilteredTTL <= 0 {
		return fmt.Errorf("cache TTLs must be positive")
	}
	if time.Duration(cfg.Cache.FilteredTTL) > time.Duration(cfg.Cache.UnfilteredTTL) {
		return fmt.Errorf("cache.filtered_ttl must not exceed cache.unfiltered_ttl")
	}

	switch cfg.RequestLog.Driver {
	case "", "sqlite":
	case "postgres":
		if cfg.RequestLog.DSN == "" {
			return fmt.Errorf("request_log.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown request_log driver: %q", cfg.RequestLog.Driver)
	}

	return nil
}
