// Package config loads the rulegraph YAML configuration.
//
// Values are layered: defaults in code, then the YAML file, then a few
// RULEGRAPH_* environment variables. The result is checked with struct tags
// (go-playground/validator) before use.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/roach88/rulegraph/internal/compiler"
	"github.com/roach88/rulegraph/internal/ir"
)

// Config is the complete configuration.
type Config struct {
	// Catalog is a directory with a CUE operator catalog. Empty selects the
	// built-in catalog.
	Catalog string               `yaml:"catalog"`
	Rule    compiler.RuleOptions `yaml:"rule"`
	Session SessionConfig        `yaml:"session"`
	Remote  RemoteConfig         `yaml:"remote"`
	Backend BackendConfig        `yaml:"backend"`
}

// SessionConfig tunes the editing session.
type SessionConfig struct {
	Debounce        time.Duration `yaml:"debounce" validate:"gte=0"`
	HistoryLimit    int           `yaml:"history_limit" validate:"gte=0"`
	LabelProbeLimit int           `yaml:"label_probe_limit" validate:"gte=1"`
}

// RemoteConfig points the session at a rule backend.
type RemoteConfig struct {
	// BaseURL is the API root; documents go to {BaseURL}/rule{RuleIndex}.
	// Empty runs the session offline.
	BaseURL   string        `yaml:"base_url" validate:"omitempty,url"`
	RuleIndex int           `yaml:"rule_index" validate:"gte=0"`
	Format    string        `yaml:"format" validate:"oneof=xml json"`
	Timeout   time.Duration `yaml:"timeout" validate:"gt=0"`
	Breaker   BreakerConfig `yaml:"breaker"`
}

// BreakerConfig configures the submission circuit breaker.
type BreakerConfig struct {
	MaxRequests         uint32        `yaml:"max_requests" validate:"gte=1"`
	Interval            time.Duration `yaml:"interval" validate:"gte=0"`
	Timeout             time.Duration `yaml:"timeout" validate:"gt=0"`
	ConsecutiveFailures uint32        `yaml:"consecutive_failures" validate:"gte=1"`
}

// BackendConfig configures the development rule backend.
type BackendConfig struct {
	Addr           string        `yaml:"addr" validate:"required,hostname_port"`
	Database       string        `yaml:"database" validate:"required"`
	AllowedOrigins []string      `yaml:"allowed_origins" validate:"dive,required"`
	ReadTimeout    time.Duration `yaml:"read_timeout" validate:"gt=0"`
	WriteTimeout   time.Duration `yaml:"write_timeout" validate:"gt=0"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes" validate:"gt=0"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Rule: compiler.RuleOptions{
			Kind:     ir.LinkageRule,
			LinkType: "owl:sameAs",
		},
		Session: SessionConfig{
			Debounce:        2 * time.Second,
			LabelProbeLimit: 1000,
		},
		Remote: RemoteConfig{
			Format:  "xml",
			Timeout: 10 * time.Second,
			Breaker: BreakerConfig{
				MaxRequests:         1,
				Interval:            time.Minute,
				Timeout:             30 * time.Second,
				ConsecutiveFailures: 3,
			},
		},
		Backend: BackendConfig{
			Addr:           "127.0.0.1:8089",
			Database:       "rulegraph.db",
			AllowedOrigins: []string{"*"},
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   15 * time.Second,
			MaxBodyBytes:   1 << 20,
		},
	}
}

// Load reads path over the defaults. An empty path yields the defaults
// (still subject to environment overrides and validation).
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := decode(data, cfg); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}
	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := decode(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode yaml: %w", err)
	}
	return nil
}

// applyEnv overrides selected fields from the environment.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup("RULEGRAPH_REMOTE_URL"); ok {
		cfg.Remote.BaseURL = v
	}
	if v, ok := lookup("RULEGRAPH_RULE_INDEX"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RULEGRAPH_RULE_INDEX: %w", err)
		}
		cfg.Remote.RuleIndex = n
	}
	if v, ok := lookup("RULEGRAPH_BACKEND_ADDR"); ok {
		cfg.Backend.Addr = v
	}
	if v, ok := lookup("RULEGRAPH_DATABASE"); ok {
		cfg.Backend.Database = v
	}
	return nil
}

var validate = validator.New()

// Validate checks every struct tag and reports all violations at once.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		msgs[i] = formatFieldError(fe)
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func formatFieldError(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "url":
		return fmt.Sprintf("%s must be a URL", field)
	case "hostname_port":
		return fmt.Sprintf("%s must be host:port", field)
	case "gt", "gte":
		return fmt.Sprintf("%s must be %s %s", field, map[string]string{"gt": ">", "gte": ">="}[fe.Tag()], fe.Param())
	default:
		return fmt.Sprintf("%s is invalid (%s)", field, fe.Tag())
	}
}
