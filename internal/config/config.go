// Package config loads and validates the flowshaper configuration: how
// many priority levels are active, which scheduling policy runs them,
// the per-priority rate limiters, and the daemon's ledger/admin/logging
// settings. Configuration is a YAML file with FLOWSHAPER_* environment
// overrides on top.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tokligence/flowshaper/internal/shaper"
)

// Limiter kinds: the values of LimiterConfig.Kind, each naming a concrete
// rate limiter implementation.
const (
	LimiterTokenBucket   = "token_bucket"
	LimiterLeakyBucket   = "leaky_bucket"
	LimiterSlidingWindow = "sliding_window"
)

// LimiterConfig declares one rate limiter and the priority slots it is
// attached to. Fields beyond Kind/Priorities are kind-specific.
type LimiterConfig struct {
	Kind       string `yaml:"kind"`
	Priorities []int  `yaml:"priorities"`

	// token_bucket
	CapacityBytes float64 `yaml:"capacity_bytes,omitempty"`
	BytesPerSec   float64 `yaml:"bytes_per_sec,omitempty"`

	// leaky_bucket
	DispatchesPerSec float64 `yaml:"dispatches_per_sec,omitempty"`
	Burst            float64 `yaml:"burst,omitempty"`

	// sliding_window
	WindowMS    int `yaml:"window_ms,omitempty"`
	MaxInWindow int `yaml:"max_in_window,omitempty"`
}

// AdminConfig configures the admin/observation HTTP listener.
type AdminConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LedgerConfig configures the dispatch ledger backend.
type LedgerConfig struct {
	Backend         string `yaml:"backend"` // none | sqlite | postgres
	Path            string `yaml:"path"`    // sqlite file path
	DSN             string `yaml:"dsn"`     // postgres DSN
	Async           bool   `yaml:"async"`
	BatchSize       int    `yaml:"batch_size"`
	FlushIntervalMS int    `yaml:"flush_interval_ms"`
}

// LogConfig configures daemon logging.
type LogConfig struct {
	File     string `yaml:"file"` // "-" disables file output
	Level    string `yaml:"level"`
	MaxBytes int64  `yaml:"max_bytes"`
}

// ShaperConfig is the root configuration document.
type ShaperConfig struct {
	MaxPriority    int             `yaml:"max_priority"`
	Policy         string          `yaml:"policy"`
	PriorityEndian string          `yaml:"priority_endian"`
	WFQTokens      []int           `yaml:"wfq_tokens"`
	Limiters       []LimiterConfig `yaml:"limiters"`
	Admin          AdminConfig     `yaml:"admin"`
	Ledger         LedgerConfig    `yaml:"ledger"`
	Log            LogConfig       `yaml:"log"`
}

// Default returns the configuration used when no file is present: four
// active levels under round robin, no limiters, no ledger, local admin.
func Default() *ShaperConfig {
	return &ShaperConfig{
		MaxPriority:    4,
		Policy:         "rr",
		PriorityEndian: "low",
		Admin: AdminConfig{
			Enabled: true,
			Addr:    "127.0.0.1:8085",
		},
		Ledger: LedgerConfig{
			Backend:         "none",
			Async:           true,
			BatchSize:       100,
			FlushIntervalMS: 500,
		},
		Log: LogConfig{
			File:     "-",
			Level:    "info",
			MaxBytes: 10 << 20,
		},
	}
}

// Load reads the YAML file at path (when it exists), applies environment
// overrides, and validates the result. A missing file is not an error;
// defaults plus environment apply.
func Load(path string) (*ShaperConfig, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// fall through to defaults + env
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *ShaperConfig) applyEnvOverrides() {
	if v := os.Getenv("FLOWSHAPER_MAX_PRIORITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxPriority = n
		}
	}
	if v := os.Getenv("FLOWSHAPER_POLICY"); v != "" {
		c.Policy = v
	}
	if v := os.Getenv("FLOWSHAPER_PRIORITY_ENDIAN"); v != "" {
		c.PriorityEndian = v
	}
	if v := os.Getenv("FLOWSHAPER_WFQ_TOKENS"); v != "" {
		if tokens, err := parseTokenList(v); err == nil {
			c.WFQTokens = tokens
		}
	}
	if v := os.Getenv("FLOWSHAPER_ADMIN_ADDR"); v != "" {
		c.Admin.Addr = v
		c.Admin.Enabled = true
	}
	if v := os.Getenv("FLOWSHAPER_LEDGER_BACKEND"); v != "" {
		c.Ledger.Backend = v
	}
	if v := os.Getenv("FLOWSHAPER_LEDGER_PATH"); v != "" {
		c.Ledger.Path = v
	}
	if v := os.Getenv("FLOWSHAPER_LEDGER_DSN"); v != "" {
		c.Ledger.DSN = v
	}
	if v := os.Getenv("FLOWSHAPER_LOG_FILE"); v != "" {
		c.Log.File = v
	}
	if v := os.Getenv("FLOWSHAPER_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// parseTokenList parses a comma-separated token string like "4,2,1,1".
func parseTokenList(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	tokens := make([]int, 0, len(parts))
	for i, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid token at index %d: %q: %w", i, part, err)
		}
		tokens = append(tokens, n)
	}
	return tokens, nil
}

// Validate checks the configuration for coherence before anything is wired.
func (c *ShaperConfig) Validate() error {
	if c.MaxPriority < 1 || c.MaxPriority > shaper.MaxPriorities {
		return fmt.Errorf("config: max_priority %d out of range [1, %d]", c.MaxPriority, shaper.MaxPriorities)
	}
	if _, err := ParsePolicy(c.Policy); err != nil {
		return err
	}
	if _, err := ParseEndian(c.PriorityEndian); err != nil {
		return err
	}
	if len(c.WFQTokens) > 0 {
		if len(c.WFQTokens) != c.MaxPriority {
			return fmt.Errorf("config: wfq_tokens has %d entries, want %d (one per active level)",
				len(c.WFQTokens), c.MaxPriority)
		}
		for i, token := range c.WFQTokens {
			if token < 0 || token > 255 {
				return fmt.Errorf("config: wfq_tokens[%d]=%d out of range [0, 255]", i, token)
			}
		}
	}
	for i, limiter := range c.Limiters {
		if err := limiter.validate(c.MaxPriority); err != nil {
			return fmt.Errorf("config: limiters[%d]: %w", i, err)
		}
	}
	switch c.Ledger.Backend {
	case "", "none", "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unknown ledger backend %q", c.Ledger.Backend)
	}
	if c.Ledger.Backend == "sqlite" && c.Ledger.Path == "" {
		return fmt.Errorf("config: ledger backend sqlite requires path")
	}
	if c.Ledger.Backend == "postgres" && c.Ledger.DSN == "" {
		return fmt.Errorf("config: ledger backend postgres requires dsn")
	}
	return nil
}

func (l *LimiterConfig) validate(maxPriority int) error {
	if len(l.Priorities) == 0 {
		return fmt.Errorf("no priorities listed")
	}
	for _, prio := range l.Priorities {
		if prio < 0 || prio >= maxPriority {
			return fmt.Errorf("priority %d out of range [0, %d)", prio, maxPriority)
		}
	}
	switch l.Kind {
	case LimiterTokenBucket:
		if l.CapacityBytes <= 0 || l.BytesPerSec <= 0 {
			return fmt.Errorf("token_bucket needs positive capacity_bytes and bytes_per_sec")
		}
	case LimiterLeakyBucket:
		if l.DispatchesPerSec <= 0 || l.Burst < 1 {
			return fmt.Errorf("leaky_bucket needs positive dispatches_per_sec and burst >= 1")
		}
	case LimiterSlidingWindow:
		if l.WindowMS <= 0 || l.MaxInWindow < 1 {
			return fmt.Errorf("sliding_window needs positive window_ms and max_in_window >= 1")
		}
	default:
		return fmt.Errorf("unknown limiter kind %q", l.Kind)
	}
	return nil
}

// FlushInterval returns the ledger flush interval as a duration.
func (l LedgerConfig) FlushInterval() time.Duration {
	return time.Duration(l.FlushIntervalMS) * time.Millisecond
}

// ParsePolicy converts a policy string to the shaper policy enum.
func ParsePolicy(s string) (shaper.Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "rr", "roundrobin", "round_robin":
		return shaper.PolicyRoundRobin, nil
	case "sp", "strict":
		return shaper.PolicyStrictPriority, nil
	case "wfq":
		return shaper.PolicyWFQ, nil
	default:
		return 0, fmt.Errorf("config: unknown scheduling policy %q", s)
	}
}

// ParseEndian converts a priority endian string to the shaper enum.
func ParseEndian(s string) (shaper.PriorityEndian, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "low", "low_is_high":
		return shaper.EndianLowIsHigh, nil
	case "high", "high_is_low":
		return shaper.EndianHighIsLow, nil
	default:
		return 0, fmt.Errorf("config: unknown priority endian %q", s)
	}
}
