// Package config loads the trade engine's runtime settings from YAML and the
// environment.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sportsmockery/gm-trade-engine/internal/aging"
	"github.com/sportsmockery/gm-trade-engine/internal/policy"
	"github.com/sportsmockery/gm-trade-engine/internal/valuation"
)

// Grader providers.
const (
	ProviderHeuristic = "heuristic"
	ProviderChatGPT   = "chatgpt"
)

type Config struct {
	Port        string `yaml:"port"`
	DatabaseURL string `yaml:"database_url"`
	RedisURL    string `yaml:"redis_url"`
	LogLevel    string `yaml:"log_level"`

	CORSOrigins []string `yaml:"cors_origins"`

	// ShareCodeLength is the number of hex characters in a share code.
	ShareCodeLength int `yaml:"share_code_length"`

	Policy    policy.Policy   `yaml:"policy"`
	Grader    GraderConfig    `yaml:"grader"`
	Cache     CacheConfig     `yaml:"cache"`
	Stream    StreamConfig    `yaml:"stream"`
	Valuation ValuationConfig `yaml:"valuation"`
	Aging     AgingConfig     `yaml:"aging"`
}

type GraderConfig struct {
	Provider string        `yaml:"provider"`
	Model    string        `yaml:"model"`
	APIKey   string        `yaml:"api_key"`
	Timeout  time.Duration `yaml:"timeout"`
	Attempts int           `yaml:"attempts"`
	Backoff  time.Duration `yaml:"backoff"`
}

type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

type StreamConfig struct {
	Enabled bool  `yaml:"enabled"`
	MaxLen  int64 `yaml:"max_len"`
}

// ValuationConfig starts from the built-in tables. YAML keys merge into them,
// except that a sport listed under a per-sport table replaces that sport's
// entries wholesale.
type ValuationConfig struct {
	// DraftYear pins the upcoming draft. Zero derives it from the clock.
	DraftYear int              `yaml:"draft_year"`
	Tables    valuation.Tables `yaml:"tables"`
}

// AgingConfig holds the career windows, merged the same way as the
// valuation tables.
type AgingConfig struct {
	Windows       map[string]map[string]aging.Window `yaml:"windows"`
	SportDefaults map[string]aging.Window            `yaml:"sport_defaults"`
	Fallback      aging.Window                       `yaml:"fallback"`
}

func Default() Config {
	return Config{
		Port:            "8080",
		LogLevel:        "info",
		CORSOrigins:     []string{"*"},
		ShareCodeLength: 10,
		Policy:          policy.Default(),
		Grader: GraderConfig{
			Provider: ProviderHeuristic,
			Timeout:  20 * time.Second,
			Attempts: 3,
			Backoff:  500 * time.Millisecond,
		},
		Cache: CacheConfig{
			TTL: 30 * time.Second,
		},
		Stream: StreamConfig{
			Enabled: true,
			MaxLen:  10000,
		},
		Valuation: ValuationConfig{
			Tables: valuation.DefaultTables(),
		},
		Aging: AgingConfig{
			Windows:       aging.DefaultWindows(),
			SportDefaults: aging.DefaultSportWindows(),
			Fallback:      aging.DefaultFallback(),
		},
	}
}

func LoadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv overrides settings from environment variables.
func (c *Config) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		c.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.RedisURL = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Grader.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("GRADER_PROVIDER")); v != "" {
		c.Grader.Provider = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("GRADER_MODEL")); v != "" {
		c.Grader.Model = v
	}
	if v := strings.TrimSpace(os.Getenv("GRADER_TIMEOUT")); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Grader.Timeout = d
		} else {
			slog.Warn("ignoring invalid GRADER_TIMEOUT", "value", v, "err", err)
		}
	}
	if v := strings.TrimSpace(os.Getenv("DRAFT_YEAR")); v != "" {
		if year, err := strconv.Atoi(v); err == nil {
			c.Valuation.DraftYear = year
		} else {
			slog.Warn("ignoring invalid DRAFT_YEAR", "value", v, "err", err)
		}
	}
	if v := strings.TrimSpace(os.Getenv("CORS_ORIGINS")); v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.CORSOrigins = origins
	}
	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		c.LogLevel = strings.ToLower(v)
	}
}

// NewEngine builds the valuation engine from the configured tables and
// career windows.
func (c Config) NewEngine() *valuation.Engine {
	curve := aging.NewCurve(c.Aging.Windows, c.Aging.SportDefaults, c.Aging.Fallback)
	return valuation.NewEngine(curve, c.Valuation.Tables, c.Valuation.DraftYear)
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
