package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all attend configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	LLM      LLMConfig      `yaml:"llm"`
	Log      LogConfig      `yaml:"log"`
	Focus    FocusConfig    `yaml:"focus"`
	Priority PriorityConfig `yaml:"priority"`
	Pool     PoolConfig     `yaml:"pool"`
}

type ServerConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type LLMConfig struct {
	Provider       string `yaml:"provider"` // "none", "claude-cli", "anthropic", "ollama"
	Model          string `yaml:"model"`
	OllamaURL      string `yaml:"ollama_url"`
	OllamaModel    string `yaml:"ollama_model"`
	EmbeddingModel string `yaml:"embedding_model"` // e.g. "nomic-embed-text"
	AnthropicKey   string `yaml:"anthropic_key"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type FocusConfig struct {
	MinActive             int     `yaml:"min_active"`
	MaxActive             int     `yaml:"max_active"`
	BaseThreshold         float64 `yaml:"base_threshold"`
	FuzzyThreshold        float64 `yaml:"fuzzy_threshold"`
	PruneAfterMinutes     int     `yaml:"prune_after_minutes"`
	ExtractTimeoutSeconds int     `yaml:"extract_timeout_seconds"`
	Tokenizer             string  `yaml:"tokenizer"` // "script" or "whitespace"
	TopN                  int     `yaml:"top_n"`     // focus labels handed to retrieval
}

type PriorityConfig struct {
	ThetaTime  float64 `yaml:"theta_time"`
	ThetaReact float64 `yaml:"theta_react"`
	ThetaSem   float64 `yaml:"theta_sem"`
	ThetaDiff  float64 `yaml:"theta_diff"`
	Lambda     float64 `yaml:"lambda"`
	Alpha      float64 `yaml:"alpha"`
	Beta       float64 `yaml:"beta"`
	Gamma      float64 `yaml:"gamma"`
	MaxHops    int     `yaml:"max_hops"`
	Strategy   string  `yaml:"strategy"` // "multiplicative" or "softmax"
}

type PoolConfig struct {
	MaxSize              int     `yaml:"max_size"`
	CandidateK           int     `yaml:"candidate_k"`
	SimilarityThreshold  float64 `yaml:"similarity_threshold"`
	WeightEmbedding      float64 `yaml:"weight_embedding"`
	WeightConstraint     float64 `yaml:"weight_constraint"`
	WeightRecency        float64 `yaml:"weight_recency"`
	StalenessHours       float64 `yaml:"staleness_hours"`
	FreshnessWindowHours float64 `yaml:"freshness_window_hours"`
	ProximityDays        float64 `yaml:"proximity_days"`
	Concurrency          int     `yaml:"concurrency"`
	RefreshSeconds       int     `yaml:"refresh_seconds"` // 0 disables background refresh
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37780,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		LLM: LLMConfig{
			Provider:       "none",
			Model:          "haiku",
			EmbeddingModel: "nomic-embed-text",
		},
		Log: LogConfig{Level: "info"},
		Focus: FocusConfig{
			MinActive:             3,
			MaxActive:             12,
			BaseThreshold:         0.35,
			FuzzyThreshold:        0.70,
			PruneAfterMinutes:     120,
			ExtractTimeoutSeconds: 10,
			Tokenizer:             "script",
			TopN:                  5,
		},
		Priority: PriorityConfig{
			ThetaTime:  0.3,
			ThetaReact: 0.4,
			ThetaSem:   0.2,
			ThetaDiff:  0.1,
			Lambda:     0.01,
			Alpha:      1.0,
			Beta:       0.01,
			Gamma:      0.5,
			MaxHops:    1,
			Strategy:   "multiplicative",
		},
		Pool: PoolConfig{
			MaxSize:              20,
			CandidateK:           30,
			SimilarityThreshold:  0,
			WeightEmbedding:      0.4,
			WeightConstraint:     0.5,
			WeightRecency:        0.1,
			StalenessHours:       24,
			FreshnessWindowHours: 48,
			ProximityDays:        30,
			Concurrency:          4,
		},
	}
}

// DefaultPath returns ~/.attend/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(home, ".attend", "config.yaml")
}

// Load reads a YAML config over the defaults. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv overlays environment variables onto the config.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("ATTEND_DB"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("ATTEND_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("ATTEND_LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" && c.LLM.AnthropicKey == "" {
		c.LLM.AnthropicKey = v
	}
	if v := os.Getenv("OLLAMA_HOST"); v != "" && c.LLM.OllamaURL == "" {
		c.LLM.OllamaURL = v
	}
}

// Validate checks configuration sanity.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	switch c.LLM.Provider {
	case "none", "claude-cli", "anthropic", "ollama":
	default:
		return fmt.Errorf("unknown llm.provider: %q", c.LLM.Provider)
	}

	f := c.Focus
	if f.MinActive <= 0 {
		return errors.New("focus.min_active must be > 0")
	}
	if f.MaxActive < f.MinActive {
		return errors.New("focus.max_active must be >= focus.min_active")
	}
	if f.FuzzyThreshold <= 0 || f.FuzzyThreshold > 1 {
		return errors.New("focus.fuzzy_threshold must be in (0,1]")
	}
	if f.PruneAfterMinutes <= 0 || f.ExtractTimeoutSeconds <= 0 || f.TopN <= 0 {
		return errors.New("focus durations and top_n must be > 0")
	}
	switch strings.ToLower(f.Tokenizer) {
	case "script", "whitespace":
	default:
		return fmt.Errorf("unknown focus.tokenizer: %q", f.Tokenizer)
	}

	p := c.Priority
	if sum := p.ThetaTime + p.ThetaReact + p.ThetaSem + p.ThetaDiff; math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("priority weights must sum to 1, got %.4f", sum)
	}

	pl := c.Pool
	if pl.MaxSize <= 0 || pl.CandidateK <= 0 || pl.Concurrency <= 0 {
		return errors.New("pool.max_size, candidate_k and concurrency must be > 0")
	}
	if pl.StalenessHours <= 0 {
		return errors.New("pool.staleness_hours must be > 0")
	}
	if pl.RefreshSeconds < 0 {
		return errors.New("pool.refresh_seconds must be >= 0")
	}
	return nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
