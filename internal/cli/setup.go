package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/lazypower/attend/internal/config"
	"github.com/lazypower/attend/internal/engine"
	"github.com/lazypower/attend/internal/llm"
	"github.com/lazypower/attend/internal/logging"
	"github.com/lazypower/attend/internal/store"
)

const (
	defaultOllamaURL = "http://localhost:11434"
	tfidfTerms       = 512
	ollamaDims       = 768
)

// loadConfig resolves the config file, environment and flag overrides.
func loadConfig() (config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	cfg.ApplyEnv()
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	if cfg.Database.Path == "" {
		p, err := store.DefaultDBPath()
		if err != nil {
			return cfg, fmt.Errorf("resolve db path: %w", err)
		}
		cfg.Database.Path = p
	}
	return cfg, nil
}

// runtime bundles what every engine-backed command needs.
type runtime struct {
	cfg    config.Config
	db     *store.DB
	engine *engine.Engine
	logger *log.Logger
}

func (r *runtime) Close() error {
	r.engine.Stop()
	return r.db.Close()
}

// openRuntime loads config, opens the database and wires an engine. Logs go
// to logOut so stdio transports keep stdout clean.
func openRuntime(ctx context.Context, logOut io.Writer) (*runtime, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := logging.New(logOut, cfg.Log.Level, "attend")

	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	client, err := llm.NewClient(cfg.LLM)
	switch {
	case errors.Is(err, llm.ErrNoProvider):
		logger.Info("llm extraction disabled, using rules")
		client = nil
	case err != nil:
		logger.Warn("llm not configured, using rules", "error", err)
		client = nil
	default:
		logger.Info("llm configured", "provider", cfg.LLM.Provider, "model", cfg.LLM.Model)
	}

	emb, err := chooseEmbedder(ctx, cfg.LLM, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("embedder ready", "model", emb.Model())

	eng, err := engine.New(db, client, emb, engine.SettingsFromConfig(cfg), logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &runtime{cfg: cfg, db: db, engine: eng, logger: logger}, nil
}

// chooseEmbedder prefers a reachable Ollama embedding model and falls back
// to TF-IDF over the stored events.
func chooseEmbedder(ctx context.Context, cfg config.LLMConfig, db *store.DB) (engine.Embedder, error) {
	url := cfg.OllamaURL
	if url == "" {
		url = defaultOllamaURL
	}
	model := cfg.EmbeddingModel
	if model == "" {
		model = "nomic-embed-text"
	}

	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if engine.ProbeOllama(probeCtx, url, model) {
		return engine.NewOllamaEmbedder(url, model, ollamaDims), nil
	}
	emb, err := engine.NewTFIDFEmbedder(ctx, db, tfidfTerms)
	if err != nil {
		return nil, fmt.Errorf("tfidf embedder: %w", err)
	}
	return emb, nil
}
