package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/hupe1980/eduswarm/api"
	"github.com/hupe1980/eduswarm/catalog"
	"github.com/hupe1980/eduswarm/config"
	"github.com/hupe1980/eduswarm/core"
	"github.com/hupe1980/eduswarm/logging"
	"github.com/hupe1980/eduswarm/memory"
	redismemory "github.com/hupe1980/eduswarm/memory/redis"
	"github.com/hupe1980/eduswarm/model"
	anthropicprovider "github.com/hupe1980/eduswarm/model/anthropic"
	openaiprovider "github.com/hupe1980/eduswarm/model/openai"
	"github.com/hupe1980/eduswarm/orchestrator"
	"github.com/hupe1980/eduswarm/research"
	"github.com/hupe1980/eduswarm/storage/inmemory"
	"github.com/hupe1980/eduswarm/storage/sqlite"
	"github.com/hupe1980/eduswarm/tool"
)

type app struct {
	cfg     *config.Config
	logger  *logging.SwarmLogger
	orch    *orchestrator.Orchestrator
	memory  *memory.Service
	health  map[string]api.Pinger
	closers []func() error
}

type storageBackend interface {
	core.Storage
	api.Pinger
}

func wireApp(cfg *config.Config, logOut io.Writer) (*app, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	logger := logging.NewLogger(&logging.LoggerConfig{
		Level:     level,
		Format:    cfg.Log.Format,
		Output:    logOut,
		Component: "eduswarm",
	})

	a := &app{cfg: cfg, logger: logger, health: map[string]api.Pinger{}}

	store, err := a.wireStorage()
	if err != nil {
		return nil, fmt.Errorf("wire storage: %w", err)
	}
	a.health["storage"] = store

	if err := a.wireMemory(); err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("wire memory: %w", err)
	}

	cat := catalog.Default()
	if cfg.CatalogPath != "" {
		if cat, err = catalog.Load(cfg.CatalogPath); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("wire catalog: %w", err)
		}
	}

	registry := tool.NewRegistry(logger.WithComponent("tool"), tool.NewEducationalTools(func(o *tool.EducationOptions) {
		if cfg.Research.APIKey != "" {
			o.Researcher = research.New(func(ro *research.Options) {
				ro.APIKey = cfg.Research.APIKey
				ro.BaseURL = cfg.Research.BaseURL
				ro.Model = cfg.Research.Model
				ro.Logger = logger.WithComponent("research")
			})
		}
	})...)

	provider, err := newProvider(cfg.Model)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("wire model: %w", err)
	}
	llm := model.NewService(provider, func(o *model.Options) {
		o.MaxRounds = cfg.Model.MaxRounds
		o.Tools = registry
		o.Logger = logger.WithComponent("model")
	})

	a.orch = orchestrator.New(func(o *orchestrator.Options) {
		o.Storage = store
		o.Memory = a.memory
		o.Model = llm
		o.Catalog = cat
		o.Tools = registry
		o.DefaultAgent = cfg.Orchestrator.DefaultAgent
		o.MemoryLimit = cfg.Memory.HistoryLimit
		o.MaxParallelProcesses = cfg.Orchestrator.MaxParallelProcesses
		o.Logger = logger.WithComponent("orchestrator")
	})
	return a, nil
}

func (a *app) wireStorage() (storageBackend, error) {
	switch a.cfg.Storage.Driver {
	case config.DriverSQLite:
		store, err := sqlite.Open(a.cfg.Storage.Path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store.Close)
		return store, nil
	default:
		return inmemory.New(), nil
	}
}

func (a *app) wireMemory() error {
	opts := []func(o *memory.Options){func(o *memory.Options) {
		o.Local = memory.NewLocalStore(a.cfg.Memory.LocalCap)
		o.Logger = a.logger.WithComponent("memory")
	}}
	if a.cfg.Memory.RedisURL != "" {
		remote, err := redismemory.NewFromURL(a.cfg.Memory.RedisURL)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, remote.Close)
		a.health["memory"] = remote
		opts = append(opts, func(o *memory.Options) { o.Remote = remote })
	}
	a.memory = memory.NewService(opts...)
	return nil
}

func newProvider(cfg config.ModelConfig) (model.Provider, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		return openaiprovider.NewProvider(func(o *openaiprovider.Options) {
			if cfg.Name != "" {
				o.Model = cfg.Name
			}
			o.Temperature = cfg.Temperature
			o.MaxCompletionTokens = int64(cfg.MaxTokens)
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
		}), nil
	case config.ProviderAnthropic:
		return anthropicprovider.NewProvider(func(o *anthropicprovider.Options) {
			if cfg.Name != "" {
				o.Model = anthropic.Model(cfg.Name)
			}
			o.Temperature = cfg.Temperature
			o.MaxTokens = int64(cfg.MaxTokens)
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
		}), nil
	case config.ProviderMock:
		return model.NewMockProvider("mock"), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}

// watchMemory retries the remote memory backend while it is in fallback.
func (a *app) watchMemory(ctx context.Context, interval time.Duration) {
	if a.cfg.Memory.RedisURL == "" {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if a.memory.Mode() != memory.ModeLocalFallback {
				continue
			}
			if err := a.memory.Reconnect(ctx); err != nil {
				a.logger.Debug("memory.reconnect.failed", "error", err)
			}
		}
	}
}

// Close releases every opened backend.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
