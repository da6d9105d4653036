package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"gorm.io/gorm"

	"github.com/marketloom/pointer-engine/internal/cache"
	"github.com/marketloom/pointer-engine/internal/db"
	"github.com/marketloom/pointer-engine/internal/logger"
	"github.com/marketloom/pointer-engine/internal/observability"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	Repos    Repos
	Services Services

	cancel       context.CancelFunc
	otelShutdown func(context.Context) error
}

func New(hooks Hooks) (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	store, err := db.New(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := store.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	theDB := store.DB()

	reposet := wireRepos(theDB, log)

	serviceset, err := wireServices(log, cfg, reposet, hooks)
	if err != nil {
		log.Sync()
		return nil, err
	}

	return &App{
		Log:      log,
		DB:       theDB,
		Cfg:      cfg,
		Repos:    reposet,
		Services: serviceset,
	}, nil
}

// Start launches the background actors: the validation worker and, for the
// in-process cache backend, the periodic expiry sweep.
func (a *App) Start() {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	a.otelShutdown = observability.InitOTel(ctx, a.Log, observability.OtelConfig{
		ServiceName: "pointer-engine",
		Environment: a.Cfg.Environment,
	})

	a.Services.Worker.Start(ctx)

	if mem, ok := a.Services.Cache.(*cache.MemoryCache); ok {
		go a.runCacheSweep(ctx, mem)
	}
}

func (a *App) runCacheSweep(ctx context.Context, mem *cache.MemoryCache) {
	ticker := time.NewTicker(a.Cfg.CacheSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := mem.Sweep(); removed > 0 {
				stats := mem.Stats()
				a.Log.Debug("Cache sweep reclaimed entries",
					"removed", removed,
					"entries", stats.Entries,
					"hits", stats.Hits,
					"misses", stats.Misses,
					"evictions", stats.Evictions,
				)
			}
		}
	}
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.otelShutdown != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.otelShutdown(shutdownCtx)
	}
	if closer, ok := a.Services.Cache.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
