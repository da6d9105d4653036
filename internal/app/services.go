package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/marketloom/pointer-engine/internal/analytics"
	"github.com/marketloom/pointer-engine/internal/audit"
	"github.com/marketloom/pointer-engine/internal/cache"
	"github.com/marketloom/pointer-engine/internal/detect"
	"github.com/marketloom/pointer-engine/internal/fetch"
	"github.com/marketloom/pointer-engine/internal/logger"
	"github.com/marketloom/pointer-engine/internal/observability"
	"github.com/marketloom/pointer-engine/internal/registry"
	"github.com/marketloom/pointer-engine/internal/security"
	"github.com/marketloom/pointer-engine/internal/types"
	"github.com/marketloom/pointer-engine/internal/validation"
)

// Hooks are the per-deployment extension points: the dynamic content
// generator/checker pair and the optional external relevance scorer.
type Hooks struct {
	DynamicGenerator fetch.Generator
	DynamicChecker   validation.DynamicChecker
	Scorer           detect.Scorer
}

type Services struct {
	Metrics    *observability.Metrics
	Audit      audit.Sink
	Cache      cache.Cache
	Queue      *validation.Queue
	Registry   *registry.Service
	Fetcher    *fetch.Fetcher
	Worker     *validation.Worker
	Detector   *detect.Detector
	Aggregator *analytics.Aggregator
}

func wireServices(log *logger.Logger, cfg Config, reposet Repos, hooks Hooks) (Services, error) {
	metrics := observability.NewMetrics(log)
	sink := audit.NewLogSink(log)

	var c cache.Cache
	switch cfg.CacheBackend {
	case "redis":
		redisCache, err := cache.NewRedisCache(cfg.CacheDefaultTTL, log)
		if err != nil {
			return Services{}, fmt.Errorf("init redis cache: %w", err)
		}
		c = redisCache
	default:
		c = cache.NewMemoryCache(cfg.CacheMaxEntries, cfg.CacheDefaultTTL, log)
	}

	filter := security.NewFilter(cfg.DeniedDomains, cfg.AllowedDomains, log)
	queue := validation.NewQueue()

	reg, err := registry.NewService(reposet.Pointer, queue, c, filter, sink, metrics, log)
	if err != nil {
		return Services{}, err
	}

	httpClient := &http.Client{
		Timeout: cfg.FetchHTTPTimeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	fetcher := fetch.NewFetcher(reg, c, cfg.CacheDefaultTTL, metrics, log)
	fetcher.Register(types.PointerTypeURL, fetch.NewURLRetriever(httpClient))
	fetcher.Register(types.PointerTypeExternal, fetch.NewURLRetriever(httpClient))
	fetcher.Register(types.PointerTypeSlug, fetch.NewSlugRetriever(reposet.ContentNode))
	fetcher.Register(types.PointerTypeID, fetch.NewIDRetriever(reposet.ContentNode))
	fetcher.Register(types.PointerTypeAPI, fetch.NewAPIRetriever(httpClient, cfg.ContentAPIBaseURL))
	fetcher.Register(types.PointerTypeFile, fetch.NewFileRetriever(cfg.ContentFileRoot))
	fetcher.Register(types.PointerTypeDynamic, fetch.NewDynamicRetriever(hooks.DynamicGenerator))

	worker := validation.NewWorker(queue, reg, reg,
		cfg.ValidationInterval, cfg.ValidationBatchSize, cfg.ValidationTimeout, metrics, log)
	worker.Register(types.PointerTypeURL, validation.NewURLValidator(httpClient))
	worker.Register(types.PointerTypeExternal, validation.NewURLValidator(httpClient))
	worker.Register(types.PointerTypeSlug, validation.NewSlugValidator(reposet.ContentNode))
	worker.Register(types.PointerTypeID, validation.NewNodeValidator(reposet.ContentNode))
	worker.Register(types.PointerTypeAPI, validation.NewAPIValidator(httpClient, cfg.ContentAPIBaseURL))
	worker.Register(types.PointerTypeFile, validation.NewFileValidator(cfg.ContentFileRoot))
	worker.Register(types.PointerTypeDynamic, validation.NewDynamicValidator(hooks.DynamicChecker))

	detector := detect.NewDetector(reposet.ContentNode, reposet.Pattern, hooks.Scorer, metrics, log)
	detector.SetDefaultMinConfidence(cfg.DetectMinConfidence)
	if cfg.PatternFile != "" {
		patterns, err := detect.LoadPatternsFromFile(cfg.PatternFile)
		if err != nil {
			return Services{}, fmt.Errorf("load relationship patterns: %w", err)
		}
		if err := detector.SeedPatterns(context.Background(), patterns); err != nil {
			return Services{}, fmt.Errorf("seed relationship patterns: %w", err)
		}
	} else if err := detector.Reload(context.Background()); err != nil {
		return Services{}, fmt.Errorf("load relationship patterns: %w", err)
	}

	aggregator := analytics.NewAggregator(reg, log)

	return Services{
		Metrics:    metrics,
		Audit:      sink,
		Cache:      c,
		Queue:      queue,
		Registry:   reg,
		Fetcher:    fetcher,
		Worker:     worker,
		Detector:   detector,
		Aggregator: aggregator,
	}, nil
}
