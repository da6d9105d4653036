package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/marketloom/pointer-engine/internal/apperr"
	"github.com/marketloom/pointer-engine/internal/cache"
	"github.com/marketloom/pointer-engine/internal/logger"
	"github.com/marketloom/pointer-engine/internal/observability"
	"github.com/marketloom/pointer-engine/internal/types"
)

// PointerSource is the slice of the registry the fetcher needs. Keeps the
// dependency pointing registry -> fetch-free.
type PointerSource interface {
	Get(ctx context.Context, id uuid.UUID) (*types.ContentPointer, error)
	RecordAccess(ctx context.Context, id uuid.UUID, at time.Time) error
}

// Options for a single fetch. The zero value means: use the cache, allow
// fallback content, no extra timeout beyond ctx.
type Options struct {
	SkipCache  bool
	NoFallback bool
	Timeout    time.Duration
}

type cachedContent struct {
	Content     string `json:"content"`
	ContentType string `json:"content_type"`
	Size        int    `json:"size"`
}

type Fetcher struct {
	log        *logger.Logger
	source     PointerSource
	cache      cache.Cache
	retrievers map[types.PointerType]Retriever
	defaultTTL time.Duration
	metrics    *observability.Metrics
	now        func() time.Time
}

func NewFetcher(source PointerSource, c cache.Cache, defaultTTL time.Duration, metrics *observability.Metrics, baseLog *logger.Logger) *Fetcher {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &Fetcher{
		log:        baseLog.With("service", "ContentFetcher"),
		source:     source,
		cache:      c,
		retrievers: make(map[types.PointerType]Retriever),
		defaultTTL: defaultTTL,
		metrics:    metrics,
		now:        time.Now,
	}
}

// Register installs the retriever for a pointer type. Adding a type is a pure
// addition; nothing in FetchContent switches on concrete types.
func (f *Fetcher) Register(t types.PointerType, r Retriever) {
	f.retrievers[t] = r
}

// FetchContent resolves a pointer to live content. It never lets a failure
// escape as a panic or bare error: every path yields a FetchResult.
func (f *Fetcher) FetchContent(ctx context.Context, pointerID uuid.UUID, opts Options) types.FetchResult {
	ctx, span := observability.Tracer().Start(ctx, "fetch.content")
	defer span.End()
	span.SetAttributes(attribute.String("pointer.id", pointerID.String()))

	stop := f.metrics.StartTimer("fetch_content")
	defer stop()

	p, err := f.source.Get(ctx, pointerID)
	if err != nil {
		return failure(pointerID, "", fmt.Sprintf("resolve pointer: %v", err))
	}
	if p == nil {
		return failure(pointerID, "", "pointer not found")
	}

	if !opts.SkipCache {
		if res, ok := f.cacheLookup(ctx, p); ok {
			f.metrics.Inc("fetch_cache_hit")
			return res
		}
		f.metrics.Inc("fetch_cache_miss")
	}

	retriever, ok := f.retrievers[p.PointerType]
	if !ok {
		return f.failureOrFallback(p, opts, fmt.Sprintf("no retriever for pointer type %q", p.PointerType))
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	started := f.now()
	content, err := f.fetchSafely(ctx, retriever, p)
	elapsed := f.now().Sub(started)
	if err != nil {
		f.log.Warn("Fetch failed", "pointer_id", p.ID, "pointer_type", p.PointerType, "error", err)
		f.metrics.Inc("fetch_failure")
		return f.failureOrFallback(p, opts, err.Error())
	}

	f.cacheStore(ctx, p, content)
	if err := f.source.RecordAccess(ctx, p.ID, f.now()); err != nil {
		f.log.Warn("Failed to record access", "pointer_id", p.ID, "error", err)
	}

	return types.FetchResult{
		Success:     true,
		PointerID:   p.ID,
		PointerType: p.PointerType,
		Content:     content.Body,
		ContentType: content.ContentType,
		Size:        len(content.Body),
		FetchTime:   elapsed,
	}
}

// fetchSafely converts a panicking retriever into an error so one bad
// strategy cannot take the process down.
func (f *Fetcher) fetchSafely(ctx context.Context, r Retriever, p *types.ContentPointer) (content Content, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = apperr.NewFetch(string(p.PointerType), fmt.Errorf("retriever panic: %v", rec))
		}
	}()
	content, err = r.Fetch(ctx, p)
	if err != nil {
		err = apperr.NewFetch(string(p.PointerType), err)
	}
	return content, err
}

func (f *Fetcher) cacheLookup(ctx context.Context, p *types.ContentPointer) (types.FetchResult, bool) {
	raw, hit, err := f.cache.Get(ctx, cache.NamespaceContent, p.TargetID)
	if err != nil {
		f.log.Warn("Cache lookup failed", "target_id", p.TargetID, "error", err)
		return types.FetchResult{}, false
	}
	if !hit {
		return types.FetchResult{}, false
	}
	var cc cachedContent
	if err := json.Unmarshal(raw, &cc); err != nil {
		_ = f.cache.Delete(ctx, cache.NamespaceContent, p.TargetID)
		return types.FetchResult{}, false
	}
	return types.FetchResult{
		Success:     true,
		PointerID:   p.ID,
		PointerType: p.PointerType,
		Content:     cc.Content,
		ContentType: cc.ContentType,
		Size:        cc.Size,
		Cached:      true,
	}, true
}

func (f *Fetcher) cacheStore(ctx context.Context, p *types.ContentPointer, content Content) {
	raw, err := json.Marshal(cachedContent{
		Content:     content.Body,
		ContentType: content.ContentType,
		Size:        len(content.Body),
	})
	if err != nil {
		return
	}
	if err := f.cache.Set(ctx, cache.NamespaceContent, p.TargetID, raw, p.TTLOrDefault(f.defaultTTL)); err != nil {
		f.log.Warn("Cache store failed", "target_id", p.TargetID, "error", err)
	}
}

// failureOrFallback synthesizes a result from the pointer's fallback content
// when allowed. A fallback result reads as a success to the caller but is
// flagged FromFallback and carries the underlying error.
func (f *Fetcher) failureOrFallback(p *types.ContentPointer, opts Options, errMsg string) types.FetchResult {
	if !opts.NoFallback {
		if fb := p.Fallback.Data(); fb != nil {
			body := fb.Markup
			ct := "text/html"
			if body == "" {
				body = fb.Title
				if fb.Description != "" {
					body += "\n" + fb.Description
				}
				ct = "text/plain"
			}
			f.metrics.Inc("fetch_fallback")
			return types.FetchResult{
				Success:      true,
				PointerID:    p.ID,
				PointerType:  p.PointerType,
				Content:      body,
				ContentType:  ct,
				Size:         len(body),
				FromFallback: true,
				Error:        errMsg,
			}
		}
	}
	return failure(p.ID, p.PointerType, errMsg)
}

func failure(id uuid.UUID, t types.PointerType, msg string) types.FetchResult {
	return types.FetchResult{
		Success:     false,
		PointerID:   id,
		PointerType: t,
		Error:       msg,
	}
}
