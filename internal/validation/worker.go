package validation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/marketloom/pointer-engine/internal/apperr"
	"github.com/marketloom/pointer-engine/internal/logger"
	"github.com/marketloom/pointer-engine/internal/observability"
	"github.com/marketloom/pointer-engine/internal/types"
)

// PointerSource resolves queued ids back to pointers.
type PointerSource interface {
	Get(ctx context.Context, id uuid.UUID) (*types.ContentPointer, error)
}

// StatusWriter applies a validation result to the registry. It is the only
// path through which validationStatus changes.
type StatusWriter interface {
	ApplyValidation(ctx context.Context, result types.ValidationResult) error
}

type CycleStats struct {
	Drained   int
	Validated int
	Failed    int
	Skipped   int
}

// Worker drains the validation queue on a fixed interval in bounded batches.
// Batching caps outbound concurrency against possibly-slow targets; one
// broken or panicking validator never stalls its siblings.
type Worker struct {
	log        *logger.Logger
	queue      *Queue
	source     PointerSource
	writer     StatusWriter
	validators map[types.PointerType]Validator
	interval   time.Duration
	batchSize  int
	timeout    time.Duration
	metrics    *observability.Metrics
	now        func() time.Time
}

func NewWorker(queue *Queue, source PointerSource, writer StatusWriter,
	interval time.Duration, batchSize int, timeout time.Duration,
	metrics *observability.Metrics, baseLog *logger.Logger) *Worker {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if batchSize < 1 {
		batchSize = 10
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Worker{
		log:        baseLog.With("component", "ValidationWorker"),
		queue:      queue,
		source:     source,
		writer:     writer,
		validators: make(map[types.PointerType]Validator),
		interval:   interval,
		batchSize:  batchSize,
		timeout:    timeout,
		metrics:    metrics,
		now:        time.Now,
	}
}

// Register installs the validator for a pointer type.
func (w *Worker) Register(t types.PointerType, v Validator) {
	w.validators[t] = v
}

// SetNowFunc overrides the clock. Test helper.
func (w *Worker) SetNowFunc(now func() time.Time) { w.now = now }

// Start launches the ticker loop. RunCycle stays callable directly so tests
// never have to wait on real time.
func (w *Worker) Start(ctx context.Context) {
	w.log.Info("Starting validation worker", "interval", w.interval, "batch_size", w.batchSize)
	go func() {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				w.log.Info("Validation worker stopped")
				return
			case <-ticker.C:
				stats := w.RunCycle(ctx)
				if stats.Drained > 0 {
					w.log.Info("Validation cycle complete",
						"drained", stats.Drained,
						"validated", stats.Validated,
						"failed", stats.Failed,
						"skipped", stats.Skipped,
					)
				}
			}
		}
	}()
}

// RunCycle snapshots the queue and validates every drained pointer in batches.
// Individual failures are logged and counted, never propagated.
func (w *Worker) RunCycle(ctx context.Context) CycleStats {
	ctx, span := observability.Tracer().Start(ctx, "validation.cycle")
	defer span.End()

	stop := w.metrics.StartTimer("validation_cycle")
	defer stop()

	ids := w.queue.Drain()
	stats := CycleStats{Drained: len(ids)}
	span.SetAttributes(attribute.Int("queue.drained", len(ids)))

	for start := 0; start < len(ids); start += w.batchSize {
		end := start + w.batchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]

		g, batchCtx := errgroup.WithContext(ctx)
		g.SetLimit(w.batchSize)
		results := make([]*types.ValidationResult, len(batch))
		for i, id := range batch {
			i, id := i, id
			g.Go(func() error {
				res, err := w.validateOne(batchCtx, id)
				if err != nil {
					w.log.Warn("Pointer validation failed", "pointer_id", id, "error", err)
					return nil
				}
				results[i] = res
				return nil
			})
		}
		_ = g.Wait()

		for _, res := range results {
			if res == nil {
				stats.Failed++
				continue
			}
			if res.PointerID == uuid.Nil {
				stats.Skipped++
				continue
			}
			if err := w.writer.ApplyValidation(ctx, *res); err != nil {
				w.log.Warn("Failed to apply validation result", "pointer_id", res.PointerID, "error", err)
				stats.Failed++
				continue
			}
			stats.Validated++
		}
	}

	w.metrics.Add("validation_checked", int64(stats.Validated))
	w.metrics.Add("validation_errors", int64(stats.Failed))
	return stats
}

// ValidatePointer runs the type-specific check for one pointer on demand,
// outside the scheduled cycle, and applies the result immediately.
func (w *Worker) ValidatePointer(ctx context.Context, id uuid.UUID) (types.ValidationResult, error) {
	res, err := w.validateOne(ctx, id)
	if err != nil {
		return types.ValidationResult{}, err
	}
	if res.PointerID == uuid.Nil {
		return types.ValidationResult{}, apperr.NewNotFound(id.String())
	}
	if err := w.writer.ApplyValidation(ctx, *res); err != nil {
		return types.ValidationResult{}, err
	}
	w.queue.Remove(id)
	return *res, nil
}

// validateOne returns a zero-id result when the pointer no longer exists
// (deleted after enqueue), which the cycle counts as skipped.
func (w *Worker) validateOne(ctx context.Context, id uuid.UUID) (res *types.ValidationResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = apperr.NewValidation("", fmt.Errorf("validator panic: %v", rec))
		}
	}()

	p, err := w.source.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return &types.ValidationResult{}, nil
	}

	validator, ok := w.validators[p.PointerType]
	if !ok {
		return nil, apperr.NewValidation(string(p.PointerType),
			fmt.Errorf("no validator registered"))
	}

	vctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	result, err := validator.Validate(vctx, p)
	if err != nil {
		return nil, err
	}
	result.PointerID = p.ID
	return &result, nil
}
