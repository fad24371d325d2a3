package worker

import (
	"context"
	"time"

	"forge/internal/pkg/logger"
	"forge/internal/progress"
	"forge/internal/render"
	"forge/internal/worker/processor"
	"forge/internal/worker/queue"
)

func Run(ctx context.Context, d Deps) error {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("worker")

	// Fonts are a render precondition: load them once, before the first
	// batch is popped.
	fonts, err := render.NewFontCache()
	if err != nil {
		return err
	}
	if d.FontDir != "" {
		if err := fonts.LoadDir(d.FontDir); err != nil {
			log.Warn("font directory load incomplete",
				"dir", d.FontDir,
				"error", err.Error(),
			)
		}
	}

	q := queue.NewRedisQueue(d.RDB, d.QueueName)

	engine := render.NewEngine(fonts, nil, log)
	uploader := processor.NewStorageUploader(d.SP, d.PublicBase)
	reporter := progress.NewRedisProgress(d.RDB, log)
	orchestrator := render.NewOrchestrator(engine, uploader, reporter, nil, log)

	p := processor.New(processor.Deps{
		Pool:         d.Pool,
		SP:           d.SP,
		Orchestrator: orchestrator,
		Log:          log,
	})

	for {
		select {
		case <-ctx.Done():
			log.Info("worker context canceled, stopping")
			return ctx.Err()
		default:
		}

		// Use a separate context with timeout for queue operations
		popCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		batchID, err := q.Pop(popCtx)
		cancel()

		if err != nil {
			// Check if it's a context cancellation
			if ctx.Err() != nil {
				log.Info("worker stopping due to context cancellation")
				return ctx.Err()
			}

			log.Warn("queue pop error, retrying",
				"error", err.Error(),
			)
			time.Sleep(1 * time.Second)
			continue
		}

		if batchID == "" {
			continue
		}

		// Create a context for this batch
		batchCtx := logger.ContextWithBatchID(ctx, batchID)
		batchLog := log.WithBatchID(batchID)

		batchLog.Info("processing batch")
		startTime := time.Now()

		if err := p.ProcessBatch(batchCtx, batchID); err != nil {
			batchLog.Error("batch failed",
				"error", err.Error(),
				"duration_ms", time.Since(startTime).Milliseconds(),
			)
		} else {
			batchLog.Info("batch completed",
				"duration_ms", time.Since(startTime).Milliseconds(),
			)
		}
	}
}
