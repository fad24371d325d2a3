package render

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"forge/internal/models"
	"forge/internal/pkg/errors"
	"forge/internal/pkg/logger"
)

// State is the batch lifecycle position. Failed is terminal and reachable
// only from Pending, on a setup error before any row is attempted.
type State string

const (
	StatePending     State = "pending"
	StatePrefetching State = "prefetching"
	StateRendering   State = "rendering"
	StateCompleted   State = "completed"
	StateFailed      State = "failed"
)

const (
	// DefaultConcurrency is the chunk size used when the request does not
	// set one.
	DefaultConcurrency = 5
	// MaxConcurrency caps the chunk size to keep memory bounded.
	MaxConcurrency = 32
)

// Uploader is the object-storage collaborator. Failures surface as row
// failures and are never retried here.
type Uploader interface {
	Upload(ctx context.Context, data []byte, key, contentType string) (url string, err error)
}

// ProgressReporter receives fire-and-forget per-row completion signals.
// Implementations must swallow their own errors; progress unavailability
// never affects batch correctness.
type ProgressReporter interface {
	Increment(ctx context.Context, batchID string, delta int)
}

// BatchRequest is one bulk-generation run covering all rows for a campaign.
type BatchRequest struct {
	BatchID      string
	Templates    []*models.Template
	Rows         []models.Row
	FieldMapping models.FieldMapping
	Mode         Mode
	ModeColumn   string
	Seed         *int64
	Concurrency  int
	Output       Config
}

// RowResult is the outcome for one row index: success with a URL, or a
// failure message. Warnings carry per-field fallback notes either way.
type RowResult struct {
	RowIndex int      `json:"row_index"`
	Success  bool     `json:"success"`
	URL      string   `json:"url,omitempty"`
	Error    string   `json:"error,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Stats aggregates a completed batch.
type Stats struct {
	Total         int     `json:"total"`
	Success       int     `json:"success"`
	Failed        int     `json:"failed"`
	DurationMs    int64   `json:"duration_ms"`
	RowsPerSecond float64 `json:"rows_per_second"`
}

// BatchResponse carries one result per attempted row, ordered by row index,
// plus aggregate stats. Rows never started because of an abort have no
// entry; Aborted marks that case.
type BatchResponse struct {
	Results []RowResult `json:"results"`
	Stats   Stats       `json:"stats"`
	Aborted bool        `json:"aborted,omitempty"`
}

// Orchestrator drives chunked, concurrency-bounded execution across all rows
// of a batch. The surface pool and the image cache are created per run and
// torn down on every exit path, so concurrent campaigns through separate
// runs cannot interfere.
type Orchestrator struct {
	engine   *Engine
	uploader Uploader
	progress ProgressReporter
	client   *http.Client
	log      *logger.Logger
}

// NewOrchestrator wires the orchestrator's collaborators. progress may be
// nil. client feeds the per-batch image cache; nil gets a default.
func NewOrchestrator(engine *Engine, uploader Uploader, progress ProgressReporter, client *http.Client, log *logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Orchestrator{
		engine:   engine,
		uploader: uploader,
		progress: progress,
		client:   client,
		log:      log.WithComponent("orchestrator"),
	}
}

// Run executes one batch. Only setup errors are returned as an error; every
// per-row failure is captured in the results array. Cancelling ctx between
// chunks stops the batch, keeping the results of finished chunks.
func (o *Orchestrator) Run(ctx context.Context, req BatchRequest) (*BatchResponse, error) {
	start := time.Now()
	log := o.log.WithBatchID(req.BatchID)

	state := StatePending
	setState := func(s State) {
		state = s
		log.Debug("batch state changed", "state", string(state))
	}

	concurrency, tpl, err := o.validate(&req)
	if err != nil {
		setState(StateFailed)
		return nil, err
	}

	assignments, err := AssignTemplates(req.Templates, req.Mode, req.Rows, SelectorOptions{
		Column: req.ModeColumn,
		Seed:   req.Seed,
	})
	if err != nil {
		setState(StateFailed)
		return nil, errors.WrapWithCode(err, errors.CodeValidation, "batch.setup", "template assignment failed")
	}

	cfg := req.Output.normalized()
	surfaceW := int(float64(tpl.Width) * cfg.Scale)
	surfaceH := int(float64(tpl.Height) * cfg.Scale)

	pool, err := NewPool(surfaceW, surfaceH, concurrency)
	if err != nil {
		setState(StateFailed)
		return nil, errors.WrapWithCode(err, errors.CodeValidation, "batch.setup", "surface pool setup failed")
	}
	defer pool.Cleanup()

	if err := pool.Prewarm(concurrency); err != nil {
		setState(StateFailed)
		return nil, errors.Wrap(err, "batch.setup", "surface prewarm failed")
	}

	cache := NewImageCache(o.client, o.log)
	defer cache.Clear()

	setState(StatePrefetching)
	urls := CollectImageURLs(req.Templates, req.Rows, req.FieldMapping)
	if err := cache.Prefetch(ctx, urls); err != nil {
		// Only context cancellation reaches here: no row was attempted.
		log.Warn("batch aborted during prefetch", "error", err.Error())
		return &BatchResponse{Aborted: true, Stats: Stats{Total: len(req.Rows)}}, nil
	}
	log.Info("image prefetch completed",
		"distinct_urls", len(urls),
		"cached", cache.Len(),
	)

	setState(StateRendering)
	total := len(req.Rows)
	results := make([]RowResult, total)
	attempted := make([]bool, total)
	aborted := false

	for chunkStart := 0; chunkStart < total; chunkStart += concurrency {
		if ctx.Err() != nil {
			aborted = true
			break
		}

		chunkEnd := chunkStart + concurrency
		if chunkEnd > total {
			chunkEnd = total
		}

		done := make(chan int, chunkEnd-chunkStart)
		for idx := chunkStart; idx < chunkEnd; idx++ {
			go func() {
				results[idx] = o.runTask(ctx, req, cfg, idx, assignments[idx], pool, cache)
				attempted[idx] = true
				done <- idx
			}()
		}
		for i := chunkStart; i < chunkEnd; i++ {
			<-done
		}

		log.Debug("chunk completed", "from", chunkStart, "to", chunkEnd-1)
	}

	resp := &BatchResponse{Aborted: aborted}
	for idx, r := range results {
		if !attempted[idx] {
			continue
		}
		resp.Results = append(resp.Results, r)
		if r.Success {
			resp.Stats.Success++
		} else {
			resp.Stats.Failed++
		}
	}
	resp.Stats.Total = total

	duration := time.Since(start)
	resp.Stats.DurationMs = duration.Milliseconds()
	if secs := duration.Seconds(); secs > 0 {
		resp.Stats.RowsPerSecond = float64(len(resp.Results)) / secs
	}

	setState(StateCompleted)
	log.Info("batch completed",
		"total", resp.Stats.Total,
		"success", resp.Stats.Success,
		"failed", resp.Stats.Failed,
		"aborted", aborted,
		"duration_ms", resp.Stats.DurationMs,
	)
	return resp, nil
}

// validate checks the batch setup. Violations are SetupErrors: they abort
// before any row is attempted.
func (o *Orchestrator) validate(req *BatchRequest) (int, *models.Template, error) {
	if o.uploader == nil {
		return 0, nil, errors.New(errors.CodeFailedPrecond, "no uploader configured")
	}
	if len(req.Templates) == 0 {
		return 0, nil, errors.ValidationField("templates", "at least one template is required")
	}
	if len(req.Rows) == 0 {
		return 0, nil, errors.ValidationField("rows", "at least one row is required")
	}

	tpl := req.Templates[0]
	for _, t := range req.Templates {
		// A malformed template fails every row identically; classify it as a
		// setup error before any row is attempted.
		if err := t.Validate(); err != nil {
			return 0, nil, errors.WrapWithCode(err, errors.CodeValidation, "batch.setup",
				fmt.Sprintf("template %s is invalid", t.ID))
		}
		if t.Width != tpl.Width || t.Height != tpl.Height {
			return 0, nil, errors.Validationf(
				"all templates in a batch must share canvas dimensions: %s is %dx%d, %s is %dx%d",
				tpl.ID, tpl.Width, tpl.Height, t.ID, t.Width, t.Height,
			)
		}
	}

	concurrency := req.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	if concurrency > MaxConcurrency {
		concurrency = MaxConcurrency
	}
	return concurrency, tpl, nil
}

// runTask renders, exports and uploads one row. Every failure mode inside
// the task, panics included, becomes a failed RowResult for this row index
// only; sibling tasks and later chunks are unaffected.
func (o *Orchestrator) runTask(ctx context.Context, req BatchRequest, cfg Config, idx int, asg Assignment, pool *Pool, cache *ImageCache) (res RowResult) {
	res = RowResult{RowIndex: idx}
	if asg.Warning != "" {
		res.Warnings = append(res.Warnings, asg.Warning)
	}

	defer func() {
		if r := recover(); r != nil {
			res.Success = false
			res.URL = ""
			res.Error = fmt.Sprintf("render panic: %v", r)
		}
	}()

	surface, err := pool.Acquire()
	if err != nil {
		res.Error = fmt.Sprintf("surface acquire failed: %v", err)
		return res
	}
	defer pool.Release(surface)

	data, warnings, err := o.engine.Render(ctx, asg.Template, cfg, surface, req.Rows[idx], req.FieldMapping, cache)
	res.Warnings = append(res.Warnings, warnings...)
	if err != nil {
		res.Error = fmt.Sprintf("render failed: %v", err)
		return res
	}

	key := fmt.Sprintf("renders/%s/row_%05d%s", req.BatchID, idx, cfg.Ext())
	url, err := o.uploader.Upload(ctx, data, key, cfg.ContentType())
	if err != nil {
		res.Error = fmt.Sprintf("upload failed: %v", err)
		return res
	}

	res.Success = true
	res.URL = url

	if o.progress != nil {
		o.progress.Increment(ctx, req.BatchID, 1)
	}
	return res
}
