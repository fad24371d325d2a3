package processor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"forge/internal/pkg/errors"
	"forge/internal/pkg/logger"
	"forge/internal/ports"
	"forge/internal/render"
	"forge/internal/repositories"
)

type Deps struct {
	Pool         *pgxpool.Pool
	SP           ports.StorageProvider
	Orchestrator *render.Orchestrator
	Log          *logger.Logger
}

// Processor runs one queued batch end to end: load and validate the stored
// definition, resolve its templates, hand everything to the render
// orchestrator, and persist the per-row results.
type Processor struct {
	pool         *pgxpool.Pool
	sp           ports.StorageProvider
	orchestrator *render.Orchestrator
	templates    *repositories.TemplateRepository
	log          *logger.Logger
}

func New(d Deps) *Processor {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	return &Processor{
		pool:         d.Pool,
		sp:           d.SP,
		orchestrator: d.Orchestrator,
		templates:    repositories.NewTemplateRepository(d.Pool),
		log:          log.WithComponent("processor"),
	}
}

// ProcessBatch drives the full flow for one batch id.
func (p *Processor) ProcessBatch(ctx context.Context, batchID string) error {
	log := p.log.FromContext(ctx).WithBatchID(batchID)

	log.Debug("fetching batch params")
	paramsJSON, err := p.fetchBatchParams(ctx, batchID)
	if err != nil {
		return p.failBatch(ctx, batchID, errors.Wrap(err, "processor.fetch", "failed to fetch batch params"))
	}

	log.Debug("parsing batch params")
	parsed, err := ParseBatchParams(paramsJSON)
	if err != nil {
		return p.failBatch(ctx, batchID, errors.WrapWithCode(err, errors.CodeValidation, "processor.parse", "failed to parse batch params"))
	}

	log.Debug("loading templates", "count", len(parsed.Params.TemplateIDs))
	templates, err := p.templates.GetMany(ctx, parsed.Params.TemplateIDs)
	if err != nil {
		return p.failBatch(ctx, batchID, errors.WrapWithCode(err, errors.CodeNotFound, "processor.templates", "failed to load batch templates"))
	}

	log.Debug("marking batch as running")
	if err := p.markBatchRunning(ctx, batchID); err != nil {
		return p.failBatch(ctx, batchID, errors.Wrap(err, "processor.status", "failed to mark batch as running"))
	}

	log.Info("starting batch render",
		"rows", len(parsed.Params.Rows),
		"templates", len(templates),
		"mode", string(parsed.Mode),
	)
	resp, err := p.orchestrator.Run(ctx, render.BatchRequest{
		BatchID:      batchID,
		Templates:    templates,
		Rows:         parsed.Params.Rows,
		FieldMapping: parsed.Params.FieldMapping,
		Mode:         parsed.Mode,
		ModeColumn:   parsed.Params.DistributionColumn,
		Seed:         parsed.Params.Seed,
		Concurrency:  parsed.Params.ConcurrencyLimit,
		Output:       parsed.Params.Output,
	})
	if err != nil {
		// Only setup errors cross the batch boundary; per-row failures are
		// data inside resp.
		return p.failBatch(ctx, batchID, errors.Wrap(err, "processor.render", "batch setup failed"))
	}

	log.Debug("saving batch results")
	if err := p.saveBatchResults(ctx, batchID, resp); err != nil {
		return p.failBatch(ctx, batchID, errors.Wrap(err, "processor.save", "failed to save batch results"))
	}

	return p.markBatchDone(ctx, batchID)
}

func (p *Processor) fetchBatchParams(ctx context.Context, batchID string) (string, error) {
	var paramsJSON string
	err := p.pool.QueryRow(ctx,
		`SELECT params_json FROM batches WHERE id=$1`,
		batchID,
	).Scan(&paramsJSON)
	if err != nil {
		return "", fmt.Errorf("batch not found: %w", err)
	}
	return paramsJSON, nil
}

func (p *Processor) markBatchRunning(ctx context.Context, batchID string) error {
	_, err := p.pool.Exec(ctx,
		`UPDATE batches SET status='RUNNING', started_at=NOW(), finished_at=NULL, error_text=NULL WHERE id=$1`,
		batchID,
	)
	return err
}

func (p *Processor) markBatchDone(ctx context.Context, batchID string) error {
	_, err := p.pool.Exec(ctx,
		`UPDATE batches SET status='DONE', finished_at=NOW() WHERE id=$1`,
		batchID,
	)
	return err
}

func (p *Processor) saveBatchResults(ctx context.Context, batchID string, resp *render.BatchResponse) error {
	resultsJSON, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	_, err = p.pool.Exec(ctx,
		`UPDATE batches SET results_json=$2::jsonb WHERE id=$1`,
		batchID, resultsJSON,
	)
	return err
}

func (p *Processor) failBatch(ctx context.Context, batchID string, cause error) error {
	log := p.log.FromContext(ctx).WithBatchID(batchID)

	msg := ""
	if cause != nil {
		msg = cause.Error()
		if len(msg) > 2000 {
			msg = msg[:2000]
		}

		var forgeErr *errors.Error
		if errors.As(cause, &forgeErr) {
			log.Error("batch failed",
				"code", string(forgeErr.Code),
				"op", forgeErr.Op,
				"message", forgeErr.Message,
			)
		} else {
			log.Error("batch failed", "error", msg)
		}
	}

	_, _ = p.pool.Exec(ctx,
		`UPDATE batches SET status='FAILED', finished_at=NOW(), error_text=$2 WHERE id=$1`,
		batchID, msg,
	)

	return cause
}
