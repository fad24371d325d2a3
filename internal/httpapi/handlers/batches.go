package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"forge/internal/httpapi/util"
	"forge/internal/httpkit"
	"forge/internal/worker/processor"
)

type CreateBatchRequest struct {
	Name   string                `json:"name,omitempty"`
	Params processor.BatchParams `json:"params"`
}

func (h *Handler) PostBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateBatchRequest
	if err := httpkit.DecodeJSON(r, &req); err != nil {
		httpkit.WriteErr(w, 400, "VALIDATION_ERROR", "invalid json body", nil)
		return
	}

	paramsBytes, err := json.Marshal(req.Params)
	if err != nil {
		httpkit.WriteErr(w, 400, "VALIDATION_ERROR", "invalid params", nil)
		return
	}

	// Run the same validation the worker applies, so a bad batch is rejected
	// here instead of failing after it was queued.
	parsed, err := processor.ParseBatchParams(string(paramsBytes))
	if err != nil {
		httpkit.WriteErr(w, 400, "VALIDATION_ERROR", err.Error(), nil)
		return
	}

	if _, err := h.templates.GetMany(ctx, parsed.Params.TemplateIDs); err != nil {
		httpkit.WriteErr(w, 404, "TEMPLATE_NOT_FOUND", err.Error(), nil)
		return
	}

	batchID := util.NewID("bat")
	createdAt := time.Now().UTC()

	_, err = h.pool.Exec(ctx,
		`INSERT INTO batches (id, name, status, params_json, created_at)
		 VALUES ($1,$2,'QUEUED',$3,$4)`,
		batchID, nullIfEmpty(strings.TrimSpace(req.Name)), string(paramsBytes), createdAt,
	)
	if err != nil {
		h.log.FromContext(ctx).Error("batch insert failed", "error", err.Error())
		httpkit.WriteErr(w, 500, "INTERNAL_ERROR", "db insert failed", nil)
		return
	}

	if err := h.rdb.LPush(ctx, h.queue, batchID).Err(); err != nil {
		h.log.FromContext(ctx).Error("batch queue push failed", "batch_id", batchID, "error", err.Error())
		httpkit.WriteErr(w, 500, "INTERNAL_ERROR", "queue push failed", nil)
		return
	}

	httpkit.WriteJSON(w, 201, map[string]any{
		"batch": map[string]any{
			"id":         batchID,
			"name":       req.Name,
			"status":     "QUEUED",
			"rows":       len(parsed.Params.Rows),
			"templates":  len(parsed.Params.TemplateIDs),
			"mode":       string(parsed.Mode),
			"created_at": createdAt,
		},
	})
}

func (h *Handler) ListBatches(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := strings.TrimSpace(r.URL.Query().Get("status"))
	limitStr := strings.TrimSpace(r.URL.Query().Get("limit"))
	limit := 50
	if limitStr != "" {
		if v, err := strconv.Atoi(limitStr); err == nil && v > 0 && v <= 200 {
			limit = v
		}
	}

	var (
		rows pgxRows
		err  error
	)

	if status != "" {
		rows, err = h.pool.Query(ctx,
			`SELECT id, COALESCE(name,''), status, created_at
			 FROM batches WHERE status=$1
			 ORDER BY created_at DESC
			 LIMIT $2`,
			status, limit,
		)
	} else {
		rows, err = h.pool.Query(ctx,
			`SELECT id, COALESCE(name,''), status, created_at
			 FROM batches
			 ORDER BY created_at DESC
			 LIMIT $1`,
			limit,
		)
	}
	if err != nil {
		httpkit.WriteErr(w, 500, "INTERNAL_ERROR", "db query failed", nil)
		return
	}
	defer rows.Close()

	type item struct {
		ID        string    `json:"id"`
		Name      string    `json:"name,omitempty"`
		Status    string    `json:"status"`
		CreatedAt time.Time `json:"created_at"`
	}

	out := make([]item, 0, limit)
	for rows.Next() {
		var it item
		if err := rows.Scan(&it.ID, &it.Name, &it.Status, &it.CreatedAt); err != nil {
			httpkit.WriteErr(w, 500, "INTERNAL_ERROR", "row scan failed", nil)
			return
		}
		out = append(out, it)
	}

	httpkit.WriteJSON(w, 200, map[string]any{"batches": out})
}

func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	batchID := chi.URLParam(r, "batchId")

	var (
		id, name, status, paramsJSON string
		resultsJSON, errorText       *string
		createdAt                    time.Time
		startedAt, finishedAt        *time.Time
	)

	err := h.pool.QueryRow(ctx,
		`SELECT id, COALESCE(name,''), status, params_json, results_json, error_text, created_at, started_at, finished_at
		 FROM batches WHERE id=$1`,
		batchID,
	).Scan(&id, &name, &status, &paramsJSON, &resultsJSON, &errorText, &createdAt, &startedAt, &finishedAt)
	if err != nil {
		httpkit.WriteErr(w, 404, "BATCH_NOT_FOUND", "batch not found", map[string]any{"batch_id": batchID})
		return
	}

	var params processor.BatchParams
	_ = json.Unmarshal([]byte(paramsJSON), &params)

	batch := map[string]any{
		"id":          id,
		"name":        name,
		"status":      status,
		"rows":        len(params.Rows),
		"templates":   params.TemplateIDs,
		"created_at":  createdAt,
		"started_at":  startedAt,
		"finished_at": finishedAt,
	}

	if errorText != nil && *errorText != "" {
		batch["error"] = *errorText
	}

	if resultsJSON != nil && *resultsJSON != "" {
		var results any
		_ = json.Unmarshal([]byte(*resultsJSON), &results)
		batch["results"] = results
	}

	// The live counter is only meaningful while the worker is rendering; once
	// the batch is terminal the persisted results carry the final numbers.
	if status == "RUNNING" {
		batch["progress"] = map[string]any{
			"completed": h.progress.Get(ctx, batchID),
			"total":     len(params.Rows),
		}
	}

	httpkit.WriteJSON(w, 200, map[string]any{"batch": batch})
}

func nullIfEmpty(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

type pgxRows interface {
	Close()
	Next() bool
	Scan(dest ...any) error
}
