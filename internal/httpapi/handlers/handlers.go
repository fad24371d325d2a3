package handlers

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"forge/internal/httpapi/util"
	"forge/internal/pkg/logger"
	"forge/internal/ports"
	"forge/internal/progress"
	"forge/internal/repositories"
)

type Deps struct {
	Pool *pgxpool.Pool
	RDB  *redis.Client
	SP   ports.StorageProvider
	Log  *logger.Logger
}

type Handler struct {
	pool      *pgxpool.Pool
	rdb       *redis.Client
	sp        ports.StorageProvider
	templates *repositories.TemplateRepository
	progress  *progress.RedisProgress
	queue     string
	log       *logger.Logger
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	return &Handler{
		pool:      d.Pool,
		rdb:       d.RDB,
		sp:        d.SP,
		templates: repositories.NewTemplateRepository(d.Pool),
		progress:  progress.NewRedisProgress(d.RDB, log),
		// Must match the list the worker pops; both sides default to the
		// same name and honor the same override.
		queue: util.Env("BATCH_QUEUE_NAME", "forge:batches"),
		log:   log.WithComponent("httpapi"),
	}
}
