package worker

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"forge/internal/pkg/logger"
	"forge/internal/ports"
)

type Deps struct {
	Pool       *pgxpool.Pool
	RDB        *redis.Client
	SP         ports.StorageProvider
	QueueName  string
	PublicBase string // base URL used to build output content links
	FontDir    string // extra fonts loaded before the first batch
	Log        *logger.Logger
}
