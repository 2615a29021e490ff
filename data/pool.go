package data

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/Penlika/tkb/internal/projectpath"
)

var (
	dbPool *pgxpool.Pool
	pgOnce sync.Once
)

func init() {
	err := godotenv.Load(filepath.Join(projectpath.Root, ".env"))
	if err != nil {
		// one-off commands can run purely from the environment
		log.Debug("No .env file loaded: ", err)
	}
}

// NewPool returns the shared connection pool for the personal-event
// store, built from the DB_CONN environment variable.
func NewPool(ctx context.Context) (*pgxpool.Pool, error) {
	connString := os.Getenv("DB_CONN")

	var poolErr error
	pgOnce.Do(func() {
		pgPool, err := pgxpool.New(ctx, connString)
		if err != nil {
			log.Error("Unable to create connection pool: ", err)
			poolErr = err
			return
		}
		dbPool = pgPool
	})
	return dbPool, poolErr
}
