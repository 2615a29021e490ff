package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Penlika/tkb/data"
	"github.com/Penlika/tkb/data/cache"
	"github.com/Penlika/tkb/events"
	"github.com/Penlika/tkb/internal/config"
	serverschedule "github.com/Penlika/tkb/server/schedule"
	"github.com/Penlika/tkb/timetable"
	"github.com/Penlika/tkb/timetable/services/tdmu"
)

// Serve runs the schedule API until ctx is cancelled.
func Serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	r := chi.NewRouter()
	cors := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300, // Maximum age for preflight requests
	})
	r.Use(cors.Handler)
	r.Use(middleware.Logger)

	store, err := openEventStore(ctx, logger)
	if err != nil {
		return err
	}

	cacheStore, err := cache.Open(cfg.CachePath)
	if err != nil {
		return err
	}
	defer cacheStore.Close()

	token := os.Getenv("TKB_TOKEN")
	if token == "" {
		if cached, ok, err := timetable.LoadToken(cacheStore); err == nil && ok {
			token = cached
		}
	}

	client := tdmu.NewClient(cfg.BaseURL, log.WithField("service", "tdmu"))
	refresher := timetable.NewRefresher(client, store, cacheStore, logger)
	if err := refresher.Start(ctx, cfg.UserID, token, cfg.Semester, cfg.RefreshCron); err != nil {
		return err
	}
	defer refresher.Close()

	r.Route("/schedule", func(r chi.Router) {
		serverschedule.PopulateScheduleRoutes(&r, refresher, store, cfg.UserID, *logger)
	})

	srv := &http.Server{
		Addr:    cfg.Listen,
		Handler: r,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("running schedule server", "addr", cfg.Listen)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// openEventStore prefers the database-backed store; with no DB_CONN the
// server still comes up with an in-memory store so the timetable half
// keeps working.
func openEventStore(ctx context.Context, logger *slog.Logger) (events.Store, error) {
	if os.Getenv("DB_CONN") == "" {
		logger.Warn("DB_CONN not set, personal events are in-memory only")
		return events.NewMemoryStore(), nil
	}
	pool, err := data.NewPool(ctx)
	if err != nil {
		return nil, err
	}
	return events.NewPostgresStore(pool, logger), nil
}
