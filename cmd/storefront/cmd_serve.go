package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"storefront/internal/database"
	"storefront/internal/database/seeders"
	"storefront/internal/server"
	"storefront/internal/storage"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run migrations and start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := boot()
		if err != nil {
			return err
		}
		defer log.Sync()

		log.Info("Starting storefront",
			zap.String("store", cfg.Store.Name),
			zap.String("env", cfg.Server.Env),
			zap.String("port", cfg.Server.Port),
		)

		db, err := database.Open(cfg.Database)
		if err != nil {
			return err
		}
		log.Info("Database health check", zap.Any("health", db.Health(cmd.Context())))

		if err := database.RunMigrations(db.DB().DB, db.Dialect(), log); err != nil {
			db.Close()
			return err
		}
		if seeded, err := seeders.New(db.DB(), log).SeedIfEmpty(cmd.Context()); err != nil {
			db.Close()
			return err
		} else if seeded {
			log.Info("Empty database seeded with the demo catalog")
		}

		disk, err := storage.New(cmd.Context(), cfg.Storage)
		if err != nil {
			db.Close()
			return err
		}

		var rdb *redis.Client
		if cfg.Redis.Enabled {
			rdb = redis.NewClient(&redis.Options{
				Addr:     cfg.Redis.Addr(),
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			})
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			err := rdb.Ping(ctx).Err()
			cancel()
			if err != nil {
				db.Close()
				rdb.Close()
				return fmt.Errorf("failed to connect to redis: %w", err)
			}
			log.Info("Connected to redis", zap.String("addr", cfg.Redis.Addr()))
		}

		srv, err := server.NewServer(cfg, log, server.Deps{DB: db, Redis: rdb, Disk: disk})
		if err != nil {
			db.Close()
			return err
		}
		if err := srv.StartJobs(); err != nil {
			srv.Close()
			return err
		}

		done := make(chan bool, 1)
		go gracefulShutdown(srv, log, done)

		log.Info("Server listening", zap.String("addr", srv.Addr))

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server error: %w", err)
		}

		<-done
		log.Info("Graceful shutdown complete")
		return nil
	},
}

func gracefulShutdown(srv *server.Server, log *zap.Logger, done chan bool) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	log.Info("Shutting down gracefully, press Ctrl+C again to force")
	stop()

	// In-flight requests get 30 seconds to finish.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	if err := srv.Close(); err != nil {
		log.Error("Error closing server resources", zap.Error(err))
	}

	log.Info("Server exiting")
	done <- true
}
