// semantic-terminal - semantic terminal engine server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/rickyjim626/semantic-terminal/internal/api"
	"github.com/rickyjim626/semantic-terminal/internal/config"
	"github.com/rickyjim626/semantic-terminal/internal/manager"
	"github.com/rickyjim626/semantic-terminal/internal/mcpserver"
	"github.com/rickyjim626/semantic-terminal/internal/middleware"
	"github.com/rickyjim626/semantic-terminal/internal/spawn"
	"github.com/rickyjim626/semantic-terminal/internal/store"
)

func main() {
	root := &cobra.Command{
		Use:          "semterm",
		Short:        "Semantic terminal engine: sessions, parsers, and an agent-facing RPC surface",
		SilenceUsage: true,
	}

	root.AddCommand(serveCmd(), mcpCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration and constructs the shared manager + store.
func setup() (*config.Config, *manager.Manager, store.Repository, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}

	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Warn("Persistence disabled", "error", err)
		repo = nil
	} else if err := repo.Ping(context.Background()); err != nil {
		slog.Warn("Database health check failed, persistence disabled", "error", err)
		repo = nil
	}

	var spawner spawn.Spawner
	if cfg.Docker.ContainerID != "" {
		ds, err := spawn.NewDockerSpawner(cfg.Docker.ContainerID, cfg.Docker.User, logger)
		if err != nil {
			return nil, nil, nil, err
		}
		spawner = ds
		slog.Info("Sessions run inside container", "container_id", cfg.Docker.ContainerID)
	} else {
		spawner = spawn.NewPTYSpawner(logger)
	}

	var mgrStore manager.Store
	if repo != nil {
		mgrStore = repo
	}

	mgr := manager.New(spawner, mgrStore, manager.Options{
		MaxSessions:   cfg.Manager.MaxSessions,
		IdleTimeout:   cfg.Manager.IdleTimeout,
		SweepInterval: cfg.Manager.SweepInterval,
		DefaultCols:   cfg.Session.DefaultCols,
		DefaultRows:   cfg.Session.DefaultRows,
		TickInterval:  cfg.Session.TickInterval,
		LastLines:     cfg.Session.LastLines,
		LogDir:        cfg.Session.LogDir,
	}, logger)

	return cfg, mgr, repo, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP + WebSocket API server",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, mgr, repo, err := setup()
			if err != nil {
				slog.Error("Failed to start", "error", err)
				return err
			}
			defer func() {
				mgr.Shutdown()
				if repo != nil {
					if closeErr := repo.Close(); closeErr != nil {
						slog.Error("Failed to close repository", "error", closeErr)
					}
				}
			}()

			handler := api.NewHandler(mgr, repo)
			wsHandler := api.NewWebSocketHandler(mgr, slog.Default())

			r := chi.NewRouter()
			r.Use(chiMiddleware.RequestID)
			r.Use(chiMiddleware.RealIP)
			r.Use(chiMiddleware.Logger)
			r.Use(chiMiddleware.Recoverer)
			r.Use(chiMiddleware.Heartbeat("/health"))
			r.Use(middleware.CORS(cfg.AllowedOrigins))

			handler.RegisterRoutes(r)
			r.Get("/ws/sessions/{id}", wsHandler.ServeHTTP)

			srv := &http.Server{
				Addr:        ":" + cfg.Port,
				Handler:     r,
				ReadTimeout: 30 * time.Second,
				// Attach streams are long-lived; no write timeout.
				WriteTimeout: 0,
				IdleTimeout:  120 * time.Second,
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			go func() {
				slog.Info("Server listening", "addr", srv.Addr)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					slog.Error("Server failed", "error", err)
					os.Exit(1)
				}
			}()

			<-ctx.Done()
			stop()
			slog.Info("Shutting down gracefully...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				slog.Error("Server forced to shutdown", "error", err)
				return err
			}

			slog.Info("Server stopped successfully")
			return nil
		},
	}
}

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Run the MCP stdio server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, mgr, repo, err := setup()
			if err != nil {
				slog.Error("Failed to start", "error", err)
				return err
			}
			defer func() {
				mgr.Shutdown()
				if repo != nil {
					_ = repo.Close()
				}
			}()

			return mcpserver.NewServer(mgr).Run(cmd.Context())
		},
	}
}
