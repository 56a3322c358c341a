package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/pesio-ai/be-doc-workflows/internal/client"
	"github.com/pesio-ai/be-doc-workflows/internal/config"
	"github.com/pesio-ai/be-doc-workflows/internal/database"
	"github.com/pesio-ai/be-doc-workflows/internal/handler"
	"github.com/pesio-ai/be-doc-workflows/internal/logger"
	"github.com/pesio-ai/be-doc-workflows/internal/metrics"
	"github.com/pesio-ai/be-doc-workflows/internal/middleware"
	"github.com/pesio-ai/be-doc-workflows/internal/repository"
	"github.com/pesio-ai/be-doc-workflows/internal/repository/memory"
	"github.com/pesio-ai/be-doc-workflows/internal/service"
)

// runServe is replaced in tests.
var runServe = serve

func newServeCmd() *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC servers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, log, migrate)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply the schema before serving (postgres only)")
	return cmd
}

// stores groups the persistence collaborators of the engine.
type stores struct {
	catalog   service.Catalog
	access    service.StageAccess
	workflows service.WorkflowStore
	history   service.HistoryStore
	templates service.TemplateWriter
	ping      func(context.Context) error
	close     func()
}

func openStores(ctx context.Context, cfg *config.Config, log *logger.Logger, migrate bool) (*stores, error) {
	if cfg.Store.Driver == "memory" {
		log.Warn().Msg("Using in-memory store; state is lost on restart")
		m := memory.New()
		return &stores{
			catalog: m, access: m, workflows: m, history: m, templates: m,
			ping:  func(context.Context) error { return nil },
			close: func() {},
		}, nil
	}

	db, err := database.New(ctx, databaseConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info().Msg("Database connection established")

	if migrate {
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}
		log.Info().Msg("Schema applied")
	}

	templates := repository.NewTemplateRepository(db)
	return &stores{
		catalog:   templates,
		access:    repository.NewStageAccessRepository(db),
		workflows: repository.NewDocumentWorkflowRepository(db),
		history:   repository.NewHistoryRepository(db),
		templates: templates,
		ping:      db.Ping,
		close:     db.Close,
	}, nil
}

func serve(ctx context.Context, cfg *config.Config, log *logger.Logger, migrate bool) error {
	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Str("store", cfg.Store.Driver).
		Msg("Starting Document Workflows Service")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, log, migrate)
	if err != nil {
		return err
	}
	defer st.close()

	var notifier service.Notifier
	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name(cfg.Service.Name), nats.MaxReconnects(-1))
		if err != nil {
			log.Warn().Err(err).Str("url", cfg.NATS.URL).Msg("NATS unavailable; notifications disabled")
		} else {
			defer nc.Drain()
			notifier = client.NewNotificationPublisher(nc, cfg.NATS.SubjectPrefix, log.Logger)
			log.Info().Str("url", cfg.NATS.URL).Msg("NATS connection established")
		}
	}

	users := client.NewUsersClient(cfg.Users.BaseURL, cfg.Users.Timeout)
	m := metrics.New()

	engine := service.NewWorkflowEngine(st.catalog, st.access, st.workflows, st.history, users, notifier, m, log)
	templates := service.NewTemplateService(st.catalog, st.access, st.templates, log)

	// HTTP
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := st.ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unhealthy"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})
	mux.Handle("/metrics", m.Handler())
	handler.NewHTTPHandler(engine, templates, log).Register(mux)

	h := middleware.Chain(mux,
		middleware.RequestID,
		middleware.Recovery(&log.Logger),
		middleware.Logger(&log.Logger),
		middleware.Tracing(),
		middleware.Timeout(cfg.Server.RequestTimeout),
	)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// gRPC
	grpcServer := grpc.NewServer()
	handler.RegisterWorkflowServiceServer(grpcServer, handler.NewGRPCHandler(engine, log.Logger))
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(handler.WorkflowServiceName, healthpb.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPC.Port))
	if err != nil {
		return fmt.Errorf("failed to create gRPC listener: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		log.Info().Int("port", cfg.GRPC.Port).Msg("Starting gRPC server")
		if err := grpcServer.Serve(grpcListener); err != nil {
			return fmt.Errorf("gRPC server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")
		healthServer.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown failed")
		}
		grpcServer.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info().Msg("Server stopped")
	return nil
}

func databaseConfig(cfg *config.Config) database.Config {
	return database.Config{
		Host:        cfg.Database.Host,
		Port:        cfg.Database.Port,
		User:        cfg.Database.User,
		Password:    cfg.Database.Password,
		Database:    cfg.Database.Database,
		SSLMode:     cfg.Database.SSLMode,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		MaxConnTime: cfg.Database.MaxConnTime,
		MaxIdleTime: cfg.Database.MaxIdleTime,
		HealthCheck: cfg.Database.HealthCheck,
	}
}
