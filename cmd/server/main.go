package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/pesio-ai/be-legal-matters/internal/common/clock"
	"github.com/pesio-ai/be-legal-matters/internal/common/config"
	"github.com/pesio-ai/be-legal-matters/internal/common/database"
	"github.com/pesio-ai/be-legal-matters/internal/common/logger"
	"github.com/pesio-ai/be-legal-matters/internal/common/middleware"
	"github.com/pesio-ai/be-legal-matters/internal/cycletime"
	"github.com/pesio-ai/be-legal-matters/internal/handler"
	"github.com/pesio-ai/be-legal-matters/internal/query"
	"github.com/pesio-ai/be-legal-matters/internal/repository"
	"github.com/pesio-ai/be-legal-matters/internal/service"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to a YAML config file (overrides MATTERS_CONFIG)")
	pflag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       cfg.Service.LogLevel,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("environment", cfg.Service.Environment).
		Dur("sla_threshold", cfg.SLA.Threshold).
		Str("done_group", cfg.Matters.DoneGroupName).
		Msg("Starting Legal Matters Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.New(ctx, database.Config{
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
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	clk := clock.Real()

	// Initialize repositories
	definitionRepo := repository.NewFieldDefinitionRepository(db)
	valueRepo := repository.NewFieldValueRepository(db)
	cycleRepo := repository.NewCycleTimeRepository(db, cfg.Matters.DoneGroupName)
	matterRepo := repository.NewMatterRepository(db)

	// Initialize services
	catalog := service.NewFieldCatalog(definitionRepo, clk, cfg.Matters.CatalogTTL, log.Component("catalog"))
	compiler := query.NewCompiler(catalog, query.Options{
		DoneGroup:    cfg.Matters.DoneGroupName,
		SLAThreshold: cfg.SLA.Threshold,
	}, log.Component("query"))
	calc := cycletime.NewCalculator(clk, cfg.SLA.Threshold, cfg.Matters.DoneGroupName)
	matterService := service.NewMatterService(matterRepo, valueRepo, cycleRepo, catalog, compiler, calc, clk, log.Component("matters"))

	// Setup HTTP routes
	httpHandler := handler.NewHTTPHandler(matterService, log)
	mux := http.NewServeMux()
	httpHandler.Register(mux)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, pingCancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer pingCancel()

		w.Header().Set("Content-Type", "application/json")
		if err := db.Ping(pingCtx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unhealthy"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})

	// Apply middleware
	var h http.Handler = mux
	h = middleware.Compress(h)
	h = middleware.Timeout(cfg.Server.RequestTimeout)(h)
	h = middleware.CORS([]string{"*"})(h)
	h = middleware.Recovery(&log.Logger)(h)
	h = middleware.Logger(&log.Logger)(h)
	h = middleware.RequestID(h)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Start gRPC server
	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			handler.UnaryRequestLogger(log.Component("grpc")),
			handler.UnaryRecovery(log.Component("grpc")),
		),
	)
	handler.RegisterMattersServer(grpcServer, handler.NewGRPCHandler(matterService, log))

	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus(handler.ServiceName, healthpb.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	grpcListener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create gRPC listener")
	}

	go func() {
		log.Info().Int("port", cfg.Server.GRPCPort).Msg("Starting gRPC server")
		if err := grpcServer.Serve(grpcListener); err != nil {
			log.Error().Err(err).Msg("gRPC server failed")
		}
	}()

	// SIGHUP drops cached field definitions after a catalog change;
	// SIGINT and SIGTERM shut down.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for sig := range signals {
		if sig != syscall.SIGHUP {
			break
		}
		catalog.Invalidate()
		log.Info().Msg("Field catalog cache invalidated")
	}

	log.Info().Msg("Shutting down server...")
	healthServer.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	grpcServer.GracefulStop()

	log.Info().Msg("Server stopped")
}
