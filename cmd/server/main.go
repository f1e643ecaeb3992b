package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/pesio-ai/be-ojt-placements/internal/client"
	"github.com/pesio-ai/be-ojt-placements/internal/config"
	"github.com/pesio-ai/be-ojt-placements/internal/database"
	"github.com/pesio-ai/be-ojt-placements/internal/handler"
	"github.com/pesio-ai/be-ojt-placements/internal/identity"
	"github.com/pesio-ai/be-ojt-placements/internal/logger"
	"github.com/pesio-ai/be-ojt-placements/internal/middleware"
	"github.com/pesio-ai/be-ojt-placements/internal/natsclient"
	"github.com/pesio-ai/be-ojt-placements/internal/policy"
	"github.com/pesio-ai/be-ojt-placements/internal/repository"
	"github.com/pesio-ai/be-ojt-placements/internal/repository/memory"
	"github.com/pesio-ai/be-ojt-placements/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
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
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("environment", cfg.Service.Environment).
		Str("store", cfg.Store.Driver).
		Msg("Starting OJT Placements Service")

	// Create context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize store
	var (
		store  repository.Store
		audit  service.AuditLog
		health handler.HealthCheck
	)
	switch cfg.Store.Driver {
	case config.DriverMemory:
		store = memory.New(cfg.Database.LockTimeout)
		audit = memory.NewAuditLog()
		log.Warn().Msg("Using in-memory store, data is lost on restart")
	default:
		db, err := database.New(ctx, database.Config{
			DSN:         cfg.Database.DSN(),
			MaxConns:    cfg.Database.MaxConns,
			MinConns:    cfg.Database.MinConns,
			MaxConnTime: cfg.Database.MaxConnTime,
			MaxIdleTime: cfg.Database.MaxIdleTime,
			HealthCheck: cfg.Database.HealthCheck,
			LockTimeout: cfg.Database.LockTimeout,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer db.Close()
		log.Info().Msg("Database connection established")

		if cfg.Database.AutoMigrate {
			if err := db.Migrate(ctx); err != nil {
				log.Fatal().Err(err).Msg("Failed to apply schema")
			}
			log.Info().Msg("Database schema applied")
		}
		store = repository.NewPostgresStore(db)
		audit = repository.NewAuditRepository(db)
		health = func(ctx context.Context) error { return db.Ping(ctx) }
	}

	// Initialize notifier
	var notifier service.Notifier
	if cfg.NATS.Enabled() {
		nc, err := natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATS.URL,
			Stream:   cfg.NATS.Stream,
			Subjects: []string{"notifications.ojt.>"},
			Name:     cfg.Service.Name,
		}, log.Logger)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		defer nc.Close()
		notifier = client.NewNotificationPublisher(nc, log.Logger)
		log.Info().Str("stream", cfg.NATS.Stream).Msg("NATS publisher initialized")
	} else {
		log.Warn().Msg("NATS_URL not set, notifications are disabled")
	}

	// Initialize document store
	var docs service.DocumentStore
	if cfg.Mongo.Enabled() {
		mdb, err := client.ConnectMongo(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to MongoDB")
		}
		defer func() { _ = mdb.Client().Disconnect(context.Background()) }()
		gridfs, err := client.NewGridFSDocumentStore(mdb, cfg.Mongo.Bucket)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open GridFS bucket")
		}
		docs = gridfs
		log.Info().Str("bucket", cfg.Mongo.Bucket).Msg("GridFS document store initialized")
	} else {
		docs = client.NewMemoryDocumentStore()
		log.Warn().Msg("MONGO_URI not set, requirement files are kept in memory")
	}

	// Initialize rate limiter
	var limiter middleware.Limiter = middleware.NewRateLimiter()
	if cfg.Redis.Enabled() {
		rdb, err := middleware.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()
		limiter = middleware.NewRedisLimiter(rdb, log.Logger)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Redis rate limiter initialized")
	}

	// Initialize identity and policy
	if cfg.Auth.JWTSecret == "" {
		log.Warn().Msg("JWT_SECRET not set, every bearer token will be rejected")
	}
	tokens := identity.NewJWTProvider(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	table, err := policy.Load(cfg.Policy.File)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load policy table")
	}

	// Initialize services
	ledger := service.NewCapacityLedger(store)
	workflow := service.NewWorkflowCoordinator(store, ledger, table, notifier, audit, log)
	services := handler.Services{
		Companies:    service.NewCompanyService(store, ledger, workflow, table, audit, log),
		Applications: service.NewApplicationService(store, ledger, table, docs, audit, log),
		Workflow:     workflow,
		Requirements: service.NewRequirementTracker(store, table, docs, audit, log),
		Queries:      service.NewQueryService(store, ledger, table),
	}

	// Setup HTTP routes
	mux := http.NewServeMux()
	handler.NewHTTPHandler(services, health, cfg.Service.Name, log).Register(mux)

	// Apply middleware
	var h http.Handler = mux
	h = middleware.RateLimit(limiter, middleware.ActorOrIP, cfg.RateLimit.Limit, cfg.RateLimit.Window)(h)
	h = middleware.Auth(tokens, "/health")(h)
	h = middleware.RequestID(h)
	h = middleware.Logger(&log.Logger)(h)
	h = middleware.Recovery(&log.Logger)(h)
	h = middleware.CORS(cfg.Server.CORSOrigins)(h)
	h = middleware.Timeout(cfg.Server.RequestTimeout)(h)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      h,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Start gRPC server
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(
		handler.LoggingUnaryInterceptor(log.Logger),
		handler.AuthUnaryInterceptor(tokens),
	))
	handler.RegisterPlacementServiceServer(grpcServer, handler.NewGRPCHandler(services.Workflow, services.Companies, log.Logger))
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

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	// Stop gRPC server gracefully
	grpcServer.GracefulStop()

	log.Info().Msg("Server stopped")
}
