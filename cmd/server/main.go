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

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/rl1809/library-circulation/internal/adapter/handler"
	"github.com/rl1809/library-circulation/internal/adapter/storage"
	"github.com/rl1809/library-circulation/internal/config"
	"github.com/rl1809/library-circulation/internal/core/service"
	"github.com/rl1809/library-circulation/internal/port"
	"github.com/rl1809/library-circulation/internal/telemetry"
)

const (
	serviceName     = "library-circulation"
	serviceVersion  = "0.1.0"
	shutdownTimeout = 5 * time.Second
)

func main() {
	cfg := config.Load()

	cmd := &cobra.Command{
		Use:           "server",
		Short:         "Serve the library circulation HTTP and gRPC APIs",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP listen address")
	cmd.Flags().StringVar(&cfg.GRPCAddr, "grpc-addr", cfg.GRPCAddr, "gRPC listen address")
	cmd.Flags().BoolVar(&cfg.DBAutoMigrate, "migrate", cfg.DBAutoMigrate, "create missing tables on start")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	log, err := cfg.NewLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	providers, err := telemetry.Setup(ctx, cfg.OTLPEndpoint, serviceName, serviceVersion, log)
	if err != nil {
		return err
	}

	// Initialize the SQL store
	store, err := storage.OpenSQLStore(ctx, cfg.DBDriver, cfg.DBDSN, storage.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	}, log)
	if err != nil {
		return err
	}
	log.Info("connected to database", zap.String("driver", cfg.DBDriver))

	if cfg.DBAutoMigrate {
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return err
		}
	}

	// Initialize Redis when configured
	var (
		rdb      *redis.Client
		sessions port.SessionStore = storage.NewMemorySessionStore()
		circOpts []service.CirculationOption
	)
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			PoolSize: cfg.RedisPoolSize,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			store.Close()
			return fmt.Errorf("connect redis: %w", err)
		}
		redisAdapter := storage.NewRedisAdapter(rdb)
		sessions = redisAdapter
		circOpts = append(circOpts, service.WithIdempotencyCache(redisAdapter))
		log.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
	} else {
		log.Warn("REDIS_ADDR not set: sessions kept in memory, idempotency keys disabled")
	}

	// Initialize services
	circulation := service.NewCirculationService(store, log, circOpts...)
	catalog := service.NewCatalogService(store, log)
	members := service.NewMemberService(store, log)
	auth := service.NewAuthService(store, sessions, cfg.SessionTTL, log)

	// Initialize gRPC server
	grpcHandler := handler.NewGRPCHandler(circulation, auth, log)
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcHandler.LogUnary, grpcHandler.AuthUnary))
	handler.RegisterCirculationServer(grpcServer, grpcHandler)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		store.Close()
		return fmt.Errorf("listen %s: %w", cfg.GRPCAddr, err)
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("gRPC server: %w", err)
		}
	}()

	// Initialize HTTP server
	httpHandler := handler.NewHTTPHandler(circulation, catalog, members, auth, log,
		handler.WithSecureCookies(cfg.CookieSecure),
		handler.WithReadiness(store),
	)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpHandler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	// Graceful shutdown
	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case serveErr = <-errCh:
		log.Error("server failed, shutting down", zap.Error(serveErr))
	}

	healthServer.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown", zap.Error(err))
	}
	log.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	log.Info("gRPC server stopped")

	if rdb != nil {
		rdb.Close()
	}
	store.Close()
	log.Info("connections closed")

	if err := providers.Shutdown(shutdownCtx); err != nil {
		log.Warn("telemetry shutdown", zap.Error(err))
	}

	return serveErr
}
