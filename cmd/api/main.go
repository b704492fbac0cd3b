package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"

	"github.com/vaultshare/fileshare-api/internal/auth"
	"github.com/vaultshare/fileshare-api/internal/collector"
	"github.com/vaultshare/fileshare-api/internal/config"
	"github.com/vaultshare/fileshare-api/internal/database"
	"github.com/vaultshare/fileshare-api/internal/email"
	"github.com/vaultshare/fileshare-api/internal/file"
	httpServer "github.com/vaultshare/fileshare-api/internal/http"
	"github.com/vaultshare/fileshare-api/internal/logging"
	"github.com/vaultshare/fileshare-api/internal/ratelimit"
	"github.com/vaultshare/fileshare-api/internal/storage"
	"github.com/vaultshare/fileshare-api/internal/token"
	"github.com/vaultshare/fileshare-api/internal/user"
)

// @title           VaultShare API
// @version         1.0
// @description     Password-protected, self-expiring file sharing with account verification.

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the access token.

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	logger := logging.NewLogger(cfg.Server.IsDevelopment())
	logger.Info("starting application",
		"env", cfg.Server.Env,
		"port", cfg.Server.Port,
	)

	// Initialize database connection
	db, err := initDB(cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer db.Close()

	// Initialize Redis connection
	redisClient, err := initRedis(cfg.Redis)
	if err != nil {
		return fmt.Errorf("failed to initialize Redis: %w", err)
	}
	defer redisClient.Close()

	// Initialize object storage
	storeCtx, storeCancel := context.WithTimeout(context.Background(), cfg.Server.ReadTimeout)
	blobStore, err := storage.NewClient(storeCtx, cfg.Storage)
	storeCancel()
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	// Initialize repositories
	userRepo := user.NewRepository(db)
	tokenRepo := token.NewBunRepository(db)
	fileRepo := file.NewBunRepository(db)

	// Initialize rate limiter
	rateLimiter := ratelimit.NewLimiter(redisClient)

	// Initialize token services
	tokenService := token.NewService(tokenRepo, cfg.Token.TTL, cfg.Token.Cooldown)
	pasetoCodec, err := auth.NewPasetoCodec(cfg.Auth.TokenKey, cfg.Auth.TokenDuration)
	if err != nil {
		return fmt.Errorf("failed to initialize token codec: %w", err)
	}

	// Initialize email service
	emailService := email.NewService(
		cfg.Email.SMTPHost,
		cfg.Email.SMTPPort,
		cfg.Email.SMTPUser,
		cfg.Email.SMTPPassword,
		cfg.Email.PublicURL,
		logger,
	)

	// Initialize domain services
	authService := auth.NewService(userRepo, tokenService, pasetoCodec, emailService, logger)
	fileService := file.NewService(fileRepo, blobStore, logger)

	// Initialize HTTP handlers
	authHandler := auth.NewHandler(authService, rateLimiter, logger)
	authMiddleware := auth.NewMiddleware(pasetoCodec)
	fileHandler := file.NewHandler(fileService, logger)

	// Start the expiry collector in the background
	collectorCtx, stopCollector := context.WithCancel(context.Background())
	defer stopCollector()
	expiryCollector := collector.New(fileRepo, blobStore, logger, cfg.Collector.Interval, cfg.Collector.PendingGrace)
	go expiryCollector.Run(collectorCtx)

	// Initialize router
	router := httpServer.NewRouter(cfg, authHandler, authMiddleware, fileHandler, logger)

	// Initialize HTTP server
	serverAddr := ":" + cfg.Server.Port
	server := httpServer.NewServer(
		serverAddr,
		router,
		cfg.Server.ReadTimeout,
		cfg.Server.WriteTimeout,
		logger,
	)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	// Wait for interrupt signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("received shutdown signal", "signal", sig.String())

		stopCollector()

		// Graceful shutdown with timeout
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// initDB initializes the database connection and returns a Bun DB instance
func initDB(cfg config.DatabaseConfig) (*bun.DB, error) {
	sqlDB, err := sql.Open("postgres", cfg.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Verify connection
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Set connection pool settings
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)

	return database.NewBunDB(sqlDB), nil
}

// initRedis initializes the Redis connection and returns a Redis client
func initRedis(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Verify connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return client, nil
}
