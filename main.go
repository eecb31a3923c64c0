package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"blocktix_gateway/internal/api"
	"blocktix_gateway/internal/config"
	"blocktix_gateway/internal/ledger"
	"blocktix_gateway/internal/logger"
	"blocktix_gateway/internal/messaging"
	"blocktix_gateway/internal/metrics"
	"blocktix_gateway/internal/repository"
	"blocktix_gateway/internal/service"
	"blocktix_gateway/internal/session"
)

func runMigrations(db *pgxpool.Pool, log *zap.Logger) error {
	log.Info("Running database migrations")

	migrationsDir := "migrations"
	files, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var migrationFiles []string
	for _, file := range files {
		if strings.HasSuffix(file.Name(), ".sql") {
			migrationFiles = append(migrationFiles, file.Name())
		}
	}

	sort.Strings(migrationFiles)

	for _, filename := range migrationFiles {
		log.Info("Running migration", zap.String("file", filename))

		content, err := os.ReadFile(filepath.Join(migrationsDir, filename))
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", filename, err)
		}

		_, err = db.Exec(context.Background(), string(content))
		if err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", filename, err)
		}

		log.Info("Migration completed", zap.String("file", filename))
	}

	log.Info("All migrations completed successfully")
	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.JSON)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting blocktix gateway")

	db, err := pgxpool.New(context.Background(), cfg.DatabaseDSN())
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := repository.Ping(context.Background(), db); err != nil {
		log.Fatal("Database is not reachable", zap.Error(err))
	}
	log.Info("Connected to database")

	if err := runMigrations(db, log); err != nil {
		log.Fatal("Failed to run migrations", zap.Error(err))
	}

	metrics.Register()

	connectCtx, cancelConnect := context.WithTimeout(context.Background(), cfg.Ledger.CallTimeout)
	sess, err := session.Connect(connectCtx, cfg.Ledger, log)
	cancelConnect()
	if err != nil {
		log.Fatal("Failed to connect to ledger", zap.Error(err))
	}
	defer sess.Close()

	l, err := ledger.New(sess, cfg.Ledger.ContractAddress, ledger.Options{
		CallTimeout: cfg.Ledger.CallTimeout,
		TxTimeout:   cfg.Ledger.TxTimeout,
	}, log)
	if errors.Is(err, ledger.ErrContractNotConfigured) {
		// QR и кошелёк работают и без контракта
		log.Warn("Ledger contract is not configured, ledger operations are disabled", zap.Error(err))
		l = ledger.Unconfigured()
	} else if err != nil {
		log.Fatal("Failed to bind ledger contract", zap.Error(err))
	}

	natsClient, err := messaging.NewNATSClient(cfg.NATS.URL, log)
	if err != nil {
		log.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer natsClient.Close()

	log.Info("Connected to NATS")

	checkInRepo := repository.NewCheckInRepository(db, log)
	verificationService := service.NewVerificationService(l, checkInRepo, natsClient, log)
	ticketingService := service.NewTicketingService(l, natsClient, log)

	subs := session.NewSubscriptions(log)
	unregister := subs.Register(func(change session.AccountChange) {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Ledger.CallTimeout)
		defer cancel()
		if err := sess.Refresh(ctx); err != nil {
			log.Error("Failed to refresh ledger session", zap.Error(err))
		}
	})
	defer unregister()

	// Подписываемся на смену аккаунта или сети
	err = natsClient.SubscribeToWalletChanged(context.Background(), subs.Notify)
	if err != nil {
		log.Error("Failed to subscribe to wallet changes", zap.Error(err))
	}

	handler := api.NewHandler(verificationService, ticketingService, sess, log)
	router := api.NewRouter(handler, log)

	server := &http.Server{
		Addr:              cfg.ServerAddr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info("Starting server", zap.String("address", server.Addr))

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Graceful shutdown
	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}
