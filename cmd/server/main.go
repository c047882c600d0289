// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/provenance-backend/internal/config"
	"github.com/javajoker/provenance-backend/internal/database"
	"github.com/javajoker/provenance-backend/internal/i18n"
	"github.com/javajoker/provenance-backend/internal/ledger"
	"github.com/javajoker/provenance-backend/internal/middleware"
	"github.com/javajoker/provenance-backend/internal/repository"
	"github.com/javajoker/provenance-backend/internal/router"
	"github.com/javajoker/provenance-backend/internal/services"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := database.Initialize(cfg.Database)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize database")
	}
	defer database.Close(db)

	// Run database migrations
	if err := database.RunMigrations(db); err != nil {
		logrus.WithError(err).Fatal("Failed to run migrations")
	}

	// Initialize i18n
	if err := i18n.Initialize(); err != nil {
		logrus.WithError(err).Fatal("Failed to initialize i18n")
	}

	// Connect to the registry contract
	client, err := ledger.DialEth(ctx, ledger.EthOptions{
		RPCURL:          cfg.Blockchain.RPCURL,
		ChainID:         cfg.Blockchain.ChainID,
		ContractAddress: cfg.Blockchain.ContractAddress,
		PrivateKey:      cfg.Blockchain.PrivateKey,
		CallTimeout:     cfg.Sync.RPCTimeout,
	})
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to blockchain")
	}
	chains := ledger.NewEthProvider(cfg.Blockchain.Endpoints(), cfg.Sync.RPCTimeout)
	chains.Add(client)
	defer chains.Close()

	storage, err := services.NewStorageService(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize storage")
	}

	events := newEventPublisher(cfg.Events)
	defer events.Close()

	svc := router.NewServices(router.Dependencies{
		Config:  cfg,
		Store:   repository.New(db),
		Ledger:  client,
		Chains:  chains,
		Storage: storage,
		Mailer:  services.NewMailer(cfg.Email),
		Events:  events,
	})

	if cfg.Sync.Enabled {
		go svc.Sync.Run(ctx, cfg.Sync.Interval, client.ChainID(), client.ContractAddress())
	}

	// Set Gin mode
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	limiters := middleware.DefaultLimiters()
	limiters.Cleanup(ctx)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router.Initialize(cfg, svc, limiters),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	go func() {
		logrus.WithFields(logrus.Fields{
			"port":     cfg.Server.Port,
			"chain_id": client.ChainID(),
			"contract": client.ContractAddress(),
		}).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("Failed to start server")
		}
	}()

	<-ctx.Done()
	logrus.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("Server forced to shutdown")
		os.Exit(1)
	}

	logrus.Info("Server exited")
}

func setupLogging(cfg *config.Config) {
	if cfg.Environment == "production" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
}

// newEventPublisher connects to RabbitMQ when configured and otherwise drops
// domain events.
func newEventPublisher(cfg config.EventsConfig) services.EventPublisher {
	if cfg.AMQPURL == "" {
		return services.NoopPublisher{}
	}

	publisher, err := services.NewAMQPPublisher(cfg.AMQPURL, cfg.Exchange)
	if err != nil {
		logrus.WithError(err).Warn("Event publishing disabled")
		return services.NoopPublisher{}
	}
	return publisher
}
