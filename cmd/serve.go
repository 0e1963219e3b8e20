package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/cache"
	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/config"
	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/db"
	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/grpcserver"
	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/kafka"
	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/logger"
	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/repository/postgresql"
	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/server"
	"gitlab.ozon.dev/pupkingeorgij/catalog/internal/storage"
)

const healthCheckInterval = 5 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the gRPC health endpoint and the outbox publisher",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	database, err := db.NewDb(ctx, cfg.DB)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer database.Close()

	productRepo := postgresql.NewProductRepo(database)
	versionRepo := postgresql.NewProductVersionRepo(database)
	inventoryRepo := postgresql.NewInventoryRepo()
	auditRepo := postgresql.NewAuditRepo(database)
	orderRepo := postgresql.NewOrderRepo(database)
	itemRepo := postgresql.NewOrderItemRepo(database)
	historyRepo := postgresql.NewStatusHistoryRepo(database)
	changeRepo := postgresql.NewChangeRepo(database)
	outboxRepo := postgresql.NewOutboxTaskRepo()
	userRepo := postgresql.NewUserRepo(database)

	if cfg.Auth.AdminUsername != "" {
		if err := userRepo.EnsureUser(ctx, cfg.Auth.AdminUsername, cfg.Auth.AdminPassword); err != nil {
			return fmt.Errorf("provisioning admin user: %w", err)
		}
	}

	policy := storage.PolicyFromConfig(cfg.Policy)
	auditLog := storage.NewAuditLog(auditRepo, outboxRepo, cfg.AuditExportTopic(), log)
	productCache := cache.NewProductCache(cfg.Cache.Capacity, log)

	versionStore := storage.NewVersionStore(database, productRepo, versionRepo, inventoryRepo, auditLog, productCache, policy, log)
	orderMachine := storage.NewOrderMachine(database, orderRepo, itemRepo, historyRepo, inventoryRepo, auditLog, productCache, policy, log)
	changeFeed := storage.NewChangeFeed(changeRepo, auditRepo, log)

	var producer kafka.Producer
	if cfg.ExportEnabled() {
		producer = kafka.NewBrokerProducer(cfg.Kafka.Brokers, log)
	} else {
		producer = kafka.NewConsoleProducer(log)
	}
	publisher := kafka.NewPublisher(database, outboxRepo, producer, kafka.PublisherConfig{
		PollInterval: cfg.Outbox.PollInterval,
		BatchSize:    cfg.Outbox.BatchSize,
		MaxAttempts:  cfg.Outbox.MaxAttempts,
	}, log)

	httpServer := server.New(versionStore, orderMachine, changeFeed, auditLog, userRepo, server.Options{
		AuthEnabled: cfg.Auth.Enabled,
		CORSOrigins: cfg.CORSOrigins,
		AccessLog:   server.NewAccessLog(2, 50, 500*time.Millisecond, log),
	}, log)
	healthServer := grpcserver.NewServer(database, healthCheckInterval, log)

	httpLis, err := net.Listen("tcp", ":"+cfg.HTTPPort)
	if err != nil {
		return fmt.Errorf("listening on http port: %w", err)
	}
	grpcLis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		_ = httpLis.Close()
		return fmt.Errorf("listening on grpc port: %w", err)
	}

	log.Info("catalog: starting",
		zap.String("http_port", cfg.HTTPPort),
		zap.String("grpc_port", cfg.GRPCPort),
		zap.String("transitions", cfg.Policy.Transitions),
		zap.Bool("require_version", cfg.Policy.RequireVersion),
		zap.Bool("kafka_export", cfg.ExportEnabled()),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpServer.Run(gctx, httpLis)
	})
	g.Go(func() error {
		return healthServer.Serve(gctx, grpcLis)
	})
	g.Go(func() error {
		publisher.Run(gctx)
		publisher.Shutdown()
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("catalog: stopped")
	return nil
}
