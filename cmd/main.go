package main

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/akylbek/payment-system/payment-core/internal/api"
	"github.com/akylbek/payment-system/payment-core/internal/config"
	"github.com/akylbek/payment-system/payment-core/internal/events"
	"github.com/akylbek/payment-system/payment-core/internal/fraud"
	"github.com/akylbek/payment-system/payment-core/internal/handlers"
	"github.com/akylbek/payment-system/payment-core/internal/health"
	"github.com/akylbek/payment-system/payment-core/internal/interfaces"
	"github.com/akylbek/payment-system/payment-core/internal/ledger"
	"github.com/akylbek/payment-system/payment-core/internal/lock"
	"github.com/akylbek/payment-system/payment-core/internal/provider"
	"github.com/akylbek/payment-system/payment-core/internal/provider/gateway"
	"github.com/akylbek/payment-system/payment-core/internal/provider/sandbox"
	"github.com/akylbek/payment-system/payment-core/internal/reconciliation"
	"github.com/akylbek/payment-system/payment-core/internal/redisstore"
	"github.com/akylbek/payment-system/payment-core/internal/repository"
	"github.com/akylbek/payment-system/payment-core/internal/repository/memory"
	"github.com/akylbek/payment-system/payment-core/internal/service"
	"github.com/akylbek/payment-system/payment-core/internal/telemetry"
	"github.com/akylbek/payment-system/payment-core/internal/webhook"
)

const serviceName = "payment-core"

// stores groups the persistence and coordination backends. Each is backed by
// Postgres or Redis when configured and by process memory otherwise.
type stores struct {
	transactions interfaces.TransactionLogRepository
	reports      interfaces.ReportRepository
	fraudBlocks  interfaces.FraudBlockRepository
	fraudHistory interfaces.FraudHistoryStore
	claims       interfaces.WebhookClaimStore
	idempotency  interfaces.IdempotencyStore
	locker       interfaces.Locker
}

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize telemetry
	if err := telemetry.InitTelemetry(serviceName, cfg.JaegerEndpoint); err != nil {
		panic(fmt.Sprintf("Failed to initialize telemetry: %v", err))
	}
	defer telemetry.Shutdown(context.Background())

	telemetry.Logger.Info("Starting Payment Core")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var nrApp *newrelic.Application
	if cfg.NewRelic.Enabled && cfg.NewRelic.LicenseKey != "" {
		app, err := newrelic.NewApplication(
			newrelic.ConfigAppName(cfg.NewRelic.AppName),
			newrelic.ConfigLicense(cfg.NewRelic.LicenseKey),
			newrelic.ConfigDistributedTracerEnabled(true),
		)
		if err != nil {
			telemetry.Logger.Error("Failed to initialize New Relic", zap.Error(err))
		} else {
			nrApp = app
			defer nrApp.Shutdown(5 * time.Second)
		}
	}

	st := memoryStores()

	// Connect to PostgreSQL
	if cfg.DatabaseURL != "" {
		db, err := openDatabase(cfg.DatabaseURL)
		if err != nil {
			telemetry.Logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()
		if err := repository.InitDB(db); err != nil {
			telemetry.Logger.Fatal("Failed to initialize database", zap.Error(err))
		}
		st.transactions = repository.NewTransactionLogRepository(db)
		st.reports = repository.NewReportRepository(db)
		st.fraudBlocks = repository.NewFraudBlockRepository(db)
	} else {
		telemetry.Logger.Warn("DATABASE_URL not set, ledger is kept in memory")
	}

	// Connect to Redis
	if cfg.RedisURL != "" {
		redisClient, err := redisstore.NewClient(ctx, cfg.RedisURL, nrApp)
		if err != nil {
			telemetry.Logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		useRedis(&st, redisClient)
	} else {
		telemetry.Logger.Warn("REDIS_URL not set, locks and deduplication are process-local")
	}

	// Connect to NATS
	var notifier interfaces.Notifier = events.LogNotifier{}
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL, nats.Name(serviceName))
		if err != nil {
			telemetry.Logger.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		defer nc.Drain()
		notifier = events.NewNATSNotifier(nc)
	}

	// Connect to Kafka
	var publisher interfaces.EventPublisher = events.LogPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher := events.NewKafkaPublisher(events.NewKafkaWriter(cfg.KafkaBrokers))
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
	}

	providerConfigs, err := config.LoadProviders(cfg.ProvidersFile)
	if err != nil {
		telemetry.Logger.Fatal("Failed to load providers", zap.Error(err))
	}
	registry, err := buildRegistry(providerConfigs)
	if err != nil {
		telemetry.Logger.Fatal("Failed to register providers", zap.Error(err))
	}

	gate := fraud.NewGate(cfg.Fraud.GateConfig(), st.fraudHistory, st.fraudBlocks, notifier)
	txLedger := ledger.New(st.transactions, st.locker, publisher)
	engine := reconciliation.NewEngine(registry, txLedger, st.reports, notifier, cfg.Reconciliation.EngineConfig())
	orchestrator := service.NewOrchestrator(registry, cfg.Orchestrator)
	payments := service.NewPaymentService(registry, orchestrator, gate, txLedger, engine)
	pipeline := webhook.NewPipeline(registry, st.claims, txLedger, cfg.Webhook.PipelineConfig())

	// Consume submitted intents
	if len(cfg.KafkaBrokers) > 0 {
		consumer := service.NewIntentConsumer(cfg.KafkaBrokers, payments, st.locker, st.idempotency)
		go consumer.Run(ctx)
	}

	if cfg.Reconciliation.Enabled {
		scheduler := reconciliation.NewScheduler(engine, cfg.Reconciliation.RunHour)
		scheduler.Start(ctx)
		defer scheduler.Stop()
	}

	monitor := health.NewMonitor(registry, cfg.HealthCheckInterval)
	go monitor.Run(ctx)

	grpcServer := grpc.NewServer()
	monitor.Register(grpcServer)
	go func() {
		lis, err := net.Listen("tcp", ":"+cfg.Server.GRPCPort)
		if err != nil {
			telemetry.Logger.Error("Failed to listen for gRPC", zap.Error(err))
			return
		}
		telemetry.Logger.Info("gRPC health server starting", zap.String("port", cfg.Server.GRPCPort))
		if err := grpcServer.Serve(lis); err != nil {
			telemetry.Logger.Error("gRPC server stopped", zap.Error(err))
		}
	}()

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	r := api.NewRouter(api.RouterDeps{
		Payments:         handlers.NewPaymentHandler(payments),
		Subscriptions:    handlers.NewSubscriptionHandler(payments),
		Transactions:     handlers.NewTransactionHandler(payments),
		Admin:            handlers.NewAdminHandler(registry, monitor, gate, payments),
		Webhooks:         handlers.NewWebhookHandler(registry, pipeline, cfg.Webhook.MaxBodyBytes),
		IdempotencyStore: st.idempotency,
		Locker:           st.locker,
		NewRelicApp:      nrApp,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		telemetry.Logger.Info("Payment Core starting",
			zap.String("port", cfg.Server.Port),
			zap.Int("providers", len(providerConfigs)),
		)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			telemetry.Logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()

	telemetry.Logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		telemetry.Logger.Error("Server forced to shutdown", zap.Error(err))
	}
	grpcServer.GracefulStop()

	telemetry.Logger.Info("Server exited")
}

func memoryStores() stores {
	return stores{
		transactions: memory.NewTransactionLogRepository(),
		reports:      memory.NewReportRepository(),
		fraudBlocks:  memory.NewFraudBlockRepository(),
		fraudHistory: fraud.NewMemoryHistory(),
		claims:       webhook.NewMemoryClaims(),
		idempotency:  memory.NewIdempotencyStore(),
		locker:       lock.NewKeyedMutex(),
	}
}

func useRedis(st *stores, client *redis.Client) {
	st.fraudHistory = redisstore.NewFraudHistory(client)
	st.claims = redisstore.NewWebhookClaims(client)
	st.idempotency = redisstore.NewIdempotencyStore(client)
	st.locker = redisstore.NewLocker(client, 30*time.Second)
}

func openDatabase(url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

func buildRegistry(configs []config.ProviderConfig) (*provider.Registry, error) {
	registry := provider.NewRegistry()
	for _, pc := range configs {
		var p provider.Provider
		switch pc.Type {
		case config.ProviderTypeGateway:
			p = gateway.New(gateway.Config{
				Name:            pc.Name,
				BaseURL:         pc.BaseURL,
				APIKey:          pc.APIKey,
				WebhookSecret:   pc.WebhookSecret,
				SignatureHeader: pc.SignatureHeader,
				Timeout:         pc.Timeout,
			})
		default:
			p = sandbox.New(pc.Name, pc.WebhookSecret)
		}
		if err := registry.Register(p, pc.Priority, pc.IsEnabled()); err != nil {
			return nil, err
		}
		telemetry.Logger.Info("Provider registered",
			zap.String("provider", pc.Name),
			zap.String("type", pc.Type),
			zap.Int("priority", pc.Priority),
			zap.Bool("enabled", pc.IsEnabled()),
		)
	}
	return registry, nil
}
