package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	httptransport "github.com/spec-kit/supporthub/internal/api/http"
	"github.com/spec-kit/supporthub/internal/api/http/handlers"
	"github.com/spec-kit/supporthub/internal/audit"
	"github.com/spec-kit/supporthub/internal/auth"
	"github.com/spec-kit/supporthub/internal/blob"
	"github.com/spec-kit/supporthub/internal/config"
	"github.com/spec-kit/supporthub/internal/events"
	"github.com/spec-kit/supporthub/internal/mail"
	"github.com/spec-kit/supporthub/internal/notify"
	"github.com/spec-kit/supporthub/internal/observability"
	"github.com/spec-kit/supporthub/internal/persistence"
	"github.com/spec-kit/supporthub/internal/repository"
	"github.com/spec-kit/supporthub/internal/repository/memory"
	"github.com/spec-kit/supporthub/internal/routing"
	"github.com/spec-kit/supporthub/internal/service"
	"github.com/spec-kit/supporthub/internal/tenant"
	"github.com/spec-kit/supporthub/internal/worker"
)

// repositories is the storage surface the pipelines run on.
type repositories struct {
	tickets  repository.TicketStore
	inbound  repository.InboundMessageRepository
	rules    repository.RoutingRuleRepository
	policies repository.SlaPolicyRepository
	records  repository.SlaRecordRepository
	tenants  repository.TenantRepository
	history  repository.TicketHistoryRepository
	seeder   tenant.TicketSeeder
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if pool := pg.PoolHandle(); pool != nil && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pool, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(cfg.Redis, logger)
	defer redis.Close()

	repos := buildRepositories(pg.PoolHandle())
	engine := routing.NewEngine(routing.Options{
		RegexTimeout:     cfg.SLA.RegexTimeout(),
		MaxPatternLength: cfg.SLA.RegexMaxPatternLength,
	})
	applySeed(ctx, cfg.SeedFile, repos, engine, logger)

	var outbound mail.Sender
	if cfg.Notification.SMTPHost != "" {
		outbound = mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.Notification.SMTPHost,
			Port:     cfg.Notification.SMTPPort,
			Username: cfg.Notification.SMTPUsername,
			Password: cfg.Notification.SMTPPassword,
		})
	}

	var provider interface {
		mail.Provider
		service.MailDrop
	}
	if redis.Enabled() {
		provider = mail.NewRedisMailbox(redis.Client, outbound)
	} else {
		logger.Warn("mail drop is in-memory; pushed mail is lost on restart")
		provider = mail.NewMemoryProvider()
	}
	var mailer mail.Sender = provider
	if outbound != nil {
		mailer = outbound
	}

	var blobs blob.Store = blob.NewMemoryStore()
	if cfg.MinIO.Endpoint != "" {
		minioStore, err := blob.NewMinIOStore(ctx, blob.MinIOConfig{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			Bucket:    cfg.MinIO.Bucket,
			UseSSL:    cfg.MinIO.UseSSL,
		})
		if err != nil {
			logger.Fatal("failed to init attachment store", zap.Error(err))
		}
		blobs = minioStore
	}

	sinks := audit.Multi{audit.NewHistorySink(repos.history)}
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaClient, err := audit.NewKafkaClient(cfg.Kafka.Brokers, cfg.Kafka.ClientID)
		if err != nil {
			logger.Fatal("failed to init kafka client", zap.Error(err))
		}
		defer kafkaClient.Close()
		sinks = append(sinks, audit.NewKafkaSink(kafkaClient, cfg.Kafka.AuditTopic))
	}

	notifiers := notify.Multi{notify.NewLogNotifier(logger)}
	if cfg.Notification.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhookNotifier(cfg.Notification.WebhookURL, cfg.Notification.WebhookTimeout()))
	}
	if cfg.Notification.EmailTo != "" {
		notifiers = append(notifiers, notify.NewEmailNotifier(mailer, cfg.Notification.EmailFrom, cfg.Notification.EmailTo))
	}

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher(logger)
	directory := tenant.NewDirectory(repos.tenants, repos.rules, repos.policies, cfg.Ingestion.IgnoredSenders)

	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketStore:     repos.tickets,
		Dispatcher:      dispatcher,
		ConflictRetries: cfg.Ingestion.ConflictRetries,
	})
	routingService := service.NewRoutingService(service.RoutingDependencies{
		Engine:          engine,
		TicketStore:     repos.tickets,
		RuleRepo:        repos.rules,
		Queues:          directory,
		Dispatcher:      dispatcher,
		Logger:          logger,
		ConflictRetries: cfg.Ingestion.ConflictRetries,
	})
	slaService := service.NewSlaService(service.SlaDependencies{
		TicketStore: repos.tickets,
		PolicyRepo:  repos.policies,
		RecordRepo:  repos.records,
	})
	inboundService := service.NewInboundService(service.InboundDependencies{
		Drop:        provider,
		Mailboxes:   directory,
		InboundRepo: repos.inbound,
	})

	worker.StartNotificationWorker(
		service.NewNotificationService(service.NotificationDependencies{
			Dispatcher:          dispatcher,
			Notifier:            notifiers,
			Mailer:              mailer,
			Logger:              logger,
			SendAcknowledgement: cfg.Ingestion.SendAcknowledgement,
		}),
		service.NewAuditService(dispatcher, sinks),
	)

	ingestion := worker.NewIngestionWorker(worker.IngestionDependencies{
		Directory:   directory,
		Provider:    provider,
		InboundRepo: repos.inbound,
		TicketStore: repos.tickets,
		Tickets:     ticketService,
		Routing:     routingService,
		Blobs:       blobs,
		Logger:      logger,
		Metrics:     metrics,
		BatchSize:   cfg.Ingestion.BatchSize,
		Concurrency: cfg.Ingestion.TenantConcurrency,
		Lookback:    cfg.Ingestion.Lookback(),
	})
	monitor := worker.NewSlaMonitor(worker.SlaMonitorDependencies{
		Directory:   directory,
		TicketStore: repos.tickets,
		RecordRepo:  repos.records,
		Dispatcher:  dispatcher,
		Logger:      logger,
		Metrics:     metrics,
		PageSize:    cfg.SLA.OpenTicketPageSize,
		Concurrency: cfg.Ingestion.TenantConcurrency,
	})
	runner := worker.NewRunner(ingestion, monitor)

	var locker *worker.RedisLocker
	if redis.Enabled() {
		locker = worker.NewRedisLocker(redis.Client, 2*max(cfg.Ingestion.PollInterval(), cfg.SLA.MonitorInterval()))
	}
	scheduler, err := newScheduler(runner, locker, logger)
	if err != nil {
		logger.Fatal("failed to init scheduler", zap.Error(err))
	}
	if err := scheduler.Schedule(ctx, observability.PipelineIngestion, cfg.Ingestion.PollInterval()); err != nil {
		logger.Fatal("failed to schedule ingestion", zap.Error(err))
	}
	if err := scheduler.Schedule(ctx, observability.PipelineSlaMonitor, cfg.SLA.MonitorInterval()); err != nil {
		logger.Fatal("failed to schedule sla monitor", zap.Error(err))
	}

	readiness := map[string]handlers.Pinger{}
	if pg.PoolHandle() != nil {
		readiness["postgres"] = pg
	}
	if redis.Enabled() {
		readiness["redis"] = redis
	}

	app := fiber.New(fiber.Config{AppName: cfg.App.Name, DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, readiness),
		Inbound:        handlers.NewInboundHandler(inboundService),
		Ops:            handlers.NewOpsHandler(runner, metrics),
		Tenants:        handlers.NewTenantHandler(routingService, slaService),
		AuthMiddleware: auth.NewAuthMiddleware(auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.AccessTokenTTLMinutes)),
		Metrics:        metrics.Handler(),
	})

	scheduler.Start()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("http server listening", zap.String("addr", cfg.App.Addr()))
		return app.Listen(cfg.App.Addr())
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		if err := scheduler.Shutdown(); err != nil {
			logger.Warn("scheduler shutdown", zap.Error(err))
		}
		return app.ShutdownWithTimeout(10 * time.Second)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}

// newScheduler keeps a nil *RedisLocker from becoming a non-nil gocron.Locker.
func newScheduler(runner *worker.Runner, locker *worker.RedisLocker, logger *zap.Logger) (*worker.Scheduler, error) {
	if locker == nil {
		return worker.NewScheduler(runner, nil, logger)
	}
	return worker.NewScheduler(runner, locker, logger)
}

func buildRepositories(pool *pgxpool.Pool) repositories {
	if pool == nil {
		store := memory.NewStore()
		return repositories{
			tickets:  store.Tickets(),
			inbound:  store.Inbound(),
			rules:    store.Rules(),
			policies: store.Policies(),
			records:  store.SlaRecords(),
			tenants:  store.Tenants(),
			history:  store.History(),
			seeder:   store,
		}
	}
	return repositories{
		tickets:  repository.NewTicketStore(pool),
		inbound:  repository.NewInboundMessageRepository(pool),
		rules:    repository.NewRoutingRuleRepository(pool),
		policies: repository.NewSlaPolicyRepository(pool),
		records:  repository.NewSlaRecordRepository(pool),
		tenants:  repository.NewTenantRepository(pool),
		history:  repository.NewTicketHistoryRepository(pool),
	}
}

// applySeed loads tenants, mailboxes, queues, rules and policies from the seed
// file when present. Seeded tickets only reach the in-memory store.
func applySeed(ctx context.Context, path string, repos repositories, engine *routing.Engine, logger *zap.Logger) {
	if path == "" {
		return
	}
	if _, err := os.Stat(path); err != nil {
		logger.Info("no seed file", zap.String("path", path))
		return
	}
	seed, err := tenant.LoadSeed(path)
	if err != nil {
		logger.Fatal("failed to load seed", zap.Error(err))
	}
	err = seed.Apply(ctx, tenant.SeedTargets{
		Tenants:  repos.tenants,
		Rules:    repos.rules,
		Policies: repos.policies,
		Tickets:  repos.seeder,
		Engine:   engine,
	})
	if err != nil {
		logger.Fatal("failed to apply seed", zap.Error(err))
	}
	logger.Info("seed applied", zap.String("path", path), zap.Int("tenants", len(seed.Tenants)))
}
