package bootstrap

import (
	"context"
	"time"

	synccache "booking_server/adapter/out/cache"
	"booking_server/adapter/out/messaging"
	"booking_server/adapter/out/persistence"
	"booking_server/adapter/out/provider"
	"booking_server/adapter/out/realtime"
	"booking_server/config"
	"booking_server/core/port/out"
	"booking_server/core/service/calendar"
	"booking_server/infra/database"
	"booking_server/pkg/cache"
	"booking_server/pkg/crypto"
	"booking_server/pkg/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
)

type Dependencies struct {
	Config *config.Config
	DB     *pgxpool.Pool
	SQLDB  *sqlx.DB
	Redis  *redis.Client

	// Repositories
	IntegrationRepo *persistence.IntegrationAdapter
	MappingRepo     *persistence.MappingAdapter
	OwnerRepo       *persistence.OwnerAdapter
	AppointmentRepo *persistence.AppointmentAdapter
	ClosureRepo     *persistence.ClosureAdapter
	WatchRepo       *persistence.WatchAdapter
	CredentialRepo  *persistence.CredentialAdapter

	// Provider
	GoogleCalendarProvider *provider.GoogleCalendarAdapter

	// Coordination (Redis, or in-process when Redis is absent)
	SyncLocker out.SyncLocker
	BatchCache out.EventBatchCache

	// Messaging
	MessageProducer out.MessageProducer

	// Realtime
	RealtimeAdapter *realtime.SSEAdapter
	Notifier        out.OperatorNotifier

	// Services
	IntegrationService *calendar.Manager
}

func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg}
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	// Database (pgxpool for health, sqlx for adapters)
	pgCfg := database.DefaultPostgresConfig()
	db, err := database.NewPostgresWithConfig(cfg.DatabaseURL, pgCfg)
	if err != nil {
		return nil, nil, err
	}
	deps.DB = db
	cleanups = append(cleanups, db.Close)

	sqlDB, err := database.NewSQLX(cfg.DatabaseURL, pgCfg)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	deps.SQLDB = sqlDB
	cleanups = append(cleanups, func() { sqlDB.Close() })
	logger.Info("Database connected (pool: max=%d)", pgCfg.MaxConns)

	if cfg.IsDevelopment() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		n, err := database.ApplySchema(ctx, sqlDB)
		cancel()
		if err != nil {
			logger.Warn("Schema apply failed: %v", err)
		} else {
			logger.Info("Schema applied (%d files)", n)
		}
	}

	// Redis (optional)
	if cfg.RedisURL != "" {
		redisClient, err := database.NewRedis(cfg.RedisURL)
		if err != nil {
			logger.Warn("Redis connection failed, falling back to in-process coordination: %v", err)
		} else {
			deps.Redis = redisClient
			cleanups = append(cleanups, func() { redisClient.Close() })
		}
	}

	// Repositories
	deps.IntegrationRepo = persistence.NewIntegrationAdapter(sqlDB)
	deps.MappingRepo = persistence.NewMappingAdapter(sqlDB)
	deps.OwnerRepo = persistence.NewOwnerAdapter(sqlDB)
	deps.AppointmentRepo = persistence.NewAppointmentAdapter(sqlDB)
	deps.ClosureRepo = persistence.NewClosureAdapter(sqlDB)
	deps.WatchRepo = persistence.NewWatchAdapter(sqlDB)

	// Google Calendar provider and credentials
	providerCfg := &provider.GoogleCalendarConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
		WebhookURL:   cfg.WebhookURL,
		WebhookToken: cfg.WebhookTokenKey,
		Location:     cfg.Location(),
	}
	deps.GoogleCalendarProvider = provider.NewGoogleCalendarAdapter(providerCfg)

	var tokenCipher *crypto.TokenCipher
	if cfg.EncryptionKey != "" {
		tokenCipher, err = crypto.NewTokenCipher(cfg.EncryptionKey)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
	}
	oauthCfg := provider.OAuthConfig(providerCfg)
	if cfg.GoogleClientID == "" {
		oauthCfg = nil
		logger.Warn("GOOGLE_CLIENT_ID not set, expired tokens will not be refreshed")
	}
	deps.CredentialRepo = persistence.NewCredentialAdapter(sqlDB, oauthCfg, provider.ProviderName, tokenCipher)

	// Coordination
	if deps.Redis != nil {
		redisCache := cache.NewRedisCache(deps.Redis)
		deps.SyncLocker = synccache.NewRedisSyncLocker(redisCache, cfg.SyncLockTTL)
		deps.BatchCache = synccache.NewBatchCache(redisCache, cfg.BatchCacheTTL)
		deps.MessageProducer = messaging.NewRedisProducer(deps.Redis)
	} else {
		deps.SyncLocker = synccache.NewMemorySyncLocker()
		deps.BatchCache = synccache.NewMemoryBatchCache(cfg.BatchCacheTTL)
	}

	// Realtime: with Redis, events fan out through pub/sub so any API instance can serve the stream.
	deps.RealtimeAdapter = realtime.NewSSEAdapter(logger.Component("sse"))
	if deps.Redis != nil {
		deps.Notifier = realtime.NewRedisNotifier(deps.Redis)
	} else {
		deps.Notifier = deps.RealtimeAdapter
	}

	deps.IntegrationService = calendar.NewManager(calendar.Dependencies{
		States:       deps.IntegrationRepo,
		Mappings:     deps.MappingRepo,
		Owners:       deps.OwnerRepo,
		Provider:     deps.GoogleCalendarProvider,
		Credentials:  deps.CredentialRepo,
		Appointments: deps.AppointmentRepo,
		Closures:     deps.ClosureRepo,
		Watches:      deps.WatchRepo,
		Batches:      deps.BatchCache,
		Locker:       deps.SyncLocker,
		Notifier:     deps.Notifier,
		Producer:     deps.MessageProducer,
	}, calendar.Config{
		ProviderName:     provider.ProviderName,
		ProviderTimeout:  cfg.ProviderTimeout,
		LockWait:         cfg.SyncLockWait,
		DisconnectWait:   cfg.SyncLockTTL,
		PassTimeout:      cfg.PassTimeout(),
		ImportHorizon:    cfg.ImportHorizon(),
		WatchRenewWindow: cfg.WatchRenewWindow,
		ClosureKeywords:  cfg.ClosureKeywords,
	})
	logger.Info("Integration service initialized (redis=%v)", deps.Redis != nil)

	return deps, cleanup, nil
}
