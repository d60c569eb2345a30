package main

import (
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"finch/internal/domain/banksync"
	"finch/internal/domain/rules"
	"finch/internal/domain/transaction"
	"finch/internal/infrastructure/aggregator"
	"finch/internal/infrastructure/postgres"
	httphandlers "finch/internal/interfaces/http"
	"finch/internal/shared/auth"
	"finch/internal/shared/config"
	"finch/internal/shared/keylock"
	"finch/internal/shared/ratelimit"
)

// Dependencies holds all initialized application components.
type Dependencies struct {
	DB  *postgres.DB
	Log *logrus.Logger

	// Handlers
	ItemHandler        *httphandlers.ItemHandler
	AccountHandler     *httphandlers.AccountHandler
	TransactionHandler *httphandlers.TransactionHandler
	RuleHandler        *httphandlers.RuleHandler
	SyncHandler        *httphandlers.SyncHandler
	WebhookHandler     *httphandlers.WebhookHandler

	// Auth
	JWT *auth.JWT

	// Sync components (for the scheduler job provider)
	ItemRepo    *postgres.ItemRepository
	SyncService *banksync.Service
}

// NewDependencies initializes all application dependencies.
func NewDependencies(cfg *config.Config, log *logrus.Logger) (*Dependencies, error) {
	db, err := postgres.New(cfg.Database.ConnectionString())
	if err != nil {
		return nil, err
	}
	log.Info("connected to database")

	// Repositories
	itemRepo := postgres.NewItemRepository(db)
	accountRepo := postgres.NewAccountRepository(db)
	transactionRepo := postgres.NewTransactionRepository(db)
	ruleRepo := postgres.NewRuleRepository(db)
	syncStore := postgres.NewSyncStore(db)

	// Keyed sync lock: in-process by default, Redis when running more than
	// one instance.
	var locker keylock.Locker = keylock.NewMemoryLocker()
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		locker = keylock.NewRedisLocker(rdb, cfg.Sync.LockTTL)
		log.Info("using Redis-backed sync lock")
	}

	// Domain services
	aggClient := aggregator.NewHTTPClient(cfg.Aggregator.BaseURL, cfg.Aggregator.ClientID, cfg.Aggregator.ClientSecret)
	categorizer := rules.NewEngine(ruleRepo, transactionRepo, log)
	reconciler := banksync.NewReconciler(log)
	syncService := banksync.NewService(itemRepo, syncStore, aggClient, locker, reconciler, categorizer, log)
	ledgerService := transaction.NewService(transactionRepo, accountRepo, log)

	// Rate limiter classes
	limiter := ratelimit.New(
		ratelimit.Class{Name: httphandlers.RateClassWebhook, Limit: cfg.RateLimit.WebhookPerMinute, Window: time.Minute},
		ratelimit.Class{Name: httphandlers.RateClassInteractive, Limit: cfg.RateLimit.InteractivePerHour, Window: time.Hour},
	)

	// Webhook signature verification against the aggregator's JWKS
	verifier, err := auth.NewWebhookVerifier(cfg.Aggregator.JWKSURL, log)
	if err != nil {
		return nil, err
	}

	jwt := auth.NewJWT(cfg.JWT.Secret)

	return &Dependencies{
		DB:                 db,
		Log:                log,
		ItemHandler:        httphandlers.NewItemHandler(itemRepo, log),
		AccountHandler:     httphandlers.NewAccountHandler(accountRepo, log),
		TransactionHandler: httphandlers.NewTransactionHandler(ledgerService, log),
		RuleHandler:        httphandlers.NewRuleHandler(ruleRepo, categorizer, log),
		SyncHandler:        httphandlers.NewSyncHandler(syncService, limiter, log),
		WebhookHandler:     httphandlers.NewWebhookHandler(verifier, itemRepo, syncService, limiter, log),
		JWT:                jwt,
		ItemRepo:           itemRepo,
		SyncService:        syncService,
	}, nil
}

// Close releases all resources held by dependencies.
func (d *Dependencies) Close() {
	if d.DB != nil {
		d.DB.Close()
	}
}
