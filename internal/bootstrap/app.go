package bootstrap

import (
	"context"
	"log/slog"
	"time"

	"marketplace/internal/config"
	"marketplace/internal/infra/cache"
	"marketplace/internal/infra/db"
	"marketplace/internal/infra/paystack"
	infraRepo "marketplace/internal/infra/repository"
	"marketplace/internal/usecase"
	"marketplace/internal/validator"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type uuidGenerator struct{}

func (g *uuidGenerator) NewID() string {
	return uuid.NewString()
}

type realClock struct{}

func (c *realClock) Now() time.Time {
	return time.Now().UTC()
}

// App はAPIとCLIで共有する部品一式
type App struct {
	DB    *gorm.DB
	Redis *redis.Client

	Checkout   *usecase.CheckoutUsecase
	Orders     *usecase.OrderUsecase
	Settlement *usecase.SettlementUsecase
	Payout     *usecase.PayoutUsecase
	Vendors    *usecase.VendorUsecase
	AdminOrder *usecase.AdminOrderUsecase
	Reports    *usecase.ReportUsecase
}

// New はDBに接続してマイグレーションし、usecaseを組み立てる。
func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	gormDB, err := db.Connect(cfg)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(gormDB); err != nil {
		return nil, err
	}

	// Redisは任意。繋がらなければキャッシュなしで動く
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb, err = cache.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			log.WarnContext(ctx, "redis unavailable, settlement cache disabled", "addr", cfg.RedisAddr, "error", err)
			rdb = nil
		}
	}

	app := Wire(gormDB, cfg, rdb, log)
	return app, nil
}

// Wire は接続済みのDB/Redisからusecaseを組み立てる（テストでも使う）
func Wire(gormDB *gorm.DB, cfg config.Config, rdb *redis.Client, log *slog.Logger) *App {
	return WireWithGateway(gormDB, cfg, rdb, paystack.NewClient(
		cfg.PaystackSecretKey,
		cfg.PaystackTimeout,
		paystack.WithBaseURL(cfg.PaystackBaseURL),
	), log)
}

func WireWithGateway(gormDB *gorm.DB, cfg config.Config, rdb *redis.Client, gateway usecase.PaymentGateway, log *slog.Logger) *App {
	var c cache.Cache = cache.Noop{}
	if rdb != nil {
		c = cache.NewRedisCache(rdb, "marketplace")
	}

	tx := infraRepo.NewTxManagerGorm(gormDB)
	repos := infraRepo.NewRepos(gormDB)
	ids := &uuidGenerator{}
	clock := &realClock{}
	v := validator.NewCheckoutValidator()

	payout := usecase.NewPayoutUsecase(repos, gateway, clock, cfg.CommissionPercent, log)

	return &App{
		DB:    gormDB,
		Redis: rdb,

		Checkout: usecase.NewCheckoutUsecase(tx, repos, gateway, v, ids, clock, usecase.CheckoutConfig{
			Currency:        cfg.Currency,
			CallbackURL:     cfg.CallbackURL,
			ReferencePrefix: cfg.ReferencePrefix,
			TaxRate:         cfg.TaxRate,
		}, log),
		Orders: usecase.NewOrderUsecase(tx),
		Settlement: usecase.NewSettlementUsecase(tx, repos, gateway, c, clock, usecase.SettlementConfig{
			WebhookSecret: cfg.PaystackSecretKey,
			CacheTTL:      cfg.SettlementCacheTTL,
		}, log),
		Payout:     payout,
		Vendors:    usecase.NewVendorUsecase(tx, repos, payout, v, clock, log),
		AdminOrder: usecase.NewAdminOrderUsecase(tx, clock),
		Reports:    usecase.NewReportUsecase(repos, cfg.CommissionPercent),
	}
}

// Close はDBとRedisを閉じる
func (a *App) Close() {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
