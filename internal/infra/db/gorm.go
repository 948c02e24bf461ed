package db

import (
	"marketplace/internal/config"
	"marketplace/internal/domain/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect はDBに接続して *gorm.DB を返す。
func Connect(cfg config.Config) (*gorm.DB, error) {
	return gorm.Open(postgres.Open(cfg.PostgresDSN()), Options(cfg.IsProduction()))
}

// 一意制約違反をgorm.ErrDuplicatedKeyに変換させる
func Options(quiet bool) *gorm.Config {
	c := &gorm.Config{TranslateError: true}
	if quiet {
		c.Logger = logger.Default.LogMode(logger.Silent)
	}
	return c
}

// Migrate は決済まわりのテーブルを作る。
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.Vendor{},
		&model.Product{},
		&model.Order{},
		&model.OrderItem{},
		&model.Payment{},
		&model.AuditLog{},
	)
}
