package database

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"phPortfolio/internal/config"
)

// InitDatabase 使用配置初始化 PostgreSQL 连接，并返回 GORM 数据库实例。
// TranslateError 打开后，唯一约束冲突会被统一映射为 gorm.ErrDuplicatedKey，
// 存储层据此识别 slug 冲突而无需解析驱动的错误文本。
func InitDatabase(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Info),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap db: %w", err)
	}

	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return db, nil
}

// EnsureIndexes 创建 AutoMigrate 无法表达的约束。
// 活跃 Portfolio 之间 slug 必须唯一；已停用的记录不占用 slug。
func EnsureIndexes(db *gorm.DB) error {
	stmt := `CREATE UNIQUE INDEX IF NOT EXISTS idx_portfolios_active_slug
		ON portfolios (slug) WHERE is_active AND deleted_at IS NULL`
	if err := db.Exec(stmt).Error; err != nil {
		return fmt.Errorf("create active slug index: %w", err)
	}
	return nil
}
