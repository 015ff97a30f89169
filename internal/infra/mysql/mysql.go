package mysql

import (
	"context"
	"fmt"
	"time"

	"order-placement-service/internal/config"
	"order-placement-service/internal/domain"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

// NewMySQL opens the pool, waits for the server to answer and migrates the
// tables placement writes to.
func NewMySQL(ctx context.Context, cfg config.MySQL, log *zap.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN()), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			SingularTable: false,
		},
		Logger:                 logger.Default.LogMode(logger.Warn),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("mysql pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnIdleTime)

	for attempt := 1; ; attempt++ {
		err = sqlDB.PingContext(ctx)
		if err == nil {
			break
		}
		if attempt == 30 {
			sqlDB.Close()
			return nil, fmt.Errorf("mysql not reachable after %d attempts: %w", attempt, err)
		}
		log.Info("Waiting for database", zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			sqlDB.Close()
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}

	if err := db.WithContext(ctx).AutoMigrate(&domain.Product{}, &domain.Order{}, &domain.CartItem{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info("Connected to MySQL", zap.String("host", cfg.Host), zap.String("database", cfg.Database))
	return db, nil
}
