package localdb

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/nvquang/storefront-core/pkg/config"
	"github.com/nvquang/storefront-core/pkg/logger"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Client wraps the local sqlite cache connection.
type Client struct {
	conn *gorm.DB
}

// New opens the on-device cache database and migrates the cache schema.
func New(ctx context.Context, cfg config.CacheConfig, logg *logger.Logger) (*Client, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("cache path is required")
	}

	gormLogger := gormlogger.New(
		log.New(io.Discard, "", log.LstdFlags),
		gormlogger.Config{LogLevel: gormlogger.Silent},
	)

	conn, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening cache db: %w", err)
	}

	if cfg.AutoMigrate {
		if err := conn.WithContext(ctx).AutoMigrate(&CachedSnapshot{}, &CachedOrder{}); err != nil {
			return nil, fmt.Errorf("migrating cache schema: %w", err)
		}
	}

	if logg != nil {
		logg.Info(ctx, "local cache opened")
	}

	return &Client{conn: conn}, nil
}

// DB returns the underlying GORM connection.
func (c *Client) DB() *gorm.DB {
	return c.conn
}

// Ping verifies the cache file is usable.
func (c *Client) Ping(ctx context.Context) error {
	sqlDB, err := c.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close shuts down the pooled connections.
func (c *Client) Close() error {
	sqlDB, err := c.conn.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
