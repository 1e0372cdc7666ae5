// Package infra 基础设施初始化
//
// 根据配置 URL 选择并初始化持久化存储、缓存等后端组件，
// 供 cmd 入口统一装配。
package infra

import (
	"fmt"
	"log"
	"strings"

	"jobshield/internal/shared/storage"
	"jobshield/internal/shared/storage/driver/postgres"
	"jobshield/internal/shared/storage/driver/sqlite"
	"jobshield/internal/shared/storage/mongostore"
	"jobshield/internal/shared/storage/repository"
)

// NewPersistentStore 根据 URL scheme 创建持久化存储
//
// 支持三种后端：
//   - mongodb:// / mongodb+srv://  -> MongoDB
//   - postgres:// / postgresql://  -> PostgreSQL（pgx）
//   - 其他                          -> 按 SQLite 文件路径处理
//
// SQL 后端会自动执行建表迁移。
func NewPersistentStore(databaseURL, dbName string) (storage.PersistentStore, error) {
	switch {
	case strings.HasPrefix(databaseURL, "mongodb://"), strings.HasPrefix(databaseURL, "mongodb+srv://"):
		store, err := mongostore.NewStore(databaseURL, dbName)
		if err != nil {
			return nil, fmt.Errorf("failed to init mongodb store: %w", err)
		}
		log.Printf("[infra] Using MongoDB storage")
		return store, nil

	case strings.HasPrefix(databaseURL, "postgres://"), strings.HasPrefix(databaseURL, "postgresql://"):
		db, err := postgres.Open(databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres: %w", err)
		}
		dialect := postgres.NewDialect()
		if err := dialect.AutoMigrate(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("postgres migration failed: %w", err)
		}
		log.Printf("[infra] Using PostgreSQL storage")
		return repository.NewStore(db, dialect), nil

	default:
		db, err := sqlite.Open(databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		dialect := sqlite.NewDialect()
		if err := dialect.AutoMigrate(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite migration failed: %w", err)
		}
		log.Printf("[infra] Using SQLite storage: %s", databaseURL)
		return repository.NewStore(db, dialect), nil
	}
}
