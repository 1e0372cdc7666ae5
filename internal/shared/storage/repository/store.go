// Package repository 数据库无关的 SQL 存储层
//
// 通过 dbutil.Dialect 接口屏蔽 PostgreSQL 与 SQLite 的 SQL 差异，
// 所有 SQL 以 PostgreSQL 风格编写，运行时由 Dialect.Rebind() 转换。
package repository

import (
	"database/sql"
	"strings"
	"time"

	"jobshield/internal/shared/storage"
	"jobshield/internal/shared/storage/dbutil"
)

// Store 通用 SQL 存储实现
// 实现了 storage.PersistentStore 接口
type Store struct {
	db      *sql.DB
	dialect dbutil.Dialect
}

// NewStore 创建通用存储
func NewStore(db *sql.DB, dialect dbutil.Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// Close 关闭数据库连接
func (s *Store) Close() error {
	return s.db.Close()
}

// DB 返回底层数据库连接（仅用于测试）
func (s *Store) DB() *sql.DB {
	return s.db
}

// rebind 快捷方法：将 PG 风格 SQL 转换为当前方言
func (s *Store) rebind(query string) string {
	return s.dialect.Rebind(query)
}

// wrapError 将数据库错误转换为领域错误
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if err == sql.ErrNoRows {
		return storage.ErrNotFound
	}
	// pgx: "duplicate key value violates unique constraint"
	// sqlite: "UNIQUE constraint failed"
	msg := err.Error()
	if strings.Contains(msg, "duplicate key") || strings.Contains(msg, "UNIQUE constraint") {
		return storage.ErrDuplicate
	}
	return err
}

// timeOrNil NullTime → *time.Time
func timeOrNil(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// nullableTime *time.Time → 可写入参数（nil 写 NULL）
func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
