package state

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	xerrors "Sailor-Bot/internal/errors"
)

// SQL 方言。
const (
	DialectMySQL  = "mysql"
	DialectSQLite = "sqlite"
)

const userStatesSchema = `CREATE TABLE IF NOT EXISTS user_states (
        user_id VARCHAR(64) NOT NULL PRIMARY KEY,
        provider VARCHAR(32) NOT NULL,
        model VARCHAR(128) NOT NULL,
        updated_at BIGINT NOT NULL
)`

// SQLStore 使用关系型数据库保存用户状态。
type SQLStore struct {
	db      *sql.DB
	dialect string
	upsert  string
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore 打开数据库、检查连通性并初始化表结构。
func NewSQLStore(ctx context.Context, dialect, dsn string) (*SQLStore, error) {
	dialect = strings.ToLower(strings.TrimSpace(dialect))
	if strings.TrimSpace(dsn) == "" {
		return nil, xerrors.New(xerrors.CodeConfiguration, "state store DSN is required",
			xerrors.WithMetadata("dialect", dialect))
	}

	var upsert string
	switch dialect {
	case DialectMySQL:
		upsert = `INSERT INTO user_states (user_id, provider, model, updated_at) VALUES (?, ?, ?, ?)
        ON DUPLICATE KEY UPDATE provider = VALUES(provider), model = VALUES(model), updated_at = VALUES(updated_at)`
	case DialectSQLite:
		upsert = `INSERT INTO user_states (user_id, provider, model, updated_at) VALUES (?, ?, ?, ?)
        ON CONFLICT(user_id) DO UPDATE SET provider = excluded.provider, model = excluded.model, updated_at = excluded.updated_at`
	default:
		return nil, xerrors.New(xerrors.CodeConfiguration, fmt.Sprintf("unsupported SQL dialect %q", dialect))
	}

	db, err := sql.Open(dialect, dsn)
	if err != nil {
		return nil, unavailable(err, "打开数据库失败")
	}
	if dialect == DialectSQLite {
		// 内存数据库在每个连接上都是独立的。
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, unavailable(err, "无法连接到数据库")
	}
	if _, err := db.ExecContext(ctx, userStatesSchema); err != nil {
		db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化 user_states 表失败")
	}
	return &SQLStore{db: db, dialect: dialect, upsert: upsert}, nil
}

// Get 实现 Store 接口。
func (s *SQLStore) Get(ctx context.Context, userID string) (UserIdentity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT user_id, provider, model FROM user_states WHERE user_id = ?`, userID)
	var identity UserIdentity
	if err := row.Scan(&identity.UserID, &identity.Provider, &identity.Model); err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return UserIdentity{}, notFound(userID)
		}
		return UserIdentity{}, unavailable(err, "查询用户状态失败")
	}
	return identity, nil
}

// Set 实现 Store 接口。
func (s *SQLStore) Set(ctx context.Context, identity UserIdentity) (string, error) {
	if err := identity.Validate(); err != nil {
		return "", err
	}
	if _, err := s.db.ExecContext(ctx, s.upsert,
		identity.UserID, identity.Provider, identity.Model, time.Now().Unix()); err != nil {
		return "", unavailable(err, "写入用户状态失败")
	}
	return identity.UserID, nil
}

// Unset 实现 Store 接口。
func (s *SQLStore) Unset(ctx context.Context, identity UserIdentity) (string, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM user_states WHERE user_id = ?`, identity.UserID)
	if err != nil {
		return "", unavailable(err, "删除用户状态失败")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return "", unavailable(err, "获取影响行数失败")
	}
	if affected == 0 {
		return "", notFound(identity.UserID)
	}
	return identity.UserID, nil
}

// Close 关闭数据库连接池。
func (s *SQLStore) Close() error {
	return s.db.Close()
}
