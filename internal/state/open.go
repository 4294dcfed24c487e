package state

import (
	"context"
	"strings"
	"time"

	"Sailor-Bot/internal/config"
	xerrors "Sailor-Bot/internal/errors"
)

const reconnectInterval = 10 * time.Second

// Open 按配置的驱动创建用户状态存储。
// 驱动为 none，或 redis 未提供连接信息时返回 ErrStoreDisabled。
// 网络存储（redis、mysql）以 LazyStore 包装，启动时不可达不会导致失败。
func Open(ctx context.Context, cfg config.StateConfig) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "none", "disabled":
		return nil, ErrStoreDisabled
	case "", "redis":
		if !cfg.Redis.Configured() {
			return nil, ErrStoreDisabled
		}
		redisCfg, prefix := cfg.Redis, cfg.KeyPrefix
		return NewLazyStore(func(ctx context.Context) (Store, error) {
			client, err := NewRedisClient(ctx, redisCfg)
			if err != nil {
				return nil, err
			}
			return NewRedisStore(client, prefix), nil
		}, reconnectInterval), nil
	case "file":
		return NewFileStore(cfg.FileDir)
	case DialectMySQL:
		dsn := cfg.DSN
		if strings.TrimSpace(dsn) == "" {
			return nil, xerrors.New(xerrors.CodeConfiguration, "state store DSN is required", xerrors.WithMetadata("dialect", DialectMySQL))
		}
		return NewLazyStore(func(ctx context.Context) (Store, error) {
			return NewSQLStore(ctx, DialectMySQL, dsn)
		}, reconnectInterval), nil
	case DialectSQLite:
		return NewSQLStore(ctx, DialectSQLite, cfg.DSN)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, xerrors.New(xerrors.CodeConfiguration, "unsupported state store driver",
			xerrors.WithMetadata("reason", cfg.Driver))
	}
}

// IsDisabled 判断 Open 的错误是否只是表示未启用存储。
func IsDisabled(err error) bool {
	e, ok := xerrors.From(err)
	return ok && e == ErrStoreDisabled
}
