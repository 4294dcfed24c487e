package state

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"strings"

	"github.com/redis/go-redis/v9"

	"Sailor-Bot/internal/config"
	xerrors "Sailor-Bot/internal/errors"
	"Sailor-Bot/pkg/logger"
)

// DefaultKeyPrefix 是用户状态键的命名空间。
const DefaultKeyPrefix = "chatbot:"

// NewRedisClient 根据配置创建 Redis 客户端并立即 PING，失败时返回 STORE_UNAVAILABLE。
// URL 优先于分字段配置。
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	var opts *redis.Options
	if url := strings.TrimSpace(cfg.URL); url != "" {
		parsed, err := redis.ParseURL(url)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeConfiguration, err, "invalid redis url",
				xerrors.WithMetadata("url", logger.RedactURL(url)))
		}
		opts = parsed
	} else if addr := strings.TrimSpace(cfg.Address); addr != "" {
		opts = &redis.Options{Addr: addr, Password: cfg.Password, DB: cfg.DB}
	} else {
		return nil, ErrStoreDisabled
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, unavailable(err, "连接 Redis 失败")
	}
	return client, nil
}

// RedisStore 以 prefix+userID 为键、JSON 为值保存用户状态。
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore 基于已连通的客户端创建存储。
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(userID string) string {
	return s.prefix + userID
}

// Get 实现 Store 接口。
func (s *RedisStore) Get(ctx context.Context, userID string) (UserIdentity, error) {
	raw, err := s.client.Get(ctx, s.key(userID)).Bytes()
	if err != nil {
		if stdErrors.Is(err, redis.Nil) {
			return UserIdentity{}, notFound(userID)
		}
		return UserIdentity{}, unavailable(err, "读取 Redis 用户状态失败")
	}
	var identity UserIdentity
	if err := json.Unmarshal(raw, &identity); err != nil {
		return UserIdentity{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析用户状态失败",
			xerrors.WithMetadata("user_id", userID))
	}
	return identity, nil
}

// Set 实现 Store 接口。
func (s *RedisStore) Set(ctx context.Context, identity UserIdentity) (string, error) {
	if err := identity.Validate(); err != nil {
		return "", err
	}
	payload, err := json.Marshal(identity)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化用户状态失败")
	}
	if err := s.client.Set(ctx, s.key(identity.UserID), payload, 0).Err(); err != nil {
		return "", unavailable(err, "写入 Redis 用户状态失败")
	}
	return identity.UserID, nil
}

// Unset 实现 Store 接口。
func (s *RedisStore) Unset(ctx context.Context, identity UserIdentity) (string, error) {
	key := s.key(identity.UserID)
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return "", unavailable(err, "查询 Redis 用户状态失败")
	}
	if exists == 0 {
		return "", notFound(identity.UserID)
	}
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return "", unavailable(err, "删除 Redis 用户状态失败")
	}
	return identity.UserID, nil
}

// Close 关闭底层连接。
func (s *RedisStore) Close() error {
	return s.client.Close()
}
