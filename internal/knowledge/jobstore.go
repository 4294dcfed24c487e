package knowledge

import (
	"context"
	stdErrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"Sailor-Bot/internal/config"
	xerrors "Sailor-Bot/internal/errors"
	"Sailor-Bot/internal/state"
)

// ErrJobNotFound 表示频道内还没有发起过索引任务。
var ErrJobNotFound = xerrors.New(xerrors.CodeJobNotFound,
	"No recent index job found for this channel. Please run /update-debbie first.")

// JobStore 按频道保存最近一次索引任务的 ID。
type JobStore interface {
	SaveJob(ctx context.Context, channelID, jobID string) error
	LastJob(ctx context.Context, channelID string) (string, error)
}

func validChannel(channelID string) error {
	if channelID == "" || channelID == "." || channelID == ".." ||
		strings.ContainsAny(channelID, `/\`) || channelID != filepath.Base(channelID) {
		return xerrors.New(xerrors.CodeInvalidArgument, "invalid channel id",
			xerrors.WithMetadata("channel_id", channelID))
	}
	return nil
}

// MemoryJobStore 仅用于测试与单进程部署。
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[string]string
}

// NewMemoryJobStore 创建空的内存存储。
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[string]string)}
}

// SaveJob 实现 JobStore 接口。
func (s *MemoryJobStore) SaveJob(_ context.Context, channelID, jobID string) error {
	if err := validChannel(channelID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[channelID] = jobID
	return nil
}

// LastJob 实现 JobStore 接口。
func (s *MemoryJobStore) LastJob(_ context.Context, channelID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	jobID, ok := s.jobs[channelID]
	if !ok || jobID == "" {
		return "", ErrJobNotFound
	}
	return jobID, nil
}

// FileJobStore 把任务 ID 写入 dir/last_index_job_{channel}.txt。
type FileJobStore struct {
	dir string
}

// NewFileJobStore 创建目录（如不存在）并返回存储。
func NewFileJobStore(dir string) (*FileJobStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "job directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "创建任务目录失败")
	}
	return &FileJobStore{dir: dir}, nil
}

func (s *FileJobStore) path(channelID string) (string, error) {
	if err := validChannel(channelID); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, "last_index_job_"+channelID+".txt"), nil
}

// SaveJob 实现 JobStore 接口。
func (s *FileJobStore) SaveJob(_ context.Context, channelID, jobID string) error {
	path, err := s.path(channelID)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(jobID+"\n"), 0o644); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入任务 ID 失败")
	}
	return nil
}

// LastJob 实现 JobStore 接口。
func (s *FileJobStore) LastJob(_ context.Context, channelID string) (string, error) {
	path, err := s.path(channelID)
	if err != nil {
		return "", err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if stdErrors.Is(err, fs.ErrNotExist) {
			return "", ErrJobNotFound
		}
		return "", xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取任务 ID 失败")
	}
	jobID := strings.TrimSpace(string(raw))
	if jobID == "" {
		return "", ErrJobNotFound
	}
	return jobID, nil
}

// RedisJobStore 以 {prefix}index_job:{channel} 为键保存任务 ID。
type RedisJobStore struct {
	client *redis.Client
	prefix string
}

// NewRedisJobStore 基于已连通的客户端创建存储。
func NewRedisJobStore(client *redis.Client, prefix string) *RedisJobStore {
	if prefix == "" {
		prefix = state.DefaultKeyPrefix
	}
	return &RedisJobStore{client: client, prefix: prefix}
}

func (s *RedisJobStore) key(channelID string) string {
	return s.prefix + "index_job:" + channelID
}

// SaveJob 实现 JobStore 接口。
func (s *RedisJobStore) SaveJob(ctx context.Context, channelID, jobID string) error {
	if err := validChannel(channelID); err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(channelID), jobID, 0).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStoreUnavailable, err, "写入任务 ID 失败")
	}
	return nil
}

// LastJob 实现 JobStore 接口。
func (s *RedisJobStore) LastJob(ctx context.Context, channelID string) (string, error) {
	jobID, err := s.client.Get(ctx, s.key(channelID)).Result()
	if err != nil {
		if stdErrors.Is(err, redis.Nil) {
			return "", ErrJobNotFound
		}
		return "", xerrors.Wrap(xerrors.CodeStoreUnavailable, err, "读取任务 ID 失败")
	}
	if jobID == "" {
		return "", ErrJobNotFound
	}
	return jobID, nil
}

// OpenJobStore 按 cfg.JobStore 创建任务 ID 存储。redis 复用状态存储的连接配置。
func OpenJobStore(ctx context.Context, cfg config.KnowledgeConfig, stateCfg config.StateConfig) (JobStore, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.JobStore)) {
	case "", "file":
		return NewFileJobStore(cfg.JobDir)
	case "memory":
		return NewMemoryJobStore(), nil
	case "redis":
		client, err := state.NewRedisClient(ctx, stateCfg.Redis)
		if err != nil {
			return nil, err
		}
		return NewRedisJobStore(client, stateCfg.KeyPrefix), nil
	default:
		return nil, xerrors.New(xerrors.CodeConfiguration, "unsupported job store",
			xerrors.WithMetadata("reason", cfg.JobStore))
	}
}
