package state

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	xerrors "Sailor-Bot/internal/errors"
)

// FileStore 在目录下为每个用户保存一个 JSON 文件。
type FileStore struct {
	dir string
}

var _ Store = (*FileStore)(nil)

// NewFileStore 创建目录（如不存在）并返回存储。
func NewFileStore(dir string) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "state directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "创建状态目录失败")
	}
	return &FileStore{dir: dir}, nil
}

// path 只接受单一、安全的路径元素作为用户 ID。
func (s *FileStore) path(userID string) (string, error) {
	if userID == "" || userID == "." || userID == ".." ||
		strings.ContainsAny(userID, `/\`) || userID != filepath.Base(userID) {
		return "", xerrors.New(xerrors.CodeInvalidArgument, "invalid user id",
			xerrors.WithMetadata("user_id", userID))
	}
	return filepath.Join(s.dir, userID+".json"), nil
}

// Get 实现 Store 接口。
func (s *FileStore) Get(_ context.Context, userID string) (UserIdentity, error) {
	path, err := s.path(userID)
	if err != nil {
		return UserIdentity{}, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if stdErrors.Is(err, fs.ErrNotExist) {
			return UserIdentity{}, notFound(userID)
		}
		return UserIdentity{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取用户状态失败")
	}
	var identity UserIdentity
	if err := json.Unmarshal(raw, &identity); err != nil {
		return UserIdentity{}, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析用户状态失败",
			xerrors.WithMetadata("user_id", userID))
	}
	return identity, nil
}

// Set 先写临时文件再重命名，保证读者看不到半条记录。
func (s *FileStore) Set(_ context.Context, identity UserIdentity) (string, error) {
	if err := identity.Validate(); err != nil {
		return "", err
	}
	path, err := s.path(identity.UserID)
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(identity)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化用户状态失败")
	}

	tmp, err := os.CreateTemp(s.dir, ".state-*")
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeStorageFailure, err, "创建临时文件失败")
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入用户状态失败")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入用户状态失败")
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", xerrors.Wrap(xerrors.CodeStorageFailure, err, "替换用户状态失败")
	}
	return identity.UserID, nil
}

// Unset 实现 Store 接口。
func (s *FileStore) Unset(_ context.Context, identity UserIdentity) (string, error) {
	path, err := s.path(identity.UserID)
	if err != nil {
		return "", err
	}
	if err := os.Remove(path); err != nil {
		if stdErrors.Is(err, fs.ErrNotExist) {
			return "", notFound(identity.UserID)
		}
		return "", xerrors.Wrap(xerrors.CodeStorageFailure, err, "删除用户状态失败")
	}
	return identity.UserID, nil
}

// Close 实现 Store 接口。
func (s *FileStore) Close() error { return nil }
