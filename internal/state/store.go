package state

import (
	"context"

	xerrors "Sailor-Bot/internal/errors"
)

// Store 定义用户状态存储的统一接口。
type Store interface {
	// Get 返回用户的当前选择，不存在时返回 ErrStateNotFound。
	Get(ctx context.Context, userID string) (UserIdentity, error)
	// Set 以整条记录覆盖的方式写入，返回用户 ID。
	Set(ctx context.Context, identity UserIdentity) (string, error)
	// Unset 删除用户记录，记录不存在时返回 ErrStateNotFound。
	Unset(ctx context.Context, identity UserIdentity) (string, error)
	Close() error
}

var (
	// ErrStateNotFound 表示用户尚未保存任何选择。
	ErrStateNotFound = xerrors.New(xerrors.CodeStateNotFound, "no state found")
	// ErrStoreDisabled 表示部署时没有配置存储，这是合法的运行模式。
	ErrStoreDisabled = xerrors.New(xerrors.CodeStoreUnavailable, "state store disabled",
		xerrors.WithMetadata("reason", "disabled"))
)

func unavailable(err error, message string) error {
	return xerrors.Wrap(xerrors.CodeStoreUnavailable, err, message)
}

func notFound(userID string) error {
	return xerrors.New(xerrors.CodeStateNotFound, "no state found",
		xerrors.WithMetadata("user_id", userID))
}
