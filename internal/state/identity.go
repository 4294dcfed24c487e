package state

import (
	"strings"

	xerrors "Sailor-Bot/internal/errors"
)

// UserIdentity 记录用户选择的 provider 与模型。
type UserIdentity struct {
	UserID   string `json:"user_id"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// Validate 检查写入前的必填字段。
func (u UserIdentity) Validate() error {
	if strings.TrimSpace(u.UserID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "user id is required")
	}
	if strings.TrimSpace(u.Provider) == "" || strings.TrimSpace(u.Model) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "provider and model are required",
			xerrors.WithMetadata("user_id", u.UserID))
	}
	return nil
}
