package fuse

import (
	"fmt"
	"time"

	"github.com/ceyewan/fuse/xerrors"
)

// 错误定义
var (
	// ErrConfigNil 配置为空
	ErrConfigNil = xerrors.New("fuse: config is nil")

	// ErrOperationNil 被保护的函数为空
	ErrOperationNil = xerrors.New("fuse: operation is nil")

	// ErrOpenState 熔断器处于打开状态，调用被拒绝
	ErrOpenState = xerrors.New("fuse: circuit breaker is open")

	// ErrStorageUnavailable 状态存储不可达
	ErrStorageUnavailable = xerrors.New("fuse: storage unavailable")

	// ErrInvalidState 无法识别的电路状态
	ErrInvalidState = xerrors.New("fuse: invalid state")
)

// OpenStateError 电路打开时的拒绝错误，携带剩余冷却时长。
//
// 通过 errors.Is(err, fuse.ErrOpenState) 判断，
// 通过 errors.As 取出剩余冷却时长用于 Retry-After 等场景。
type OpenStateError struct {
	// Name 熔断器名称
	Name string
	// Remaining 距离下一次试探调用的剩余冷却时长
	Remaining time.Duration
}

func (e *OpenStateError) Error() string {
	return fmt.Sprintf("fuse: circuit breaker %q is open, retry after %s", e.Name, e.Remaining)
}

// Is 使 errors.Is(err, ErrOpenState) 成立
func (e *OpenStateError) Is(target error) bool {
	return target == ErrOpenState
}
