package fuse

import (
	"context"
	"time"
)

// Record 存储中的电路状态快照
type Record struct {
	// State 当前电路状态
	State State
	// Failures 连续失败计数
	Failures int64
	// OpenedAt 最近一次进入打开状态的时刻，零值表示无意义
	OpenedAt time.Time
}

// Storage 电路状态的存储契约
//
// 存储是状态的唯一权威来源，熔断器从不跨调用缓存状态。
// 每个方法都接收 context，以便网络型存储（Redis）支持超时和取消；
// 内存存储忽略 context。存储不可达时返回可被
// errors.Is(err, ErrStorageUnavailable) 识别的错误。
//
// 实现必须并发安全。
type Storage interface {
	// Fetch 读取当前电路状态，键不存在时初始化为 {closed, 0}
	Fetch(ctx context.Context) (Record, error)

	// SetState 无条件写入电路状态
	// s 为 StateOpen 时记录 OpenedAt = now，其他状态清除 OpenedAt
	SetState(ctx context.Context, s State, now time.Time) error

	// CompareAndSetState 原子地将状态从 from 迁移到 to
	//
	// 多个调用方竞争同一迁移（如冷却结束后的试探选举）时，
	// 恰好一个赢得迁移，返回 true；其余返回 false。
	CompareAndSetState(ctx context.Context, from, to State, now time.Time) (bool, error)

	// IncrementFailures 将失败计数加一并返回新值
	IncrementFailures(ctx context.Context) (int64, error)

	// ResetFailures 将失败计数清零
	ResetFailures(ctx context.Context) error

	// Name 返回存储类型名称，用于日志和指标
	Name() string
}
