// Package fuse 提供了带可插拔状态存储的熔断器组件。
//
// fuse 按连续失败次数触发熔断：连续失败达到 FailMax 次后电路打开，
// 冷却 ResetTimeout 后放行一次试探调用，试探成功则闭合电路。
// 状态保存在可插拔的 Storage 中：
// - 内存存储：单进程使用，零依赖
// - Redis 存储：多实例共享同一电路状态，故障在实例间同步传播
//
// ## 基本使用
//
//	brk, _ := fuse.New(&fuse.Config{
//		Name:         "payment",
//		FailMax:      5,
//		ResetTimeout: 60 * time.Second,
//	}, fuse.WithLogger(logger))
//
//	result, err := brk.Call(ctx, func(ctx context.Context) (any, error) {
//		return client.Charge(ctx, order)
//	})
//
// ## 共享 Redis 状态
//
//	conn, _ := connector.NewRedis(&connector.RedisConfig{Addr: "127.0.0.1:6379"})
//	_ = conn.Connect(ctx)
//	storage, _ := fuse.NewRedisStorage(conn, &fuse.RedisStorageConfig{Name: "payment"})
//	brk, _ := fuse.New(cfg, fuse.WithStorage(storage))
//
// ## 错误语义
//
// 被保护函数的错误原样透传，熔断器从不替换或包装它们。
// 电路打开时的拒绝返回 *OpenStateError，可用 errors.Is(err, fuse.ErrOpenState) 判断。
// 通过 AddExclusion 排除的错误（如业务校验失败）对熔断器完全不可见。
package fuse

import (
	"context"
	"time"

	"github.com/ceyewan/fuse/clog"
)

// ========================================
// 状态定义 (State Definitions)
// ========================================

// State 熔断器状态
type State string

const (
	// StateClosed 闭合状态（正常放行）
	StateClosed State = "closed"
	// StateOpen 打开状态（熔断中，快速失败）
	StateOpen State = "open"
	// StateHalfOpen 半开状态（放行试探调用）
	StateHalfOpen State = "half_open"
)

// Valid 报告状态是否为三个已知状态之一
func (s State) Valid() bool {
	switch s {
	case StateClosed, StateOpen, StateHalfOpen:
		return true
	}
	return false
}

func (s State) String() string {
	return string(s)
}

// ========================================
// 接口定义 (Interface Definitions)
// ========================================

// Breaker 熔断器核心接口
//
// 一个 Breaker 守护一条电路。多实例共享电路时，
// 为每个实例创建指向同一 Redis 键空间的 Breaker。
// 所有方法并发安全。
type Breaker interface {
	// Call 执行受熔断保护的函数
	//
	// 电路打开且冷却未结束时返回 *OpenStateError，函数不会被调用。
	// 函数返回的错误原样透传；被排除的错误不计入失败。
	Call(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error)

	// CurrentState 从存储读取当前电路状态
	CurrentState(ctx context.Context) (State, error)

	// FailCounter 从存储读取当前连续失败计数
	FailCounter(ctx context.Context) (int64, error)

	// FailMax 返回触发熔断的连续失败阈值
	FailMax() uint32
	// SetFailMax 运行时调整失败阈值，仅影响当前进程
	SetFailMax(max uint32)

	// ResetTimeout 返回打开状态的冷却时长
	ResetTimeout() time.Duration
	// SetResetTimeout 运行时调整冷却时长，仅影响当前进程
	SetResetTimeout(d time.Duration)

	// Open 手动打开电路，立即开始快速失败
	Open(ctx context.Context) error
	// Close 手动闭合电路并清零失败计数
	Close(ctx context.Context) error
	// HalfOpen 手动将电路置为半开状态
	HalfOpen(ctx context.Context) error

	// AddExclusion 注册错误排除规则，命中的错误不计入失败
	AddExclusion(m Matcher)
	// RemoveExclusion 移除之前注册的排除规则（按函数标识）
	RemoveExclusion(m Matcher)

	// AddListener 注册事件监听器
	AddListener(l Listener)
	// RemoveListener 移除之前注册的监听器
	RemoveListener(l Listener)

	// Name 返回熔断器名称
	Name() string
}

// ========================================
// 配置定义 (Configuration)
// ========================================

// Config 熔断器配置
type Config struct {
	// Name 熔断器名称，用于日志、指标和事件（默认："default"）
	Name string `json:"name" yaml:"name" mapstructure:"name"`

	// FailMax 触发熔断的连续失败次数（默认：5）
	FailMax uint32 `json:"fail_max" yaml:"fail_max" mapstructure:"fail_max"`

	// ResetTimeout 打开状态的冷却时长（默认：60s）
	// 冷却结束后放行一次试探调用
	ResetTimeout time.Duration `json:"reset_timeout" yaml:"reset_timeout" mapstructure:"reset_timeout"`

	// StorageFallback 存储不可用时假定的电路状态（默认：closed）
	// closed 表示存储故障时放行调用，open 表示快速失败
	StorageFallback State `json:"storage_fallback" yaml:"storage_fallback" mapstructure:"storage_fallback"`
}

// setDefaults 设置默认值
func (c *Config) setDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.FailMax == 0 {
		c.FailMax = 5
	}
	if c.ResetTimeout == 0 {
		c.ResetTimeout = 60 * time.Second
	}
	if c.StorageFallback == "" {
		c.StorageFallback = StateClosed
	}
}

// validate 验证配置有效性
func (c *Config) validate() error {
	// 降级策略只在宽容（closed）和严格（open）之间二选一
	if c.StorageFallback != StateClosed && c.StorageFallback != StateOpen {
		return ErrInvalidState
	}
	return nil
}

// ========================================
// 工厂函数 (Factory Functions)
// ========================================

// New 创建熔断器实例
//
// 未指定存储时使用进程内内存存储。
//
// 使用示例:
//
//	brk, _ := fuse.New(&fuse.Config{
//		Name:         "payment",
//		FailMax:      5,
//		ResetTimeout: 60 * time.Second,
//	}, fuse.WithLogger(logger), fuse.WithMeter(meter))
func New(cfg *Config, opts ...Option) (Breaker, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}

	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	opt := options{}
	for _, o := range opts {
		o(&opt)
	}
	opt.applyDefaults()

	logger := opt.logger.With(clog.String("name", cfg.Name))
	logger.Info("creating circuit breaker",
		clog.Int("fail_max", int(cfg.FailMax)),
		clog.Duration("reset_timeout", cfg.ResetTimeout),
		clog.String("storage", opt.storage.Name()),
		clog.String("storage_fallback", string(cfg.StorageFallback)))

	return newBreaker(cfg, logger, &opt)
}
