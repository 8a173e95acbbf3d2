package fuse

import (
	"context"
	"sync"
	"time"

	"github.com/ceyewan/fuse/clog"
	"github.com/ceyewan/fuse/metrics"
)

// circuitBreaker 熔断器实现（非导出）
type circuitBreaker struct {
	name    string
	storage Storage
	logger  clog.Logger

	// 运行时可变配置，仅影响当前进程
	mu              sync.RWMutex
	failMax         uint32
	resetTimeout    time.Duration
	storageFallback State
	matchers        []Matcher
	listeners       []Listener

	// 指标（meter 未启用时为 noop）
	calls        metrics.Counter
	successes    metrics.Counter
	failures     metrics.Counter
	rejects      metrics.Counter
	stateChanges metrics.Counter
	fallbacks    metrics.Counter
	duration     metrics.Histogram
}

// newBreaker 创建熔断器实例（内部函数）
// 注意：cfg 已在 New() 中设置默认值并通过验证
func newBreaker(cfg *Config, logger clog.Logger, opt *options) (Breaker, error) {
	cb := &circuitBreaker{
		name:            cfg.Name,
		storage:         opt.storage,
		logger:          logger,
		failMax:         cfg.FailMax,
		resetTimeout:    cfg.ResetTimeout,
		storageFallback: cfg.StorageFallback,
		matchers:        opt.matchers,
		listeners:       opt.listeners,
	}

	cb.calls, _ = opt.meter.Counter(MetricCallsTotal, "熔断器调用总数")
	cb.successes, _ = opt.meter.Counter(MetricSuccessTotal, "成功调用数")
	cb.failures, _ = opt.meter.Counter(MetricFailuresTotal, "失败调用数")
	cb.rejects, _ = opt.meter.Counter(MetricRejectsTotal, "被熔断拒绝的调用数")
	cb.stateChanges, _ = opt.meter.Counter(MetricStateChanges, "状态变更次数")
	cb.fallbacks, _ = opt.meter.Counter(MetricStorageFallbacks, "存储降级次数")
	cb.duration, _ = opt.meter.Histogram(MetricCallDuration, "调用耗时（秒）", metrics.WithUnit("s"))

	return cb, nil
}

// ========================================
// 调用入口 (Call Guard)
// ========================================

// Call 执行受熔断保护的函数
func (cb *circuitBreaker) Call(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	if fn == nil {
		return nil, ErrOperationNil
	}

	admitted, err := cb.admit(ctx)
	if err != nil {
		return nil, err
	}

	cb.notify(func(l Listener) { l.BeforeCall(ctx, cb.name) })
	cb.inc(ctx, cb.calls)

	start := time.Now()
	result, callErr := fn(ctx)
	if cb.duration != nil {
		cb.duration.Record(ctx, time.Since(start).Seconds(), metrics.L(LabelName, cb.name))
	}

	if callErr == nil {
		cb.recordSuccess(ctx, admitted)
		return result, nil
	}

	// 被排除的错误对熔断器完全不可见：不计数、不迁移状态、不触发事件
	if cb.isExcluded(callErr) {
		return result, callErr
	}

	cb.recordFailure(ctx, admitted, callErr)
	return result, callErr
}

// admit 执行准入判断，返回本次调用观察到的电路状态
//
// 打开状态且冷却未结束时返回 *OpenStateError。
// 冷却结束后通过 CAS 竞争 open->half_open 迁移；未赢得迁移的调用方
// 说明其他实例已完成迁移，同样按半开状态放行。
func (cb *circuitBreaker) admit(ctx context.Context) (State, error) {
	rec, err := cb.storage.Fetch(ctx)
	if err != nil {
		return cb.fallbackAdmit(ctx, err)
	}

	switch rec.State {
	case StateClosed:
		return StateClosed, nil

	case StateHalfOpen:
		return StateHalfOpen, nil

	case StateOpen:
		remaining := cb.ResetTimeout() - time.Since(rec.OpenedAt)
		if remaining > 0 {
			cb.inc(ctx, cb.rejects)
			return "", &OpenStateError{Name: cb.name, Remaining: remaining}
		}

		won, casErr := cb.storage.CompareAndSetState(ctx, StateOpen, StateHalfOpen, time.Now())
		if casErr != nil {
			return cb.fallbackAdmit(ctx, casErr)
		}
		if won {
			cb.transition(ctx, StateOpen, StateHalfOpen)
		}
		return StateHalfOpen, nil

	default:
		cb.logger.WarnContext(ctx, "unknown stored state, treating as closed",
			clog.String("state", string(rec.State)))
		return StateClosed, nil
	}
}

// fallbackAdmit 存储不可达时按配置的降级状态准入
// 降级从不掩盖被保护函数自身的结果
func (cb *circuitBreaker) fallbackAdmit(ctx context.Context, cause error) (State, error) {
	fallback := cb.fallbackState()
	cb.logger.WarnContext(ctx, "storage unavailable, assuming fallback state",
		clog.Error(cause), clog.String("state", string(fallback)))
	if cb.fallbacks != nil {
		cb.fallbacks.Inc(ctx, metrics.L(LabelName, cb.name), metrics.L(LabelStorage, cb.storage.Name()))
	}

	if fallback == StateOpen {
		cb.inc(ctx, cb.rejects)
		return "", &OpenStateError{Name: cb.name, Remaining: cb.ResetTimeout()}
	}
	return fallback, nil
}

// recordSuccess 记录成功调用
//
// 半开状态的试探成功闭合电路并清零计数；
// 闭合状态的成功清零连续失败计数。
func (cb *circuitBreaker) recordSuccess(ctx context.Context, admitted State) {
	cb.inc(ctx, cb.successes)
	cb.notify(func(l Listener) { l.OnCallSuccess(ctx, cb.name) })

	if admitted == StateHalfOpen {
		won, err := cb.storage.CompareAndSetState(ctx, StateHalfOpen, StateClosed, time.Now())
		if err != nil {
			cb.logger.WarnContext(ctx, "failed to close circuit after successful trial", clog.Error(err))
			return
		}
		if won {
			if err := cb.storage.ResetFailures(ctx); err != nil {
				cb.logger.WarnContext(ctx, "failed to reset failure counter", clog.Error(err))
			}
			cb.transition(ctx, StateHalfOpen, StateClosed)
		}
		return
	}

	if err := cb.storage.ResetFailures(ctx); err != nil {
		cb.logger.WarnContext(ctx, "failed to reset failure counter", clog.Error(err))
	}
}

// recordFailure 记录系统性失败
//
// 半开状态的任何失败立即重新打开电路；
// 闭合状态下连续失败达到阈值时打开电路。
// 记录过程中的存储故障只记日志，从不影响调用方拿到的错误。
func (cb *circuitBreaker) recordFailure(ctx context.Context, admitted State, callErr error) {
	cb.inc(ctx, cb.failures)
	cb.notify(func(l Listener) { l.OnCallFailure(ctx, cb.name, callErr) })

	if admitted == StateHalfOpen {
		won, err := cb.storage.CompareAndSetState(ctx, StateHalfOpen, StateOpen, time.Now())
		if err != nil {
			cb.logger.WarnContext(ctx, "failed to reopen circuit after failed trial", clog.Error(err))
			return
		}
		if won {
			cb.transition(ctx, StateHalfOpen, StateOpen)
		}
		return
	}

	count, err := cb.storage.IncrementFailures(ctx)
	if err != nil {
		cb.logger.WarnContext(ctx, "failed to record failure", clog.Error(err))
		return
	}

	if count >= int64(cb.FailMax()) {
		won, err := cb.storage.CompareAndSetState(ctx, StateClosed, StateOpen, time.Now())
		if err != nil {
			cb.logger.WarnContext(ctx, "failed to open circuit", clog.Error(err))
			return
		}
		if won {
			if err := cb.storage.ResetFailures(ctx); err != nil {
				cb.logger.WarnContext(ctx, "failed to reset failure counter", clog.Error(err))
			}
			cb.transition(ctx, StateClosed, StateOpen)
		}
	}
}

// ========================================
// 状态查询与手动控制 (Introspection & Overrides)
// ========================================

// CurrentState 从存储读取当前电路状态
func (cb *circuitBreaker) CurrentState(ctx context.Context) (State, error) {
	rec, err := cb.storage.Fetch(ctx)
	if err != nil {
		return "", err
	}
	return rec.State, nil
}

// FailCounter 从存储读取当前连续失败计数
func (cb *circuitBreaker) FailCounter(ctx context.Context) (int64, error) {
	rec, err := cb.storage.Fetch(ctx)
	if err != nil {
		return 0, err
	}
	return rec.Failures, nil
}

// Open 手动打开电路
func (cb *circuitBreaker) Open(ctx context.Context) error {
	return cb.override(ctx, StateOpen)
}

// Close 手动闭合电路并清零失败计数
func (cb *circuitBreaker) Close(ctx context.Context) error {
	if err := cb.override(ctx, StateClosed); err != nil {
		return err
	}
	return cb.storage.ResetFailures(ctx)
}

// HalfOpen 手动将电路置为半开状态
func (cb *circuitBreaker) HalfOpen(ctx context.Context) error {
	return cb.override(ctx, StateHalfOpen)
}

// override 无条件写入目标状态并触发事件
func (cb *circuitBreaker) override(ctx context.Context, to State) error {
	rec, err := cb.storage.Fetch(ctx)
	if err != nil {
		return err
	}
	if rec.State == to {
		return nil
	}
	if err := cb.storage.SetState(ctx, to, time.Now()); err != nil {
		return err
	}
	cb.transition(ctx, rec.State, to)
	return nil
}

// ========================================
// 运行时配置 (Runtime Configuration)
// ========================================

func (cb *circuitBreaker) FailMax() uint32 {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.failMax
}

func (cb *circuitBreaker) SetFailMax(max uint32) {
	if max == 0 {
		return
	}
	cb.mu.Lock()
	cb.failMax = max
	cb.mu.Unlock()
}

func (cb *circuitBreaker) ResetTimeout() time.Duration {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.resetTimeout
}

func (cb *circuitBreaker) SetResetTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	cb.mu.Lock()
	cb.resetTimeout = d
	cb.mu.Unlock()
}

func (cb *circuitBreaker) Name() string {
	return cb.name
}

func (cb *circuitBreaker) fallbackState() State {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.storageFallback
}

// ========================================
// 内部辅助 (Internal Helpers)
// ========================================

// transition 记录一次状态迁移：日志、指标和监听器事件
func (cb *circuitBreaker) transition(ctx context.Context, from, to State) {
	cb.logger.InfoContext(ctx, "circuit state changed",
		clog.String("from", string(from)),
		clog.String("to", string(to)))

	if cb.stateChanges != nil {
		cb.stateChanges.Inc(ctx,
			metrics.L(LabelName, cb.name),
			metrics.L(LabelFromState, string(from)),
			metrics.L(LabelToState, string(to)))
	}

	cb.notify(func(l Listener) { l.OnStateChange(ctx, cb.name, from, to) })
	switch to {
	case StateOpen:
		cb.notify(func(l Listener) { l.OnCircuitOpened(ctx, cb.name) })
	case StateClosed:
		cb.notify(func(l Listener) { l.OnCircuitClosed(ctx, cb.name) })
	}
}

func (cb *circuitBreaker) inc(ctx context.Context, c metrics.Counter) {
	if c != nil {
		c.Inc(ctx, metrics.L(LabelName, cb.name))
	}
}
