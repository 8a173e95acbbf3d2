package fuse

import (
	"context"

	"github.com/ceyewan/fuse/clog"
)

// Listener 熔断器事件监听器
//
// 所有回调同步执行，按注册顺序通知。回调中的 panic 会被捕获，
// 不会影响其他监听器或熔断器本身。嵌入 NoopListener 可以只实现关心的事件。
type Listener interface {
	// BeforeCall 在被保护函数即将执行前触发（调用被拒绝时不触发）
	BeforeCall(ctx context.Context, name string)

	// OnCallSuccess 在被保护函数成功返回后触发
	OnCallSuccess(ctx context.Context, name string)

	// OnCallFailure 在被保护函数返回系统性失败后触发（被排除的错误不触发）
	OnCallFailure(ctx context.Context, name string, err error)

	// OnStateChange 在电路状态发生迁移时触发
	OnStateChange(ctx context.Context, name string, from, to State)

	// OnCircuitOpened 在电路进入打开状态时触发（紧随 OnStateChange）
	OnCircuitOpened(ctx context.Context, name string)

	// OnCircuitClosed 在电路回到闭合状态时触发（紧随 OnStateChange）
	OnCircuitClosed(ctx context.Context, name string)
}

// NoopListener 空实现，嵌入后只需覆盖关心的事件
//
//	type alerter struct {
//	    fuse.NoopListener
//	}
//
//	func (a *alerter) OnCircuitOpened(ctx context.Context, name string) {
//	    pager.Notify(name)
//	}
type NoopListener struct{}

func (NoopListener) BeforeCall(ctx context.Context, name string)                    {}
func (NoopListener) OnCallSuccess(ctx context.Context, name string)                 {}
func (NoopListener) OnCallFailure(ctx context.Context, name string, err error)      {}
func (NoopListener) OnStateChange(ctx context.Context, name string, from, to State) {}
func (NoopListener) OnCircuitOpened(ctx context.Context, name string)               {}
func (NoopListener) OnCircuitClosed(ctx context.Context, name string)               {}

// logListener 将事件写入结构化日志的内置监听器
type logListener struct {
	logger clog.Logger
}

// NewLogListener 创建日志监听器，把熔断事件记录到给定的 Logger
func NewLogListener(logger clog.Logger) Listener {
	if logger == nil {
		logger = clog.Discard()
	}
	return &logListener{logger: logger}
}

func (l *logListener) BeforeCall(ctx context.Context, name string) {
	l.logger.DebugContext(ctx, "call admitted", clog.String("name", name))
}

func (l *logListener) OnCallSuccess(ctx context.Context, name string) {
	l.logger.DebugContext(ctx, "call succeeded", clog.String("name", name))
}

func (l *logListener) OnCallFailure(ctx context.Context, name string, err error) {
	l.logger.WarnContext(ctx, "call failed", clog.String("name", name), clog.Error(err))
}

func (l *logListener) OnStateChange(ctx context.Context, name string, from, to State) {
	l.logger.InfoContext(ctx, "circuit state changed",
		clog.String("name", name),
		clog.String("from", string(from)),
		clog.String("to", string(to)))
}

func (l *logListener) OnCircuitOpened(ctx context.Context, name string) {
	l.logger.WarnContext(ctx, "circuit opened", clog.String("name", name))
}

func (l *logListener) OnCircuitClosed(ctx context.Context, name string) {
	l.logger.InfoContext(ctx, "circuit closed", clog.String("name", name))
}

// AddListener 注册事件监听器，立即对后续事件生效
func (cb *circuitBreaker) AddListener(l Listener) {
	if l == nil {
		return
	}
	cb.mu.Lock()
	cb.listeners = append(cb.listeners, l)
	cb.mu.Unlock()
}

// RemoveListener 移除之前注册的监听器
//
// 写时复制：notify 持有的切片快照在无锁遍历，原切片不能原地改动。
func (cb *circuitBreaker) RemoveListener(l Listener) {
	if l == nil {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	for i, existing := range cb.listeners {
		if existing == l {
			next := make([]Listener, 0, len(cb.listeners)-1)
			next = append(next, cb.listeners[:i]...)
			next = append(next, cb.listeners[i+1:]...)
			cb.listeners = next
			return
		}
	}
}

// notify 按注册顺序同步通知所有监听器，单个监听器的 panic 被隔离
func (cb *circuitBreaker) notify(fn func(Listener)) {
	cb.mu.RLock()
	listeners := cb.listeners
	cb.mu.RUnlock()

	for _, l := range listeners {
		cb.safeNotify(l, fn)
	}
}

func (cb *circuitBreaker) safeNotify(l Listener, fn func(Listener)) {
	defer func() {
		if r := recover(); r != nil {
			cb.logger.Error("listener panicked", clog.Any("panic", r))
		}
	}()
	fn(l)
}
