package fuse

import (
	"github.com/ceyewan/fuse/clog"
	"github.com/ceyewan/fuse/metrics"
)

// Option 组件初始化选项函数
type Option func(*options)

// options 组件初始化选项配置（内部使用）
type options struct {
	storage   Storage
	logger    clog.Logger
	meter     metrics.Meter
	listeners []Listener
	matchers  []Matcher
}

// WithStorage 设置电路状态存储，默认使用进程内内存存储
func WithStorage(s Storage) Option {
	return func(o *options) {
		o.storage = s
	}
}

// WithLogger 设置 Logger，传入 nil 时使用 clog.Discard()
// 内部会自动添加 namespace: "fuse"
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger == nil {
			o.logger = clog.Discard()
		} else {
			o.logger = logger.WithNamespace("fuse")
		}
	}
}

// WithMeter 设置指标收集器，默认不收集指标
func WithMeter(meter metrics.Meter) Option {
	return func(o *options) {
		o.meter = meter
	}
}

// WithListener 注册事件监听器，可多次使用
func WithListener(l Listener) Option {
	return func(o *options) {
		if l != nil {
			o.listeners = append(o.listeners, l)
		}
	}
}

// WithExclusion 注册错误排除规则，可多次使用
//
//	fuse.New(cfg, fuse.WithExclusion(fuse.ExcludeErrors(ErrNotFound)))
func WithExclusion(m Matcher) Option {
	return func(o *options) {
		if m != nil {
			o.matchers = append(o.matchers, m)
		}
	}
}

// applyDefaults 为未设置的选项填充默认值
func (o *options) applyDefaults() {
	if o.storage == nil {
		o.storage = NewMemoryStorage()
	}
	if o.logger == nil {
		o.logger = clog.Discard()
	}
	if o.meter == nil {
		o.meter = metrics.Discard()
	}
}
