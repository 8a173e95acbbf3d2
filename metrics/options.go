package metrics

import "github.com/ceyewan/fuse/clog"

type options struct {
	logger clog.Logger
}

// Option 配置 Meter 的选项
type Option func(*options)

// WithLogger 设置日志记录器，用于记录指标服务器的生命周期事件
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		o.logger = logger.WithNamespace("metrics")
	}
}

func (o *options) applyDefaults() {
	if o.logger == nil {
		o.logger = clog.Discard()
	}
}
