package fuse

import (
	"context"

	"github.com/ceyewan/fuse/metrics"
	"google.golang.org/grpc"
)

// InterceptorOption 拦截器选项函数类型
type InterceptorOption func(*interceptorConfig)

// interceptorConfig 拦截器内部配置（非导出）
type interceptorConfig struct {
	keyFunc KeyFunc
	meter   metrics.Meter
}

// WithKeyFunc 设置熔断键生成函数，默认按服务级别
func WithKeyFunc(fn KeyFunc) InterceptorOption {
	return func(cfg *interceptorConfig) {
		cfg.keyFunc = fn
	}
}

// WithInterceptorMeter 设置方法级指标收集器
func WithInterceptorMeter(meter metrics.Meter) InterceptorOption {
	return func(cfg *interceptorConfig) {
		cfg.meter = meter
	}
}

func newInterceptorConfig(opts []InterceptorOption) *interceptorConfig {
	cfg := &interceptorConfig{
		keyFunc: ServiceLevelKey(),
		meter:   metrics.Discard(),
	}
	for _, o := range opts {
		o(cfg)
	}
	return cfg
}

// UnaryClientInterceptor 返回 gRPC 一元调用客户端拦截器
// 按熔断键为每个调用提供熔断保护
//
// 使用示例:
//
//	group, _ := fuse.NewGroup(cfg, fuse.WithGroupOptions(fuse.WithLogger(logger)))
//	conn, _ := grpc.NewClient(
//		"localhost:9001",
//		grpc.WithUnaryInterceptor(group.UnaryClientInterceptor()),
//	)
func (g *Group) UnaryClientInterceptor(opts ...InterceptorOption) grpc.UnaryClientInterceptor {
	cfg := newInterceptorConfig(opts)

	return func(ctx context.Context, method string, req, reply interface{}, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, callOpts ...grpc.CallOption) error {
		key := cfg.keyFunc(ctx, method, cc)

		_, err := g.Call(ctx, key, func(ctx context.Context) (any, error) {
			return nil, invoker(ctx, method, req, reply, cc, callOpts...)
		})

		recordMethodResult(ctx, cfg.meter, key, method, err)
		return err
	}
}

// StreamClientInterceptor 返回 gRPC 流式调用客户端拦截器
//
// 熔断保护覆盖流的建立；流建立后的收发错误不计入熔断。
func (g *Group) StreamClientInterceptor(opts ...InterceptorOption) grpc.StreamClientInterceptor {
	cfg := newInterceptorConfig(opts)

	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, callOpts ...grpc.CallOption) (grpc.ClientStream, error) {
		key := cfg.keyFunc(ctx, method, cc)

		result, err := g.Call(ctx, key, func(ctx context.Context) (any, error) {
			return streamer(ctx, desc, cc, method, callOpts...)
		})

		recordMethodResult(ctx, cfg.meter, key, method, err)
		if err != nil {
			return nil, err
		}
		return result.(grpc.ClientStream), nil
	}
}

// recordMethodResult 记录方法级别的调用结果指标
func recordMethodResult(ctx context.Context, meter metrics.Meter, key, method string, err error) {
	counter, cerr := meter.Counter(MetricCallsTotal, "熔断器调用总数")
	if cerr != nil || counter == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	counter.Inc(ctx,
		metrics.L(LabelName, key),
		metrics.L(LabelMethod, method),
		metrics.L(LabelResult, result))
}
