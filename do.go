package fuse

import "context"

// Do 带类型参数的调用辅助函数，免去调用方的类型断言
//
//	order, err := fuse.Do(ctx, brk, func(ctx context.Context) (*Order, error) {
//	    return client.GetOrder(ctx, id)
//	})
func Do[T any](ctx context.Context, b Breaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if fn == nil {
		return zero, ErrOperationNil
	}

	result, err := b.Call(ctx, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		if typed, ok := result.(T); ok {
			return typed, err
		}
		return zero, err
	}
	if typed, ok := result.(T); ok {
		return typed, nil
	}
	return zero, nil
}
