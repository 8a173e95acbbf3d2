package fuse

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBackend = errors.New("backend exploded")

// succeed 返回固定结果的被保护函数
func succeed(result any) func(ctx context.Context) (any, error) {
	return func(ctx context.Context) (any, error) {
		return result, nil
	}
}

// fail 返回固定错误的被保护函数
func fail(err error) func(ctx context.Context) (any, error) {
	return func(ctx context.Context) (any, error) {
		return nil, err
	}
}

func newTestBreaker(t *testing.T, cfg *Config, opts ...Option) Breaker {
	t.Helper()
	brk, err := New(cfg, opts...)
	require.NoError(t, err)
	return brk
}

// tripBreaker 连续失败直到电路打开
func tripBreaker(t *testing.T, brk Breaker, times int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < times; i++ {
		_, err := brk.Call(ctx, fail(errBackend))
		require.ErrorIs(t, err, errBackend)
	}
}

// ============================================================================
// 工厂函数
// ============================================================================

func TestNew(t *testing.T) {
	t.Run("nil 配置返回错误", func(t *testing.T) {
		_, err := New(nil)
		assert.ErrorIs(t, err, ErrConfigNil)
	})

	t.Run("默认配置", func(t *testing.T) {
		brk := newTestBreaker(t, &Config{})
		assert.Equal(t, "default", brk.Name())
		assert.Equal(t, uint32(5), brk.FailMax())
		assert.Equal(t, 60*time.Second, brk.ResetTimeout())
	})

	t.Run("非法降级状态返回错误", func(t *testing.T) {
		_, err := New(&Config{StorageFallback: State("maybe")})
		assert.ErrorIs(t, err, ErrInvalidState)

		// 降级策略只在 closed/open 之间选择，half_open 不是有效的准入策略
		_, err = New(&Config{StorageFallback: StateHalfOpen})
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("初始状态为闭合", func(t *testing.T) {
		brk := newTestBreaker(t, &Config{})
		state, err := brk.CurrentState(context.Background())
		require.NoError(t, err)
		assert.Equal(t, StateClosed, state)
	})
}

// ============================================================================
// 状态机：闭合 -> 打开
// ============================================================================

func TestTripOnConsecutiveFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("连续失败达到阈值后打开", func(t *testing.T) {
		brk := newTestBreaker(t, &Config{FailMax: 3})

		tripBreaker(t, brk, 2)
		state, err := brk.CurrentState(ctx)
		require.NoError(t, err)
		assert.Equal(t, StateClosed, state)

		// 第三次失败触发熔断
		_, err = brk.Call(ctx, fail(errBackend))
		require.ErrorIs(t, err, errBackend)

		state, err = brk.CurrentState(ctx)
		require.NoError(t, err)
		assert.Equal(t, StateOpen, state)
	})

	t.Run("成功清零连续失败计数", func(t *testing.T) {
		brk := newTestBreaker(t, &Config{FailMax: 3})

		tripBreaker(t, brk, 2)
		_, err := brk.Call(ctx, succeed("ok"))
		require.NoError(t, err)

		count, err := brk.FailCounter(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 0, count)

		// 计数清零后需要重新累计到阈值
		tripBreaker(t, brk, 2)
		state, err := brk.CurrentState(ctx)
		require.NoError(t, err)
		assert.Equal(t, StateClosed, state)
	})

	t.Run("失败错误原样透传", func(t *testing.T) {
		brk := newTestBreaker(t, &Config{FailMax: 1})

		_, err := brk.Call(ctx, fail(errBackend))
		assert.Equal(t, errBackend, err)

		// 触发熔断的那次调用返回的仍是原始错误，不是 ErrOpenState
		assert.NotErrorIs(t, err, ErrOpenState)
	})
}

// ============================================================================
// 状态机：打开状态快速失败
// ============================================================================

func TestOpenStateRejects(t *testing.T) {
	ctx := context.Background()

	t.Run("打开状态下拒绝调用且不执行函数", func(t *testing.T) {
		brk := newTestBreaker(t, &Config{FailMax: 1, ResetTimeout: time.Hour})
		tripBreaker(t, brk, 1)

		invoked := false
		_, err := brk.Call(ctx, func(ctx context.Context) (any, error) {
			invoked = true
			return nil, nil
		})

		assert.ErrorIs(t, err, ErrOpenState)
		assert.False(t, invoked)
	})

	t.Run("拒绝错误携带剩余冷却时长", func(t *testing.T) {
		brk := newTestBreaker(t, &Config{FailMax: 1, ResetTimeout: time.Hour})
		tripBreaker(t, brk, 1)

		_, err := brk.Call(ctx, succeed(nil))
		var openErr *OpenStateError
		require.ErrorAs(t, err, &openErr)
		assert.Equal(t, "default", openErr.Name)
		assert.Greater(t, openErr.Remaining, time.Duration(0))
		assert.LessOrEqual(t, openErr.Remaining, time.Hour)
	})
}

// ============================================================================
// 状态机：半开与恢复
// ============================================================================

func TestHalfOpenRecovery(t *testing.T) {
	ctx := context.Background()

	t.Run("冷却结束后试探成功闭合电路", func(t *testing.T) {
		brk := newTestBreaker(t, &Config{FailMax: 1, ResetTimeout: 20 * time.Millisecond})
		tripBreaker(t, brk, 1)

		time.Sleep(30 * time.Millisecond)

		result, err := brk.Call(ctx, succeed("recovered"))
		require.NoError(t, err)
		assert.Equal(t, "recovered", result)

		state, err := brk.CurrentState(ctx)
		require.NoError(t, err)
		assert.Equal(t, StateClosed, state)

		count, err := brk.FailCounter(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 0, count)
	})

	t.Run("试探失败立即重新打开", func(t *testing.T) {
		brk := newTestBreaker(t, &Config{FailMax: 3, ResetTimeout: 20 * time.Millisecond})
		tripBreaker(t, brk, 3)

		time.Sleep(30 * time.Millisecond)

		_, err := brk.Call(ctx, fail(errBackend))
		require.ErrorIs(t, err, errBackend)

		state, err := brk.CurrentState(ctx)
		require.NoError(t, err)
		assert.Equal(t, StateOpen, state)

		// 重新打开后冷却重新计时，调用被拒绝
		_, err = brk.Call(ctx, succeed(nil))
		assert.ErrorIs(t, err, ErrOpenState)
	})
}

// ============================================================================
// 手动控制
// ============================================================================

func TestManualOverrides(t *testing.T) {
	ctx := context.Background()

	t.Run("手动打开后快速失败", func(t *testing.T) {
		brk := newTestBreaker(t, &Config{ResetTimeout: time.Hour})
		require.NoError(t, brk.Open(ctx))

		_, err := brk.Call(ctx, succeed(nil))
		assert.ErrorIs(t, err, ErrOpenState)
	})

	t.Run("手动闭合清零计数并放行", func(t *testing.T) {
		brk := newTestBreaker(t, &Config{FailMax: 1, ResetTimeout: time.Hour})
		tripBreaker(t, brk, 1)

		require.NoError(t, brk.Close(ctx))

		count, err := brk.FailCounter(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 0, count)

		result, err := brk.Call(ctx, succeed("ok"))
		require.NoError(t, err)
		assert.Equal(t, "ok", result)
	})

	t.Run("手动半开放行试探", func(t *testing.T) {
		brk := newTestBreaker(t, &Config{FailMax: 1, ResetTimeout: time.Hour})
		tripBreaker(t, brk, 1)

		require.NoError(t, brk.HalfOpen(ctx))

		_, err := brk.Call(ctx, succeed(nil))
		require.NoError(t, err)

		state, err := brk.CurrentState(ctx)
		require.NoError(t, err)
		assert.Equal(t, StateClosed, state)
	})

	t.Run("重复设置相同状态是幂等的", func(t *testing.T) {
		brk := newTestBreaker(t, &Config{})
		require.NoError(t, brk.Open(ctx))
		require.NoError(t, brk.Open(ctx))
		require.NoError(t, brk.Close(ctx))
		require.NoError(t, brk.Close(ctx))
	})
}

// ============================================================================
// 运行时配置
// ============================================================================

func TestRuntimeConfiguration(t *testing.T) {
	ctx := context.Background()

	t.Run("降低阈值对后续调用生效", func(t *testing.T) {
		brk := newTestBreaker(t, &Config{FailMax: 10})
		brk.SetFailMax(2)
		assert.Equal(t, uint32(2), brk.FailMax())

		tripBreaker(t, brk, 2)
		state, err := brk.CurrentState(ctx)
		require.NoError(t, err)
		assert.Equal(t, StateOpen, state)
	})

	t.Run("调整冷却时长", func(t *testing.T) {
		brk := newTestBreaker(t, &Config{FailMax: 1, ResetTimeout: time.Hour})
		tripBreaker(t, brk, 1)

		brk.SetResetTimeout(10 * time.Millisecond)
		time.Sleep(20 * time.Millisecond)

		_, err := brk.Call(ctx, succeed(nil))
		assert.NoError(t, err)
	})

	t.Run("非法值被忽略", func(t *testing.T) {
		brk := newTestBreaker(t, &Config{FailMax: 5, ResetTimeout: time.Minute})
		brk.SetFailMax(0)
		brk.SetResetTimeout(0)
		assert.Equal(t, uint32(5), brk.FailMax())
		assert.Equal(t, time.Minute, brk.ResetTimeout())
	})
}

// ============================================================================
// 错误排除
// ============================================================================

type validationError struct {
	field string
}

func (e *validationError) Error() string {
	return fmt.Sprintf("invalid field %q", e.field)
}

func TestExclusions(t *testing.T) {
	ctx := context.Background()
	errNotFound := errors.New("not found")

	t.Run("被排除的错误不计入失败", func(t *testing.T) {
		brk := newTestBreaker(t, &Config{FailMax: 2},
			WithExclusion(ExcludeErrors(errNotFound)))

		for i := 0; i < 5; i++ {
			_, err := brk.Call(ctx, fail(errNotFound))
			assert.Equal(t, errNotFound, err)
		}

		state, err := brk.CurrentState(ctx)
		require.NoError(t, err)
		assert.Equal(t, StateClosed, state)

		count, err := brk.FailCounter(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 0, count)
	})

	t.Run("排除规则匹配包装后的错误链", func(t *testing.T) {
		brk := newTestBreaker(t, &Config{FailMax: 1},
			WithExclusion(ExcludeErrors(errNotFound)))

		wrapped := fmt.Errorf("lookup user: %w", errNotFound)
		_, err := brk.Call(ctx, fail(wrapped))
		assert.Equal(t, wrapped, err)

		state, _ := brk.CurrentState(ctx)
		assert.Equal(t, StateClosed, state)
	})

	t.Run("按类型排除", func(t *testing.T) {
		brk := newTestBreaker(t, &Config{FailMax: 1},
			WithExclusion(ExcludeOf[*validationError]()))

		_, err := brk.Call(ctx, fail(&validationError{field: "email"}))
		assert.Error(t, err)

		state, _ := brk.CurrentState(ctx)
		assert.Equal(t, StateClosed, state)
	})

	t.Run("被排除的错误不影响已有计数", func(t *testing.T) {
		brk := newTestBreaker(t, &Config{FailMax: 3},
			WithExclusion(ExcludeErrors(errNotFound)))

		tripBreaker(t, brk, 2)
		_, _ = brk.Call(ctx, fail(errNotFound))

		// 排除的错误既不增加也不清零计数
		count, err := brk.FailCounter(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 2, count)
	})

	t.Run("并发调用期间增删排除规则", func(t *testing.T) {
		matcher := ExcludeErrors(errNotFound)
		brk := newTestBreaker(t, &Config{FailMax: 100000},
			WithExclusion(matcher))

		done := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					_, _ = brk.Call(ctx, fail(errNotFound))
				}
			}
		}()

		for i := 0; i < 200; i++ {
			brk.RemoveExclusion(matcher)
			brk.AddExclusion(matcher)
		}
		close(done)
		wg.Wait()

		state, err := brk.CurrentState(ctx)
		require.NoError(t, err)
		assert.Equal(t, StateClosed, state)
	})

	t.Run("运行时增删排除规则", func(t *testing.T) {
		brk := newTestBreaker(t, &Config{FailMax: 1})
		matcher := ExcludeErrors(errNotFound)

		brk.AddExclusion(matcher)
		_, _ = brk.Call(ctx, fail(errNotFound))
		state, _ := brk.CurrentState(ctx)
		assert.Equal(t, StateClosed, state)

		brk.RemoveExclusion(matcher)
		_, _ = brk.Call(ctx, fail(errNotFound))
		state, _ = brk.CurrentState(ctx)
		assert.Equal(t, StateOpen, state)
	})
}

// ============================================================================
// 存储降级
// ============================================================================

// failingStorage 模拟完全不可达的存储
type failingStorage struct{}

func (failingStorage) Fetch(ctx context.Context) (Record, error) {
	return Record{}, wrapStorageErr(errors.New("connection refused"))
}

func (failingStorage) SetState(ctx context.Context, s State, now time.Time) error {
	return wrapStorageErr(errors.New("connection refused"))
}

func (failingStorage) CompareAndSetState(ctx context.Context, from, to State, now time.Time) (bool, error) {
	return false, wrapStorageErr(errors.New("connection refused"))
}

func (failingStorage) IncrementFailures(ctx context.Context) (int64, error) {
	return 0, wrapStorageErr(errors.New("connection refused"))
}

func (failingStorage) ResetFailures(ctx context.Context) error {
	return wrapStorageErr(errors.New("connection refused"))
}

func (failingStorage) Name() string { return "failing" }

func TestStorageFallback(t *testing.T) {
	ctx := context.Background()

	t.Run("默认降级为闭合，调用放行", func(t *testing.T) {
		brk := newTestBreaker(t, &Config{}, WithStorage(failingStorage{}))

		result, err := brk.Call(ctx, succeed("through"))
		require.NoError(t, err)
		assert.Equal(t, "through", result)
	})

	t.Run("降级放行时函数错误原样透传", func(t *testing.T) {
		brk := newTestBreaker(t, &Config{}, WithStorage(failingStorage{}))

		_, err := brk.Call(ctx, fail(errBackend))
		assert.Equal(t, errBackend, err)
	})

	t.Run("降级为打开时快速失败", func(t *testing.T) {
		brk := newTestBreaker(t, &Config{StorageFallback: StateOpen},
			WithStorage(failingStorage{}))

		invoked := false
		_, err := brk.Call(ctx, func(ctx context.Context) (any, error) {
			invoked = true
			return nil, nil
		})

		assert.ErrorIs(t, err, ErrOpenState)
		assert.False(t, invoked)
	})

	t.Run("状态查询返回存储错误", func(t *testing.T) {
		brk := newTestBreaker(t, &Config{}, WithStorage(failingStorage{}))

		_, err := brk.CurrentState(ctx)
		assert.ErrorIs(t, err, ErrStorageUnavailable)

		_, err = brk.FailCounter(ctx)
		assert.ErrorIs(t, err, ErrStorageUnavailable)
	})
}

// ============================================================================
// 调用入口边界
// ============================================================================

func TestCallEdgeCases(t *testing.T) {
	ctx := context.Background()

	t.Run("nil 函数返回错误", func(t *testing.T) {
		brk := newTestBreaker(t, &Config{})
		_, err := brk.Call(ctx, nil)
		assert.ErrorIs(t, err, ErrOperationNil)
	})

	t.Run("函数收到调用方的 context", func(t *testing.T) {
		brk := newTestBreaker(t, &Config{})
		type ctxKey struct{}
		ctx := context.WithValue(context.Background(), ctxKey{}, "v")

		_, err := brk.Call(ctx, func(inner context.Context) (any, error) {
			assert.Equal(t, "v", inner.Value(ctxKey{}))
			return nil, nil
		})
		require.NoError(t, err)
	})

	t.Run("并发调用安全", func(t *testing.T) {
		brk := newTestBreaker(t, &Config{FailMax: 1000})

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				for j := 0; j < 50; j++ {
					if n%2 == 0 {
						_, _ = brk.Call(ctx, succeed(nil))
					} else {
						_, _ = brk.Call(ctx, fail(errBackend))
					}
				}
			}(i)
		}
		wg.Wait()

		_, err := brk.CurrentState(ctx)
		assert.NoError(t, err)
	})
}

// ============================================================================
// 泛型辅助函数
// ============================================================================

func TestDo(t *testing.T) {
	ctx := context.Background()

	t.Run("返回具体类型", func(t *testing.T) {
		brk := newTestBreaker(t, &Config{})

		n, err := Do(ctx, brk, func(ctx context.Context) (int, error) {
			return 42, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 42, n)
	})

	t.Run("错误透传并返回零值", func(t *testing.T) {
		brk := newTestBreaker(t, &Config{})

		s, err := Do(ctx, brk, func(ctx context.Context) (string, error) {
			return "", errBackend
		})
		assert.Equal(t, errBackend, err)
		assert.Empty(t, s)
	})

	t.Run("熔断拒绝透传", func(t *testing.T) {
		brk := newTestBreaker(t, &Config{FailMax: 1, ResetTimeout: time.Hour})
		tripBreaker(t, brk, 1)

		_, err := Do(ctx, brk, func(ctx context.Context) (int, error) {
			return 1, nil
		})
		assert.ErrorIs(t, err, ErrOpenState)
	})

	t.Run("nil 函数返回错误", func(t *testing.T) {
		brk := newTestBreaker(t, &Config{})
		_, err := Do[int](ctx, brk, nil)
		assert.ErrorIs(t, err, ErrOperationNil)
	})
}
