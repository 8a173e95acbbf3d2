package fuse

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorage(t *testing.T) {
	ctx := context.Background()

	t.Run("初始状态为闭合", func(t *testing.T) {
		s := NewMemoryStorage()
		rec, err := s.Fetch(ctx)
		require.NoError(t, err)
		assert.Equal(t, StateClosed, rec.State)
		assert.EqualValues(t, 0, rec.Failures)
		assert.True(t, rec.OpenedAt.IsZero())
		assert.Equal(t, "memory", s.Name())
	})

	t.Run("SetState 打开时记录时间戳", func(t *testing.T) {
		s := NewMemoryStorage()
		now := time.Now()

		require.NoError(t, s.SetState(ctx, StateOpen, now))
		rec, err := s.Fetch(ctx)
		require.NoError(t, err)
		assert.Equal(t, StateOpen, rec.State)
		assert.Equal(t, now, rec.OpenedAt)

		// 离开打开状态后时间戳被清除
		require.NoError(t, s.SetState(ctx, StateClosed, time.Now()))
		rec, err = s.Fetch(ctx)
		require.NoError(t, err)
		assert.True(t, rec.OpenedAt.IsZero())
	})

	t.Run("CAS 只在源状态匹配时迁移", func(t *testing.T) {
		s := NewMemoryStorage()

		won, err := s.CompareAndSetState(ctx, StateOpen, StateHalfOpen, time.Now())
		require.NoError(t, err)
		assert.False(t, won)

		won, err = s.CompareAndSetState(ctx, StateClosed, StateOpen, time.Now())
		require.NoError(t, err)
		assert.True(t, won)

		rec, _ := s.Fetch(ctx)
		assert.Equal(t, StateOpen, rec.State)
	})

	t.Run("并发 CAS 恰好一个赢得迁移", func(t *testing.T) {
		s := NewMemoryStorage()
		require.NoError(t, s.SetState(ctx, StateOpen, time.Now()))

		var wg sync.WaitGroup
		var winners sync.Map
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				won, err := s.CompareAndSetState(ctx, StateOpen, StateHalfOpen, time.Now())
				require.NoError(t, err)
				if won {
					winners.Store(n, true)
				}
			}(i)
		}
		wg.Wait()

		count := 0
		winners.Range(func(_, _ any) bool {
			count++
			return true
		})
		assert.Equal(t, 1, count)
	})

	t.Run("失败计数增减", func(t *testing.T) {
		s := NewMemoryStorage()

		n, err := s.IncrementFailures(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)

		n, err = s.IncrementFailures(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)

		require.NoError(t, s.ResetFailures(ctx))
		rec, _ := s.Fetch(ctx)
		assert.EqualValues(t, 0, rec.Failures)
	})
}
