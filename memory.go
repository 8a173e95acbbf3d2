package fuse

import (
	"context"
	"sync"
	"time"
)

// memoryStorage 进程内存储实现（非导出）
type memoryStorage struct {
	mu  sync.Mutex
	rec Record
}

// NewMemoryStorage 创建进程内的电路状态存储
//
// 状态仅对当前进程可见，适合单实例部署和测试。
func NewMemoryStorage() Storage {
	return &memoryStorage{
		rec: Record{State: StateClosed},
	}
}

func (s *memoryStorage) Fetch(ctx context.Context) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rec, nil
}

func (s *memoryStorage) SetState(ctx context.Context, state State, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apply(state, now)
	return nil
}

func (s *memoryStorage) CompareAndSetState(ctx context.Context, from, to State, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec.State != from {
		return false, nil
	}
	s.apply(to, now)
	return true, nil
}

func (s *memoryStorage) IncrementFailures(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec.Failures++
	return s.rec.Failures, nil
}

func (s *memoryStorage) ResetFailures(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec.Failures = 0
	return nil
}

func (s *memoryStorage) Name() string {
	return "memory"
}

// apply 写入状态并维护 OpenedAt，调用方必须持有锁
func (s *memoryStorage) apply(state State, now time.Time) {
	s.rec.State = state
	if state == StateOpen {
		s.rec.OpenedAt = now
	} else {
		s.rec.OpenedAt = time.Time{}
	}
}
