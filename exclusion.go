package fuse

import (
	"reflect"

	"github.com/ceyewan/fuse/xerrors"
)

// Matcher 错误排除规则
//
// 返回 true 表示该错误是预期的业务结果（如参数校验失败、资源不存在），
// 不应计入熔断失败。命中的错误对熔断器完全不可见。
type Matcher func(err error) bool

// ExcludeErrors 按目标错误排除，基于 errors.Is 匹配整条错误链
//
//	brk.AddExclusion(fuse.ExcludeErrors(ErrNotFound, ErrInvalidInput))
func ExcludeErrors(targets ...error) Matcher {
	return func(err error) bool {
		for _, target := range targets {
			if xerrors.Is(err, target) {
				return true
			}
		}
		return false
	}
}

// ExcludeOf 按错误类型排除，基于 errors.As 匹配整条错误链
//
//	brk.AddExclusion(fuse.ExcludeOf[*ValidationError]())
func ExcludeOf[T error]() Matcher {
	return func(err error) bool {
		var target T
		return xerrors.As(err, &target)
	}
}

// AddExclusion 注册错误排除规则，立即对后续调用生效
func (cb *circuitBreaker) AddExclusion(m Matcher) {
	if m == nil {
		return
	}
	cb.mu.Lock()
	cb.matchers = append(cb.matchers, m)
	cb.mu.Unlock()
}

// RemoveExclusion 按函数标识移除之前注册的排除规则
//
// 写时复制：isExcluded 持有的切片快照在无锁遍历，原切片不能原地改动。
func (cb *circuitBreaker) RemoveExclusion(m Matcher) {
	if m == nil {
		return
	}
	ptr := reflect.ValueOf(m).Pointer()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	for i, existing := range cb.matchers {
		if reflect.ValueOf(existing).Pointer() == ptr {
			next := make([]Matcher, 0, len(cb.matchers)-1)
			next = append(next, cb.matchers[:i]...)
			next = append(next, cb.matchers[i+1:]...)
			cb.matchers = next
			return
		}
	}
}

// isExcluded 检查错误是否命中任一排除规则
func (cb *circuitBreaker) isExcluded(err error) bool {
	cb.mu.RLock()
	matchers := cb.matchers
	cb.mu.RUnlock()

	for _, m := range matchers {
		if m(err) {
			return true
		}
	}
	return false
}
