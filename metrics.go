package fuse

// Metrics 指标常量定义
const (
	// MetricCallsTotal 放行的调用总数 (Counter)
	MetricCallsTotal = "fuse_calls_total"

	// MetricSuccessTotal 成功调用数 (Counter)
	MetricSuccessTotal = "fuse_success_total"

	// MetricFailuresTotal 计入熔断的失败调用数 (Counter)
	MetricFailuresTotal = "fuse_failures_total"

	// MetricRejectsTotal 被熔断拒绝的调用数 (Counter)
	MetricRejectsTotal = "fuse_rejects_total"

	// MetricStateChanges 状态变更次数 (Counter)
	MetricStateChanges = "fuse_state_changes_total"

	// MetricStorageFallbacks 存储不可用降级次数 (Counter)
	MetricStorageFallbacks = "fuse_storage_fallbacks_total"

	// MetricCallDuration 被保护函数耗时 (Histogram)
	MetricCallDuration = "fuse_call_duration_seconds"

	// LabelName 熔断器名称标签
	LabelName = "name"

	// LabelFromState 源状态标签
	LabelFromState = "from_state"

	// LabelToState 目标状态标签
	LabelToState = "to_state"

	// LabelStorage 存储类型标签
	LabelStorage = "storage"

	// LabelMethod gRPC 方法标签
	LabelMethod = "method"

	// LabelResult 结果标签 (success/failure)
	LabelResult = "result"
)
