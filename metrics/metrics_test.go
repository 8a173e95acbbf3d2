package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("nil 配置返回错误", func(t *testing.T) {
		_, err := New(nil)
		assert.Error(t, err)
	})

	t.Run("禁用时返回 noop Meter", func(t *testing.T) {
		meter, err := New(&Config{Enabled: false})
		require.NoError(t, err)

		ctx := context.Background()
		counter, err := meter.Counter("test_total", "test")
		require.NoError(t, err)
		assert.NotPanics(t, func() {
			counter.Inc(ctx, L("k", "v"))
		})
		assert.NoError(t, meter.Shutdown(ctx))
	})

	t.Run("启用时创建真实指标", func(t *testing.T) {
		meter, err := New(&Config{
			Enabled:     true,
			ServiceName: "test-service",
			Version:     "v0.0.1",
		})
		require.NoError(t, err)
		ctx := context.Background()
		defer meter.Shutdown(ctx)

		counter, err := meter.Counter("test_calls_total", "调用总数")
		require.NoError(t, err)
		counter.Inc(ctx, L("result", "success"))
		counter.Add(ctx, 3, L("result", "failure"))

		gauge, err := meter.Gauge("test_failures", "当前失败计数")
		require.NoError(t, err)
		gauge.Set(ctx, 2)
		gauge.Inc(ctx)
		gauge.Dec(ctx)

		histogram, err := meter.Histogram("test_duration_seconds", "耗时", WithUnit("s"))
		require.NoError(t, err)
		histogram.Record(ctx, 0.123, L("name", "payment"))
	})
}

func TestDiscard(t *testing.T) {
	meter := Discard()
	ctx := context.Background()

	counter, err := meter.Counter("x", "y")
	require.NoError(t, err)
	gauge, err := meter.Gauge("x", "y")
	require.NoError(t, err)
	histogram, err := meter.Histogram("x", "y")
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		counter.Inc(ctx)
		gauge.Set(ctx, 1)
		histogram.Record(ctx, 1)
	})
}

func TestLabelKey(t *testing.T) {
	assert.Equal(t, "", labelKey(nil))
	assert.Equal(t, "a=1|b=2", labelKey([]Label{L("a", "1"), L("b", "2")}))
}
