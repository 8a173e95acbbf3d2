package clog

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newJSONLogger(t *testing.T, level string, opts ...Option) (Logger, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	opts = append(opts, WithWriter(buf))
	logger, err := New(&Config{Level: level, Format: "json"}, opts...)
	require.NoError(t, err)
	return logger, buf
}

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.NotEmpty(t, lines)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &entry))
	return entry
}

func TestNew(t *testing.T) {
	t.Run("nil 配置使用默认值", func(t *testing.T) {
		logger, err := New(nil)
		require.NoError(t, err)
		assert.NotNil(t, logger)
	})

	t.Run("非法级别返回错误", func(t *testing.T) {
		_, err := New(&Config{Level: "verbose"})
		assert.Error(t, err)
	})

	t.Run("非法格式返回错误", func(t *testing.T) {
		_, err := New(&Config{Format: "xml"})
		assert.Error(t, err)
	})
}

func TestStructuredFields(t *testing.T) {
	logger, buf := newJSONLogger(t, "info")

	logger.Info("circuit opened",
		String("name", "payment"),
		Int64("failures", 5),
		Bool("manual", false),
	)

	entry := lastEntry(t, buf)
	assert.Equal(t, "circuit opened", entry["msg"])
	assert.Equal(t, "payment", entry["name"])
	assert.Equal(t, float64(5), entry["failures"])
	assert.Equal(t, false, entry["manual"])
}

func TestLevelFiltering(t *testing.T) {
	logger, buf := newJSONLogger(t, "warn")

	logger.Debug("not visible")
	logger.Info("not visible")
	assert.Empty(t, buf.String())

	logger.Warn("visible")
	assert.Contains(t, buf.String(), "visible")
}

func TestSetLevel(t *testing.T) {
	logger, buf := newJSONLogger(t, "info")

	logger.Debug("before")
	assert.Empty(t, buf.String())

	require.NoError(t, logger.SetLevel(DebugLevel))
	logger.Debug("after")
	assert.Contains(t, buf.String(), "after")
}

func TestWith(t *testing.T) {
	logger, buf := newJSONLogger(t, "info")

	child := logger.With(String("storage", "redis"))
	child.Info("hello")

	entry := lastEntry(t, buf)
	assert.Equal(t, "redis", entry["storage"])

	// 父 Logger 不受影响
	buf.Reset()
	logger.Info("plain")
	entry = lastEntry(t, buf)
	_, ok := entry["storage"]
	assert.False(t, ok)
}

func TestWithNamespace(t *testing.T) {
	t.Run("多级命名空间以点号连接", func(t *testing.T) {
		logger, buf := newJSONLogger(t, "info", WithNamespace("fuse"))

		child := logger.WithNamespace("redis")
		child.Info("hello")

		entry := lastEntry(t, buf)
		assert.Equal(t, "fuse.redis", entry["namespace"])
	})

	t.Run("无命名空间时不输出字段", func(t *testing.T) {
		logger, buf := newJSONLogger(t, "info")
		logger.Info("hello")

		entry := lastEntry(t, buf)
		_, ok := entry["namespace"]
		assert.False(t, ok)
	})
}

func TestErrorField(t *testing.T) {
	logger, buf := newJSONLogger(t, "info")

	logger.Error("call failed", Error(assert.AnError))
	entry := lastEntry(t, buf)
	assert.Equal(t, assert.AnError.Error(), entry["err_msg"])
}

func TestParseLevel(t *testing.T) {
	cases := []struct {
		input string
		want  Level
	}{
		{"debug", DebugLevel},
		{"INFO", InfoLevel},
		{"Warn", WarnLevel},
		{"error", ErrorLevel},
	}
	for _, c := range cases {
		got, err := ParseLevel(c.input)
		require.NoError(t, err)
		assert.Equal(t, c.want, got)
	}

	_, err := ParseLevel("nope")
	assert.Error(t, err)
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	assert.NotPanics(t, func() {
		logger.Info("ignored", String("k", "v"))
		logger.With(String("k", "v")).Error("ignored")
		logger.WithNamespace("a", "b").Warn("ignored")
		_ = logger.SetLevel(DebugLevel)
	})
}
