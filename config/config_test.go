package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))
}

func TestLoad(t *testing.T) {
	t.Run("从 YAML 文件加载", func(t *testing.T) {
		dir := t.TempDir()
		writeConfigFile(t, dir, `
breaker:
  name: payment
  fail_max: 3
  reset_timeout: 30s
`)

		loader, err := New(WithConfigPaths(dir))
		require.NoError(t, err)
		require.NoError(t, loader.Load(context.Background()))

		assert.Equal(t, "payment", loader.Get("breaker.name"))

		var cfg struct {
			Name         string        `mapstructure:"name"`
			FailMax      uint32        `mapstructure:"fail_max"`
			ResetTimeout time.Duration `mapstructure:"reset_timeout"`
		}
		require.NoError(t, loader.UnmarshalKey("breaker", &cfg))
		assert.Equal(t, "payment", cfg.Name)
		assert.Equal(t, uint32(3), cfg.FailMax)
		assert.Equal(t, 30*time.Second, cfg.ResetTimeout)
	})

	t.Run("没有任何配置来源时返回错误", func(t *testing.T) {
		loader, err := New(WithConfigPaths(t.TempDir()), WithEnvPrefix("FUSE_TEST_EMPTY"))
		require.NoError(t, err)
		assert.ErrorIs(t, loader.Load(context.Background()), ErrEmptyConfig)
	})

	t.Run("环境变量覆盖文件配置", func(t *testing.T) {
		dir := t.TempDir()
		writeConfigFile(t, dir, "breaker:\n  name: from-file\n")

		t.Setenv("FUSETEST_BREAKER_NAME", "from-env")

		loader, err := New(WithConfigPaths(dir), WithEnvPrefix("FUSETEST"))
		require.NoError(t, err)
		require.NoError(t, loader.Load(context.Background()))

		assert.Equal(t, "from-env", loader.Get("breaker.name"))
	})
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "breaker:\n  fail_max: 5\n")

	loader, err := New(WithConfigPaths(dir))
	require.NoError(t, err)
	require.NoError(t, loader.Load(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := loader.Watch(ctx, "breaker.fail_max")
	require.NoError(t, err)

	writeConfigFile(t, dir, "breaker:\n  fail_max: 10\n")

	select {
	case event := <-ch:
		assert.Equal(t, "breaker.fail_max", event.Key)
		assert.EqualValues(t, 10, event.Value)
	case <-time.After(3 * time.Second):
		t.Skip("filesystem watch event not delivered")
	}
}
