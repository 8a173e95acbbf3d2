package connector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisConfigDefaults(t *testing.T) {
	cfg := &RedisConfig{Addr: "127.0.0.1:6379"}
	require.NoError(t, cfg.validate())

	assert.Equal(t, "default", cfg.Name)
	assert.Equal(t, 10, cfg.PoolSize)
	assert.Equal(t, 5*time.Second, cfg.DialTimeout)
	assert.Equal(t, 3*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 3*time.Second, cfg.WriteTimeout)
}

func TestRedisConfigValidate(t *testing.T) {
	t.Run("地址为空", func(t *testing.T) {
		cfg := &RedisConfig{}
		assert.Error(t, cfg.validate())
	})

	t.Run("数据库编号非法", func(t *testing.T) {
		cfg := &RedisConfig{Addr: "127.0.0.1:6379", DB: -1}
		assert.Error(t, cfg.validate())
	})
}

func TestNewRedis(t *testing.T) {
	t.Run("nil 配置返回错误", func(t *testing.T) {
		_, err := NewRedis(nil)
		assert.Error(t, err)
	})

	t.Run("创建连接器不建立连接", func(t *testing.T) {
		conn, err := NewRedis(&RedisConfig{Addr: "127.0.0.1:1", Name: "test"})
		require.NoError(t, err)
		defer conn.Close()

		assert.Equal(t, "test", conn.Name())
		assert.False(t, conn.IsHealthy())
		assert.NotNil(t, conn.GetClient())
	})

	t.Run("连接不可达的地址失败", func(t *testing.T) {
		conn, err := NewRedis(&RedisConfig{
			Addr:        "127.0.0.1:1",
			DialTimeout: 100 * time.Millisecond,
		})
		require.NoError(t, err)
		defer conn.Close()

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		assert.Error(t, conn.Connect(ctx))
		assert.False(t, conn.IsHealthy())
	})
}
