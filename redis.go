package fuse

import (
	"context"
	"fmt"
	"time"

	"github.com/ceyewan/fuse/connector"
	"github.com/ceyewan/fuse/xerrors"

	"github.com/redis/go-redis/v9"
)

// RedisStorageConfig Redis 存储配置
type RedisStorageConfig struct {
	// Name 熔断器名称，作为键名的一部分（默认："default"）
	// 共享同一电路的实例必须使用相同的 Name
	Name string `json:"name" yaml:"name" mapstructure:"name"`

	// Prefix 键前缀（默认："fuse:"）
	Prefix string `json:"prefix" yaml:"prefix" mapstructure:"prefix"`
}

func (c *RedisStorageConfig) setDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.Prefix == "" {
		c.Prefix = "fuse:"
	}
}

// redisStorage 基于 Redis 的共享存储实现（非导出）
//
// 键布局：
//
//	{prefix}{name}:state     电路状态 (closed|open|half_open)
//	{prefix}{name}:failures  连续失败计数
//	{prefix}{name}:opened_at 打开时刻 (Unix 毫秒)
//
// 每个操作都是单次往返：读写状态走 Lua 脚本保证原子性，
// 失败计数走原生 INCR/SET。
type redisStorage struct {
	client    *redis.Client
	stateKey  string
	failKey   string
	openedKey string
}

// fetchScript 读取三个键，状态缺失时初始化为 closed
var fetchScript = redis.NewScript(`
local state = redis.call('GET', KEYS[1])
if not state then
    state = 'closed'
    redis.call('SET', KEYS[1], state)
    redis.call('SET', KEYS[2], 0)
end
local failures = tonumber(redis.call('GET', KEYS[2]) or '0')
local opened = tonumber(redis.call('GET', KEYS[3]) or '0')
return {state, failures, opened}
`)

// setStateScript 无条件写状态，进入 open 时记录时间戳
var setStateScript = redis.NewScript(`
redis.call('SET', KEYS[1], ARGV[1])
if ARGV[1] == 'open' then
    redis.call('SET', KEYS[3], ARGV[2])
else
    redis.call('DEL', KEYS[3])
end
return 1
`)

// casStateScript 原子地迁移状态，键缺失视为 closed
var casStateScript = redis.NewScript(`
local state = redis.call('GET', KEYS[1])
if not state then
    state = 'closed'
end
if state ~= ARGV[1] then
    return 0
end
redis.call('SET', KEYS[1], ARGV[2])
if ARGV[2] == 'open' then
    redis.call('SET', KEYS[3], ARGV[3])
else
    redis.call('DEL', KEYS[3])
end
return 1
`)

// NewRedisStorage 创建基于 Redis 的共享电路状态存储
//
// 多个实例指向相同的 {Prefix, Name} 时共享同一电路：
// 任一实例触发熔断，所有实例立即快速失败。
//
// 存储借用传入的连接器，不负责其生命周期。
func NewRedisStorage(conn connector.RedisConnector, cfg *RedisStorageConfig) (Storage, error) {
	if conn == nil {
		return nil, xerrors.New("fuse: redis connector is nil")
	}
	if cfg == nil {
		cfg = &RedisStorageConfig{}
	}
	cfg.setDefaults()

	base := cfg.Prefix + cfg.Name
	return &redisStorage{
		client:    conn.GetClient(),
		stateKey:  base + ":state",
		failKey:   base + ":failures",
		openedKey: base + ":opened_at",
	}, nil
}

func (s *redisStorage) Fetch(ctx context.Context) (Record, error) {
	res, err := fetchScript.Run(ctx, s.client, s.keys()).Result()
	if err != nil {
		return Record{}, wrapStorageErr(err)
	}

	values, ok := res.([]interface{})
	if !ok || len(values) != 3 {
		return Record{}, wrapStorageErr(fmt.Errorf("unexpected fetch reply: %v", res))
	}

	state, _ := values[0].(string)
	if !State(state).Valid() {
		return Record{}, xerrors.Wrapf(ErrInvalidState, "stored state %q", state)
	}

	rec := Record{State: State(state)}
	if failures, ok := values[1].(int64); ok {
		rec.Failures = failures
	}
	if opened, ok := values[2].(int64); ok && opened > 0 {
		rec.OpenedAt = time.UnixMilli(opened)
	}
	return rec, nil
}

func (s *redisStorage) SetState(ctx context.Context, state State, now time.Time) error {
	err := setStateScript.Run(ctx, s.client, s.keys(), string(state), now.UnixMilli()).Err()
	if err != nil {
		return wrapStorageErr(err)
	}
	return nil
}

func (s *redisStorage) CompareAndSetState(ctx context.Context, from, to State, now time.Time) (bool, error) {
	res, err := casStateScript.Run(ctx, s.client, s.keys(), string(from), string(to), now.UnixMilli()).Int64()
	if err != nil {
		return false, wrapStorageErr(err)
	}
	return res == 1, nil
}

func (s *redisStorage) IncrementFailures(ctx context.Context) (int64, error) {
	count, err := s.client.Incr(ctx, s.failKey).Result()
	if err != nil {
		return 0, wrapStorageErr(err)
	}
	return count, nil
}

func (s *redisStorage) ResetFailures(ctx context.Context) error {
	if err := s.client.Set(ctx, s.failKey, 0, 0).Err(); err != nil {
		return wrapStorageErr(err)
	}
	return nil
}

func (s *redisStorage) Name() string {
	return "redis"
}

func (s *redisStorage) keys() []string {
	return []string{s.stateKey, s.failKey, s.openedKey}
}

// wrapStorageErr 保留原始错误链，同时让 errors.Is(err, ErrStorageUnavailable) 成立
func wrapStorageErr(err error) error {
	return xerrors.Join(ErrStorageUnavailable, err)
}
