package fuse

import (
	"context"
	"sync"

	"github.com/ceyewan/fuse/connector"
	"github.com/ceyewan/fuse/xerrors"
)

// 错误定义
var (
	// ErrKeyEmpty 熔断键为空
	ErrKeyEmpty = xerrors.New("fuse: key is empty")
)

// StorageFactory 按熔断键创建存储实例
type StorageFactory func(name string) (Storage, error)

// MemoryStorageFactory 为每个键创建独立的内存存储
func MemoryStorageFactory() StorageFactory {
	return func(name string) (Storage, error) {
		return NewMemoryStorage(), nil
	}
}

// RedisStorageFactory 为每个键创建指向同一 Redis 的共享存储
// prefix 为空时使用默认前缀 "fuse:"
func RedisStorageFactory(conn connector.RedisConnector, prefix string) StorageFactory {
	return func(name string) (Storage, error) {
		return NewRedisStorage(conn, &RedisStorageConfig{Name: name, Prefix: prefix})
	}
}

// Group 按键管理一组熔断器
//
// 每个键（服务名、后端地址、方法名等）对应一条独立的电路，
// 按需惰性创建，共享同一份配置模板和选项。
//
// 使用示例:
//
//	group, _ := fuse.NewGroup(&fuse.Config{FailMax: 5},
//		fuse.WithGroupStorageFactory(fuse.RedisStorageFactory(conn, "")),
//		fuse.WithGroupOptions(fuse.WithLogger(logger)),
//	)
//	_, err := group.Call(ctx, "user-service", fn)
type Group struct {
	cfg      Config
	factory  StorageFactory
	opts     []Option
	breakers sync.Map // map[string]Breaker
}

// GroupOption Group 初始化选项函数
type GroupOption func(*groupOptions)

type groupOptions struct {
	factory StorageFactory
	opts    []Option
}

// WithGroupStorageFactory 设置存储工厂，默认每个键一个内存存储
func WithGroupStorageFactory(f StorageFactory) GroupOption {
	return func(o *groupOptions) {
		o.factory = f
	}
}

// WithGroupOptions 设置应用到每个熔断器的选项（Logger、Meter、Listener 等）
func WithGroupOptions(opts ...Option) GroupOption {
	return func(o *groupOptions) {
		o.opts = append(o.opts, opts...)
	}
}

// NewGroup 创建熔断器组
//
// cfg 作为所有键的配置模板，cfg.Name 被每个键覆盖。
func NewGroup(cfg *Config, opts ...GroupOption) (*Group, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}

	template := *cfg
	template.setDefaults()
	if err := template.validate(); err != nil {
		return nil, err
	}

	gopt := groupOptions{}
	for _, o := range opts {
		o(&gopt)
	}
	if gopt.factory == nil {
		gopt.factory = MemoryStorageFactory()
	}

	return &Group{
		cfg:     template,
		factory: gopt.factory,
		opts:    gopt.opts,
	}, nil
}

// Get 返回指定键的熔断器，不存在时创建
func (g *Group) Get(key string) (Breaker, error) {
	if key == "" {
		return nil, ErrKeyEmpty
	}

	if val, ok := g.breakers.Load(key); ok {
		return val.(Breaker), nil
	}

	storage, err := g.factory(key)
	if err != nil {
		return nil, xerrors.Wrapf(err, "fuse: create storage for key %q", key)
	}

	cfg := g.cfg
	cfg.Name = key
	brk, err := New(&cfg, append([]Option{WithStorage(storage)}, g.opts...)...)
	if err != nil {
		return nil, err
	}

	// 并发创建时保留先到者
	actual, _ := g.breakers.LoadOrStore(key, brk)
	return actual.(Breaker), nil
}

// Call 在指定键的电路上执行受保护的函数
func (g *Group) Call(ctx context.Context, key string, fn func(ctx context.Context) (any, error)) (any, error) {
	brk, err := g.Get(key)
	if err != nil {
		return nil, err
	}
	return brk.Call(ctx, fn)
}

// State 返回指定键的电路状态，键尚未创建时视为闭合
func (g *Group) State(ctx context.Context, key string) (State, error) {
	if key == "" {
		return "", ErrKeyEmpty
	}
	val, ok := g.breakers.Load(key)
	if !ok {
		return StateClosed, nil
	}
	return val.(Breaker).CurrentState(ctx)
}
