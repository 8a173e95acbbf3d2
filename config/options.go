package config

import (
	"strings"

	"github.com/ceyewan/fuse/clog"
)

// Options 加载器配置
type Options struct {
	Name      string      // 配置文件名称（不含扩展名），默认 "config"
	Paths     []string    // 配置文件搜索路径，默认 ["."]
	FileType  string      // 配置文件类型 (yaml, json, etc.)，默认 "yaml"
	EnvPrefix string      // 环境变量前缀，默认 "FUSE"
	Logger    clog.Logger // 加载过程的日志记录器
}

// Option 配置选项模式
type Option func(*Options)

// WithConfigName 设置配置文件名称（不带扩展名）
func WithConfigName(name string) Option {
	return func(o *Options) {
		o.Name = name
	}
}

// WithConfigPaths 设置配置文件搜索路径（覆盖默认值）
func WithConfigPaths(paths ...string) Option {
	return func(o *Options) {
		o.Paths = paths
	}
}

// WithConfigType 设置配置文件类型 (yaml, json, etc.)
func WithConfigType(typ string) Option {
	return func(o *Options) {
		o.FileType = typ
	}
}

// WithEnvPrefix 设置环境变量前缀
func WithEnvPrefix(prefix string) Option {
	return func(o *Options) {
		o.EnvPrefix = prefix
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger clog.Logger) Option {
	return func(o *Options) {
		o.Logger = logger.WithNamespace("config")
	}
}

// defaultOptions 返回带默认值的选项
func defaultOptions() *Options {
	return &Options{
		Name:      "config",
		Paths:     []string{"."},
		FileType:  "yaml",
		EnvPrefix: "FUSE",
	}
}

// normalize 填充缺失项并规范化
func (o *Options) normalize() {
	if o.Name == "" {
		o.Name = "config"
	}
	if len(o.Paths) == 0 {
		o.Paths = []string{"."}
	}
	if o.FileType == "" {
		o.FileType = "yaml"
	}
	if o.EnvPrefix == "" {
		o.EnvPrefix = "FUSE"
	}
	o.EnvPrefix = strings.ToUpper(o.EnvPrefix)
	if o.Logger == nil {
		o.Logger = clog.Discard()
	}
}
