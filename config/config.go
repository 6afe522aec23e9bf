// Package config 提供 llmwire 的 provider 配置加载与热更新。
//
// 配置文件格式（yaml/json/toml 均可，由 viper 识别）：
//
//	default: deepseek
//	providers:
//	  deepseek:
//	    dialect: openai
//	    api_key: sk-...
//	    base_url: https://api.deepseek.com
//	    model: deepseek-chat
//	  claude:
//	    dialect: anthropic
//	    api_key: sk-ant-...
//	    model: claude-sonnet-4-20250514
//
// 环境变量使用 LLMWIRE_ 前缀，如 LLMWIRE_DEFAULT。
package config

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀
const EnvPrefix = "LLMWIRE"

// Dialect 取值与 stream.Dialect 对应；保持字符串避免 import 环
const (
	DialectOpenAI    = "openai"
	DialectAnthropic = "anthropic"
)

// ProviderSettings 单个 provider 的接入配置
type ProviderSettings struct {
	// Dialect 决定使用哪种 wire 协议（openai / anthropic）
	Dialect string `mapstructure:"dialect"`

	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`

	// Headers 附加到每个请求的自定义 HTTP 头
	Headers map[string]string `mapstructure:"headers"`

	// TimeoutSeconds 请求超时（秒），0 表示使用客户端默认值
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// Settings 顶层配置
type Settings struct {
	// Default 默认 provider 名称，必须出现在 Providers 中
	Default string `mapstructure:"default"`

	Providers map[string]ProviderSettings `mapstructure:"providers"`
}

// Validate 校验配置的完整性与 dialect 合法性。
func (s Settings) Validate() error {
	if len(s.Providers) == 0 {
		return fmt.Errorf("config: no providers configured")
	}
	if s.Default != "" {
		if _, ok := s.Providers[s.Default]; !ok {
			return fmt.Errorf("config: default provider %q not found in providers", s.Default)
		}
	}
	for name, p := range s.Providers {
		switch p.Dialect {
		case DialectOpenAI, DialectAnthropic:
		case "":
			return fmt.Errorf("config: provider %q: dialect is required", name)
		default:
			return fmt.Errorf("config: provider %q: unknown dialect %q", name, p.Dialect)
		}
		if p.APIKey == "" {
			return fmt.Errorf("config: provider %q: api_key is required", name)
		}
	}
	return nil
}

// Provider 返回命名 provider 的配置；name 为空时返回默认 provider。
func (s Settings) Provider(name string) (ProviderSettings, error) {
	if name == "" {
		name = s.Default
	}
	if name == "" {
		return ProviderSettings{}, fmt.Errorf("config: no provider named and no default set")
	}
	p, ok := s.Providers[name]
	if !ok {
		return ProviderSettings{}, fmt.Errorf("config: provider %q not found", name)
	}
	return p, nil
}

// Manager 加载配置文件并监控变更。
type Manager struct {
	v        *viper.Viper
	mu       sync.RWMutex
	value    Settings
	watchers []func(old, new Settings)
}

type Option func(*Manager)

// WithDefaults 设置默认值
func WithDefaults(defaults map[string]any) Option {
	return func(m *Manager) {
		for k, v := range defaults {
			m.v.SetDefault(k, v)
		}
	}
}

// Load 读取并校验配置，然后开始监控文件变更。
func Load(path string, opts ...Option) (*Manager, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	m := &Manager{v: v}
	for _, opt := range opts {
		opt(m)
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	s, err := unmarshal(v)
	if err != nil {
		return nil, err
	}
	m.value = s

	m.watch()
	return m, nil
}

func unmarshal(v *viper.Viper) (Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, err
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Get 获取当前配置（并发安全，返回深拷贝）
func (m *Manager) Get() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return deepCopy(m.value)
}

// OnChange 注册配置变更回调
func (m *Manager) OnChange(callback func(old, new Settings)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watchers = append(m.watchers, callback)
}

func deepCopy(src Settings) Settings {
	dst := src
	if src.Providers != nil {
		dst.Providers = make(map[string]ProviderSettings, len(src.Providers))
		for name, p := range src.Providers {
			cp := p
			if p.Headers != nil {
				cp.Headers = make(map[string]string, len(p.Headers))
				for k, v := range p.Headers {
					cp.Headers[k] = v
				}
			}
			dst.Providers[name] = cp
		}
	}
	return dst
}

func (m *Manager) watch() {
	var (
		debounceTimer *time.Timer
		debounceMu    sync.Mutex
	)

	// 编辑器保存往往触发多个 fsnotify 事件，去抖后只处理一次
	m.v.OnConfigChange(func(_ fsnotify.Event) {
		debounceMu.Lock()
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
		debounceTimer = time.AfterFunc(100*time.Millisecond, func() {
			m.handleConfigChange()
		})
		debounceMu.Unlock()
	})

	m.v.WatchConfig()
}

func (m *Manager) handleConfigChange() {
	old := m.Get()

	next, watchers, ok := m.reload()
	if !ok {
		// 无效的新配置不生效，保留旧值
		return
	}
	if reflect.DeepEqual(old, next) {
		return
	}

	for _, cb := range watchers {
		func() {
			defer func() { _ = recover() }()
			cb(old, next)
		}()
	}
}

func (m *Manager) reload() (Settings, []func(old, new Settings), bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.v.ReadInConfig(); err != nil {
		return Settings{}, nil, false
	}
	s, err := unmarshal(m.v)
	if err != nil {
		return Settings{}, nil, false
	}
	m.value = s

	watchers := make([]func(old, new Settings), len(m.watchers))
	copy(watchers, m.watchers)
	return deepCopy(s), watchers, true
}
