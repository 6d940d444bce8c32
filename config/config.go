package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "PERSONA"

type AppConfig struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Engine   EngineConfig   `mapstructure:"engine" yaml:"engine"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`
	Redis    RedisConfig    `mapstructure:"redis" yaml:"redis"`
	Archive  ArchiveConfig  `mapstructure:"archive" yaml:"archive"`
	RocketMQ RocketMQConfig `mapstructure:"rocketmq" yaml:"rocketmq"`
	Consul   ConsulConfig   `mapstructure:"consul" yaml:"consul"`
	Auth     AuthConfig     `mapstructure:"auth" yaml:"auth"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
}

type ServerConfig struct {
	Name            string        `mapstructure:"name" yaml:"name"`
	Version         string        `mapstructure:"version" yaml:"version"`
	Environment     string        `mapstructure:"environment" yaml:"environment"`
	Port            int           `mapstructure:"port" yaml:"port"`
	GRPCPort        int           `mapstructure:"grpc_port" yaml:"grpc_port"`
	CORSOrigins     []string      `mapstructure:"cors_origins" yaml:"cors_origins"`
	TrustedProxies  []string      `mapstructure:"trusted_proxies" yaml:"trusted_proxies"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

type EngineConfig struct {
	Kind          string        `mapstructure:"kind" yaml:"kind"`
	BaseURL       string        `mapstructure:"base_url" yaml:"base_url"`
	APIKey        string        `mapstructure:"api_key" yaml:"api_key"`
	Model         string        `mapstructure:"model" yaml:"model"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
	ProbeTimeout  time.Duration `mapstructure:"probe_timeout" yaml:"probe_timeout"`
	StopMarker    string        `mapstructure:"stop_marker" yaml:"stop_marker"`
	HistoryWindow int           `mapstructure:"history_window" yaml:"history_window"`
	TopP          float64       `mapstructure:"top_p" yaml:"top_p"`
	TopK          int           `mapstructure:"top_k" yaml:"top_k"`
	RechunkSize   int           `mapstructure:"rechunk_size" yaml:"rechunk_size"`
}

type StoreConfig struct {
	Backend      string `mapstructure:"backend" yaml:"backend"`
	MaxExchanges int    `mapstructure:"max_exchanges" yaml:"max_exchanges"`
}

type RedisConfig struct {
	Address      string        `mapstructure:"address" yaml:"address"`
	Port         int           `mapstructure:"port" yaml:"port"`
	Password     string        `mapstructure:"password" yaml:"password"`
	Database     int           `mapstructure:"database" yaml:"database"`
	Prefix       string        `mapstructure:"prefix" yaml:"prefix"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	MaxRetries   int           `mapstructure:"max_retries" yaml:"max_retries"`
	PoolSize     int           `mapstructure:"pool_size" yaml:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns" yaml:"min_idle_conns"`
	RateLimitQPS int           `mapstructure:"rate_limit_qps" yaml:"rate_limit_qps"`
}

// Addr returns host:port for the redis client.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Address, c.Port)
}

// Enabled reports whether a redis server is configured at all.
func (c RedisConfig) Enabled() bool {
	return c.Address != ""
}

type ArchiveConfig struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	Driver   string        `mapstructure:"driver" yaml:"driver"`
	Address  string        `mapstructure:"address" yaml:"address"`
	Port     int           `mapstructure:"port" yaml:"port"`
	User     string        `mapstructure:"user" yaml:"user"`
	Password string        `mapstructure:"password" yaml:"password"`
	DBName   string        `mapstructure:"db_name" yaml:"db_name"`
	Path     string        `mapstructure:"path" yaml:"path"`
	MaxIdle  int           `mapstructure:"max_idle" yaml:"max_idle"`
	MaxOpen  int           `mapstructure:"max_open" yaml:"max_open"`
	MaxLife  time.Duration `mapstructure:"max_life" yaml:"max_life"`
}

type RocketMQConfig struct {
	NameServers   []string `mapstructure:"name_servers" yaml:"name_servers"`
	MaxRetries    int      `mapstructure:"max_retries" yaml:"max_retries"`
	GroupName     string   `mapstructure:"group_name" yaml:"group_name"`
	ConsumerGroup string   `mapstructure:"consumer_group" yaml:"consumer_group"`
	Topic         string   `mapstructure:"topic" yaml:"topic"`
}

type ConsulConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	Address    string `mapstructure:"address" yaml:"address"`
	Scheme     string `mapstructure:"scheme" yaml:"scheme"`
	Datacenter string `mapstructure:"datacenter" yaml:"datacenter"`
}

type AuthConfig struct {
	JwtSecret string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
}

type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

var (
	validEngines  = []string{"ollama", "openai", "completion"}
	validStores   = []string{"memory", "redis"}
	validDrivers  = []string{"postgres", "sqlite"}
	errBadSetting = errors.New("invalid configuration")
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.name", "persona-gateway")
	v.SetDefault("server.version", "1.0.0")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.grpc_port", 0)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.trusted_proxies", []string{"127.0.0.1/32"})
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("engine.kind", "ollama")
	v.SetDefault("engine.base_url", "http://localhost:11434")
	v.SetDefault("engine.model", "dolphin-mistral")
	v.SetDefault("engine.timeout", 120*time.Second)
	v.SetDefault("engine.probe_timeout", 10*time.Second)
	v.SetDefault("engine.stop_marker", "<|im_end|>")
	v.SetDefault("engine.history_window", 0)
	v.SetDefault("engine.top_p", 0.95)
	v.SetDefault("engine.top_k", 40)
	v.SetDefault("engine.rechunk_size", 10)

	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.max_exchanges", 50)

	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.prefix", "persona:")
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 3*time.Second)
	v.SetDefault("redis.write_timeout", 3*time.Second)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.rate_limit_qps", 10)

	v.SetDefault("archive.driver", "sqlite")
	v.SetDefault("archive.path", "persona-archive.db")
	v.SetDefault("archive.port", 5432)
	v.SetDefault("archive.max_idle", 10)
	v.SetDefault("archive.max_open", 50)
	v.SetDefault("archive.max_life", time.Hour)

	v.SetDefault("rocketmq.max_retries", 2)
	v.SetDefault("rocketmq.group_name", "persona-producer")
	v.SetDefault("rocketmq.consumer_group", "persona-archive")
	v.SetDefault("rocketmq.topic", "persist_topic")

	v.SetDefault("consul.address", "localhost:8500")
	v.SetDefault("consul.scheme", "http")
	v.SetDefault("consul.datacenter", "dc1")

	v.SetDefault("log.level", "info")

	// Keys without a useful default still need registering so AutomaticEnv
	// can bind them during Unmarshal.
	for _, key := range []string{
		"engine.api_key", "redis.address", "redis.password", "archive.address",
		"archive.user", "archive.password", "archive.db_name", "auth.jwt_secret",
		"log.file", "rocketmq.name_servers",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("archive.enabled", false)
	v.SetDefault("consul.enabled", false)
}

// LoadConfig reads the yaml file at path (missing file is fine), overlays
// PERSONA_* environment variables and validates the result. A .env file in
// the working directory is loaded into the environment first.
func LoadConfig(path string) (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				var notFound viper.ConfigFileNotFoundError
				if !errors.As(err, &notFound) {
					return nil, fmt.Errorf("read config %s: %w", path, err)
				}
			}
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Engine.HistoryWindow == 0 {
		cfg.Engine.HistoryWindow = defaultHistoryWindow(cfg.Engine.Kind)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the gateway cannot run with.
func (c *AppConfig) Validate() error {
	if !contains(validEngines, c.Engine.Kind) {
		return fmt.Errorf("%w: engine.kind %q (want one of %v)", errBadSetting, c.Engine.Kind, validEngines)
	}
	if !contains(validStores, c.Store.Backend) {
		return fmt.Errorf("%w: store.backend %q (want one of %v)", errBadSetting, c.Store.Backend, validStores)
	}
	if c.Store.Backend == "redis" && !c.Redis.Enabled() {
		return fmt.Errorf("%w: store.backend redis needs redis.address", errBadSetting)
	}
	if c.Archive.Enabled && !contains(validDrivers, c.Archive.Driver) {
		return fmt.Errorf("%w: archive.driver %q (want one of %v)", errBadSetting, c.Archive.Driver, validDrivers)
	}
	if c.Engine.HistoryWindow <= 0 {
		return fmt.Errorf("%w: engine.history_window must be positive", errBadSetting)
	}
	if c.Store.MaxExchanges <= 0 {
		return fmt.Errorf("%w: store.max_exchanges must be positive", errBadSetting)
	}
	if c.Engine.Timeout <= 0 {
		return fmt.Errorf("%w: engine.timeout must be positive", errBadSetting)
	}
	return nil
}

// defaultHistoryWindow is smaller for local completion servers, which
// usually run with a short context.
func defaultHistoryWindow(kind string) int {
	if kind == "completion" {
		return 10
	}
	return 20
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
