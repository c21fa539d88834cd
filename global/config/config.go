package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"PPClient/tools"
	"PPClient/tools/errs"

	"gopkg.in/yaml.v3"
)

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreSQLite = "sqlite"
)

// Config is the client process configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Auth     AuthConfig     `yaml:"auth"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Identity IdentityConfig `yaml:"identity"`
	Nats     NatsConfig     `yaml:"nats"`
	Status   StatusConfig   `yaml:"status"`
	Nacos    NacosConfig    `yaml:"nacos"`
	LogLevel string         `yaml:"log_level"`
}

type ServerConfig struct {
	URL    string `yaml:"url"`     // ws(s)://host/ws
	APIURL string `yaml:"api_url"` // http(s)://host/api
}

type AuthConfig struct {
	Token  string `yaml:"token"`
	UserID int64  `yaml:"user_id"` // 0: taken from the token subject
}

// RealtimeConfig carries the connection engine tunables.
type RealtimeConfig struct {
	MinConnectInterval time.Duration `yaml:"min_connect_interval"`
	SettleDelay        time.Duration `yaml:"settle_delay"`
	HeartbeatInterval  time.Duration `yaml:"heartbeat_interval"`
	HeartbeatTimeout   time.Duration `yaml:"heartbeat_timeout"`
	ReconnectBase      time.Duration `yaml:"reconnect_base"`
	ReconnectCap       time.Duration `yaml:"reconnect_cap"`
	ReconnectJitter    time.Duration `yaml:"reconnect_jitter"`
	MaxAttempts        int           `yaml:"max_attempts"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	DialTimeout        time.Duration `yaml:"dial_timeout"`

	// Close code and reason the server uses when a newer socket from the same
	// client replaces this one. Both must match.
	SupersededCode   int    `yaml:"superseded_code"`
	SupersededReason string `yaml:"superseded_reason"`

	TypingTTL      time.Duration `yaml:"typing_ttl"`
	TypingThrottle time.Duration `yaml:"typing_throttle"`
}

type IdentityConfig struct {
	Store  string       `yaml:"store"` // memory | redis | sqlite
	Key    string       `yaml:"key"`
	Redis  RedisConfig  `yaml:"redis"`
	SQLite SQLiteConfig `yaml:"sqlite"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type NatsConfig struct {
	Servers []string `yaml:"servers"` // empty: notifications stay local
	Subject string   `yaml:"subject"`
	Name    string   `yaml:"name"`
}

type StatusConfig struct {
	Addr  string `yaml:"addr"`  // empty: no status endpoint
	Token string `yaml:"token"` // required for POST /reconnect when set

	AllowRemote bool `yaml:"allow_remote"` // false: loopback clients only
}

type NacosConfig struct {
	Host      string `yaml:"host"` // empty: remote config disabled
	Port      uint64 `yaml:"port"`
	Namespace string `yaml:"namespace"`
	DataID    string `yaml:"data_id"`
	Group     string `yaml:"group"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			URL:    "ws://127.0.0.1:8080/ws",
			APIURL: "http://127.0.0.1:8080/api",
		},
		Realtime: DefaultRealtime(),
		Identity: IdentityConfig{
			Store:  StoreSQLite,
			Key:    "chat_client_id",
			SQLite: SQLiteConfig{Path: "ppclient.db"},
			Redis:  RedisConfig{Addr: "127.0.0.1:6379"},
		},
		Nats:     NatsConfig{Subject: "ppclient.notify", Name: "ppclient"},
		Nacos:    NacosConfig{Port: 8848, Group: "DEFAULT_GROUP"},
		LogLevel: "info",
	}
}

func DefaultRealtime() RealtimeConfig {
	return RealtimeConfig{
		MinConnectInterval: 5 * time.Second,
		SettleDelay:        300 * time.Millisecond,
		HeartbeatInterval:  25 * time.Second,
		HeartbeatTimeout:   10 * time.Second,
		ReconnectBase:      time.Second,
		ReconnectCap:       30 * time.Second,
		ReconnectJitter:    time.Second,
		MaxAttempts:        5,
		WriteTimeout:       5 * time.Second,
		DialTimeout:        10 * time.Second,
		SupersededCode:     4000,
		SupersededReason:   "superseded by newer connection",
		TypingTTL:          3 * time.Second,
		TypingThrottle:     2 * time.Second,
	}
}

// Load reads a YAML file over the defaults, applies env overrides and validates.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, errs.WrapMsg(err, "read config", "path", path)
		}
		if err := Parse(b, cfg); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML into cfg; fields absent from the document keep their value.
func Parse(b []byte, cfg *Config) error {
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return errs.ErrConfig.WrapMsg("yaml", "err", err)
	}
	return nil
}

func (c *Config) ApplyEnvOverrides() {
	c.Server.URL = tools.GetEnv("PPCLIENT_SERVER_URL", c.Server.URL)
	c.Server.APIURL = tools.GetEnv("PPCLIENT_API_URL", c.Server.APIURL)
	c.Auth.Token = tools.GetEnv("PPCLIENT_TOKEN", c.Auth.Token)
	c.Auth.UserID = tools.GetEnvInt64("PPCLIENT_USER_ID", c.Auth.UserID)
	c.LogLevel = tools.GetEnv("PPCLIENT_LOG_LEVEL", c.LogLevel)
	c.Status.AllowRemote = tools.GetEnvBool("PPCLIENT_STATUS_REMOTE", c.Status.AllowRemote)
	c.Realtime.MaxAttempts = tools.GetEnvInt("PPCLIENT_MAX_ATTEMPTS", c.Realtime.MaxAttempts)
	c.Realtime.MinConnectInterval = tools.GetEnvDuration("PPCLIENT_MIN_INTERVAL", c.Realtime.MinConnectInterval)
}

func (c *Config) Validate() error {
	var problems []string
	if !strings.HasPrefix(c.Server.URL, "ws://") && !strings.HasPrefix(c.Server.URL, "wss://") {
		problems = append(problems, fmt.Sprintf("server.url %q must be ws:// or wss://", c.Server.URL))
	}
	switch c.Identity.Store {
	case StoreMemory, StoreRedis, StoreSQLite:
	default:
		problems = append(problems, fmt.Sprintf("identity.store %q unknown", c.Identity.Store))
	}
	if c.Identity.Key == "" {
		problems = append(problems, "identity.key is empty")
	}
	if err := c.Realtime.Validate(); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		return errs.ErrConfig.WrapMsg(strings.Join(problems, "; "))
	}
	return nil
}

func (r RealtimeConfig) Validate() error {
	var problems []string
	if r.MinConnectInterval < 0 {
		problems = append(problems, "realtime.min_connect_interval < 0")
	}
	if r.HeartbeatInterval <= 0 || r.HeartbeatTimeout <= 0 {
		problems = append(problems, "realtime heartbeat interval and timeout must be > 0")
	}
	if r.ReconnectBase <= 0 || r.ReconnectCap < r.ReconnectBase {
		problems = append(problems, "realtime.reconnect_cap must be >= reconnect_base > 0")
	}
	if r.ReconnectJitter < 0 {
		problems = append(problems, "realtime.reconnect_jitter < 0")
	}
	if r.MaxAttempts < 0 {
		problems = append(problems, "realtime.max_attempts < 0")
	}
	if r.TypingTTL <= 0 {
		problems = append(problems, "realtime.typing_ttl must be > 0")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return nil
}
