package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/utils"
)

const DefaultPath = "config.json"

// ErrConfigCreated 配置文件不存在，已按默认值生成
var ErrConfigCreated = errors.New("the configuration file does not exist and has been created with default values")

type MongoConfig struct {
	Host               string `json:"host" env:"STOMP_MONGO_HOST"`
	Port               uint64 `json:"port" env:"STOMP_MONGO_PORT"`
	Username           string `json:"username" env:"STOMP_MONGO_USERNAME"`
	Password           string `json:"password" env:"STOMP_MONGO_PASSWORD"`
	Database           string `json:"database" env:"STOMP_MONGO_DATABASE"`
	UseTLS             bool   `json:"use_tls" env:"STOMP_MONGO_USE_TLS"`
	ConnectTimeout     string `json:"connect_timeout" env:"STOMP_MONGO_CONNECT_TIMEOUT"`
	SocketTimeout      string `json:"socket_timeout" env:"STOMP_MONGO_SOCKET_TIMEOUT"`
	ConnectIdleTimeout string `json:"connect_idle_timeout" env:"STOMP_MONGO_CONNECT_IDLE_TIMEOUT"`
	OperationTimeout   string `json:"operation_timeout" env:"STOMP_MONGO_OPERATION_TIMEOUT"`
	Heartbeat          string `json:"heartbeat" env:"STOMP_MONGO_HEARTBEAT"`
	MinPoolSize        uint64 `json:"min_pool_size" env:"STOMP_MONGO_MIN_POOL_SIZE"`
	MaxPoolSize        uint64 `json:"max_pool_size" env:"STOMP_MONGO_MAX_POOL_SIZE"`
	UserCacheSize      int    `json:"user_cache_size" env:"STOMP_MONGO_USER_CACHE_SIZE"`
	UserCacheTTL       string `json:"user_cache_ttl" env:"STOMP_MONGO_USER_CACHE_TTL"`
}

type StoreConfig struct {
	Driver     string      `json:"driver" env:"STOMP_STORE_DRIVER"`
	BcryptCost int         `json:"bcrypt_cost" env:"STOMP_STORE_BCRYPT_COST"`
	SQLitePath string      `json:"sqlite_path" env:"STOMP_STORE_SQLITE_PATH"`
	Mongo      MongoConfig `json:"mongo"`
}

type ServerConfig struct {
	ReactorWorkers  int    `json:"reactor_workers" env:"STOMP_REACTOR_WORKERS"`
	MaxConnections  int    `json:"max_connections" env:"STOMP_MAX_CONNECTIONS"`
	MaxFrameSize    int    `json:"max_frame_size" env:"STOMP_MAX_FRAME_SIZE"`
	OutboxSize      int    `json:"outbox_size" env:"STOMP_OUTBOX_SIZE"`
	MailboxSize     int    `json:"mailbox_size" env:"STOMP_MAILBOX_SIZE"`
	ReadTimeout     string `json:"read_timeout" env:"STOMP_READ_TIMEOUT"`
	WriteTimeout    string `json:"write_timeout" env:"STOMP_WRITE_TIMEOUT"`
	ShutdownTimeout string `json:"shutdown_timeout" env:"STOMP_SHUTDOWN_TIMEOUT"`
}

type Config struct {
	DebugMode bool         `json:"debug_mode" env:"STOMP_DEBUG_MODE"`
	AppName   string       `json:"app_name" env:"STOMP_APP_NAME"`
	LogDir    string       `json:"log_dir" env:"STOMP_LOG_DIR"`
	Server    ServerConfig `json:"server"`
	Store     StoreConfig  `json:"store"`
}

var (
	mu          sync.Mutex
	config      Config
	initialized = false
)

var storeDrivers = []string{"memory", "mongo", "sqlite"}

// Default 返回默认配置
func Default() Config {
	return Config{
		AppName: "stomp-broker",
		LogDir:  "logs",
		Server: ServerConfig{
			ReactorWorkers:  runtime.NumCPU(),
			MaxConnections:  10000,
			MaxFrameSize:    1 << 20,
			OutboxSize:      256,
			MailboxSize:     64,
			ReadTimeout:     "0",
			WriteTimeout:    "10s",
			ShutdownTimeout: "10s",
		},
		Store: StoreConfig{
			Driver:     "memory",
			BcryptCost: 10,
			SQLitePath: "data/users.db",
			Mongo: MongoConfig{
				Host:               "127.0.0.1",
				Port:               27017,
				Database:           "stomp",
				ConnectTimeout:     "10s",
				SocketTimeout:      "30s",
				ConnectIdleTimeout: "5m",
				OperationTimeout:   "5s",
				Heartbeat:          "10s",
				MinPoolSize:        1,
				MaxPoolSize:        20,
				UserCacheSize:      1024,
				UserCacheTTL:       "10m",
			},
		},
	}
}

// ReadConfig 读取配置文件并叠加环境变量。文件不存在时写入默认配置并返回 ErrConfigCreated，
// 此时返回的配置仍然可用
func ReadConfig(path string) (Config, error) {
	mu.Lock()
	defer mu.Unlock()

	cfg := Default()
	var created error

	bytes, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		data, _ := json.MarshalIndent(cfg, "", "\t")
		if err := os.WriteFile(path, data, 0644); err != nil {
			return cfg, fmt.Errorf("write default configuration: %w", err)
		}
		created = ErrConfigCreated
	case err != nil:
		return cfg, fmt.Errorf("read configuration: %w", err)
	default:
		if err := json.Unmarshal(bytes, &cfg); err != nil {
			return cfg, errors.New("the configuration file does not contain valid JSON")
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	config = cfg
	initialized = true
	return cfg, created
}

func GetConfig() (Config, error) {
	mu.Lock()
	if initialized {
		defer mu.Unlock()
		return config, nil
	}
	mu.Unlock()
	return ReadConfig(DefaultPath)
}

// Validate 检查配置值是否可用
func (c Config) Validate() error {
	if c.Server.ReactorWorkers <= 0 {
		return fmt.Errorf("server.reactor_workers must be positive, got %d", c.Server.ReactorWorkers)
	}
	if c.Server.MaxConnections <= 0 {
		return fmt.Errorf("server.max_connections must be positive, got %d", c.Server.MaxConnections)
	}
	if c.Server.MaxFrameSize <= 0 {
		return fmt.Errorf("server.max_frame_size must be positive, got %d", c.Server.MaxFrameSize)
	}
	if c.Server.OutboxSize <= 0 || c.Server.MailboxSize <= 0 {
		return errors.New("server.outbox_size and server.mailbox_size must be positive")
	}
	for name, value := range map[string]string{
		"server.read_timeout":              c.Server.ReadTimeout,
		"server.write_timeout":             c.Server.WriteTimeout,
		"server.shutdown_timeout":          c.Server.ShutdownTimeout,
		"store.mongo.connect_timeout":      c.Store.Mongo.ConnectTimeout,
		"store.mongo.socket_timeout":       c.Store.Mongo.SocketTimeout,
		"store.mongo.connect_idle_timeout": c.Store.Mongo.ConnectIdleTimeout,
		"store.mongo.heartbeat":            c.Store.Mongo.Heartbeat,
		"store.mongo.operation_timeout":    c.Store.Mongo.OperationTimeout,
		"store.mongo.user_cache_ttl":       c.Store.Mongo.UserCacheTTL,
	} {
		if _, err := utils.ParseStringTime(value); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if !slices.Contains(storeDrivers, c.Store.Driver) {
		return fmt.Errorf("store.driver must be one of %v, got %q", storeDrivers, c.Store.Driver)
	}
	if c.Store.Driver == "sqlite" && c.Store.SQLitePath == "" {
		return errors.New("store.sqlite_path is required for the sqlite driver")
	}
	return nil
}

// Duration 解析已校验过的时间字符串
func Duration(value string) time.Duration {
	d, _ := utils.ParseStringTime(value)
	return d
}
