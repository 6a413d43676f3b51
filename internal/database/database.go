package database

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	c "github.com/life-stream-dev/life-stream-go-stomp-broker/internal/config"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MongoSettings struct {
	Database         string
	OperationTimeout time.Duration
	CacheSize        int
	CacheTTL         time.Duration
}

func MongoSettingsFromConfig(config c.MongoConfig) MongoSettings {
	return MongoSettings{
		Database:         config.Database,
		OperationTimeout: c.Duration(config.OperationTimeout),
		CacheSize:        config.UserCacheSize,
		CacheTTL:         c.Duration(config.UserCacheTTL),
	}
}

// MongoClientOptions 根据配置构建连接选项，包括连接池、超时、TLS 与连接池监控
func MongoClientOptions(config c.MongoConfig, appName string) *options.ClientOptions {
	// 编码特殊字符
	credentials := ""
	if config.Username != "" {
		credentials = url.QueryEscape(config.Username) + ":" + url.QueryEscape(config.Password) + "@"
	}
	databaseUrl := fmt.Sprintf("mongodb://%s%s:%d/?authSource=admin", credentials, config.Host, config.Port)

	clientOptions := options.Client().ApplyURI(databaseUrl).SetAppName(appName)
	// 连接池配置
	clientOptions.SetMinPoolSize(config.MinPoolSize)
	clientOptions.SetMaxPoolSize(config.MaxPoolSize)
	clientOptions.SetMaxConnIdleTime(c.Duration(config.ConnectIdleTimeout))
	// 超时限制
	clientOptions.SetConnectTimeout(c.Duration(config.ConnectTimeout))
	clientOptions.SetSocketTimeout(c.Duration(config.SocketTimeout))
	// 心跳包
	if heartbeat := c.Duration(config.Heartbeat); heartbeat > 0 {
		clientOptions.SetHeartbeatInterval(heartbeat)
	}
	if config.UseTLS {
		clientOptions.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}
	clientOptions.SetPoolMonitor(&event.PoolMonitor{
		Event: func(evt *event.PoolEvent) {
			switch evt.Type {
			case event.ConnectionCreated:
				logger.Debug("Database connection created", "address", evt.Address, "id", evt.ConnectionID)
			case event.ConnectionClosed:
				logger.Debug("Database connection closed", "address", evt.Address, "id", evt.ConnectionID, "reason", evt.Reason)
			}
		},
	})
	return clientOptions
}

// ConnectMongo 建立连接、验证可用性并确保 username 唯一索引存在
func ConnectMongo(ctx context.Context, clientOptions *options.ClientOptions, settings MongoSettings) (*MongoStore, error) {
	logger.Debug("Connecting to database...")
	if settings.OperationTimeout <= 0 {
		settings.OperationTimeout = 5 * time.Second
	}
	if settings.CacheSize <= 0 {
		settings.CacheSize = 1024
	}

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("error occured while connecting to database: %w", err)
	}

	if err = client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("error occured while pinging database: %w", err)
	}

	users := client.Database(settings.Database).Collection(UserCollectionName)
	_, err = users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("users_username_unique"),
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("error occured while creating database indexes: %w", err)
	}

	logger.Info("Database connected", "database", settings.Database)
	return &MongoStore{
		client:           client,
		users:            users,
		operationTimeout: settings.OperationTimeout,
		cache:            expirable.NewLRU[string, *User](settings.CacheSize, nil, settings.CacheTTL),
	}, nil
}
