package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/logger"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// MongoStore 基于 MongoDB 的用户存储，查询结果经过过期 LRU 缓存
type MongoStore struct {
	client           *mongo.Client
	users            *mongo.Collection
	operationTimeout time.Duration
	cache            *expirable.LRU[string, *User]
}

func (ds *MongoStore) GetUser(ctx context.Context, username string) (*User, error) {
	if username == "" {
		return nil, ErrEmptyName
	}
	if user, ok := ds.cache.Get(username); ok {
		clone := *user
		return &clone, nil
	}

	ctx, cancel := context.WithTimeout(ctx, ds.operationTimeout)
	defer cancel()

	var user User
	startTime := time.Now()
	err := ds.users.FindOne(ctx, bson.D{{Key: "username", Value: username}}).Decode(&user)
	logger.DebugF("user query cost: %v", time.Since(startTime))

	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("database operation failed: %w", err)
	}
	ds.cache.Add(username, &user)
	clone := user
	return &clone, nil
}

func (ds *MongoStore) CreateUser(ctx context.Context, user *User) error {
	if user.Username == "" {
		return ErrEmptyName
	}

	ctx, cancel := context.WithTimeout(ctx, ds.operationTimeout)
	defer cancel()

	if _, err := ds.users.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrUserExists
		}
		return fmt.Errorf("database operation failed: %w", err)
	}

	clone := *user
	ds.cache.Add(user.Username, &clone)
	logger.Info("User created", "username", user.Username)
	return nil
}

func (ds *MongoStore) Close(ctx context.Context) error {
	logger.Info("Closing database connection")
	ds.cache.Purge()
	return ds.client.Disconnect(ctx)
}
