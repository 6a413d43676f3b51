package database

import (
	"context"
	"errors"
	"time"
)

const UserCollectionName = "users"

var (
	ErrUserNotFound = errors.New("user does not exist")
	ErrUserExists   = errors.New("user already exists")
	ErrEmptyName    = errors.New("username is empty")
)

type User struct {
	Username     string    `bson:"username"`
	PasswordHash []byte    `bson:"password_hash"`
	CreatedAt    time.Time `bson:"created_at"`
}

// UserStore 用户凭据的持久化后端
type UserStore interface {
	GetUser(ctx context.Context, username string) (*User, error)
	CreateUser(ctx context.Context, user *User) error
	Close(ctx context.Context) error
}

type StoreCloseCallback struct {
	store UserStore
}

func NewStoreCloseCallback(store UserStore) *StoreCloseCallback {
	return &StoreCloseCallback{store: store}
}

func (sc *StoreCloseCallback) Invoke(ctx context.Context) error {
	return sc.store.Close(ctx)
}
