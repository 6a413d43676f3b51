package database

import (
	"context"
	"sync"
)

type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]*User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]*User)}
}

func (ms *MemoryStore) GetUser(_ context.Context, username string) (*User, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	user, ok := ms.users[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	clone := *user
	return &clone, nil
}

func (ms *MemoryStore) CreateUser(_ context.Context, user *User) error {
	if user.Username == "" {
		return ErrEmptyName
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if _, ok := ms.users[user.Username]; ok {
		return ErrUserExists
	}
	clone := *user
	ms.users[user.Username] = &clone
	return nil
}

func (ms *MemoryStore) Close(context.Context) error {
	return nil
}
