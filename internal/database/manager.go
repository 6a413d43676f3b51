package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	c "github.com/life-stream-dev/life-stream-go-stomp-broker/internal/config"
	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/logger"
	"golang.org/x/crypto/bcrypt"
)

type LoginOutcome byte

const (
	CreatedNewUser LoginOutcome = iota
	LoggedIn
	WrongPassword
	AlreadyLoggedIn
	ClientAlreadyConnected
	InvalidUsername
)

var loginOutcomeNames = map[LoginOutcome]string{
	CreatedNewUser:         "CreatedNewUser",
	LoggedIn:               "LoggedIn",
	WrongPassword:          "WrongPassword",
	AlreadyLoggedIn:        "AlreadyLoggedIn",
	ClientAlreadyConnected: "ClientAlreadyConnected",
	InvalidUsername:        "InvalidUsername",
}

func (o LoginOutcome) String() string {
	if name, ok := loginOutcomeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("LoginOutcome(%d)", o)
}

// Success 是否完成了登录
func (o LoginOutcome) Success() bool {
	return o == CreatedNewUser || o == LoggedIn
}

// SessionManager 记录连接与用户的绑定关系，并通过 UserStore 校验凭据。
// 一个用户同一时间只能绑定一个连接，一个连接也只能登录一次
type SessionManager struct {
	mu     sync.Mutex
	byConn map[int64]string
	byUser map[string]int64
	store  UserStore
	cost   int
}

func NewSessionManager(store UserStore, bcryptCost int) *SessionManager {
	if bcryptCost < bcrypt.MinCost || bcryptCost > bcrypt.MaxCost {
		bcryptCost = bcrypt.DefaultCost
	}
	return &SessionManager{
		byConn: make(map[int64]string),
		byUser: make(map[string]int64),
		store:  store,
		cost:   bcryptCost,
	}
}

func (m *SessionManager) Login(connID int64, username, password string) (LoginOutcome, error) {
	if m.isBound(connID) {
		return ClientAlreadyConnected, nil
	}
	if username == "" {
		return InvalidUsername, nil
	}

	ctx := context.Background()
	user, err := m.store.GetUser(ctx, username)
	switch {
	case errors.Is(err, ErrEmptyName):
		return InvalidUsername, nil
	case errors.Is(err, ErrUserNotFound):
		created, err := m.createUser(ctx, username, password)
		if errors.Is(err, ErrEmptyName) {
			return InvalidUsername, nil
		}
		if err != nil {
			return 0, err
		}
		if created {
			return m.bind(connID, username, CreatedNewUser), nil
		}
		// 并发创建时由另一个连接抢先写入，重新按已有用户处理
		if user, err = m.store.GetUser(ctx, username); err != nil {
			return 0, fmt.Errorf("lookup user %q: %w", username, err)
		}
	case err != nil:
		return 0, fmt.Errorf("lookup user %q: %w", username, err)
	}

	if m.isActive(username) {
		return AlreadyLoggedIn, nil
	}
	err = bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return WrongPassword, nil
	}
	if err != nil {
		return 0, fmt.Errorf("verify password of %q: %w", username, err)
	}
	return m.bind(connID, username, LoggedIn), nil
}

func (m *SessionManager) createUser(ctx context.Context, username, password string) (bool, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), m.cost)
	if err != nil {
		return false, fmt.Errorf("hash password: %w", err)
	}
	err = m.store.CreateUser(ctx, &User{Username: username, PasswordHash: hash, CreatedAt: time.Now()})
	if errors.Is(err, ErrUserExists) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("create user %q: %w", username, err)
	}
	return true, nil
}

func (m *SessionManager) bind(connID int64, username string, outcome LoginOutcome) LoginOutcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byConn[connID]; ok {
		return ClientAlreadyConnected
	}
	if _, ok := m.byUser[username]; ok {
		return AlreadyLoggedIn
	}
	m.byConn[connID] = username
	m.byUser[username] = connID
	logger.Debug("User bound to connection", "username", username, "conn", connID)
	return outcome
}

// Logout 解除连接的登录状态，未登录的连接直接忽略
func (m *SessionManager) Logout(connID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	username, ok := m.byConn[connID]
	if !ok {
		return
	}
	delete(m.byConn, connID)
	if m.byUser[username] == connID {
		delete(m.byUser, username)
	}
	logger.Debug("User logged out", "username", username, "conn", connID)
}

func (m *SessionManager) isBound(connID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byConn[connID]
	return ok
}

func (m *SessionManager) isActive(username string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.byUser[username]
	return ok
}

func (m *SessionManager) ActiveUsers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byUser)
}

// Open 按配置选择用户存储后端
func Open(ctx context.Context, config c.StoreConfig, appName string) (UserStore, error) {
	switch config.Driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return OpenSQLite(ctx, config.SQLitePath)
	case "mongo":
		return ConnectMongo(ctx, MongoClientOptions(config.Mongo, appName), MongoSettingsFromConfig(config.Mongo))
	default:
		return nil, fmt.Errorf("unknown store driver %q", config.Driver)
	}
}
