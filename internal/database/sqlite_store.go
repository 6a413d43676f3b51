package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/logger"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

const createUsersTable = `
CREATE TABLE IF NOT EXISTS users (
	username      TEXT PRIMARY KEY,
	password_hash BLOB NOT NULL,
	created_at    INTEGER NOT NULL
);`

// SQLiteStore 基于嵌入式 SQLite 文件的用户存储
type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}

	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.ExecContext(ctx, createUsersTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create users table: %w", err)
	}

	logger.Info("SQLite store opened", "path", cleanPath)
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) GetUser(ctx context.Context, username string) (*User, error) {
	if username == "" {
		return nil, ErrEmptyName
	}
	var (
		user      = User{Username: username}
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT password_hash, created_at FROM users WHERE username = ?`, username,
	).Scan(&user.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	user.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &user, nil
}

func (s *SQLiteStore) CreateUser(ctx context.Context, user *User) error {
	if user.Username == "" {
		return ErrEmptyName
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)`,
		user.Username, user.PasswordHash, user.CreatedAt.UTC().UnixMilli(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrUserExists
		}
		return fmt.Errorf("create user: %w", err)
	}
	logger.Info("User created", "username", user.Username)
	return nil
}

func (s *SQLiteStore) Close(context.Context) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
