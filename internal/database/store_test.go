package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/life-stream-dev/life-stream-go-stomp-broker/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func exerciseUserStore(t *testing.T, store UserStore) {
	t.Helper()
	ctx := context.Background()

	_, err := store.GetUser(ctx, "nobody")
	require.ErrorIs(t, err, ErrUserNotFound)

	created := &User{Username: "alice", PasswordHash: []byte("hash"), CreatedAt: time.Now()}
	require.NoError(t, store.CreateUser(ctx, created))
	require.ErrorIs(t, store.CreateUser(ctx, created), ErrUserExists)

	user, err := store.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, []byte("hash"), user.PasswordHash)

	assert.ErrorIs(t, store.CreateUser(ctx, &User{}), ErrEmptyName)
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	exerciseUserStore(t, store)
	assert.NoError(t, store.Close(context.Background()))
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "users.db")
	store, err := OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	exerciseUserStore(t, store)
	require.NoError(t, store.Close(context.Background()))

	reopened, err := OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	defer reopened.Close(context.Background())
	user, err := reopened.GetUser(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	_, err := OpenSQLite(context.Background(), " ")
	assert.Error(t, err)
}

func TestMongoStore(t *testing.T) {
	uri := os.Getenv("STOMP_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("STOMP_TEST_MONGO_URI not set")
	}
	ctx := context.Background()
	dbName := "stomp_test_" + time.Now().Format("20060102150405")
	store, err := ConnectMongo(ctx, options.Client().ApplyURI(uri), MongoSettings{
		Database: dbName,
		CacheTTL: time.Minute,
	})
	require.NoError(t, err)
	defer func() {
		_ = store.client.Database(dbName).Drop(ctx)
		_ = store.Close(ctx)
	}()
	exerciseUserStore(t, store)
}

func TestOpenSelectsDriver(t *testing.T) {
	store, err := Open(context.Background(), config.Default().Store, "test")
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)

	cfg := config.Default().Store
	cfg.Driver = "sqlite"
	cfg.SQLitePath = filepath.Join(t.TempDir(), "users.db")
	store, err = Open(context.Background(), cfg, "test")
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, store)
	require.NoError(t, NewStoreCloseCallback(store).Invoke(context.Background()))

	cfg.Driver = "redis"
	_, err = Open(context.Background(), cfg, "test")
	assert.Error(t, err)
}
