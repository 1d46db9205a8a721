package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
)

// runStoreContract exercises the behaviour every ports.Store must share.
func runStoreContract(t *testing.T, s ports.Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	require.ErrorIs(t, err, core.ErrNotFound)

	require.NoError(t, s.Set(ctx, "session", `{"a":1}`, 0))
	v, err := s.Get(ctx, "session")
	require.NoError(t, err)
	require.Equal(t, `{"a":1}`, v)

	// replace whole value
	require.NoError(t, s.Set(ctx, "session", `{"a":2}`, 0))
	v, err = s.Get(ctx, "session")
	require.NoError(t, err)
	require.Equal(t, `{"a":2}`, v)

	require.NoError(t, s.Delete(ctx, "session"))
	_, err = s.Get(ctx, "session")
	require.ErrorIs(t, err, core.ErrNotFound)

	// deleting a missing key is fine
	require.NoError(t, s.Delete(ctx, "session"))

	set, err := s.SetNX(ctx, "marker", "first", time.Minute)
	require.NoError(t, err)
	require.True(t, set)

	set, err = s.SetNX(ctx, "marker", "second", time.Minute)
	require.NoError(t, err)
	require.False(t, set)

	v, err = s.Get(ctx, "marker")
	require.NoError(t, err)
	require.Equal(t, "first", v)
}

// runSetNXRace checks that exactly one of many concurrent SetNX calls wins
func runSetNXRace(t *testing.T, s ports.Store) {
	t.Helper()

	const n = 16
	ctx := context.Background()

	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			set, err := s.SetNX(ctx, "revoked:race", "1", time.Minute)
			assert.NoError(t, err)
			if set {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, 1, wins.Load())
}

func TestMemoryStore(t *testing.T) {
	t.Parallel()
	runStoreContract(t, NewMemoryStore())
}

func TestMemoryStoreSetNXRace(t *testing.T) {
	t.Parallel()
	runSetNXRace(t, NewMemoryStore())
}

func TestMemoryStoreExpiry(t *testing.T) {
	t.Parallel()

	s := NewMemoryStore()
	now := time.Unix(100, 0)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "revoked:1", "1", time.Minute))
	_, err := s.Get(ctx, "revoked:1")
	require.NoError(t, err)

	set, err := s.SetNX(ctx, "revoked:1", "2", time.Minute)
	require.NoError(t, err)
	require.False(t, set)

	now = now.Add(time.Minute)
	_, err = s.Get(ctx, "revoked:1")
	require.ErrorIs(t, err, core.ErrNotFound)

	// an expired key can be taken again
	require.NoError(t, s.Set(ctx, "challenge:1", "1", time.Second))
	now = now.Add(2 * time.Second)
	set, err = s.SetNX(ctx, "challenge:1", "2", time.Second)
	require.NoError(t, err)
	require.True(t, set)

	s.Clear()
	_, err = s.Get(ctx, "revoked:1")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestSQLiteStore(t *testing.T) {
	t.Parallel()

	s, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "nested", "session.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	runStoreContract(t, s)
}

func TestSQLiteStoreSetNXRace(t *testing.T) {
	t.Parallel()

	s, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "session.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	runSetNXRace(t, s)
}

func TestSQLiteStoreSurvivesReopen(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "session.db")
	ctx := context.Background()

	s, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "app:session", "persisted", 0))
	require.NoError(t, s.Close())

	reopened, err := OpenSQLiteStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	v, err := reopened.Get(ctx, "app:session")
	require.NoError(t, err)
	require.Equal(t, "persisted", v)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(filePermissions), info.Mode().Perm())
}

func TestSQLiteStoreExpiry(t *testing.T) {
	t.Parallel()

	s, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "session.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	now := time.Unix(100, 0)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "challenge:x", "1", time.Second))
	_, err = s.Get(ctx, "challenge:x")
	require.NoError(t, err)

	set, err := s.SetNX(ctx, "challenge:y", "1", time.Second)
	require.NoError(t, err)
	require.True(t, set)

	now = now.Add(2 * time.Second)
	_, err = s.Get(ctx, "challenge:x")
	require.ErrorIs(t, err, core.ErrNotFound)

	// the expired row is taken over without a read first
	set, err = s.SetNX(ctx, "challenge:y", "2", time.Second)
	require.NoError(t, err)
	require.True(t, set)

	set, err = s.SetNX(ctx, "challenge:y", "3", time.Second)
	require.NoError(t, err)
	require.False(t, set)
}

// Run locally:
//   GO_TEST_INTEGRATION=1 go test ./adapters/store -run Redis -v -count=1
func TestRedisStore(t *testing.T) {
	if os.Getenv("GO_TEST_INTEGRATION") == "" {
		t.Skip("integration tests are disabled (set GO_TEST_INTEGRATION=1)")
	}

	ctx := context.Background()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(60 * time.Second),
	}
	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(ctx) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)

	client, err := NewRedisClient(ctx, fmt.Sprintf("redis://%s:%s/0", host, port.Port()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	s := NewRedisStore(client, "")
	runStoreContract(t, s)
	runSetNXRace(t, s)

	// keys are namespaced by the prefix
	require.NoError(t, s.Set(ctx, "k", "v", time.Minute))
	raw, err := client.Get(ctx, DefaultRedisPrefix+"k").Result()
	require.NoError(t, err)
	require.Equal(t, "v", raw)

	ttl, err := client.TTL(ctx, DefaultRedisPrefix+"k").Result()
	require.NoError(t, err)
	require.Greater(t, ttl, time.Duration(0))

	_, err = client.Get(ctx, "k").Result()
	require.ErrorIs(t, err, redis.Nil)
}
