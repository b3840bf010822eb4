package slotlock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	release, err := l.Acquire(ctx, Key("2026-03-11", "13:00"))
	require.NoError(t, err)

	_, err = l.Acquire(ctx, Key("2026-03-11", "13:00"))
	assert.ErrorIs(t, err, ErrBusy)

	other, err := l.Acquire(ctx, Key("2026-03-11", "14:00"))
	require.NoError(t, err)
	other()

	release()
	release()
	again, err := l.Acquire(ctx, Key("2026-03-11", "13:00"))
	require.NoError(t, err)
	again()
}

func TestLocal_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewLocal().Acquire(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}

// fakeRedis implements the subset of commands the lock uses.
type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
	err  error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}}
}

func (f *fakeRedis) SetNX(_ context.Context, key string, value interface{}, _ time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewBoolResult(false, f.err)
	}
	if _, ok := f.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.data[key] = value.(string)
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Eval(_ context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.data[keys[0]] == args[0].(string) {
		delete(f.data, keys[0])
		return redis.NewCmdResult(int64(1), nil)
	}
	return redis.NewCmdResult(int64(0), nil)
}

// EvalSha runs the release logic directly; the fake only ever sees one script.
func (f *fakeRedis) EvalSha(ctx context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	return f.Eval(ctx, "", keys, args...)
}

func (f *fakeRedis) EvalRO(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	return f.Eval(ctx, script, keys, args...)
}

func (f *fakeRedis) EvalShaRO(ctx context.Context, sha string, keys []string, args ...interface{}) *redis.Cmd {
	return f.EvalSha(ctx, sha, keys, args...)
}

func (f *fakeRedis) ScriptExists(_ context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (f *fakeRedis) ScriptLoad(_ context.Context, _ string) *redis.StringCmd {
	return redis.NewStringResult("", nil)
}

func TestRedis(t *testing.T) {
	rdb := newFakeRedis()
	l := NewRedis(rdb, time.Minute, "test", nil)
	ctx := context.Background()

	release, err := l.Acquire(ctx, Key("2026-03-11", "13:00"))
	require.NoError(t, err)
	assert.Contains(t, rdb.data, "test:2026-03-11T13:00")

	_, err = l.Acquire(ctx, Key("2026-03-11", "13:00"))
	assert.ErrorIs(t, err, ErrBusy)

	release()
	assert.NotContains(t, rdb.data, "test:2026-03-11T13:00")
}

func TestRedis_ReleaseKeepsForeignLock(t *testing.T) {
	rdb := newFakeRedis()
	l := NewRedis(rdb, time.Minute, "test", nil)

	release, err := l.Acquire(context.Background(), "k")
	require.NoError(t, err)
	// Lock expired and was taken by another holder.
	rdb.data["test:k"] = "someone-else"
	release()
	assert.Equal(t, "someone-else", rdb.data["test:k"])
}

func TestRedis_Error(t *testing.T) {
	rdb := newFakeRedis()
	rdb.err = errors.New("connection refused")
	_, err := NewRedis(rdb, time.Minute, "", nil).Acquire(context.Background(), "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrBusy)
}
