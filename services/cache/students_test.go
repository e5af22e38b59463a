package cachesvc

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/fees"
	testutil "github.com/trezcool/bursar/tests"
)

type fakeRedis struct {
	data   map[string]string
	ttls   map[string]time.Duration
	getErr error
	setErr error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (r *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	if r.getErr != nil {
		return redis.NewStringResult("", r.getErr)
	}
	v, ok := r.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (r *fakeRedis) Set(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	if r.setErr != nil {
		return redis.NewStatusResult("", r.setErr)
	}
	r.data[key] = string(value.([]byte))
	r.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (r *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := r.data[k]; ok {
			delete(r.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

type countingDirectory struct {
	students map[string]fees.Student
	calls    int
}

func (d *countingDirectory) FindStudentByID(_ context.Context, id string) (fees.Student, error) {
	d.calls++
	std, ok := d.students[id]
	if !ok {
		return fees.Student{}, fees.ErrStudentNotFound
	}
	return std, nil
}

func newDirectory(rdb RedisClient) (*StudentDirectory, *countingDirectory, *testutil.Logger) {
	next := &countingDirectory{students: map[string]fees.Student{testutil.BennyBosha.ID: testutil.BennyBosha}}
	conf := new(core.Config)
	conf.Redis.StudentTTL = time.Hour
	logger := new(testutil.Logger)
	return NewStudentDirectory(next, rdb, conf, logger), next, logger
}

func TestStudentDirectory_FindStudentByID(t *testing.T) {
	ctx := context.Background()
	rdb := newFakeRedis()
	dir, next, logger := newDirectory(rdb)

	std, err := dir.FindStudentByID(ctx, testutil.BennyBosha.ID)
	require.NoError(t, err)
	assert.Equal(t, testutil.BennyBosha, std)
	assert.Equal(t, time.Hour, rdb.ttls[studentKey(testutil.BennyBosha.ID)])

	std, err = dir.FindStudentByID(ctx, testutil.BennyBosha.ID)
	require.NoError(t, err)
	assert.Equal(t, testutil.BennyBosha, std)
	assert.Equal(t, 1, next.calls, "second lookup is served from the cache")

	_, err = dir.FindStudentByID(ctx, "std-9999")
	assert.Equal(t, fees.ErrStudentNotFound, err)
	assert.NotContains(t, rdb.data, studentKey("std-9999"))

	require.NoError(t, dir.Forget(ctx, testutil.BennyBosha.ID))
	_, err = dir.FindStudentByID(ctx, testutil.BennyBosha.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, next.calls)
	assert.Empty(t, logger.Entries(""))
}

func TestStudentDirectory_cacheFailures(t *testing.T) {
	ctx := context.Background()
	down := errors.New("connection refused")

	tests := []struct {
		name      string
		rdb       *fakeRedis
		wantLevel string
	}{
		{name: "get fails", rdb: &fakeRedis{data: map[string]string{}, ttls: map[string]time.Duration{}, getErr: down}, wantLevel: "ERROR"},
		{name: "set fails", rdb: &fakeRedis{data: map[string]string{}, ttls: map[string]time.Duration{}, setErr: down}, wantLevel: "ERROR"},
		{
			name: "corrupted value",
			rdb: &fakeRedis{
				data: map[string]string{studentKey(testutil.BennyBosha.ID): "{lol"},
				ttls: map[string]time.Duration{},
			},
			wantLevel: "WARN",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir, next, logger := newDirectory(tt.rdb)
			std, err := dir.FindStudentByID(ctx, testutil.BennyBosha.ID)
			require.NoError(t, err)
			assert.Equal(t, testutil.BennyBosha, std)
			assert.Equal(t, 1, next.calls)
			assert.Len(t, logger.Entries(tt.wantLevel), 1)
		})
	}
}

func TestStudentDirectory_cachedValue(t *testing.T) {
	rdb := newFakeRedis()
	cached := testutil.AminaJuma
	data, _ := json.Marshal(cached)
	rdb.data[studentKey(cached.ID)] = string(data)

	dir, next, _ := newDirectory(rdb)
	std, err := dir.FindStudentByID(context.Background(), cached.ID)
	require.NoError(t, err)
	assert.Equal(t, cached, std)
	assert.Equal(t, 0, next.calls)
}
