package cachesvc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/fees"
)

// RedisClient is the subset of *redis.Client used for caching.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

func NewRedisClient(conf *core.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Addr,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
}

// StudentDirectory caches the students found by another directory.
// Cache failures are logged and fall through to the wrapped directory; unknown students are not cached.
type StudentDirectory struct {
	next   fees.StudentDirectory
	rdb    RedisClient
	ttl    time.Duration
	logger core.Logger
}

var _ fees.StudentDirectory = (*StudentDirectory)(nil) // interface compliance check

func NewStudentDirectory(next fees.StudentDirectory, rdb RedisClient, conf *core.Config, logger core.Logger) *StudentDirectory {
	return &StudentDirectory{
		next:   next,
		rdb:    rdb,
		ttl:    conf.Redis.StudentTTL,
		logger: logger,
	}
}

func studentKey(id string) string {
	return fmt.Sprintf("bursar:student:%s", id)
}

func (d *StudentDirectory) FindStudentByID(ctx context.Context, id string) (fees.Student, error) {
	key := studentKey(id)

	data, err := d.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var std fees.Student
		if err = json.Unmarshal(data, &std); err == nil {
			return std, nil
		}
		d.logger.Warn(fmt.Sprintf("invalid cached student %s", id), err)
	} else if err != redis.Nil {
		d.logger.Error("redis GET failed", errors.Wrap(err, "getting cached student"))
	}

	std, err := d.next.FindStudentByID(ctx, id)
	if err != nil {
		return fees.Student{}, err
	}

	if data, err = json.Marshal(std); err == nil {
		if err = d.rdb.Set(ctx, key, data, d.ttl).Err(); err != nil {
			d.logger.Error("redis SET failed", errors.Wrap(err, "caching student"))
		}
	}
	return std, nil
}

// Forget drops the cached copy of a student, eg: after the student changed class.
func (d *StudentDirectory) Forget(ctx context.Context, id string) error {
	return errors.Wrap(d.rdb.Del(ctx, studentKey(id)).Err(), "forgetting cached student")
}
