package session

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/encoding/json"
)

const defaultPrefix = "novelbot:upload"

// RedisTable keeps sessions in Redis; the key TTL is the inactivity timeout,
// so no sweeper is needed.
type RedisTable struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisTable(client *redis.Client, ttl time.Duration) *RedisTable {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisTable{client: client, prefix: defaultPrefix, ttl: ttl}
}

var _ Table = (*RedisTable)(nil)

func (t *RedisTable) key(adminID int64) string {
	return t.prefix + ":" + strconv.FormatInt(adminID, 10)
}

func (t *RedisTable) Get(ctx context.Context, adminID int64) (Session, bool, error) {
	data, err := t.client.Get(ctx, t.key(adminID)).Bytes()
	if err == redis.Nil {
		return Session{}, false, nil
	}
	if err != nil {
		return Session{}, false, errors.Wrap(err, "read upload session")
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return Session{}, false, errors.Wrap(err, "decode upload session")
	}
	return s, true, nil
}

func (t *RedisTable) Put(ctx context.Context, s Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return errors.WithStack(err)
	}
	return errors.Wrap(t.client.Set(ctx, t.key(s.AdminID), data, t.ttl).Err(), "write upload session")
}

func (t *RedisTable) Delete(ctx context.Context, adminID int64) error {
	if err := t.client.Del(ctx, t.key(adminID)).Err(); err != nil && err != redis.Nil {
		return errors.Wrap(err, "delete upload session")
	}
	return nil
}
