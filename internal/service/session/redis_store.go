package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"log/slog"

	redis "github.com/redis/go-redis/v9"

	"github.com/splax/localpost/internal/domain"
)

const redisKeyPrefix = "localpost:session:"

type redisStore struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisStore constructs a Redis-backed session store so sessions survive
// server restarts and can be shared between replicas.
func NewRedisStore(addr, password string, db int, logger *slog.Logger) (Store, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return &redisStore{client: client, logger: logger}, nil
}

func (st *redisStore) Put(ctx context.Context, sess domain.Session) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	return st.client.Set(ctx, redisKeyPrefix+sess.ID, payload, ttl).Err()
}

func (st *redisStore) Get(ctx context.Context, id string) (domain.Session, bool, error) {
	raw, err := st.client.Get(ctx, redisKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Session{}, false, nil
	}
	if err != nil {
		return domain.Session{}, false, err
	}
	var sess domain.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		st.logger.Warn("corrupt session payload dropped", "session_id", id, "error", err)
		_ = st.client.Del(ctx, redisKeyPrefix+id).Err()
		return domain.Session{}, false, nil
	}
	if sess.Expired(time.Now()) {
		_ = st.client.Del(ctx, redisKeyPrefix+id).Err()
		return domain.Session{}, false, nil
	}
	return sess, true, nil
}

func (st *redisStore) Delete(ctx context.Context, id string) error {
	return st.client.Del(ctx, redisKeyPrefix+id).Err()
}

func (st *redisStore) Close() {
	_ = st.client.Close()
}
