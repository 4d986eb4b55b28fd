package auth

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/SalahElkadim/alc/internal/model"
)

// SessionStore is the registry of logged-in device sessions keyed by access
// token id. The MySQL repository implements it; RedisSessionStore is the
// in-memory alternative.
type SessionStore interface {
	ReplaceSessions(ctx context.Context, s *model.UserSession, exclusive bool) error
	IsSessionActive(ctx context.Context, userID int64, sessionKey string) (bool, error)
	TouchSession(ctx context.Context, sessionKey string, at time.Time) error
	RekeySession(ctx context.Context, userID int64, oldKey, newKey string, at time.Time) (bool, error)
	DeactivateSession(ctx context.Context, userID int64, sessionKey string) error
	ListActiveSessions(ctx context.Context, userID int64, activeSince time.Time) ([]model.UserSession, error)
}

const maxTxRetries = 5

type RedisSessionStore struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisSessionStore(rdb *redis.Client, prefix string, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (s *RedisSessionStore) sessionKey(key string) string {
	return s.prefix + "session:" + key
}

func (s *RedisSessionStore) userKey(userID int64) string {
	return s.prefix + "user:" + strconv.FormatInt(userID, 10) + ":sessions"
}

func (s *RedisSessionStore) watch(ctx context.Context, fn func(tx *redis.Tx) error, keys ...string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return redis.TxFailedErr
}

func (s *RedisSessionStore) ReplaceSessions(ctx context.Context, sess *model.UserSession, exclusive bool) error {
	userKey := s.userKey(sess.UserID)

	err := s.watch(ctx, func(tx *redis.Tx) error {
		var previous []string
		if exclusive {
			members, err := tx.SMembers(ctx, userKey).Result()
			if err != nil && err != redis.Nil {
				return err
			}
			previous = members
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, key := range previous {
				pipe.Del(ctx, s.sessionKey(key))
				pipe.SRem(ctx, userKey, key)
			}
			pipe.HSet(ctx, s.sessionKey(sess.SessionKey), map[string]interface{}{
				"user_id":            sess.UserID,
				"device_fingerprint": sess.DeviceFingerprint,
				"ip_address":         sess.IPAddress,
				"user_agent":         sess.UserAgent,
				"created_at":         sess.CreatedAt.Unix(),
				"last_activity":      sess.LastActivity.Unix(),
			})
			pipe.Expire(ctx, s.sessionKey(sess.SessionKey), s.ttl)
			pipe.SAdd(ctx, userKey, sess.SessionKey)
			pipe.Expire(ctx, userKey, s.ttl)
			return nil
		})
		return err
	}, userKey)
	if err != nil {
		return err
	}

	sess.IsActive = true
	return nil
}

func (s *RedisSessionStore) IsSessionActive(ctx context.Context, userID int64, sessionKey string) (bool, error) {
	owner, err := s.rdb.HGet(ctx, s.sessionKey(sessionKey), "user_id").Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return owner == strconv.FormatInt(userID, 10), nil
}

func (s *RedisSessionStore) TouchSession(ctx context.Context, sessionKey string, at time.Time) error {
	key := s.sessionKey(sessionKey)
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil || n == 0 {
		return err
	}
	return s.rdb.HSet(ctx, key, "last_activity", at.Unix()).Err()
}

func (s *RedisSessionStore) RekeySession(ctx context.Context, userID int64, oldKey, newKey string, at time.Time) (bool, error) {
	oldSession := s.sessionKey(oldKey)
	userKey := s.userKey(userID)
	moved := false

	err := s.watch(ctx, func(tx *redis.Tx) error {
		owner, err := tx.HGet(ctx, oldSession, "user_id").Result()
		if err == redis.Nil || (err == nil && owner != strconv.FormatInt(userID, 10)) {
			moved = false
			return nil
		}
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Rename(ctx, oldSession, s.sessionKey(newKey))
			pipe.HSet(ctx, s.sessionKey(newKey), "last_activity", at.Unix())
			pipe.Expire(ctx, s.sessionKey(newKey), s.ttl)
			pipe.SRem(ctx, userKey, oldKey)
			pipe.SAdd(ctx, userKey, newKey)
			return nil
		})
		moved = err == nil
		return err
	}, oldSession, userKey)

	return moved, err
}

func (s *RedisSessionStore) DeactivateSession(ctx context.Context, userID int64, sessionKey string) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.sessionKey(sessionKey))
		pipe.SRem(ctx, s.userKey(userID), sessionKey)
		return nil
	})
	return err
}

func (s *RedisSessionStore) ListActiveSessions(ctx context.Context, userID int64, activeSince time.Time) ([]model.UserSession, error) {
	userKey := s.userKey(userID)
	keys, err := s.rdb.SMembers(ctx, userKey).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}

	sessions := []model.UserSession{}
	for _, key := range keys {
		fields, err := s.rdb.HGetAll(ctx, s.sessionKey(key)).Result()
		if err != nil {
			return nil, err
		}
		if len(fields) == 0 {
			// expired
			s.rdb.SRem(ctx, userKey, key)
			continue
		}

		created, _ := strconv.ParseInt(fields["created_at"], 10, 64)
		last, _ := strconv.ParseInt(fields["last_activity"], 10, 64)
		sess := model.UserSession{
			UserID:            userID,
			SessionKey:        key,
			DeviceFingerprint: fields["device_fingerprint"],
			IPAddress:         fields["ip_address"],
			UserAgent:         fields["user_agent"],
			CreatedAt:         time.Unix(created, 0),
			LastActivity:      time.Unix(last, 0),
			IsActive:          true,
		}
		if sess.LastActivity.Before(activeSince) {
			continue
		}
		sessions = append(sessions, sess)
	}

	return sessions, nil
}
