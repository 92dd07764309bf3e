package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"classroom-live-service/internal/app"
	"classroom-live-service/internal/domain"
)

// Store decorates another app.Store with best-effort session liveness
// markers in Redis. The markers make open sessions visible to sibling
// processes (and could route cross-instance pub/sub); persistence itself
// stays with the wrapped store.
type Store struct {
	app.Store
	client *redis.Client
	ttl    time.Duration
}

func NewStore(next app.Store, client *redis.Client, ttl time.Duration) *Store {
	return &Store{Store: next, client: client, ttl: ttl}
}

func (s *Store) CreateSession(ctx context.Context, sess domain.Session) error {
	if err := s.Store.CreateSession(ctx, sess); err != nil {
		return err
	}
	_ = s.client.Set(ctx, s.key(sess.ID), sess.RoomID, s.ttl).Err()
	return nil
}

func (s *Store) EndSession(ctx context.Context, sessionID string, endedAt time.Time) error {
	if err := s.Store.EndSession(ctx, sessionID, endedAt); err != nil {
		return err
	}
	_ = s.client.Del(ctx, s.key(sessionID)).Err()
	return nil
}

func (s *Store) key(sessionID string) string {
	return "session:open:" + sessionID
}
