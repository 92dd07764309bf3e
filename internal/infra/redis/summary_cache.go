package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"classroom-live-service/internal/domain"
)

// SummaryCache keeps summaries of ended sessions in Redis. Ended sessions
// never change, so entries are safe to serve until they expire; the TTL
// only bounds memory. Concurrent misses for the same session collapse onto
// one fill.
type SummaryCache struct {
	client *redis.Client
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewSummaryCache(client *redis.Client, ttl time.Duration) *SummaryCache {
	return &SummaryCache{
		client: client,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *SummaryCache) GetSummary(ctx context.Context, sessionID string, fill func(context.Context) (domain.SessionSummary, error)) (domain.SessionSummary, error) {
	key := c.key(sessionID)

	if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var summary domain.SessionSummary
		if err := json.Unmarshal(raw, &summary); err == nil {
			return summary, nil
		}
	}

	result, err, _ := c.sf.Do(sessionID, func() (interface{}, error) {
		// Re-check in case another goroutine filled it.
		if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
			var summary domain.SessionSummary
			if err := json.Unmarshal(raw, &summary); err == nil {
				return summary, nil
			}
		}

		summary, err := fill(ctx)
		if err != nil {
			return domain.SessionSummary{}, err
		}
		if raw, err := json.Marshal(summary); err == nil {
			_ = c.client.Set(ctx, key, raw, c.ttlWithJitter()).Err()
		}
		return summary, nil
	})
	if err != nil {
		return domain.SessionSummary{}, err
	}
	return result.(domain.SessionSummary), nil
}

func (c *SummaryCache) key(sessionID string) string {
	return "session:" + sessionID + ":summary"
}

func (c *SummaryCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
