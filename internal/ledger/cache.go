package ledger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

const trialBalanceKey = "ledger:trial_balance"

// Cache keeps the trial balance in redis for a short TTL so dashboard
// polling does not hammer the aggregate query.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache builds a Cache. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Cache{client: client, ttl: ttl}
}

// GetTrialBalance returns the cached trial balance when present.
func (c *Cache) GetTrialBalance(ctx context.Context) (*TrialBalance, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}
	raw, err := c.client.Get(ctx, trialBalanceKey).Bytes()
	if err != nil {
		return nil, false
	}
	var tb TrialBalance
	if err := json.Unmarshal(raw, &tb); err != nil {
		return nil, false
	}
	return &tb, true
}

// SetTrialBalance stores the trial balance with the configured TTL.
func (c *Cache) SetTrialBalance(ctx context.Context, tb TrialBalance) {
	if c == nil || c.client == nil {
		return
	}
	raw, err := json.Marshal(tb)
	if err != nil {
		return
	}
	_ = c.client.Set(ctx, trialBalanceKey, raw, c.ttl).Err()
}

// Invalidate drops the cached trial balance after a posting mutation.
func (c *Cache) Invalidate(ctx context.Context) {
	if c == nil || c.client == nil {
		return
	}
	_ = c.client.Del(ctx, trialBalanceKey).Err()
}
