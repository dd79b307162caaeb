package followup

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const sendGuardTTL = 48 * time.Hour

// RedisGuard implements SendGuard with SETNX. The key encodes lead,
// generation and step index, so each step can be claimed exactly once
// even when two workers pick up the same delivery.
type RedisGuard struct {
	client *redis.Client
}

func NewRedisGuard(client *redis.Client) *RedisGuard {
	return &RedisGuard{client: client}
}

func (g *RedisGuard) Acquire(ctx context.Context, step Step) (bool, error) {
	key := sendGuardKey(step)
	ok, err := g.client.SetNX(ctx, key, "1", sendGuardTTL).Result()
	if err != nil {
		return false, fmt.Errorf("acquire send guard %s: %w", key, err)
	}
	return ok, nil
}

func sendGuardKey(step Step) string {
	return fmt.Sprintf("followup:sent:%s:%d:%d", step.LeadID, step.Generation, step.StepIndex)
}

// MemoryGuard is an in-process SendGuard for tests and single-node setups.
type MemoryGuard struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{seen: make(map[string]struct{})}
}

func (g *MemoryGuard) Acquire(_ context.Context, step Step) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := sendGuardKey(step)
	if _, ok := g.seen[key]; ok {
		return false, nil
	}
	g.seen[key] = struct{}{}
	return true, nil
}
