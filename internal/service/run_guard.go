package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// RunGuard 保证同一个 run 同一时刻只有一个执行者
type RunGuard interface {
	Acquire(ctx context.Context, runID string) (bool, error)
	Refresh(ctx context.Context, runID string) error
	Release(ctx context.Context, runID string) error
	Active(ctx context.Context, runID string) (bool, error)
}

var errClaimLost = errors.New("run claim is no longer held")

// MemoryRunGuard 单进程部署使用
type MemoryRunGuard struct {
	mu     sync.Mutex
	active map[string]struct{}
}

func NewMemoryRunGuard() *MemoryRunGuard {
	return &MemoryRunGuard{active: make(map[string]struct{})}
}

func (g *MemoryRunGuard) Acquire(_ context.Context, runID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.active[runID]; ok {
		return false, nil
	}
	g.active[runID] = struct{}{}
	return true, nil
}

func (g *MemoryRunGuard) Refresh(_ context.Context, runID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.active[runID]; !ok {
		return errClaimLost
	}
	return nil
}

func (g *MemoryRunGuard) Release(_ context.Context, runID string) error {
	g.mu.Lock()
	delete(g.active, runID)
	g.mu.Unlock()
	return nil
}

func (g *MemoryRunGuard) Active(_ context.Context, runID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.active[runID]
	return ok, nil
}

const runGuardKeyPrefix = "exam_review:run_guard:"

var (
	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

// RedisRunGuard 多实例部署使用。claim 带 TTL，执行者每完成一次尝试续期，进程崩溃后 claim 自动过期
type RedisRunGuard struct {
	rdb *redis.Client
	ttl time.Duration

	mu     sync.Mutex
	tokens map[string]string
}

func NewRedisRunGuard(rdb *redis.Client, ttl time.Duration) *RedisRunGuard {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisRunGuard{rdb: rdb, ttl: ttl, tokens: make(map[string]string)}
}

func (g *RedisRunGuard) key(runID string) string {
	return runGuardKeyPrefix + runID
}

func (g *RedisRunGuard) Acquire(ctx context.Context, runID string) (bool, error) {
	token := uuid.New().String()
	ok, err := g.rdb.SetNX(ctx, g.key(runID), token, g.ttl).Result()
	if err != nil || !ok {
		return false, err
	}

	g.mu.Lock()
	g.tokens[runID] = token
	g.mu.Unlock()
	return true, nil
}

func (g *RedisRunGuard) token(runID string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.tokens[runID]
	return t, ok
}

func (g *RedisRunGuard) Refresh(ctx context.Context, runID string) error {
	token, ok := g.token(runID)
	if !ok {
		return errClaimLost
	}
	n, err := refreshScript.Run(ctx, g.rdb, []string{g.key(runID)}, token, g.ttl.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return errClaimLost
	}
	return nil
}

func (g *RedisRunGuard) Release(ctx context.Context, runID string) error {
	token, ok := g.token(runID)
	if !ok {
		return nil
	}

	g.mu.Lock()
	delete(g.tokens, runID)
	g.mu.Unlock()

	return releaseScript.Run(ctx, g.rdb, []string{g.key(runID)}, token).Err()
}

func (g *RedisRunGuard) Active(ctx context.Context, runID string) (bool, error) {
	n, err := g.rdb.Exists(ctx, g.key(runID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
