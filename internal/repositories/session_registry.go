package repositories

import (
	"context"
	"fmt"
	"sync"

	redis "github.com/redis/go-redis/v9"
)

const sessionSetKeyPrefix = "presence:sessions:" // Redis Set, 成员为会话 ID

// RedisSessionRegistry 以 Redis 集合记录每个用户的在线会话，用于在线状态引用计数
type RedisSessionRegistry struct {
	client *redis.Client
}

func NewRedisSessionRegistry(client *redis.Client) *RedisSessionRegistry {
	return &RedisSessionRegistry{client: client}
}

func sessionSetKey(userID uint) string {
	return fmt.Sprintf("%s%d", sessionSetKeyPrefix, userID)
}

// AddSession 返回该会话是否为用户的第一个在线会话。SADD 与 SCARD 在同一事务中执行
func (r *RedisSessionRegistry) AddSession(ctx context.Context, userID uint, sessionID string) (bool, error) {
	key := sessionSetKey(userID)
	var added *redis.IntCmd
	var card *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		added = pipe.SAdd(ctx, key, sessionID)
		card = pipe.SCard(ctx, key)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("add session: %w", err)
	}
	return added.Val() == 1 && card.Val() == 1, nil
}

// RemoveSession 返回移除后用户是否已没有在线会话
func (r *RedisSessionRegistry) RemoveSession(ctx context.Context, userID uint, sessionID string) (bool, error) {
	key := sessionSetKey(userID)
	var removed *redis.IntCmd
	var card *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		removed = pipe.SRem(ctx, key, sessionID)
		card = pipe.SCard(ctx, key)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("remove session: %w", err)
	}
	return removed.Val() == 1 && card.Val() == 0, nil
}

func (r *RedisSessionRegistry) SessionCount(ctx context.Context, userID uint) (int, error) {
	n, err := r.client.SCard(ctx, sessionSetKey(userID)).Result()
	return int(n), err
}

// Purge 清理上次进程遗留的会话集合，启动时调用
func (r *RedisSessionRegistry) Purge(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, sessionSetKeyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

// LocalSessionRegistry 进程内实现，未启用 Redis 时使用
type LocalSessionRegistry struct {
	mu       sync.Mutex
	sessions map[uint]map[string]struct{}
}

func NewLocalSessionRegistry() *LocalSessionRegistry {
	return &LocalSessionRegistry{sessions: make(map[uint]map[string]struct{})}
}

func (r *LocalSessionRegistry) AddSession(_ context.Context, userID uint, sessionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.sessions[userID]
	if !ok {
		set = make(map[string]struct{})
		r.sessions[userID] = set
	}
	if _, dup := set[sessionID]; dup {
		return false, nil
	}
	set[sessionID] = struct{}{}
	return len(set) == 1, nil
}

func (r *LocalSessionRegistry) RemoveSession(_ context.Context, userID uint, sessionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.sessions[userID]
	if !ok {
		return false, nil
	}
	if _, present := set[sessionID]; !present {
		return false, nil
	}
	delete(set, sessionID)
	if len(set) == 0 {
		delete(r.sessions, userID)
		return true, nil
	}
	return false, nil
}

func (r *LocalSessionRegistry) SessionCount(_ context.Context, userID uint) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions[userID]), nil
}

func (r *LocalSessionRegistry) Purge(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = make(map[uint]map[string]struct{})
	return nil
}
