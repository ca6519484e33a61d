// Package queuestore is the durable per-node list storage the queue
// router uses for queue payloads (spec.md §4.5, §6's note that the
// external in-memory key/list store is an out-of-scope collaborator).
// Grounded on original_source/src/nodes/queue_node.py, which keeps each
// queue as a Redis list via a redis-py ConnectionPool and uses
// RPUSH/LPOP/LPUSH for produce/consume/redelivery.
package queuestore

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// Store is the list operations the queue router needs. Implemented by
// *RedisStore in production; an in-memory fake satisfies it in tests.
type Store interface {
	RPush(ctx context.Context, queue, payload string) error
	LPopFront(ctx context.Context, queue string) (string, bool, error)
	LPushFront(ctx context.Context, queue, payload string) error
	Len(ctx context.Context, queue string) (int64, error)
	Keys(ctx context.Context) ([]string, error)
}

const keyPrefix = "queue:"

// RedisStore backs Store with a Redis list per queue, keyed as
// "queue:<name>", matching original_source's naming.
type RedisStore struct {
	client *redis.Client
}

// New dials a Redis instance at addr (host:port).
func New(addr string) *RedisStore {
	return &RedisStore{client: redis.NewClient(&redis.Options{Addr: addr})}
}

func queueKey(queue string) string { return keyPrefix + queue }

// RPush appends payload to the tail of queue's list (produce).
func (s *RedisStore) RPush(ctx context.Context, queue, payload string) error {
	return s.client.RPush(ctx, queueKey(queue), payload).Err()
}

// LPopFront pops the head of queue's list (consume). ok is false when the
// list is empty.
func (s *RedisStore) LPopFront(ctx context.Context, queue string) (string, bool, error) {
	val, err := s.client.LPop(ctx, queueKey(queue)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// LPushFront re-inserts payload at the head of queue's list, used by
// redelivery so requeued messages are served before newer produces.
func (s *RedisStore) LPushFront(ctx context.Context, queue, payload string) error {
	return s.client.LPush(ctx, queueKey(queue), payload).Err()
}

// Len reports the current length of queue's list.
func (s *RedisStore) Len(ctx context.Context, queue string) (int64, error) {
	return s.client.LLen(ctx, queueKey(queue)).Result()
}

// Keys lists every queue name this node currently has a list for.
func (s *RedisStore) Keys(ctx context.Context) ([]string, error) {
	rawKeys, err := s.client.Keys(ctx, keyPrefix+"*").Result()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(rawKeys))
	for i, k := range rawKeys {
		names[i] = k[len(keyPrefix):]
	}
	return names, nil
}
