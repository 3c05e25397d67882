// SPDX-License-Identifier: MPL-2.0

package bst

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis key patterns, one hash per definition keyed by object tag.
const (
	redisKeyCurrent = "labkit:bst:state:current:%s"
	redisKeyHistory = "labkit:bst:state:history:%s"
)

// RedisBackend persists state in Redis hashes. Current state lives under
// labkit:bst:state:current:<def-tag> and history, stored as a JSON array
// per object, under labkit:bst:state:history:<def-tag>.
type RedisBackend struct {
	client redis.UniversalClient
}

// NewRedisBackend creates a backend over an established client.
func NewRedisBackend(client redis.UniversalClient) *RedisBackend {
	return &RedisBackend{client: client}
}

// CurrentStateInfo implements Backend.
func (b *RedisBackend) CurrentStateInfo(ctx context.Context, defTag, objectTag string) (json.RawMessage, error) {
	data, err := b.client.HGet(ctx, fmt.Sprintf(redisKeyCurrent, defTag), objectTag).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading current state from redis: %w", err)
	}
	return data, nil
}

// History implements Backend.
func (b *RedisBackend) History(ctx context.Context, defTag, objectTag string) ([]json.RawMessage, error) {
	data, err := b.client.HGet(ctx, fmt.Sprintf(redisKeyHistory, defTag), objectTag).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading history from redis: %w", err)
	}

	var history []json.RawMessage
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("decoding history from redis: %w", err)
	}
	return history, nil
}

// SetCurrentStateInfo implements Backend.
func (b *RedisBackend) SetCurrentStateInfo(ctx context.Context, defTag, objectTag string, info json.RawMessage) error {
	if err := b.client.HSet(ctx, fmt.Sprintf(redisKeyCurrent, defTag), objectTag, []byte(info)).Err(); err != nil {
		return fmt.Errorf("writing current state to redis: %w", err)
	}

	history, err := b.History(ctx, defTag, objectTag)
	if err != nil {
		return err
	}
	history = append(history, info)

	data, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("encoding history: %w", err)
	}
	if err := b.client.HSet(ctx, fmt.Sprintf(redisKeyHistory, defTag), objectTag, data).Err(); err != nil {
		return fmt.Errorf("writing history to redis: %w", err)
	}
	return nil
}
