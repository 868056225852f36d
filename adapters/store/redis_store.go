package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/core"
	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/ports"
	"github.com/redis/go-redis/v9"
)

// clearCurrentScript deletes the current pointer only if it still names the
// given token, so a newer token issued concurrently is never dropped
var clearCurrentScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLedgerStore is a Redis implementation of ports.LedgerStore.
//
// Layout:
//
//	<prefix>token:<id>               JSON token
//	<prefix>identity:<id>:tokens     list of token ids in issue order
//	<prefix>identity:<id>:current    current token id
type RedisLedgerStore struct {
	client *redis.Client
	prefix string
}

// NewRedisLedgerStore creates a new Redis ledger store
func NewRedisLedgerStore(client *redis.Client) *RedisLedgerStore {
	return &RedisLedgerStore{
		client: client,
		prefix: "pol:",
	}
}

var _ ports.LedgerStore = (*RedisLedgerStore)(nil)

func (s *RedisLedgerStore) tokenKey(tokenID string) string {
	return s.prefix + "token:" + tokenID
}

func (s *RedisLedgerStore) listKey(identity string) string {
	return s.prefix + "identity:" + identity + ":tokens"
}

func (s *RedisLedgerStore) currentKey(identity string) string {
	return s.prefix + "identity:" + identity + ":current"
}

// Append stores a new token and indexes it under its identity
func (s *RedisLedgerStore) Append(ctx context.Context, token core.Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}

	created, err := s.client.SetNX(ctx, s.tokenKey(token.TokenID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("%w: failed to store token: %w", core.ErrStoreOperationFailed, err)
	}
	if !created {
		return fmt.Errorf("%w: token %s already exists", core.ErrStoreOperationFailed, token.TokenID)
	}

	if err := s.client.RPush(ctx, s.listKey(token.Identity), token.TokenID).Err(); err != nil {
		return fmt.Errorf("%w: failed to index token: %w", core.ErrStoreOperationFailed, err)
	}
	return nil
}

// Get loads a token
func (s *RedisLedgerStore) Get(ctx context.Context, tokenID string) (core.Token, error) {
	data, err := s.client.Get(ctx, s.tokenKey(tokenID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return core.Token{}, core.ErrTokenNotFound
	}
	if err != nil {
		return core.Token{}, fmt.Errorf("%w: failed to load token: %w", core.ErrStoreOperationFailed, err)
	}

	var token core.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return core.Token{}, fmt.Errorf("failed to decode token %s: %w", tokenID, err)
	}
	return token, nil
}

// Exists checks if a token id was ever issued
func (s *RedisLedgerStore) Exists(ctx context.Context, tokenID string) (bool, error) {
	val, err := s.client.Exists(ctx, s.tokenKey(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: failed to check token: %w", core.ErrStoreOperationFailed, err)
	}
	return val > 0, nil
}

// Update overwrites the status fields of a stored token
func (s *RedisLedgerStore) Update(ctx context.Context, token core.Token) error {
	stored, err := s.Get(ctx, token.TokenID)
	if err != nil {
		return err
	}
	stored.Status = token.Status
	stored.RevokedAt = token.RevokedAt

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if err := s.client.SetXX(ctx, s.tokenKey(token.TokenID), data, 0).Err(); err != nil {
		return fmt.Errorf("%w: failed to update token: %w", core.ErrStoreOperationFailed, err)
	}
	return nil
}

// SetCurrent points the identity at tokenID
func (s *RedisLedgerStore) SetCurrent(ctx context.Context, identity, tokenID string) error {
	if err := s.client.Set(ctx, s.currentKey(identity), tokenID, 0).Err(); err != nil {
		return fmt.Errorf("%w: failed to set current token: %w", core.ErrStoreOperationFailed, err)
	}
	return nil
}

// Current returns the identity's current token id
func (s *RedisLedgerStore) Current(ctx context.Context, identity string) (string, error) {
	id, err := s.client.Get(ctx, s.currentKey(identity)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: failed to load current token: %w", core.ErrStoreOperationFailed, err)
	}
	return id, nil
}

// ClearCurrent drops the pointer if it still names tokenID
func (s *RedisLedgerStore) ClearCurrent(ctx context.Context, identity, tokenID string) error {
	if err := clearCurrentScript.Run(ctx, s.client, []string{s.currentKey(identity)}, tokenID).Err(); err != nil {
		return fmt.Errorf("%w: failed to clear current token: %w", core.ErrStoreOperationFailed, err)
	}
	return nil
}

// ListByIdentity returns the identity's tokens in issue order
func (s *RedisLedgerStore) ListByIdentity(ctx context.Context, identity string) ([]core.Token, error) {
	ids, err := s.client.LRange(ctx, s.listKey(identity), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list tokens: %w", core.ErrStoreOperationFailed, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.tokenKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load tokens: %w", core.ErrStoreOperationFailed, err)
	}

	tokens := make([]core.Token, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var token core.Token
		if err := json.Unmarshal([]byte(raw), &token); err != nil {
			return nil, fmt.Errorf("failed to decode token %s: %w", ids[i], err)
		}
		tokens = append(tokens, token)
	}
	return tokens, nil
}
