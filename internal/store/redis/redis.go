// Package redis implements the hot-path ports over go-redis. INCR and SETNX
// give the nonce counter and the replay marker their storage-layer
// atomicity.
package redis

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github/finchase/go-signing/internal/signing/intent"
)

// Store implements nonce.Store and intent.ReplayStore over one client.
type Store struct {
	client *redis.Client
}

// New wraps an existing redis client.
func New(client *redis.Client) (*Store, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	return &Store{client: client}, nil
}

// NewFromURL dials redis from a URL.
func NewFromURL(url string) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse redis url")
	}
	return &Store{client: redis.NewClient(opts)}, nil
}

// Ping checks connectivity, for readiness probes.
func (s *Store) Ping(ctx context.Context) error {
	return errors.Wrap(s.client.Ping(ctx).Err(), "redis ping failed")
}

func nonceKey(walletID string, chainID int64) string {
	return fmt.Sprintf("signing:nonce:%s:%d", walletID, chainID)
}

func replayKey(signer string, chainID int64, nonce uint64) string {
	return fmt.Sprintf("signing:intent-nonce:%s:%d:%d", signer, chainID, nonce)
}

// AllocateAndIncrement implements nonce.Store. INCR creates absent keys at 0
// before incrementing, so the first allocation returns 0.
func (s *Store) AllocateAndIncrement(ctx context.Context, walletID string, chainID int64) (uint64, error) {
	next, err := s.client.Incr(ctx, nonceKey(walletID, chainID)).Result()
	if err != nil {
		return 0, errors.Wrap(err, "failed to increment nonce")
	}
	return uint64(next - 1), nil
}

// Peek implements nonce.Store.
func (s *Store) Peek(ctx context.Context, walletID string, chainID int64) (uint64, error) {
	next, err := s.client.Get(ctx, nonceKey(walletID, chainID)).Uint64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, errors.Wrap(err, "failed to read nonce")
	}
	return next, nil
}

// Reset implements nonce.Store.
func (s *Store) Reset(ctx context.Context, walletID string, chainID int64, next uint64) error {
	if err := s.client.Set(ctx, nonceKey(walletID, chainID), next, 0).Err(); err != nil {
		return errors.Wrap(err, "failed to reset nonce")
	}
	return nil
}

// IsNonceUsed implements intent.ReplayStore.
func (s *Store) IsNonceUsed(ctx context.Context, signer string, chainID int64, nonce uint64) (bool, error) {
	n, err := s.client.Exists(ctx, replayKey(signer, chainID, nonce)).Result()
	if err != nil {
		return false, errors.Wrap(err, "failed to check intent nonce")
	}
	return n > 0, nil
}

// MarkNonceUsed implements intent.ReplayStore. SETNX admits exactly one
// concurrent consumer.
func (s *Store) MarkNonceUsed(ctx context.Context, signer string, chainID int64, nonce uint64) error {
	set, err := s.client.SetNX(ctx, replayKey(signer, chainID, nonce), "1", 0).Result()
	if err != nil {
		return errors.Wrap(err, "failed to mark intent nonce used")
	}
	if !set {
		return errors.Wrapf(intent.ErrNonceAlreadyUsed, "signer %s chain %d nonce %d", signer, chainID, nonce)
	}
	return nil
}
