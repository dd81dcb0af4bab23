package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/tinywideclouds/go-chat-fanout/pkg/dispatch"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
)

// CachedTokenStore is a decorator that adds read-aside caching to any
// TokenStore. Every mutation invalidates the user's cache entry so pruned
// tokens stop receiving sends immediately.
type CachedTokenStore struct {
	realStore dispatch.TokenStore
	cache     CacheClient
	ttl       time.Duration
}

func NewCachedTokenStore(realStore dispatch.TokenStore, cache CacheClient, ttl time.Duration) *CachedTokenStore {
	return &CachedTokenStore{
		realStore: realStore,
		cache:     cache,
		ttl:       ttl,
	}
}

// --- READ PATH (read-aside) ---

func (s *CachedTokenStore) Fetch(ctx context.Context, user urn.URN) ([]string, error) {
	key := s.cacheKey(user)

	var cached []string
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return cached, nil
	}

	fresh, err := s.realStore.Fetch(ctx, user)
	if err != nil {
		return nil, err
	}

	// Caching is an optimization, not a transaction. If Redis is down we
	// just keep serving from the source of truth.
	_ = s.cache.Set(ctx, key, fresh, s.ttl)

	return fresh, nil
}

// All bypasses the cache: the sweep must see the source of truth.
func (s *CachedTokenStore) All(ctx context.Context) ([]dispatch.UserTokens, error) {
	return s.realStore.All(ctx)
}

// --- WRITE PATHS (invalidate-on-write) ---

func (s *CachedTokenStore) Register(ctx context.Context, user urn.URN, token string) error {
	if err := s.realStore.Register(ctx, user, token); err != nil {
		return err
	}
	return s.invalidate(ctx, user)
}

// Remove invalidates even though the DB write already succeeded: a pruned
// token must stop being served from cache immediately.
func (s *CachedTokenStore) Remove(ctx context.Context, user urn.URN, tokens []string) error {
	if err := s.realStore.Remove(ctx, user, tokens); err != nil {
		return err
	}
	return s.invalidate(ctx, user)
}

// --- Helpers ---

func (s *CachedTokenStore) invalidate(ctx context.Context, user urn.URN) error {
	return s.cache.Del(ctx, s.cacheKey(user))
}

func (s *CachedTokenStore) cacheKey(user urn.URN) string {
	return fmt.Sprintf("notify:tokens:%s", user.String())
}
