package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/tinywideclouds/go-chat-fanout/pkg/dispatch"
	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
)

// PresenceRegistry reads the presence records the chat service maintains in
// Redis. This service only ever reads them; ownership stays with the writer.
type PresenceRegistry struct {
	cache CacheClient
}

func NewPresenceRegistry(cache CacheClient) *PresenceRegistry {
	return &PresenceRegistry{cache: cache}
}

// Presence returns the user's presence record. An absent key is a normal
// state (offline), not an error.
func (p *PresenceRegistry) Presence(ctx context.Context, user urn.URN) (dispatch.Presence, error) {
	var rec dispatch.Presence
	err := p.cache.Get(ctx, p.presenceKey(user), &rec)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return dispatch.Presence{}, nil
		}
		return dispatch.Presence{}, fmt.Errorf("presence read failed: %w", err)
	}
	return rec, nil
}

func (p *PresenceRegistry) presenceKey(user urn.URN) string {
	return fmt.Sprintf("presence:%s", user.String())
}
