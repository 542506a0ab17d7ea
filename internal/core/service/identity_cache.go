package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/tasktracker/task-system/internal/core/domain"
	"github.com/tasktracker/task-system/internal/core/ports"
	"github.com/tasktracker/task-system/internal/pkg/metrics"
)

const defaultCacheTTL = time.Hour

// IdentityCache is a read-through, write-through cache of identities in
// front of the credential store. Every identity lives under two keys, one
// per lookup keyspace, and both are always written together.
//
// The cache only affects latency: backend failures are logged and the
// store is consulted as if the entry were missing.
type IdentityCache struct {
	store   ports.CredentialStore
	backend ports.CacheBackend
	ttl     time.Duration
	log     zerolog.Logger
}

// NewIdentityCache returns an IdentityCache. A non-positive ttl selects one hour.
func NewIdentityCache(store ports.CredentialStore, backend ports.CacheBackend, ttl time.Duration, log zerolog.Logger) *IdentityCache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &IdentityCache{store: store, backend: backend, ttl: ttl, log: log}
}

func usernameKey(username string) string { return "user:username:" + username }

func idKey(id int64) string { return "user:id:" + strconv.FormatInt(id, 10) }

// LookupByUsername returns the identity or domain.ErrIdentityNotFound.
func (c *IdentityCache) LookupByUsername(ctx context.Context, username string) (*domain.User, error) {
	return c.lookup(ctx, "username", usernameKey(username), func() (*domain.User, error) {
		return c.store.FindByUsername(ctx, username)
	})
}

// LookupByID returns the identity or domain.ErrIdentityNotFound.
func (c *IdentityCache) LookupByID(ctx context.Context, id int64) (*domain.User, error) {
	return c.lookup(ctx, "id", idKey(id), func() (*domain.User, error) {
		return c.store.FindByID(ctx, id)
	})
}

func (c *IdentityCache) lookup(ctx context.Context, keyspace, key string, load func() (*domain.User, error)) (*domain.User, error) {
	if user, ok := c.get(ctx, keyspace, key); ok {
		return user, nil
	}

	user, err := load()
	if err != nil {
		return nil, err
	}
	c.fill(ctx, user)
	return user, nil
}

func (c *IdentityCache) get(ctx context.Context, keyspace, key string) (*domain.User, bool) {
	raw, found, err := c.backend.Get(ctx, key)
	if err != nil {
		metrics.IdentityCacheTotal.WithLabelValues(keyspace, "error").Inc()
		c.log.Warn().Err(err).Str("key", key).Msg("identity cache read failed, falling back to store")
		return nil, false
	}
	if !found {
		metrics.IdentityCacheTotal.WithLabelValues(keyspace, "miss").Inc()
		return nil, false
	}

	var user domain.User
	if err := json.Unmarshal(raw, &user); err != nil {
		metrics.IdentityCacheTotal.WithLabelValues(keyspace, "error").Inc()
		c.log.Warn().Err(err).Str("key", key).Msg("corrupt identity cache entry dropped")
		if err := c.backend.Delete(ctx, key); err != nil {
			c.log.Warn().Err(err).Str("key", key).Msg("identity cache delete failed")
		}
		return nil, false
	}
	metrics.IdentityCacheTotal.WithLabelValues(keyspace, "hit").Inc()
	return &user, true
}

// Put writes user under both keyspaces, replacing whatever is cached. Call
// it after every successful write to the credential store.
func (c *IdentityCache) Put(ctx context.Context, user *domain.User) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode identity for cache: %w", err)
	}
	var errs []error
	for _, key := range c.keys(user) {
		if err := c.backend.Set(ctx, key, raw, c.ttl); err != nil {
			c.log.Warn().Err(err).Str("key", key).Msg("identity cache write failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// fill populates keys that are still empty after a store read. A lookup
// that read the row before a concurrent Put must not overwrite that Put.
func (c *IdentityCache) fill(ctx context.Context, user *domain.User) {
	raw, err := json.Marshal(user)
	if err != nil {
		c.log.Error().Err(err).Int64("user_id", user.ID).Msg("encode identity for cache")
		return
	}
	for _, key := range c.keys(user) {
		if _, err := c.backend.SetNX(ctx, key, raw, c.ttl); err != nil {
			c.log.Warn().Err(err).Str("key", key).Msg("identity cache fill failed")
		}
	}
}

func (c *IdentityCache) keys(user *domain.User) []string {
	return []string{usernameKey(user.Username), idKey(user.ID)}
}

// Invalidate drops both cached copies of user.
func (c *IdentityCache) Invalidate(ctx context.Context, user *domain.User) error {
	if err := c.backend.Delete(ctx, c.keys(user)...); err != nil {
		return fmt.Errorf("invalidate identity cache: %w", err)
	}
	return nil
}
