// Package kv is the small key/value persistence port used for counters and
// session-scoped state. Implementations: in-memory, Redis, and a local JSON file.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrIncrUnsupported is returned by Incr on stores without an atomic counter.
var ErrIncrUnsupported = errors.New("kv: atomic increment not supported")

// Store reads, writes and clears string values by key.
// A zero ttl means the value does not expire.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Clear(ctx context.Context, key string) error
}

// Counter is implemented by stores that can increment atomically.
type Counter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Decr(ctx context.Context, key string) (int64, error)
}

// Reserver is implemented by stores that can write a key only when it is absent.
type Reserver interface {
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
}

// Incr increments key atomically when s supports it.
func Incr(ctx context.Context, s Store, key string) (int64, error) {
	c, ok := s.(Counter)
	if !ok {
		return 0, ErrIncrUnsupported
	}
	return c.Incr(ctx, key)
}

// Decr decrements key atomically when s supports it.
func Decr(ctx context.Context, s Store, key string) (int64, error) {
	c, ok := s.(Counter)
	if !ok {
		return 0, ErrIncrUnsupported
	}
	return c.Decr(ctx, key)
}

// SetNX stores value under key unless the key already holds a value and
// reports whether it wrote. Stores without Reserver fall back to a
// non-atomic read then write.
func SetNX(ctx context.Context, s Store, key, value string, ttl time.Duration) (bool, error) {
	if r, ok := s.(Reserver); ok {
		return r.SetNX(ctx, key, value, ttl)
	}
	if _, ok, err := s.Get(ctx, key); err != nil || ok {
		return false, err
	}
	return true, s.Set(ctx, key, value, ttl)
}

// Namespace prefixes every key written through the returned store.
func Namespace(s Store, prefix string) Store {
	return &namespaced{base: s, prefix: prefix}
}

type namespaced struct {
	base   Store
	prefix string
}

func (n *namespaced) Get(ctx context.Context, key string) (string, bool, error) {
	return n.base.Get(ctx, n.prefix+key)
}

func (n *namespaced) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return n.base.Set(ctx, n.prefix+key, value, ttl)
}

func (n *namespaced) Clear(ctx context.Context, key string) error {
	return n.base.Clear(ctx, n.prefix+key)
}

func (n *namespaced) Incr(ctx context.Context, key string) (int64, error) {
	return Incr(ctx, n.base, n.prefix+key)
}

func (n *namespaced) Decr(ctx context.Context, key string) (int64, error) {
	return Decr(ctx, n.base, n.prefix+key)
}

func (n *namespaced) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return SetNX(ctx, n.base, n.prefix+key, value, ttl)
}
