package kv

import "context"

type prefixed struct {
	store  Store
	prefix string
}

// Prefixed scopes every key of store under prefix.
func Prefixed(store Store, prefix string) Store {
	return &prefixed{store: store, prefix: prefix}
}

func (p *prefixed) Get(ctx context.Context, key string) (string, bool, error) {
	return p.store.Get(ctx, p.prefix+key)
}

func (p *prefixed) Set(ctx context.Context, key, value string) error {
	return p.store.Set(ctx, p.prefix+key, value)
}

func (p *prefixed) Remove(ctx context.Context, key string) error {
	return p.store.Remove(ctx, p.prefix+key)
}

func (p *prefixed) RemoveMany(ctx context.Context, keys ...string) error {
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = p.prefix + k
	}
	return p.store.RemoveMany(ctx, full...)
}
