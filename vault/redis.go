package vault

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Redis stores sealed entries as plain Redis strings. Keys carry no TTL;
// expiry belongs to the registry.
//
// Layout:
//
//	<prefix>:<namespace>:<id>    sealed entry
//	<prefix>:<namespace>#ids     set of ids present, used by Purge
//
// Namespaces cannot contain ':' or '#', so no id maps onto the set key.
type Redis struct {
	client    redis.UniversalClient
	prefix    string
	namespace string
	codec     entryCodec
}

var (
	_ Vault  = (*Redis)(nil)
	_ Purger = (*Redis)(nil)
)

// NewRedis creates a Redis-backed vault. prefix defaults to "grv".
func NewRedis(client redis.UniversalClient, prefix, namespace string, sealer *Sealer) (*Redis, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: nil redis client", ErrUnavailable)
	}
	if err := validateNamespace(namespace); err != nil {
		return nil, err
	}
	codec, err := newEntryCodec(sealer)
	if err != nil {
		return nil, err
	}
	if prefix == "" {
		prefix = "grv"
	}
	return &Redis{
		client:    client,
		prefix:    prefix,
		namespace: namespace,
		codec:     codec,
	}, nil
}

func (r *Redis) Namespace() string { return r.namespace }

func (r *Redis) key(id string) string {
	return r.prefix + ":" + r.namespace + ":" + id
}

func (r *Redis) idsKey() string {
	return r.prefix + ":" + r.namespace + "#ids"
}

// Put writes the entry and records its id in one MULTI/EXEC.
//
//	Performance: 1 round trip (SET + SADD).
func (r *Redis) Put(ctx context.Context, id string, params Params) error {
	blob, err := r.codec.encode(params)
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.key(id), blob, 0)
		pipe.SAdd(ctx, r.idsKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Get loads and unseals the entry for id.
//
//	Performance: 1 Redis GET.
func (r *Redis) Get(ctx context.Context, id string) (Params, error) {
	blob, err := r.client.Get(ctx, r.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return r.codec.decode(blob)
}

func (r *Redis) Delete(ctx context.Context, id string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.key(id))
		pipe.SRem(ctx, r.idsKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Purge deletes every entry of the namespace. Entries written between the
// SMEMBERS and the DEL survive and are caught by the next call.
func (r *Redis) Purge(ctx context.Context) (int, error) {
	ids, err := r.client.SMembers(ctx, r.idsKey()).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(ids))
	members := make([]any, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, r.key(id))
		members = append(members, id)
	}

	var deleted *redis.IntCmd
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deleted = pipe.Del(ctx, keys...)
		pipe.SRem(ctx, r.idsKey(), members...)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return int(deleted.Val()), nil
}
