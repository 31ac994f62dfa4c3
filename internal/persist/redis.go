package persist

import (
	"context"
	"errors"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// RedisBackend keeps each slot under <prefix>:slot:<n> and the used slot
// numbers in the set <prefix>:slots.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

func NewRedisBackend(client *redis.Client, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = "savemaster"
	}
	return &RedisBackend{client: client, prefix: prefix}
}

func (b *RedisBackend) slotKey(slot int) string {
	return b.prefix + ":slot:" + strconv.Itoa(slot)
}

func (b *RedisBackend) indexKey() string {
	return b.prefix + ":slots"
}

func (b *RedisBackend) List(ctx context.Context) ([]int, error) {
	members, err := b.client.SMembers(ctx, b.indexKey()).Result()
	if err != nil {
		return nil, eris.Wrap(err, "list slots")
	}
	slots := make([]int, 0, len(members))
	for _, m := range members {
		n, err := strconv.Atoi(m)
		if err != nil {
			continue
		}
		slots = append(slots, n)
	}
	sort.Ints(slots)
	return slots, nil
}

func (b *RedisBackend) Read(ctx context.Context, slot int) ([]byte, error) {
	data, err := b.client.Get(ctx, b.slotKey(slot)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, eris.Wrapf(ErrSlotNotFound, "slot %d", slot)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "read slot %d", slot)
	}
	return data, nil
}

// Write sets the payload and the index entry in one MULTI/EXEC.
func (b *RedisBackend) Write(ctx context.Context, slot int, data []byte) error {
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, b.slotKey(slot), data, 0)
		pipe.SAdd(ctx, b.indexKey(), strconv.Itoa(slot))
		return nil
	})
	return eris.Wrapf(err, "write slot %d", slot)
}

func (b *RedisBackend) Delete(ctx context.Context, slot int) error {
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, b.slotKey(slot))
		pipe.SRem(ctx, b.indexKey(), strconv.Itoa(slot))
		return nil
	})
	return eris.Wrapf(err, "delete slot %d", slot)
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}
