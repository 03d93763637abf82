package api

import (
	"context"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"thirdangle/domain"
)

// RedisPublisher announces board updates on a Redis pub/sub channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) PublishBoardUpdate(ctx context.Context, upd domain.BoardUpdate) error {
	data, err := sonic.MarshalString(upd)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.channel, data).Err()
}
