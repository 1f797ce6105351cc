// Package redis provides a broker.Broker backed by Redis Streams, so that
// session events can be consumed from other processes or hosts.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ggoodman/tdsession-go/broker"
	"github.com/joeshaw/envdecode"
	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "tdsession:broker:"

// Broker is a Redis Streams implementation of broker.Broker. Every namespace
// is one stream; subscribers read without a consumer group so that each of
// them sees every message.
type Broker struct {
	client    redis.UniversalClient
	keyPrefix string
	maxLen    int64
	block     time.Duration
}

// Config configures a Broker.
type Config struct {
	// Client is the Redis client to use. When nil, one is created from Addr.
	Client redis.UniversalClient
	// Addr is the Redis address used when Client is nil.
	Addr string `env:"TDSESSION_REDIS_ADDR"`
	// Password authenticates the created client.
	Password string `env:"TDSESSION_REDIS_PASSWORD"`
	// DB selects the Redis database of the created client.
	DB int `env:"TDSESSION_REDIS_DB"`
	// KeyPrefix is prepended to every key. Defaults to "tdsession:broker:".
	KeyPrefix string `env:"TDSESSION_REDIS_KEY_PREFIX"`
	// MaxLen caps each stream approximately; zero keeps everything.
	MaxLen int64 `env:"TDSESSION_REDIS_MAXLEN"`
}

// ConfigFromEnv reads a Config from TDSESSION_REDIS_* environment variables.
// Unset variables leave the zero value.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("redis broker config: %w", err)
	}
	return cfg, nil
}

// New creates a Broker from config.
func New(config Config) *Broker {
	client := config.Client
	if client == nil {
		addr := config.Addr
		if addr == "" {
			addr = "localhost:6379"
		}
		client = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.Password,
			DB:       config.DB,
		})
	}

	keyPrefix := config.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}

	return &Broker{
		client:    client,
		keyPrefix: keyPrefix,
		maxLen:    config.MaxLen,
		block:     time.Second,
	}
}

// Ping checks connectivity.
func (b *Broker) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (b *Broker) Close() error {
	return b.client.Close()
}

// Publish implements broker.Broker.
func (b *Broker) Publish(ctx context.Context, namespace string, data []byte) (string, error) {
	streamKey := b.streamKey(namespace)
	args := &redis.XAddArgs{
		Stream: streamKey,
		Values: map[string]any{"data": data},
	}
	if b.maxLen > 0 {
		args.MaxLen = b.maxLen
		args.Approx = true
	}

	eventID, err := b.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("failed to publish message to stream %s: %w", streamKey, err)
	}
	return eventID, nil
}

// Subscribe implements broker.Broker.
func (b *Broker) Subscribe(ctx context.Context, namespace string, lastEventID string, handler broker.MessageHandler) error {
	streamKey := b.streamKey(namespace)

	startID := "$"
	if lastEventID != "" {
		startID = lastEventID
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		streams, err := b.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{streamKey, startID},
			Count:   64,
			Block:   b.block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if strings.Contains(err.Error(), "Invalid stream ID") {
				return fmt.Errorf("%w: %s", broker.ErrUnknownEventID, lastEventID)
			}
			return fmt.Errorf("failed to read from stream %s: %w", streamKey, err)
		}

		for _, stream := range streams {
			for _, message := range stream.Messages {
				startID = message.ID
				data, ok := message.Values["data"].(string)
				if !ok {
					continue
				}
				if err := handler(ctx, broker.MessageEnvelope{ID: message.ID, Data: []byte(data)}); err != nil {
					return err
				}
			}
		}
	}
}

// Cleanup implements broker.Broker.
func (b *Broker) Cleanup(ctx context.Context, namespace string) error {
	if err := b.client.Del(ctx, b.streamKey(namespace)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to cleanup namespace %s: %w", namespace, err)
	}
	return nil
}

func (b *Broker) streamKey(namespace string) string {
	return b.keyPrefix + "stream:" + namespace
}

var _ broker.Broker = (*Broker)(nil)
