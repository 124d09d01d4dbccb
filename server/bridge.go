package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds connection settings for the Redis pub/sub bridge
type RedisConfig struct {
	Addr     string // Redis address, default "localhost:6379"
	Password string // Redis password, default ""
	DB       int    // Redis database number, default 0
	Prefix   string // Channel prefix, default "realtime:"
}

func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		Addr:   "localhost:6379",
		Prefix: "realtime:",
	}
}

// Publisher delivers a payload to the sockets of a topic
type Publisher interface {
	Publish(topic string, payload any) int
}

// RedisBridge relays the progress events published by out of process
// workers to the sockets of the processing topic
type RedisBridge struct {
	client  *redis.Client
	channel string
	hub     Publisher
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRedisBridge(cfg *RedisConfig, hub Publisher, logger *slog.Logger) *RedisBridge {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithCancel(context.Background())

	return &RedisBridge{
		client:  client,
		channel: cfg.Prefix + ProcessingTopic,
		hub:     hub,
		logger:  logger.With("component", "redis-bridge"),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start subscribes to the progress channel and begins relaying events
func (b *RedisBridge) Start() error {
	if err := b.client.Ping(b.ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	sub := b.client.Subscribe(b.ctx, b.channel)

	// wait for subscription confirmation
	if _, err := sub.Receive(b.ctx); err != nil {
		return fmt.Errorf("redis subscribe %s: %w", b.channel, err)
	}

	b.wg.Add(1)
	go b.listen(sub)

	b.logger.Info("redis bridge started", "channel", b.channel)
	return nil
}

// PublishProgress is the worker side: it publishes a progress event
// for every server instance to relay
func (b *RedisBridge) PublishProgress(ctx context.Context, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, data).Err()
}

// Stop unsubscribes and closes the Redis connection
func (b *RedisBridge) Stop() error {
	b.cancel()
	b.wg.Wait()
	return b.client.Close()
}

func (b *RedisBridge) listen(sub *redis.PubSub) {
	defer b.wg.Done()
	defer sub.Close() // nolint:errcheck

	ch := sub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			b.relay(msg)
		case <-b.ctx.Done():
			return
		}
	}
}

// relay forwards a valid JSON event verbatim to the processing topic
func (b *RedisBridge) relay(msg *redis.Message) {
	payload := []byte(msg.Payload)
	if !json.Valid(payload) {
		b.logger.Error("dropping invalid progress event", "channel", msg.Channel)
		return
	}

	n := b.hub.Publish(ProcessingTopic, json.RawMessage(payload))
	b.logger.Debug("relayed progress event", "sockets", n)
}
