package chathub

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"marketchat/backend/internal/models"

	"github.com/redis/go-redis/v9"
)

// Relay scopes.
const (
	ScopeRoom  = "room"
	ScopeUsers = "users"
)

// RelayEnvelope carries one fan-out to the other instances.
type RelayEnvelope struct {
	Origin string       `json:"origin"`
	Scope  string       `json:"scope"`
	Keys   []string     `json:"keys"`
	Event  models.Event `json:"event"`
}

// Relay moves fan-outs between instances sharing the same clients.
type Relay interface {
	Publish(ctx context.Context, env RelayEnvelope) error
	// Subscribe blocks, calling handle for every envelope, until ctx is done.
	Subscribe(ctx context.Context, handle func(RelayEnvelope)) error
}

// RedisRelay implements Relay over one Redis Pub/Sub channel.
type RedisRelay struct {
	Redis   *redis.Client
	Channel string
	log     *slog.Logger
}

// NewRedisRelay constructs a relay on channel.
func NewRedisRelay(rdb *redis.Client, channel string, log *slog.Logger) *RedisRelay {
	if log == nil {
		log = slog.Default()
	}
	return &RedisRelay{Redis: rdb, Channel: channel, log: log}
}

// Publish serializes env and publishes it.
func (r *RedisRelay) Publish(ctx context.Context, env RelayEnvelope) error {
	payload, err := EncodeRelayEnvelope(env)
	if err != nil {
		return err
	}
	return r.Redis.Publish(ctx, r.Channel, payload).Err()
}

// Subscribe запускає слухача Redis Pub/Sub і передає кожен конверт у handle.
func (r *RedisRelay) Subscribe(ctx context.Context, handle func(RelayEnvelope)) error {
	pubsub := r.Redis.Subscribe(ctx, r.Channel)
	defer pubsub.Close()

	// Wait for the subscription to be confirmed before reporting readiness.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("relay: subscribe %s: %w", r.Channel, err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			env, err := DecodeRelayEnvelope([]byte(msg.Payload))
			if err != nil {
				r.log.Warn("relay.decode.fail", "channel", msg.Channel, "err", err)
				continue
			}
			handle(env)
		}
	}
}

// EncodeRelayEnvelope renders env for the wire.
func EncodeRelayEnvelope(env RelayEnvelope) ([]byte, error) {
	if env.Origin == "" || env.Event.Type == "" || len(env.Keys) == 0 {
		return nil, fmt.Errorf("relay: incomplete envelope")
	}
	return json.Marshal(env)
}

// DecodeRelayEnvelope parses and validates a relayed envelope.
func DecodeRelayEnvelope(raw []byte) (RelayEnvelope, error) {
	var env RelayEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return RelayEnvelope{}, fmt.Errorf("relay: decode: %w", err)
	}
	if env.Origin == "" || env.Event.Type == "" || len(env.Keys) == 0 {
		return RelayEnvelope{}, fmt.Errorf("relay: incomplete envelope")
	}
	if env.Scope != ScopeRoom && env.Scope != ScopeUsers {
		return RelayEnvelope{}, fmt.Errorf("relay: unknown scope %q", env.Scope)
	}
	return env, nil
}
