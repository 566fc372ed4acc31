// Package redisfanout republishes hub events onto a Redis pub/sub channel
// per session, so a process that isn't hosting the driver for a session
// (e.g. an HTTP/SSE frontend) can still observe it live. Grounded on the
// teacher's registry.resultStreamManager: a Redis-backed fanout keyed by an
// id, with TTL'd channel bookkeeping, adapted from the teacher's
// mapping-then-stream indirection down to one channel name per session
// since the hub already owns session identity.
package redisfanout

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/flowcore-dev/flowcore/flow"
	"github.com/flowcore-dev/flowcore/hub"
)

// Fanout republishes events emitted by a hub.Hub onto Redis pub/sub.
type Fanout struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// New returns a Fanout publishing to channels named prefix+sessionID. ttl
// bounds how long a per-session channel's presence marker is retained; pass
// 0 to disable expiry bookkeeping.
func New(client *redis.Client, prefix string, ttl time.Duration) *Fanout {
	if prefix == "" {
		prefix = "flowcore:events:"
	}
	return &Fanout{client: client, prefix: prefix, ttl: ttl}
}

// wireEvent is the JSON envelope published to Redis.
type wireEvent struct {
	SessionID string         `json:"sessionId"`
	Position  int            `json:"position"`
	Event     flow.Event     `json:"event"`
}

// Attach registers the Fanout as a hub.Observer, republishing every emitted
// event onto Redis. Publish errors are logged by the caller's observer
// wiring contract (observers don't return errors, matching hub.Observer).
func (f *Fanout) Attach(h *hub.Hub, onError func(error)) {
	h.Observe(func(ctx context.Context, sessionID flow.SessionId, event flow.Event, position int) {
		if err := f.publish(ctx, sessionID, event, position); err != nil && onError != nil {
			onError(err)
		}
	})
}

func (f *Fanout) publish(ctx context.Context, sessionID flow.SessionId, event flow.Event, position int) error {
	payload, err := json.Marshal(wireEvent{SessionID: string(sessionID), Position: position, Event: event})
	if err != nil {
		return flow.New(flow.KindStore, "redisfanout.publish", "failed to marshal event", err)
	}

	channel := f.channelName(sessionID)
	if err := f.client.Publish(ctx, channel, payload).Err(); err != nil {
		return flow.New(flow.KindStore, "redisfanout.publish", "failed to publish to redis", err)
	}
	if f.ttl > 0 {
		f.client.Set(ctx, channel, time.Now().UnixMilli(), f.ttl)
	}
	return nil
}

// Subscribe returns a redis.PubSub subscribed to sessionID's channel, for a
// remote process to consume live events for a session it doesn't host.
func (f *Fanout) Subscribe(ctx context.Context, sessionID flow.SessionId) *redis.PubSub {
	return f.client.Subscribe(ctx, f.channelName(sessionID))
}

func (f *Fanout) channelName(sessionID flow.SessionId) string {
	return fmt.Sprintf("%s%s", f.prefix, sessionID)
}
