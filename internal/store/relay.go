package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/riverdock/contractdesk/internal/platform/logger"
)

// Relay mirrors one process's ChangeFeed onto Redis pub/sub and can
// republish received events into another process's ChangeFeed, so a single
// logical change feed can span the ingest process and a separate review-UI
// process. A single process never needs this: the in-process ChangeFeed is
// the default and only required transport. Grounded on
// realtime/bus/redis_bus.go's publish / subscribe-and-forward shape.
type Relay struct {
	log     *logger.Logger
	rdb     *goredis.Client
	channel string
}

// NewRelay dials Redis at addr. It returns (nil, nil) when addr is empty so
// callers can wire a Relay unconditionally and simply skip relaying when no
// Redis endpoint is configured.
func NewRelay(ctx context.Context, log *logger.Logger, addr, channel string) (*Relay, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, nil
	}
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = "contractdesk.changefeed"
	}

	rdb := goredis.NewClient(&goredis.Options{Addr: addr, DialTimeout: 5 * time.Second})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("changefeed relay: ping redis: %w", err)
	}
	return &Relay{log: log.With("component", "changefeed_relay"), rdb: rdb, channel: channel}, nil
}

// Forward reads feed's durable subscription and publishes every event to
// Redis until ctx is canceled. It uses SubscribeDurable, not Subscribe:
// relaying must never silently drop a mutation.
func (r *Relay) Forward(ctx context.Context, feed *ChangeFeed) {
	if r == nil || feed == nil {
		return
	}
	sub := feed.SubscribeDurable(64)
	defer feed.Unsubscribe(sub)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			raw, err := json.Marshal(ev)
			if err != nil {
				r.log.Warnw("marshal change event for relay", "error", err)
				continue
			}
			if err := r.rdb.Publish(ctx, r.channel, raw).Err(); err != nil {
				r.log.Warnw("publish change event to redis", "error", err)
			}
		}
	}
}

// StartReceiver subscribes to Redis and republishes every event it receives
// into feed. It returns once the subscription is confirmed live; delivery
// continues on a background goroutine until ctx is canceled.
func (r *Relay) StartReceiver(ctx context.Context, feed *ChangeFeed) error {
	if r == nil || feed == nil {
		return nil
	}
	sub := r.rdb.Subscribe(ctx, r.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("changefeed relay: subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				var ev ChangeEvent
				if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
					r.log.Warnw("bad change event payload from redis", "error", err)
					continue
				}
				feed.Publish(ev)
			}
		}
	}()
	return nil
}

// Close releases the underlying Redis client. Safe to call on a nil Relay.
func (r *Relay) Close() error {
	if r == nil || r.rdb == nil {
		return nil
	}
	return r.rdb.Close()
}
