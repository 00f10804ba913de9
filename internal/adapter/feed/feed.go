// Package feed implements a WebSocket-driven cache-invalidation helper.
//
// spec.md's "no real-time streaming" non-goal scopes the core: operations
// still only ever pull a fresh order book through
// account.PublicMarketView.OrderBook, on a poll loop or on demand, never by
// consuming a pushed event directly. What this package adds is an optional
// side channel an adapter can start alongside its polling: a push
// notification here does nothing but evict one entry from a
// cache.Cache[string, V], so the next poll (or the next caller) refetches
// instead of serving a value the exchange has already told us is stale.
//
// Grounded on the teacher's internal/exchange/ws.go WSFeed — same
// subscribe/resubscribe tracking, same exponential-backoff auto-reconnect
// loop (1s to 30s max), same read-deadline-triggers-reconnect shape, same
// ping keepalive — generalized from Polymarket's book/price_change/trade/
// order channel taxonomy down to a single generic invalidation hint, since
// this package's only job is telling a cache to forget a key.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	pingInterval     = 50 * time.Second
	readTimeout      = 90 * time.Second
	maxReconnectWait = 30 * time.Second
	writeTimeout     = 10 * time.Second
)

// Invalidator is satisfied by *cache.Cache[string, V] for any V: the feed
// only ever needs to forget a key, never to read or write one.
type Invalidator interface {
	Invalidate(key string)
}

// hint is the wire shape of a single invalidation push. The exchange tells
// us which key went stale; we don't care why.
type hint struct {
	Key string `json:"key"`
}

// Feed manages one WebSocket connection carrying invalidation hints for a
// set of subscribed keys (market symbols, currency codes - whatever the
// cache it drives is keyed on).
type Feed struct {
	url         string
	invalidator Invalidator
	logger      *slog.Logger

	connMu sync.Mutex
	conn   *websocket.Conn

	subscribedMu sync.RWMutex
	subscribed   map[string]bool
}

// New creates a Feed that, once Run, evicts keys from invalidator whenever
// url pushes an invalidation hint for them.
func New(url string, invalidator Invalidator, logger *slog.Logger) *Feed {
	return &Feed{
		url:         url,
		invalidator: invalidator,
		logger:      logger.With("component", "feed"),
		subscribed:  make(map[string]bool),
	}
}

// Subscribe adds keys to the set the feed asks the exchange to push
// invalidation hints for, re-sending the subscription if connected.
func (f *Feed) Subscribe(keys []string) error {
	f.subscribedMu.Lock()
	for _, k := range keys {
		f.subscribed[k] = true
	}
	f.subscribedMu.Unlock()

	return f.writeJSON(map[string]any{"op": "subscribe", "keys": keys})
}

// Unsubscribe removes keys from the tracked subscription set.
func (f *Feed) Unsubscribe(keys []string) error {
	f.subscribedMu.Lock()
	for _, k := range keys {
		delete(f.subscribed, k)
	}
	f.subscribedMu.Unlock()

	return f.writeJSON(map[string]any{"op": "unsubscribe", "keys": keys})
}

// Run connects and maintains the WebSocket connection with auto-reconnect,
// exponential backoff (1s doubling to a 30s cap), and re-subscription of
// all tracked keys on every reconnect. Blocks until ctx is cancelled.
func (f *Feed) Run(ctx context.Context) error {
	backoff := time.Second

	for {
		err := f.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		f.logger.Warn("feed disconnected, reconnecting", "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxReconnectWait {
			backoff = maxReconnectWait
		}
	}
}

// Close closes the underlying connection, if any.
func (f *Feed) Close() error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}

func (f *Feed) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()

	defer func() {
		f.connMu.Lock()
		conn.Close()
		f.conn = nil
		f.connMu.Unlock()
	}()

	f.subscribedMu.RLock()
	keys := make([]string, 0, len(f.subscribed))
	for k := range f.subscribed {
		keys = append(keys, k)
	}
	f.subscribedMu.RUnlock()
	if len(keys) > 0 {
		if err := f.writeJSON(map[string]any{"op": "subscribe", "keys": keys}); err != nil {
			return fmt.Errorf("resubscribe: %w", err)
		}
	}

	f.logger.Info("feed connected", "keys", len(keys))

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go f.pingLoop(pingCtx)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		f.dispatch(msg)
	}
}

func (f *Feed) dispatch(data []byte) {
	var h hint
	if err := json.Unmarshal(data, &h); err != nil {
		f.logger.Debug("ignoring non-json feed message", "data", string(data))
		return
	}
	if h.Key == "" {
		return
	}
	f.invalidator.Invalidate(h.Key)
}

func (f *Feed) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := f.writeMessage(websocket.TextMessage, []byte("PING")); err != nil {
				f.logger.Warn("ping failed", "error", err)
				return
			}
		}
	}
}

func (f *Feed) writeJSON(v any) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return nil
	}
	f.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return f.conn.WriteJSON(v)
}

func (f *Feed) writeMessage(msgType int, data []byte) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("feed: not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return f.conn.WriteMessage(msgType, data)
}
