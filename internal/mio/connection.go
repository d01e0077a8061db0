// Package mio is the top-level façade named in spec.md §3 "Connection":
// it bundles the wire session, request table, notification queue, and
// presence state behind the language-neutral library surface of
// spec.md §6, wiring C1 through C6 together for a caller that just
// wants to connect and call blocking pubsub operations.
package mio

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nugget/miopubsub/internal/config"
	"github.com/nugget/miopubsub/internal/connloop"
	"github.com/nugget/miopubsub/internal/connwatch"
	"github.com/nugget/miopubsub/internal/decode"
	"github.com/nugget/miopubsub/internal/model"
	"github.com/nugget/miopubsub/internal/pubsub"
	"github.com/nugget/miopubsub/internal/wire"
	"mellium.im/xmpp/jid"
)

// Presence is the connection's own availability, one of the three
// values spec.md §3 names on the Connection data model.
type Presence int

const (
	PresenceUnknown Presence = iota
	PresencePresent
	PresenceUnavailable
)

// Event is delivered to the on_event callback passed to Connect,
// reporting connection-state transitions (spec.md §4.1 "connect(jid,
// password, on_event)").
type Event int

const (
	EventConnected Event = iota
	EventDisconnected
	EventConnectFailed
	EventReconnected
)

// String returns the human-readable event name.
func (e Event) String() string {
	switch e {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventConnectFailed:
		return "connect-failed"
	case EventReconnected:
		return "reconnected"
	default:
		return "unknown"
	}
}

// EventFunc receives connection lifecycle events.
type EventFunc func(Event)

const nsEventItems = "http://jabber.org/protocol/pubsub#event"

// Connection is the process-wide-but-not-singleton object spec.md §3
// describes: callers create one, connect it, issue blocking pubsub
// operations against it, and destroy it when done. It is safe for
// concurrent use by multiple caller goroutines; exactly one dedicated
// event-loop goroutine drives the wire session underneath it.
type Connection struct {
	logger *slog.Logger
	cfg    *config.Config

	session *wire.Session
	loop    *connloop.Loop
	ops     *pubsub.Ops
	watcher *connwatch.Watcher

	mu       sync.Mutex
	self     jid.JID
	password string
	presence Presence
	onEvent  EventFunc
}

// NewConnection builds a Connection from cfg, replacing zero-value
// tunables with the spec.md §6 defaults. A nil logger falls back to
// [slog.Default]; LogLevel lives on the connection per §9's "process-
// wide log level" redesign note, never a package global.
func NewConnection(cfg *config.Config, logger *slog.Logger) *Connection {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}

	session := wire.New(logger)
	loop := connloop.New(session, connloop.Config{
		EventLoopTimeout:  cfg.EventLoopTimeout(),
		ReconnectBackoff:  cfg.ReconnectBackoff(),
		ReconnectMax:      cfg.ReconnectMax,
		SendRetries:       cfg.SendRetries,
		RequestTimeout:    cfg.RequestTimeout(),
		KeepaliveInterval: cfg.KeepaliveInterval(),
		NotifyQueueMax:    cfg.NotifyQueueMax,
	}, logger).WithMaxOpenRequests(cfg.MaxOpenRequests)

	return &Connection{
		logger:   logger,
		cfg:      cfg,
		session:  session,
		loop:     loop,
		presence: PresenceUnknown,
	}
}

// Connect implements spec.md §4.1/§6 "connect(jid, password, on_event)":
// it parses jidStr, derives the pubsub.<domain> service address (or
// honors cfg.PubsubService if set), registers the items-received
// notification handler, and blocks until the stream is live or the
// initial attempt fails.
func (c *Connection) Connect(ctx context.Context, jidStr, password string, onEvent EventFunc) error {
	self, err := jid.Parse(jidStr)
	if err != nil {
		return fmt.Errorf("mio: %w: %v", model.ErrInvalidJID, err)
	}

	c.mu.Lock()
	c.self = self
	c.password = password
	c.onEvent = onEvent
	c.mu.Unlock()

	service := c.cfg.PubsubService
	if service == "" {
		service = "pubsub." + self.Domain().String()
	}
	c.ops = pubsub.New(c.loop, self.String(), service)

	c.session.RegisterElementHandler("", "message", "", func(s *wire.Stanza) wire.HandlerResult {
		if s.Find("event") == nil && !hasPubsubEventChild(s) {
			return wire.Keep
		}
		resp := decode.DecodeItems(s, s.ID())
		if resp.Kind == model.KindData {
			c.loop.Notifications().Enqueue(resp)
		}
		return wire.Keep
	})

	c.loop.OnAuthenticated = func(reconnected bool) {
		c.mu.Lock()
		presence := c.presence
		c.mu.Unlock()

		if reconnected {
			if c.onEvent != nil {
				c.onEvent(EventReconnected)
			}
			if presence == PresencePresent {
				c.sendPresence()
			}
			return
		}
		if c.onEvent != nil {
			c.onEvent(EventConnected)
		}
	}

	if err := c.loop.Connect(ctx, self, password); err != nil {
		if onEvent != nil {
			onEvent(EventConnectFailed)
		}
		return err
	}
	return nil
}

// hasPubsubEventChild reports whether s carries an <event
// xmlns="...#event"> child, the wrapper the server places unsolicited
// item notifications in.
func hasPubsubEventChild(s *wire.Stanza) bool {
	for _, c := range s.Children {
		if c.Name == "event" && c.Namespace == nsEventItems {
			return true
		}
		if hasPubsubEventChild(c) {
			return true
		}
	}
	return false
}

func (c *Connection) sendPresence() {
	c.session.SendRaw("<presence/>")
}

// Reconnect forces a fresh connection attempt after the event loop has
// given up entirely (State() == Disconnected), per spec.md §6
// "reconnect()". It does not interfere with internal/connloop's own
// in-session retry logic, which already runs automatically while a
// session is live.
func (c *Connection) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	self, password := c.self, c.password
	c.mu.Unlock()
	return c.loop.Connect(ctx, self, password)
}

// WatchAndReconnect starts a background [connwatch.Watcher] that keeps
// attempting Reconnect with exponential backoff once the loop has
// settled into Disconnected, so a caller that left StartListening
// doesn't have to poll Reconnect itself after a prolonged outage (see
// internal/connwatch's package doc). Call Stop (or cancel ctx) to
// halt it.
func (c *Connection) WatchAndReconnect(ctx context.Context) {
	c.watcher = connwatch.Start(ctx, connwatch.Config{
		Logger: c.logger,
		Probe: func(probeCtx context.Context) error {
			if c.loop.State() != connloop.Disconnected {
				return nil
			}
			return c.Reconnect(probeCtx)
		},
		OnUp: func() {
			if c.onEvent != nil {
				c.onEvent(EventReconnected)
			}
		},
	})
}

// Disconnect halts the event loop and closes the transport. The
// Connection may be reused afterward via Connect.
func (c *Connection) Disconnect() {
	if c.watcher != nil {
		c.watcher.Stop()
		c.watcher = nil
	}
	c.loop.Stop()
	c.mu.Lock()
	c.presence = PresenceUnavailable
	c.mu.Unlock()
	if c.onEvent != nil {
		c.onEvent(EventDisconnected)
	}
}

// Free releases the connection's resources. Safe to call more than
// once; idiomatic Go has no manual refcounting (spec.md §9 "Manual
// allocation & cyclic struct graphs"), so this is Disconnect plus
// clearing the notification queue.
func (c *Connection) Free() {
	c.Disconnect()
	c.loop.NotificationsClear()
}

// StartListening marks the connection as wanting unsolicited item
// notifications, sending presence immediately if already connected
// (spec.md §6 "start_listening").
func (c *Connection) StartListening() {
	c.mu.Lock()
	c.presence = PresencePresent
	c.mu.Unlock()
	c.loop.StartListening()
	if c.loop.State() == connloop.Authenticated {
		c.sendPresence()
	}
}

// StopListening clears the listening flag and marks presence
// unavailable (spec.md §6 "stop_listening").
func (c *Connection) StopListening() {
	c.mu.Lock()
	c.presence = PresenceUnavailable
	c.mu.Unlock()
	c.loop.StopListening()
}

// Presence returns the connection's current presence state.
func (c *Connection) Presence() Presence {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.presence
}

// ReceiveNotification implements spec.md §6
// "receive_notification(out response)": return a buffered
// notification immediately, else block up to timeout.
func (c *Connection) ReceiveNotification(timeout time.Duration) (*model.Response, error) {
	return c.loop.ReceiveNotification(timeout)
}

// NotificationsClear drains the notification queue without delivering
// its entries.
func (c *Connection) NotificationsClear() {
	c.loop.NotificationsClear()
}

// State returns the underlying event loop's connection state, mostly
// useful for tests and status reporting.
func (c *Connection) State() connloop.State {
	return c.loop.State()
}

// Logger returns the connection's own log level / handler, never a
// package-global (spec.md §9).
func (c *Connection) Logger() *slog.Logger {
	return c.logger
}
