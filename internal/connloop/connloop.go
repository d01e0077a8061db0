// Package connloop implements C4, the event loop and reconnect
// supervisor described in spec.md §4.4: a single dedicated worker
// drives the wire session cooperatively, recovers in-flight requests
// across reconnects, and exposes the blocking/non-blocking send
// primitives C6 builds on.
//
// Grounded on internal/connwatch's state-transition/backoff idiom,
// adapted here to spec.md's five-state connection machine and the
// request/response correlation it must drive.
package connloop

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nugget/miopubsub/internal/model"
	"github.com/nugget/miopubsub/internal/notifyqueue"
	"github.com/nugget/miopubsub/internal/reqtable"
	"github.com/nugget/miopubsub/internal/wire"
	"mellium.im/xmpp/jid"
)

// State is one of spec.md §4.4's five connection states.
type State int

const (
	Disconnected State = iota
	Connecting
	Authenticated
	Draining
	Reconnecting
)

// String names a State for logging.
func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Authenticated:
		return "authenticated"
	case Draining:
		return "draining"
	case Reconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// Transport is the subset of [wire.Session]'s contract the loop
// drives. It's expressed as an interface so tests can substitute a
// fake transport without opening a real TCP+TLS stream.
type Transport interface {
	Connect(ctx context.Context, self jid.JID, password string) error
	SendRaw(text string)
	RegisterElementHandler(namespace, name, typeAttr string, cb wire.ElementHandler) error
	RegisterIDHandler(stanzaID string, cb wire.IDHandler)
	RemoveIDHandler(stanzaID string)
	RegisterTimedHandler(period time.Duration, cb wire.TimedHandler)
	RunOnce(timeout time.Duration) error
	Close() error
}

// Config carries the §6 tunables relevant to the loop.
type Config struct {
	EventLoopTimeout  time.Duration
	ReconnectBackoff  time.Duration
	ReconnectMax      int // spec.md §9 Open Questions: 0 here means "retry forever", matching the source; callers should prefer a finite config.Default() value
	SendRetries       int
	RequestTimeout    time.Duration
	KeepaliveInterval time.Duration
	NotifyQueueMax    int
}

// Loop drives one [Transport] on a dedicated goroutine and owns the
// request table / notification queue it correlates against.
type Loop struct {
	transport Transport
	cfg       Config
	logger    *slog.Logger

	reqs    *reqtable.Table
	notifyQ *notifyqueue.Queue

	// OnAuthenticated fires whenever the loop enters Authenticated,
	// including after a reconnect; the facade (internal/mio) uses it to
	// re-issue presence when previously listening (spec.md §4.4's
	// Connecting->Authenticated action list).
	OnAuthenticated func(reconnected bool)

	sendPath sync.Mutex // held only for the duration of one RunOnce tick

	mu           sync.Mutex
	state        State
	stateChanged chan struct{} // closed and replaced on every state change; the idiomatic Go stand-in for a broadcast condvar
	hasConnected bool
	listening    bool

	self     jid.JID
	password string

	stopCh     chan struct{}
	sendSignal chan struct{}
	stopped    chan struct{}
}

// notificationsID is the fixed request-table key receive_notification
// waits under (spec.md §4.3, §4.4).
const notificationsID = "notifications"

// New builds a Loop around transport, with its own request table and
// notification queue sized per cfg.
func New(transport Transport, cfg Config, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.NotifyQueueMax < 1 {
		cfg.NotifyQueueMax = 100
	}
	maxOpen := 100
	l := &Loop{
		transport:    transport,
		cfg:          cfg,
		logger:       logger,
		reqs:         reqtable.New(maxOpen),
		stateChanged: make(chan struct{}),
		sendSignal:   make(chan struct{}, 1),
	}
	l.notifyQ = notifyqueue.New(cfg.NotifyQueueMax, func() {
		l.reqs.Signal(notificationsID, nil)
	})
	return l
}

// WithMaxOpenRequests rebuilds the request table with the given
// concurrency bound; call before Connect.
func (l *Loop) WithMaxOpenRequests(max int) *Loop {
	l.reqs = reqtable.New(max)
	return l
}

// Requests returns the loop's request table, for the decode/dispatch
// wiring internal/mio installs on connect.
func (l *Loop) Requests() *reqtable.Table { return l.reqs }

// Notifications returns the loop's notification queue.
func (l *Loop) Notifications() *notifyqueue.Queue { return l.notifyQ }

// Transport exposes the underlying transport for registering the
// domain-level element handlers (items push, etc.) that internal/mio
// wires in.
func (l *Loop) Transport() Transport { return l.transport }

// State returns the current connection state.
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	l.state = s
	old := l.stateChanged
	l.stateChanged = make(chan struct{})
	l.mu.Unlock()
	close(old)
	l.logger.Debug("connloop: state", "state", s.String())
}

func (l *Loop) snapshot() (State, <-chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state, l.stateChanged
}

// waitForState blocks until the loop reaches want or timeout elapses,
// returning whether it did. This is the "wait on conn-cond" primitive
// of spec.md §4.4.
func (l *Loop) waitForState(want State, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		state, changed := l.snapshot()
		if state == want {
			return true
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false
		}
		select {
		case <-changed:
		case <-time.After(remaining):
			return l.State() == want
		}
	}
}

// Connect performs the initial connection (spec.md §4.1 connect / §4.4
// Disconnected->Connecting->Authenticated) and starts the dedicated
// event-loop goroutine.
func (l *Loop) Connect(ctx context.Context, self jid.JID, password string) error {
	l.self = self
	l.password = password

	l.setState(Connecting)
	if err := l.transport.Connect(ctx, self, password); err != nil {
		l.setState(Disconnected)
		return fmt.Errorf("connloop: %w: %v", model.ErrConnection, err)
	}
	l.mu.Lock()
	l.hasConnected = true
	l.mu.Unlock()
	l.setState(Authenticated)

	l.stopCh = make(chan struct{})
	l.stopped = make(chan struct{})

	if l.cfg.KeepaliveInterval > 0 {
		l.transport.RegisterTimedHandler(l.cfg.KeepaliveInterval, func() {
			l.transport.SendRaw(" ")
		})
	}

	if l.OnAuthenticated != nil {
		l.OnAuthenticated(false)
	}

	go l.run()
	return nil
}

// Stop halts the event loop and closes the transport.
func (l *Loop) Stop() {
	l.mu.Lock()
	stopCh := l.stopCh
	l.mu.Unlock()
	if stopCh == nil {
		return
	}
	select {
	case <-stopCh:
		// already stopped
	default:
		close(stopCh)
	}
	if l.stopped != nil {
		<-l.stopped
	}
	l.transport.Close()
	l.setState(Disconnected)
}

// run is the single dedicated worker goroutine (spec.md §4.4
// "Scheduling model").
func (l *Loop) run() {
	defer close(l.stopped)
	retries := 0

	for {
		select {
		case <-l.stopCh:
			return
		default:
		}

		l.sendPath.Lock()
		err := l.transport.RunOnce(l.cfg.EventLoopTimeout)
		l.sendPath.Unlock()

		if err != nil {
			l.logger.Warn("connloop: transport error, reconnecting", "error", err)
			if !l.reconnect(&retries) {
				return
			}
			continue
		}

		select {
		case <-l.sendSignal:
		case <-time.After(l.cfg.EventLoopTimeout):
		case <-l.stopCh:
			return
		}
	}
}

// reconnect drives the Authenticated->Reconnecting->Connecting cycle
// from spec.md §4.4's state table, sleeping ReconnectBackoff between
// attempts and reconstructing the session while preserving its
// handler tables and outbox (automatic here: [wire.Session].Connect
// never clears those fields, so reusing the same Transport value
// across reconnects satisfies the "preserve queued sends, handler
// tables, and timed handlers" requirement without extra plumbing).
func (l *Loop) reconnect(retries *int) bool {
	l.setState(Reconnecting)
	for {
		select {
		case <-l.stopCh:
			return false
		default:
		}

		*retries++
		if l.cfg.ReconnectMax > 0 && *retries > l.cfg.ReconnectMax {
			l.logger.Error("connloop: reconnect attempts exhausted", "retries", *retries)
			l.setState(Disconnected)
			return false
		}

		if !sleepOrStop(l.cfg.ReconnectBackoff, l.stopCh) {
			return false
		}

		l.setState(Connecting)
		ctx, cancel := context.WithTimeout(context.Background(), l.cfg.ReconnectBackoff+5*time.Second)
		err := l.transport.Connect(ctx, l.self, l.password)
		cancel()
		if err != nil {
			l.logger.Warn("connloop: reconnect attempt failed", "attempt", *retries, "error", err)
			continue
		}

		*retries = 0
		l.setState(Authenticated)
		if l.OnAuthenticated != nil {
			l.OnAuthenticated(true)
		}
		return true
	}
}

func sleepOrStop(d time.Duration, stop <-chan struct{}) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-stop:
		return false
	}
}

// nudgeSend wakes the loop promptly instead of waiting out a full
// EventLoopTimeout tick, the condvar-signal step of spec.md §4.4's
// non-blocking send.
func (l *Loop) nudgeSend() {
	select {
	case l.sendSignal <- struct{}{}:
	default:
	}
}

// SendBlocking implements spec.md §4.4's blocking send: it reserves a
// request-table permit (blocking rather than failing fast, per §8's
// "never drops the request silently"), registers a one-shot id
// handler that decodes the reply, retries the raw send across
// reconnect windows, and waits up to RequestTimeout for completion.
func (l *Loop) SendBlocking(ctx context.Context, stanza *wire.Stanza, decode func(*wire.Stanza) *model.Response) (*model.Response, error) {
	id := stanza.ID()
	if id == "" {
		return nil, fmt.Errorf("connloop: %w: stanza has no id", model.ErrNullStanza)
	}

	req, err := l.reqs.AddBlocking(id, reqtable.ByID)
	if err != nil && err != reqtable.ErrDuplicateID {
		return nil, err
	}
	defer l.reqs.Remove(id)

	l.transport.RegisterIDHandler(id, func(s *wire.Stanza) wire.HandlerResult {
		req.Signal(decode(s))
		return wire.Remove
	})

	text, err := stanza.Marshal()
	if err != nil {
		l.transport.RemoveIDHandler(id)
		return nil, err
	}

	sent := false
	for attempt := 0; attempt < l.cfg.SendRetries; attempt++ {
		if l.State() == Authenticated {
			l.transport.SendRaw(text)
			l.nudgeSend()
			sent = true
			break
		}
		if !l.waitForState(Authenticated, l.cfg.ReconnectBackoff) {
			continue
		}
	}
	if !sent {
		l.transport.RemoveIDHandler(id)
		return nil, model.ErrDisconnected
	}

	completed := req.Wait(ctxOrTimer(ctx, l.cfg.RequestTimeout))
	if !completed {
		l.transport.RemoveIDHandler(id)
		return nil, model.ErrTimeout
	}
	return req.Result, nil
}

func ctxOrTimer(ctx context.Context, d time.Duration) <-chan struct{} {
	out := make(chan struct{})
	timer := time.NewTimer(d)
	go func() {
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
		close(out)
	}()
	return out
}

// StartListening marks the connection as wanting unsolicited item
// notifications delivered; on the next (re)connect the facade's
// OnAuthenticated hook re-issues presence accordingly.
func (l *Loop) StartListening() {
	l.mu.Lock()
	l.listening = true
	l.mu.Unlock()
}

// StopListening clears the listening flag.
func (l *Loop) StopListening() {
	l.mu.Lock()
	l.listening = false
	l.mu.Unlock()
}

// Listening reports whether StartListening is in effect.
func (l *Loop) Listening() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.listening
}

// ReceiveNotification implements the receive_notification contract of
// spec.md §6: return a buffered notification immediately if one is
// queued, else block up to timeout for the next one to arrive.
func (l *Loop) ReceiveNotification(timeout time.Duration) (*model.Response, error) {
	if resp := l.notifyQ.Dequeue(); resp != nil {
		return resp, nil
	}
	if !l.Listening() {
		return nil, model.ErrUnexpectedResponse
	}

	req, err := l.reqs.Add(notificationsID, reqtable.ByMatch)
	if err != nil && err != reqtable.ErrDuplicateID {
		return nil, err
	}
	defer l.reqs.Remove(notificationsID)

	deadline := time.Now().Add(timeout)
	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	defer cancel()

	if !req.Wait(ctxOrTimer(ctx, timeout)) {
		return nil, model.ErrTimeout
	}
	if resp := l.notifyQ.Dequeue(); resp != nil {
		return resp, nil
	}
	return nil, model.ErrNoResponse
}

// NotificationsClear drains the notification queue without delivering
// its entries.
func (l *Loop) NotificationsClear() {
	l.notifyQ.Clear()
}

// HasConnected reports whether the loop has ever reached Authenticated
// since creation, used by the Connecting->Authenticated action list in
// spec.md §4.4 ("mark has_connected").
func (l *Loop) HasConnected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hasConnected
}
