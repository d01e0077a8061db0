// Package wire implements C1, the authenticated transport and stanza
// dispatcher described in spec.md §4.1. It owns the TCP+TLS stream,
// negotiates SASL PLAIN authentication, and invokes registered
// callbacks when an inbound top-level element matches a registration.
//
// The underlying XML-stream parser and TLS transport are the "assumed
// available" collaborators named in spec.md §1: this package leans on
// [encoding/xml] for token-level (start/chardata/end) reads — the SAX
// interface spec.md says the core consumes — and on mellium.im/xmpp's
// jid and dial packages for addressing and connection establishment.
package wire

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/google/uuid"
	"mellium.im/xmpp/dial"
	"mellium.im/xmpp/jid"
)

// HandlerResult tells Session whether to keep or remove a registration
// after it fires (spec.md §4.1 "Handler return discipline").
type HandlerResult int

const (
	Keep HandlerResult = iota
	Remove
)

// ElementHandler is invoked for every inbound top-level element that
// matches its registration's discriminators.
type ElementHandler func(s *Stanza) HandlerResult

// IDHandler is invoked for the first inbound element whose "id"
// attribute matches the registration; it stays registered for the
// next match only if it returns Keep.
type IDHandler func(s *Stanza) HandlerResult

// TimedHandler is invoked periodically from the event loop tick.
type TimedHandler func()

type elementReg struct {
	namespace, name, typeAttr string
	cb                        ElementHandler
}

type timedReg struct {
	period time.Duration
	next   time.Time
	cb     TimedHandler
}

// Session owns one authenticated XMPP stream. It is driven
// cooperatively by a single caller (the event loop in
// internal/connloop) via RunOnce; SendRaw is the only method safe to
// call from other goroutines, since it only ever appends to a channel.
type Session struct {
	Self   jid.JID
	Domain string
	logger *slog.Logger

	conn net.Conn
	dec  *xml.Decoder
	w    *bufio.Writer

	outbox chan string

	mu              sync.Mutex
	elementHandlers []elementReg
	idHandlers      map[string]IDHandler
	timedHandlers   []*timedReg
}

// New creates a Session that has not yet connected. A nil logger is
// replaced with [slog.Default].
func New(logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		logger:     logger,
		idHandlers: map[string]IDHandler{},
		outbox:     make(chan string, 256),
	}
}

// Connect dials the XMPP service of self's domain, completes a TLS
// handshake, and writes the stream header, a SASL PLAIN <auth> and a
// resource-bind IQ. It returns once those have been written; it does
// not read or check the server's replies to them, so a rejected
// password or failed bind is not reported here.
//
// Direct TLS (rather than STARTTLS negotiation) is assumed, matching
// spec.md §1's framing of "long-lived TCP+TLS session" — a deliberate
// simplification of full RFC 6120 stream negotiation.
func (s *Session) Connect(ctx context.Context, self jid.JID, password string) error {
	s.Self = self
	s.Domain = self.Domain().String()

	rawConn, err := dial.Dial(ctx, "tcp", self)
	if err != nil {
		return fmt.Errorf("wire: dial %s: %w", s.Domain, err)
	}

	tlsConn := tls.Client(rawConn, &tls.Config{ServerName: s.Domain, MinVersion: tls.VersionTLS12})
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		rawConn.Close()
		return fmt.Errorf("wire: tls handshake: %w", err)
	}
	s.conn = tlsConn
	s.w = bufio.NewWriter(tlsConn)
	s.dec = xml.NewDecoder(tlsConn)

	if err := s.openStream(); err != nil {
		return err
	}
	if err := s.authenticate(password); err != nil {
		return err
	}
	if err := s.openStream(); err != nil {
		return err
	}
	if err := s.bindResource(); err != nil {
		return err
	}

	s.logger.Info("wire: connected", "jid", s.Self.String())
	return nil
}

// openStream writes the opening <stream:stream> tag and resets the
// decoder; it does not read the server's response — feature
// negotiation detail below stanza level is out of this core's scope
// per spec.md §1.
func (s *Session) openStream() error {
	_, err := fmt.Fprintf(s.w, "<?xml version='1.0'?><stream:stream to='%s' version='1.0' xmlns='jabber:client' xmlns:stream='http://etherx.jabber.org/streams'>", s.Domain)
	if err != nil {
		return err
	}
	if err := s.w.Flush(); err != nil {
		return err
	}
	// Reset the decoder so it doesn't choke on an unterminated root
	// element from the previous negotiation round.
	s.dec = xml.NewDecoder(s.conn)
	return nil
}

// authenticate sends a single SASL PLAIN <auth> element; the server's
// success or failure reply is not read here.
func (s *Session) authenticate(password string) error {
	mech := sasl.NewPlainClient("", s.Self.Localpart(), password)
	_, resp, err := mech.Start()
	if err != nil {
		return fmt.Errorf("wire: sasl start: %w", err)
	}
	payload := base64.StdEncoding.EncodeToString(resp)
	if _, err := fmt.Fprintf(s.w, "<auth xmlns='urn:ietf:params:xml:ns:xmpp-sasl' mechanism='PLAIN'>%s</auth>", payload); err != nil {
		return err
	}
	return s.w.Flush()
}

// bindResource requests a server-assigned or caller-requested resource
// via the standard bind IQ.
func (s *Session) bindResource() error {
	id := newID()
	resource := s.Self.Resourcepart()
	var bindBody string
	if resource != "" {
		bindBody = fmt.Sprintf("<resource>%s</resource>", xmlEscape(resource))
	}
	stanzaText := fmt.Sprintf(
		"<iq type='set' id='%s'><bind xmlns='urn:ietf:params:xml:ns:xmpp-bind'>%s</bind></iq>",
		id, bindBody,
	)
	return s.rawWrite(stanzaText)
}

func (s *Session) rawWrite(text string) error {
	if _, err := s.w.WriteString(text); err != nil {
		return err
	}
	return s.w.Flush()
}

// SendRaw enqueues text for transmission. Safe for concurrent use; the
// actual write happens on the next RunOnce tick, avoiding a recursive
// send-path lock.
func (s *Session) SendRaw(text string) {
	s.outbox <- text
}

// RegisterElementHandler registers cb to fire on every inbound
// top-level element matching the given discriminators. At least one of
// namespace, name, typeAttr must be non-empty.
func (s *Session) RegisterElementHandler(namespace, name, typeAttr string, cb ElementHandler) error {
	if namespace == "" && name == "" && typeAttr == "" {
		return fmt.Errorf("wire: at least one discriminator required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.elementHandlers = append(s.elementHandlers, elementReg{namespace, name, typeAttr, cb})
	return nil
}

// RegisterIDHandler registers cb to fire on the first inbound element
// whose id attribute equals stanzaID; it is removed after firing unless
// cb returns Keep.
func (s *Session) RegisterIDHandler(stanzaID string, cb IDHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idHandlers[stanzaID] = cb
}

// RemoveIDHandler removes a registration without waiting for it to
// fire, used on request timeout (spec.md §4.4 step 5).
func (s *Session) RemoveIDHandler(stanzaID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.idHandlers, stanzaID)
}

// RegisterTimedHandler registers cb to fire roughly every period from
// the event loop.
func (s *Session) RegisterTimedHandler(period time.Duration, cb TimedHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timedHandlers = append(s.timedHandlers, &timedReg{period: period, next: time.Now().Add(period), cb: cb})
}

// RunOnce services one loop tick: flush pending sends, read at most one
// inbound stanza with the given timeout, fire due timed handlers. It is
// the only method internal/connloop calls directly on the network
// path.
func (s *Session) RunOnce(timeout time.Duration) error {
	if err := s.flushOutbox(); err != nil {
		return err
	}
	if err := s.readOne(timeout); err != nil && err != errNoStanza {
		return err
	}
	s.fireTimedHandlers()
	return nil
}

func (s *Session) flushOutbox() error {
	for {
		select {
		case text := <-s.outbox:
			if err := s.rawWrite(text); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

var errNoStanza = fmt.Errorf("wire: no stanza available")

// readOne reads at most one top-level element and dispatches it to
// matching handlers. A connection-level deadline bounds the read so
// RunOnce never blocks the loop for longer than timeout.
func (s *Session) readOne(timeout time.Duration) error {
	if dl, ok := s.conn.(interface{ SetReadDeadline(time.Time) error }); ok {
		dl.SetReadDeadline(time.Now().Add(timeout))
	}

	tok, err := s.dec.Token()
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return errNoStanza
		}
		if err == io.EOF {
			return io.EOF
		}
		return err
	}

	start, ok := tok.(xml.StartElement)
	if !ok {
		// Ignore stray char-data / end tokens between stanzas.
		return errNoStanza
	}

	st, err := s.readElement(start)
	if err != nil {
		return err
	}
	s.dispatch(st)
	return nil
}

// readElement recursively consumes tokens until start's matching end
// tag, building a Stanza tree. Depth tracking follows spec.md §4.5:
// push on start, pop on end.
func (s *Session) readElement(start xml.StartElement) (*Stanza, error) {
	st := NewStanza(start.Name.Local, start.Name.Space)
	for _, a := range start.Attr {
		st.SetAttr(a.Name.Local, a.Value)
	}
	for {
		tok, err := s.dec.Token()
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child, err := s.readElement(t)
			if err != nil {
				return nil, err
			}
			st.AddChild(child)
		case xml.CharData:
			st.Text += string(t)
		case xml.EndElement:
			return st, nil
		}
	}
}

// dispatch invokes registered id and element handlers. A Remove result
// deletes the registration atomically before any other handler sees
// the next element: matched registrations are spliced out of the
// table before their callbacks run, and only re-added if the callback
// asks to be kept (spec.md §4.1 "Handler return discipline").
func (s *Session) dispatch(st *Stanza) {
	id := st.ID()

	s.mu.Lock()
	idCB, hasID := s.idHandlers[id]
	if hasID {
		delete(s.idHandlers, id)
	}
	var matched, remaining []elementReg
	for _, reg := range s.elementHandlers {
		if st.Matches(reg.namespace, reg.name, reg.typeAttr) {
			matched = append(matched, reg)
		} else {
			remaining = append(remaining, reg)
		}
	}
	s.elementHandlers = remaining
	s.mu.Unlock()

	if hasID && idCB != nil {
		if idCB(st) == Keep {
			s.mu.Lock()
			s.idHandlers[id] = idCB
			s.mu.Unlock()
		}
	}

	for _, reg := range matched {
		if reg.cb(st) == Keep {
			s.mu.Lock()
			s.elementHandlers = append(s.elementHandlers, reg)
			s.mu.Unlock()
		}
	}
}

func (s *Session) fireTimedHandlers() {
	now := time.Now()
	s.mu.Lock()
	due := make([]*timedReg, 0)
	for _, t := range s.timedHandlers {
		if now.After(t.next) {
			t.next = now.Add(t.period)
			due = append(due, t)
		}
	}
	s.mu.Unlock()
	for _, t := range due {
		t.cb()
	}
}

// Close shuts down the stream.
func (s *Session) Close() error {
	if s.conn == nil {
		return nil
	}
	s.rawWrite("</stream:stream>")
	return s.conn.Close()
}

func newID() string {
	return uuid.NewString()
}

func xmlEscape(s string) string {
	var b bytes.Buffer
	xml.EscapeText(&b, []byte(s))
	return b.String()
}
