// Package pubsub implements C6, the PubSub Operations layer from
// spec.md §4.6: blocking create/delete/publish/subscribe/query/
// affiliate/reference/meta/schedule calls composed out of C1-C5.
//
// Every operation here builds a stanza, hands it to the event loop's
// blocking send primitive, and translates the decoded [model.Response]
// into either a populated result or one of the typed errors from
// spec.md §7. None of it touches the network directly; internal/mio
// supplies the *connloop.Loop and addressing this package needs.
package pubsub

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/nugget/miopubsub/internal/connloop"
	"github.com/nugget/miopubsub/internal/decode"
	"github.com/nugget/miopubsub/internal/model"
	"github.com/nugget/miopubsub/internal/wire"
)

const (
	nsPubsub      = "http://jabber.org/protocol/pubsub"
	nsPubsubOwner = "http://jabber.org/protocol/pubsub#owner"
	nsDataForms   = "jabber:x:data"
	nsDiscoItems  = "http://jabber.org/protocol/disco#items"
)

// Ops is the C6 facade: everything it needs is a loop to send blocking
// requests through and the caller's own and service addresses.
type Ops struct {
	Loop          *connloop.Loop
	Self          string // full caller jid, "local@domain/resource"
	PubsubService string // "pubsub.<domain>" unless overridden
}

// New builds an Ops bound to loop, addressing pubsubService as the
// target of every iq and identifying outbound stanzas as coming from
// self.
func New(loop *connloop.Loop, self, pubsubService string) *Ops {
	return &Ops{Loop: loop, Self: self, PubsubService: pubsubService}
}

// bareSelf returns o.Self with any "/resource" suffix stripped. A
// subscription is tied to the bare jid (original_source/src/
// mio_affiliations.c connects without a resource and passes
// conn->xmpp_conn->jid straight through to the subscribe/unsubscribe
// "jid" attribute), unlike the "from" on the iq envelope, which stays
// fully resourced.
func (o *Ops) bareSelf() string {
	if local, _, ok := strings.Cut(o.Self, "/"); ok {
		return local
	}
	return o.Self
}

// newIQ builds an <iq> envelope with a fresh 36-character uuid id
// (spec.md §3 "Stanza"), returning both the stanza and its id so
// callers can register a decoder under the same key.
func (o *Ops) newIQ(kind string) (*wire.Stanza, string) {
	id := uuid.NewString()
	iq := wire.NewStanza("iq", "")
	iq.SetAttr("type", kind)
	iq.SetAttr("to", o.PubsubService)
	iq.SetAttr("from", o.Self)
	iq.SetAttr("id", id)
	return iq, id
}

// send wraps a blocking send/decode round-trip, translating a
// server-side Error payload into a plain Go error so C6 callers get
// one thing to check.
func (o *Ops) send(ctx context.Context, iq *wire.Stanza, decodeFn func(*wire.Stanza) *model.Response) (*model.Response, error) {
	resp, err := o.Loop.SendBlocking(ctx, iq, decodeFn)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return resp, resp.Error
	}
	return resp, nil
}

// dataForm builds a <x xmlns="jabber:x:data" type="submit"> carrying
// one <field var=.. ><value>..</value></field> per entry in fields, in
// the order given (spec.md §4 "Form submission").
func dataForm(fields [][2]string) *wire.Stanza {
	x := wire.NewStanza("x", nsDataForms)
	x.SetAttr("type", "submit")
	for _, kv := range fields {
		field := x.Child("field", "")
		field.SetAttr("var", kv[0])
		field.Child("value", "").Text = kv[1]
	}
	return x
}

// formTemplate builds a pubsub#node_config submission form: the hidden
// FORM_TYPE field the data-forms convention needs, followed by values.
func formTemplate(values ...[2]string) *wire.Stanza {
	fields := append([][2]string{{"FORM_TYPE", "http://jabber.org/protocol/pubsub#node_config"}}, values...)
	return dataForm(fields)
}
