package pubsub

import (
	"context"

	"github.com/nugget/miopubsub/internal/decode"
	"github.com/nugget/miopubsub/internal/model"
	"github.com/nugget/miopubsub/internal/wire"
)

// SubscriptionsQuery lists subscriptions. An empty node queries every
// subscription the caller holds across all nodes; a non-empty node
// scopes the query to that node (spec.md §4.6, §6).
func (o *Ops) SubscriptionsQuery(ctx context.Context, node string) ([]model.Subscription, error) {
	iq, id := o.newIQ("get")
	ps := iq.Child("pubsub", nsPubsub)
	subs := ps.Child("subscriptions", "")
	if node != "" {
		subs.SetAttr("node", node)
	}

	resp, err := o.send(ctx, iq, func(s *wire.Stanza) *model.Response { return decode.DecodeSubscriptions(s, id) })
	if err != nil {
		return nil, err
	}
	return resp.Subscriptions, nil
}

// Subscribe implements spec.md §4.6 and invariant I6: it first queries
// the caller's existing subscriptions; if node is already present, it
// fails with ErrAlreadySubscribed and performs no further wire I/O.
// Otherwise it sends the subscribe request and confirms the server
// returned a "subscribed" state.
func (o *Ops) Subscribe(ctx context.Context, node string) error {
	existing, err := o.SubscriptionsQuery(ctx, "")
	if err != nil {
		// spec.md §9 Open Questions: surface the first observed error
		// verbatim rather than mixing it with a later one.
		return err
	}
	for _, s := range existing {
		if s.Node == node {
			return model.ErrAlreadySubscribed
		}
	}

	iq, id := o.newIQ("set")
	ps := iq.Child("pubsub", nsPubsub)
	sub := ps.Child("subscribe", "")
	sub.SetAttr("node", node)
	sub.SetAttr("jid", o.bareSelf())

	resp, subscribed, decodeErr := o.sendSubscribe(ctx, iq, id)
	if decodeErr != nil {
		return decodeErr
	}
	if resp.IsError() {
		return resp.Error
	}
	if !subscribed {
		return model.ErrUnexpectedResponse
	}
	return nil
}

func (o *Ops) sendSubscribe(ctx context.Context, iq *wire.Stanza, id string) (*model.Response, bool, error) {
	var subscribed bool
	resp, err := o.Loop.SendBlocking(ctx, iq, func(s *wire.Stanza) *model.Response {
		resp, ok := decode.DecodeSubscribeResult(s, id)
		subscribed = ok
		return resp
	})
	return resp, subscribed, err
}

// Unsubscribe sends unsubscribe[node=N, jid=self, subid?] (spec.md
// §4.6 "Unsubscribe"). An empty subID omits the attribute, letting the
// server resolve it from jid+node alone.
func (o *Ops) Unsubscribe(ctx context.Context, node, subID string) error {
	iq, id := o.newIQ("set")
	ps := iq.Child("pubsub", nsPubsub)
	unsub := ps.Child("unsubscribe", "")
	unsub.SetAttr("node", node)
	unsub.SetAttr("jid", o.bareSelf())
	if subID != "" {
		unsub.SetAttr("subid", subID)
	}

	_, err := o.send(ctx, iq, func(s *wire.Stanza) *model.Response { return decode.DecodeOk(s, id) })
	return err
}
