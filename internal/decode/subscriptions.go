package decode

import (
	"github.com/nugget/miopubsub/internal/model"
	"github.com/nugget/miopubsub/internal/wire"
)

type subscriptionsHandler struct {
	NoOpHandler
	subs []model.Subscription
}

func (h *subscriptionsHandler) OnStart(_ *ParserState, el *wire.Stanza) {
	if el.Name != "subscription" {
		return
	}
	h.subs = append(h.subs, model.Subscription{
		JID:   el.Attr("jid"),
		Node:  el.Attr("node"),
		SubID: el.Attr("subid"),
	})
}

// DecodeSubscriptions implements spec.md §4.5's "Subscriptions"
// decoder: each <subscription> element contributes one entry.
func DecodeSubscriptions(root *wire.Stanza, id string) *model.Response {
	return withErrorCheck(root, id, func() *model.Response {
		h := &subscriptionsHandler{}
		Walk(root, h)
		return &model.Response{ID: id, Kind: model.KindSubscriptions, Subscriptions: h.subs}
	})
}

// DecodeSubscribeResult recognizes a single <subscription
// subscription="subscribed"/> confirming a subscribe request (spec.md
// §4.6 "Subscribe"). Any other subscription state is reported with
// ok=false (the Response keeps KindOk and carries the state in
// TypeAttr) so the caller can translate it.
func DecodeSubscribeResult(root *wire.Stanza, id string) (*model.Response, bool) {
	resp := withErrorCheck(root, id, func() *model.Response {
		h := &subscribeStateHandler{}
		Walk(root, h)
		return &model.Response{ID: id, Kind: model.KindOk, TypeAttr: h.state}
	})
	if resp.Kind == model.KindError {
		return resp, false
	}
	return resp, resp.TypeAttr == "subscribed"
}

type subscribeStateHandler struct {
	NoOpHandler
	state string
}

func (h *subscribeStateHandler) OnStart(_ *ParserState, el *wire.Stanza) {
	if el.Name == "subscription" {
		h.state = el.Attr("subscription")
	}
}
