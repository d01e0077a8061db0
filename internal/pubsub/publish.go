package pubsub

import (
	"context"
	"strconv"

	"github.com/nugget/miopubsub/internal/decode"
	"github.com/nugget/miopubsub/internal/model"
	"github.com/nugget/miopubsub/internal/wire"
)

// PublishItem builds an iq/set with publish[node=N]/item carrying
// payload, optionally under itemID (spec.md §4.6 "Publish item"). An
// empty itemID lets the server assign one, except for the three
// reserved singleton ids ("meta", "references", "schedule") which the
// caller passes explicitly to replace the whole record.
func (o *Ops) PublishItem(ctx context.Context, node, itemID string, payload *wire.Stanza) error {
	iq, id := o.newIQ("set")
	ps := iq.Child("pubsub", nsPubsub)
	publish := ps.Child("publish", "")
	publish.SetAttr("node", node)
	item := publish.Child("item", "")
	if itemID != "" {
		item.SetAttr("id", itemID)
	}
	item.AddChild(payload)

	_, err := o.send(ctx, iq, func(s *wire.Stanza) *model.Response { return decode.DecodeOk(s, id) })
	return err
}

// ItemRecentGet requests up to maxItems recent items from node,
// optionally scoped to one itemID, and decodes the result as a
// [model.DataEvent] (spec.md §4.6, §6 "item_recent_get").
func (o *Ops) ItemRecentGet(ctx context.Context, node string, maxItems int, itemID string) (*model.DataEvent, error) {
	iq, id := o.newIQ("get")
	ps := iq.Child("pubsub", nsPubsub)
	items := ps.Child("items", "")
	items.SetAttr("node", node)
	if maxItems > 0 {
		items.SetAttr("max_items", strconv.Itoa(maxItems))
	}
	if itemID != "" {
		items.Child("item", "").SetAttr("id", itemID)
	}

	resp, err := o.send(ctx, iq, func(s *wire.Stanza) *model.Response { return decode.DecodeItems(s, id) })
	if err != nil {
		return nil, err
	}
	return resp.Data, nil
}
