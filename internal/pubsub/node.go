package pubsub

import (
	"context"

	"github.com/nugget/miopubsub/internal/decode"
	"github.com/nugget/miopubsub/internal/model"
	"github.com/nugget/miopubsub/internal/wire"
)

// NodeOptions carries the optional configuration fields create_node
// may submit (spec.md §4.6 "Create node").
type NodeOptions struct {
	Title       string
	AccessModel string
	Collection  bool // node-type=collection, for CollectionCreate
}

// CreateNode builds an iq/set with pubsub/create[node=N] and a
// configure/x form carrying pubsub#max_items=500 plus any optional
// fields in opts (spec.md §4.6 "Create node").
func (o *Ops) CreateNode(ctx context.Context, node string, opts NodeOptions) error {
	iq, id := o.newIQ("set")
	ps := iq.Child("pubsub", nsPubsub)
	ps.Child("create", "").SetAttr("node", node)

	fields := [][2]string{{"pubsub#max_items", "500"}}
	if opts.Title != "" {
		fields = append(fields, [2]string{"pubsub#title", opts.Title})
	}
	if opts.AccessModel != "" {
		fields = append(fields, [2]string{"pubsub#access_model", opts.AccessModel})
	}
	if opts.Collection {
		fields = append(fields, [2]string{"pubsub#node_type", "collection"})
	}
	ps.Child("configure", "").AddChild(formTemplate(fields...))

	_, err := o.send(ctx, iq, func(s *wire.Stanza) *model.Response { return decode.DecodeOk(s, id) })
	return err
}

// DeleteNode builds an iq/set in the pubsub#owner namespace carrying
// delete[node=N] (spec.md §4.6 "Delete node").
func (o *Ops) DeleteNode(ctx context.Context, node string) error {
	iq, id := o.newIQ("set")
	ps := iq.Child("pubsub", nsPubsubOwner)
	ps.Child("delete", "").SetAttr("node", node)

	_, err := o.send(ctx, iq, func(s *wire.Stanza) *model.Response { return decode.DecodeOk(s, id) })
	return err
}
