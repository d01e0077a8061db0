package pubsub

import (
	"context"

	"github.com/nugget/miopubsub/internal/decode"
	"github.com/nugget/miopubsub/internal/model"
	"github.com/nugget/miopubsub/internal/wire"
)

const metaItemID = "meta"

// MetaQuery fetches the singleton "meta" item on node (spec.md §4.6
// "Meta"). It returns a zero-value, non-nil Meta and no error if the
// node has never published one.
func (o *Ops) MetaQuery(ctx context.Context, node string) (*model.Meta, error) {
	iq, id := o.newIQ("get")
	ps := iq.Child("pubsub", nsPubsub)
	items := ps.Child("items", "")
	items.SetAttr("node", node)
	items.Child("item", "").SetAttr("id", metaItemID)

	resp, err := o.send(ctx, iq, func(s *wire.Stanza) *model.Response { return decode.DecodeMeta(s, id) })
	if err != nil {
		return nil, err
	}
	if resp.Meta == nil {
		return &model.Meta{}, nil
	}
	return resp.Meta, nil
}

// MetaMergePublish implements spec.md §4.6 "meta_merge_publish": it
// queries the existing meta, merges incoming field-by-field per the
// Merge Rules, republishes the singleton item, and — if the merge
// changed the node's kind or name — triggers
// ReferenceMetaOverwriteOnPeers so every peer's stored reference stays
// accurate.
func (o *Ops) MetaMergePublish(ctx context.Context, node string, incoming model.Meta) (model.Meta, error) {
	existing, err := o.MetaQuery(ctx, node)
	if err != nil {
		return model.Meta{}, err
	}

	merged := existing.Merge(incoming)
	if err := o.PublishItem(ctx, node, metaItemID, decode.EncodeMeta(merged)); err != nil {
		return model.Meta{}, err
	}

	if merged.Kind != existing.Kind || merged.Name != existing.Name {
		if err := o.ReferenceMetaOverwriteOnPeers(ctx, node, merged.Kind); err != nil {
			return merged, err
		}
	}
	return merged, nil
}
