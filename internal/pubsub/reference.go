// References (free-form node-to-node links distinct from pubsub's
// native collection membership, see collection.go), spec.md §4.6
// "Reference graphs".
package pubsub

import (
	"context"

	"github.com/nugget/miopubsub/internal/decode"
	"github.com/nugget/miopubsub/internal/model"
	"github.com/nugget/miopubsub/internal/wire"
)

const referencesItemID = "references"

// ReferencesQuery fetches the singleton "references" item on node
// (spec.md §4.6 "references_query").
func (o *Ops) ReferencesQuery(ctx context.Context, node string) ([]model.Reference, error) {
	iq, id := o.newIQ("get")
	ps := iq.Child("pubsub", nsPubsub)
	items := ps.Child("items", "")
	items.SetAttr("node", node)
	items.Child("item", "").SetAttr("id", referencesItemID)

	resp, err := o.send(ctx, iq, func(s *wire.Stanza) *model.Response { return decode.DecodeReferences(s, id) })
	if err != nil {
		return nil, err
	}
	return resp.References, nil
}

func (o *Ops) publishReferences(ctx context.Context, node string, refs []model.Reference) error {
	return o.PublishItem(ctx, node, referencesItemID, decode.EncodeReferences(refs))
}

// metaKindOf queries node's meta and returns its kind, treating an
// inaccessible meta record as Unknown rather than an error (spec.md
// §4.6 step 3: "record Unknown if meta is inaccessible").
func (o *Ops) metaKindOf(ctx context.Context, node string) model.MetaKind {
	m, err := o.MetaQuery(ctx, node)
	if err != nil || m == nil {
		return model.MetaUnknown
	}
	return m.Kind
}

// ReferenceChildAdd implements spec.md §4.6 "reference_child_add":
// it checks parent's (and, if alsoAtChild, child's) existing reference
// list for a duplicate or a loop, looks up both nodes' meta kinds, and
// publishes the updated reference list at parent (always) and at
// child (if alsoAtChild).
func (o *Ops) ReferenceChildAdd(ctx context.Context, parent, child string, alsoAtChild bool) error {
	parentRefs, err := o.ReferencesQuery(ctx, parent)
	if err != nil {
		return err
	}
	for _, r := range parentRefs {
		if r.NodeID != child {
			continue
		}
		switch r.Kind {
		case model.ReferenceChild:
			return model.ErrDuplicateEntry
		case model.ReferenceParent:
			return model.ErrReferenceLoop
		}
	}

	var childRefs []model.Reference
	if alsoAtChild {
		childRefs, err = o.ReferencesQuery(ctx, child)
		if err != nil {
			return err
		}
		for _, r := range childRefs {
			if r.NodeID != parent {
				continue
			}
			switch r.Kind {
			case model.ReferenceParent:
				return model.ErrDuplicateEntry
			case model.ReferenceChild:
				return model.ErrReferenceLoop
			}
		}
	}

	childMetaKind := o.metaKindOf(ctx, child)
	parentMetaKind := o.metaKindOf(ctx, parent)

	newParentRefs := append(append([]model.Reference{}, parentRefs...), model.Reference{
		Kind:               model.ReferenceChild,
		NodeID:             child,
		ReferencedMetaKind: childMetaKind,
	})
	if err := o.publishReferences(ctx, parent, newParentRefs); err != nil {
		return err
	}

	if alsoAtChild {
		newChildRefs := append(append([]model.Reference{}, childRefs...), model.Reference{
			Kind:               model.ReferenceParent,
			NodeID:             parent,
			ReferencedMetaKind: parentMetaKind,
		})
		return o.publishReferences(ctx, child, newChildRefs)
	}
	return nil
}

// ReferenceChildRemove implements spec.md §4.6
// "reference_child_remove": it removes the link from both sides,
// publishing only the sides that actually changed, and reports success
// iff at least one side was modified.
func (o *Ops) ReferenceChildRemove(ctx context.Context, parent, child string) error {
	parentRefs, err := o.ReferencesQuery(ctx, parent)
	if err != nil {
		return err
	}
	newParentRefs, parentChanged := removeRef(parentRefs, child, model.ReferenceChild)

	childRefs, err := o.ReferencesQuery(ctx, child)
	if err != nil {
		return err
	}
	newChildRefs, childChanged := removeRef(childRefs, parent, model.ReferenceParent)

	if !parentChanged && !childChanged {
		return model.ErrNotAffiliated
	}

	if parentChanged {
		if err := o.publishReferences(ctx, parent, newParentRefs); err != nil {
			return err
		}
	}
	if childChanged {
		if err := o.publishReferences(ctx, child, newChildRefs); err != nil {
			return err
		}
	}
	return nil
}

func removeRef(refs []model.Reference, nodeID string, kind model.ReferenceKind) ([]model.Reference, bool) {
	out := make([]model.Reference, 0, len(refs))
	changed := false
	for _, r := range refs {
		if r.NodeID == nodeID && r.Kind == kind {
			changed = true
			continue
		}
		out = append(out, r)
	}
	return out, changed
}

// ReferenceMetaOverwriteOnPeers implements spec.md §4.6
// "reference_meta_overwrite_on_peers": when node's meta kind changes,
// every node it references must have its stored link back to node
// rewritten with the new kind. It walks node's own reference list,
// and for each peer, finds and rewrites the entry pointing back at
// node.
func (o *Ops) ReferenceMetaOverwriteOnPeers(ctx context.Context, node string, newKind model.MetaKind) error {
	refs, err := o.ReferencesQuery(ctx, node)
	if err != nil {
		return err
	}

	for _, r := range refs {
		peerRefs, err := o.ReferencesQuery(ctx, r.NodeID)
		if err != nil {
			return err
		}
		changed := false
		for i := range peerRefs {
			if peerRefs[i].NodeID == node {
				peerRefs[i].ReferencedMetaKind = newKind
				changed = true
			}
		}
		if changed {
			if err := o.publishReferences(ctx, r.NodeID, peerRefs); err != nil {
				return err
			}
		}
	}
	return nil
}
