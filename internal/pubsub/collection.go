// Collections (pubsub's native XEP-0248 hierarchical node groups),
// distinct from the free-form references graph in reference.go (spec.md
// §4.6 "Collections (hierarchical node groups)").
package pubsub

import (
	"context"

	"github.com/nugget/miopubsub/internal/decode"
	"github.com/nugget/miopubsub/internal/model"
	"github.com/nugget/miopubsub/internal/wire"
)

// CollectionCreate creates node as a pubsub collection, optionally
// titled (spec.md §4.6 "collection_create").
func (o *Ops) CollectionCreate(ctx context.Context, node, title string) error {
	return o.CreateNode(ctx, node, NodeOptions{Title: title, Collection: true})
}

// CollectionQueryChildren lists the member nodes of a collection via
// disco#items (spec.md §4.5 "Collection-children").
func (o *Ops) CollectionQueryChildren(ctx context.Context, node string) ([]model.CollectionChild, error) {
	iq, id := o.newIQ("get")
	query := iq.Child("query", nsDiscoItems)
	query.SetAttr("node", node)

	resp, err := o.send(ctx, iq, func(s *wire.Stanza) *model.Response { return decode.DecodeCollectionChildren(s, id) })
	if err != nil {
		return nil, err
	}
	return resp.Collections, nil
}

// CollectionQueryParents reads the pubsub#collection field of node's
// own configuration form: the set of collections node belongs to
// (spec.md §4.5 "Collection-parents").
func (o *Ops) CollectionQueryParents(ctx context.Context, node string) ([]string, error) {
	iq, id := o.newIQ("get")
	ps := iq.Child("pubsub", nsPubsubOwner)
	ps.Child("configure", "").SetAttr("node", node)

	resp, err := o.send(ctx, iq, func(s *wire.Stanza) *model.Response { return decode.DecodeCollectionParents(s, id) })
	if err != nil {
		return nil, err
	}
	return resp.CollectionParents, nil
}

// setChildrenConfig republishes node's pubsub#children configuration
// field with the given child node list.
func (o *Ops) setChildrenConfig(ctx context.Context, node string, children []string) error {
	return o.submitConfigure(ctx, node, "pubsub#children", children)
}

// setCollectionConfig republishes node's pubsub#collection
// configuration field with the given parent-collection list.
func (o *Ops) setCollectionConfig(ctx context.Context, node string, parents []string) error {
	return o.submitConfigure(ctx, node, "pubsub#collection", parents)
}

func (o *Ops) submitConfigure(ctx context.Context, node, fieldVar string, values []string) error {
	iq, id := o.newIQ("set")
	ps := iq.Child("pubsub", nsPubsubOwner)
	configure := ps.Child("configure", "")
	configure.SetAttr("node", node)

	x := wire.NewStanza("x", nsDataForms)
	x.SetAttr("type", "submit")
	ftField := x.Child("field", "")
	ftField.SetAttr("var", "FORM_TYPE")
	ftField.Child("value", "").Text = "http://jabber.org/protocol/pubsub#node_config"
	field := x.Child("field", "")
	field.SetAttr("var", fieldVar)
	for _, v := range values {
		field.Child("value", "").Text = v
	}
	configure.AddChild(x)

	_, err := o.send(ctx, iq, func(s *wire.Stanza) *model.Response { return decode.DecodeOk(s, id) })
	return err
}

// CollectionAddChild links child under parent: it reads both current
// membership lists, appends the new link on each side (failing
// ErrDuplicateEntry if it's already present), and republishes both
// configurations (spec.md §4.6 "collection_add_child").
func (o *Ops) CollectionAddChild(ctx context.Context, parent, child string) error {
	children, err := o.CollectionQueryChildren(ctx, parent)
	if err != nil {
		return err
	}
	for _, c := range children {
		if c.Node == child {
			return model.ErrDuplicateEntry
		}
	}

	parents, err := o.CollectionQueryParents(ctx, child)
	if err != nil {
		return err
	}
	for _, p := range parents {
		if p == parent {
			return model.ErrDuplicateEntry
		}
	}

	childNodes := make([]string, 0, len(children)+1)
	for _, c := range children {
		childNodes = append(childNodes, c.Node)
	}
	childNodes = append(childNodes, child)
	if err := o.setChildrenConfig(ctx, parent, childNodes); err != nil {
		return err
	}

	parentNodes := append(append([]string{}, parents...), parent)
	return o.setCollectionConfig(ctx, child, parentNodes)
}

// CollectionRemoveChild unlinks child from parent on both sides. Both
// sides must already reference each other; if either does not, it
// fails ErrNotAffiliated with no writes at all (spec.md §4.6
// "collection_remove_child").
func (o *Ops) CollectionRemoveChild(ctx context.Context, parent, child string) error {
	children, err := o.CollectionQueryChildren(ctx, parent)
	if err != nil {
		return err
	}
	parentHasChild := false
	remainingChildren := make([]string, 0, len(children))
	for _, c := range children {
		if c.Node == child {
			parentHasChild = true
			continue
		}
		remainingChildren = append(remainingChildren, c.Node)
	}

	parents, err := o.CollectionQueryParents(ctx, child)
	if err != nil {
		return err
	}
	childHasParent := false
	remainingParents := make([]string, 0, len(parents))
	for _, p := range parents {
		if p == parent {
			childHasParent = true
			continue
		}
		remainingParents = append(remainingParents, p)
	}

	if !parentHasChild || !childHasParent {
		return model.ErrNotAffiliated
	}

	if err := o.setChildrenConfig(ctx, parent, remainingChildren); err != nil {
		return err
	}
	return o.setCollectionConfig(ctx, child, remainingParents)
}
