package mio

import (
	"context"

	"github.com/nugget/miopubsub/internal/model"
	"github.com/nugget/miopubsub/internal/pubsub"
	"github.com/nugget/miopubsub/internal/wire"
)

// These methods are thin delegations onto internal/pubsub.Ops, giving
// callers the full spec.md §6 operation surface directly off
// Connection rather than requiring them to reach into an unexported
// field. The facade's only job here is addressing (Ops is built once,
// in Connect) and translating "not connected yet" into a clear error.

func (c *Connection) opsOrErr() (*pubsub.Ops, error) {
	if c.ops == nil {
		return nil, model.ErrEventLoopNotStarted
	}
	return c.ops, nil
}

// CreateNode implements spec.md §4.6 "create_node".
func (c *Connection) CreateNode(ctx context.Context, node string, opts pubsub.NodeOptions) error {
	o, err := c.opsOrErr()
	if err != nil {
		return err
	}
	return o.CreateNode(ctx, node, opts)
}

// DeleteNode implements spec.md §4.6 "delete_node".
func (c *Connection) DeleteNode(ctx context.Context, node string) error {
	o, err := c.opsOrErr()
	if err != nil {
		return err
	}
	return o.DeleteNode(ctx, node)
}

// PublishItem implements spec.md §4.6 "publish_item".
func (c *Connection) PublishItem(ctx context.Context, node, itemID string, payload *wire.Stanza) error {
	o, err := c.opsOrErr()
	if err != nil {
		return err
	}
	return o.PublishItem(ctx, node, itemID, payload)
}

// ItemRecentGet implements spec.md §4.6 "item_recent_get".
func (c *Connection) ItemRecentGet(ctx context.Context, node string, maxItems int, itemID string) (*model.DataEvent, error) {
	o, err := c.opsOrErr()
	if err != nil {
		return nil, err
	}
	return o.ItemRecentGet(ctx, node, maxItems, itemID)
}

// SubscriptionsQuery implements spec.md §4.6 "subscriptions_query".
func (c *Connection) SubscriptionsQuery(ctx context.Context, node string) ([]model.Subscription, error) {
	o, err := c.opsOrErr()
	if err != nil {
		return nil, err
	}
	return o.SubscriptionsQuery(ctx, node)
}

// Subscribe implements spec.md §4.6 "subscribe" (invariant I6:
// idempotent, returns ErrAlreadySubscribed rather than re-subscribing).
func (c *Connection) Subscribe(ctx context.Context, node string) error {
	o, err := c.opsOrErr()
	if err != nil {
		return err
	}
	return o.Subscribe(ctx, node)
}

// Unsubscribe implements spec.md §4.6 "unsubscribe".
func (c *Connection) Unsubscribe(ctx context.Context, node, subID string) error {
	o, err := c.opsOrErr()
	if err != nil {
		return err
	}
	return o.Unsubscribe(ctx, node, subID)
}

// AclAffiliationsQuery implements spec.md §4.6 "acl_affiliations_query".
func (c *Connection) AclAffiliationsQuery(ctx context.Context, node string) ([]model.Affiliation, error) {
	o, err := c.opsOrErr()
	if err != nil {
		return nil, err
	}
	return o.AclAffiliationsQuery(ctx, node)
}

// AclAffiliationSet implements spec.md §4.6 "acl_affiliation_set".
func (c *Connection) AclAffiliationSet(ctx context.Context, node, jidStr string, kind model.AffiliationKind) error {
	o, err := c.opsOrErr()
	if err != nil {
		return err
	}
	return o.AclAffiliationSet(ctx, node, jidStr, kind)
}

// CollectionCreate implements spec.md §4.6 "collection_create".
func (c *Connection) CollectionCreate(ctx context.Context, node, title string) error {
	o, err := c.opsOrErr()
	if err != nil {
		return err
	}
	return o.CollectionCreate(ctx, node, title)
}

// CollectionAddChild implements spec.md §4.6 "collection_add_child".
func (c *Connection) CollectionAddChild(ctx context.Context, parent, child string) error {
	o, err := c.opsOrErr()
	if err != nil {
		return err
	}
	return o.CollectionAddChild(ctx, parent, child)
}

// CollectionRemoveChild implements spec.md §4.6 "collection_remove_child".
func (c *Connection) CollectionRemoveChild(ctx context.Context, parent, child string) error {
	o, err := c.opsOrErr()
	if err != nil {
		return err
	}
	return o.CollectionRemoveChild(ctx, parent, child)
}

// CollectionQueryChildren implements spec.md §4.6 "collection_query_children".
func (c *Connection) CollectionQueryChildren(ctx context.Context, node string) ([]model.CollectionChild, error) {
	o, err := c.opsOrErr()
	if err != nil {
		return nil, err
	}
	return o.CollectionQueryChildren(ctx, node)
}

// CollectionQueryParents implements spec.md §4.6 "collection_query_parents".
func (c *Connection) CollectionQueryParents(ctx context.Context, node string) ([]string, error) {
	o, err := c.opsOrErr()
	if err != nil {
		return nil, err
	}
	return o.CollectionQueryParents(ctx, node)
}

// MetaQuery implements spec.md §4.6 "meta_query".
func (c *Connection) MetaQuery(ctx context.Context, node string) (*model.Meta, error) {
	o, err := c.opsOrErr()
	if err != nil {
		return nil, err
	}
	return o.MetaQuery(ctx, node)
}

// MetaMergePublish implements spec.md §4.6 "meta_merge_publish".
func (c *Connection) MetaMergePublish(ctx context.Context, node string, incoming model.Meta) (model.Meta, error) {
	o, err := c.opsOrErr()
	if err != nil {
		return model.Meta{}, err
	}
	return o.MetaMergePublish(ctx, node, incoming)
}

// ScheduleQuery implements spec.md §4.6 "schedule_query".
func (c *Connection) ScheduleQuery(ctx context.Context, node string) ([]model.ScheduleEvent, error) {
	o, err := c.opsOrErr()
	if err != nil {
		return nil, err
	}
	return o.ScheduleQuery(ctx, node)
}

// ScheduleMerge implements spec.md §4.6 "schedule_merge" (invariant I4:
// ids renumbered contiguous after merge).
func (c *Connection) ScheduleMerge(ctx context.Context, node string, incoming []model.ScheduleEvent) ([]model.ScheduleEvent, error) {
	o, err := c.opsOrErr()
	if err != nil {
		return nil, err
	}
	return o.ScheduleMerge(ctx, node, incoming)
}

// ScheduleRemove implements spec.md §4.6 "schedule_remove".
func (c *Connection) ScheduleRemove(ctx context.Context, node string, eventID int) ([]model.ScheduleEvent, error) {
	o, err := c.opsOrErr()
	if err != nil {
		return nil, err
	}
	return o.ScheduleRemove(ctx, node, eventID)
}

// ReferencesQuery implements spec.md §4.6 "references_query".
func (c *Connection) ReferencesQuery(ctx context.Context, node string) ([]model.Reference, error) {
	o, err := c.opsOrErr()
	if err != nil {
		return nil, err
	}
	return o.ReferencesQuery(ctx, node)
}

// ReferenceChildAdd implements spec.md §4.6 "reference_child_add"
// (invariant I5: both ends of a mutual link consistent).
func (c *Connection) ReferenceChildAdd(ctx context.Context, parent, child string, alsoAtChild bool) error {
	o, err := c.opsOrErr()
	if err != nil {
		return err
	}
	return o.ReferenceChildAdd(ctx, parent, child, alsoAtChild)
}

// ReferenceChildRemove implements spec.md §4.6 "reference_child_remove".
func (c *Connection) ReferenceChildRemove(ctx context.Context, parent, child string) error {
	o, err := c.opsOrErr()
	if err != nil {
		return err
	}
	return o.ReferenceChildRemove(ctx, parent, child)
}

// ReferenceMetaOverwriteOnPeers implements spec.md §4.6
// "reference_meta_overwrite_on_peers".
func (c *Connection) ReferenceMetaOverwriteOnPeers(ctx context.Context, node string, newKind model.MetaKind) error {
	o, err := c.opsOrErr()
	if err != nil {
		return err
	}
	return o.ReferenceMetaOverwriteOnPeers(ctx, node, newKind)
}
