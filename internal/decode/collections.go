package decode

import (
	"github.com/nugget/miopubsub/internal/model"
	"github.com/nugget/miopubsub/internal/wire"
)

type collectionChildrenHandler struct {
	NoOpHandler
	children []model.CollectionChild
}

func (h *collectionChildrenHandler) OnStart(_ *ParserState, el *wire.Stanza) {
	if el.Name != "item" {
		return
	}
	if node := el.Attr("node"); node != "" {
		h.children = append(h.children, model.CollectionChild{Node: node, Name: el.Attr("name")})
	}
}

// DecodeCollectionChildren implements spec.md §4.5's
// "Collection-children" decoder: each <item node=.. name=..> in a
// disco#items result is one child node of the collection.
func DecodeCollectionChildren(root *wire.Stanza, id string) *model.Response {
	return withErrorCheck(root, id, func() *model.Response {
		h := &collectionChildrenHandler{}
		Walk(root, h)
		return &model.Response{ID: id, Kind: model.KindCollections, Collections: h.children}
	})
}

type collectionParentsHandler struct {
	NoOpHandler
	inCollectionField bool
	parents           []string
}

func (h *collectionParentsHandler) OnStart(_ *ParserState, el *wire.Stanza) {
	if el.Name == "field" && el.Attr("var") == "pubsub#collection" {
		h.inCollectionField = true
	}
}

func (h *collectionParentsHandler) OnText(state *ParserState, text string) {
	if h.inCollectionField && state.CurrentName == "value" {
		h.parents = append(h.parents, text)
	}
}

func (h *collectionParentsHandler) OnEnd(_ *ParserState, el *wire.Stanza) {
	if el.Name == "field" && el.Attr("var") == "pubsub#collection" {
		h.inCollectionField = false
	}
}

// DecodeCollectionParents implements spec.md §4.5's
// "Collection-parents" decoder: on <field var=pubsub#collection>, each
// child <value>'s text is one parent collection node id.
func DecodeCollectionParents(root *wire.Stanza, id string) *model.Response {
	return withErrorCheck(root, id, func() *model.Response {
		h := &collectionParentsHandler{}
		Walk(root, h)
		return &model.Response{ID: id, Kind: model.KindCollections, CollectionParents: h.parents}
	})
}
