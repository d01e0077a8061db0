package decode

import (
	"github.com/nugget/miopubsub/internal/model"
	"github.com/nugget/miopubsub/internal/wire"
)

type referencesHandler struct {
	NoOpHandler
	refs []model.Reference
}

func (h *referencesHandler) OnStart(_ *ParserState, el *wire.Stanza) {
	if el.Name != "reference" {
		return
	}
	kind := model.ReferenceUnknown
	switch el.Attr("type") {
	case "child":
		kind = model.ReferenceChild
	case "parent":
		kind = model.ReferenceParent
	}

	metaKind := model.MetaUnknown
	switch el.Attr("metaType") {
	case "device":
		metaKind = model.MetaDevice
	case "location":
		metaKind = model.MetaLocation
	}

	h.refs = append(h.refs, model.Reference{
		Kind:               kind,
		NodeID:             el.Attr("node"),
		DisplayName:        el.Attr("name"),
		ReferencedMetaKind: metaKind,
	})
}

// DecodeReferences implements spec.md §4.5's "References" decoder:
// each <reference type=.. metaType=.. node=.. name=..> is one link.
func DecodeReferences(root *wire.Stanza, id string) *model.Response {
	return withErrorCheck(root, id, func() *model.Response {
		h := &referencesHandler{}
		Walk(root, h)
		return &model.Response{ID: id, Kind: model.KindReferences, References: h.refs}
	})
}

// EncodeReferences builds the <references> item payload carrying refs,
// the inverse of DecodeReferences, used by internal/pubsub when
// republishing an updated reference list.
func EncodeReferences(refs []model.Reference) *wire.Stanza {
	root := wire.NewStanza("references", "")
	for _, r := range refs {
		ref := root.Child("reference", "")
		ref.SetAttr("type", r.Kind.String())
		ref.SetAttr("node", r.NodeID)
		if r.DisplayName != "" {
			ref.SetAttr("name", r.DisplayName)
		}
		if r.ReferencedMetaKind != model.MetaUnknown {
			switch r.ReferencedMetaKind {
			case model.MetaDevice:
				ref.SetAttr("metaType", "device")
			case model.MetaLocation:
				ref.SetAttr("metaType", "location")
			default:
				ref.SetAttr("metaType", "unknown")
			}
		}
	}
	return root
}
