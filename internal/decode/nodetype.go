package decode

import (
	"github.com/nugget/miopubsub/internal/model"
	"github.com/nugget/miopubsub/internal/wire"
)

type nodeTypeHandler struct {
	NoOpHandler
	kind string
}

func (h *nodeTypeHandler) OnStart(_ *ParserState, el *wire.Stanza) {
	if el.Name != "identity" {
		return
	}
	switch el.Attr("type") {
	case "leaf":
		h.kind = "leaf"
	case "collection":
		h.kind = "collection"
	default:
		if h.kind == "" {
			h.kind = "unknown"
		}
	}
}

// DecodeNodeType implements spec.md §4.5's "Node-type" decoder: a
// disco#info <identity type="leaf|collection"> determines whether a
// node is a plain leaf or a pubsub collection.
func DecodeNodeType(root *wire.Stanza, id string) *model.Response {
	return withErrorCheck(root, id, func() *model.Response {
		h := &nodeTypeHandler{}
		Walk(root, h)
		if h.kind == "" {
			h.kind = "unknown"
		}
		return &model.Response{ID: id, Kind: model.KindNodeType, NodeType: h.kind}
	})
}
