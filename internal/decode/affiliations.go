package decode

import (
	"github.com/nugget/miopubsub/internal/model"
	"github.com/nugget/miopubsub/internal/wire"
)

type affiliationsHandler struct {
	NoOpHandler
	entries []model.Affiliation
}

func (h *affiliationsHandler) OnStart(_ *ParserState, el *wire.Stanza) {
	if el.Name != "affiliation" {
		return
	}
	kind, _ := model.ParseAffiliationKind(el.Attr("affiliation"))
	h.entries = append(h.entries, model.Affiliation{
		JID:         el.Attr("jid"),
		Node:        el.Attr("node"),
		Affiliation: kind,
	})
}

// DecodeAffiliations implements spec.md §4.5's "Affiliations" decoder:
// each <affiliation> contributes a jid|node plus its mapped
// enumeration value.
func DecodeAffiliations(root *wire.Stanza, id string) *model.Response {
	return withErrorCheck(root, id, func() *model.Response {
		h := &affiliationsHandler{}
		Walk(root, h)
		return &model.Response{ID: id, Kind: model.KindAffiliations, Affiliations: h.entries}
	})
}
