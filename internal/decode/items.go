package decode

import (
	"github.com/nugget/miopubsub/internal/model"
	"github.com/nugget/miopubsub/internal/wire"
)

// itemsHandler backs both the unsolicited items-received decoder and
// the solicited item-recent-get decoder from spec.md §4.5; they share
// the same element shape and differ only in what happens on
// completion (enqueue vs. signal an awaiter), which is the caller's
// responsibility, not the decoder's.
type itemsHandler struct {
	NoOpHandler
	event       string
	transducers []model.Transducer
}

func (h *itemsHandler) OnStart(state *ParserState, el *wire.Stanza) {
	switch el.Name {
	case "items":
		if node := el.Attr("node"); node != "" {
			h.event = node
		}
	case "transducerData":
		h.transducers = append(h.transducers, model.Transducer{
			Kind:      model.TransducerSingle,
			Name:      el.Attr("name"),
			Value:     el.Attr("value"),
			Timestamp: el.Attr("timestamp"),
		})
	case "transducerSetData":
		h.transducers = append(h.transducers, model.Transducer{
			Kind:      model.TransducerSet,
			Name:      el.Attr("name"),
			Value:     el.Attr("value"),
			Timestamp: el.Attr("timestamp"),
		})
	}
}

// DecodeItems decodes an items/data payload (spec.md §4.5 "Items-received"
// / "Item-recent-get"). Both published notifications and item-query
// responses share this shape; the caller chooses whether to treat the
// result as a notification (enqueue onto C3) or a request completion.
func DecodeItems(root *wire.Stanza, id string) *model.Response {
	return withErrorCheck(root, id, func() *model.Response {
		h := &itemsHandler{}
		Walk(root, h)
		return &model.Response{
			ID:   id,
			Kind: model.KindData,
			Data: &model.DataEvent{Node: h.event, Transducers: h.transducers},
		}
	})
}
