package decode

import (
	"strconv"

	"github.com/nugget/miopubsub/internal/model"
	"github.com/nugget/miopubsub/internal/wire"
)

type scheduleHandler struct {
	NoOpHandler
	events        []model.ScheduleEvent
	inRecurrence  bool
	recurField    string
	currentRecur  *model.Recurrence
}

func (h *scheduleHandler) OnStart(_ *ParserState, el *wire.Stanza) {
	switch el.Name {
	case "event":
		id, _ := strconv.Atoi(el.Attr("id"))
		h.events = append(h.events, model.ScheduleEvent{
			ID:              id,
			TransducerName:  el.Attr("transducerName"),
			TransducerValue: el.Attr("transducerValue"),
			Time:            el.Attr("time"),
			Info:            el.Attr("info"),
		})
	case "recurrence":
		h.inRecurrence = true
		h.currentRecur = &model.Recurrence{}
		if len(h.events) > 0 {
			h.events[len(h.events)-1].Recurrence = h.currentRecur
		}
	case "freq", "interval", "count", "until", "bymonth", "byday", "exdate":
		if h.inRecurrence {
			h.recurField = el.Name
		}
	}
}

func (h *scheduleHandler) OnText(_ *ParserState, text string) {
	if !h.inRecurrence || h.currentRecur == nil || h.recurField == "" {
		return
	}
	switch h.recurField {
	case "freq":
		h.currentRecur.Freq = text
	case "interval":
		h.currentRecur.Interval, _ = strconv.Atoi(text)
	case "count":
		h.currentRecur.Count, _ = strconv.Atoi(text)
	case "until":
		h.currentRecur.Until = text
	case "bymonth":
		if m, err := strconv.Atoi(text); err == nil {
			h.currentRecur.ByMonth = append(h.currentRecur.ByMonth, m)
		}
	case "byday":
		h.currentRecur.ByDay = append(h.currentRecur.ByDay, text)
	case "exdate":
		h.currentRecur.ExDate = append(h.currentRecur.ExDate, text)
	}
}

func (h *scheduleHandler) OnEnd(_ *ParserState, el *wire.Stanza) {
	switch el.Name {
	case "recurrence":
		h.inRecurrence = false
		h.currentRecur = nil
	case "freq", "interval", "count", "until", "bymonth", "byday", "exdate":
		h.recurField = ""
	}
}

// DecodeSchedule implements spec.md §4.5's "Schedule" decoder: each
// <event> contributes one entry, with an optional nested <recurrence>
// switching the char-data handler to the recurrence-field reader.
func DecodeSchedule(root *wire.Stanza, id string) *model.Response {
	return withErrorCheck(root, id, func() *model.Response {
		h := &scheduleHandler{}
		Walk(root, h)
		return &model.Response{ID: id, Kind: model.KindSchedule, Schedule: model.Renumber(h.events)}
	})
}

// EncodeSchedule builds the <schedule> item payload carrying events,
// the inverse of DecodeSchedule, used when republishing after a merge
// or removal (spec.md §4.6 "Schedules").
func EncodeSchedule(events []model.ScheduleEvent) *wire.Stanza {
	root := wire.NewStanza("schedule", "")
	for _, e := range events {
		ev := root.Child("event", "")
		ev.SetAttr("id", strconv.Itoa(e.ID))
		ev.SetAttr("time", e.Time)
		ev.SetAttr("info", e.Info)
		ev.SetAttr("transducerName", e.TransducerName)
		ev.SetAttr("transducerValue", e.TransducerValue)
		if e.Recurrence != nil {
			encodeRecurrence(ev, e.Recurrence)
		}
	}
	return root
}

func encodeRecurrence(parent *wire.Stanza, r *model.Recurrence) {
	rec := parent.Child("recurrence", "")
	if r.Freq != "" {
		rec.Child("freq", "").Text = r.Freq
	}
	if r.Interval != 0 {
		rec.Child("interval", "").Text = strconv.Itoa(r.Interval)
	}
	if r.Count != 0 {
		rec.Child("count", "").Text = strconv.Itoa(r.Count)
	}
	if r.Until != "" {
		rec.Child("until", "").Text = r.Until
	}
	for _, m := range r.ByMonth {
		rec.Child("bymonth", "").Text = strconv.Itoa(m)
	}
	for _, d := range r.ByDay {
		rec.Child("byday", "").Text = d
	}
	for _, x := range r.ExDate {
		rec.Child("exdate", "").Text = x
	}
}
