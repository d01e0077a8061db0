package pubsub

import (
	"context"

	"github.com/nugget/miopubsub/internal/decode"
	"github.com/nugget/miopubsub/internal/model"
	"github.com/nugget/miopubsub/internal/wire"
)

const scheduleItemID = "schedule"

// ScheduleQuery fetches the singleton "schedule" item on node (spec.md
// §4.6 "Schedules").
func (o *Ops) ScheduleQuery(ctx context.Context, node string) ([]model.ScheduleEvent, error) {
	iq, id := o.newIQ("get")
	ps := iq.Child("pubsub", nsPubsub)
	items := ps.Child("items", "")
	items.SetAttr("node", node)
	items.Child("item", "").SetAttr("id", scheduleItemID)

	resp, err := o.send(ctx, iq, func(s *wire.Stanza) *model.Response { return decode.DecodeSchedule(s, id) })
	if err != nil {
		return nil, err
	}
	return resp.Schedule, nil
}

// ScheduleMerge merges incoming events into node's schedule by event
// id (overwriting a matching id, appending new ones), renumbers ids
// contiguously from 0 (invariant I4), and republishes.
func (o *Ops) ScheduleMerge(ctx context.Context, node string, incoming []model.ScheduleEvent) ([]model.ScheduleEvent, error) {
	existing, err := o.ScheduleQuery(ctx, node)
	if err != nil {
		return nil, err
	}

	merged := make([]model.ScheduleEvent, len(existing))
	copy(merged, existing)
	for _, in := range incoming {
		matched := false
		for i := range merged {
			if merged[i].ID == in.ID {
				merged[i] = in
				matched = true
				break
			}
		}
		if !matched {
			merged = append(merged, in)
		}
	}
	merged = model.Renumber(merged)

	if err := o.PublishItem(ctx, node, scheduleItemID, decode.EncodeSchedule(merged)); err != nil {
		return nil, err
	}
	return merged, nil
}

// ScheduleRemove removes the event with the given id from node's
// schedule and renumbers the remainder contiguously from 0 (spec.md §8
// "Schedule renumber").
func (o *Ops) ScheduleRemove(ctx context.Context, node string, eventID int) ([]model.ScheduleEvent, error) {
	existing, err := o.ScheduleQuery(ctx, node)
	if err != nil {
		return nil, err
	}

	remaining := make([]model.ScheduleEvent, 0, len(existing))
	for _, e := range existing {
		if e.ID == eventID {
			continue
		}
		remaining = append(remaining, e)
	}
	remaining = model.Renumber(remaining)

	if err := o.PublishItem(ctx, node, scheduleItemID, decode.EncodeSchedule(remaining)); err != nil {
		return nil, err
	}
	return remaining, nil
}
