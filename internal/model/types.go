// Package model defines the value types shared by the decoder and the
// pubsub operation layer: responses, transducer readings, metadata,
// references, and schedules, per spec.md §3.
package model

import "time"

// PacketKind discriminates the tagged union carried by a [Response].
type PacketKind int

const (
	// KindUnknown means the response carries no recognised payload.
	KindUnknown PacketKind = iota
	KindOk
	KindError
	KindData
	KindSubscriptions
	KindAffiliations
	KindCollections
	KindMeta
	KindSchedule
	KindReferences
	KindNodeType
)

// String returns the human-readable packet kind name.
func (k PacketKind) String() string {
	switch k {
	case KindOk:
		return "ok"
	case KindError:
		return "error"
	case KindData:
		return "data"
	case KindSubscriptions:
		return "subscriptions"
	case KindAffiliations:
		return "affiliations"
	case KindCollections:
		return "collections"
	case KindMeta:
		return "meta"
	case KindSchedule:
		return "schedule"
	case KindReferences:
		return "references"
	case KindNodeType:
		return "node-type"
	default:
		return "unknown"
	}
}

// ProtocolError is the server-side error surfaced verbatim via the
// Error payload variant (spec.md §3, §7).
type ProtocolError struct {
	Code        int
	Description string
}

func (e *ProtocolError) Error() string {
	if e.Description == "" {
		return "pubsub: server error"
	}
	return e.Description
}

// TransducerKind distinguishes a single-valued reading from a set of
// them carried in one item.
type TransducerKind int

const (
	TransducerSingle TransducerKind = iota
	TransducerSet
)

// Transducer is one measurement or setpoint carried in a data item
// (spec.md §3 "Transducer reading").
type Transducer struct {
	Kind      TransducerKind
	Name      string
	Value     string
	Timestamp string
}

// DataEvent is the decoded payload of a publish/item-recent-get
// response: the node the items came from, plus its readings.
type DataEvent struct {
	Node        string
	Transducers []Transducer
}

// AffiliationKind enumerates a jid's relationship to a node's ACL.
type AffiliationKind int

const (
	AffiliationNone AffiliationKind = iota
	AffiliationOwner
	AffiliationMember
	AffiliationPublisher
	AffiliationPublishOnly
	AffiliationOutcast
)

// String returns the wire string for an affiliation kind.
func (a AffiliationKind) String() string {
	switch a {
	case AffiliationOwner:
		return "owner"
	case AffiliationMember:
		return "member"
	case AffiliationPublisher:
		return "publisher"
	case AffiliationPublishOnly:
		return "publish-only"
	case AffiliationOutcast:
		return "outcast"
	default:
		return "none"
	}
}

// ParseAffiliationKind maps a wire affiliation string to its enum value.
func ParseAffiliationKind(s string) (AffiliationKind, bool) {
	switch s {
	case "none", "":
		return AffiliationNone, true
	case "owner":
		return AffiliationOwner, true
	case "member":
		return AffiliationMember, true
	case "publisher":
		return AffiliationPublisher, true
	case "publish-only":
		return AffiliationPublishOnly, true
	case "outcast":
		return AffiliationOutcast, true
	default:
		return AffiliationNone, false
	}
}

// Subscription is one entry of a subscriptions-query response.
type Subscription struct {
	JID   string
	Node  string
	SubID string
}

// Affiliation is one entry of an affiliations-query response.
type Affiliation struct {
	JID         string
	Node        string
	Affiliation AffiliationKind
}

// CollectionChild is one entry of a collection's children (disco#items).
type CollectionChild struct {
	Node string
	Name string
}

// MetaKind classifies what a node's [Meta] describes.
type MetaKind int

const (
	MetaUnknown MetaKind = iota
	MetaDevice
	MetaLocation
	MetaGateway
	MetaAdapter
	MetaAgent
)

// String returns the wire string for a meta kind.
func (m MetaKind) String() string {
	switch m {
	case MetaDevice:
		return "device"
	case MetaLocation:
		return "location"
	case MetaGateway:
		return "gateway"
	case MetaAdapter:
		return "adapter"
	case MetaAgent:
		return "agent"
	default:
		return "unknown"
	}
}

// ParseMetaKind maps a wire meta "type" attribute to its enum value.
func ParseMetaKind(s string) MetaKind {
	switch s {
	case "device":
		return MetaDevice
	case "location":
		return MetaLocation
	case "gateway":
		return MetaGateway
	case "adapter":
		return MetaAdapter
	case "agent":
		return MetaAgent
	default:
		return MetaUnknown
	}
}

// Geolocation is the supplemented geolocation value (grounded on
// original_source/src/mio_geolocation.c), attachable to either a Meta
// or a TransducerMeta.
type Geolocation struct {
	Lat         string
	Lon         string
	Alt         string
	Accuracy    string
	Area        string
	Locality    string
	Country     string
	Description string
	Timestamp   string
}

// mergeField overwrites dst with src when src is non-empty, the
// field-by-field merge rule from spec.md §4.6.
func mergeField(dst, src string) string {
	if src != "" {
		return src
	}
	return dst
}

// Merge applies spec.md §4.6's field-by-field overwrite rule for
// geolocation: each non-empty field in other replaces the
// corresponding field in g.
func (g Geolocation) Merge(other Geolocation) Geolocation {
	return Geolocation{
		Lat:         mergeField(g.Lat, other.Lat),
		Lon:         mergeField(g.Lon, other.Lon),
		Alt:         mergeField(g.Alt, other.Alt),
		Accuracy:    mergeField(g.Accuracy, other.Accuracy),
		Area:        mergeField(g.Area, other.Area),
		Locality:    mergeField(g.Locality, other.Locality),
		Country:     mergeField(g.Country, other.Country),
		Description: mergeField(g.Description, other.Description),
		Timestamp:   mergeField(g.Timestamp, other.Timestamp),
	}
}

// Property is a typed name/value pair attached to a transducer or a
// meta record.
type Property struct {
	Name  string
	Value string
}

// TransducerMeta describes one transducer's static characteristics
// (grounded on original_source/src/mio_transducer.c).
type TransducerMeta struct {
	Name         string
	Min          string
	Max          string
	Resolution   string
	Precision    string
	Accuracy     string
	Unit         string
	Interface    string
	Manufacturer string
	Serial       string
	Enum         map[string]string // wire name -> value
	Properties   []Property
	Geolocation  *Geolocation
}

// mergeProperties applies the "match by name, overwrite matched,
// append unmatched" rule from spec.md §4.6.
func mergeProperties(existing, incoming []Property) []Property {
	out := make([]Property, len(existing))
	copy(out, existing)
	for _, in := range incoming {
		matched := false
		for i := range out {
			if out[i].Name == in.Name {
				out[i].Value = in.Value
				matched = true
				break
			}
		}
		if !matched {
			out = append(out, in)
		}
	}
	return out
}

// Merge applies spec.md §4.6's merge rules to a transducer meta entry:
// scalar fields overwrite when non-empty, the enum map replaces
// wholesale, the property list merges by name, and geolocation merges
// field-by-field.
func (t TransducerMeta) Merge(other TransducerMeta) TransducerMeta {
	out := TransducerMeta{
		Name:         mergeField(t.Name, other.Name),
		Min:          mergeField(t.Min, other.Min),
		Max:          mergeField(t.Max, other.Max),
		Resolution:   mergeField(t.Resolution, other.Resolution),
		Precision:    mergeField(t.Precision, other.Precision),
		Accuracy:     mergeField(t.Accuracy, other.Accuracy),
		Unit:         mergeField(t.Unit, other.Unit),
		Interface:    mergeField(t.Interface, other.Interface),
		Manufacturer: mergeField(t.Manufacturer, other.Manufacturer),
		Serial:       mergeField(t.Serial, other.Serial),
		Properties:   mergeProperties(t.Properties, other.Properties),
	}
	if len(other.Enum) > 0 {
		out.Enum = other.Enum // replaced wholesale, not merged
	} else {
		out.Enum = t.Enum
	}
	switch {
	case other.Geolocation != nil && t.Geolocation != nil:
		merged := t.Geolocation.Merge(*other.Geolocation)
		out.Geolocation = &merged
	case other.Geolocation != nil:
		out.Geolocation = other.Geolocation
	default:
		out.Geolocation = t.Geolocation
	}
	return out
}

// Meta is the singleton item stored at id "meta" on a node (spec.md §3,
// §4.6).
type Meta struct {
	Name        string
	Info        string
	Timestamp   string
	Kind        MetaKind
	Geolocation *Geolocation
	Transducers []TransducerMeta
	Properties  []Property
}

// Merge applies spec.md §4.6's merge rules for a full Meta record:
// scalar overwrite-if-present, transducer list merge by name, property
// list merge by name, geolocation field-by-field.
//
// spec.md §9 Open Questions: the original treats an incoming timestamp
// as mandatory. This implementation tolerates its absence and keeps the
// existing timestamp instead.
func (m Meta) Merge(incoming Meta) Meta {
	out := Meta{
		Name:      mergeField(m.Name, incoming.Name),
		Info:      mergeField(m.Info, incoming.Info),
		Timestamp: mergeField(m.Timestamp, incoming.Timestamp),
		Kind:      m.Kind,
	}
	if incoming.Kind != MetaUnknown {
		out.Kind = incoming.Kind
	}

	switch {
	case incoming.Geolocation != nil && m.Geolocation != nil:
		merged := m.Geolocation.Merge(*incoming.Geolocation)
		out.Geolocation = &merged
	case incoming.Geolocation != nil:
		out.Geolocation = incoming.Geolocation
	default:
		out.Geolocation = m.Geolocation
	}

	out.Transducers = make([]TransducerMeta, len(m.Transducers))
	copy(out.Transducers, m.Transducers)
	for _, in := range incoming.Transducers {
		matched := false
		for i := range out.Transducers {
			if out.Transducers[i].Name == in.Name {
				out.Transducers[i] = out.Transducers[i].Merge(in)
				matched = true
				break
			}
		}
		if !matched {
			out.Transducers = append(out.Transducers, in)
		}
	}

	out.Properties = mergeProperties(m.Properties, incoming.Properties)
	return out
}

// ReferenceKind distinguishes a parent link from a child link.
type ReferenceKind int

const (
	ReferenceUnknown ReferenceKind = iota
	ReferenceChild
	ReferenceParent
)

// String returns the wire string for a reference kind.
func (r ReferenceKind) String() string {
	switch r {
	case ReferenceChild:
		return "child"
	case ReferenceParent:
		return "parent"
	default:
		return "unknown"
	}
}

// Reference is a free-form link from one node to another (spec.md §3,
// distinct from a pubsub collection membership).
type Reference struct {
	Kind               ReferenceKind
	NodeID             string
	DisplayName        string
	ReferencedMetaKind MetaKind
}

// ScheduleEvent is one timed entry in a schedule item (spec.md §3).
type ScheduleEvent struct {
	ID              int
	TransducerName  string
	TransducerValue string
	Time            string
	Info            string
	Recurrence      *Recurrence
}

// Recurrence is the optional iCalendar-style repeat rule on a
// [ScheduleEvent].
type Recurrence struct {
	Freq     string
	Interval int
	Count    int
	Until    string
	ByMonth  []int
	ByDay    []string
	ExDate   []string
}

// Renumber rewrites event IDs to the contiguous range 0..len(events)-1,
// preserving order. This enforces invariant I4 and is called after
// every schedule mutation.
func Renumber(events []ScheduleEvent) []ScheduleEvent {
	out := make([]ScheduleEvent, len(events))
	for i, e := range events {
		e.ID = i
		out[i] = e
	}
	return out
}

// Response is the decoded result of a request or an unsolicited
// notification (spec.md §3).
type Response struct {
	ID          string
	Namespace   string
	ElementName string
	TypeAttr    string
	Kind        PacketKind

	Error         *ProtocolError
	Data          *DataEvent
	Subscriptions []Subscription
	Affiliations  []Affiliation
	Collections   []CollectionChild
	CollectionParents []string
	Meta          *Meta
	Schedule      []ScheduleEvent
	References    []Reference
	NodeType      string // "leaf" | "collection" | "unknown"

	ReceivedAt time.Time
}

// IsError reports whether the response carries a server-side error.
func (r *Response) IsError() bool {
	return r != nil && r.Kind == KindError && r.Error != nil
}
