package decode

import (
	"github.com/nugget/miopubsub/internal/model"
	"github.com/nugget/miopubsub/internal/wire"
)

var geoFields = map[string]bool{
	"lat": true, "lon": true, "alt": true, "accuracy": true,
	"area": true, "locality": true, "country": true,
	"description": true, "timestamp": true,
}

type metaHandler struct {
	NoOpHandler
	meta             model.Meta
	transducers      []model.TransducerMeta
	curTransducerIdx int

	inGeoloc    bool
	geolocField string
	pendingGeo  *model.Geolocation
}

func newMetaHandler() *metaHandler {
	return &metaHandler{curTransducerIdx: -1}
}

func (h *metaHandler) OnStart(state *ParserState, el *wire.Stanza) {
	switch el.Name {
	case "meta":
		h.meta.Kind = model.ParseMetaKind(el.Attr("type"))
		h.meta.Name = el.Attr("name")
		h.meta.Timestamp = el.Attr("timestamp")
		h.meta.Info = el.Attr("info")

	case "transducer":
		h.transducers = append(h.transducers, model.TransducerMeta{
			Name:         el.Attr("name"),
			Min:          el.Attr("min"),
			Max:          el.Attr("max"),
			Resolution:   el.Attr("resolution"),
			Precision:    el.Attr("precision"),
			Accuracy:     el.Attr("accuracy"),
			Unit:         el.Attr("unit"),
			Interface:    el.Attr("interface"),
			Manufacturer: el.Attr("manufacturer"),
			Serial:       el.Attr("serial"),
		})
		h.curTransducerIdx = len(h.transducers) - 1

	case "map":
		// map is a child of transducer: it contributes one enumeration
		// entry (spec.md §4.5 "on map child of transducer append enum
		// entry").
		if t := h.currentTransducer(); t != nil {
			if t.Enum == nil {
				t.Enum = map[string]string{}
			}
			t.Enum[el.Attr("name")] = el.Attr("value")
		}

	case "property":
		// "attach to transducer or meta based on parent-stack" (spec.md
		// §4.5) — this is exactly the explicit-parent-stack replacement
		// for the original's back-pointer walk.
		prop := model.Property{Name: el.Attr("name"), Value: el.Attr("value")}
		switch state.ParentName() {
		case "transducer":
			if t := h.currentTransducer(); t != nil {
				t.Properties = append(t.Properties, prop)
			}
		case "meta":
			h.meta.Properties = append(h.meta.Properties, prop)
		}

	case "geoloc":
		h.inGeoloc = true
		h.pendingGeo = &model.Geolocation{}
		// spec.md §4.5: attach to transducer or meta "based on previous
		// element"; we use the parent-stack equivalent, which is
		// unambiguous regardless of sibling ordering.
		if state.ParentName() == "transducer" {
			if t := h.currentTransducer(); t != nil {
				t.Geolocation = h.pendingGeo
				break
			}
		}
		h.meta.Geolocation = h.pendingGeo

	default:
		if h.inGeoloc && geoFields[el.Name] {
			h.geolocField = el.Name
		}
	}
}

func (h *metaHandler) currentTransducer() *model.TransducerMeta {
	if h.curTransducerIdx < 0 || h.curTransducerIdx >= len(h.transducers) {
		return nil
	}
	return &h.transducers[h.curTransducerIdx]
}

func (h *metaHandler) OnText(_ *ParserState, text string) {
	if !h.inGeoloc || h.pendingGeo == nil || h.geolocField == "" {
		return
	}
	switch h.geolocField {
	case "lat":
		h.pendingGeo.Lat = text
	case "lon":
		h.pendingGeo.Lon = text
	case "alt":
		h.pendingGeo.Alt = text
	case "accuracy":
		h.pendingGeo.Accuracy = text
	case "area":
		h.pendingGeo.Area = text
	case "locality":
		h.pendingGeo.Locality = text
	case "country":
		h.pendingGeo.Country = text
	case "description":
		h.pendingGeo.Description = text
	case "timestamp":
		h.pendingGeo.Timestamp = text
	}
}

func (h *metaHandler) OnEnd(_ *ParserState, el *wire.Stanza) {
	switch el.Name {
	case "transducer":
		h.curTransducerIdx = -1
	case "geoloc":
		h.inGeoloc = false
		h.pendingGeo = nil
		h.geolocField = ""
	default:
		if geoFields[el.Name] {
			h.geolocField = ""
		}
	}
}

// DecodeMeta implements spec.md §4.5's "Meta" decoder, covering the
// supplemented geolocation and transducer-characteristics fields from
// original_source/src/mio_geolocation.c and mio_transducer.c (see
// SPEC_FULL.md "Supplemented features").
func DecodeMeta(root *wire.Stanza, id string) *model.Response {
	return withErrorCheck(root, id, func() *model.Response {
		h := newMetaHandler()
		Walk(root, h)
		h.meta.Transducers = h.transducers
		return &model.Response{ID: id, Kind: model.KindMeta, Meta: &h.meta}
	})
}

// EncodeMeta builds the <meta> item payload carrying m, the inverse of
// DecodeMeta, used by internal/pubsub when republishing after a merge.
func EncodeMeta(m model.Meta) *wire.Stanza {
	root := wire.NewStanza("meta", "")
	root.SetAttr("type", m.Kind.String())
	root.SetAttr("name", m.Name)
	root.SetAttr("timestamp", m.Timestamp)
	if m.Info != "" {
		root.SetAttr("info", m.Info)
	}
	for _, p := range m.Properties {
		prop := root.Child("property", "")
		prop.SetAttr("name", p.Name)
		prop.SetAttr("value", p.Value)
	}
	if m.Geolocation != nil {
		root.AddChild(encodeGeolocation(*m.Geolocation))
	}
	for _, t := range m.Transducers {
		root.AddChild(encodeTransducerMeta(t))
	}
	return root
}

func encodeTransducerMeta(t model.TransducerMeta) *wire.Stanza {
	el := wire.NewStanza("transducer", "")
	el.SetAttr("name", t.Name)
	setIfNonEmpty(el, "min", t.Min)
	setIfNonEmpty(el, "max", t.Max)
	setIfNonEmpty(el, "resolution", t.Resolution)
	setIfNonEmpty(el, "precision", t.Precision)
	setIfNonEmpty(el, "accuracy", t.Accuracy)
	setIfNonEmpty(el, "unit", t.Unit)
	setIfNonEmpty(el, "interface", t.Interface)
	setIfNonEmpty(el, "manufacturer", t.Manufacturer)
	setIfNonEmpty(el, "serial", t.Serial)
	for name, value := range t.Enum {
		m := el.Child("map", "")
		m.SetAttr("name", name)
		m.SetAttr("value", value)
	}
	for _, p := range t.Properties {
		prop := el.Child("property", "")
		prop.SetAttr("name", p.Name)
		prop.SetAttr("value", p.Value)
	}
	if t.Geolocation != nil {
		el.AddChild(encodeGeolocation(*t.Geolocation))
	}
	return el
}

func encodeGeolocation(g model.Geolocation) *wire.Stanza {
	el := wire.NewStanza("geoloc", "")
	setTextChild(el, "lat", g.Lat)
	setTextChild(el, "lon", g.Lon)
	setTextChild(el, "alt", g.Alt)
	setTextChild(el, "accuracy", g.Accuracy)
	setTextChild(el, "area", g.Area)
	setTextChild(el, "locality", g.Locality)
	setTextChild(el, "country", g.Country)
	setTextChild(el, "description", g.Description)
	setTextChild(el, "timestamp", g.Timestamp)
	return el
}

func setIfNonEmpty(el *wire.Stanza, attr, value string) {
	if value != "" {
		el.SetAttr(attr, value)
	}
}

func setTextChild(el *wire.Stanza, name, text string) {
	if text == "" {
		return
	}
	el.Child(name, "").Text = text
}
