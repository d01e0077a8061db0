package wire

import (
	"encoding/xml"
	"strings"
)

// Stanza is an XML element tree: the opaque, reference-counted type
// spec.md §3 describes. Go's garbage collector makes the manual
// refcounting from the original C implementation unnecessary —
// ownership is just normal Go value/pointer semantics.
type Stanza struct {
	Name      string
	Namespace string
	Attrs     map[string]string
	Text      string
	Children  []*Stanza
}

// NewStanza creates an empty element with the given local name and
// namespace.
func NewStanza(name, namespace string) *Stanza {
	return &Stanza{
		Name:      name,
		Namespace: namespace,
		Attrs:     map[string]string{},
	}
}

// Attr returns the named attribute's value, or "" if unset.
func (s *Stanza) Attr(name string) string {
	if s == nil || s.Attrs == nil {
		return ""
	}
	return s.Attrs[name]
}

// SetAttr sets an attribute, returning s for chaining.
func (s *Stanza) SetAttr(name, value string) *Stanza {
	if s.Attrs == nil {
		s.Attrs = map[string]string{}
	}
	s.Attrs[name] = value
	return s
}

// ID returns the stanza's "id" attribute, the correlation key used
// throughout spec.md §4.
func (s *Stanza) ID() string {
	return s.Attr("id")
}

// AddChild appends a child element and returns it.
func (s *Stanza) AddChild(child *Stanza) *Stanza {
	s.Children = append(s.Children, child)
	return child
}

// Child creates, appends, and returns a new child element.
func (s *Stanza) Child(name, namespace string) *Stanza {
	return s.AddChild(NewStanza(name, namespace))
}

// Find returns the first direct child with the given local name, or
// nil.
func (s *Stanza) Find(name string) *Stanza {
	for _, c := range s.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// FindAll returns every direct child with the given local name.
func (s *Stanza) FindAll(name string) []*Stanza {
	var out []*Stanza
	for _, c := range s.Children {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// startElement builds the xml.StartElement for this node alone
// (without recursing into children).
func (s *Stanza) startElement() xml.StartElement {
	name := xml.Name{Local: s.Name, Space: s.Namespace}
	var attrs []xml.Attr
	for k, v := range s.Attrs {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: k}, Value: v})
	}
	return xml.StartElement{Name: name, Attr: attrs}
}

// Encode writes the element tree to enc as a sequence of XML tokens.
func (s *Stanza) Encode(enc *xml.Encoder) error {
	start := s.startElement()
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	if s.Text != "" {
		if err := enc.EncodeToken(xml.CharData(s.Text)); err != nil {
			return err
		}
	}
	for _, c := range s.Children {
		if err := c.Encode(enc); err != nil {
			return err
		}
	}
	if err := enc.EncodeToken(start.End()); err != nil {
		return err
	}
	return nil
}

// Marshal renders the element tree (and its children) to an XML
// fragment suitable for [Session.SendRaw]. The encoder is flushed
// before the string is returned.
func (s *Stanza) Marshal() (string, error) {
	var b strings.Builder
	enc := xml.NewEncoder(&b)
	if err := s.Encode(enc); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Matches reports whether the stanza satisfies an element-handler
// discriminator: every non-empty field must equal the corresponding
// stanza property (spec.md §4.1 "Element matching").
func (s *Stanza) Matches(namespace, name, typeAttr string) bool {
	if namespace != "" && s.Namespace != namespace {
		return false
	}
	if name != "" && s.Name != name {
		return false
	}
	if typeAttr != "" && s.Attr("type") != typeAttr {
		return false
	}
	return true
}
