package wire

import (
	"strings"
	"testing"
)

func TestNewStanza(t *testing.T) {
	s := NewStanza("iq", "jabber:client")
	if s.Name != "iq" || s.Namespace != "jabber:client" {
		t.Fatalf("NewStanza() = %+v, want name=iq namespace=jabber:client", s)
	}
	if s.Attrs == nil {
		t.Fatal("NewStanza() left Attrs nil")
	}
}

func TestSetAttrAndAttr(t *testing.T) {
	s := NewStanza("iq", "")
	s.SetAttr("type", "get").SetAttr("id", "abc123")

	if got := s.Attr("type"); got != "get" {
		t.Errorf("Attr(type) = %q, want get", got)
	}
	if got := s.Attr("id"); got != "abc123" {
		t.Errorf("Attr(id) = %q, want abc123", got)
	}
	if got := s.Attr("missing"); got != "" {
		t.Errorf("Attr(missing) = %q, want empty", got)
	}
}

func TestAttrOnNilStanza(t *testing.T) {
	var s *Stanza
	if got := s.Attr("id"); got != "" {
		t.Errorf("Attr() on nil stanza = %q, want empty", got)
	}
}

func TestID(t *testing.T) {
	s := NewStanza("iq", "")
	s.SetAttr("id", "req-1")
	if got := s.ID(); got != "req-1" {
		t.Errorf("ID() = %q, want req-1", got)
	}
}

func TestAddChildAndChild(t *testing.T) {
	root := NewStanza("iq", "jabber:client")
	pubsub := root.Child("pubsub", "http://jabber.org/protocol/pubsub")
	if len(root.Children) != 1 {
		t.Fatalf("len(root.Children) = %d, want 1", len(root.Children))
	}
	if root.Children[0] != pubsub {
		t.Error("Child() did not return the appended node")
	}

	explicit := NewStanza("subscribe", "")
	returned := pubsub.AddChild(explicit)
	if returned != explicit {
		t.Error("AddChild() should return the child it appended")
	}
	if len(pubsub.Children) != 1 || pubsub.Children[0] != explicit {
		t.Error("AddChild() did not attach the child to the parent")
	}
}

func TestFind(t *testing.T) {
	root := NewStanza("pubsub", "")
	root.Child("create", "")
	configure := root.Child("configure", "")

	if got := root.Find("configure"); got != configure {
		t.Errorf("Find(configure) = %v, want %v", got, configure)
	}
	if got := root.Find("missing"); got != nil {
		t.Errorf("Find(missing) = %v, want nil", got)
	}
}

func TestFindAll(t *testing.T) {
	root := NewStanza("items", "")
	a := root.Child("item", "")
	b := root.Child("item", "")
	root.Child("other", "")

	got := root.FindAll("item")
	if len(got) != 2 || got[0] != a || got[1] != b {
		t.Errorf("FindAll(item) = %v, want [%v %v]", got, a, b)
	}

	if got := root.FindAll("absent"); got != nil {
		t.Errorf("FindAll(absent) = %v, want nil", got)
	}
}

func TestMarshal(t *testing.T) {
	root := NewStanza("iq", "jabber:client")
	root.SetAttr("type", "get").SetAttr("id", "req-1")
	pubsub := root.Child("pubsub", "http://jabber.org/protocol/pubsub")
	pubsub.Child("subscriptions", "")

	out, err := root.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	for _, want := range []string{"<iq", `type="get"`, `id="req-1"`, "<pubsub", "<subscriptions", "</iq>"} {
		if !strings.Contains(out, want) {
			t.Errorf("Marshal() = %q, missing %q", out, want)
		}
	}
}

func TestMarshal_NamespacedElementHasNoDuplicateXmlns(t *testing.T) {
	s := NewStanza("pubsub", "http://jabber.org/protocol/pubsub")

	out, err := s.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	// A duplicate xmlns attribute (one from Name.Space, one appended by
	// hand) is an XML well-formedness violation a strict server-side
	// parser rejects, even though Go's own decoder tolerates it.
	if n := strings.Count(out, "xmlns="); n != 1 {
		t.Errorf("Marshal() = %q, found %d xmlns attrs, want exactly 1", out, n)
	}
}

func TestMarshalText(t *testing.T) {
	s := NewStanza("value", "")
	s.Text = "68"
	out, err := s.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(out, ">68<") {
		t.Errorf("Marshal() = %q, want text content 68", out)
	}
}

func TestMatches(t *testing.T) {
	s := NewStanza("iq", "jabber:client")
	s.SetAttr("type", "result")

	tests := []struct {
		name      string
		namespace string
		elem      string
		typeAttr  string
		want      bool
	}{
		{"all empty matches anything", "", "", "", true},
		{"namespace matches", "jabber:client", "", "", true},
		{"namespace mismatch", "other:ns", "", "", false},
		{"name matches", "", "iq", "", true},
		{"name mismatch", "", "message", "", false},
		{"type matches", "", "", "result", true},
		{"type mismatch", "", "", "error", false},
		{"all match", "jabber:client", "iq", "result", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := s.Matches(tc.namespace, tc.elem, tc.typeAttr); got != tc.want {
				t.Errorf("Matches(%q, %q, %q) = %v, want %v", tc.namespace, tc.elem, tc.typeAttr, got, tc.want)
			}
		})
	}
}
