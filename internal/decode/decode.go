// Package decode implements C5, the response decoder catalogue from
// spec.md §4.5: a SAX-like visitor over the [wire.Stanza] tree that
// turns inbound XML into the typed [model.Response] payloads used by
// internal/pubsub.
//
// The underlying transport (internal/wire) already assembles a full
// element tree per spec.md §4.1's dispatch contract, but the decoders
// here still walk it the way the original SAX parser would: one
// element at a time, with an explicit parent stack, rather than
// pattern-matching the tree structurally. This keeps the "distinguish
// a property child of transducer from a property child of meta"
// behaviour spec.md §4.5 calls out explicit and testable: the handler
// value owns the accumulator and ParserState owns the element stack,
// in place of the original callback/userdata design.
package decode

import (
	"strconv"

	"github.com/nugget/miopubsub/internal/model"
	"github.com/nugget/miopubsub/internal/wire"
)

// ParserState is the scratch state threaded through a walk, mirroring
// spec.md §4.5: current/previous element name, depth, and an explicit
// parent stack (never a back-pointer list).
type ParserState struct {
	CurrentName  string
	PreviousName string
	Depth        int
	ParentStack  []*wire.Stanza
}

// Parent returns the element directly enclosing the one currently
// being visited, or nil at the root.
func (p *ParserState) Parent() *wire.Stanza {
	if len(p.ParentStack) == 0 {
		return nil
	}
	return p.ParentStack[len(p.ParentStack)-1]
}

// ParentName is a convenience wrapper around Parent for handlers that
// only care about the enclosing element's name.
func (p *ParserState) ParentName() string {
	if parent := p.Parent(); parent != nil {
		return parent.Name
	}
	return ""
}

// Handler is implemented by each decoder in spec.md §4.5's catalogue.
// OnStart/OnEnd fire for every element in the tree, in document order;
// OnText fires once per element that carries character data.
type Handler interface {
	OnStart(state *ParserState, el *wire.Stanza)
	OnText(state *ParserState, text string)
	OnEnd(state *ParserState, el *wire.Stanza)
}

// NoOpHandler gives decoders a zero-cost base to embed and override
// only the callbacks they care about, matching the uneven density real
// SAX handlers have in the original.
type NoOpHandler struct{}

func (NoOpHandler) OnStart(*ParserState, *wire.Stanza) {}
func (NoOpHandler) OnText(*ParserState, string)        {}
func (NoOpHandler) OnEnd(*ParserState, *wire.Stanza)    {}

// Walk performs a depth-first traversal of root, invoking h's
// callbacks in document order and maintaining the parent stack and
// depth counter a real SAX parser would expose.
func Walk(root *wire.Stanza, h Handler) {
	if root == nil {
		return
	}
	state := &ParserState{}
	walk(root, state, h)
}

func walk(el *wire.Stanza, state *ParserState, h Handler) {
	state.PreviousName = state.CurrentName
	state.CurrentName = el.Name
	state.Depth++

	h.OnStart(state, el)
	if el.Text != "" {
		h.OnText(state, el.Text)
	}

	state.ParentStack = append(state.ParentStack, el)
	for _, c := range el.Children {
		walk(c, state, h)
	}
	state.ParentStack = state.ParentStack[:len(state.ParentStack)-1]

	h.OnEnd(state, el)
	state.Depth--
}

// FindError implements spec.md §4.5's universal error decoder: an
// <error> element anywhere in the tree turns the response into
// KindError with a numeric code and textual condition, regardless of
// what decoder was in use.
func FindError(root *wire.Stanza) *model.ProtocolError {
	if root == nil {
		return nil
	}
	if root.Name == "error" {
		code, _ := strconv.Atoi(root.Attr("code"))
		desc := root.Attr("type")
		if len(root.Children) > 0 {
			desc = root.Children[0].Name
		}
		return &model.ProtocolError{Code: code, Description: desc}
	}
	for _, c := range root.Children {
		if e := FindError(c); e != nil {
			return e
		}
	}
	return nil
}

// withErrorCheck wraps a decode function: if the stanza carries an
// <error> anywhere, the decoded response is overridden with the error
// variant instead. Every decoder in this package goes through this so
// the universal error rule in spec.md §4.5 applies uniformly.
func withErrorCheck(root *wire.Stanza, id string, decode func() *model.Response) *model.Response {
	if perr := FindError(root); perr != nil {
		return &model.Response{ID: id, Kind: model.KindError, Error: perr}
	}
	return decode()
}

// DecodeOk builds the plain completion response used by operations
// whose only contract is "did the request succeed" (create_node,
// delete_node, publish_item, unsubscribe, acl_affiliation_set).
func DecodeOk(root *wire.Stanza, id string) *model.Response {
	return withErrorCheck(root, id, func() *model.Response {
		return &model.Response{ID: id, Kind: model.KindOk}
	})
}
