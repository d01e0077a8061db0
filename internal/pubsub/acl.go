package pubsub

import (
	"context"

	"github.com/nugget/miopubsub/internal/decode"
	"github.com/nugget/miopubsub/internal/model"
	"github.com/nugget/miopubsub/internal/wire"
)

// AclAffiliationsQuery queries either a node's ACL (node non-empty,
// pubsub#owner namespace) or the caller's own affiliations across all
// nodes (node empty), per spec.md §4.6 "Affiliations".
func (o *Ops) AclAffiliationsQuery(ctx context.Context, node string) ([]model.Affiliation, error) {
	iq, id := o.newIQ("get")
	if node != "" {
		ps := iq.Child("pubsub", nsPubsubOwner)
		ps.Child("affiliations", "").SetAttr("node", node)
	} else {
		ps := iq.Child("pubsub", nsPubsub)
		ps.Child("affiliations", "")
	}

	resp, err := o.send(ctx, iq, func(s *wire.Stanza) *model.Response { return decode.DecodeAffiliations(s, id) })
	if err != nil {
		return nil, err
	}
	return resp.Affiliations, nil
}

// AclAffiliationSet issues affiliations[node]/affiliation[jid,
// affiliation=kind] in the pubsub#owner namespace (spec.md §4.6).
func (o *Ops) AclAffiliationSet(ctx context.Context, node, jidStr string, kind model.AffiliationKind) error {
	iq, id := o.newIQ("set")
	ps := iq.Child("pubsub", nsPubsubOwner)
	affs := ps.Child("affiliations", "")
	affs.SetAttr("node", node)
	aff := affs.Child("affiliation", "")
	aff.SetAttr("jid", jidStr)
	aff.SetAttr("affiliation", kind.String())

	_, err := o.send(ctx, iq, func(s *wire.Stanza) *model.Response { return decode.DecodeOk(s, id) })
	return err
}
