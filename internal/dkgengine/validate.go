package dkgengine

import (
	"context"
	"time"

	"github.com/frostkit/frost-cli/internal/arid"
	"github.com/frostkit/frost-cli/internal/envelope"
	"github.com/frostkit/frost-cli/internal/frost"
	"github.com/frostkit/frost-cli/internal/frosterr"
	"github.com/frostkit/frost-cli/internal/groupstate"
	"github.com/frostkit/frost-cli/internal/rendezvous"
	"github.com/frostkit/frost-cli/internal/xid"
)

// parseSignedResponse opens a sealed response addressed to recipient
// and verifies it was signed by the expected sender, implementing the
// "sender XID must be the expected one" leg of spec §4.1's validation
// contract.
func parseSignedResponse(raw []byte, recipient, sender *xid.Document) (*envelope.Response, error) {
	msg, err := envelope.UnmarshalSealedMessage(raw)
	if err != nil {
		return nil, err
	}
	env, err := envelope.OpenEnvelope(msg, recipient)
	if err != nil {
		return nil, err
	}
	ok, err := envelope.Verify(env, sender)
	if err != nil {
		return nil, frosterr.Wrap(frosterr.Protocol, err, "verify response signature")
	}
	if !ok {
		return nil, frosterr.New(frosterr.Protocol, "response signature does not verify")
	}
	resp, err := envelope.ParseResponse(env)
	if err != nil {
		return nil, frosterr.Wrap(frosterr.Protocol, err, "parse response envelope")
	}
	respSender, err := resp.Sender()
	if err != nil {
		return nil, frosterr.Wrap(frosterr.Protocol, err, "extract response sender")
	}
	if respSender.XID() != sender.XID() {
		return nil, frosterr.New(frosterr.Protocol, "response sender XID does not match expected participant")
	}
	return resp, nil
}

// parseSignedRequest opens a sealed request addressed to recipient.
// Callers still must separately check the sender is the expected one.
func parseSignedRequest(raw []byte, recipient *xid.Document) (*envelope.Request, *xid.Document, error) {
	msg, err := envelope.UnmarshalSealedMessage(raw)
	if err != nil {
		return nil, nil, err
	}
	env, err := envelope.OpenEnvelope(msg, recipient)
	if err != nil {
		return nil, nil, err
	}
	req, err := envelope.ParseRequest(env)
	if err != nil {
		return nil, nil, frosterr.Wrap(frosterr.Protocol, err, "parse request envelope")
	}
	sender, err := req.Sender()
	if err != nil {
		return nil, nil, frosterr.Wrap(frosterr.Protocol, err, "extract request sender")
	}
	ok, err := envelope.Verify(env, sender)
	if err != nil {
		return nil, nil, frosterr.Wrap(frosterr.Protocol, err, "verify request signature")
	}
	if !ok {
		return nil, nil, frosterr.New(frosterr.Protocol, "request signature does not verify")
	}
	validUntil, err := req.ValidUntil()
	if err != nil {
		return nil, nil, err
	}
	if !validUntil.After(time.Now()) {
		return nil, nil, frosterr.New(frosterr.Protocol, "request has expired")
	}
	return req, sender, nil
}

// validateResultType checks a response's result subject matches the
// expected function/type name ("function name (requests) or result
// subject type (responses) must match the phase", spec §4.1).
func validateResultType(result *envelope.Envelope, want string) error {
	got, err := result.Subject.AsString()
	if err != nil {
		return frosterr.Wrap(frosterr.Protocol, err, "extract result subject")
	}
	if got != want {
		return frosterr.Newf(frosterr.Protocol, "expected %s result, got %s", want, got)
	}
	return nil
}

// validateGroupParam checks an envelope's "group" assertion, if
// present, equals the locally expected group ARID.
func validateGroupParam(e *envelope.Envelope, expected arid.ARID) error {
	vals := e.All("group")
	if len(vals) == 0 {
		return nil
	}
	got, err := vals[0].AsARID()
	if err != nil {
		return frosterr.Wrap(frosterr.Protocol, err, "extract group parameter")
	}
	if got != expected {
		return frosterr.New(frosterr.Protocol, "group parameter does not match expected group")
	}
	return nil
}

func resultARID(e *envelope.Envelope, predicate string) (arid.ARID, error) {
	v, err := e.One(predicate)
	if err != nil {
		return arid.ARID{}, frosterr.Wrap(frosterr.Protocol, err, "extract "+predicate)
	}
	return v.AsARID()
}

func resultField(e *envelope.Envelope, predicate string) ([]byte, error) {
	v, err := e.One(predicate)
	if err != nil {
		return nil, frosterr.Wrap(frosterr.Protocol, err, "extract "+predicate)
	}
	return v.AsBytes()
}

func extractJSONField(e *envelope.Envelope, predicate string, out interface{}) error {
	b, err := resultField(e, predicate)
	if err != nil {
		return err
	}
	return unmarshalInto(b, out)
}

// extractInviteResponse pulls the response_arid and round1 package out
// of a dkgInviteResponse result envelope.
func extractInviteResponse(result *envelope.Envelope) (arid.ARID, *frost.RoundPackage, error) {
	responseARID, err := resultARID(result, "responseArid")
	if err != nil {
		return arid.ARID{}, nil, err
	}
	pkgBytes, err := resultField(result, "round1Package")
	if err != nil {
		return arid.ARID{}, nil, err
	}
	var pkg frost.RoundPackage
	if err := unmarshalInto(pkgBytes, &pkg); err != nil {
		return arid.ARID{}, nil, err
	}
	return responseARID, &pkg, nil
}

func memberOf(x xid.XID, group []xid.XID) bool {
	for _, g := range group {
		if g == x {
			return true
		}
	}
	return false
}

func writeCollectedRound2(registryDir string, groupID arid.ARID, bundles map[xid.XID]map[xid.XID][]byte) error {
	return groupstate.ForGroup(registryDir, groupID).Write(groupstate.CollectedRound2, bundles)
}

// sendRequest signs and seals a dkg* request to a single recipient and
// posts it at destARID.
func sendRequest(ctx context.Context, client rendezvous.Client, sender *xid.Document, recipient *xid.Document, function string, params []envelope.Assertion, destARID arid.ARID) error {
	requestID, err := arid.New()
	if err != nil {
		return frosterr.Wrap(frosterr.Cryptographic, err, "mint request id")
	}
	validUntil := time.Now().Add(time.Hour)
	signed, err := envelope.BuildRequest(sender, requestID, function, validUntil, nil, params)
	if err != nil {
		return frosterr.Wrap(frosterr.Cryptographic, err, "build "+function+" request")
	}
	sealed, err := envelope.SealEnvelope(signed, []*xid.Document{recipient})
	if err != nil {
		return frosterr.Wrap(frosterr.Cryptographic, err, "seal "+function+" request")
	}
	data, err := sealed.Marshal()
	if err != nil {
		return frosterr.Wrap(frosterr.IO, err, "encode "+function+" request")
	}
	if err := client.Put(ctx, destARID, data); err != nil {
		return frosterr.Wrap(frosterr.Transport, err, "post "+function+" request")
	}
	return nil
}
