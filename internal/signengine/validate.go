package signengine

import (
	"context"
	"time"

	"github.com/frostkit/frost-cli/internal/arid"
	"github.com/frostkit/frost-cli/internal/envelope"
	"github.com/frostkit/frost-cli/internal/frost"
	"github.com/frostkit/frost-cli/internal/frosterr"
	"github.com/frostkit/frost-cli/internal/rendezvous"
	"github.com/frostkit/frost-cli/internal/xid"
)

// parseSignedResponse and parseSignedRequest duplicate
// dkgengine's helpers of the same name: every engine owns its own small
// validation layer over internal/envelope rather than sharing one
// across the two state machines, matching spec §4.4/§4.5's description
// of DKG and signing as separately specified (if structurally mirrored)
// protocols.

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

func validateFunctionIs(req *envelope.Request, want string) error {
	fn, err := req.Function()
	if err != nil {
		return err
	}
	if fn != want {
		return frosterr.Newf(frosterr.Protocol, "expected %s request, got %s", want, fn)
	}
	return nil
}

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

// validateARIDParam checks an envelope's assertion under predicate, if
// present, equals the locally expected ARID (spec §4.1's "any
// group/session parameter must equal the local expected ARID").
func validateARIDParam(e *envelope.Envelope, predicate string, expected arid.ARID) error {
	vals := e.All(predicate)
	if len(vals) == 0 {
		return nil
	}
	got, err := vals[0].AsARID()
	if err != nil {
		return frosterr.Wrap(frosterr.Protocol, err, "extract "+predicate+" parameter")
	}
	if got != expected {
		return frosterr.Newf(frosterr.Protocol, "%s parameter does not match expected value", predicate)
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

func memberOf(x xid.XID, group []xid.XID) bool {
	for _, g := range group {
		if g == x {
			return true
		}
	}
	return false
}

// sameXIDSet reports whether a and b contain the same XIDs, irrespective
// of order or duplicates.
func sameXIDSet(a, b []xid.XID) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[xid.XID]bool, len(a))
	for _, x := range a {
		seen[x] = true
	}
	for _, x := range b {
		if !seen[x] {
			return false
		}
	}
	return true
}

// sameCommitments reports whether a participant's locally persisted
// signing commitments match the ones redistributed in a signShare
// request (spec §4.5's "locally persisted commitments not matching
// those redistributed in signShare" abort rule).
func sameCommitments(a, b frost.SigningCommitments) bool {
	return a.Hiding.Equal(&b.Hiding) && a.Binding.Equal(&b.Binding)
}

// sendRequest signs and seals a sign* request to a single recipient and
// posts it at destARID.
func sendRequest(ctx context.Context, client rendezvous.Client, sender, recipient *xid.Document, function string, params []envelope.Assertion, destARID arid.ARID, validFor time.Duration) error {
	requestID, err := arid.New()
	if err != nil {
		return frosterr.Wrap(frosterr.Cryptographic, err, "mint request id")
	}
	signed, err := envelope.BuildRequest(sender, requestID, function, time.Now().Add(validFor), nil, params)
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

// postSealedResponse seals an already-signed response envelope to
// recipient and posts it at destARID.
func postSealedResponse(ctx context.Context, client rendezvous.Client, sender, recipient *xid.Document, signed *envelope.Envelope, destARID arid.ARID) error {
	sealed, err := envelope.SealEnvelope(signed, []*xid.Document{recipient})
	if err != nil {
		return frosterr.Wrap(frosterr.Cryptographic, err, "seal response")
	}
	data, err := sealed.Marshal()
	if err != nil {
		return frosterr.Wrap(frosterr.IO, err, "encode response")
	}
	if err := client.Put(ctx, destARID, data); err != nil {
		return frosterr.Wrap(frosterr.Transport, err, "post response")
	}
	return nil
}
