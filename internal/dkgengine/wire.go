// Package dkgengine implements the DKG state machine of spec §4.4:
// coordinator invite/round1/round2/finalize and the mirrored
// participant invite-respond/round2-respond/finalize-respond
// operations, wiring internal/frost, internal/identity,
// internal/envelope, internal/rendezvous, internal/registry and
// internal/groupstate together. Grounded on the teacher's main.go
// round-by-round driver loop, generalized from a fixed 2-party demo to
// the coordinator/n-participant shape spec §4.4 describes.
package dkgengine

import (
	"encoding/json"

	"github.com/frostkit/frost-cli/internal/envelope"
	"github.com/frostkit/frost-cli/internal/frosterr"
	"github.com/frostkit/frost-cli/internal/xid"
)

const (
	FunctionInvite   = "dkgInvite"
	FunctionRound2   = "dkgRound2"
	FunctionFinalize = "dkgFinalize"

	ResultInviteResponse   = "dkgInviteResponse"
	ResultRound2Response   = "dkgRound2Response"
	ResultFinalizeResponse = "dkgFinalizeResponse"
)

// wrapXIDData tags an opaque JSON blob with the XID it is about/from,
// used for the repeated "round1Package"/"round2Package"/"recipient"
// assertions spec §4.4 describes as "annotated with its participant
// XID".
func wrapXIDData(x xid.XID, data []byte) envelope.Value {
	e := envelope.NewSubject(envelope.NewXID(x))
	e.Assert("data", envelope.NewBytes(data))
	return envelope.NewEnvelope(e)
}

func unwrapXIDData(v envelope.Value) (xid.XID, []byte, error) {
	e, err := v.AsEnvelope()
	if err != nil {
		return xid.XID{}, nil, err
	}
	x, err := e.Subject.AsXID()
	if err != nil {
		return xid.XID{}, nil, err
	}
	d, err := e.One("data")
	if err != nil {
		return xid.XID{}, nil, err
	}
	b, err := d.AsBytes()
	if err != nil {
		return xid.XID{}, nil, err
	}
	return x, b, nil
}

// marshalValue/unmarshalValue adapt opaque JSON-serializable FROST
// payloads (round1/round2 packages, key packages) into envelope Values,
// since the envelope tree itself only models string/bytes/int/envelope
// leaves.
func marshalValue(v interface{}) (envelope.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return envelope.Value{}, frosterr.Wrap(frosterr.IO, err, "encode FROST artifact")
	}
	return envelope.NewBytes(b), nil
}

func unmarshalInto(b []byte, v interface{}) error {
	if err := json.Unmarshal(b, v); err != nil {
		return frosterr.Wrap(frosterr.Configuration, err, "decode FROST artifact")
	}
	return nil
}
