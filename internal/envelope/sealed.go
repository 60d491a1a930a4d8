package envelope

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/frostkit/frost-cli/internal/arid"
	"github.com/frostkit/frost-cli/internal/frosterr"
	"github.com/frostkit/frost-cli/internal/xid"
)

const (
	subjectRequest  = "request"
	subjectResponse = "response"
	subjectError    = "error"
)

const (
	predFunction     = "function"
	predRequestID    = "requestId"
	predValidUntil   = "validUntil"
	predSender       = "sender"
	predContinuation = "continuation"
	predCorrelating  = "correlatingRequestId"
	predResult       = "result"
	predReason       = "reason"
	predState        = "state"
)

// SealedMessage is the self-describing binary blob every rendezvous
// `put` stores, implementing spec §6's "self-describing binary blob"
// wire format and §4.1's sealed/unsealed outbound transformation.
type SealedMessage struct {
	Sealed     bool                `json:"sealed"`
	Nonce      [24]byte            `json:"nonce,omitempty"`
	Ciphertext []byte              `json:"ciphertext,omitempty"`
	Capsules   map[string]*capsule `json:"capsules,omitempty"`
	Plaintext  []byte              `json:"plaintext,omitempty"`
}

func (m *SealedMessage) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

func UnmarshalSealedMessage(data []byte) (*SealedMessage, error) {
	var m SealedMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, frosterr.Wrap(frosterr.IO, err, "decode sealed message")
	}
	return &m, nil
}

// SealEnvelope encrypts a signed envelope to one or more recipients
// (spec §4.1 step 3). Passing no recipients is invalid; use
// UnsealedEnvelope for the preview/unsealed path.
func SealEnvelope(signed *Envelope, recipients []*xid.Document) (*SealedMessage, error) {
	if len(recipients) == 0 {
		return nil, fmt.Errorf("envelope: SealEnvelope requires at least one recipient")
	}
	plaintext, err := json.Marshal(signed)
	if err != nil {
		return nil, err
	}
	ciphertext, nonce, key, err := secretboxSeal(plaintext)
	if err != nil {
		return nil, err
	}
	capsules := make(map[string]*capsule, len(recipients))
	for _, r := range recipients {
		c, err := sealCapsule(key, r.EncryptionPublicKey)
		if err != nil {
			return nil, err
		}
		capsules[capsuleKey(r.XID())] = c
	}
	return &SealedMessage{Sealed: true, Nonce: nonce, Ciphertext: ciphertext, Capsules: capsules}, nil
}

// UnsealedEnvelope wraps a signed (but unencrypted) envelope, used by
// spec §4.4's preview/unsealed mode.
func UnsealedEnvelope(signed *Envelope) (*SealedMessage, error) {
	plaintext, err := json.Marshal(signed)
	if err != nil {
		return nil, err
	}
	return &SealedMessage{Sealed: false, Plaintext: plaintext}, nil
}

// OpenEnvelope reverses SealEnvelope/UnsealedEnvelope for recipientDoc
// (spec §4.1 inbound step 1). It does not verify the signature; call
// Verify separately once the sender's document has been extracted.
func OpenEnvelope(msg *SealedMessage, recipientDoc *xid.Document) (*Envelope, error) {
	var plaintext []byte
	if msg.Sealed {
		c, ok := msg.Capsules[capsuleKey(recipientDoc.XID())]
		if !ok {
			return nil, frosterr.New(frosterr.Protocol, "message is not addressed to this recipient")
		}
		priv, err := recipientDoc.EncryptionPrivateKey()
		if err != nil {
			return nil, frosterr.Wrap(frosterr.Configuration, err, "missing encryption private key")
		}
		key, err := openCapsule(c, priv)
		if err != nil {
			return nil, frosterr.Wrap(frosterr.Cryptographic, err, "open recipient capsule")
		}
		plaintext, err = secretboxOpen(msg.Ciphertext, msg.Nonce, key)
		if err != nil {
			return nil, frosterr.Wrap(frosterr.Cryptographic, err, "decrypt sealed envelope")
		}
	} else {
		plaintext = msg.Plaintext
	}

	var env Envelope
	if err := json.Unmarshal(plaintext, &env); err != nil {
		return nil, frosterr.Wrap(frosterr.IO, err, "decode envelope")
	}
	return &env, nil
}

// --- Request ---------------------------------------------------------

// Request is the parsed view of a sealed request envelope (spec §4.1).
type Request struct {
	Env *Envelope
}

// BuildRequest constructs and signs a sealed-request plaintext envelope
// with the given function name, request id, validity window, and named
// parameters (which may repeat, e.g. "participant"). Sealing/preview is
// a separate step (SealEnvelope/UnsealedEnvelope) so the same builder
// serves both paths.
func BuildRequest(sender *xid.Document, requestID arid.ARID, function string, validUntil time.Time, continuation []byte, params []Assertion) (*Envelope, error) {
	env := NewSubject(NewString(subjectRequest))
	senderBytes, err := json.Marshal(sender.Public())
	if err != nil {
		return nil, err
	}
	env.Assert(predFunction, NewString(function))
	env.Assert(predRequestID, NewARID(requestID))
	env.Assert(predValidUntil, NewInt(validUntil.Unix()))
	env.Assert(predSender, NewBytes(senderBytes))
	if continuation != nil {
		env.Assert(predContinuation, NewBytes(continuation))
	}
	for _, p := range params {
		env.Assert(p.Predicate, p.Object)
	}
	return Sign(env, sender)
}

// ParseRequest wraps a decrypted, not-yet-verified envelope for field
// extraction. Call Verify(req.Env, sender) before trusting anything in
// it, per spec §4.1 inbound step 2.
func ParseRequest(env *Envelope) (*Request, error) {
	if s, err := env.Subject.AsString(); err != nil || s != subjectRequest {
		return nil, frosterr.New(frosterr.Protocol, "not a request envelope")
	}
	return &Request{Env: env}, nil
}

func (r *Request) Function() (string, error) {
	v, err := r.Env.One(predFunction)
	if err != nil {
		return "", err
	}
	return v.AsString()
}

func (r *Request) RequestID() (arid.ARID, error) {
	v, err := r.Env.One(predRequestID)
	if err != nil {
		return arid.ARID{}, err
	}
	return v.AsARID()
}

func (r *Request) ValidUntil() (time.Time, error) {
	v, err := r.Env.One(predValidUntil)
	if err != nil {
		return time.Time{}, err
	}
	u, err := v.AsInt()
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(u, 0).UTC(), nil
}

func (r *Request) Sender() (*xid.Document, error) {
	v, err := r.Env.One(predSender)
	if err != nil {
		return nil, err
	}
	b, err := v.AsBytes()
	if err != nil {
		return nil, err
	}
	var doc xid.Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *Request) Continuation() ([]byte, bool) {
	vals := r.Env.All(predContinuation)
	if len(vals) == 0 {
		return nil, false
	}
	b, err := vals[0].AsBytes()
	if err != nil {
		return nil, false
	}
	return b, true
}

func (r *Request) Param(name string) (Value, error) { return r.Env.One(name) }
func (r *Request) Params(name string) []Value        { return r.Env.All(name) }

// --- Response ----------------------------------------------------------

// Response is the parsed view of a sealed response envelope.
type Response struct {
	Env *Envelope
}

// BuildResultResponse constructs a signed success response.
func BuildResultResponse(sender *xid.Document, correlating arid.ARID, result *Envelope, continuation []byte, state string) (*Envelope, error) {
	env := NewSubject(NewString(subjectResponse))
	senderBytes, err := json.Marshal(sender.Public())
	if err != nil {
		return nil, err
	}
	env.Assert(predCorrelating, NewARID(correlating))
	env.Assert(predSender, NewBytes(senderBytes))
	env.AssertEnvelope(predResult, result)
	if continuation != nil {
		env.Assert(predContinuation, NewBytes(continuation))
	}
	if state != "" {
		env.Assert(predState, NewString(state))
	}
	return Sign(env, sender)
}

// BuildErrorResponse constructs a signed failure response carrying a
// reason string (spec §4.1, §7's RemoteRejection class).
func BuildErrorResponse(sender *xid.Document, correlating arid.ARID, reason string, continuation []byte) (*Envelope, error) {
	env := NewSubject(NewString(subjectResponse))
	senderBytes, err := json.Marshal(sender.Public())
	if err != nil {
		return nil, err
	}
	env.Assert(predCorrelating, NewARID(correlating))
	env.Assert(predSender, NewBytes(senderBytes))
	env.Assert(predReason, NewString(reason))
	if continuation != nil {
		env.Assert(predContinuation, NewBytes(continuation))
	}
	return Sign(env, sender)
}

func ParseResponse(env *Envelope) (*Response, error) {
	if s, err := env.Subject.AsString(); err != nil || s != subjectResponse {
		return nil, frosterr.New(frosterr.Protocol, "not a response envelope")
	}
	return &Response{Env: env}, nil
}

func (r *Response) IsError() bool {
	return len(r.Env.All(predReason)) == 1
}

func (r *Response) Reason() (string, error) {
	v, err := r.Env.One(predReason)
	if err != nil {
		return "", err
	}
	return v.AsString()
}

func (r *Response) Result() (*Envelope, error) {
	v, err := r.Env.One(predResult)
	if err != nil {
		return nil, err
	}
	return v.AsEnvelope()
}

func (r *Response) ResultSubjectType() (string, error) {
	result, err := r.Result()
	if err != nil {
		return "", err
	}
	return result.Subject.AsString()
}

func (r *Response) CorrelatingRequestID() (arid.ARID, error) {
	v, err := r.Env.One(predCorrelating)
	if err != nil {
		return arid.ARID{}, err
	}
	return v.AsARID()
}

func (r *Response) Sender() (*xid.Document, error) {
	v, err := r.Env.One(predSender)
	if err != nil {
		return nil, err
	}
	b, err := v.AsBytes()
	if err != nil {
		return nil, err
	}
	var doc xid.Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *Response) Continuation() ([]byte, bool) {
	vals := r.Env.All(predContinuation)
	if len(vals) == 0 {
		return nil, false
	}
	b, err := vals[0].AsBytes()
	if err != nil {
		return nil, false
	}
	return b, true
}
