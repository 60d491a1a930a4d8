package envelope

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/frostkit/frost-cli/internal/frosterr"
)

// ToUR renders an envelope as a "ur:envelope/..." string, spec §6's
// user-visible transport form for the target payload a signing session
// signs (read from a file by the CLI surface, §4.5's "target envelope
// (UR read from a file)").
func ToUR(e *Envelope) (string, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return "", frosterr.Wrap(frosterr.IO, err, "encode envelope")
	}
	return "ur:envelope/" + base64.RawURLEncoding.EncodeToString(b), nil
}

// FromUR parses the "ur:envelope/..." form back into an Envelope.
func FromUR(s string) (*Envelope, error) {
	s = strings.TrimPrefix(s, "ur:envelope/")
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, frosterr.Wrap(frosterr.Configuration, err, "decode envelope UR")
	}
	var e Envelope
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, frosterr.Wrap(frosterr.Configuration, err, "parse envelope UR")
	}
	return &e, nil
}

// SubjectDigest hashes only the envelope's subject (not its assertions),
// matching spec §4.5's "target_digest is the digest of the target
// envelope's subject" — distinct from Digest, which covers the whole
// envelope and is used for the outer signed-envelope protocol.
func (e *Envelope) SubjectDigest() ([32]byte, error) {
	b, err := json.Marshal(e.Subject)
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(b), nil
}

// AttachSignature assigns the aggregated FROST signature to the target
// envelope under the canonical PredicateSigned predicate (spec §4.5,
// resolving the open question of spec §9 by defining our own canonical
// name since no envelope library ships in the retrieval pack).
func AttachSignature(e *Envelope, sig []byte) *Envelope {
	return e.Assert(PredicateSigned, NewBytes(sig))
}

// VerifyTargetSignature recomputes the target's subject digest and
// checks the attached signature under the group verifying key, exactly
// as spec §4.5 requires both coordinator and participant do after
// aggregation ("verify again on the wrapped envelope").
func VerifyTargetSignature(signed *Envelope, verifyingKey ed25519.PublicKey) (bool, error) {
	sigVal, err := signed.One(PredicateSigned)
	if err != nil {
		return false, err
	}
	sig, err := sigVal.AsBytes()
	if err != nil {
		return false, err
	}
	unsigned := signed.Without(PredicateSigned)
	digest, err := unsigned.SubjectDigest()
	if err != nil {
		return false, err
	}
	if len(sig) != ed25519.SignatureSize {
		return false, fmt.Errorf("envelope: aggregated signature has unexpected length %d", len(sig))
	}
	return ed25519.Verify(verifyingKey, digest[:], sig), nil
}
