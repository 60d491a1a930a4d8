package frost

import (
	"crypto/sha512"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/frostkit/frost-cli/internal/curve"
)

// schnorrProof is a proof of knowledge of the discrete log of a
// participant's commitment constant term, adapted from the teacher's
// zk.Schnorr (exercised by zk/schnorr_test.go; the non-test
// implementation was not retrieved, so it is rebuilt here over
// internal/curve instead of the teacher's ristretto group).
type schnorrProof struct {
	R curve.Point  `json:"r"`
	Z curve.Scalar `json:"z"`
}

// newSchnorrProof proves knowledge of `private` such that
// public = [private]B, binding the proof to the participant id and an
// arbitrary context (here: the DKG group id) to block replay across
// groups.
func newSchnorrProof(id Identifier, public *curve.Point, ctx []byte, private *curve.Scalar) (*schnorrProof, error) {
	k, err := curve.RandomScalar()
	if err != nil {
		return nil, err
	}
	R := curve.NewIdentityPoint().ScalarBaseMult(k)

	c := schnorrChallenge(id, R, public, ctx)

	z := curve.NewScalar().MultiplyAdd(c, private, k)
	return &schnorrProof{R: *R, Z: *z}, nil
}

func (p *schnorrProof) verify(id Identifier, public *curve.Point, ctx []byte) bool {
	c := schnorrChallenge(id, &p.R, public, ctx)

	lhs := curve.NewIdentityPoint().ScalarBaseMult(&p.Z)
	rhs := curve.NewIdentityPoint().VarTimeDoubleScalarBaseMult(c, public, curve.NewScalar())
	// VarTimeDoubleScalarBaseMult(a, A, b) = [a]A + [b]B; with b=0 this
	// reduces to [c]public, so rhs = [c]public + R.
	rhs.Add(rhs, &p.R)
	return lhs.Equal(rhs)
}

func schnorrChallenge(id Identifier, R, public *curve.Point, ctx []byte) *curve.Scalar {
	h := sha512.New()
	h.Write([]byte("FROST-Ed25519-SCHNORR-PROOF"))
	var idBuf [2]byte
	binary.BigEndian.PutUint16(idBuf[:], uint16(id))
	h.Write(idBuf[:])
	h.Write(ctx)
	h.Write(R.Bytes())
	h.Write(public.Bytes())
	digest := h.Sum(nil)
	c, err := curve.NewScalar().SetUniformBytes(digest)
	if err != nil {
		panic(fmt.Sprintf("frost: schnorr challenge: %v", err))
	}
	return c
}

func (p schnorrProof) MarshalJSON() ([]byte, error) {
	return json.Marshal(&struct {
		R curve.Point  `json:"r"`
		Z curve.Scalar `json:"z"`
	}{p.R, p.Z})
}
