package frost

import (
	"crypto/sha512"
	"fmt"
	"sort"

	"github.com/frostkit/frost-cli/internal/curve"
)

// SigningPackage bundles everything every signer needs to independently
// compute the same binding factors and challenge for one session: the
// digest being signed and every participant's nonce commitments.
type SigningPackage struct {
	Digest       [32]byte                      `json:"digest"`
	Commitments  map[Identifier]SigningCommitments `json:"commitments"`
	Participants []Identifier                  `json:"participants"`
}

// NewSigningPackage sorts participants ascending, matching spec §3's
// identifier-determinism rule so every party builds an identical
// package from the same inputs.
func NewSigningPackage(digest [32]byte, commitments map[Identifier]SigningCommitments) *SigningPackage {
	participants := make([]Identifier, 0, len(commitments))
	for id := range commitments {
		participants = append(participants, id)
	}
	sort.Slice(participants, func(i, j int) bool { return participants[i] < participants[j] })
	return &SigningPackage{Digest: digest, Commitments: commitments, Participants: participants}
}

// Commit generates fresh per-session nonces and their public
// commitments (spec §4.5 participant round1).
func Commit(keyPackage *KeyPackage) (*SigningNonces, *SigningCommitments, error) {
	hiding, err := curve.RandomScalar()
	if err != nil {
		return nil, nil, err
	}
	binding, err := curve.RandomScalar()
	if err != nil {
		return nil, nil, err
	}

	nonces := &SigningNonces{Hiding: *hiding, Binding: *binding}
	commitments := &SigningCommitments{
		Hiding:  *curve.NewIdentityPoint().ScalarBaseMult(hiding),
		Binding: *curve.NewIdentityPoint().ScalarBaseMult(binding),
	}
	return nonces, commitments, nil
}

// Sign computes one participant's signature share over the session's
// signing package (spec §4.5 participant round2).
func Sign(pkg *SigningPackage, nonces *SigningNonces, keyPackage *KeyPackage) (*SignatureShare, error) {
	rhos, err := bindingFactors(pkg)
	if err != nil {
		return nil, err
	}
	R, err := groupCommitment(pkg, rhos)
	if err != nil {
		return nil, err
	}
	c := computeChallenge(R, &keyPackage.VerifyingKey, pkg.Digest)

	self := keyPackage.Identifier
	rho, ok := rhos[self]
	if !ok {
		return nil, fmt.Errorf("frost: self %d missing from signing package", self)
	}
	lambda, err := self.Lagrange(pkg.Participants)
	if err != nil {
		return nil, err
	}

	z := curve.NewScalar().Multiply(&nonces.Binding, rho) // e*rho
	z.Add(z, &nonces.Hiding)                               // d + e*rho
	term := curve.NewScalar().Multiply(lambda, &keyPackage.SigningShare)
	term.Multiply(term, c) // lambda*s*c
	z.Add(z, term)

	return &SignatureShare{Share: *z}, nil
}

// Aggregate combines the t-or-more signature shares collected for a
// session into a single standard Ed25519 signature and verifies every
// share against the participant's verifying share before trusting it
// (spec §4.5 coordinator round2).
func Aggregate(pkg *SigningPackage, shares map[Identifier]*SignatureShare, pubKeyPackage *PublicKeyPackage) ([]byte, error) {
	if len(shares) < pubKeyPackage.Threshold {
		return nil, fmt.Errorf("frost: collected %d signature shares, need at least %d", len(shares), pubKeyPackage.Threshold)
	}

	rhos, err := bindingFactors(pkg)
	if err != nil {
		return nil, err
	}
	R, err := groupCommitment(pkg, rhos)
	if err != nil {
		return nil, err
	}
	c := computeChallenge(R, &pubKeyPackage.VerifyingKey, pkg.Digest)

	S := curve.NewScalar()
	for _, id := range pkg.Participants {
		share, ok := shares[id]
		if !ok {
			return nil, fmt.Errorf("frost: missing signature share for participant %d", id)
		}
		verifyingShare, ok := pubKeyPackage.VerifyingShares[id]
		if !ok {
			return nil, fmt.Errorf("frost: no verifying share on record for participant %d", id)
		}
		lambda, err := id.Lagrange(pkg.Participants)
		if err != nil {
			return nil, err
		}
		lambdaShare := curve.NewIdentityPoint().ScalarMult(lambda, &verifyingShare)
		negLambdaShare := curve.NewIdentityPoint().Negate(lambdaShare)

		commitment := pkg.Commitments[id]
		Ri := groupCommitmentForOne(&commitment, rhos[id])

		RPrime := curve.NewIdentityPoint().VarTimeDoubleScalarBaseMult(c, negLambdaShare, &share.Share)
		if !RPrime.Equal(Ri) {
			return nil, fmt.Errorf("frost: signature share from participant %d failed verification", id)
		}

		S.Add(S, &share.Share)
	}

	sig := make([]byte, 0, 64)
	sig = append(sig, R.Bytes()...)
	sig = append(sig, S.Bytes()...)
	return sig, nil
}

func groupCommitmentForOne(c *SigningCommitments, rho *curve.Scalar) *curve.Point {
	Ri := curve.NewIdentityPoint().ScalarMult(rho, &c.Binding)
	Ri.Add(Ri, &c.Hiding)
	return Ri
}

func groupCommitment(pkg *SigningPackage, rhos map[Identifier]*curve.Scalar) (*curve.Point, error) {
	R := curve.NewIdentityPoint()
	for _, id := range pkg.Participants {
		commitment, ok := pkg.Commitments[id]
		if !ok {
			return nil, fmt.Errorf("frost: missing nonce commitments for participant %d", id)
		}
		rho, ok := rhos[id]
		if !ok {
			return nil, fmt.Errorf("frost: missing binding factor for participant %d", id)
		}
		R.Add(R, groupCommitmentForOne(&commitment, rho))
	}
	return R, nil
}

// bindingFactors computes each participant's rho_i, binding their
// contribution to the message and every participant's commitments, as
// the teacher's computeRhos does (generalized from its fixed 2-of-2
// buffer layout to an arbitrary sorted participant list).
func bindingFactors(pkg *SigningPackage) (map[Identifier]*curve.Scalar, error) {
	domain := []byte("FROST-Ed25519-SHA512-v1")

	var base []byte
	base = append(base, domain...)
	base = append(base, pkg.Digest[:]...)
	for _, id := range pkg.Participants {
		c, ok := pkg.Commitments[id]
		if !ok {
			return nil, fmt.Errorf("frost: missing commitments for participant %d in binding factor input", id)
		}
		base = append(base, idBytes(id)...)
		base = append(base, c.Hiding.Bytes()...)
		base = append(base, c.Binding.Bytes()...)
	}

	out := make(map[Identifier]*curve.Scalar, len(pkg.Participants))
	for _, id := range pkg.Participants {
		buf := append(append([]byte{}, base...), idBytes(id)...)
		digest := sha512.Sum512(buf)
		rho, err := curve.NewScalar().SetUniformBytes(digest[:])
		if err != nil {
			return nil, err
		}
		out[id] = rho
	}
	return out, nil
}

func idBytes(id Identifier) []byte {
	return []byte{byte(id >> 8), byte(id)}
}

// computeChallenge is the standard Ed25519 challenge
// c = SHA512(R || A || M) mod L, so an aggregated (R, S) verifies under
// crypto/ed25519.Verify exactly as any other Ed25519 signature would.
func computeChallenge(R, groupKey *curve.Point, digest [32]byte) *curve.Scalar {
	h := sha512.New()
	h.Write(R.Bytes())
	h.Write(groupKey.Bytes())
	h.Write(digest[:])
	sum := h.Sum(nil)
	c, err := curve.NewScalar().SetUniformBytes(sum)
	if err != nil {
		panic(fmt.Sprintf("frost: challenge reduction: %v", err))
	}
	return c
}
