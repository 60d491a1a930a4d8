package frost

import (
	"fmt"
	"sort"

	"github.com/frostkit/frost-cli/internal/curve"
)

// Part1 begins DKG for participant `self` in a group of `n` with
// threshold `threshold`. The returned RoundPackage is broadcast to
// every other participant (spec §4.4 round1/collect); RoundSecret must
// be retained and fed into Part2. `ctx` binds the proof of knowledge to
// this group (callers pass the group id) so a proof cannot be replayed
// into a different group.
func Part1(self Identifier, n, threshold int, ctx []byte) (*RoundSecret, *RoundPackage, error) {
	if threshold < 2 || threshold > n {
		return nil, nil, fmt.Errorf("frost: invalid threshold %d for %d participants", threshold, n)
	}
	secretTerm, err := curve.RandomScalar()
	if err != nil {
		return nil, nil, err
	}

	poly, err := newPolynomial(threshold-1, secretTerm)
	if err != nil {
		return nil, nil, err
	}
	comm := poly.commitments()

	proof, err := newSchnorrProof(self, comm.constant(), ctx, secretTerm)
	if err != nil {
		return nil, nil, err
	}

	ownShare := poly.evaluate(self.Scalar())

	secret := &RoundSecret{
		Self:       self,
		N:          n,
		Threshold:  threshold,
		Polynomial: *poly,
		RunningSum: *ownShare,
	}
	return secret, &RoundPackage{Proof: *proof, Commitments: *comm}, nil
}

// Part2 processes every other participant's round-1 package, verifying
// their proof of knowledge, and produces the per-recipient Shamir
// shares to send out (spec §4.4 round2/respond).
func Part2(secret *RoundSecret, round1Packages map[Identifier]*RoundPackage, ctx []byte) (*Round2Secret, map[Identifier]*Round2Package, error) {
	commitments := map[Identifier]exponent{
		secret.Self: secret.Polynomial.commitments().dup(),
	}
	sum := secret.Polynomial.commitments()

	participants := []Identifier{secret.Self}

	for id, pkg := range round1Packages {
		if id == secret.Self {
			continue
		}
		if !pkg.Proof.verify(id, pkg.Commitments.constant(), ctx) {
			return nil, nil, fmt.Errorf("frost: schnorr proof verification failed for participant %d", id)
		}
		commitments[id] = pkg.Commitments
		var err error
		sum, err = sum.add(&pkg.Commitments)
		if err != nil {
			return nil, nil, fmt.Errorf("frost: combining commitments from %d: %w", id, err)
		}
		participants = append(participants, id)
	}

	sort.Slice(participants, func(i, j int) bool { return participants[i] < participants[j] })

	out := make(map[Identifier]*Round2Package, len(round1Packages))
	for id := range round1Packages {
		if id == secret.Self {
			continue
		}
		share := secret.Polynomial.evaluate(id.Scalar())
		out[id] = &Round2Package{Share: *share}
	}

	r2secret := &Round2Secret{
		Self:           secret.Self,
		Threshold:      secret.Threshold,
		SecretShare:    secret.RunningSum,
		Commitments:    commitments,
		CommitmentsSum: *sum,
		Participants:   participants,
	}
	return r2secret, out, nil
}

// Part3 finalizes DKG: every incoming round-2 share is validated
// against the sender's round-1 VSS commitment, summed into the
// participant's signing share, and the group's public key material is
// derived (spec §4.4 finalize/respond).
func Part3(secret *Round2Secret, round1Packages map[Identifier]*RoundPackage, round2Packages map[Identifier]*Round2Package) (*KeyPackage, *PublicKeyPackage, error) {
	total := curve.NewScalar().Set(&secret.SecretShare)

	for from, pkg := range round2Packages {
		if from == secret.Self {
			continue
		}
		comm, ok := round1Packages[from]
		if !ok {
			return nil, nil, fmt.Errorf("frost: missing round1 commitment for participant %d", from)
		}
		expected := comm.Commitments.evaluate(secret.Self.Scalar())
		got := curve.NewIdentityPoint().ScalarBaseMult(&pkg.Share)
		if !got.Equal(expected) {
			return nil, nil, fmt.Errorf("frost: VSS validation failed for share from participant %d", from)
		}
		total.Add(total, &pkg.Share)
	}

	verifyingShares := make(map[Identifier]curve.Point, len(secret.Participants))
	for _, id := range secret.Participants {
		verifyingShares[id] = *secret.CommitmentsSum.evaluate(id.Scalar())
	}

	keyPkg := &KeyPackage{
		Identifier:     secret.Self,
		SigningShare:   *total,
		VerifyingShare: verifyingShares[secret.Self],
		VerifyingKey:   *secret.CommitmentsSum.constant(),
		Threshold:      secret.Threshold,
	}
	pubPkg := &PublicKeyPackage{
		VerifyingKey:    *secret.CommitmentsSum.constant(),
		VerifyingShares: verifyingShares,
		Participants:    secret.Participants,
		Threshold:       secret.Threshold,
	}
	return keyPkg, pubPkg, nil
}

func (e *exponent) dup() exponent {
	cp := exponent{Coefficients: make([]curve.Point, len(e.Coefficients))}
	copy(cp.Coefficients, e.Coefficients)
	return cp
}
