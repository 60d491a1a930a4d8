package frost

import (
	"crypto/ed25519"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runDKG drives a full 3-round DKG among n participants with the given
// threshold and returns each participant's KeyPackage plus the shared
// PublicKeyPackage, exercising Part1/Part2/Part3 exactly as
// internal/dkgengine's coordinator and participants do over the wire.
func runDKG(t *testing.T, n, threshold int) (map[Identifier]*KeyPackage, *PublicKeyPackage) {
	t.Helper()
	ctx := []byte("test-group")

	ids := make([]Identifier, n)
	for i := range ids {
		ids[i] = Identifier(i + 1)
	}

	secrets := make(map[Identifier]*RoundSecret, n)
	round1 := make(map[Identifier]*RoundPackage, n)
	for _, id := range ids {
		secret, pkg, err := Part1(id, n, threshold, ctx)
		require.NoError(t, err)
		secrets[id] = secret
		round1[id] = pkg
	}

	r2secrets := make(map[Identifier]*Round2Secret, n)
	round2 := make(map[Identifier]map[Identifier]*Round2Package, n)
	for _, id := range ids {
		r2secret, out, err := Part2(secrets[id], round1, ctx)
		require.NoError(t, err)
		r2secrets[id] = r2secret
		round2[id] = out
	}

	keyPackages := make(map[Identifier]*KeyPackage, n)
	var pubPkg *PublicKeyPackage
	for _, id := range ids {
		incoming := make(map[Identifier]*Round2Package, n-1)
		for _, from := range ids {
			if from == id {
				continue
			}
			incoming[from] = round2[from][id]
		}
		keyPkg, pub, err := Part3(r2secrets[id], round1, incoming)
		require.NoError(t, err)
		keyPackages[id] = keyPkg
		pubPkg = pub
	}

	// every participant must agree on the same group verifying key.
	for _, id := range ids {
		assert.True(t, keyPackages[id].VerifyingKey.Equal(&pubPkg.VerifyingKey))
	}
	return keyPackages, pubPkg
}

func TestDKGThenThresholdSignVerifiesUnderStandardEd25519(t *testing.T) {
	keyPackages, pubPkg := runDKG(t, 3, 2)

	digest := sha256.Sum256([]byte("sign this message"))

	// Only two of the three participants sign, matching the threshold.
	signers := []Identifier{1, 2}
	nonces := make(map[Identifier]*SigningNonces, len(signers))
	commitments := make(map[Identifier]SigningCommitments, len(signers))
	for _, id := range signers {
		n, c, err := Commit(keyPackages[id])
		require.NoError(t, err)
		nonces[id] = n
		commitments[id] = *c
	}

	pkg := NewSigningPackage(digest, commitments)

	shares := make(map[Identifier]*SignatureShare, len(signers))
	for _, id := range signers {
		share, err := Sign(pkg, nonces[id], keyPackages[id])
		require.NoError(t, err)
		shares[id] = share
	}

	sig, err := Aggregate(pkg, shares, pubPkg)
	require.NoError(t, err)
	require.Len(t, sig, ed25519.SignatureSize)

	groupKey := ed25519.PublicKey(pubPkg.VerifyingKey.Bytes())
	assert.True(t, ed25519.Verify(groupKey, digest[:], sig))
}

func TestAggregateRejectsBelowThresholdShares(t *testing.T) {
	keyPackages, pubPkg := runDKG(t, 3, 2)
	digest := sha256.Sum256([]byte("too few signers"))

	n, c, err := Commit(keyPackages[Identifier(1)])
	require.NoError(t, err)
	pkg := NewSigningPackage(digest, map[Identifier]SigningCommitments{1: *c})

	share, err := Sign(pkg, n, keyPackages[Identifier(1)])
	require.NoError(t, err)

	_, err = Aggregate(pkg, map[Identifier]*SignatureShare{1: share}, pubPkg)
	assert.Error(t, err)
}

func TestAggregateRejectsForgedShare(t *testing.T) {
	keyPackages, pubPkg := runDKG(t, 3, 2)
	digest := sha256.Sum256([]byte("forged share"))

	signers := []Identifier{1, 2}
	nonces := make(map[Identifier]*SigningNonces, len(signers))
	commitments := make(map[Identifier]SigningCommitments, len(signers))
	for _, id := range signers {
		n, c, err := Commit(keyPackages[id])
		require.NoError(t, err)
		nonces[id] = n
		commitments[id] = *c
	}
	pkg := NewSigningPackage(digest, commitments)

	shares := make(map[Identifier]*SignatureShare, len(signers))
	for _, id := range signers {
		share, err := Sign(pkg, nonces[id], keyPackages[id])
		require.NoError(t, err)
		shares[id] = share
	}

	// Splice in a share computed against a different digest.
	otherDigest := sha256.Sum256([]byte("a different message"))
	otherPkg := NewSigningPackage(otherDigest, commitments)
	forged, err := Sign(otherPkg, nonces[Identifier(1)], keyPackages[Identifier(1)])
	require.NoError(t, err)
	shares[Identifier(1)] = forged

	_, err = Aggregate(pkg, shares, pubPkg)
	assert.Error(t, err)
}

func TestPart1RejectsInvalidThreshold(t *testing.T) {
	_, _, err := Part1(1, 3, 1, []byte("ctx"))
	assert.Error(t, err)

	_, _, err = Part1(1, 3, 4, []byte("ctx"))
	assert.Error(t, err)
}

func TestPart2RejectsInvalidProof(t *testing.T) {
	secretA, pkgA, err := Part1(1, 2, 2, []byte("ctx"))
	require.NoError(t, err)
	_, pkgB, err := Part1(2, 2, 2, []byte("ctx"))
	require.NoError(t, err)

	// Tamper with participant 2's proof of knowledge.
	pkgB.Proof.Z.Add(&pkgB.Proof.Z, &pkgB.Proof.Z)

	_, _, err = Part2(secretA, map[Identifier]*RoundPackage{1: pkgA, 2: pkgB}, []byte("ctx"))
	assert.Error(t, err)
}

func TestLagrangeCoefficientsAreNonZeroAndDistinctPerParticipant(t *testing.T) {
	l1, err := Identifier(1).Lagrange([]Identifier{1, 2, 3})
	require.NoError(t, err)
	l2, err := Identifier(2).Lagrange([]Identifier{1, 2, 3})
	require.NoError(t, err)

	assert.False(t, l1.IsZero())
	assert.False(t, l2.IsZero())
	assert.False(t, l1.Equal(l2))
}
