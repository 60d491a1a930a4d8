// Package frost adapts the teacher's from-scratch FROST-Ed25519 round
// functions (messages.Round0/Round1/Round2 for DKG,
// messages.SignRound0/SignRound1/SignRound2 for signing) into the
// Part1/Part2/Part3/Commit/Sign/Aggregate oracle named by spec §4.4 and
// §4.5. Every type here is deliberately opaque JSON the way the
// teacher's KeyGen1/KeyGen2/Sign1/Sign2 messages are: the orchestration
// layer (internal/dkgengine, internal/signengine) never reaches inside
// these structs, only serializes/deserializes and routes them.
package frost

import "github.com/frostkit/frost-cli/internal/curve"

// RoundSecret is the state a participant must retain between Part1 and
// Part2 of DKG (their sharing polynomial and running sum of received
// shares).
type RoundSecret struct {
	Self       Identifier   `json:"self"`
	N          int          `json:"n"`
	Threshold  int          `json:"threshold"`
	Polynomial polynomial   `json:"polynomial"`
	RunningSum curve.Scalar `json:"running_sum"`
}

// RoundPackage is the Part1 broadcast package: a proof of knowledge of
// the constant term plus the public commitments to the whole
// polynomial. Equivalent to the teacher's KeyGen1.
type RoundPackage struct {
	Proof       schnorrProof `json:"proof"`
	Commitments exponent     `json:"commitments"`
}

// Round2Secret is the state retained between Part2 and Part3: the
// accumulated secret share and the commitments collected in Part1
// (needed again to validate VSS in Part3... actually verified in Part2,
// retained for bookkeeping).
type Round2Secret struct {
	Self           Identifier              `json:"self"`
	Threshold      int                     `json:"threshold"`
	SecretShare    curve.Scalar            `json:"secret_share"`
	Commitments    map[Identifier]exponent `json:"commitments"`
	CommitmentsSum exponent                `json:"commitments_sum"`
	Participants   []Identifier            `json:"participants"`
}

// Round2Package is the per-recipient Shamir share sent during Part2,
// equivalent to the teacher's KeyGen2.
type Round2Package struct {
	Share curve.Scalar `json:"share"`
}

// KeyPackage is a participant's final DKG output: their own signing
// share plus the data needed to sign.
type KeyPackage struct {
	Identifier     Identifier   `json:"identifier"`
	SigningShare   curve.Scalar `json:"signing_share"`
	VerifyingShare curve.Point  `json:"verifying_share"`
	VerifyingKey   curve.Point  `json:"verifying_key"`
	Threshold      int          `json:"threshold"`
}

// PublicKeyPackage is the public half of DKG output, common to every
// participant.
type PublicKeyPackage struct {
	VerifyingKey    curve.Point            `json:"verifying_key"`
	VerifyingShares map[Identifier]curve.Point `json:"verifying_shares"`
	Participants    []Identifier           `json:"participants"`
	Threshold       int                    `json:"threshold"`
}

// SigningNonces are a participant's per-session secret nonces,
// equivalent to the teacher's (d, e) pair.
type SigningNonces struct {
	Hiding  curve.Scalar `json:"hiding"`
	Binding curve.Scalar `json:"binding"`
}

// SigningCommitments are the public commitments to a participant's
// nonces, equivalent to the teacher's (Di, Ei).
type SigningCommitments struct {
	Hiding  curve.Point `json:"hiding"`
	Binding curve.Point `json:"binding"`
}

// SignatureShare is a participant's partial signature for one session.
type SignatureShare struct {
	Share curve.Scalar `json:"share"`
}
