package frost

import "github.com/frostkit/frost-cli/internal/curve"

// Identifier is a FROST participant index, 1..n. Index 0 is never valid:
// the zero value signals "unset".
type Identifier uint16

// Scalar returns the identifier as a curve scalar, used to evaluate
// Shamir polynomials at this participant's point.
func (id Identifier) Scalar() *curve.Scalar {
	return curve.ScalarFromUint64(uint64(id))
}

// Lagrange computes the Lagrange coefficient for id within the given
// participant set, evaluated at x=0 (i.e. interpolating the constant
// term of the sharing polynomial).
func (id Identifier) Lagrange(participants []Identifier) (*curve.Scalar, error) {
	num := curve.ScalarFromUint64(1)
	den := curve.ScalarFromUint64(1)
	self := id.Scalar()

	for _, other := range participants {
		if other == id {
			continue
		}
		otherScalar := other.Scalar()

		num.Multiply(num, otherScalar)

		diff := curve.NewScalar().Subtract(otherScalar, self)
		den.Multiply(den, diff)
	}

	denInv := curve.NewScalar().Invert(den)
	return curve.NewScalar().Multiply(num, denInv), nil
}
