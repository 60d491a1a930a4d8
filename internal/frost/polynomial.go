package frost

import (
	"encoding/json"
	"fmt"

	"github.com/frostkit/frost-cli/internal/curve"
)

// polynomial is a Shamir sharing polynomial f(X) = secret + a1*X + ... +
// at*X^t of degree t, adapted from the teacher's polynomial.Polynomial.
type polynomial struct {
	Coefficients []curve.Scalar `json:"coefficients"`
}

// newPolynomial generates f(X) = constant + random*X + ... of the given
// degree.
func newPolynomial(degree int, constant *curve.Scalar) (*polynomial, error) {
	p := &polynomial{Coefficients: make([]curve.Scalar, degree+1)}
	p.Coefficients[0].Set(constant)

	for i := 1; i <= degree; i++ {
		r, err := curve.RandomScalar()
		if err != nil {
			return nil, fmt.Errorf("frost: sample coefficient: %w", err)
		}
		p.Coefficients[i].Set(r)
	}
	return p, nil
}

// evaluate computes f(x) via Horner's method.
func (p *polynomial) evaluate(x *curve.Scalar) *curve.Scalar {
	result := curve.NewScalar()
	for i := len(p.Coefficients) - 1; i >= 0; i-- {
		result.MultiplyAdd(result, x, &p.Coefficients[i])
	}
	return result
}

func (p *polynomial) constant() *curve.Scalar {
	return curve.NewScalar().Set(&p.Coefficients[0])
}

// commitments returns the exponent (public) commitments to each
// coefficient: Phi_i = [a_i]B.
func (p *polynomial) commitments() *exponent {
	e := &exponent{Coefficients: make([]curve.Point, len(p.Coefficients))}
	for i := range p.Coefficients {
		e.Coefficients[i].ScalarBaseMult(&p.Coefficients[i])
	}
	return e
}

// exponent is the public commitment to a polynomial: one group element
// per coefficient, usable to evaluate [f(x)]B without knowing f.
type exponent struct {
	Coefficients []curve.Point `json:"coefficients"`
}

func (e *exponent) evaluate(x *curve.Scalar) *curve.Point {
	result := curve.NewIdentityPoint()
	xPow := curve.ScalarFromUint64(1)
	for i := 0; i < len(e.Coefficients); i++ {
		term := curve.NewIdentityPoint().ScalarMult(xPow, &e.Coefficients[i])
		result.Add(result, term)
		xPow = curve.NewScalar().Multiply(xPow, x)
	}
	return result
}

func (e *exponent) add(other *exponent) (*exponent, error) {
	if len(e.Coefficients) != len(other.Coefficients) {
		return nil, fmt.Errorf("frost: mismatched commitment degree")
	}
	sum := &exponent{Coefficients: make([]curve.Point, len(e.Coefficients))}
	for i := range e.Coefficients {
		sum.Coefficients[i].Add(&e.Coefficients[i], &other.Coefficients[i])
	}
	return sum, nil
}

func (e *exponent) constant() *curve.Point {
	return curve.NewIdentityPoint().Set(&e.Coefficients[0])
}

func (e *exponent) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Coefficients)
}

func (e *exponent) UnmarshalJSON(data []byte) error {
	return json.Unmarshal(data, &e.Coefficients)
}
