package curve

import (
	"encoding/base64"
	"encoding/json"

	"filippo.io/edwards25519"
)

// Point is an element of the Ed25519 group.
type Point struct {
	p edwards25519.Point
}

// NewIdentityPoint returns the group identity element.
func NewIdentityPoint() *Point {
	p := &Point{}
	p.p.Set(edwards25519.NewIdentityPoint())
	return p
}

func (p *Point) Set(other *Point) *Point {
	p.p.Set(&other.p)
	return p
}

// ScalarBaseMult sets p = [s]B, where B is the Ed25519 base point.
func (p *Point) ScalarBaseMult(s *Scalar) *Point {
	p.p.ScalarBaseMult(&s.s)
	return p
}

// ScalarMult sets p = [s]q.
func (p *Point) ScalarMult(s *Scalar, q *Point) *Point {
	p.p.ScalarMult(&s.s, &q.p)
	return p
}

func (p *Point) Add(a, b *Point) *Point {
	p.p.Add(&a.p, &b.p)
	return p
}

// Negate sets p = -a.
func (p *Point) Negate(a *Point) *Point {
	p.p.Negate(&a.p)
	return p
}

// VarTimeDoubleScalarBaseMult sets p = [a]A + [b]B, where B is the base point.
func (p *Point) VarTimeDoubleScalarBaseMult(a *Scalar, A *Point, b *Scalar) *Point {
	p.p.VarTimeDoubleScalarBaseMult(&a.s, &A.p, &b.s)
	return p
}

func (p *Point) Equal(other *Point) bool {
	return p.p.Equal(&other.p) == 1
}

func (p *Point) Bytes() []byte {
	return p.p.Bytes()
}

func (p *Point) SetCanonicalBytes(b []byte) (*Point, error) {
	_, err := p.p.SetBytes(b)
	return p, err
}

func (p Point) MarshalJSON() ([]byte, error) {
	return json.Marshal(base64.StdEncoding.EncodeToString(p.Bytes()))
}

func (p *Point) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	b, err := base64.StdEncoding.DecodeString(str)
	if err != nil {
		return err
	}
	_, err = p.SetCanonicalBytes(b)
	return err
}
