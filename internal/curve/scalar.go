// Package curve wraps filippo.io/edwards25519 the way the teacher's
// ristretto package wrapped its own group arithmetic: thin value types
// with JSON marshaling as base64 of canonical bytes, so every FROST
// artifact round-trips through the registry's JSON files unchanged.
package curve

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"filippo.io/edwards25519"
)

// Scalar is an element of the scalar field of the Ed25519 group.
type Scalar struct {
	s edwards25519.Scalar
}

// NewScalar returns the additive identity (zero).
func NewScalar() *Scalar {
	return &Scalar{}
}

// RandomScalar samples a uniformly random non-zero scalar.
func RandomScalar() (*Scalar, error) {
	var buf [64]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return nil, fmt.Errorf("curve: failed to sample random scalar: %w", err)
	}
	s, err := new(edwards25519.Scalar).SetUniformBytes(buf[:])
	if err != nil {
		return nil, err
	}
	return &Scalar{s: *s}, nil
}

// ScalarFromUint64 builds a scalar from a small non-negative integer,
// used to encode FROST participant identifiers.
func ScalarFromUint64(v uint64) *Scalar {
	var buf [32]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (8 * i))
	}
	s, err := new(edwards25519.Scalar).SetCanonicalBytes(buf[:])
	if err != nil {
		// buf is a valid reduced 32-byte little-endian encoding for any
		// uint64, so this can never fail.
		panic(err)
	}
	return &Scalar{s: *s}
}

func (s *Scalar) Set(other *Scalar) *Scalar {
	s.s.Set(&other.s)
	return s
}

func (s *Scalar) Add(a, b *Scalar) *Scalar {
	s.s.Add(&a.s, &b.s)
	return s
}

func (s *Scalar) Subtract(a, b *Scalar) *Scalar {
	s.s.Subtract(&a.s, &b.s)
	return s
}

func (s *Scalar) Multiply(a, b *Scalar) *Scalar {
	s.s.Multiply(&a.s, &b.s)
	return s
}

// MultiplyAdd sets s = a*b + c, mirroring the teacher's Horner-method
// helper used in polynomial evaluation.
func (s *Scalar) MultiplyAdd(a, b, c *Scalar) *Scalar {
	s.s.MultiplyAdd(&a.s, &b.s, &c.s)
	return s
}

func (s *Scalar) Invert(a *Scalar) *Scalar {
	s.s.Invert(&a.s)
	return s
}

func (s *Scalar) Negate(a *Scalar) *Scalar {
	s.s.Negate(&a.s)
	return s
}

func (s *Scalar) Equal(other *Scalar) bool {
	return s.s.Equal(&other.s) == 1
}

func (s *Scalar) IsZero() bool {
	return s.Equal(NewScalar())
}

func (s *Scalar) Bytes() []byte {
	return s.s.Bytes()
}

func (s *Scalar) SetCanonicalBytes(b []byte) (*Scalar, error) {
	_, err := s.s.SetCanonicalBytes(b)
	return s, err
}

func (s *Scalar) SetUniformBytes(b []byte) (*Scalar, error) {
	_, err := s.s.SetUniformBytes(b)
	return s, err
}

func (s Scalar) MarshalJSON() ([]byte, error) {
	return json.Marshal(base64.StdEncoding.EncodeToString(s.Bytes()))
}

func (s *Scalar) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	b, err := base64.StdEncoding.DecodeString(str)
	if err != nil {
		return err
	}
	_, err = s.SetCanonicalBytes(b)
	return err
}
