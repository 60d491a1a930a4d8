// Package arid implements the single-use rendezvous coordinates of
// spec §3: 32 random bytes, never reused, displayed as "ur:arid/..."
// strings per spec §6.
package arid

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// ARID is a 32-byte single-use rendezvous coordinate.
type ARID [32]byte

// New mints a fresh random ARID.
func New() (ARID, error) {
	var a ARID
	if _, err := rand.Read(a[:]); err != nil {
		return a, fmt.Errorf("arid: failed to generate random id: %w", err)
	}
	return a, nil
}

// MustNew mints a fresh ARID and panics on (practically impossible)
// entropy failure; used only where the caller has no error path left,
// e.g. package-level test fixtures.
func MustNew() ARID {
	a, err := New()
	if err != nil {
		panic(err)
	}
	return a
}

func (a ARID) String() string {
	return "ur:arid/" + base64.RawURLEncoding.EncodeToString(a[:])
}

// Hex renders the ARID as a bare hex string, used for the on-disk
// group-state directory names of spec §6.
func (a ARID) Hex() string {
	return fmt.Sprintf("%x", a[:])
}

// Parse accepts either a bare "ur:arid/..." string or a raw base64url
// string.
func Parse(s string) (ARID, error) {
	var a ARID
	s = strings.TrimPrefix(s, "ur:arid/")
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return a, fmt.Errorf("arid: invalid encoding: %w", err)
	}
	if len(b) != 32 {
		return a, fmt.Errorf("arid: expected 32 bytes, got %d", len(b))
	}
	copy(a[:], b)
	return a, nil
}

func (a ARID) MarshalJSON() ([]byte, error) {
	return json.Marshal(base64.StdEncoding.EncodeToString(a[:]))
}

func (a *ARID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return err
	}
	if len(b) != 32 {
		return fmt.Errorf("arid: expected 32 bytes, got %d", len(b))
	}
	copy(a[:], b)
	return nil
}

// MarshalText/UnmarshalText let an ARID serve directly as a JSON object
// key (encoding/json only consults encoding.TextMarshaler for map
// keys, never MarshalJSON), so maps like pending-request bookkeeping
// keyed by ARID round-trip without a separate slice encoding.
func (a ARID) MarshalText() ([]byte, error) {
	return []byte(base64.StdEncoding.EncodeToString(a[:])), nil
}

func (a *ARID) UnmarshalText(text []byte) error {
	b, err := base64.StdEncoding.DecodeString(string(text))
	if err != nil {
		return err
	}
	if len(b) != 32 {
		return fmt.Errorf("arid: expected 32 bytes, got %d", len(b))
	}
	copy(a[:], b)
	return nil
}

// Zero reports whether the ARID is the zero value (unset).
func (a ARID) Zero() bool {
	return a == ARID{}
}
