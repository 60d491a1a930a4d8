// Package xid implements the long-lived participant identity documents
// of spec §3: an inception signing keypair, an inception encryption
// keypair, and the 32-byte hash (the XID) that addresses them. No
// library in the retrieval pack implements Gordian-style XID documents,
// so this is a from-scratch implementation grounded on the stdlib
// primitives the pack already favors for identity material
// (crypto/ed25519 for signing, golang.org/x/crypto/curve25519 for
// encryption — both already pulled in by the teacher's and SAGE-X's
// dependency graphs).
package xid

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/crypto/curve25519"
)

// XID is the 32-byte hash of a party's inception keys.
type XID [32]byte

func (x XID) String() string {
	return "ur:xid/" + base64.RawURLEncoding.EncodeToString(x[:])
}

func (x XID) MarshalJSON() ([]byte, error) {
	return json.Marshal(base64.StdEncoding.EncodeToString(x[:]))
}

func (x *XID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return err
	}
	if len(b) != 32 {
		return fmt.Errorf("xid: expected 32 bytes, got %d", len(b))
	}
	copy(x[:], b)
	return nil
}

// MarshalText/UnmarshalText let an XID serve directly as a JSON object
// key, mirroring arid.ARID's rationale.
func (x XID) MarshalText() ([]byte, error) {
	return []byte(base64.StdEncoding.EncodeToString(x[:])), nil
}

func (x *XID) UnmarshalText(text []byte) error {
	b, err := base64.StdEncoding.DecodeString(string(text))
	if err != nil {
		return err
	}
	if len(b) != 32 {
		return fmt.Errorf("xid: expected 32 bytes, got %d", len(b))
	}
	copy(x[:], b)
	return nil
}

// Less orders XIDs lexicographically, the canonical "sort all group
// XIDs ascending" rule of spec §3.
func (x XID) Less(other XID) bool {
	return bytes.Compare(x[:], other[:]) < 0
}

// Parse accepts either a "ur:xid/"-prefixed or bare base64url string.
func Parse(s string) (XID, error) {
	var x XID
	s = strings.TrimPrefix(s, "ur:xid/")
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return x, fmt.Errorf("xid: invalid string %q: %w", s, err)
	}
	if len(b) != 32 {
		return x, fmt.Errorf("xid: expected 32 bytes, got %d", len(b))
	}
	copy(x[:], b)
	return x, nil
}

// Document is a signed XID document: the public material every other
// party needs (signing key, encryption key), plus the private keys when
// this document describes the local owner.
type Document struct {
	SigningPublicKey    ed25519.PublicKey `json:"signing_public_key"`
	EncryptionPublicKey [32]byte          `json:"encryption_public_key"`

	signingPrivateKey    ed25519.PrivateKey
	encryptionPrivateKey *[32]byte
}

// NewDocument generates a fresh inception keypair pair and returns the
// document holding both public and private material.
func NewDocument() (*Document, error) {
	signPub, signPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("xid: generate signing key: %w", err)
	}

	var encPriv [32]byte
	if _, err := rand.Read(encPriv[:]); err != nil {
		return nil, fmt.Errorf("xid: generate encryption key: %w", err)
	}
	// Clamp per curve25519 scalar conventions.
	encPriv[0] &= 248
	encPriv[31] &= 127
	encPriv[31] |= 64

	var encPub [32]byte
	curve25519.ScalarBaseMult(&encPub, &encPriv)

	return &Document{
		SigningPublicKey:     signPub,
		EncryptionPublicKey:  encPub,
		signingPrivateKey:    signPriv,
		encryptionPrivateKey: &encPriv,
	}, nil
}

// XID computes this document's identity hash.
func (d *Document) XID() XID {
	h := sha256.New()
	h.Write(d.SigningPublicKey)
	h.Write(d.EncryptionPublicKey[:])
	var out XID
	copy(out[:], h.Sum(nil))
	return out
}

// HasPrivateKeys reports whether this document can sign/decrypt, i.e.
// whether it is the local owner's own document.
func (d *Document) HasPrivateKeys() bool {
	return d.signingPrivateKey != nil && d.encryptionPrivateKey != nil
}

// Sign signs data with the inception signing private key.
func (d *Document) Sign(data []byte) ([]byte, error) {
	if d.signingPrivateKey == nil {
		return nil, fmt.Errorf("xid: document for %s has no signing private key", d.XID())
	}
	return ed25519.Sign(d.signingPrivateKey, data), nil
}

// Verify checks a signature against this document's public signing key.
func (d *Document) Verify(data, sig []byte) bool {
	return ed25519.Verify(d.SigningPublicKey, data, sig)
}

// EncryptionPrivateKey returns the raw private scalar, used by the
// envelope codec to open capsules addressed to this document.
func (d *Document) EncryptionPrivateKey() (*[32]byte, error) {
	if d.encryptionPrivateKey == nil {
		return nil, fmt.Errorf("xid: document for %s has no encryption private key", d.XID())
	}
	return d.encryptionPrivateKey, nil
}

// Public returns a copy of the document stripped of any private key
// material, safe to hand to other parties or persist in participant
// records.
func (d *Document) Public() *Document {
	return &Document{
		SigningPublicKey:    append(ed25519.PublicKey(nil), d.SigningPublicKey...),
		EncryptionPublicKey: d.EncryptionPublicKey,
	}
}

// ToUR renders this document's public fields as a self-signed
// "ur:xiddoc/..." string, the "signed-xid-ur" CLI argument shape of
// spec §6, mirroring envelope.ToUR's base64url-of-JSON convention.
func (d *Document) ToUR() (string, error) {
	pub := d.Public()
	body, err := json.Marshal(pub)
	if err != nil {
		return "", fmt.Errorf("xid: marshal document: %w", err)
	}
	sig, err := d.Sign(body)
	if err != nil {
		return "", err
	}
	wire := struct {
		Document  json.RawMessage `json:"document"`
		Signature []byte          `json:"signature"`
	}{Document: body, Signature: sig}
	data, err := json.Marshal(wire)
	if err != nil {
		return "", err
	}
	return "ur:xiddoc/" + base64.RawURLEncoding.EncodeToString(data), nil
}

// ParseDocumentUR parses a "ur:xiddoc/..." string, verifying the
// embedded self-signature before returning the document.
func ParseDocumentUR(s string) (*Document, error) {
	s = strings.TrimPrefix(s, "ur:xiddoc/")
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("xid: invalid document UR: %w", err)
	}
	var wire struct {
		Document  json.RawMessage `json:"document"`
		Signature []byte          `json:"signature"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("xid: parse document UR: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(wire.Document, &doc); err != nil {
		return nil, fmt.Errorf("xid: parse document: %w", err)
	}
	if !doc.Verify(wire.Document, wire.Signature) {
		return nil, fmt.Errorf("xid: document self-signature does not verify")
	}
	return &doc, nil
}

// ToPrivateUR renders the full document, private key material
// included, as a self-signed "ur:xiddoc/..." string. Unlike ToUR (which
// strips to the public-only form shared with peers), this is for an
// owner persisting their own identity into the registry file; the
// signature still covers only what Verify can check, the public keys,
// so a ToPrivateUR document verifies under the same rule as a public
// one.
func (d *Document) ToPrivateUR() (string, error) {
	body, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("xid: marshal document: %w", err)
	}
	sig, err := d.Sign(body)
	if err != nil {
		return "", err
	}
	wire := struct {
		Document  json.RawMessage `json:"document"`
		Signature []byte          `json:"signature"`
	}{Document: body, Signature: sig}
	data, err := json.Marshal(wire)
	if err != nil {
		return "", err
	}
	return "ur:xiddoc/" + base64.RawURLEncoding.EncodeToString(data), nil
}

// ParsePrivateDocumentUR parses a ToPrivateUR string, preserving
// whatever private key material it carries.
func ParsePrivateDocumentUR(s string) (*Document, error) {
	return ParseDocumentUR(s)
}

type documentJSON struct {
	SigningPublicKey     []byte  `json:"signing_public_key"`
	EncryptionPublicKey  [32]byte `json:"encryption_public_key"`
	SigningPrivateKey    []byte  `json:"signing_private_key,omitempty"`
	EncryptionPrivateKey *[32]byte `json:"encryption_private_key,omitempty"`
}

func (d *Document) MarshalJSON() ([]byte, error) {
	aux := documentJSON{
		SigningPublicKey:    d.SigningPublicKey,
		EncryptionPublicKey: d.EncryptionPublicKey,
	}
	if d.signingPrivateKey != nil {
		aux.SigningPrivateKey = d.signingPrivateKey
	}
	if d.encryptionPrivateKey != nil {
		aux.EncryptionPrivateKey = d.encryptionPrivateKey
	}
	return json.Marshal(aux)
}

func (d *Document) UnmarshalJSON(data []byte) error {
	var aux documentJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	d.SigningPublicKey = aux.SigningPublicKey
	d.EncryptionPublicKey = aux.EncryptionPublicKey
	if len(aux.SigningPrivateKey) > 0 {
		d.signingPrivateKey = aux.SigningPrivateKey
	}
	if aux.EncryptionPrivateKey != nil {
		d.encryptionPrivateKey = aux.EncryptionPrivateKey
	}
	return nil
}
