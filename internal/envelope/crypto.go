package envelope

import (
	"crypto/rand"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/nacl/box"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/frostkit/frost-cli/internal/xid"
)

// capsule is a per-recipient NaCl box carrying the symmetric key used
// to secretbox-encrypt the signed envelope, implementing spec §4.1's
// "encrypt the signed envelope symmetrically once and wrap one
// per-recipient key capsule using each recipient's encryption public
// key".
type capsule struct {
	EphemeralPublicKey [32]byte `json:"ephemeral_public_key"`
	Nonce              [24]byte `json:"nonce"`
	Box                []byte   `json:"box"`
}

func sealCapsule(symmetricKey [32]byte, recipientPub [32]byte) (*capsule, error) {
	ephPub, ephPriv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("envelope: generate ephemeral key: %w", err)
	}
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("envelope: generate nonce: %w", err)
	}
	sealed := box.Seal(nil, symmetricKey[:], &nonce, &recipientPub, ephPriv)
	return &capsule{EphemeralPublicKey: *ephPub, Nonce: nonce, Box: sealed}, nil
}

func openCapsule(c *capsule, recipientPriv *[32]byte) ([32]byte, error) {
	var key [32]byte
	plain, ok := box.Open(nil, c.Box, &c.Nonce, &c.EphemeralPublicKey, recipientPriv)
	if !ok || len(plain) != 32 {
		return key, fmt.Errorf("envelope: failed to open capsule")
	}
	copy(key[:], plain)
	return key, nil
}

func secretboxSeal(plaintext []byte) (ciphertext []byte, nonce [24]byte, key [32]byte, err error) {
	if _, err = rand.Read(key[:]); err != nil {
		return nil, nonce, key, fmt.Errorf("envelope: generate symmetric key: %w", err)
	}
	if _, err = rand.Read(nonce[:]); err != nil {
		return nil, nonce, key, fmt.Errorf("envelope: generate symmetric nonce: %w", err)
	}
	ciphertext = secretbox.Seal(nil, plaintext, &nonce, &key)
	return ciphertext, nonce, key, nil
}

func secretboxOpen(ciphertext []byte, nonce [24]byte, key [32]byte) ([]byte, error) {
	plain, ok := secretbox.Open(nil, ciphertext, &nonce, &key)
	if !ok {
		return nil, fmt.Errorf("envelope: failed to decrypt ciphertext")
	}
	return plain, nil
}

// capsuleKey is the map key used to find a recipient's capsule: the hex
// of their XID.
func capsuleKey(x xid.XID) string {
	return x.String()
}

// EncryptARIDTo seals a single 32-byte ARID to recipientPub, used by
// the DKG/sign invite builders to hand each participant their own
// private collect-from ARID inside a shared invite envelope (spec
// §4.4's "encrypt that collect-from ARID with that participant's
// encryption public key").
func EncryptARIDTo(value [32]byte, recipientPub [32]byte) ([]byte, error) {
	c, err := sealCapsule(value, recipientPub)
	if err != nil {
		return nil, err
	}
	return json.Marshal(c)
}

// DecryptARIDFrom reverses EncryptARIDTo.
func DecryptARIDFrom(data []byte, recipientPriv *[32]byte) ([32]byte, error) {
	var c capsule
	if err := json.Unmarshal(data, &c); err != nil {
		return [32]byte{}, fmt.Errorf("envelope: decode arid capsule: %w", err)
	}
	return openCapsule(&c, recipientPriv)
}
