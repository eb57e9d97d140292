// Package verify checks the Ed25519 detached signature on a downloaded
// update archive against a public key baked into the binary.
//
// # Security model
//
// The supervisor trusts exactly one Ed25519 public key, compiled in as a
// constant (PublicKeyBase64 below). There is no keyring, no trust-on-first-
// use, and no network call: verification is a pure function of the archive
// bytes, the signature from the appcast, and that constant. A version is
// never extracted, tested, or activated unless this check returns true
// (invariant I7 on the core Supervisor/Updater).
package verify

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"os"
)

const (
	publicKeySize = ed25519.PublicKeySize // 32
	signatureSize = ed25519.SignatureSize // 64
)

// PublicKeyBase64 is the compile-time trust anchor for release signing.
// In a real build this is the project's actual Ed25519 public key; it is a
// placeholder generated for this repository so the verifier has a concrete
// constant to check lengths and failure paths against.
const PublicKeyBase64 = "wMxn5fOzC+rNgn3/OAoNUCDP9KXAdI3GCzL0yWCzGzA="

// Verifier verifies Ed25519 detached signatures against a fixed public key.
type Verifier struct {
	publicKey ed25519.PublicKey
}

// New constructs a Verifier from a base64-encoded 32-byte Ed25519 public
// key. Call with verify.PublicKeyBase64 in production; tests pass their own
// generated keypair's public half.
func New(publicKeyBase64 string) (*Verifier, error) {
	raw, err := base64.StdEncoding.DecodeString(publicKeyBase64)
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	if len(raw) != publicKeySize {
		return nil, fmt.Errorf("public key has %d bytes, want %d", len(raw), publicKeySize)
	}
	return &Verifier{publicKey: ed25519.PublicKey(raw)}, nil
}

// VerifyFile reads filePath in full and checks signatureBase64 against it
// using the verifier's public key. Any decode failure, length mismatch,
// read error, or failed verification returns false with no error — per
// spec, verification failure is a boolean outcome, not an exceptional one.
func (v *Verifier) VerifyFile(filePath, signatureBase64 string) bool {
	sig, err := base64.StdEncoding.DecodeString(signatureBase64)
	if err != nil || len(sig) != signatureSize {
		return false
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return false
	}
	return ed25519.Verify(v.publicKey, data, sig)
}

// VerifyBytes is the in-memory equivalent of VerifyFile, used by tests and
// by any caller that already holds the archive in memory.
func (v *Verifier) VerifyBytes(data []byte, signatureBase64 string) bool {
	sig, err := base64.StdEncoding.DecodeString(signatureBase64)
	if err != nil || len(sig) != signatureSize {
		return false
	}
	return ed25519.Verify(v.publicKey, data, sig)
}
