package verify

import (
	"crypto/ed25519"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
)

func generateKeypair(t *testing.T) (pub, priv string, signer ed25519.PrivateKey) {
	t.Helper()
	pubKey, privKey, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate keypair: %v", err)
	}
	return base64.StdEncoding.EncodeToString(pubKey), base64.StdEncoding.EncodeToString(privKey), privKey
}

func TestVerifyFile_ValidSignature(t *testing.T) {
	pub, _, priv := generateKeypair(t)
	v, err := New(pub)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	data := []byte("release archive bytes")
	path := filepath.Join(t.TempDir(), "download.zip")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	sig := base64.StdEncoding.EncodeToString(ed25519.Sign(priv, data))

	if !v.VerifyFile(path, sig) {
		t.Fatal("expected valid signature to verify")
	}
}

func TestVerifyFile_TamperedContent(t *testing.T) {
	pub, _, priv := generateKeypair(t)
	v, _ := New(pub)

	data := []byte("release archive bytes")
	sig := base64.StdEncoding.EncodeToString(ed25519.Sign(priv, data))

	path := filepath.Join(t.TempDir(), "download.zip")
	if err := os.WriteFile(path, []byte("tampered bytes"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	if v.VerifyFile(path, sig) {
		t.Fatal("expected tampered content to fail verification")
	}
}

func TestVerifyFile_WrongKey(t *testing.T) {
	_, _, priv := generateKeypair(t)
	otherPub, _, _ := generateKeypair(t)
	v, _ := New(otherPub)

	data := []byte("release archive bytes")
	sig := base64.StdEncoding.EncodeToString(ed25519.Sign(priv, data))

	path := filepath.Join(t.TempDir(), "download.zip")
	os.WriteFile(path, data, 0o644)

	if v.VerifyFile(path, sig) {
		t.Fatal("expected signature from a different key to fail verification")
	}
}

func TestVerifyFile_MissingFile(t *testing.T) {
	pub, _, priv := generateKeypair(t)
	v, _ := New(pub)
	sig := base64.StdEncoding.EncodeToString(ed25519.Sign(priv, []byte("x")))

	if v.VerifyFile(filepath.Join(t.TempDir(), "does-not-exist.zip"), sig) {
		t.Fatal("expected missing file to fail verification")
	}
}

func TestVerifyFile_MalformedSignature(t *testing.T) {
	pub, _, _ := generateKeypair(t)
	v, _ := New(pub)

	path := filepath.Join(t.TempDir(), "download.zip")
	os.WriteFile(path, []byte("data"), 0o644)

	cases := []string{
		"not-base64!!!",
		base64.StdEncoding.EncodeToString([]byte("too short")),
		"",
	}
	for _, sig := range cases {
		if v.VerifyFile(path, sig) {
			t.Errorf("expected signature %q to fail verification", sig)
		}
	}
}

func TestNew_RejectsBadPublicKey(t *testing.T) {
	cases := []string{
		"not-base64!!!",
		base64.StdEncoding.EncodeToString([]byte("too short")),
		base64.StdEncoding.EncodeToString(make([]byte, 64)),
	}
	for _, key := range cases {
		if _, err := New(key); err == nil {
			t.Errorf("expected New(%q) to fail", key)
		}
	}
}

func TestNew_AcceptsBakedInConstant(t *testing.T) {
	if _, err := New(PublicKeyBase64); err != nil {
		t.Fatalf("baked-in public key constant failed to decode: %v", err)
	}
}

func TestVerifyBytes_MatchesVerifyFile(t *testing.T) {
	pub, _, priv := generateKeypair(t)
	v, _ := New(pub)

	data := []byte("release archive bytes")
	sig := base64.StdEncoding.EncodeToString(ed25519.Sign(priv, data))

	path := filepath.Join(t.TempDir(), "download.zip")
	os.WriteFile(path, data, 0o644)

	if v.VerifyFile(path, sig) != v.VerifyBytes(data, sig) {
		t.Fatal("VerifyFile and VerifyBytes disagree on the same input")
	}
}
