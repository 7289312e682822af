package decryptor

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
)

func TestNullIsIdentity(t *testing.T) {
	var d Null
	in := big.NewInt(424242)
	out, err := d.Decrypt(in)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if out.Cmp(in) != 0 {
		t.Errorf("got %s, want %s", out, in)
	}
}

func writeTestKey(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
	path := filepath.Join(t.TempDir(), "test.pem")
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestRSARoundTrip(t *testing.T) {
	path := writeTestKey(t)
	d, err := NewRSA(path)
	if err != nil {
		t.Fatalf("NewRSA: %v", err)
	}

	plaintext := big.NewInt(777)
	ciphertextBytes, err := rsa.EncryptPKCS1v15(rand.Reader, &d.key.PublicKey, plaintext.Bytes())
	if err != nil {
		t.Fatalf("EncryptPKCS1v15: %v", err)
	}
	ciphertext := new(big.Int).SetBytes(ciphertextBytes)

	got, err := d.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if got.Cmp(plaintext) != 0 {
		t.Errorf("got %s, want %s", got, plaintext)
	}
}

func TestRSADecryptFailsOnGarbage(t *testing.T) {
	path := writeTestKey(t)
	d, err := NewRSA(path)
	if err != nil {
		t.Fatalf("NewRSA: %v", err)
	}

	garbage := new(big.Int).SetBytes([]byte{1, 2, 3, 4})
	if _, err := d.Decrypt(garbage); err != ErrDecryptionFailed {
		t.Errorf("expected ErrDecryptionFailed, got %v", err)
	}
}
