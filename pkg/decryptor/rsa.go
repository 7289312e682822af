package decryptor

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
)

// rsaCiphertextBytes is the fixed width of the big-endian ciphertext
// integer RSA decrypts: one 1024-bit encrypted field-element group.
const rsaCiphertextBytes = 128

// RSA decrypts commitment ciphertexts with a PKCS#1 v1.5 private key
// loaded once at construction. The ciphertext integer is treated as a
// fixed-width 128-byte big-endian value; the decrypted plaintext is
// reinterpreted as a big-endian integer.
type RSA struct {
	key *rsa.PrivateKey
}

// NewRSA loads a PEM-encoded RSA private key from path. It accepts both
// PKCS#1 ("RSA PRIVATE KEY") and PKCS#8 ("PRIVATE KEY") PEM blocks.
func NewRSA(path string) (*RSA, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("decryptor: read key file %s: %w", path, err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("decryptor: %s does not contain a PEM block", path)
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return &RSA{key: key}, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("decryptor: parse private key %s: %w", path, err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("decryptor: %s does not hold an RSA private key", path)
	}
	return &RSA{key: key}, nil
}

// Decrypt implements Decryptor.
func (r *RSA) Decrypt(ciphertext *big.Int) (*big.Int, error) {
	ctBytes := ciphertext.Bytes()
	if len(ctBytes) > rsaCiphertextBytes {
		return nil, ErrDecryptionFailed
	}
	padded := make([]byte, rsaCiphertextBytes)
	copy(padded[rsaCiphertextBytes-len(ctBytes):], ctBytes)

	plaintext, err := rsa.DecryptPKCS1v15(rand.Reader, r.key, padded)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return new(big.Int).SetBytes(plaintext), nil
}
