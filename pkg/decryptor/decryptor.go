// Package decryptor provides the single-method decryption capability the
// worker pipeline uses to turn an encrypted commitment or random into its
// plaintext integer form. The asymmetric primitive itself is treated as a
// black box; this package only adapts it to the integer-in, integer-out
// shape the commitment pipeline needs.
package decryptor

import (
	"errors"
	"math/big"
)

// ErrDecryptionFailed is the single error kind decrypt failures are mapped
// to, regardless of the underlying cause (malformed ciphertext, padding
// check failure, wrong key). The worker pipeline only distinguishes
// "decrypt failed" from "decrypt succeeded".
var ErrDecryptionFailed = errors.New("decryptor: decryption failed")

// Decryptor decrypts one opaque ciphertext integer to its plaintext
// integer. Implementations must map any internal failure to
// ErrDecryptionFailed so callers never need to inspect a concrete error
// type.
type Decryptor interface {
	Decrypt(ciphertext *big.Int) (*big.Int, error)
}
