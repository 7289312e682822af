package decryptor

import "math/big"

// Null is the identity decryptor: plaintext is the ciphertext unchanged.
// Used in tests and for contracts whose inputs are never encrypted.
type Null struct{}

// Decrypt returns ciphertext unchanged.
func (Null) Decrypt(ciphertext *big.Int) (*big.Int, error) {
	return new(big.Int).Set(ciphertext), nil
}
