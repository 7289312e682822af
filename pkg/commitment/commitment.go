// Copyright 2025 Certen Protocol
//
// Package commitment implements the chunked modular arithmetic used to check
// that a decrypted commitment and its auxiliary random reproduce the
// on-chain published hash, and to build the decimal argument string the
// proving toolchain expects for compute-witness.

package commitment

import (
	"crypto/sha256"
	"fmt"
	"math/big"
)

// ScalarFieldModulus is the modulus used for the chunkwise "+random mod P"
// transformation in the hash-check path: the BN254 scalar field order
// minus one. This is a fixed constant of the system, not a derived
// value; do not compute it from gnark-crypto's field order.
var ScalarFieldModulus, _ = new(big.Int).SetString("21888242871839275222246405745257275088548364400416034343698204186575808495616", 10)

const (
	// FieldBits is the bit width of one field element (a published hash).
	FieldBits = 256
	// CommitmentBits is the bit width of one decrypted commitment value,
	// reassembled from four 128-bit chunks for the hash check.
	CommitmentBits = 512
	// ChunkBits is the width of each chunk the hash check operates on.
	ChunkBits = 128
)

// Int2ByteStr renders n as a big-endian byte string of exactly bits/8
// bytes. n must fit in bits bits; callers that violate this get a
// truncated result, matching the wire format's fixed-width framing.
func Int2ByteStr(n *big.Int, bits int) []byte {
	size := bits / 8
	out := make([]byte, size)
	b := n.Bytes()
	if len(b) > size {
		b = b[len(b)-size:]
	}
	copy(out[size-len(b):], b)
	return out
}

// ByteStr2Int is the inverse of Int2ByteStr: big-endian bytes to integer.
func ByteStr2Int(b []byte) *big.Int {
	return new(big.Int).SetBytes(b)
}

// splitChunks splits n (a totalBits-wide value) into big-endian ordered
// chunks of chunkBits each, most significant chunk first.
func splitChunks(n *big.Int, totalBits, chunkBits int) []*big.Int {
	count := totalBits / chunkBits
	whole := Int2ByteStr(n, totalBits)
	chunkBytes := chunkBits / 8
	chunks := make([]*big.Int, count)
	for i := 0; i < count; i++ {
		start := i * chunkBytes
		chunks[i] = ByteStr2Int(whole[start : start+chunkBytes])
	}
	return chunks
}

// joinChunks reassembles big-endian ordered chunkBits-wide chunks into a
// single totalBits-wide integer; the inverse of splitChunks.
func joinChunks(chunks []*big.Int, chunkBits int) *big.Int {
	totalBits := len(chunks) * chunkBits
	buf := make([]byte, 0, totalBits/8)
	for _, c := range chunks {
		buf = append(buf, Int2ByteStr(c, chunkBits)...)
	}
	return ByteStr2Int(buf)
}

// wrapChunks applies "(chunk + random) mod P" to each 128-bit chunk of a
// 512-bit commitment and reassembles the result. This is the transform
// the hash check runs before hashing, and the one generate_commitments
// must invert.
func wrapChunks(commitment, random *big.Int) *big.Int {
	chunks := splitChunks(commitment, CommitmentBits, ChunkBits)
	wrapped := make([]*big.Int, len(chunks))
	for i, c := range chunks {
		wrapped[i] = new(big.Int).Add(c, random)
		wrapped[i].Mod(wrapped[i], ScalarFieldModulus)
	}
	return joinChunks(wrapped, ChunkBits)
}

// unwrapChunks applies "(chunk - random) mod P" to each 128-bit chunk of a
// wrapped 512-bit value, the left-inverse of wrapChunks.
func unwrapChunks(wrapped, random *big.Int) *big.Int {
	chunks := splitChunks(wrapped, CommitmentBits, ChunkBits)
	original := make([]*big.Int, len(chunks))
	for i, c := range chunks {
		d := new(big.Int).Sub(c, random)
		d.Mod(d, ScalarFieldModulus)
		original[i] = d
	}
	return joinChunks(original, ChunkBits)
}

// ComputeHash reproduces the published per-commitment hash: wrap the
// commitment's 128-bit chunks with the random mod P, serialize the
// reassembled 512-bit value, and SHA-256 it. The result is interpreted
// as a big-endian integer, directly comparable to the on-chain hash.
func ComputeHash(commitment, random *big.Int) *big.Int {
	wrapped := wrapChunks(commitment, random)
	serialized := Int2ByteStr(wrapped, CommitmentBits)
	sum := sha256.Sum256(serialized)
	return ByteStr2Int(sum[:])
}

// VerifyHash reports whether commitment, random and hash are mutually
// consistent under the hash-check transform.
func VerifyHash(commitment, random, hash *big.Int) bool {
	return ComputeHash(commitment, random).Cmp(hash) == 0
}

// GenerateCommitments recovers the original commitment values from their
// wrapped ("biased") form given the matching randoms. It is the
// left-inverse of the add-and-wrap transformation used by ComputeHash:
// unwrapChunks(wrapChunks(c, r), r) == c for any c in [0, 2^512) and any r.
func GenerateCommitments(biased, randoms []*big.Int) ([]*big.Int, error) {
	if len(biased) != len(randoms) {
		return nil, fmt.Errorf("commitment: biased/randoms length mismatch (%d != %d)", len(biased), len(randoms))
	}
	out := make([]*big.Int, len(biased))
	for i := range biased {
		out[i] = unwrapChunks(biased[i], randoms[i])
	}
	return out, nil
}

// BuildWitnessArgs builds the space-separated decimal argument string the
// proving toolchain's compute-witness subcommand expects. For each
// index i it emits the four 128-bit chunks of commitments[i] (most
// significant first), then randoms[i] verbatim, then the two 128-bit
// halves of hashes[i]. Entries are concatenated across all indices with
// single spaces.
func BuildWitnessArgs(commitments, randoms, hashes []*big.Int) (string, error) {
	if len(commitments) != len(randoms) || len(commitments) != len(hashes) {
		return "", fmt.Errorf("commitment: commitments/randoms/hashes length mismatch (%d/%d/%d)", len(commitments), len(randoms), len(hashes))
	}

	var out []byte
	appendTerm := func(n *big.Int) {
		if len(out) > 0 {
			out = append(out, ' ')
		}
		out = append(out, []byte(n.String())...)
	}

	for i := range commitments {
		for _, chunk := range splitChunks(commitments[i], CommitmentBits, ChunkBits) {
			appendTerm(chunk)
		}
		appendTerm(randoms[i])
		for _, half := range splitChunks(hashes[i], FieldBits, FieldBits/2) {
			appendTerm(half)
		}
	}
	return string(out), nil
}
