package wire

import "crypto/sha256"

// doubleSHA256 is Bitcoin's standard block/transaction hashing
// function. Stdlib sha256 is used directly — this is consensus math,
// not a concern any corpus dependency provides a hashing primitive
// for beyond the standard library itself.
func doubleSHA256(b []byte) [32]byte {
	first := sha256.Sum256(b)
	return sha256.Sum256(first[:])
}
