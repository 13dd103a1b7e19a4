package blockproc

import "github.com/bp-node/bpd/internal/chainhash"

// appendSpend returns existing (the current TableSpends value for a
// producer TxNo, a concatenation of 5-byte TxNo entries) with spender
// appended. spec.md §9: "store spends as TxNo -> list<TxNo>. Avoid
// storing full outpoints redundantly."
func appendSpend(existing []byte, spender chainhash.TxNo) []byte {
	b := spender.Bytes()
	out := make([]byte, len(existing)+chainhash.TxNoSize)
	copy(out, existing)
	copy(out[len(existing):], b[:])
	return out
}
