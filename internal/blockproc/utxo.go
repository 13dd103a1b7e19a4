package blockproc

import "github.com/bp-node/bpd/internal/chainhash"

// UtxoKey identifies a single transaction output.
type UtxoKey struct {
	Txid chainhash.Txid
	Vout uint32
}

// UtxoMap tracks unspent outputs as (txid, vout) -> producer TxNo
// (spec.md §4.2 step d). It is purely in-memory and rebuilt from
// nothing on restart: spec.md's GLOSSARY calls it "in-memory" without
// a recovery procedure, and §1's non-goals exclude reorg handling
// beyond the orphan window, so no attempt is made to reconstruct it
// from persisted transactions after a crash.
type UtxoMap map[UtxoKey]chainhash.TxNo

// Put records the output produced by txno.
func (m UtxoMap) Put(txid chainhash.Txid, vout uint32, txno chainhash.TxNo) {
	m[UtxoKey{Txid: txid, Vout: vout}] = txno
}

// Take removes and returns the producer TxNo for (txid, vout), as at
// the moment a later block's input spends it — invariant 8.3 requires
// the entry to be gone by the time that block commits.
func (m UtxoMap) Take(txid chainhash.Txid, vout uint32) (chainhash.TxNo, bool) {
	k := UtxoKey{Txid: txid, Vout: vout}
	txno, ok := m[k]
	if ok {
		delete(m, k)
	}
	return txno, ok
}
