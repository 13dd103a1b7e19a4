// Package dbkv implements IndexDb (spec.md §4.1): the embedded
// key/value store owner. All persisted state lives behind a single
// owner goroutine; callers never touch the underlying store directly,
// only the Txn handles it hands back over a reply channel.
package dbkv

// Table is one of the six logical tables of spec.md §3. The underlying
// store (Badger or LevelDB) has no native notion of tables, so each is
// implemented as a byte-string key prefix.
type Table byte

const (
	// TableMain is the singleton key/value store holding the txno cursor.
	TableMain Table = iota
	// TableBlocks maps BlockHash -> BlockHeader.
	TableBlocks
	// TableTxids maps Txid -> TxNo.
	TableTxids
	// TableTransactions maps TxNo -> Tx.
	TableTransactions
	// TableSpends maps TxNo -> ordered list of producer TxNos.
	TableSpends
	// TableScripts maps script-pubkey bytes -> TxNo.
	TableScripts
)

var prefixes = map[Table][]byte{
	TableMain:         []byte("m:"),
	TableBlocks:       []byte("bk:"),
	TableTxids:        []byte("id:"),
	TableTransactions: []byte("tx:"),
	TableSpends:       []byte("sp:"),
	TableScripts:      []byte("sc:"),
}

// key builds the physical store key for (table, logical key).
func key(t Table, k []byte) []byte {
	p := prefixes[t]
	out := make([]byte, len(p)+len(k))
	copy(out, p)
	copy(out[len(p):], k)
	return out
}

// MainTxnoKey is the single key in TableMain holding the current txno
// cursor (spec.md §3).
var MainTxnoKey = []byte("txno")

// MainTipKey holds the encoded ChainTip so BlockProcessor can resume
// at the correct tip across a restart. Not named in spec.md §3's table
// list (the chain tip is described as purely in-memory there); kept
// here as a small, additive extension rather than a divergence, since
// nothing in §3 forbids an extra key in an existing table.
var MainTipKey = []byte("tip")
