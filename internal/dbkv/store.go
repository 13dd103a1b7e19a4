package dbkv

import "io"

// Txn is a single read or write transaction against the underlying
// store. Table operations are plain Get/Put/Delete keyed by a
// (Table, key) pair; the caller is responsible for calling Commit or
// Abort exactly once (spec.md §4.1).
type Txn interface {
	Get(t Table, k []byte) (value []byte, found bool, err error)
	Put(t Table, k, v []byte) error
	Delete(t Table, k []byte) error
	// Iterate calls fn for every key in table t with the given prefix,
	// in key order, stopping early if fn returns false. Nothing in
	// the write path calls it: BlockProcessor's spends-list append
	// reads the single concatenated TableSpends blob with Get. It is
	// part of the interface because IndexDb's contract is
	// table-shaped, not engine-shaped.
	Iterate(t Table, prefix []byte, fn func(k, v []byte) bool) error
	Commit() error
	Abort()
}

// Store is the underlying embedded key/value engine. bpd ships two
// implementations (Badger and LevelDB) behind this one interface,
// mirroring the teacher's own multi-backend DBManager design
// (storage/database/db_manager.go).
type Store interface {
	io.Closer
	NewTransaction(writable bool) (Txn, error)
	// Compact runs the store's background compaction. Called once at
	// shutdown (spec.md §4.1), from each backend's Close.
	Compact() error
}
