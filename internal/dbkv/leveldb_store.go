// LevelDB-backed Store, adapted from the teacher's
// storage/database/leveldb_database.go, offered as the second
// selectable IndexDb backend (mirroring the teacher's own
// multi-backend DBManager design in db_manager.go).
package dbkv

import (
	"os"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	ldberrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/bp-node/bpd/internal/log"
)

type levelDBStore struct {
	dir string
	db  *leveldb.DB
	log *log.Logger
}

// OpenLevelDB opens (or creates) a LevelDB-backed Store at dir.
func OpenLevelDB(dir string, create bool) (Store, error) {
	logger := log.NewModuleLogger(log.ModuleIndexDb).With("backend", "leveldb", "dir", dir)

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if !create {
			return nil, errors.Wrap(err, "dbkv: index store does not exist, run init first")
		}
	}

	db, err := leveldb.OpenFile(dir, &opt.Options{})
	if _, corrupted := err.(*ldberrors.ErrCorrupted); corrupted {
		db, err = leveldb.RecoverFile(dir, nil)
	}
	if err != nil {
		return nil, errors.Wrap(err, "dbkv: open leveldb store")
	}
	return &levelDBStore{dir: dir, db: db, log: logger}, nil
}

func (s *levelDBStore) NewTransaction(writable bool) (Txn, error) {
	if !writable {
		snap, err := s.db.GetSnapshot()
		if err != nil {
			return nil, errors.Wrap(err, "dbkv: snapshot")
		}
		return &levelDBReadTxn{snap: snap}, nil
	}
	tx, err := s.db.OpenTransaction()
	if err != nil {
		return nil, errors.Wrap(err, "dbkv: open transaction")
	}
	return &levelDBWriteTxn{tx: tx}, nil
}

func (s *levelDBStore) Compact() error {
	if err := s.db.CompactRange(util.Range{}); err != nil {
		return errors.Wrap(err, "dbkv: compact")
	}
	return nil
}

func (s *levelDBStore) Close() error {
	if err := s.Compact(); err != nil {
		s.log.Warn("compaction before close failed", "err", err)
	}
	return s.db.Close()
}

// levelDBReadTxn wraps a point-in-time snapshot; writes are rejected.
type levelDBReadTxn struct {
	snap *leveldb.Snapshot
}

func (t *levelDBReadTxn) Get(table Table, k []byte) ([]byte, bool, error) {
	v, err := t.snap.Get(key(table, k), nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "dbkv: get")
	}
	return v, true, nil
}

func (t *levelDBReadTxn) Put(Table, []byte, []byte) error {
	return errors.New("dbkv: write on a read-only transaction")
}

func (t *levelDBReadTxn) Delete(Table, []byte) error {
	return errors.New("dbkv: write on a read-only transaction")
}

func (t *levelDBReadTxn) Iterate(table Table, prefix []byte, fn func(k, v []byte) bool) error {
	return iterateLevelDB(t.snap.NewIterator(util.BytesPrefix(key(table, prefix)), nil), table, fn)
}

func (t *levelDBReadTxn) Commit() error { t.snap.Release(); return nil }
func (t *levelDBReadTxn) Abort()        { t.snap.Release() }

// levelDBWriteTxn wraps goleveldb's own atomic Transaction type.
type levelDBWriteTxn struct {
	tx *leveldb.Transaction
}

func (t *levelDBWriteTxn) Get(table Table, k []byte) ([]byte, bool, error) {
	v, err := t.tx.Get(key(table, k), nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "dbkv: get")
	}
	return v, true, nil
}

func (t *levelDBWriteTxn) Put(table Table, k, v []byte) error {
	if err := t.tx.Put(key(table, k), v, nil); err != nil {
		return errors.Wrap(err, "dbkv: put")
	}
	return nil
}

func (t *levelDBWriteTxn) Delete(table Table, k []byte) error {
	if err := t.tx.Delete(key(table, k), nil); err != nil {
		return errors.Wrap(err, "dbkv: delete")
	}
	return nil
}

func (t *levelDBWriteTxn) Iterate(table Table, prefix []byte, fn func(k, v []byte) bool) error {
	return iterateLevelDB(t.tx.NewIterator(util.BytesPrefix(key(table, prefix)), nil), table, fn)
}

func (t *levelDBWriteTxn) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return errors.Wrap(err, "dbkv: commit")
	}
	return nil
}

func (t *levelDBWriteTxn) Abort() { t.tx.Discard() }

func iterateLevelDB(it iterator.Iterator, table Table, fn func(k, v []byte) bool) error {
	defer it.Release()
	tablePrefix := prefixes[table]
	for it.Next() {
		k := it.Key()
		logicalKey := make([]byte, len(k)-len(tablePrefix))
		copy(logicalKey, k[len(tablePrefix):])
		v := make([]byte, len(it.Value()))
		copy(v, it.Value())
		if !fn(logicalKey, v) {
			break
		}
	}
	return it.Error()
}
