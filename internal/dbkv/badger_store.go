// Badger-backed Store, adapted from the teacher's
// storage/database/badger_database.go: same Open/transaction/GC-ticker
// shape, generalized from a flat keyspace to the prefixed tables of
// dbkv.Table.
package dbkv

import (
	"os"
	"time"

	"github.com/dgraph-io/badger"
	"github.com/pkg/errors"

	"github.com/bp-node/bpd/internal/log"
)

const (
	gcThreshold     = int64(1 << 30) // 1 GiB
	sizeGCTickerPer = 1 * time.Minute
)

type badgerStore struct {
	dir string
	db  *badger.DB

	gcTicker *time.Ticker
	quit     chan struct{}

	log *log.Logger
}

// OpenBadger opens a Badger-backed Store at dir. A missing dir is an
// error unless create is true, in which case it is created first; an
// existing empty dir gets a fresh store either way.
func OpenBadger(dir string, create bool) (Store, error) {
	logger := log.NewModuleLogger(log.ModuleIndexDb).With("backend", "badger", "dir", dir)

	if fi, err := os.Stat(dir); err == nil {
		if !fi.IsDir() {
			return nil, errors.Errorf("dbkv: %s is not a directory", dir)
		}
	} else if os.IsNotExist(err) {
		if !create {
			return nil, errors.Wrap(err, "dbkv: index store does not exist, run init first")
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "dbkv: create store directory")
		}
	} else {
		return nil, errors.Wrap(err, "dbkv: stat store directory")
	}

	opts := badger.DefaultOptions
	opts.Dir = dir
	opts.ValueDir = dir

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "dbkv: open badger store")
	}

	s := &badgerStore{
		dir:      dir,
		db:       db,
		gcTicker: time.NewTicker(sizeGCTickerPer),
		quit:     make(chan struct{}),
		log:      logger,
	}
	go s.runValueLogGC()
	return s, nil
}

func (s *badgerStore) runValueLogGC() {
	_, lastSize := s.db.Size()
	for {
		select {
		case <-s.quit:
			return
		case <-s.gcTicker.C:
			_, curSize := s.db.Size()
			if curSize-lastSize < gcThreshold {
				continue
			}
			if err := s.db.RunValueLogGC(0.5); err != nil && err != badger.ErrNoRewrite {
				s.log.Warn("value log gc failed", "err", err)
				continue
			}
			_, lastSize = s.db.Size()
		}
	}
}

func (s *badgerStore) NewTransaction(writable bool) (Txn, error) {
	return &badgerTxn{txn: s.db.NewTransaction(writable)}, nil
}

func (s *badgerStore) Compact() error {
	// Badger has no synchronous manual compaction call in v1; flushing
	// the value log is the closest equivalent and is safe to call from
	// the shutdown path.
	err := s.db.RunValueLogGC(0.5)
	if err != nil && err != badger.ErrNoRewrite {
		return errors.Wrap(err, "dbkv: compact")
	}
	return nil
}

func (s *badgerStore) Close() error {
	select {
	case <-s.quit:
		return nil
	default:
	}
	close(s.quit)
	s.gcTicker.Stop()
	if err := s.Compact(); err != nil {
		s.log.Warn("compaction before close failed", "err", err)
	}
	return s.db.Close()
}

type badgerTxn struct {
	txn *badger.Txn
}

func (t *badgerTxn) Get(table Table, k []byte) ([]byte, bool, error) {
	item, err := t.txn.Get(key(table, k))
	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "dbkv: get")
	}
	v, err := item.ValueCopy(nil)
	if err != nil {
		return nil, false, errors.Wrap(err, "dbkv: read value")
	}
	return v, true, nil
}

func (t *badgerTxn) Put(table Table, k, v []byte) error {
	if err := t.txn.Set(key(table, k), v); err != nil {
		return errors.Wrap(err, "dbkv: put")
	}
	return nil
}

func (t *badgerTxn) Delete(table Table, k []byte) error {
	if err := t.txn.Delete(key(table, k)); err != nil {
		return errors.Wrap(err, "dbkv: delete")
	}
	return nil
}

func (t *badgerTxn) Iterate(table Table, prefix []byte, fn func(k, v []byte) bool) error {
	it := t.txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()

	full := key(table, prefix)
	tablePrefix := prefixes[table]
	for it.Seek(full); it.ValidForPrefix(full); it.Next() {
		item := it.Item()
		v, err := item.ValueCopy(nil)
		if err != nil {
			return errors.Wrap(err, "dbkv: iterate value")
		}
		logicalKey := item.KeyCopy(nil)[len(tablePrefix):]
		if !fn(logicalKey, v) {
			break
		}
	}
	return nil
}

func (t *badgerTxn) Commit() error {
	if err := t.txn.Commit(); err != nil {
		return errors.Wrap(err, "dbkv: commit")
	}
	return nil
}

func (t *badgerTxn) Abort() {
	t.txn.Discard()
}
