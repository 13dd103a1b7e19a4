// Package chainhash defines the small set of stable, fixed-size
// identifiers the indexer assigns to blocks, transactions and spends.
package chainhash

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
)

// HashSize is the length in bytes of a BlockHash or Txid.
const HashSize = 32

// BlockHash is the 32-byte identifier of a block.
type BlockHash [HashSize]byte

// Txid is the 32-byte identifier of a transaction.
type Txid [HashSize]byte

func (h BlockHash) String() string { return hex.EncodeToString(h[:]) }
func (h Txid) String() string      { return hex.EncodeToString(h[:]) }

// Bytes returns a copy of the hash bytes.
func (h BlockHash) Bytes() []byte { b := make([]byte, HashSize); copy(b, h[:]); return b }
func (h Txid) Bytes() []byte      { b := make([]byte, HashSize); copy(b, h[:]); return b }

// IsZero reports whether the hash is the all-zero value (used as the
// sentinel "no parent" / genesis previous-hash).
func (h BlockHash) IsZero() bool { return h == BlockHash{} }

// BlockHashFromBytes builds a BlockHash from a byte slice of exactly
// HashSize bytes.
func BlockHashFromBytes(b []byte) (BlockHash, error) {
	var h BlockHash
	if len(b) != HashSize {
		return h, errors.New("chainhash: invalid block hash length")
	}
	copy(h[:], b)
	return h, nil
}

// TxidFromBytes builds a Txid from a byte slice of exactly HashSize bytes.
func TxidFromBytes(b []byte) (Txid, error) {
	var t Txid
	if len(b) != HashSize {
		return t, errors.New("chainhash: invalid txid length")
	}
	copy(t[:], b)
	return t, nil
}

// TxNoSize is the wire width of a TxNo: a 40-bit big-endian counter,
// matching BpNodeTxNo in spec.md §6.3.
const TxNoSize = 5

// MaxTxNo is the largest value a 40-bit counter can hold.
const MaxTxNo = (uint64(1) << 40) - 1

// TxNo is the monotonically increasing, never-reused identifier assigned
// to every transaction the first time it is seen. Zero is reserved and
// never allocated; the sequence starts at 1.
type TxNo uint64

// Bytes encodes the TxNo as 5 big-endian bytes.
func (n TxNo) Bytes() [TxNoSize]byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(n))
	var out [TxNoSize]byte
	copy(out[:], buf[8-TxNoSize:])
	return out
}

// TxNoFromBytes decodes a 5-byte big-endian TxNo.
func TxNoFromBytes(b []byte) (TxNo, error) {
	if len(b) != TxNoSize {
		return 0, errors.New("chainhash: invalid txno length")
	}
	var buf [8]byte
	copy(buf[8-TxNoSize:], b)
	return TxNo(binary.BigEndian.Uint64(buf[:])), nil
}

// Valid reports whether n is in the representable 40-bit range and not
// the reserved zero value.
func (n TxNo) Valid() bool { return n != 0 && uint64(n) <= MaxTxNo }
