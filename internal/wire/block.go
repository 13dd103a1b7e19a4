// Consensus encoding of blocks and transactions. This is the provider
// wire format proper (spec.md §6.3: BpNodeBlockHeader, BpNodeTx); it is
// little-endian throughout, matching Bitcoin consensus encoding, and is
// written directly after the tag byte of an import frame, whose other
// message fields use big-endian integers.
package wire

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/bp-node/bpd/internal/chainhash"
)

// HeaderSize is the fixed consensus-encoded header width (spec.md §3).
const HeaderSize = 80

// BlockHeader is the 80-byte consensus block header.
type BlockHeader struct {
	Version       int32
	PrevBlockHash chainhash.BlockHash
	MerkleRoot    [32]byte
	Time          uint32
	Bits          uint32
	Nonce         uint32
}

// Hash computes this header's BlockHash. bpd does not itself validate
// proof of work (spec.md §1 Non-goals); the hash is used purely as a
// stable identifier.
func (h *BlockHeader) Hash() chainhash.BlockHash {
	var buf bytes.Buffer
	_ = h.encode(&buf)
	return chainhash.BlockHash(doubleSHA256(buf.Bytes()))
}

func (h *BlockHeader) encode(w io.Writer) error {
	var buf [HeaderSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.Version))
	copy(buf[4:36], h.PrevBlockHash[:])
	copy(buf[36:68], h.MerkleRoot[:])
	binary.LittleEndian.PutUint32(buf[68:72], h.Time)
	binary.LittleEndian.PutUint32(buf[72:76], h.Bits)
	binary.LittleEndian.PutUint32(buf[76:80], h.Nonce)
	_, err := w.Write(buf[:])
	return err
}

func decodeBlockHeader(r io.Reader) (*BlockHeader, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, errors.Wrap(err, "wire: read block header")
	}
	h := &BlockHeader{
		Version: int32(binary.LittleEndian.Uint32(buf[0:4])),
		Time:    binary.LittleEndian.Uint32(buf[68:72]),
		Bits:    binary.LittleEndian.Uint32(buf[72:76]),
		Nonce:   binary.LittleEndian.Uint32(buf[76:80]),
	}
	copy(h.PrevBlockHash[:], buf[4:36])
	copy(h.MerkleRoot[:], buf[36:68])
	return h, nil
}

// EncodeHeader writes a standalone block header, used by callers that
// persist headers independently of a block's transactions (the blocks
// table).
func EncodeHeader(w io.Writer, h *BlockHeader) error {
	return h.encode(w)
}

// DecodeHeader reads a standalone block header.
func DecodeHeader(r io.Reader) (*BlockHeader, error) {
	return decodeBlockHeader(r)
}

// OutPoint references a previously produced output.
type OutPoint struct {
	Hash  chainhash.Txid
	Index uint32
}

// TxIn is a transaction input.
type TxIn struct {
	PreviousOutPoint OutPoint
	SignatureScript  []byte
	Sequence         uint32
}

// IsCoinbase reports whether in spends the null outpoint, the Bitcoin
// convention for a block's reward-creating input.
func (in *TxIn) IsCoinbase() bool {
	return in.PreviousOutPoint.Hash == (chainhash.Txid{}) && in.PreviousOutPoint.Index == 0xffffffff
}

// TxOut is a transaction output.
type TxOut struct {
	Value    int64
	PkScript []byte
}

// Tx is a full consensus-encoded transaction (spec.md §3).
type Tx struct {
	Version  int32
	TxIn     []*TxIn
	TxOut    []*TxOut
	LockTime uint32
}

// IsCoinbase reports whether this transaction is a block's coinbase:
// exactly one input spending the null outpoint.
func (t *Tx) IsCoinbase() bool {
	return len(t.TxIn) == 1 && t.TxIn[0].IsCoinbase()
}

// Txid computes this transaction's identifier.
func (t *Tx) Txid() chainhash.Txid {
	var buf bytes.Buffer
	_ = t.Encode(&buf)
	return chainhash.Txid(doubleSHA256(buf.Bytes()))
}

// Encode writes the consensus encoding of the transaction.
func (t *Tx) Encode(w io.Writer) error {
	if err := writeI32LE(w, t.Version); err != nil {
		return err
	}
	if err := WriteVarInt(w, uint64(len(t.TxIn))); err != nil {
		return err
	}
	for _, in := range t.TxIn {
		if _, err := w.Write(in.PreviousOutPoint.Hash[:]); err != nil {
			return err
		}
		if err := writeU32LE(w, in.PreviousOutPoint.Index); err != nil {
			return err
		}
		if err := WriteVarInt(w, uint64(len(in.SignatureScript))); err != nil {
			return err
		}
		if _, err := w.Write(in.SignatureScript); err != nil {
			return err
		}
		if err := writeU32LE(w, in.Sequence); err != nil {
			return err
		}
	}
	if err := WriteVarInt(w, uint64(len(t.TxOut))); err != nil {
		return err
	}
	for _, out := range t.TxOut {
		if err := writeI64LE(w, out.Value); err != nil {
			return err
		}
		if err := WriteVarInt(w, uint64(len(out.PkScript))); err != nil {
			return err
		}
		if _, err := w.Write(out.PkScript); err != nil {
			return err
		}
	}
	return writeU32LE(w, t.LockTime)
}

// DecodeTx reads a consensus-encoded transaction.
func DecodeTx(r io.Reader) (*Tx, error) {
	version, err := readI32LE(r)
	if err != nil {
		return nil, errors.Wrap(err, "wire: read tx version")
	}
	inCount, err := ReadVarInt(r)
	if err != nil {
		return nil, errors.Wrap(err, "wire: read txin count")
	}
	t := &Tx{Version: version}
	for i := uint64(0); i < inCount; i++ {
		in := &TxIn{}
		if _, err := io.ReadFull(r, in.PreviousOutPoint.Hash[:]); err != nil {
			return nil, errors.Wrap(err, "wire: read outpoint hash")
		}
		idx, err := readU32LE(r)
		if err != nil {
			return nil, errors.Wrap(err, "wire: read outpoint index")
		}
		in.PreviousOutPoint.Index = idx
		scriptLen, err := ReadVarInt(r)
		if err != nil {
			return nil, errors.Wrap(err, "wire: read scriptsig length")
		}
		in.SignatureScript = make([]byte, scriptLen)
		if _, err := io.ReadFull(r, in.SignatureScript); err != nil {
			return nil, errors.Wrap(err, "wire: read scriptsig")
		}
		seq, err := readU32LE(r)
		if err != nil {
			return nil, errors.Wrap(err, "wire: read sequence")
		}
		in.Sequence = seq
		t.TxIn = append(t.TxIn, in)
	}
	outCount, err := ReadVarInt(r)
	if err != nil {
		return nil, errors.Wrap(err, "wire: read txout count")
	}
	for i := uint64(0); i < outCount; i++ {
		out := &TxOut{}
		val, err := readI64LE(r)
		if err != nil {
			return nil, errors.Wrap(err, "wire: read value")
		}
		out.Value = val
		scriptLen, err := ReadVarInt(r)
		if err != nil {
			return nil, errors.Wrap(err, "wire: read pkscript length")
		}
		out.PkScript = make([]byte, scriptLen)
		if _, err := io.ReadFull(r, out.PkScript); err != nil {
			return nil, errors.Wrap(err, "wire: read pkscript")
		}
		t.TxOut = append(t.TxOut, out)
	}
	lockTime, err := readU32LE(r)
	if err != nil {
		return nil, errors.Wrap(err, "wire: read locktime")
	}
	t.LockTime = lockTime
	return t, nil
}

// Block is a full consensus-encoded block: header plus transactions.
type Block struct {
	Header BlockHeader
	Txs    []*Tx
}

// Encode writes the consensus encoding of the block.
func (b *Block) Encode(w io.Writer) error {
	if err := b.Header.encode(w); err != nil {
		return err
	}
	if err := WriteVarInt(w, uint64(len(b.Txs))); err != nil {
		return err
	}
	for _, tx := range b.Txs {
		if err := tx.Encode(w); err != nil {
			return err
		}
	}
	return nil
}

// DecodeBlock reads a consensus-encoded block.
func DecodeBlock(r io.Reader) (*Block, error) {
	header, err := decodeBlockHeader(r)
	if err != nil {
		return nil, err
	}
	txCount, err := ReadVarInt(r)
	if err != nil {
		return nil, errors.Wrap(err, "wire: read tx count")
	}
	b := &Block{Header: *header}
	for i := uint64(0); i < txCount; i++ {
		tx, err := DecodeTx(r)
		if err != nil {
			return nil, err
		}
		b.Txs = append(b.Txs, tx)
	}
	return b, nil
}

func writeI32LE(w io.Writer, v int32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	_, err := w.Write(b[:])
	return err
}

func readI32LE(r io.Reader) (int32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(b[:])), nil
}

func writeU32LE(w io.Writer, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readU32LE(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func writeI64LE(w io.Writer, v int64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	_, err := w.Write(b[:])
	return err
}

func readI64LE(r io.Reader) (int64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}
