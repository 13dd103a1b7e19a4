package blockproc

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/bp-node/bpd/internal/chainhash"
)

// ChainTip is the last block this node has committed, plus its height
// and timestamp (spec.md GLOSSARY).
type ChainTip struct {
	Hash   chainhash.BlockHash
	Height uint64
	Time   uint32
}

const chainTipEncodedSize = chainhash.HashSize + 8 + 4

func encodeChainTip(tip ChainTip) []byte {
	buf := make([]byte, chainTipEncodedSize)
	copy(buf, tip.Hash[:])
	binary.BigEndian.PutUint64(buf[chainhash.HashSize:], tip.Height)
	binary.BigEndian.PutUint32(buf[chainhash.HashSize+8:], tip.Time)
	return buf
}

func decodeChainTip(b []byte) (ChainTip, error) {
	if len(b) != chainTipEncodedSize {
		return ChainTip{}, errors.New("blockproc: invalid chain tip encoding")
	}
	var tip ChainTip
	copy(tip.Hash[:], b[:chainhash.HashSize])
	tip.Height = binary.BigEndian.Uint64(b[chainhash.HashSize:])
	tip.Time = binary.BigEndian.Uint32(b[chainhash.HashSize+8:])
	return tip, nil
}
