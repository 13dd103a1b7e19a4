package blockproc

import "github.com/pkg/errors"

// ErrUnknownSpend is returned when a non-coinbase input references an
// outpoint absent from UtxoMap: the block is out-of-order or malformed
// relative to what this node has indexed (spec.md §4.2 step 3c).
var ErrUnknownSpend = errors.New("blockproc: unknown spend")
