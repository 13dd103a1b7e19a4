package wire

import (
	"io"

	"github.com/pkg/errors"

	"github.com/bp-node/bpd/internal/bloom"
	"github.com/bp-node/bpd/internal/chainhash"
)

// Client->server request tags (spec.md §6.2).
const (
	TagPing       uint8 = 0x00
	TagNoop       uint8 = 0x01
	TagStatus     uint8 = 0x02
	TagTrack      uint8 = 0x03
	TagUntrackAll uint8 = 0x04
)

// MaxTrackFilters bounds a single Track request (spec.md §6.2).
const MaxTrackFilters = 255

// Request is the sealed set of frames a client sends.
type Request interface {
	isRequest()
}

// Ping carries an opaque noise blob the server echoes back.
type Ping struct{ Noise []byte }

func (Ping) isRequest() {}

// Noop is a no-op keepalive that elicits no reply.
type Noop struct{}

func (Noop) isRequest() {}

// Status requests the list of currently connected clients.
type Status struct{}

func (Status) isRequest() {}

// Track subscribes the caller to every txid matching any of Filters.
type Track struct{ Filters []*bloom.Filter }

func (Track) isRequest() {}

// UntrackAll drops every filter the caller previously registered.
type UntrackAll struct{}

func (UntrackAll) isRequest() {}

func EncodeRequest(w io.Writer, msg Request) error {
	switch m := msg.(type) {
	case *Ping:
		if err := writeU8(w, TagPing); err != nil {
			return err
		}
		return writeBlob(w, m.Noise)
	case *Noop:
		return writeU8(w, TagNoop)
	case *Status:
		return writeU8(w, TagStatus)
	case *Track:
		if err := writeU8(w, TagTrack); err != nil {
			return err
		}
		return writeFilterSet(w, m.Filters)
	case *UntrackAll:
		return writeU8(w, TagUntrackAll)
	default:
		return errors.Errorf("wire: unknown Request type %T", msg)
	}
}

func DecodeRequest(r io.Reader) (Request, error) {
	tag, err := readU8(r)
	if err != nil {
		return nil, err
	}
	switch tag {
	case TagPing:
		noise, err := readBlob(r)
		if err != nil {
			return nil, err
		}
		return &Ping{Noise: noise}, nil
	case TagNoop:
		return &Noop{}, nil
	case TagStatus:
		return &Status{}, nil
	case TagTrack:
		filters, err := readFilterSet(r)
		if err != nil {
			return nil, err
		}
		return &Track{Filters: filters}, nil
	case TagUntrackAll:
		return &UntrackAll{}, nil
	default:
		return nil, errors.Errorf("wire: unknown Request tag 0x%02x", tag)
	}
}

func writeFilterSet(w io.Writer, filters []*bloom.Filter) error {
	if len(filters) > MaxTrackFilters {
		return errors.New("wire: too many filters in Track request")
	}
	if err := writeU8(w, uint8(len(filters))); err != nil {
		return err
	}
	for _, f := range filters {
		if f.Size() != bloom.DefaultSize {
			return errors.Errorf("wire: filter must be %d bytes, got %d", bloom.DefaultSize, f.Size())
		}
		var fixed [32]byte
		copy(fixed[:], f.Bytes())
		if err := writeFixed32(w, fixed); err != nil {
			return err
		}
	}
	return nil
}

func readFilterSet(r io.Reader) ([]*bloom.Filter, error) {
	n, err := readU8(r)
	if err != nil {
		return nil, err
	}
	filters := make([]*bloom.Filter, 0, n)
	for i := 0; i < int(n); i++ {
		raw, err := readFixed32(r)
		if err != nil {
			return nil, err
		}
		filters = append(filters, bloom.FromBytes(raw[:]))
	}
	return filters, nil
}

// writeTxid/readTxid share the fixed32 codec with the filter set.
func writeTxid(w io.Writer, id chainhash.Txid) error { return writeFixed32(w, [32]byte(id)) }

func readTxid(r io.Reader) (chainhash.Txid, error) {
	b, err := readFixed32(r)
	return chainhash.Txid(b), err
}
