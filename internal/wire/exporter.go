package wire

import (
	"io"

	"github.com/pkg/errors"
)

// Exporter->importer frame tags (spec.md §6.1).
const (
	TagHello uint8 = 0x01
	TagBlock uint8 = 0x04
)

// Importer->exporter frame tag (spec.md §6.1).
const TagError uint8 = 0x02

// ExporterPub is the sealed set of frames a provider sends.
type ExporterPub interface {
	isExporterPub()
}

// Hello must be the first frame on a provider connection.
type Hello struct{ Agent AgentInfo }

func (Hello) isExporterPub() {}

// BlockMsg carries one decoded block.
type BlockMsg struct{ Block Block }

func (BlockMsg) isExporterPub() {}

// EncodeExporterPub writes the tagged, strict-encoded body (without the
// outer length prefix — callers combine this with WriteFrame).
func EncodeExporterPub(w io.Writer, msg ExporterPub) error {
	switch m := msg.(type) {
	case *Hello:
		if err := writeU8(w, TagHello); err != nil {
			return err
		}
		return m.Agent.encode(w)
	case *BlockMsg:
		if err := writeU8(w, TagBlock); err != nil {
			return err
		}
		return m.Block.Encode(w)
	default:
		return errors.Errorf("wire: unknown ExporterPub type %T", msg)
	}
}

// DecodeExporterPub reads one tagged ExporterPub frame body.
func DecodeExporterPub(r io.Reader) (ExporterPub, error) {
	tag, err := readU8(r)
	if err != nil {
		return nil, err
	}
	switch tag {
	case TagHello:
		agent, err := decodeAgentInfo(r)
		if err != nil {
			return nil, err
		}
		return &Hello{Agent: *agent}, nil
	case TagBlock:
		block, err := DecodeBlock(r)
		if err != nil {
			return nil, err
		}
		return &BlockMsg{Block: *block}, nil
	default:
		return nil, errors.Errorf("wire: unknown ExporterPub tag 0x%02x", tag)
	}
}

// ImporterReply is the sealed set of frames the importer sends back.
type ImporterReply interface {
	isImporterReply()
}

// ErrorReply reports a provider-facing failure (network mismatch,
// decode error, internal error).
type ErrorReply struct{ Failure Failure }

func (ErrorReply) isImporterReply() {}

func EncodeImporterReply(w io.Writer, msg ImporterReply) error {
	switch m := msg.(type) {
	case *ErrorReply:
		if err := writeU8(w, TagError); err != nil {
			return err
		}
		return m.Failure.encode(w)
	default:
		return errors.Errorf("wire: unknown ImporterReply type %T", msg)
	}
}

func DecodeImporterReply(r io.Reader) (ImporterReply, error) {
	tag, err := readU8(r)
	if err != nil {
		return nil, err
	}
	switch tag {
	case TagError:
		f, err := decodeFailure(r)
		if err != nil {
			return nil, err
		}
		return &ErrorReply{Failure: *f}, nil
	default:
		return nil, errors.Errorf("wire: unknown ImporterReply tag 0x%02x", tag)
	}
}
