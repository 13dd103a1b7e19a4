package wire

import (
	"io"

	"github.com/pkg/errors"

	"github.com/bp-node/bpd/internal/chainhash"
)

// Server->client response tags (spec.md §6.2).
const (
	TagFailure      uint8 = 0x00
	TagPong         uint8 = 0x01
	TagStatusResp   uint8 = 0x02
	TagMined        uint8 = 0x03
)

// MaxStatusClients bounds a single Status response (spec.md §6.2,
// SmallVec<ClientInfo, 65535>).
const MaxStatusClients = 65535

// Response is the sealed set of frames the server sends.
type Response interface {
	isResponse()
}

// FailureResp reports a request-level error to the client.
type FailureResp struct{ Failure Failure }

func (FailureResp) isResponse() {}

// PongResp echoes a Ping's noise.
type PongResp struct{ Noise []byte }

func (PongResp) isResponse() {}

// StatusResp enumerates currently connected clients.
type StatusResp struct{ Clients []ClientInfo }

func (StatusResp) isResponse() {}

// MinedResp notifies the client that txid was included in a processed
// block and matched one of its tracked filters.
type MinedResp struct{ Txid chainhash.Txid }

func (MinedResp) isResponse() {}

func EncodeResponse(w io.Writer, msg Response) error {
	switch m := msg.(type) {
	case *FailureResp:
		if err := writeU8(w, TagFailure); err != nil {
			return err
		}
		return m.Failure.encode(w)
	case *PongResp:
		if err := writeU8(w, TagPong); err != nil {
			return err
		}
		return writeBlob(w, m.Noise)
	case *StatusResp:
		if err := writeU8(w, TagStatusResp); err != nil {
			return err
		}
		return writeClientInfoList(w, m.Clients)
	case *MinedResp:
		if err := writeU8(w, TagMined); err != nil {
			return err
		}
		return writeTxid(w, m.Txid)
	default:
		return errors.Errorf("wire: unknown Response type %T", msg)
	}
}

func DecodeResponse(r io.Reader) (Response, error) {
	tag, err := readU8(r)
	if err != nil {
		return nil, err
	}
	switch tag {
	case TagFailure:
		f, err := decodeFailure(r)
		if err != nil {
			return nil, err
		}
		return &FailureResp{Failure: *f}, nil
	case TagPong:
		noise, err := readBlob(r)
		if err != nil {
			return nil, err
		}
		return &PongResp{Noise: noise}, nil
	case TagStatusResp:
		clients, err := readClientInfoList(r)
		if err != nil {
			return nil, err
		}
		return &StatusResp{Clients: clients}, nil
	case TagMined:
		txid, err := readTxid(r)
		if err != nil {
			return nil, err
		}
		return &MinedResp{Txid: txid}, nil
	default:
		return nil, errors.Errorf("wire: unknown Response tag 0x%02x", tag)
	}
}

func writeClientInfoList(w io.Writer, clients []ClientInfo) error {
	if len(clients) > MaxStatusClients {
		return errors.New("wire: too many clients in Status response")
	}
	if err := writeU32(w, uint32(len(clients))); err != nil {
		return err
	}
	for _, c := range clients {
		if err := writeString(w, c.Addr); err != nil {
			return err
		}
		if err := writeString(w, c.SessionID); err != nil {
			return err
		}
		hasAgent := c.Agent != nil
		if err := writeBool(w, hasAgent); err != nil {
			return err
		}
		if hasAgent {
			if err := c.Agent.encode(w); err != nil {
				return err
			}
		}
		if err := writeU64(w, uint64(c.ConnectedMs)); err != nil {
			return err
		}
		if err := writeU64(w, uint64(c.LastSeenMs)); err != nil {
			return err
		}
	}
	return nil
}

func readClientInfoList(r io.Reader) ([]ClientInfo, error) {
	n, err := readU32(r)
	if err != nil {
		return nil, err
	}
	out := make([]ClientInfo, 0, n)
	for i := uint32(0); i < n; i++ {
		var c ClientInfo
		if c.Addr, err = readString(r); err != nil {
			return nil, err
		}
		if c.SessionID, err = readString(r); err != nil {
			return nil, err
		}
		hasAgent, err := readBool(r)
		if err != nil {
			return nil, err
		}
		if hasAgent {
			agent, err := decodeAgentInfo(r)
			if err != nil {
				return nil, err
			}
			c.Agent = agent
		}
		connMs, err := readU64(r)
		if err != nil {
			return nil, err
		}
		c.ConnectedMs = int64(connMs)
		lastMs, err := readU64(r)
		if err != nil {
			return nil, err
		}
		c.LastSeenMs = int64(lastMs)
		out = append(out, c)
	}
	return out, nil
}

func writeBool(w io.Writer, b bool) error {
	if b {
		return writeU8(w, 1)
	}
	return writeU8(w, 0)
}

func readBool(r io.Reader) (bool, error) {
	v, err := readU8(r)
	return v != 0, err
}
