package wire

import "io"

// Version is a semantic version triple (spec.md §6.1).
type Version struct {
	Major uint16
	Minor uint16
	Patch uint16
}

// AgentInfo identifies a provider's software and target network, sent
// as the first frame of the import protocol (spec.md §6.1).
type AgentInfo struct {
	Agent    string
	Version  Version
	Network  string
	Features uint64
}

func (a *AgentInfo) encode(w io.Writer) error {
	if err := writeString(w, a.Agent); err != nil {
		return err
	}
	if err := writeU16(w, a.Version.Major); err != nil {
		return err
	}
	if err := writeU16(w, a.Version.Minor); err != nil {
		return err
	}
	if err := writeU16(w, a.Version.Patch); err != nil {
		return err
	}
	if err := writeString(w, a.Network); err != nil {
		return err
	}
	return writeU64(w, a.Features)
}

func decodeAgentInfo(r io.Reader) (*AgentInfo, error) {
	agent, err := readString(r)
	if err != nil {
		return nil, err
	}
	major, err := readU16(r)
	if err != nil {
		return nil, err
	}
	minor, err := readU16(r)
	if err != nil {
		return nil, err
	}
	patch, err := readU16(r)
	if err != nil {
		return nil, err
	}
	network, err := readString(r)
	if err != nil {
		return nil, err
	}
	features, err := readU64(r)
	if err != nil {
		return nil, err
	}
	return &AgentInfo{
		Agent:    agent,
		Version:  Version{Major: major, Minor: minor, Patch: patch},
		Network:  network,
		Features: features,
	}, nil
}

// ClientInfo describes a connected peer (provider or client),
// surfaced via Response::Status (spec.md §4.4, §6.2).
type ClientInfo struct {
	Addr        string
	Agent       *AgentInfo // nil until a provider's Hello arrives; always nil for RPC clients
	SessionID   string
	ConnectedMs int64
	LastSeenMs  int64
}
