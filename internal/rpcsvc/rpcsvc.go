// Package rpcsvc implements RpcService (spec.md §4.4): the reactor
// controller serving Ping/Noop/Status and the Track/UntrackAll
// subscription primitives over the client-facing RPC protocol.
package rpcsvc

import (
	"bytes"
	"net"

	"github.com/pkg/errors"

	"github.com/bp-node/bpd/internal/bloom"
	"github.com/bp-node/bpd/internal/log"
	"github.com/bp-node/bpd/internal/metrics"
	"github.com/bp-node/bpd/internal/reactor"
	"github.com/bp-node/bpd/internal/wire"
)

// SendCmd asks the service to push a Response to one client. Sent by
// the broker, including Response::Mined pushes.
type SendCmd struct {
	Remote   string
	Response wire.Response
}

// DisconnectCmd asks the service to drop one client's connection.
type DisconnectCmd struct{ Remote string }

// TrackReq is forwarded to the broker when a client issues
// Request::Track.
type TrackReq struct {
	Remote  string
	Filters []*bloom.Filter
}

// UntrackAllReq is forwarded to the broker when a client issues
// Request::UntrackAll.
type UntrackAllReq struct{ Remote string }

// Service is the RpcService controller.
type Service struct {
	maxClients int
	rpcTx      chan<- interface{}
	log        *log.Logger

	reactor *reactor.Service
}

// New builds an RpcService capped at maxClients concurrent connections
// (default 65535), forwarding Track/UntrackAll requests on rpcTx.
func New(maxClients int, rpcTx chan<- interface{}) *Service {
	return &Service{
		maxClients: maxClients,
		rpcTx:      rpcTx,
		log:        log.NewModuleLogger(log.ModuleRpc),
	}
}

// Attach records the reactor.Service driving this controller. Must be
// called once, before the reactor is started.
func (s *Service) Attach(r *reactor.Service) { s.reactor = r }

// ShouldAccept caps concurrent clients at maxClients (default 65535).
func (s *Service) ShouldAccept(remote net.Addr) bool {
	if s.reactor.Len() < s.maxClients {
		return true
	}
	err := errors.Wrapf(ErrTooManyClients, "rejected %s", remote)
	s.log.Warn("rejecting client", "remote", remote.String(), "err", errors.Cause(err))
	return false
}

func (s *Service) OnEstablished(sess *reactor.Session) {
	metrics.ClientsConnected.Update(int64(s.reactor.Len()))
	s.log.Debug("client connected", "remote", sess.Remote.String())
}

func (s *Service) OnDisconnected(sess *reactor.Session, reason error) {
	metrics.ClientsConnected.Update(int64(s.reactor.Len()))
	s.log.Debug("client disconnected", "remote", sess.Remote.String(), "reason", reason)
}

func (s *Service) OnFrame(sess *reactor.Session, payload []byte) error {
	req, err := wire.DecodeRequest(bytes.NewReader(payload))
	if err != nil {
		return err
	}

	switch r := req.(type) {
	case *wire.Ping:
		return s.reply(sess, &wire.PongResp{Noise: r.Noise})

	case *wire.Noop:
		return nil

	case *wire.Status:
		clients := s.reactor.ClientInfos(func(*reactor.Session) *wire.AgentInfo { return nil })
		return s.reply(sess, &wire.StatusResp{Clients: clients})

	case *wire.Track:
		s.rpcTx <- TrackReq{Remote: sess.ID, Filters: r.Filters}
		return nil

	case *wire.UntrackAll:
		s.rpcTx <- UntrackAllReq{Remote: sess.ID}
		return nil
	}
	return nil
}

func (s *Service) OnFrameUnparsable(sess *reactor.Session, err error) {
	s.log.Warn("unparsable frame from client", "remote", sess.Remote.String(), "err", err)
}

func (s *Service) OnCommand(cmd reactor.Command) {
	switch c := cmd.(type) {
	case SendCmd:
		var buf bytes.Buffer
		if err := wire.EncodeResponse(&buf, c.Response); err != nil {
			s.log.Warn("encode response failed", "remote", c.Remote, "err", err)
			return
		}
		if err := s.reactor.SendTo(c.Remote, buf.Bytes()); err != nil {
			s.log.Warn("send failed", "remote", c.Remote, "err", err)
		}
	case DisconnectCmd:
		s.reactor.Disconnect(c.Remote)
	default:
		s.log.Warn("unknown rpc command")
	}
}

func (s *Service) reply(sess *reactor.Session, resp wire.Response) error {
	var buf bytes.Buffer
	if err := wire.EncodeResponse(&buf, resp); err != nil {
		return err
	}
	return sess.Send(buf.Bytes())
}
