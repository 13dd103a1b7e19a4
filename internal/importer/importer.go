// Package importer implements ImporterService (spec.md §4.3): the
// reactor controller that accepts block-provider connections,
// enforces the Hello handshake and network match, and forwards
// decoded blocks to BlockProcessor.
package importer

import (
	"bytes"
	"net"

	"github.com/pkg/errors"

	"github.com/bp-node/bpd/internal/blockproc"
	"github.com/bp-node/bpd/internal/bloom"
	"github.com/bp-node/bpd/internal/log"
	"github.com/bp-node/bpd/internal/metrics"
	"github.com/bp-node/bpd/internal/reactor"
	"github.com/bp-node/bpd/internal/wire"
)

// TrackTxidCmd unions filters into BlockProcessor's hot-path tracking
// set. Sent by the broker.
type TrackTxidCmd struct{ Filters []*bloom.Filter }

// UntrackCmd drops filters that no client still subscribes to. Sent
// by the broker.
type UntrackCmd struct{ Filters []*bloom.Filter }

// Service is the ImporterService controller.
type Service struct {
	network      string
	maxProviders int
	bp           *blockproc.BlockProcessor
	log          *log.Logger

	reactor *reactor.Service
}

// New builds an ImporterService bound to network (rejecting any
// provider whose Hello announces a different one) and maxProviders
// concurrent connections.
func New(network string, maxProviders int, bp *blockproc.BlockProcessor) *Service {
	return &Service{
		network:      network,
		maxProviders: maxProviders,
		bp:           bp,
		log:          log.NewModuleLogger(log.ModuleImporter),
	}
}

// Attach records the reactor.Service driving this controller. Must be
// called once, before the reactor is started.
func (s *Service) Attach(r *reactor.Service) { s.reactor = r }

// ShouldAccept caps concurrent providers at maxProviders (default 16).
func (s *Service) ShouldAccept(remote net.Addr) bool {
	if s.reactor.Len() < s.maxProviders {
		return true
	}
	err := errors.Wrapf(ErrTooManyProviders, "rejected %s", remote)
	s.log.Warn("rejecting provider", "remote", remote.String(), "err", errors.Cause(err))
	return false
}

func (s *Service) OnEstablished(sess *reactor.Session) {
	metrics.ProvidersConnected.Update(int64(s.reactor.Len()))
	s.log.Info("provider connected", "remote", sess.Remote.String())
}

func (s *Service) OnDisconnected(sess *reactor.Session, reason error) {
	metrics.ProvidersConnected.Update(int64(s.reactor.Len()))
	s.log.Info("provider disconnected", "remote", sess.Remote.String(), "reason", reason)
}

func (s *Service) OnFrame(sess *reactor.Session, payload []byte) error {
	msg, err := wire.DecodeExporterPub(bytes.NewReader(payload))
	if err != nil {
		return err
	}

	switch m := msg.(type) {
	case *wire.Hello:
		if m.Agent.Network != s.network {
			s.sendError(sess, wire.CodeNetworkMismatch, "network mismatch")
			_ = sess.Close()
			return nil
		}
		agent := m.Agent
		sess.Attach(&agent)
		s.log.Info("provider hello", "remote", sess.Remote.String(), "agent", agent.Agent, "network", agent.Network)

	case *wire.BlockMsg:
		if sess.Attachment() == nil {
			s.log.Warn("block received before hello, dropping", "remote", sess.Remote.String())
			return nil
		}
		if _, procErr := s.bp.ProcessBlockAndOrphans(&m.Block); procErr != nil {
			s.log.Warn("block dropped due to database connectivity issue", "remote", sess.Remote.String(), "err", procErr)
		}
	}
	return nil
}

func (s *Service) OnFrameUnparsable(sess *reactor.Session, err error) {
	s.log.Warn("unparsable frame from provider", "remote", sess.Remote.String(), "err", err)
}

func (s *Service) OnCommand(cmd reactor.Command) {
	switch c := cmd.(type) {
	case TrackTxidCmd:
		s.bp.Track(c.Filters)
	case UntrackCmd:
		s.bp.Untrack(c.Filters)
	default:
		s.log.Warn("unknown importer command")
	}
}

func (s *Service) sendError(sess *reactor.Session, code uint16, message string) {
	reply := &wire.ErrorReply{Failure: wire.Failure{Code: code, Message: message}}
	var buf bytes.Buffer
	if err := wire.EncodeImporterReply(&buf, reply); err != nil {
		s.log.Warn("encode error reply failed", "err", err)
		return
	}
	if err := sess.Send(buf.Bytes()); err != nil {
		s.log.Warn("send error reply failed", "remote", sess.Remote.String(), "err", err)
	}
}
