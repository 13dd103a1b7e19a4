// Package reactor implements the event-loop harness spec.md §4.6
// describes: a non-blocking accept socket, one session per connection,
// and an outbound command queue drained each tick. In Go the natural
// translation of "many connections multiplexed over few OS threads" is
// the runtime's own goroutine scheduler and netpoller (spec.md §9,
// "coroutine-style concurrency vs threads") rather than a hand-rolled
// epoll loop, so each session gets its own read goroutine and the
// reactor's job shrinks to bookkeeping: session registry, capacity
// limits, and command dispatch.
package reactor

import (
	"net"
	"sync"

	"github.com/pborman/uuid"
	"github.com/pkg/errors"

	"github.com/bp-node/bpd/internal/log"
	"github.com/bp-node/bpd/internal/wire"
)

// Controller is the capability set a reactor-driven service implements
// (spec.md §9 "Polymorphism (service controllers)"). ImporterService
// and RpcService are the two concrete variants.
type Controller interface {
	// ShouldAccept gates a new connection before a Session is created
	// (capacity limits: MAX_PROVIDERS / MAX_CLIENTS).
	ShouldAccept(remote net.Addr) bool
	OnEstablished(s *Session)
	OnDisconnected(s *Session, reason error)
	// OnFrame handles one decoded application frame. An error return
	// is treated as a decode/protocol violation: the reactor calls
	// OnFrameUnparsable and disconnects the peer.
	OnFrame(s *Session, payload []byte) error
	OnFrameUnparsable(s *Session, err error)
	OnCommand(cmd Command)
}

// Service runs one Controller's accept loop, per-session read loops,
// and command dispatch loop.
type Service struct {
	name         string
	listener     net.Listener
	controller   Controller
	maxFrameSize int

	commands chan Command

	mu       sync.RWMutex
	sessions map[string]*Session

	quit     chan struct{}
	quitOnce sync.Once
	wg       sync.WaitGroup

	log *log.Logger
}

// NewService wraps listener with a reactor driving controller.
// moduleName is used only for logging (log.ModuleImporter / ModuleRpc).
func NewService(moduleName string, listener net.Listener, controller Controller, maxFrameSize int) *Service {
	return &Service{
		name:         moduleName,
		listener:     listener,
		controller:   controller,
		maxFrameSize: maxFrameSize,
		commands:     make(chan Command, CommandQueueCapacity),
		sessions:     make(map[string]*Session),
		quit:         make(chan struct{}),
		log:          log.NewModuleLogger(moduleName),
	}
}

// Run starts the accept loop and the command-dispatch loop. It
// returns immediately; both loops run in their own goroutines.
func (s *Service) Run() {
	s.wg.Add(2)
	go s.acceptLoop()
	go s.commandLoop()
}

// Stop closes the listener and every open session, then waits for all
// service goroutines to exit. Safe to call more than once.
func (s *Service) Stop() {
	s.quitOnce.Do(func() { close(s.quit) })
	_ = s.listener.Close()

	s.mu.RLock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.RUnlock()
	for _, sess := range sessions {
		_ = sess.Close()
	}
	s.wg.Wait()
}

// Enqueue submits a command for the controller to handle on its
// dispatch goroutine. The queue is bounded (CommandQueueCapacity); a
// full queue drops the command with a warning rather than applying
// backpressure to the caller (Broker), since these are disposable
// control-plane notifications, not data that must never be lost.
func (s *Service) Enqueue(cmd Command) {
	select {
	case s.commands <- cmd:
	default:
		s.log.Warn("command queue full, dropping command")
	}
}

// SendTo writes payload to the session with the given ID, if still
// connected.
func (s *Service) SendTo(id string, payload []byte) error {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return errors.Errorf("reactor: no such session %s", id)
	}
	return sess.Send(payload)
}

// Disconnect closes the session with the given ID, if still connected.
func (s *Service) Disconnect(id string) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		_ = sess.Close()
	}
}

// ClientInfos returns a ClientInfo for every currently connected
// session, used by RpcService's Status reply.
func (s *Service) ClientInfos(agentOf func(*Session) *wire.AgentInfo) []wire.ClientInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]wire.ClientInfo, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, wire.ClientInfo{
			Addr:        sess.Remote.String(),
			Agent:       agentOf(sess),
			SessionID:   sess.ID,
			ConnectedMs: sess.ConnectedMs(),
			LastSeenMs:  sess.LastSeenMs(),
		})
	}
	return out
}

// Len reports the number of currently connected sessions.
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Addr returns the listener's bound address, useful when it was
// opened on an ephemeral port.
func (s *Service) Addr() net.Addr { return s.listener.Addr() }

func (s *Service) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
			}
			s.log.Warn("accept failed", "err", err)
			return
		}

		if !s.controller.ShouldAccept(conn.RemoteAddr()) {
			_ = conn.Close()
			continue
		}

		sess := newSession(uuid.New(), conn)
		s.mu.Lock()
		if _, dup := s.sessions[sess.ID]; dup {
			s.mu.Unlock()
			// Debug-assertion panic: a reactor bug, per spec.md §4.3.
			panic("reactor: duplicate session id")
		}
		s.sessions[sess.ID] = sess
		s.mu.Unlock()

		s.controller.OnEstablished(sess)

		s.wg.Add(1)
		go s.readLoop(sess)
	}
}

func (s *Service) readLoop(sess *Session) {
	defer s.wg.Done()
	defer s.teardown(sess, nil)

	for {
		payload, err := wire.ReadFrame(sess.conn, s.maxFrameSize)
		if err != nil {
			s.teardown(sess, err)
			return
		}
		sess.touch()
		if err := s.controller.OnFrame(sess, payload); err != nil {
			s.controller.OnFrameUnparsable(sess, err)
			s.teardown(sess, err)
			return
		}
	}
}

// teardown is idempotent per session: only the call that removes the
// session from the registry runs the controller callback, so it runs
// once even when the read loop tears down twice or races an explicit
// Disconnect.
func (s *Service) teardown(sess *Session, reason error) {
	s.mu.Lock()
	_, present := s.sessions[sess.ID]
	delete(s.sessions, sess.ID)
	s.mu.Unlock()
	if !present {
		return
	}
	_ = sess.Close()
	s.controller.OnDisconnected(sess, reason)
}

func (s *Service) commandLoop() {
	defer s.wg.Done()
	for {
		select {
		case cmd := <-s.commands:
			s.controller.OnCommand(cmd)
		case <-s.quit:
			return
		}
	}
}
