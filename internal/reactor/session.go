package reactor

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bp-node/bpd/internal/wire"
)

// Session is one accepted connection. It carries a controller-owned
// attachment slot (the decoded AgentInfo for a provider or client, once
// its Hello frame arrives) rather than a protocol-specific field, so
// the reactor stays shared between ImporterService and RpcService.
type Session struct {
	ID          string
	Remote      net.Addr
	ConnectedAt time.Time

	conn      net.Conn
	writeMu   sync.Mutex
	closed    int32
	attachMu  sync.Mutex
	attach    interface{}
	lastSeenMu sync.Mutex
	lastSeen  time.Time
}

func newSession(id string, conn net.Conn) *Session {
	now := time.Now()
	return &Session{
		ID:          id,
		Remote:      conn.RemoteAddr(),
		ConnectedAt: now,
		conn:        conn,
		lastSeen:    now,
	}
}

// Send writes a single length-prefixed frame to the peer. Safe for
// concurrent use.
func (s *Session) Send(payload []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return wire.WriteFrame(s.conn, payload)
}

// Close closes the underlying connection. Safe to call more than once.
func (s *Session) Close() error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil
	}
	return s.conn.Close()
}

func (s *Session) touch() {
	s.lastSeenMu.Lock()
	s.lastSeen = time.Now()
	s.lastSeenMu.Unlock()
}

// LastSeen returns the last time a frame was read from this session.
func (s *Session) LastSeen() time.Time {
	s.lastSeenMu.Lock()
	defer s.lastSeenMu.Unlock()
	return s.lastSeen
}

// Attach stores controller-specific per-session state (e.g. a decoded
// *wire.AgentInfo once the Hello frame is processed).
func (s *Session) Attach(v interface{}) {
	s.attachMu.Lock()
	s.attach = v
	s.attachMu.Unlock()
}

// Attachment returns whatever was last passed to Attach, or nil.
func (s *Session) Attachment() interface{} {
	s.attachMu.Lock()
	defer s.attachMu.Unlock()
	return s.attach
}

// ConnectedMs and LastSeenMs render the session's timestamps the way
// wire.ClientInfo reports them: milliseconds since Unix epoch.
func (s *Session) ConnectedMs() int64 { return s.ConnectedAt.UnixNano() / int64(time.Millisecond) }
func (s *Session) LastSeenMs() int64  { return s.LastSeen().UnixNano() / int64(time.Millisecond) }
