package main

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"tournethub/coordinator/internal/logging"
	"tournethub/coordinator/internal/models"
	"tournethub/coordinator/internal/protocol"
)

// SessionState tracks the connection lifecycle. Transitions only move
// forward: Connecting -> Authenticating -> Active -> Closing -> Closed.
type SessionState int32

const (
	SessionConnecting SessionState = iota
	SessionAuthenticating
	SessionActive
	SessionClosing
	SessionClosed
)

func (s SessionState) String() string {
	switch s {
	case SessionConnecting:
		return "connecting"
	case SessionAuthenticating:
		return "authenticating"
	case SessionActive:
		return "active"
	case SessionClosing:
		return "closing"
	default:
		return "closed"
	}
}

// Session owns one websocket connection and its outbound queue. The reader
// and writer goroutines are the only users of the underlying conn.
type Session struct {
	id     string
	server *Server
	conn   *websocket.Conn
	send   chan *protocol.Packet
	log    *logging.Logger

	mu    sync.Mutex
	state SessionState
	user  *models.User

	closeOnce sync.Once
	closed    chan struct{}
}

func newSession(server *Server, conn *websocket.Conn) *Session {
	id := uuid.NewString()
	return &Session{
		id:     id,
		server: server,
		conn:   conn,
		send:   make(chan *protocol.Packet, server.cfg.OutboundQueueSize),
		log:    server.log.With(logging.String("session_id", id)),
		state:  SessionConnecting,
		closed: make(chan struct{}),
	}
}

// ID returns the session identifier assigned at upgrade time.
func (s *Session) ID() string { return s.id }

// State reports the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(next SessionState) {
	s.mu.Lock()
	if next > s.state {
		s.state = next
	}
	s.mu.Unlock()
}

// User returns the authenticated identity bound to the session, if any.
func (s *Session) User() *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// UserID returns the authenticated user id bound to the session, if any.
func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return ""
	}
	return s.user.ID
}

func (s *Session) bindUser(user *models.User) {
	s.mu.Lock()
	s.user = user
	s.state = SessionActive
	s.mu.Unlock()
}

// enqueue offers a packet to the outbound queue without blocking.
func (s *Session) enqueue(pkt *protocol.Packet) bool {
	if s == nil || pkt == nil {
		return false
	}
	select {
	case <-s.closed:
		return false
	default:
	}
	select {
	case s.send <- pkt:
		return true
	default:
		return false
	}
}

// run drives the reader loop; the writer runs alongside until close.
func (s *Session) run() {
	go s.writePump()
	s.readPump()
}

func (s *Session) readPump() {
	defer s.close("read loop ended")

	cfg := s.server.cfg
	s.conn.SetReadLimit(cfg.MaxPayloadBytes)

	//1.- The first frame must authenticate within the handshake window.
	s.setState(SessionAuthenticating)
	_ = s.conn.SetReadDeadline(time.Now().Add(cfg.HandshakeTimeout))
	_, raw, err := s.conn.ReadMessage()
	if err != nil {
		s.log.Info("session ended before authenticating", logging.Error(err))
		return
	}
	pkt, err := protocol.Decode(raw)
	if err != nil || pkt.Kind() != protocol.KindConnect {
		s.reject(pkt, protocol.CodeMalformed, "the first packet must be a connect packet")
		return
	}
	user, err := s.server.resolver.Resolve(pkt.Connect.Credential)
	if err != nil {
		s.log.Info("credential rejected", logging.Error(err))
		s.reject(pkt, protocol.CodeInvalidCredential, "credential rejected")
		return
	}

	//2.- Register before acknowledging so broadcasts include this session.
	if err := s.server.registerSession(s, user); err != nil {
		s.reject(pkt, protocol.CodeInternal, err.Error())
		return
	}
	s.bindUser(user)
	s.enqueue(&protocol.Packet{
		ID: uuid.NewString(),
		Acknowledgement: &protocol.Acknowledgement{
			PacketID: pkt.ID,
			Success:  true,
		},
	})
	s.log.Info("session authenticated",
		logging.String("user_id", user.ID),
		logging.String("client_type", user.ClientType.String()))

	//3.- Steady state: decode, dispatch, reply. Read deadlines roll forward
	// with the ping cadence so dead peers are reaped.
	s.armPong()
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn("session read failed", logging.Error(err))
			}
			return
		}
		pkt, err := protocol.Decode(raw)
		if err != nil {
			s.enqueue(protocol.NewResponse(nil, protocol.CodeMalformed, "packet could not be decoded"))
			continue
		}
		ctx := logging.ContextWithLogger(s.server.baseCtx, s.log)
		if response := s.server.dispatch(ctx, pkt, s); response != nil {
			if !s.enqueue(response) {
				s.log.Warn("response dropped: outbound queue full",
					logging.String("packet_id", pkt.ID))
			}
		}
	}
}

func (s *Session) armPong() {
	wait := s.server.cfg.PingInterval * 2
	_ = s.conn.SetReadDeadline(time.Now().Add(wait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(wait))
	})
}

func (s *Session) writePump() {
	ticker := time.NewTicker(s.server.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()
	for {
		select {
		case pkt, ok := <-s.send:
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			raw, err := pkt.Encode()
			if err != nil {
				s.log.Error("packet encode failed", logging.Error(err))
				continue
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				return
			}
		case <-s.closed:
			_ = s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// reject answers the packet with a terminal response and closes the session.
func (s *Session) reject(pkt *protocol.Packet, code protocol.ResponseCode, message string) {
	response := protocol.NewResponse(pkt, code, message)
	if raw, err := response.Encode(); err == nil {
		_ = s.conn.WriteMessage(websocket.TextMessage, raw)
	}
	s.close(fmt.Sprintf("rejected: %s", code))
}

// close tears the session down exactly once and detaches it from the server.
func (s *Session) close(reason string) {
	s.closeOnce.Do(func() {
		s.setState(SessionClosing)
		close(s.closed)
		s.conn.Close()
		s.server.unregisterSession(s, reason)
		s.setState(SessionClosed)
		s.log.Info("session closed", logging.String("reason", reason))
	})
}
