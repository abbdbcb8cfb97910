package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"tournethub/coordinator/internal/auth"
	"tournethub/coordinator/internal/broadcast"
	"tournethub/coordinator/internal/config"
	"tournethub/coordinator/internal/httpapi"
	"tournethub/coordinator/internal/journal"
	"tournethub/coordinator/internal/logging"
	"tournethub/coordinator/internal/models"
	"tournethub/coordinator/internal/notify"
	"tournethub/coordinator/internal/persist"
	"tournethub/coordinator/internal/protocol"
	"tournethub/coordinator/internal/router"
	"tournethub/coordinator/internal/state"
)

// Server owns every subsystem of the coordinator and implements the outbound
// queue surface the broadcast dispatcher fans events into.
type Server struct {
	cfg      *config.Config
	log      *logging.Logger
	store    *state.Store
	resolver *auth.Resolver
	router   *router.Router
	notifier notify.Sink
	persist  *persist.WriteBehind
	recorder *journal.Recorder

	dispatcher *broadcast.Dispatcher
	upgrader   websocket.Upgrader
	baseCtx    context.Context
	cancel     context.CancelFunc

	mu        sync.Mutex
	sessions  map[string]*Session // session id -> session
	byUser    map[string]*Session // user id -> session
	started   time.Time
	startErr  error
	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// ServerOption customises server construction, mainly for tests.
type ServerOption func(*Server)

// WithCredentialVerifier swaps the credential verifier, primarily for tests.
func WithCredentialVerifier(verifier auth.CredentialVerifier) ServerOption {
	return func(s *Server) {
		if verifier != nil {
			s.resolver = auth.NewResolver(verifier)
		}
	}
}

// WithNotifier routes notifications to a custom sink.
func WithNotifier(sink notify.Sink) ServerOption {
	return func(s *Server) {
		if sink != nil {
			s.notifier = sink
		}
	}
}

// WithPersistStore swaps the write-behind persistence backend.
func WithPersistStore(store persist.Store) ServerOption {
	return func(s *Server) {
		if store != nil {
			s.persist = persist.NewWriteBehind(store, s.cfg.PersistWorkers, s.log)
		}
	}
}

// NewServer wires the store, router, dispatcher and session bookkeeping.
func NewServer(cfg *config.Config, logger *logging.Logger, opts ...ServerOption) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration must be provided")
	}
	if logger == nil {
		logger = logging.L()
	}

	ctx, cancel := context.WithCancel(context.Background())
	server := &Server{
		cfg:      cfg,
		log:      logger,
		store:    state.NewStore(logger),
		notifier: notify.Log{Logger: logger},
		baseCtx:  ctx,
		cancel:   cancel,
		sessions: make(map[string]*Session),
		byUser:   make(map[string]*Session),
		started:  time.Now(),
	}
	server.persist = persist.NewWriteBehind(persist.NewMemory(), cfg.PersistWorkers, logger)

	//1.- Credential verification defaults to HMAC when a secret is configured.
	if cfg.AuthSecret != "" {
		verifier, err := auth.NewHMACTokenVerifier(cfg.AuthSecret, 2*time.Second)
		if err != nil {
			cancel()
			return nil, err
		}
		server.resolver = auth.NewResolver(verifier)
	} else {
		server.resolver = auth.NewResolver(nil)
	}

	for _, opt := range opts {
		opt(server)
	}

	//2.- The dispatch table is immutable after construction; a collision here
	// is a programming error surfaced at startup, never at packet time.
	packetRouter, err := router.New(server.resolver, logger, server.modules()...)
	if err != nil {
		cancel()
		return nil, err
	}
	server.router = packetRouter

	server.upgrader = websocket.Upgrader{
		HandshakeTimeout: cfg.HandshakeTimeout,
		CheckOrigin:      server.checkOrigin,
	}

	server.dispatcher = broadcast.New(server.store, server, logger)
	go server.dispatcher.Run()

	//3.- The journal is optional; without a path the change stream is not
	// persisted and restarts begin empty.
	if cfg.Journal.Path != "" {
		sink, _, err := journal.New(cfg.Journal.Path, "coordinator", nil)
		if err != nil {
			server.log.Error("journal disabled", logging.Error(err))
		} else {
			server.recorder = journal.NewRecorder(sink, server.store, cfg.Journal.SnapshotInterval, logger)
		}
	}

	return server, nil
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if strings.EqualFold(origin, allowed) {
			return true
		}
	}
	return false
}

// ServeWS upgrades the HTTP request and starts the session goroutines.
func (s *Server) ServeWS(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	count := len(s.sessions)
	s.mu.Unlock()
	if s.cfg.MaxClients > 0 && count >= s.cfg.MaxClients {
		http.Error(w, "server is full", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", logging.Error(err))
		return
	}
	session := newSession(s, conn)
	s.log.Info("session connected",
		logging.String("session_id", session.ID()),
		logging.String("remote_addr", r.RemoteAddr))
	go session.run()
}

// registerSession binds an authenticated user to the session registry. A
// reconnect for the same user replaces the stale session.
func (s *Server) registerSession(session *Session, user *models.User) error {
	s.mu.Lock()
	previous := s.byUser[user.ID]
	s.sessions[session.ID()] = session
	s.byUser[user.ID] = session
	s.mu.Unlock()

	if previous != nil && previous != session {
		previous.close("replaced by a newer connection")
	}
	return nil
}

// unregisterSession detaches a session and withdraws its user's presences.
func (s *Server) unregisterSession(session *Session, reason string) {
	s.mu.Lock()
	delete(s.sessions, session.ID())
	userID := session.UserID()
	if userID != "" && s.byUser[userID] == session {
		delete(s.byUser, userID)
	} else {
		userID = ""
	}
	s.mu.Unlock()

	if userID == "" {
		return
	}
	//1.- Departure events for every tournament the user was present in.
	affected := s.store.RemoveUserEverywhere(userID)
	if len(affected) > 0 {
		s.log.Info("user presences withdrawn",
			logging.String("user_id", userID),
			logging.Strings("tournament_ids", affected),
			logging.String("reason", reason))
	}
}

// dispatch routes one inbound packet. Forwarding and acknowledgements are
// transport-level concerns handled before the registration table.
func (s *Server) dispatch(ctx context.Context, pkt *protocol.Packet, session *Session) *protocol.Packet {
	switch pkt.Kind() {
	case protocol.KindForwarded:
		return s.forward(pkt, session)
	case protocol.KindAcknowledgement:
		// Terminal by definition; nothing to route.
		return nil
	default:
		user := s.userFor(session)
		return s.router.Dispatch(ctx, pkt, user)
	}
}

// forward relays the wrapped packet to each named recipient verbatim.
func (s *Server) forward(pkt *protocol.Packet, from *Session) *protocol.Packet {
	forwarded := pkt.Forwarded
	if forwarded == nil || forwarded.Packet == nil || len(forwarded.Recipients) == 0 {
		return protocol.NewResponse(pkt, protocol.CodeMalformed, "forwarded packet is incomplete")
	}
	relay := &protocol.Packet{
		ID:        uuid.NewString(),
		Forwarded: &protocol.Forwarded{Recipients: []string{from.UserID()}, Packet: forwarded.Packet},
	}
	missed := 0
	for _, recipient := range forwarded.Recipients {
		if !s.Enqueue(recipient, relay) {
			missed++
		}
	}
	if missed > 0 {
		return protocol.NewResponse(pkt, protocol.CodeNotFound,
			fmt.Sprintf("%d of %d recipients were unreachable", missed, len(forwarded.Recipients)))
	}
	return &protocol.Packet{
		ID:              uuid.NewString(),
		Acknowledgement: &protocol.Acknowledgement{PacketID: pkt.ID, Success: true},
	}
}

func (s *Server) userFor(session *Session) *models.User {
	return session.User()
}

// Enqueue implements broadcast.Sender.
func (s *Server) Enqueue(userID string, pkt *protocol.Packet) bool {
	s.mu.Lock()
	session := s.byUser[userID]
	s.mu.Unlock()
	if session == nil {
		return false
	}
	if session.enqueue(pkt) {
		s.delivered.Add(1)
		return true
	}
	s.dropped.Add(1)
	return false
}

// Drop implements broadcast.Sender: slow consumers are disconnected rather
// than allowed to stall the dispatch loop.
func (s *Server) Drop(userID string, reason string) {
	s.mu.Lock()
	session := s.byUser[userID]
	s.mu.Unlock()
	if session != nil {
		session.close(reason)
	}
}

// ConnectedIDs implements broadcast.Sender.
func (s *Server) ConnectedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.byUser))
	for id := range s.byUser {
		ids = append(ids, id)
	}
	return ids
}

// SessionCount implements httpapi.ReadinessProvider.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// StartupError implements httpapi.ReadinessProvider.
func (s *Server) StartupError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startErr
}

// Uptime implements httpapi.ReadinessProvider.
func (s *Server) Uptime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.started)
}

// Stats implements httpapi.StatsProvider.
func (s *Server) Stats() httpapi.Stats {
	perTournament := make(map[string]state.Counts)
	for _, tournament := range s.store.ListTournaments() {
		if counts, err := s.store.Counts(tournament.ID); err == nil {
			perTournament[tournament.ID] = counts
		}
	}
	stats := httpapi.Stats{
		Sessions:       s.SessionCount(),
		UptimeSeconds:  s.Uptime().Seconds(),
		Broadcasts:     s.delivered.Load(),
		DroppedPackets: s.dropped.Load(),
		Entities:       s.store.TotalCounts(),
		Tournaments:    perTournament,
	}
	if s.recorder != nil {
		stats.Journal = s.recorder.Stats()
	}
	return stats
}

// DisconnectSession implements httpapi.Disconnector.
func (s *Server) DisconnectSession(_ context.Context, sessionID, reason string) error {
	s.mu.Lock()
	session := s.sessions[sessionID]
	s.mu.Unlock()
	if session == nil {
		return fmt.Errorf("session %q not found", sessionID)
	}
	session.close(reason)
	return nil
}

// Close shuts every subsystem down in dependency order.
func (s *Server) Close() error {
	s.cancel()

	s.mu.Lock()
	open := make([]*Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		open = append(open, session)
	}
	s.mu.Unlock()
	for _, session := range open {
		session.close("server shutting down")
	}

	s.dispatcher.Close()
	s.persist.Close()
	if s.recorder != nil {
		return s.recorder.Close()
	}
	return nil
}
