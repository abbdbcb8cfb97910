// Package router maps inbound packets to registered handlers through a
// two-level discriminator: the envelope kind, then an integer switch type
// extracted from the payload. The registration table is built once at
// initialization and immutable afterwards, so dispatch is two hash lookups.
package router

import (
	"context"
	"errors"
	"fmt"

	"tournethub/coordinator/internal/auth"
	"tournethub/coordinator/internal/logging"
	"tournethub/coordinator/internal/models"
	"tournethub/coordinator/internal/protocol"
)

var (
	// ErrForbidden signals that the permission check rejected the packet.
	ErrForbidden = errors.New("permission denied")
	// ErrUnhandledPacket signals that no handler matched the packet.
	ErrUnhandledPacket = errors.New("no handler for packet")
	// ErrDuplicateHandler reports a registration table collision at build time.
	ErrDuplicateHandler = errors.New("duplicate handler registration")
)

// HandlerFunc processes an authorized packet on behalf of the requesting
// user. A nil response means the handler has nothing to send back. Handlers
// must not block the dispatch path for unbounded time.
type HandlerFunc func(ctx context.Context, pkt *protocol.Packet, user *models.User) (*protocol.Packet, error)

// Handler declares one switch-type entry, including its authorization
// requirements. TournamentID is a typed accessor into the payload, selected
// statically at registration instead of walked reflectively at runtime.
type Handler struct {
	SwitchType   int32
	Permission   string
	TournamentID func(*protocol.Packet) string
	Fn           HandlerFunc
}

// Module groups the handlers for one packet kind together with the optional
// switch-type extractor. A nil SwitchType pins the discriminator to zero.
// Complete, when set, vets the packet's payload shape before the permission
// check so accessors and handlers only ever see a populated payload.
type Module struct {
	Kind       protocol.Kind
	SwitchType func(*protocol.Packet) int32
	Complete   func(*protocol.Packet) bool
	Handlers   []Handler
	Default    *Handler
}

type moduleEntry struct {
	switchType func(*protocol.Packet) int32
	complete   func(*protocol.Packet) bool
	handlers   map[int32]Handler
	fallback   *Handler
}

// Router dispatches packets against the immutable registration table.
type Router struct {
	log      *logging.Logger
	resolver *auth.Resolver
	modules  map[protocol.Kind]*moduleEntry
}

// New builds the dispatch table. Registration collisions are build-time
// errors so a misconfigured table never serves traffic.
func New(resolver *auth.Resolver, logger *logging.Logger, modules ...Module) (*Router, error) {
	if logger == nil {
		logger = logging.L()
	}
	table := make(map[protocol.Kind]*moduleEntry, len(modules))
	for _, module := range modules {
		if _, ok := table[module.Kind]; ok {
			return nil, fmt.Errorf("%w: module for kind %q", ErrDuplicateHandler, module.Kind)
		}
		entry := &moduleEntry{
			switchType: module.SwitchType,
			complete:   module.Complete,
			handlers:   make(map[int32]Handler, len(module.Handlers)),
			fallback:   module.Default,
		}
		for _, handler := range module.Handlers {
			if handler.Fn == nil {
				return nil, fmt.Errorf("handler (%s, %d) has no function", module.Kind, handler.SwitchType)
			}
			if _, ok := entry.handlers[handler.SwitchType]; ok {
				return nil, fmt.Errorf("%w: (%s, %d)", ErrDuplicateHandler, module.Kind, handler.SwitchType)
			}
			entry.handlers[handler.SwitchType] = handler
		}
		table[module.Kind] = entry
	}
	return &Router{log: logger, resolver: resolver, modules: table}, nil
}

// Dispatch authorizes and routes one packet, returning the response to send
// to the originating connection. Routing and authorization failures are
// turned into typed response payloads here; they never escape as errors.
func (r *Router) Dispatch(ctx context.Context, pkt *protocol.Packet, user *models.User) *protocol.Packet {
	if r == nil || pkt == nil {
		return nil
	}
	logger := logging.LoggerFromContext(ctx)

	kind := pkt.Kind()
	module, ok := r.modules[kind]
	if !ok {
		logger.Warn("unhandled packet kind", logging.String("kind", string(kind)))
		return protocol.Unhandled(pkt)
	}

	switchType := int32(0)
	if module.switchType != nil {
		switchType = module.switchType(pkt)
	}

	handler, ok := module.handlers[switchType]
	if !ok {
		if module.fallback == nil {
			logger.Warn("unhandled packet",
				logging.String("kind", string(kind)),
				logging.Int32("switch_type", switchType))
			return protocol.Unhandled(pkt)
		}
		handler = *module.fallback
	}

	//1.- Payload shape is vetted before any accessor touches it; a type whose
	// matching payload pointer is nil gets a malformed response, not a panic.
	if module.complete != nil && !module.complete(pkt) {
		logger.Warn("incomplete packet",
			logging.String("kind", string(kind)),
			logging.Int32("switch_type", switchType))
		return protocol.NewResponse(pkt, protocol.CodeMalformed, "packet payload does not match its type")
	}

	if handler.Permission != "" {
		tournamentID := ""
		if handler.TournamentID != nil {
			tournamentID = handler.TournamentID(pkt)
		}
		if !r.resolver.HasPermission(user, tournamentID, handler.Permission) {
			logger.Info("packet forbidden",
				logging.String("kind", string(kind)),
				logging.Int32("switch_type", switchType),
				logging.String("tournament_id", tournamentID),
				logging.String("permission", handler.Permission),
				logging.String("user_id", userID(user)))
			return protocol.Forbidden(pkt)
		}
	}

	response, err := handler.Fn(ctx, pkt, user)
	if err != nil {
		logger.Error("handler failed",
			logging.String("kind", string(kind)),
			logging.Int32("switch_type", switchType),
			logging.Error(err))
		return protocol.NewResponse(pkt, protocol.CodeInternal, "request could not be processed")
	}
	return response
}

func userID(user *models.User) string {
	if user == nil {
		return ""
	}
	return user.ID
}
