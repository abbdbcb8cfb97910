package router

import (
	"context"
	"errors"
	"testing"

	"tournethub/coordinator/internal/auth"
	"tournethub/coordinator/internal/logging"
	"tournethub/coordinator/internal/models"
	"tournethub/coordinator/internal/protocol"
)

func requestPacket(requestType protocol.RequestType) *protocol.Packet {
	return &protocol.Packet{
		ID: "pkt-1",
		Request: &protocol.Request{
			Type: requestType,
			DeleteTournament: &protocol.DeleteTournamentRequest{
				TournamentID: "t1",
			},
		},
	}
}

func requestSwitch(pkt *protocol.Packet) int32 {
	if pkt.Request == nil {
		return -1
	}
	return int32(pkt.Request.Type)
}

func TestDispatchRoutesToExactHandler(t *testing.T) {
	var calls []int32
	handler := func(switchType int32) Handler {
		return Handler{
			SwitchType: switchType,
			Fn: func(context.Context, *protocol.Packet, *models.User) (*protocol.Packet, error) {
				calls = append(calls, switchType)
				return nil, nil
			},
		}
	}
	router, err := New(auth.NewResolver(nil), logging.NewTestLogger(), Module{
		Kind:       protocol.KindRequest,
		SwitchType: requestSwitch,
		Handlers:   []Handler{handler(2), handler(3), handler(4)},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	router.Dispatch(context.Background(), requestPacket(protocol.RequestType(3)), nil)

	if len(calls) != 1 || calls[0] != 3 {
		t.Fatalf("expected exactly handler 3 to run, got %v", calls)
	}
}

func TestDispatchUnknownSwitchTypeFallsBack(t *testing.T) {
	fallbackRan := false
	router, err := New(auth.NewResolver(nil), logging.NewTestLogger(), Module{
		Kind:       protocol.KindRequest,
		SwitchType: requestSwitch,
		Default: &Handler{
			Fn: func(context.Context, *protocol.Packet, *models.User) (*protocol.Packet, error) {
				fallbackRan = true
				return protocol.Success(nil), nil
			},
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	response := router.Dispatch(context.Background(), requestPacket(protocol.RequestType(99)), nil)

	if !fallbackRan {
		t.Fatal("expected the fallback handler to run")
	}
	if response == nil || response.Response.Code != protocol.CodeSuccess {
		t.Fatalf("unexpected response: %+v", response)
	}
}

func TestDispatchUnknownPacketIsTypedResponse(t *testing.T) {
	router, err := New(auth.NewResolver(nil), logging.NewTestLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	response := router.Dispatch(context.Background(), requestPacket(protocol.RequestJoin), nil)

	if response == nil || response.Response == nil {
		t.Fatal("expected a response packet")
	}
	if response.Response.Code != protocol.CodeUnhandledPacket {
		t.Fatalf("expected unhandled code, got %v", response.Response.Code)
	}
	if response.Response.RespondingTo != "pkt-1" {
		t.Fatalf("response must reference the original packet, got %q", response.Response.RespondingTo)
	}
}

func TestDispatchForbiddenNeverInvokesHandler(t *testing.T) {
	resolver := auth.NewResolver(nil)
	invoked := false
	router, err := New(resolver, logging.NewTestLogger(), Module{
		Kind:       protocol.KindRequest,
		SwitchType: requestSwitch,
		Handlers: []Handler{{
			SwitchType:   int32(protocol.RequestDeleteTournament),
			Permission:   auth.PermissionDeleteTournament,
			TournamentID: func(p *protocol.Packet) string { return p.Request.DeleteTournament.TournamentID },
			Fn: func(context.Context, *protocol.Packet, *models.User) (*protocol.Packet, error) {
				invoked = true
				return nil, nil
			},
		}},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	user := &models.User{ID: "u1", ClientType: models.ClientTypePlayer}
	response := router.Dispatch(context.Background(), requestPacket(protocol.RequestDeleteTournament), user)

	if invoked {
		t.Fatal("handler must not run for unauthorized packets")
	}
	if response.Response.Code != protocol.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", response.Response.Code)
	}

	//1.- Granting the scoped permission flips the same dispatch to success.
	resolver.Grant("u1", "t1", auth.PermissionDeleteTournament)
	router.Dispatch(context.Background(), requestPacket(protocol.RequestDeleteTournament), user)
	if !invoked {
		t.Fatal("handler should run once the permission is granted")
	}
}

func TestDispatchHandlerErrorBecomesInternalResponse(t *testing.T) {
	router, err := New(auth.NewResolver(nil), logging.NewTestLogger(), Module{
		Kind:       protocol.KindRequest,
		SwitchType: requestSwitch,
		Handlers: []Handler{{
			SwitchType: int32(protocol.RequestDeleteTournament),
			Fn: func(context.Context, *protocol.Packet, *models.User) (*protocol.Packet, error) {
				return nil, errors.New("boom")
			},
		}},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	response := router.Dispatch(context.Background(), requestPacket(protocol.RequestDeleteTournament), nil)
	if response.Response.Code != protocol.CodeInternal {
		t.Fatalf("expected internal code, got %v", response.Response.Code)
	}
}

func TestDispatchIncompletePayloadNeverReachesAccessor(t *testing.T) {
	invoked := false
	router, err := New(auth.NewResolver(nil), logging.NewTestLogger(), Module{
		Kind:       protocol.KindRequest,
		SwitchType: requestSwitch,
		Complete:   func(p *protocol.Packet) bool { return p.Request.HasPayload() },
		Handlers: []Handler{{
			SwitchType:   int32(protocol.RequestUpdateTournament),
			Permission:   auth.PermissionUpdateSettings,
			TournamentID: func(p *protocol.Packet) string { return p.Request.UpdateTournament.TournamentID },
			Fn: func(context.Context, *protocol.Packet, *models.User) (*protocol.Packet, error) {
				invoked = true
				return nil, nil
			},
		}},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	//1.- The type names a gated operation but the matching payload is nil.
	pkt := &protocol.Packet{
		ID:      "pkt-1",
		Request: &protocol.Request{Type: protocol.RequestUpdateTournament},
	}
	response := router.Dispatch(context.Background(), pkt, &models.User{ID: "u1"})

	if invoked {
		t.Fatal("handler must not run for an incomplete payload")
	}
	if response == nil || response.Response == nil {
		t.Fatal("expected a response packet")
	}
	if response.Response.Code != protocol.CodeMalformed {
		t.Fatalf("expected malformed code, got %v", response.Response.Code)
	}
	if response.Response.RespondingTo != "pkt-1" {
		t.Fatalf("response must reference the original packet, got %q", response.Response.RespondingTo)
	}
}

func TestNewRejectsDuplicateRegistrations(t *testing.T) {
	noop := func(context.Context, *protocol.Packet, *models.User) (*protocol.Packet, error) { return nil, nil }
	_, err := New(auth.NewResolver(nil), logging.NewTestLogger(), Module{
		Kind:     protocol.KindRequest,
		Handlers: []Handler{{SwitchType: 1, Fn: noop}, {SwitchType: 1, Fn: noop}},
	})
	if !errors.Is(err, ErrDuplicateHandler) {
		t.Fatalf("expected ErrDuplicateHandler, got %v", err)
	}
}
