package protocol

import (
	"testing"

	"tournethub/coordinator/internal/models"
)

func TestKindSelectsPopulatedPayload(t *testing.T) {
	tests := []struct {
		name string
		pkt  *Packet
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"empty", &Packet{}, KindUnknown},
		{"connect", &Packet{Connect: &Connect{}}, KindConnect},
		{"request", &Packet{Request: &Request{}}, KindRequest},
		{"response", &Packet{Response: &Response{}}, KindResponse},
		{"event", &Packet{Event: &Event{}}, KindEvent},
		{"forwarded", &Packet{Forwarded: &Forwarded{}}, KindForwarded},
		{"acknowledgement", &Packet{Acknowledgement: &Acknowledgement{}}, KindAcknowledgement},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.pkt.Kind(); got != tc.want {
				t.Fatalf("Kind() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDecodeRoundTripPreservesDiscriminators(t *testing.T) {
	original := &Packet{
		ID: "abc-123",
		Request: &Request{
			Type: RequestSubmitScore,
			SubmitScore: &SubmitScoreRequest{
				TournamentID: "t1",
				QualifierID:  "q1",
				MapID:        "m1",
				Score:        models.Score{PlatformID: "p1", ModifiedScore: 42},
			},
		},
	}
	raw, err := original.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Kind() != KindRequest {
		t.Fatalf("unexpected kind: %v", decoded.Kind())
	}
	if decoded.Request.Type != RequestSubmitScore {
		t.Fatalf("unexpected request type: %v", decoded.Request.Type)
	}
	if decoded.Request.SubmitScore == nil || decoded.Request.SubmitScore.Score.ModifiedScore != 42 {
		t.Fatalf("payload lost in transit: %+v", decoded.Request)
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode([]byte("{not json")); err == nil {
		t.Fatal("expected a decode error")
	}
}

func TestResponseHelpers(t *testing.T) {
	original := &Packet{ID: "origin-1"}

	response := Forbidden(original)
	if response.Kind() != KindResponse {
		t.Fatalf("unexpected kind: %v", response.Kind())
	}
	if response.Response.Code != CodeForbidden {
		t.Fatalf("unexpected code: %v", response.Response.Code)
	}
	if response.Response.RespondingTo != "origin-1" {
		t.Fatalf("response must reference the original packet, got %q", response.Response.RespondingTo)
	}
	if response.ID == "" || response.ID == original.ID {
		t.Fatal("responses need their own packet id")
	}

	if got := Unhandled(nil).Response.RespondingTo; got != "" {
		t.Fatalf("nil packet should produce an empty responding_to, got %q", got)
	}
}

func TestRequestHasPayload(t *testing.T) {
	tests := []struct {
		name    string
		request *Request
		want    bool
	}{
		{"nil request", nil, false},
		{"matched payload", &Request{
			Type:        RequestSubmitScore,
			SubmitScore: &SubmitScoreRequest{TournamentID: "t1"},
		}, true},
		{"type without payload", &Request{Type: RequestUpdateTournament}, false},
		{"mismatched payload", &Request{
			Type: RequestDeleteTournament,
			Join: &JoinRequest{TournamentID: "t1"},
		}, false},
		{"list tournaments carries no payload", &Request{Type: RequestListTournaments}, true},
		{"unknown type", &Request{Type: RequestType(99)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.request.HasPayload(); got != tt.want {
				t.Fatalf("HasPayload() = %v, want %v", got, tt.want)
			}
		})
	}
}
