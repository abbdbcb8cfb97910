package protocol

import (
	"github.com/google/uuid"

	"tournethub/coordinator/internal/models"
)

// ResponseCode distinguishes the typed outcome a request receives. A request
// is never silently dropped; every rejection maps to one of these.
type ResponseCode int32

const (
	CodeSuccess ResponseCode = iota
	CodeForbidden
	CodeUnhandledPacket
	CodeNotImproved
	CodeConcurrentConflict
	CodeInvalidCredential
	CodeMalformed
	CodeNotFound
	CodeInternal
	CodeAttemptsExhausted
)

func (c ResponseCode) String() string {
	switch c {
	case CodeSuccess:
		return "success"
	case CodeForbidden:
		return "forbidden"
	case CodeUnhandledPacket:
		return "unhandled_packet"
	case CodeNotImproved:
		return "not_improved"
	case CodeConcurrentConflict:
		return "concurrent_conflict"
	case CodeInvalidCredential:
		return "invalid_credential"
	case CodeMalformed:
		return "malformed"
	case CodeNotFound:
		return "not_found"
	case CodeAttemptsExhausted:
		return "attempts_exhausted"
	default:
		return "internal"
	}
}

// Response answers a request, carrying whatever state the operation produced.
type Response struct {
	RespondingTo      string                 `json:"responding_to"`
	Code              ResponseCode           `json:"code"`
	Message           string                 `json:"message,omitempty"`
	TournamentID      string                 `json:"tournament_id,omitempty"`
	Tournament        *models.Tournament     `json:"tournament,omitempty"`
	Tournaments       []*models.Tournament   `json:"tournaments,omitempty"`
	Match             *models.Match          `json:"match,omitempty"`
	Qualifier         *models.QualifierEvent `json:"qualifier,omitempty"`
	Scores            []*models.Score        `json:"scores,omitempty"`
	RemainingAttempts int                    `json:"remaining_attempts,omitempty"`
}

// NewResponse builds a response envelope answering the given packet.
func NewResponse(to *Packet, code ResponseCode, message string) *Packet {
	respondingTo := ""
	if to != nil {
		respondingTo = to.ID
	}
	return &Packet{
		ID: uuid.NewString(),
		Response: &Response{
			RespondingTo: respondingTo,
			Code:         code,
			Message:      message,
		},
	}
}

// Success answers the packet affirmatively.
func Success(to *Packet) *Packet { return NewResponse(to, CodeSuccess, "") }

// Forbidden answers that the user lacks the required permission.
func Forbidden(to *Packet) *Packet {
	return NewResponse(to, CodeForbidden, "you do not have permission to perform this action")
}

// Unhandled answers that no handler is registered for the packet.
func Unhandled(to *Packet) *Packet {
	return NewResponse(to, CodeUnhandledPacket, "unrecognized packet type")
}

// EventType discriminates server-pushed state deltas.
type EventType int32

const (
	EventTournamentCreated EventType = iota
	EventTournamentUpdated
	EventTournamentDeleted
	EventUserJoined
	EventUserLeft
	EventUserUpdated
	EventMatchCreated
	EventMatchUpdated
	EventMatchDeleted
	EventQualifierCreated
	EventQualifierUpdated
	EventQualifierDeleted
	EventScoreSubmitted
)

// Event is an outbound state delta fanned out by the broadcast dispatcher.
// Seq is the originating state-store sequence; per-recipient delivery is FIFO
// in Seq order.
type Event struct {
	Type         EventType              `json:"type"`
	Seq          uint64                 `json:"seq"`
	TournamentID string                 `json:"tournament_id,omitempty"`
	MapID        string                 `json:"map_id,omitempty"`
	User         *models.User           `json:"user,omitempty"`
	Match        *models.Match          `json:"match,omitempty"`
	Qualifier    *models.QualifierEvent `json:"qualifier,omitempty"`
	Tournament   *models.Tournament     `json:"tournament,omitempty"`
	Score        *models.Score          `json:"score,omitempty"`
}
