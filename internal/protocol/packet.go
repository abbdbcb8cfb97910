// Package protocol defines the wire envelope exchanged with connected
// clients. The envelope is a oneof-style union: exactly one payload pointer is
// populated and the Kind discriminator selects it. Field names are stable;
// byte-level encoding is delegated to the serialization boundary.
package protocol

import (
	"encoding/json"

	"tournethub/coordinator/internal/models"
)

// Kind enumerates the closed set of top-level payload kinds.
type Kind string

const (
	KindUnknown         Kind = "unknown"
	KindConnect         Kind = "connect"
	KindRequest         Kind = "request"
	KindResponse        Kind = "response"
	KindEvent           Kind = "event"
	KindForwarded       Kind = "forwarded"
	KindAcknowledgement Kind = "acknowledgement"
)

// Packet is the top-level message envelope. Exactly one payload field is set.
type Packet struct {
	ID              string           `json:"id"`
	Connect         *Connect         `json:"connect,omitempty"`
	Request         *Request         `json:"request,omitempty"`
	Response        *Response        `json:"response,omitempty"`
	Event           *Event           `json:"event,omitempty"`
	Forwarded       *Forwarded       `json:"forwarded,omitempty"`
	Acknowledgement *Acknowledgement `json:"acknowledgement,omitempty"`
}

// Kind returns the discriminator for the populated payload.
func (p *Packet) Kind() Kind {
	switch {
	case p == nil:
		return KindUnknown
	case p.Connect != nil:
		return KindConnect
	case p.Request != nil:
		return KindRequest
	case p.Response != nil:
		return KindResponse
	case p.Event != nil:
		return KindEvent
	case p.Forwarded != nil:
		return KindForwarded
	case p.Acknowledgement != nil:
		return KindAcknowledgement
	default:
		return KindUnknown
	}
}

// Encode renders the packet for the websocket transport.
func (p *Packet) Encode() ([]byte, error) {
	return json.Marshal(p)
}

// Decode parses a websocket frame into a packet envelope.
func Decode(raw []byte) (*Packet, error) {
	var pkt Packet
	if err := json.Unmarshal(raw, &pkt); err != nil {
		return nil, err
	}
	return &pkt, nil
}

// Connect is the first frame a client must send: it binds the connection to
// an identity. The credential is opaque to the protocol layer.
type Connect struct {
	Credential    string `json:"credential"`
	ClientVersion int32  `json:"client_version"`
}

// Forwarded asks the server to relay the wrapped packet to specific users,
// for example coordinator-to-player stream sync messages.
type Forwarded struct {
	Recipients []string `json:"recipients"`
	Packet     *Packet  `json:"packet"`
}

// Acknowledgement confirms receipt of a previously sent packet.
type Acknowledgement struct {
	PacketID string `json:"packet_id"`
	Success  bool   `json:"success"`
	Message  string `json:"message,omitempty"`
}

// RequestType is the secondary integer discriminator selecting a handler
// within the Request kind.
type RequestType int32

const (
	RequestJoin RequestType = iota
	RequestCreateTournament
	RequestUpdateTournament
	RequestDeleteTournament
	RequestCreateMatch
	RequestUpdateMatch
	RequestDeleteMatch
	RequestCreateQualifier
	RequestUpdateQualifier
	RequestDeleteQualifier
	RequestSubmitScore
	RequestGetLeaderboard
	RequestRemainingAttempts
	RequestListTournaments
)

// Request fans a single packet kind out into logically distinct operations.
// Exactly one nested payload matching Type is set.
type Request struct {
	Type RequestType `json:"type"`

	Join              *JoinRequest              `json:"join,omitempty"`
	CreateTournament  *CreateTournamentRequest  `json:"create_tournament,omitempty"`
	UpdateTournament  *UpdateTournamentRequest  `json:"update_tournament,omitempty"`
	DeleteTournament  *DeleteTournamentRequest  `json:"delete_tournament,omitempty"`
	CreateMatch       *CreateMatchRequest       `json:"create_match,omitempty"`
	UpdateMatch       *UpdateMatchRequest       `json:"update_match,omitempty"`
	DeleteMatch       *DeleteMatchRequest       `json:"delete_match,omitempty"`
	CreateQualifier   *CreateQualifierRequest   `json:"create_qualifier,omitempty"`
	UpdateQualifier   *UpdateQualifierRequest   `json:"update_qualifier,omitempty"`
	DeleteQualifier   *DeleteQualifierRequest   `json:"delete_qualifier,omitempty"`
	SubmitScore       *SubmitScoreRequest       `json:"submit_score,omitempty"`
	GetLeaderboard    *GetLeaderboardRequest    `json:"get_leaderboard,omitempty"`
	RemainingAttempts *RemainingAttemptsRequest `json:"remaining_attempts,omitempty"`
}

// HasPayload reports whether the nested payload matching Type is populated.
// A request whose payload pointer does not match its own Type is malformed
// and must never reach a handler or a payload accessor.
func (r *Request) HasPayload() bool {
	if r == nil {
		return false
	}
	switch r.Type {
	case RequestJoin:
		return r.Join != nil
	case RequestCreateTournament:
		return r.CreateTournament != nil
	case RequestUpdateTournament:
		return r.UpdateTournament != nil
	case RequestDeleteTournament:
		return r.DeleteTournament != nil
	case RequestCreateMatch:
		return r.CreateMatch != nil
	case RequestUpdateMatch:
		return r.UpdateMatch != nil
	case RequestDeleteMatch:
		return r.DeleteMatch != nil
	case RequestCreateQualifier:
		return r.CreateQualifier != nil
	case RequestUpdateQualifier:
		return r.UpdateQualifier != nil
	case RequestDeleteQualifier:
		return r.DeleteQualifier != nil
	case RequestSubmitScore:
		return r.SubmitScore != nil
	case RequestGetLeaderboard:
		return r.GetLeaderboard != nil
	case RequestRemainingAttempts:
		return r.RemainingAttempts != nil
	case RequestListTournaments:
		return true
	default:
		return false
	}
}

// JoinRequest registers the session user as a live presence in a tournament.
type JoinRequest struct {
	TournamentID string `json:"tournament_id"`
	DisplayName  string `json:"display_name,omitempty"`
}

// CreateTournamentRequest opens a new root scope.
type CreateTournamentRequest struct {
	Settings models.TournamentSettings `json:"settings"`
}

// UpdateTournamentRequest replaces tournament settings.
type UpdateTournamentRequest struct {
	TournamentID string                    `json:"tournament_id"`
	Settings     models.TournamentSettings `json:"settings"`
}

// DeleteTournamentRequest destroys a tournament and everything it owns.
type DeleteTournamentRequest struct {
	TournamentID string `json:"tournament_id"`
}

// CreateMatchRequest starts a coordinator-managed match.
type CreateMatchRequest struct {
	TournamentID  string   `json:"tournament_id"`
	Participants  []string `json:"participants,omitempty"`
	CoordinatorID string   `json:"coordinator_id,omitempty"`
}

// UpdateMatchRequest mutates a match. Version carries the caller's last seen
// match version for optimistic concurrency; nil optional fields are left
// untouched.
type UpdateMatchRequest struct {
	TournamentID string   `json:"tournament_id"`
	MatchID      string   `json:"match_id"`
	Version      uint64   `json:"version"`
	AddUsers     []string `json:"add_users,omitempty"`
	RemoveUsers  []string `json:"remove_users,omitempty"`
	LeaderID     *string  `json:"leader_id,omitempty"`
	SelectedMap  *string  `json:"selected_map,omitempty"`
	InProgress   *bool    `json:"in_progress,omitempty"`
}

// DeleteMatchRequest ends or cancels a match.
type DeleteMatchRequest struct {
	TournamentID string `json:"tournament_id"`
	MatchID      string `json:"match_id"`
}

// CreateQualifierRequest opens an async leaderboard event.
type CreateQualifierRequest struct {
	TournamentID   string                `json:"tournament_id"`
	Name           string                `json:"name"`
	Sort           int32                 `json:"sort"`
	Invert         bool                  `json:"invert"`
	Flags          models.QualifierFlags `json:"flags"`
	AttemptsPerMap int                   `json:"attempts_per_map,omitempty"`
	MapIDs         []string              `json:"map_ids,omitempty"`
}

// UpdateQualifierRequest edits qualifier configuration.
type UpdateQualifierRequest struct {
	TournamentID string                 `json:"tournament_id"`
	QualifierID  string                 `json:"qualifier_id"`
	Version      uint64                 `json:"version"`
	Name         *string                `json:"name,omitempty"`
	Sort         *int32                 `json:"sort,omitempty"`
	Invert       *bool                  `json:"invert,omitempty"`
	Flags        *models.QualifierFlags `json:"flags,omitempty"`
	AddMaps      []string               `json:"add_maps,omitempty"`
	RemoveMaps   []string               `json:"remove_maps,omitempty"`
}

// DeleteQualifierRequest soft-deletes a qualifier, preserving score history.
type DeleteQualifierRequest struct {
	TournamentID string `json:"tournament_id"`
	QualifierID  string `json:"qualifier_id"`
}

// SubmitScoreRequest submits a qualifier score for one map.
type SubmitScoreRequest struct {
	TournamentID string       `json:"tournament_id"`
	QualifierID  string       `json:"qualifier_id"`
	MapID        string       `json:"map_id"`
	Score        models.Score `json:"score"`
}

// GetLeaderboardRequest fetches the ordered score rows for one map.
type GetLeaderboardRequest struct {
	TournamentID string `json:"tournament_id"`
	QualifierID  string `json:"qualifier_id"`
	MapID        string `json:"map_id"`
}

// RemainingAttemptsRequest queries how many submissions the player has left.
type RemainingAttemptsRequest struct {
	TournamentID string `json:"tournament_id"`
	QualifierID  string `json:"qualifier_id"`
	MapID        string `json:"map_id"`
}
