package models

import "time"

// ClientType classifies what kind of client a live connection represents.
type ClientType int32

const (
	ClientTypePlayer ClientType = iota
	ClientTypeCoordinator
	ClientTypeServerAdmin
	ClientTypeReadOnly
	ClientTypeWebsocket
)

func (c ClientType) String() string {
	switch c {
	case ClientTypePlayer:
		return "player"
	case ClientTypeCoordinator:
		return "coordinator"
	case ClientTypeServerAdmin:
		return "server_admin"
	case ClientTypeReadOnly:
		return "read_only"
	case ClientTypeWebsocket:
		return "websocket"
	default:
		return "unknown"
	}
}

// User is the session-scoped identity bound to a live connection. Users are
// owned by the session manager; tournament state only holds back-references.
type User struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	ClientType ClientType `json:"client_type"`
	PlatformID string     `json:"platform_id,omitempty"`
}

// Clone returns an independent copy of the user.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	clone := *u
	return &clone
}

// TournamentSettings captures per-tournament feature toggles.
type TournamentSettings struct {
	Name          string   `json:"name"`
	EnableTeams   bool     `json:"enable_teams"`
	EnablePools   bool     `json:"enable_pools"`
	BannedMods    []string `json:"banned_mods,omitempty"`
	ServerAddress string   `json:"server_address,omitempty"`
}

// Tournament is the root organizational and permission scope. It exclusively
// owns its matches and qualifier events.
type Tournament struct {
	ID         string                     `json:"id"`
	Settings   TournamentSettings         `json:"settings"`
	Users      map[string]*User           `json:"users,omitempty"`
	Matches    map[string]*Match          `json:"matches,omitempty"`
	Qualifiers map[string]*QualifierEvent `json:"qualifiers,omitempty"`
}

// Clone deep-copies the tournament subtree.
func (t *Tournament) Clone() *Tournament {
	if t == nil {
		return nil
	}
	clone := &Tournament{ID: t.ID, Settings: t.Settings}
	clone.Settings.BannedMods = append([]string(nil), t.Settings.BannedMods...)
	if len(t.Users) > 0 {
		clone.Users = make(map[string]*User, len(t.Users))
		for id, user := range t.Users {
			clone.Users[id] = user.Clone()
		}
	}
	if len(t.Matches) > 0 {
		clone.Matches = make(map[string]*Match, len(t.Matches))
		for id, match := range t.Matches {
			clone.Matches[id] = match.Clone()
		}
	}
	if len(t.Qualifiers) > 0 {
		clone.Qualifiers = make(map[string]*QualifierEvent, len(t.Qualifiers))
		for id, qualifier := range t.Qualifiers {
			clone.Qualifiers[id] = qualifier.Clone()
		}
	}
	return clone
}

// Match is a live coordinator-managed play session. Participants and the
// coordinator are referenced by user id only.
type Match struct {
	ID            string   `json:"id"`
	TournamentID  string   `json:"tournament_id"`
	Participants  []string `json:"participants,omitempty"`
	CoordinatorID string   `json:"coordinator_id"`
	SelectedMap   string   `json:"selected_map,omitempty"`
	InProgress    bool     `json:"in_progress"`
	Version       uint64   `json:"version"`
}

// Clone returns an independent copy of the match.
func (m *Match) Clone() *Match {
	if m == nil {
		return nil
	}
	clone := *m
	clone.Participants = append([]string(nil), m.Participants...)
	return &clone
}

// HasParticipant reports whether the user id is in the participant set.
func (m *Match) HasParticipant(userID string) bool {
	if m == nil {
		return false
	}
	for _, id := range m.Participants {
		if id == userID {
			return true
		}
	}
	return false
}

// QualifierFlags is the bitmask controlling qualifier behaviour.
type QualifierFlags int32

const (
	// FlagAllowResubmission lets a better later score replace an earlier one.
	FlagAllowResubmission QualifierFlags = 1 << iota
	// FlagHideScores withholds leaderboard entries from player responses.
	FlagHideScores
	// FlagEnableScoreFeed forwards submissions to the notification sink.
	FlagEnableScoreFeed
)

// Has reports whether every bit of flag is set.
func (f QualifierFlags) Has(flag QualifierFlags) bool { return f&flag == flag }

// QualifierEvent is an asynchronous leaderboard-based competition inside a
// tournament. Deletion is a soft delete via the Old flag so historical score
// rows survive.
type QualifierEvent struct {
	ID             string                  `json:"id"`
	TournamentID   string                  `json:"tournament_id"`
	Name           string                  `json:"name"`
	Sort           int32                   `json:"sort"`
	Invert         bool                    `json:"invert"`
	Flags          QualifierFlags          `json:"flags"`
	AttemptsPerMap int                     `json:"attempts_per_map,omitempty"`
	Leaderboards   map[string]*Leaderboard `json:"leaderboards,omitempty"`
	Old            bool                    `json:"old,omitempty"`
	Version        uint64                  `json:"version"`
}

// Clone deep-copies the qualifier and its leaderboards.
func (q *QualifierEvent) Clone() *QualifierEvent {
	if q == nil {
		return nil
	}
	clone := *q
	if len(q.Leaderboards) > 0 {
		clone.Leaderboards = make(map[string]*Leaderboard, len(q.Leaderboards))
		for id, board := range q.Leaderboards {
			clone.Leaderboards[id] = board.Clone()
		}
	}
	return &clone
}

// Leaderboard holds the retained score set for one map within a qualifier.
// At most one non-superseded score exists per player.
type Leaderboard struct {
	MapID    string         `json:"map_id"`
	Scores   []*Score       `json:"scores,omitempty"`
	Attempts map[string]int `json:"attempts,omitempty"`
}

// Clone deep-copies the leaderboard rows.
func (l *Leaderboard) Clone() *Leaderboard {
	if l == nil {
		return nil
	}
	clone := &Leaderboard{MapID: l.MapID}
	if len(l.Scores) > 0 {
		clone.Scores = make([]*Score, 0, len(l.Scores))
		for _, score := range l.Scores {
			clone.Scores = append(clone.Scores, score.Clone())
		}
	}
	if len(l.Attempts) > 0 {
		clone.Attempts = make(map[string]int, len(l.Attempts))
		for id, n := range l.Attempts {
			clone.Attempts[id] = n
		}
	}
	return clone
}

// ScoreFor returns the retained score for the player, if any.
func (l *Leaderboard) ScoreFor(platformID string) *Score {
	if l == nil {
		return nil
	}
	for _, score := range l.Scores {
		if score.PlatformID == platformID {
			return score
		}
	}
	return nil
}

// Score is a single retained leaderboard row.
type Score struct {
	PlatformID    string    `json:"platform_id"`
	Username      string    `json:"username"`
	ModifiedScore int32     `json:"modified_score"`
	NotesMissed   int32     `json:"notes_missed"`
	BadCuts       int32     `json:"bad_cuts"`
	GoodCuts      int32     `json:"good_cuts"`
	MaxCombo      int32     `json:"max_combo"`
	FullCombo     bool      `json:"full_combo"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

// Clone returns an independent copy of the score.
func (s *Score) Clone() *Score {
	if s == nil {
		return nil
	}
	clone := *s
	return &clone
}
