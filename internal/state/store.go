// Package state owns the authoritative in-memory tournament tree. Every
// mutation is atomic with respect to other mutations on the same entity,
// reads are snapshot-consistent deep copies, and each successful mutation
// emits a sequenced change event consumed by the broadcast dispatcher and the
// audit journal.
package state

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"tournethub/coordinator/internal/logging"
	"tournethub/coordinator/internal/models"
)

var (
	// ErrNotFound indicates the referenced entity does not exist.
	ErrNotFound = errors.New("entity not found")
	// ErrVersionConflict signals that a mutation raced a concurrent write.
	ErrVersionConflict = errors.New("entity version conflict")
	// ErrNoAttemptsRemaining rejects a submission past the qualifier's attempt limit.
	ErrNoAttemptsRemaining = errors.New("no attempts remaining")
)

// EntityKind labels the node type a change event refers to.
type EntityKind string

const (
	EntityTournament EntityKind = "tournament"
	EntityUser       EntityKind = "user"
	EntityMatch      EntityKind = "match"
	EntityQualifier  EntityKind = "qualifier"
	EntityScore      EntityKind = "score"
)

// Action labels what happened to the entity.
type Action string

const (
	ActionCreated Action = "created"
	ActionUpdated Action = "updated"
	ActionDeleted Action = "deleted"
)

// ChangeEvent is the notification emitted after a successful mutation.
// Before and After hold deep copies; consumers may retain them freely.
type ChangeEvent struct {
	Seq          uint64     `json:"seq"`
	Kind         EntityKind `json:"kind"`
	Action       Action     `json:"action"`
	TournamentID string     `json:"tournament_id"`
	EntityID     string     `json:"entity_id"`
	MapID        string     `json:"map_id,omitempty"`
	Before       any        `json:"before,omitempty"`
	After        any        `json:"after,omitempty"`
}

// Counts reports entity totals for the introspection surface.
type Counts struct {
	Tournaments int `json:"tournaments"`
	Users       int `json:"users"`
	Matches     int `json:"matches"`
	Qualifiers  int `json:"qualifiers"`
	Scores      int `json:"scores"`
}

// Store is the shared-state tree root.
type Store struct {
	log *logging.Logger
	now func() time.Time

	mu          sync.RWMutex
	tournaments map[string]*tournamentEntry

	// seqMu orders sequence assignment and subscriber enqueue together so
	// every subscriber observes events in mutation order.
	seqMu sync.Mutex
	seq   uint64
	subs  map[string]*subscriber
}

type tournamentEntry struct {
	// mu guards the subtree for reads and tree writes; entity locks serialize
	// whole mutate cycles so the tree lock is only held briefly.
	mu         sync.RWMutex
	tournament *models.Tournament

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

func (e *tournamentEntry) entityLock(key string) *sync.Mutex {
	e.lockMu.Lock()
	defer e.lockMu.Unlock()
	lock, ok := e.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[key] = lock
	}
	return lock
}

// Option configures optional store behaviour at construction time.
type Option func(*Store)

// WithClock overrides the store's time source, primarily for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Store) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewStore constructs an empty state tree.
func NewStore(logger *logging.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = logging.L()
	}
	store := &Store{
		log:         logger,
		now:         time.Now,
		tournaments: make(map[string]*tournamentEntry),
		subs:        make(map[string]*subscriber),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store
}

func (s *Store) entry(tournamentID string) *tournamentEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tournaments[tournamentID]
}

// CreateTournament adds a new root scope and returns its snapshot.
func (s *Store) CreateTournament(settings models.TournamentSettings) (*models.Tournament, error) {
	tournament := &models.Tournament{
		ID:         uuid.NewString(),
		Settings:   settings,
		Users:      make(map[string]*models.User),
		Matches:    make(map[string]*models.Match),
		Qualifiers: make(map[string]*models.QualifierEvent),
	}
	s.mu.Lock()
	s.tournaments[tournament.ID] = &tournamentEntry{
		tournament: tournament,
		locks:      make(map[string]*sync.Mutex),
	}
	s.mu.Unlock()

	after := tournament.Clone()
	s.emit(ChangeEvent{Kind: EntityTournament, Action: ActionCreated, TournamentID: tournament.ID, EntityID: tournament.ID, After: after})
	return after, nil
}

// UpdateTournament applies the mutation to the tournament's settings.
func (s *Store) UpdateTournament(tournamentID string, mutate func(*models.TournamentSettings) error) (*models.Tournament, error) {
	entry := s.entry(tournamentID)
	if entry == nil {
		return nil, fmt.Errorf("tournament %s: %w", tournamentID, ErrNotFound)
	}
	lock := entry.entityLock("tournament")
	lock.Lock()
	defer lock.Unlock()

	entry.mu.Lock()
	before := entry.tournament.Clone()
	settings := entry.tournament.Settings
	if err := mutate(&settings); err != nil {
		entry.mu.Unlock()
		return nil, err
	}
	entry.tournament.Settings = settings
	after := entry.tournament.Clone()
	entry.mu.Unlock()

	s.emit(ChangeEvent{Kind: EntityTournament, Action: ActionUpdated, TournamentID: tournamentID, EntityID: tournamentID, Before: before, After: after})
	return after, nil
}

// DeleteTournament destroys the tournament and everything it owns.
func (s *Store) DeleteTournament(tournamentID string) error {
	s.mu.Lock()
	entry, ok := s.tournaments[tournamentID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("tournament %s: %w", tournamentID, ErrNotFound)
	}
	delete(s.tournaments, tournamentID)
	s.mu.Unlock()

	entry.mu.RLock()
	before := entry.tournament.Clone()
	entry.mu.RUnlock()

	s.emit(ChangeEvent{Kind: EntityTournament, Action: ActionDeleted, TournamentID: tournamentID, EntityID: tournamentID, Before: before})
	return nil
}

// GetTournament returns a snapshot of the tournament subtree.
func (s *Store) GetTournament(tournamentID string) (*models.Tournament, error) {
	entry := s.entry(tournamentID)
	if entry == nil {
		return nil, fmt.Errorf("tournament %s: %w", tournamentID, ErrNotFound)
	}
	entry.mu.RLock()
	defer entry.mu.RUnlock()
	return entry.tournament.Clone(), nil
}

// ListTournaments returns snapshots of every tournament.
func (s *Store) ListTournaments() []*models.Tournament {
	s.mu.RLock()
	entries := make([]*tournamentEntry, 0, len(s.tournaments))
	for _, entry := range s.tournaments {
		entries = append(entries, entry)
	}
	s.mu.RUnlock()

	tournaments := make([]*models.Tournament, 0, len(entries))
	for _, entry := range entries {
		entry.mu.RLock()
		tournaments = append(tournaments, entry.tournament.Clone())
		entry.mu.RUnlock()
	}
	return tournaments
}

// AddUser records a live presence in the tournament.
func (s *Store) AddUser(tournamentID string, user *models.User) error {
	if user == nil || user.ID == "" {
		return errors.New("user id must not be empty")
	}
	entry := s.entry(tournamentID)
	if entry == nil {
		return fmt.Errorf("tournament %s: %w", tournamentID, ErrNotFound)
	}
	lock := entry.entityLock("user:" + user.ID)
	lock.Lock()
	defer lock.Unlock()

	entry.mu.Lock()
	entry.tournament.Users[user.ID] = user.Clone()
	after := user.Clone()
	entry.mu.Unlock()

	s.emit(ChangeEvent{Kind: EntityUser, Action: ActionCreated, TournamentID: tournamentID, EntityID: user.ID, After: after})
	return nil
}

// RemoveUser drops the live-presence marker and strips the user from any
// matches in the tournament. Each affected match emits its own update event.
func (s *Store) RemoveUser(tournamentID, userID string) error {
	entry := s.entry(tournamentID)
	if entry == nil {
		return fmt.Errorf("tournament %s: %w", tournamentID, ErrNotFound)
	}
	lock := entry.entityLock("user:" + userID)
	lock.Lock()

	entry.mu.Lock()
	user, ok := entry.tournament.Users[userID]
	if !ok {
		entry.mu.Unlock()
		lock.Unlock()
		return fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	before := user.Clone()
	delete(entry.tournament.Users, userID)
	affected := make([]string, 0)
	for id, match := range entry.tournament.Matches {
		if match.HasParticipant(userID) {
			affected = append(affected, id)
		}
	}
	entry.mu.Unlock()
	lock.Unlock()

	s.emit(ChangeEvent{Kind: EntityUser, Action: ActionDeleted, TournamentID: tournamentID, EntityID: userID, Before: before})

	for _, matchID := range affected {
		_, err := s.UpdateMatch(tournamentID, matchID, 0, func(match *models.Match) error {
			participants := match.Participants[:0]
			for _, id := range match.Participants {
				if id != userID {
					participants = append(participants, id)
				}
			}
			match.Participants = participants
			return nil
		})
		if err != nil && !errors.Is(err, ErrNotFound) {
			s.log.Warn("failed to strip user from match",
				logging.String("match_id", matchID), logging.Error(err))
		}
	}
	return nil
}

// RemoveUserEverywhere clears the user's presence from every tournament,
// returning the affected tournament ids. Used on disconnect.
func (s *Store) RemoveUserEverywhere(userID string) []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.tournaments))
	for id, entry := range s.tournaments {
		entry.mu.RLock()
		if _, ok := entry.tournament.Users[userID]; ok {
			ids = append(ids, id)
		}
		entry.mu.RUnlock()
	}
	s.mu.RUnlock()

	affected := make([]string, 0, len(ids))
	for _, tournamentID := range ids {
		if err := s.RemoveUser(tournamentID, userID); err == nil {
			affected = append(affected, tournamentID)
		}
	}
	return affected
}

// Counts reports entity totals for one tournament.
func (s *Store) Counts(tournamentID string) (Counts, error) {
	entry := s.entry(tournamentID)
	if entry == nil {
		return Counts{}, fmt.Errorf("tournament %s: %w", tournamentID, ErrNotFound)
	}
	entry.mu.RLock()
	defer entry.mu.RUnlock()
	return countsLocked(entry.tournament), nil
}

// TotalCounts aggregates entity totals across all tournaments.
func (s *Store) TotalCounts() Counts {
	totals := Counts{}
	s.mu.RLock()
	entries := make([]*tournamentEntry, 0, len(s.tournaments))
	for _, entry := range s.tournaments {
		entries = append(entries, entry)
	}
	s.mu.RUnlock()

	totals.Tournaments = len(entries)
	for _, entry := range entries {
		entry.mu.RLock()
		counts := countsLocked(entry.tournament)
		entry.mu.RUnlock()
		totals.Users += counts.Users
		totals.Matches += counts.Matches
		totals.Qualifiers += counts.Qualifiers
		totals.Scores += counts.Scores
	}
	return totals
}

func countsLocked(t *models.Tournament) Counts {
	counts := Counts{Users: len(t.Users), Matches: len(t.Matches)}
	for _, qualifier := range t.Qualifiers {
		if qualifier.Old {
			continue
		}
		counts.Qualifiers++
		for _, board := range qualifier.Leaderboards {
			counts.Scores += len(board.Scores)
		}
	}
	return counts
}

// Export deep-copies the whole tree for journal snapshots.
func (s *Store) Export() []*models.Tournament {
	return s.ListTournaments()
}
