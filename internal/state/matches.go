package state

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"tournethub/coordinator/internal/models"
)

// CreateMatch starts a coordinator-managed match inside the tournament.
func (s *Store) CreateMatch(tournamentID string, participants []string, coordinatorID string) (*models.Match, error) {
	entry := s.entry(tournamentID)
	if entry == nil {
		return nil, fmt.Errorf("tournament %s: %w", tournamentID, ErrNotFound)
	}
	if coordinatorID == "" {
		return nil, errors.New("match coordinator must be set")
	}
	match := &models.Match{
		ID:            uuid.NewString(),
		TournamentID:  tournamentID,
		Participants:  append([]string(nil), participants...),
		CoordinatorID: coordinatorID,
		Version:       1,
	}
	entry.mu.Lock()
	entry.tournament.Matches[match.ID] = match
	after := match.Clone()
	entry.mu.Unlock()

	s.emit(ChangeEvent{Kind: EntityMatch, Action: ActionCreated, TournamentID: tournamentID, EntityID: match.ID, After: after})
	return after, nil
}

// UpdateMatch applies the mutation under the match's write serialization.
// expectedVersion guards against lost updates; zero skips the check. The
// mutation runs against a copy, so a failed mutate leaves state untouched.
func (s *Store) UpdateMatch(tournamentID, matchID string, expectedVersion uint64, mutate func(*models.Match) error) (*models.Match, error) {
	entry := s.entry(tournamentID)
	if entry == nil {
		return nil, fmt.Errorf("tournament %s: %w", tournamentID, ErrNotFound)
	}
	lock := entry.entityLock("match:" + matchID)
	lock.Lock()
	defer lock.Unlock()

	entry.mu.Lock()
	match, ok := entry.tournament.Matches[matchID]
	if !ok {
		entry.mu.Unlock()
		return nil, fmt.Errorf("match %s: %w", matchID, ErrNotFound)
	}
	if expectedVersion != 0 && match.Version != expectedVersion {
		current := match.Version
		entry.mu.Unlock()
		return nil, fmt.Errorf("%w: match %s is at version %d, caller expected %d", ErrVersionConflict, matchID, current, expectedVersion)
	}
	before := match.Clone()
	work := match.Clone()
	entry.mu.Unlock()

	if err := mutate(work); err != nil {
		return nil, err
	}
	work.ID = before.ID
	work.TournamentID = before.TournamentID
	work.Version = before.Version + 1

	entry.mu.Lock()
	entry.tournament.Matches[matchID] = work
	after := work.Clone()
	entry.mu.Unlock()

	s.emit(ChangeEvent{Kind: EntityMatch, Action: ActionUpdated, TournamentID: tournamentID, EntityID: matchID, Before: before, After: after})
	return after, nil
}

// DeleteMatch removes the match entirely; matches have no soft-delete.
func (s *Store) DeleteMatch(tournamentID, matchID string) error {
	entry := s.entry(tournamentID)
	if entry == nil {
		return fmt.Errorf("tournament %s: %w", tournamentID, ErrNotFound)
	}
	lock := entry.entityLock("match:" + matchID)
	lock.Lock()
	defer lock.Unlock()

	entry.mu.Lock()
	match, ok := entry.tournament.Matches[matchID]
	if !ok {
		entry.mu.Unlock()
		return fmt.Errorf("match %s: %w", matchID, ErrNotFound)
	}
	before := match.Clone()
	delete(entry.tournament.Matches, matchID)
	entry.mu.Unlock()

	s.emit(ChangeEvent{Kind: EntityMatch, Action: ActionDeleted, TournamentID: tournamentID, EntityID: matchID, Before: before})
	return nil
}

// GetMatch returns a snapshot of one match.
func (s *Store) GetMatch(tournamentID, matchID string) (*models.Match, error) {
	entry := s.entry(tournamentID)
	if entry == nil {
		return nil, fmt.Errorf("tournament %s: %w", tournamentID, ErrNotFound)
	}
	entry.mu.RLock()
	defer entry.mu.RUnlock()
	match, ok := entry.tournament.Matches[matchID]
	if !ok {
		return nil, fmt.Errorf("match %s: %w", matchID, ErrNotFound)
	}
	return match.Clone(), nil
}
