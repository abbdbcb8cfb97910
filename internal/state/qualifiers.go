package state

import (
	"fmt"

	"github.com/google/uuid"

	"tournethub/coordinator/internal/models"
	"tournethub/coordinator/internal/scoring"
)

// QualifierConfig carries the caller-supplied settings for a new qualifier.
type QualifierConfig struct {
	Name           string
	Sort           scoring.Sort
	Invert         bool
	Flags          models.QualifierFlags
	AttemptsPerMap int
	MapIDs         []string
}

// CreateQualifier opens an async leaderboard event with one empty leaderboard
// per configured map.
func (s *Store) CreateQualifier(tournamentID string, cfg QualifierConfig) (*models.QualifierEvent, error) {
	entry := s.entry(tournamentID)
	if entry == nil {
		return nil, fmt.Errorf("tournament %s: %w", tournamentID, ErrNotFound)
	}
	qualifier := &models.QualifierEvent{
		ID:             uuid.NewString(),
		TournamentID:   tournamentID,
		Name:           cfg.Name,
		Sort:           int32(cfg.Sort),
		Invert:         cfg.Invert,
		Flags:          cfg.Flags,
		AttemptsPerMap: cfg.AttemptsPerMap,
		Leaderboards:   make(map[string]*models.Leaderboard, len(cfg.MapIDs)),
		Version:        1,
	}
	for _, mapID := range cfg.MapIDs {
		qualifier.Leaderboards[mapID] = &models.Leaderboard{MapID: mapID, Attempts: make(map[string]int)}
	}

	entry.mu.Lock()
	entry.tournament.Qualifiers[qualifier.ID] = qualifier
	after := qualifier.Clone()
	entry.mu.Unlock()

	s.emit(ChangeEvent{Kind: EntityQualifier, Action: ActionCreated, TournamentID: tournamentID, EntityID: qualifier.ID, After: after})
	return after, nil
}

// UpdateQualifier applies the mutation under the qualifier's write
// serialization, with the same optimistic versioning rules as matches.
func (s *Store) UpdateQualifier(tournamentID, qualifierID string, expectedVersion uint64, mutate func(*models.QualifierEvent) error) (*models.QualifierEvent, error) {
	entry := s.entry(tournamentID)
	if entry == nil {
		return nil, fmt.Errorf("tournament %s: %w", tournamentID, ErrNotFound)
	}
	lock := entry.entityLock("qualifier:" + qualifierID)
	lock.Lock()
	defer lock.Unlock()

	entry.mu.Lock()
	qualifier, ok := entry.tournament.Qualifiers[qualifierID]
	if !ok || qualifier.Old {
		entry.mu.Unlock()
		return nil, fmt.Errorf("qualifier %s: %w", qualifierID, ErrNotFound)
	}
	if expectedVersion != 0 && qualifier.Version != expectedVersion {
		current := qualifier.Version
		entry.mu.Unlock()
		return nil, fmt.Errorf("%w: qualifier %s is at version %d, caller expected %d", ErrVersionConflict, qualifierID, current, expectedVersion)
	}
	before := qualifier.Clone()
	work := qualifier.Clone()
	entry.mu.Unlock()

	if err := mutate(work); err != nil {
		return nil, err
	}
	work.ID = before.ID
	work.TournamentID = before.TournamentID
	work.Old = before.Old
	work.Version = before.Version + 1

	entry.mu.Lock()
	entry.tournament.Qualifiers[qualifierID] = work
	after := work.Clone()
	entry.mu.Unlock()

	s.emit(ChangeEvent{Kind: EntityQualifier, Action: ActionUpdated, TournamentID: tournamentID, EntityID: qualifierID, Before: before, After: after})
	return after, nil
}

// DeleteQualifier soft-deletes the event. Score rows survive under the Old
// flag for historical queries; the qualifier stops accepting submissions.
func (s *Store) DeleteQualifier(tournamentID, qualifierID string) error {
	entry := s.entry(tournamentID)
	if entry == nil {
		return fmt.Errorf("tournament %s: %w", tournamentID, ErrNotFound)
	}
	lock := entry.entityLock("qualifier:" + qualifierID)
	lock.Lock()
	defer lock.Unlock()

	entry.mu.Lock()
	qualifier, ok := entry.tournament.Qualifiers[qualifierID]
	if !ok || qualifier.Old {
		entry.mu.Unlock()
		return fmt.Errorf("qualifier %s: %w", qualifierID, ErrNotFound)
	}
	before := qualifier.Clone()
	qualifier.Old = true
	qualifier.Version++
	entry.mu.Unlock()

	s.emit(ChangeEvent{Kind: EntityQualifier, Action: ActionDeleted, TournamentID: tournamentID, EntityID: qualifierID, Before: before})
	return nil
}

// GetQualifier returns a snapshot of one live qualifier event.
func (s *Store) GetQualifier(tournamentID, qualifierID string) (*models.QualifierEvent, error) {
	entry := s.entry(tournamentID)
	if entry == nil {
		return nil, fmt.Errorf("tournament %s: %w", tournamentID, ErrNotFound)
	}
	entry.mu.RLock()
	defer entry.mu.RUnlock()
	qualifier, ok := entry.tournament.Qualifiers[qualifierID]
	if !ok || qualifier.Old {
		return nil, fmt.Errorf("qualifier %s: %w", qualifierID, ErrNotFound)
	}
	return qualifier.Clone(), nil
}

// SubmitResult reports the outcome of a score submission together with the
// refreshed leaderboard ordering.
type SubmitResult struct {
	Outcome  scoring.Outcome
	Retained *models.Score
	Ordered  []*models.Score
}

// SubmitScore runs the replace-on-better policy for the player's submission.
// Submissions consume an attempt whether or not they improve; a qualifier
// without the resubmission flag keeps the first retained score final.
func (s *Store) SubmitScore(tournamentID, qualifierID, mapID string, submitted *models.Score) (*SubmitResult, error) {
	if submitted == nil || submitted.PlatformID == "" {
		return nil, fmt.Errorf("score platform id must not be empty")
	}
	entry := s.entry(tournamentID)
	if entry == nil {
		return nil, fmt.Errorf("tournament %s: %w", tournamentID, ErrNotFound)
	}
	lock := entry.entityLock("qualifier:" + qualifierID)
	lock.Lock()
	defer lock.Unlock()

	entry.mu.Lock()
	qualifier, ok := entry.tournament.Qualifiers[qualifierID]
	if !ok || qualifier.Old {
		entry.mu.Unlock()
		return nil, fmt.Errorf("qualifier %s: %w", qualifierID, ErrNotFound)
	}
	board, ok := qualifier.Leaderboards[mapID]
	if !ok {
		entry.mu.Unlock()
		return nil, fmt.Errorf("map %s: %w", mapID, ErrNotFound)
	}
	if board.Attempts == nil {
		board.Attempts = make(map[string]int)
	}
	if qualifier.AttemptsPerMap > 0 && board.Attempts[submitted.PlatformID] >= qualifier.AttemptsPerMap {
		entry.mu.Unlock()
		return nil, fmt.Errorf("player %s on map %s: %w", submitted.PlatformID, mapID, ErrNoAttemptsRemaining)
	}
	board.Attempts[submitted.PlatformID]++

	score := submitted.Clone()
	if score.SubmittedAt.IsZero() {
		score.SubmittedAt = s.now()
	}
	sort := scoring.Sort(qualifier.Sort)
	outcome := scoring.Apply(board, score, sort, qualifier.Flags.Has(models.FlagAllowResubmission))
	retained := board.ScoreFor(score.PlatformID).Clone()
	ordered := scoring.Order(board.Scores, sort, qualifier.Invert)
	snapshot := make([]*models.Score, 0, len(ordered))
	for _, row := range ordered {
		snapshot = append(snapshot, row.Clone())
	}
	entry.mu.Unlock()

	if outcome != scoring.NotImproved {
		s.emit(ChangeEvent{
			Kind:         EntityScore,
			Action:       ActionUpdated,
			TournamentID: tournamentID,
			EntityID:     qualifierID,
			MapID:        mapID,
			After:        retained.Clone(),
		})
	}
	return &SubmitResult{Outcome: outcome, Retained: retained, Ordered: snapshot}, nil
}

// Leaderboard returns the ordered retained scores for one map.
func (s *Store) Leaderboard(tournamentID, qualifierID, mapID string) ([]*models.Score, error) {
	entry := s.entry(tournamentID)
	if entry == nil {
		return nil, fmt.Errorf("tournament %s: %w", tournamentID, ErrNotFound)
	}
	entry.mu.RLock()
	qualifier, ok := entry.tournament.Qualifiers[qualifierID]
	if !ok || qualifier.Old {
		entry.mu.RUnlock()
		return nil, fmt.Errorf("qualifier %s: %w", qualifierID, ErrNotFound)
	}
	board, ok := qualifier.Leaderboards[mapID]
	if !ok {
		entry.mu.RUnlock()
		return nil, fmt.Errorf("map %s: %w", mapID, ErrNotFound)
	}
	ordered := scoring.Order(board.Scores, scoring.Sort(qualifier.Sort), qualifier.Invert)
	snapshot := make([]*models.Score, 0, len(ordered))
	for _, row := range ordered {
		snapshot = append(snapshot, row.Clone())
	}
	entry.mu.RUnlock()
	return snapshot, nil
}

// RemainingAttempts reports how many submissions the player has left on the
// map. Zero AttemptsPerMap means unlimited, reported as -1.
func (s *Store) RemainingAttempts(tournamentID, qualifierID, mapID, platformID string) (int, error) {
	entry := s.entry(tournamentID)
	if entry == nil {
		return 0, fmt.Errorf("tournament %s: %w", tournamentID, ErrNotFound)
	}
	entry.mu.RLock()
	defer entry.mu.RUnlock()
	qualifier, ok := entry.tournament.Qualifiers[qualifierID]
	if !ok || qualifier.Old {
		return 0, fmt.Errorf("qualifier %s: %w", qualifierID, ErrNotFound)
	}
	board, ok := qualifier.Leaderboards[mapID]
	if !ok {
		return 0, fmt.Errorf("map %s: %w", mapID, ErrNotFound)
	}
	if qualifier.AttemptsPerMap <= 0 {
		return -1, nil
	}
	remaining := qualifier.AttemptsPerMap - board.Attempts[platformID]
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}
