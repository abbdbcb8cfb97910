// Package scoring holds the pure comparison and ranking rules applied to
// qualifier leaderboards. All functions are side-effect free and parameterized
// by the event's configured sort strategy.
package scoring

import (
	"sort"

	"tournethub/coordinator/internal/models"
)

// Sort selects which score field ranks a leaderboard and in which direction.
type Sort int32

const (
	SortModifiedScore Sort = iota
	SortModifiedScoreAscending
	SortNotesMissed
	SortNotesMissedAscending
	SortBadCuts
	SortBadCutsAscending
	SortGoodCuts
	SortGoodCutsAscending
	SortMaxCombo
	SortMaxComboAscending
)

func (s Sort) String() string {
	switch s {
	case SortModifiedScore:
		return "modified_score"
	case SortModifiedScoreAscending:
		return "modified_score_ascending"
	case SortNotesMissed:
		return "notes_missed"
	case SortNotesMissedAscending:
		return "notes_missed_ascending"
	case SortBadCuts:
		return "bad_cuts"
	case SortBadCutsAscending:
		return "bad_cuts_ascending"
	case SortGoodCuts:
		return "good_cuts"
	case SortGoodCutsAscending:
		return "good_cuts_ascending"
	case SortMaxCombo:
		return "max_combo"
	case SortMaxComboAscending:
		return "max_combo_ascending"
	default:
		return "modified_score"
	}
}

// Sorts lists every supported sort strategy, mainly for exhaustive tests.
func Sorts() []Sort {
	return []Sort{
		SortModifiedScore, SortModifiedScoreAscending,
		SortNotesMissed, SortNotesMissedAscending,
		SortBadCuts, SortBadCutsAscending,
		SortGoodCuts, SortGoodCutsAscending,
		SortMaxCombo, SortMaxComboAscending,
	}
}

// Value projects the score field the sort strategy ranks by. Ascending
// variants reuse the same field; only the comparison direction differs.
func Value(score *models.Score, s Sort) int32 {
	if score == nil {
		return 0
	}
	switch s {
	case SortNotesMissed, SortNotesMissedAscending:
		return score.NotesMissed
	case SortBadCuts, SortBadCutsAscending:
		return score.BadCuts
	case SortGoodCuts, SortGoodCutsAscending:
		return score.GoodCuts
	case SortMaxCombo, SortMaxComboAscending:
		return score.MaxCombo
	default:
		return score.ModifiedScore
	}
}

// ascendingPreferred reports whether a strictly smaller projected value wins.
// NotesMissed counts as ascending-preferred even without the explicit
// Ascending variant: fewer misses is the better run.
func ascendingPreferred(s Sort) bool {
	switch s {
	case SortModifiedScoreAscending, SortNotesMissed, SortNotesMissedAscending,
		SortBadCutsAscending, SortGoodCutsAscending, SortMaxComboAscending:
		return true
	default:
		return false
	}
}

// IsBetter reports whether candidate strictly beats existing under the sort.
// Ties favour the existing, first-submitted score.
func IsBetter(existing, candidate *models.Score, s Sort) bool {
	if candidate == nil {
		return false
	}
	if existing == nil {
		return true
	}
	oldValue, newValue := Value(existing, s), Value(candidate, s)
	if ascendingPreferred(s) {
		return newValue < oldValue
	}
	return newValue > oldValue
}

// Order returns a new slice holding the scores in leaderboard display order.
// The invert flag flips the natural direction for presentation only; it never
// changes replace semantics.
func Order(scores []*models.Score, s Sort, invert bool) []*models.Score {
	ordered := make([]*models.Score, len(scores))
	copy(ordered, scores)
	beats := func(a, b *models.Score) bool { return IsBetter(b, a, s) }
	sort.SliceStable(ordered, func(i, j int) bool {
		if invert {
			return beats(ordered[j], ordered[i])
		}
		return beats(ordered[i], ordered[j])
	})
	return ordered
}

// Outcome classifies the result of applying a submission to a leaderboard.
type Outcome int

const (
	// Inserted means the player had no retained score and the submission was kept.
	Inserted Outcome = iota
	// Replaced means the submission superseded an inferior retained score.
	Replaced
	// NotImproved means a retained score already beats the submission. This is
	// a normal negative result, not an error.
	NotImproved
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Replaced:
		return "replaced"
	default:
		return "not_improved"
	}
}

// Apply runs the replace-on-better policy for a submission against the
// leaderboard. When allowResubmission is false a player's first retained score
// is final regardless of quality. The board is mutated in place; callers hold
// the owning entity's write serialization.
func Apply(board *models.Leaderboard, candidate *models.Score, s Sort, allowResubmission bool) Outcome {
	if board == nil || candidate == nil {
		return NotImproved
	}
	existing := board.ScoreFor(candidate.PlatformID)
	if existing == nil {
		board.Scores = append(board.Scores, candidate)
		return Inserted
	}
	if !allowResubmission {
		return NotImproved
	}
	if !IsBetter(existing, candidate, s) {
		return NotImproved
	}
	for i, score := range board.Scores {
		if score.PlatformID == candidate.PlatformID {
			board.Scores[i] = candidate
			break
		}
	}
	return Replaced
}
