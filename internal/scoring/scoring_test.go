package scoring

import (
	"testing"

	"tournethub/coordinator/internal/models"
)

func score(modified, missed, bad, good, combo int32) *models.Score {
	return &models.Score{
		PlatformID:    "p1",
		ModifiedScore: modified,
		NotesMissed:   missed,
		BadCuts:       bad,
		GoodCuts:      good,
		MaxCombo:      combo,
	}
}

func TestIsBetterDescendingFields(t *testing.T) {
	existing := score(9000, 0, 0, 0, 0)
	candidate := score(8000, 0, 0, 0, 0)

	if IsBetter(existing, candidate, SortModifiedScore) {
		t.Fatal("8000 must not beat a retained 9000")
	}
	if !IsBetter(candidate, existing, SortModifiedScore) {
		t.Fatal("9000 must beat a retained 8000")
	}
}

func TestIsBetterAscendingFields(t *testing.T) {
	first := score(0, 5, 0, 0, 0)
	second := score(0, 2, 0, 0, 0)

	if !IsBetter(first, second, SortNotesMissed) {
		t.Fatal("fewer notes missed must rank as better")
	}
	if IsBetter(second, first, SortNotesMissed) {
		t.Fatal("more notes missed must not replace fewer")
	}
}

func TestIsBetterTieKeepsExisting(t *testing.T) {
	for _, sort := range Sorts() {
		a := score(100, 100, 100, 100, 100)
		b := score(100, 100, 100, 100, 100)
		if IsBetter(a, b, sort) {
			t.Fatalf("sort %v: a tie must keep the existing score", sort)
		}
	}
}

func TestIsBetterNilExisting(t *testing.T) {
	if !IsBetter(nil, score(1, 1, 1, 1, 1), SortModifiedScore) {
		t.Fatal("any score beats no score")
	}
}

// The comparison must be asymmetric for every strategy: two distinct scores
// can never both beat each other, or the leaderboard order would be unstable.
func TestIsBetterAsymmetric(t *testing.T) {
	samples := []*models.Score{
		score(100, 5, 3, 40, 20),
		score(200, 2, 1, 60, 35),
		score(100, 2, 3, 40, 35),
		score(50, 9, 9, 9, 9),
	}
	for _, sort := range Sorts() {
		for _, a := range samples {
			for _, b := range samples {
				if IsBetter(a, b, sort) && IsBetter(b, a, sort) {
					t.Fatalf("sort %v: both directions report better for %+v vs %+v", sort, a, b)
				}
			}
		}
	}
}

func TestOrderDescendingAndInverted(t *testing.T) {
	scores := []*models.Score{
		score(100, 0, 0, 0, 0),
		score(300, 0, 0, 0, 0),
		score(200, 0, 0, 0, 0),
	}

	ordered := Order(scores, SortModifiedScore, false)
	if got := []int32{ordered[0].ModifiedScore, ordered[1].ModifiedScore, ordered[2].ModifiedScore}; got[0] != 300 || got[1] != 200 || got[2] != 100 {
		t.Fatalf("unexpected order: %v", got)
	}

	inverted := Order(scores, SortModifiedScore, true)
	if got := []int32{inverted[0].ModifiedScore, inverted[1].ModifiedScore, inverted[2].ModifiedScore}; got[0] != 100 || got[1] != 200 || got[2] != 300 {
		t.Fatalf("unexpected inverted order: %v", got)
	}
}

func TestOrderDoesNotMutateInput(t *testing.T) {
	scores := []*models.Score{
		score(100, 0, 0, 0, 0),
		score(300, 0, 0, 0, 0),
	}
	_ = Order(scores, SortModifiedScore, false)
	if scores[0].ModifiedScore != 100 {
		t.Fatal("input slice was reordered in place")
	}
}

func TestApplyInsertReplaceAndReject(t *testing.T) {
	board := &models.Leaderboard{MapID: "map-1", Attempts: map[string]int{}}

	if outcome := Apply(board, score(100, 0, 0, 0, 0), SortModifiedScore, true); outcome != Inserted {
		t.Fatalf("first submission: expected Inserted, got %v", outcome)
	}
	if outcome := Apply(board, score(250, 0, 0, 0, 0), SortModifiedScore, true); outcome != Replaced {
		t.Fatalf("better submission: expected Replaced, got %v", outcome)
	}
	if outcome := Apply(board, score(200, 0, 0, 0, 0), SortModifiedScore, true); outcome != NotImproved {
		t.Fatalf("worse submission: expected NotImproved, got %v", outcome)
	}
	if len(board.Scores) != 1 {
		t.Fatalf("expected exactly one retained score, got %d", len(board.Scores))
	}
	if board.Scores[0].ModifiedScore != 250 {
		t.Fatalf("retained score is %d, want 250", board.Scores[0].ModifiedScore)
	}
}

func TestApplyWithoutResubmissionFirstScoreIsFinal(t *testing.T) {
	board := &models.Leaderboard{MapID: "map-1", Attempts: map[string]int{}}

	if outcome := Apply(board, score(100, 0, 0, 0, 0), SortModifiedScore, false); outcome != Inserted {
		t.Fatalf("first submission: expected Inserted, got %v", outcome)
	}
	if outcome := Apply(board, score(9999, 0, 0, 0, 0), SortModifiedScore, false); outcome != NotImproved {
		t.Fatalf("resubmission disabled: expected NotImproved, got %v", outcome)
	}
	if board.Scores[0].ModifiedScore != 100 {
		t.Fatalf("retained score is %d, want the original 100", board.Scores[0].ModifiedScore)
	}
}
