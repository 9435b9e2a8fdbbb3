package trending

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/ristiko/smilodon/domain"
)

func candidate(title string, start time.Time, likes, comments, attendances int) domain.EventEngagement {
	return domain.EventEngagement{
		Event: domain.Event{
			Id:         uuid.New(),
			AccountId:  uuid.New(),
			Title:      title,
			StartTime:  start,
			Visibility: domain.VisibilityPublic,
		},
		Likes:       likes,
		Comments:    comments,
		Attendances: attendances,
	}
}

func TestClampWindow(t *testing.T) {
	cases := []struct {
		in   int
		want int
	}{
		{-5, 7},
		{0, 7},
		{1, 1},
		{7, 7},
		{30, 30},
		{31, 30},
		{1000, 30},
	}
	for _, c := range cases {
		if got := ClampWindow(c.in); got != c.want {
			t.Errorf("ClampWindow(%d): expected %d, got %d", c.in, c.want, got)
		}
	}
}

func TestClampLimit(t *testing.T) {
	cases := []struct {
		in   int
		want int
	}{
		{-1, 0},
		{0, 0},
		{1, 1},
		{10, 10},
		{50, 50},
		{51, 50},
		{1000, 50},
	}
	for _, c := range cases {
		if got := ClampLimit(c.in); got != c.want {
			t.Errorf("ClampLimit(%d): expected %d, got %d", c.in, c.want, got)
		}
	}
}

func TestCutoff(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	got := Cutoff(now, 7)
	want := time.Date(2026, 3, 8, 12, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Expected cutoff %v, got %v", want, got)
	}

	// Oversized windows are clamped before subtraction.
	got = Cutoff(now, 1000)
	want = time.Date(2026, 2, 13, 12, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Expected clamped cutoff %v, got %v", want, got)
	}
}

func TestScoreWeights(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	// Event starting right now: decay is 1, the score is the raw
	// weighted sum. 2 likes + 1 comment + 1 attendance = 2 + 2 + 3.
	got := Score(candidate("now", now, 2, 1, 1), now, 7)
	if got != 7 {
		t.Errorf("Expected score 7, got %v", got)
	}
}

func TestScoreDecay(t *testing.T) {
	now := time.Date(2026, 5, 8, 12, 0, 0, 0, time.UTC)

	// Started 3.5 days into a 7 day window: half the raw score remains.
	start := now.Add(-84 * time.Hour)
	got := Score(candidate("halfway", start, 4, 0, 0), now, 7)
	if got != 2 {
		t.Errorf("Expected score 2, got %v", got)
	}
}

func TestScoreFutureEventFullWeight(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	got := Score(candidate("upcoming", now.AddDate(0, 0, 3), 1, 0, 0), now, 7)
	if got != 1 {
		t.Errorf("Expected future event to score without decay, got %v", got)
	}
}

func TestScoreWindowEdgeIsZero(t *testing.T) {
	now := time.Date(2026, 5, 8, 12, 0, 0, 0, time.UTC)

	got := Score(candidate("stale", now.AddDate(0, 0, -7), 10, 10, 10), now, 7)
	if got != 0 {
		t.Errorf("Expected zero score at the window edge, got %v", got)
	}

	got = Score(candidate("older", now.AddDate(0, 0, -20), 10, 10, 10), now, 7)
	if got != 0 {
		t.Errorf("Expected zero score past the window edge, got %v", got)
	}
}

func TestScoreZeroEngagement(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	if got := Score(candidate("quiet", now, 0, 0, 0), now, 7); got != 0 {
		t.Errorf("Expected zero score without engagement, got %v", got)
	}
}

func TestRankOrdersByScore(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	candidates := []domain.EventEngagement{
		candidate("third", now, 1, 0, 0),
		candidate("first", now, 0, 0, 3),
		candidate("second", now, 0, 2, 0),
	}

	ranked := Rank(candidates, now, 7, 10)
	if len(ranked) != 3 {
		t.Fatalf("Expected 3 ranked events, got %d", len(ranked))
	}
	for i, want := range []string{"first", "second", "third"} {
		if ranked[i].Event.Title != want {
			t.Errorf("Expected %q at position %d, got %q", want, i, ranked[i].Event.Title)
		}
	}
}

func TestRankDropsSharesAndQuietEvents(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	share := candidate("share", now, 5, 5, 5)
	originalId := uuid.New()
	share.Event.SharedEventId = &originalId

	candidates := []domain.EventEngagement{
		share,
		candidate("quiet", now, 0, 0, 0),
		candidate("kept", now, 1, 0, 0),
	}

	ranked := Rank(candidates, now, 7, 10)
	if len(ranked) != 1 {
		t.Fatalf("Expected 1 ranked event, got %d", len(ranked))
	}
	if ranked[0].Event.Title != "kept" {
		t.Errorf("Expected %q, got %q", "kept", ranked[0].Event.Title)
	}
}

func TestRankTieBreakByLikes(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	// Same start, same raw score 2, different like counts.
	candidates := []domain.EventEngagement{
		candidate("commented", now, 0, 1, 0),
		candidate("liked", now, 2, 0, 0),
	}

	ranked := Rank(candidates, now, 7, 10)
	if len(ranked) != 2 {
		t.Fatalf("Expected 2 ranked events, got %d", len(ranked))
	}
	if ranked[0].Event.Title != "liked" {
		t.Errorf("Expected like count to break the tie, got %q first", ranked[0].Event.Title)
	}
}

func TestRankTieBreakByStartTime(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	// Both in the future, so both score without decay. Same likes.
	candidates := []domain.EventEngagement{
		candidate("later", now.AddDate(0, 0, 5), 1, 0, 0),
		candidate("sooner", now.AddDate(0, 0, 2), 1, 0, 0),
	}

	ranked := Rank(candidates, now, 7, 10)
	if len(ranked) != 2 {
		t.Fatalf("Expected 2 ranked events, got %d", len(ranked))
	}
	if ranked[0].Event.Title != "sooner" {
		t.Errorf("Expected earlier start to break the tie, got %q first", ranked[0].Event.Title)
	}
}

func TestRankLimit(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	var candidates []domain.EventEngagement
	for i := 0; i < 5; i++ {
		candidates = append(candidates, candidate(fmt.Sprintf("event-%d", i), now, i+1, 0, 0))
	}

	ranked := Rank(candidates, now, 7, 2)
	if len(ranked) != 2 {
		t.Fatalf("Expected 2 ranked events, got %d", len(ranked))
	}
	if ranked[0].Event.Title != "event-4" {
		t.Errorf("Expected %q first, got %q", "event-4", ranked[0].Event.Title)
	}

	if got := Rank(candidates, now, 7, 0); len(got) != 0 {
		t.Errorf("Expected empty result for limit 0, got %d entries", len(got))
	}
}

func TestRankDeterministic(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	candidates := []domain.EventEngagement{
		candidate("a", now.AddDate(0, 0, -1), 2, 1, 0),
		candidate("b", now.AddDate(0, 0, -2), 0, 3, 1),
		candidate("c", now, 1, 1, 1),
	}

	first := Rank(candidates, now, 7, 10)
	second := Rank(candidates, now, 7, 10)
	if len(first) != len(second) {
		t.Fatalf("Expected stable result size, got %d then %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Event.Id != second[i].Event.Id {
			t.Errorf("Expected identical order at position %d, got %q then %q",
				i, first[i].Event.Title, second[i].Event.Title)
		}
		if first[i].Score != second[i].Score {
			t.Errorf("Expected identical score at position %d, got %v then %v",
				i, first[i].Score, second[i].Score)
		}
	}
}
