// Package trending scores event engagement over a sliding window. The
// scorer is pure; callers load candidates from the database and pass a
// fixed "now" so results are reproducible.
package trending

import (
	"sort"
	"time"

	"github.com/ristiko/smilodon/domain"
)

const (
	MinWindowDays     = 1
	MaxWindowDays     = 30
	DefaultWindowDays = 7

	MaxLimit     = 50
	DefaultLimit = 10

	likeWeight       = 1
	commentWeight    = 2
	attendanceWeight = 3
)

// RankedEvent is an engagement candidate with its computed score.
type RankedEvent struct {
	domain.EventEngagement
	Score float64
}

// ClampWindow normalizes a requested window to [MinWindowDays,
// MaxWindowDays]. Zero and negative values mean "unspecified" and get the
// default.
func ClampWindow(days int) int {
	if days <= 0 {
		return DefaultWindowDays
	}
	if days < MinWindowDays {
		return MinWindowDays
	}
	if days > MaxWindowDays {
		return MaxWindowDays
	}
	return days
}

// ClampLimit caps a requested limit at MaxLimit. An explicit zero stays
// zero, an absent limit is the caller's job to default.
func ClampLimit(limit int) int {
	if limit < 0 {
		return 0
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}

// Cutoff returns the start of the scoring window.
func Cutoff(now time.Time, windowDays int) time.Time {
	return now.AddDate(0, 0, -ClampWindow(windowDays))
}

// Score computes the decayed engagement score of one candidate. Weighted
// counts fall off linearly with the age of the event start, reaching zero
// at the window edge. Events that have not started yet carry no decay.
func Score(candidate domain.EventEngagement, now time.Time, windowDays int) float64 {
	windowDays = ClampWindow(windowDays)

	raw := float64(likeWeight*candidate.Likes +
		commentWeight*candidate.Comments +
		attendanceWeight*candidate.Attendances)
	if raw == 0 {
		return 0
	}

	ageDays := now.Sub(candidate.Event.StartTime).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	decay := 1 - ageDays/float64(windowDays)
	if decay < 0 {
		decay = 0
	}
	return raw * decay
}

// Rank scores the candidates and returns the top entries ordered by score.
// Shares and events without any engagement inside the window are dropped.
// Ties break on higher like count, then earlier start time.
func Rank(candidates []domain.EventEngagement, now time.Time, windowDays int, limit int) []RankedEvent {
	windowDays = ClampWindow(windowDays)
	limit = ClampLimit(limit)
	if limit == 0 {
		return nil
	}

	ranked := make([]RankedEvent, 0, len(candidates))
	for _, candidate := range candidates {
		if candidate.Event.IsShare() {
			continue
		}
		if candidate.Likes == 0 && candidate.Comments == 0 && candidate.Attendances == 0 {
			continue
		}
		ranked = append(ranked, RankedEvent{
			EventEngagement: candidate,
			Score:           Score(candidate, now, windowDays),
		})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if ranked[i].Likes != ranked[j].Likes {
			return ranked[i].Likes > ranked[j].Likes
		}
		return ranked[i].Event.StartTime.Before(ranked[j].Event.StartTime)
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
