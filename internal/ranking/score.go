// Package ranking computes trending scores, maintains the star-snapshot
// history, and regenerates the pre-computed discovery lists.
package ranking

import (
	"math"
	"time"

	"github.com/skilldex-dev/skilldex/internal/registry/model"
)

// MaxSnapshots is the hard cap on retained star observations per skill.
const MaxSnapshots = 20

const snapshotDate = "2006-01-02"

// Score computes the trending score for one skill. Snapshots must be ordered
// ascending by date. The function is pure: equal inputs yield equal scores.
func Score(now time.Time, stars int, snapshots []model.StarSnapshot, indexedAt time.Time, lastCommitAt *time.Time) float64 {
	baseScore := math.Log10(float64(stars)+1) * 10

	stars7d := starsAt(snapshots, now.AddDate(0, 0, -7), stars)
	stars30d := starsAt(snapshots, now.AddDate(0, 0, -30), stars)

	daily7 := math.Max(0, float64(stars-stars7d)/7)
	daily30 := math.Max(0, float64(stars-stars30d)/30)

	var acceleration float64
	switch {
	case daily30 > 0.1:
		acceleration = daily7 / daily30
	case daily7 > 0:
		acceleration = 2
	default:
		acceleration = 1
	}

	velocity := 1.0 + math.Log2(daily7+1)*math.Min(acceleration, 3)*0.4
	velocity = clamp(velocity, 1.0, 5.0)

	daysSinceIndexed := now.Sub(indexedAt).Hours() / 24
	recency := math.Max(1.0, 1.5-daysSinceIndexed/14)

	activity := 1.0
	if lastCommitAt != nil {
		daysSinceCommit := now.Sub(*lastCommitAt).Hours() / 24
		switch {
		case daysSinceCommit <= 30:
			activity = 1.0
		case daysSinceCommit <= 90:
			activity = 0.9
		case daysSinceCommit <= 180:
			activity = 0.7
		case daysSinceCommit <= 365:
			activity = 0.5
		default:
			activity = 0.3
		}
	}

	return math.Round(baseScore*velocity*recency*activity*100) / 100
}

// starsAt returns the snapshot value in effect at the given instant: the last
// observation dated at or before it. With no usable history the current star
// count stands in, which zeroes the derived growth rate.
func starsAt(snapshots []model.StarSnapshot, at time.Time, fallback int) int {
	if len(snapshots) == 0 {
		return fallback
	}
	cutoff := at.UTC().Format(snapshotDate)
	value := -1
	for _, snap := range snapshots {
		if snap.D > cutoff {
			break
		}
		value = snap.S
	}
	if value < 0 {
		// All observations are newer than the cutoff; the earliest is the
		// best available estimate.
		return snapshots[0].S
	}
	return value
}

// AppendSnapshot records today's star count if it differs from the latest
// observation, then compresses the series.
func AppendSnapshot(now time.Time, snapshots []model.StarSnapshot, stars int) []model.StarSnapshot {
	today := now.UTC().Format(snapshotDate)
	if n := len(snapshots); n > 0 {
		last := snapshots[n-1]
		if last.S == stars {
			return Compress(now, snapshots)
		}
		if last.D == today {
			snapshots[n-1].S = stars
			return Compress(now, snapshots)
		}
	}
	return Compress(now, append(snapshots, model.StarSnapshot{D: today, S: stars}))
}

// Compress reduces a snapshot series to at most MaxSnapshots points. Kept, as
// a union: the first and last points, anything within the last 7 days, Sundays
// within the last 8 weeks, first-of-month points older than that, and any
// point whose star delta against the previously kept point exceeds 10%. If the
// union still exceeds the cap, the most recent MaxSnapshots survive.
func Compress(now time.Time, snapshots []model.StarSnapshot) []model.StarSnapshot {
	if len(snapshots) <= MaxSnapshots {
		return snapshots
	}

	weekAgo := now.AddDate(0, 0, -7).UTC().Format(snapshotDate)
	eightWeeksAgo := now.AddDate(0, 0, -56).UTC().Format(snapshotDate)

	kept := make([]model.StarSnapshot, 0, len(snapshots))
	prevKept := -1
	for i, snap := range snapshots {
		keep := i == 0 || i == len(snapshots)-1
		if !keep && snap.D >= weekAgo {
			keep = true
		}
		if !keep && snap.D >= eightWeeksAgo && isSunday(snap.D) {
			keep = true
		}
		if !keep && snap.D < eightWeeksAgo && isFirstOfMonth(snap.D) {
			keep = true
		}
		if !keep && prevKept >= 0 {
			base := snapshots[prevKept].S
			if base == 0 {
				keep = snap.S != 0
			} else if math.Abs(float64(snap.S-base))/float64(base) > 0.10 {
				keep = true
			}
		}
		if keep {
			kept = append(kept, snap)
			prevKept = i
		}
	}

	if len(kept) > MaxSnapshots {
		kept = kept[len(kept)-MaxSnapshots:]
	}
	return kept
}

func isSunday(date string) bool {
	t, err := time.Parse(snapshotDate, date)
	return err == nil && t.Weekday() == time.Sunday
}

func isFirstOfMonth(date string) bool {
	t, err := time.Parse(snapshotDate, date)
	return err == nil && t.Day() == 1
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
