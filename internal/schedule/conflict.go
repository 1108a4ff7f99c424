package schedule

import (
	"time"

	"mentorbook-backend/internal/domain"
)

// Pad widens an interval by its buffer on both sides.
func Pad(i domain.Interval, b domain.Buffer) domain.Interval {
	return domain.Interval{
		Start: i.Start.Add(-time.Duration(b.BeforeMinutes) * time.Minute),
		End:   i.End.Add(time.Duration(b.AfterMinutes) * time.Minute),
	}
}

// Overlaps reports whether two intervals collide once each is padded with its
// own buffer. Touching endpoints do not overlap.
func Overlaps(a, b domain.Interval, aBuf, bBuf domain.Buffer) bool {
	pa := Pad(a, aBuf)
	pb := Pad(b, bBuf)
	return pa.Start.Before(pb.End) && pb.Start.Before(pa.End)
}

// FindConflicts returns the existing occurrences that collide with candidate.
// Closed occurrences never block. skipID excludes one occurrence, typically
// the one being rescheduled.
func FindConflicts(candidate domain.Interval, buf domain.Buffer, existing []domain.Occurrence, skipID string) []domain.Interval {
	var out []domain.Interval
	for i := range existing {
		occ := &existing[i]
		if occ.Status == domain.OccurrenceStatusClosed || (skipID != "" && occ.ID == skipID) {
			continue
		}
		if Overlaps(candidate, occ.Interval(), buf, occ.Buffer()) {
			out = append(out, occ.Interval())
		}
	}
	return out
}

// PartitionResult splits expanded candidates into those that can be
// materialized and those skipped because of a collision.
type PartitionResult struct {
	Accepted  []domain.Interval
	Skipped   int
	Conflicts []domain.Interval
}

// Partition checks each candidate against the existing occurrences and the
// candidates already accepted before it. Rejected candidates are counted and
// their collisions are collected.
func Partition(candidates []domain.Interval, buf domain.Buffer, existing []domain.Occurrence) PartitionResult {
	var res PartitionResult
	for _, c := range candidates {
		hits := FindConflicts(c, buf, existing, "")
		for _, acc := range res.Accepted {
			if Overlaps(c, acc, buf, buf) {
				hits = append(hits, acc)
			}
		}
		if len(hits) > 0 {
			res.Skipped++
			res.Conflicts = append(res.Conflicts, hits...)
			continue
		}
		res.Accepted = append(res.Accepted, c)
	}
	return res
}

// CheckPlacement applies the publish rule: a one-off interval must be free
// of collisions; a recurring set may skip collisions but must keep at least
// one candidate.
func CheckPlacement(candidates []domain.Interval, buf domain.Buffer, existing []domain.Occurrence, recurring bool) (PartitionResult, error) {
	res := Partition(candidates, buf, existing)
	if len(res.Conflicts) == 0 {
		return res, nil
	}
	if !recurring {
		return res, domain.NewConflictError("interval conflicts with existing availability", res.Conflicts)
	}
	if len(res.Accepted) == 0 {
		return res, domain.NewConflictError("every occurrence conflicts with existing availability", res.Conflicts)
	}
	return res, nil
}
