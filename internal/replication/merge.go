package replication

import (
	"sort"

	"github.com/mrlokans/librarysync/internal/entities"
)

// MergeStatistics reconciles stored and incoming statistics. Replace returns
// incoming; merge returns the union keyed by title and date where the row with
// the later modification time wins, incoming on ties.
func MergeStatistics(stored, incoming []entities.Statistic, mode MergeMode) []entities.Statistic {
	if mode != MergeMerge {
		return incoming
	}
	return mergeBy(stored, incoming,
		func(s entities.Statistic) string { return s.Title + "\x00" + s.DateKey },
		func(s entities.Statistic) int64 { return s.LastStatisticModified },
	)
}

// MergeReadingGoals is MergeStatistics for reading goals, keyed by start date.
func MergeReadingGoals(stored, incoming []entities.ReadingGoal, mode MergeMode) []entities.ReadingGoal {
	if mode != MergeMerge {
		return incoming
	}
	return mergeBy(stored, incoming,
		func(g entities.ReadingGoal) string { return g.GoalStartDate },
		func(g entities.ReadingGoal) int64 { return g.LastGoalModified },
	)
}

func mergeBy[T any](stored, incoming []T, key func(T) string, modified func(T) int64) []T {
	byKey := make(map[string]T, len(stored)+len(incoming))
	for _, row := range stored {
		byKey[key(row)] = row
	}
	for _, row := range incoming {
		if existing, ok := byKey[key(row)]; ok && modified(existing) > modified(row) {
			continue
		}
		byKey[key(row)] = row
	}

	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	merged := make([]T, 0, len(keys))
	for _, k := range keys {
		merged = append(merged, byKey[k])
	}
	return merged
}

// LatestModified returns the largest of the given timestamps.
func LatestModified(values ...int64) int64 {
	var latest int64
	for _, v := range values {
		latest = max(latest, v)
	}
	return latest
}
