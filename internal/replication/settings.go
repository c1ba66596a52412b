package replication

import (
	"fmt"
	"strings"
)

// MergeMode is how statistics or reading goals are reconciled on save.
type MergeMode string

const (
	MergeReplace MergeMode = "replace"
	MergeMerge   MergeMode = "merge"
)

// ParseMergeMode accepts "replace" or "merge", case-insensitively.
func ParseMergeMode(s string) (MergeMode, error) {
	switch m := MergeMode(strings.ToLower(strings.TrimSpace(s))); m {
	case MergeReplace, MergeMerge:
		return m, nil
	}
	return "", fmt.Errorf("unknown merge mode %q", s)
}

// SaveBehavior controls whether older data may overwrite newer stored data.
type SaveBehavior string

const (
	// SaveNewOnly skips a save when the stored copy is at least as recent.
	SaveNewOnly SaveBehavior = "newOnly"
	// SaveOverwrite always writes.
	SaveOverwrite SaveBehavior = "overwrite"
)

// ParseSaveBehavior accepts "newOnly" or "overwrite", case-insensitively.
func ParseSaveBehavior(s string) (SaveBehavior, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "newonly", "new_only":
		return SaveNewOnly, nil
	case "overwrite":
		return SaveOverwrite, nil
	}
	return "", fmt.Errorf("unknown save behavior %q", s)
}

// Settings are the runtime parameters of a handler.
type Settings struct {
	SourceName            string
	SaveBehavior          SaveBehavior
	StatisticsMergeMode   MergeMode
	ReadingGoalsMergeMode MergeMode
	CacheStorageData      bool
	AskForStorageUnlock   bool
}

// DefaultSettings returns settings that merge and only write newer data.
func DefaultSettings() Settings {
	return Settings{
		SaveBehavior:          SaveNewOnly,
		StatisticsMergeMode:   MergeMerge,
		ReadingGoalsMergeMode: MergeMerge,
		AskForStorageUnlock:   true,
	}
}
