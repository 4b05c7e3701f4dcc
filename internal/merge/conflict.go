// Package merge implements the staging-store merger (§4.6): conflict
// detection across overlapping exports, deduplication, and canonical
// export.
package merge

import (
	"regexp"

	"github.com/chatlab/chatlab-core/internal/coreerr"
)

// pureImagePattern matches a content string that is nothing but an image
// placeholder, auto-deduplicated even when byte-for-byte different across
// sources (§4.6 step 3).
var pureImagePattern = regexp.MustCompile(`^\[图片:\s*.+\]$`)

// stagedMessage is one row read back out of a staging store for conflict
// analysis and merge (§4.6).
type stagedMessage struct {
	SourceIndex int
	Timestamp   int64
	SenderID    string
	Content     string
	Account     string
	Nickname    string
	Type        int
}

// Conflict is one unresolved cross-source content disagreement at the same
// (timestamp, sender) (§4.6 step 3, scenario 4 in §8).
type Conflict struct {
	Timestamp     int64
	SenderID      string
	Variants      []ConflictVariant
}

// ConflictVariant is one of the differing contents at a conflict key, with
// the source index it came from so a caller can resolve by picking one.
type ConflictVariant struct {
	SourceIndex   int
	Content       string
	ContentLength int
}

// ConflictReport is CheckConflicts's result (§4.6 step 3).
type ConflictReport struct {
	Conflicts        []Conflict
	AutoDeduped      int
	PostDedupedCount int
}

// CheckConflicts buckets every staged message by exact timestamp, then by
// sender platform id, then by exact content, and reports one Conflict per
// (timestamp, sender) bucket that has >= 2 distinct contents originating
// from >= 2 sources — unless every variant at that bucket matches the
// pure-image pattern, in which case it's auto-deduplicated instead.
func CheckConflicts(messages []stagedMessage, platformsSeen map[string]bool) (ConflictReport, error) {
	if len(platformsSeen) > 1 {
		return ConflictReport{}, coreerr.New(coreerr.CodeMixedPlatforms, "sources report more than one platform")
	}

	type key struct {
		ts     int64
		sender string
	}
	buckets := make(map[key][]stagedMessage)
	for _, m := range messages {
		k := key{ts: m.Timestamp, sender: m.SenderID}
		buckets[k] = append(buckets[k], m)
	}

	var report ConflictReport
	deduped := 0
	for _, bucket := range buckets {
		sourceSet := map[int]bool{}
		for _, m := range bucket {
			sourceSet[m.SourceIndex] = true
		}
		if len(sourceSet) < 2 {
			deduped += len(bucket)
			continue
		}

		byContent := make(map[string][]stagedMessage)
		for _, m := range bucket {
			byContent[m.Content] = append(byContent[m.Content], m)
		}

		if len(byContent) == 1 {
			// Single content variant across >= 2 sources: the extras are
			// auto-deduplicated copies, not a conflict (§4.6 step 3).
			report.AutoDeduped += len(bucket) - 1
			deduped++
			continue
		}

		allImages := true
		for content := range byContent {
			if !pureImagePattern.MatchString(content) {
				allImages = false
				break
			}
		}
		if allImages {
			report.AutoDeduped += len(bucket) - 1
			deduped++
			continue
		}

		var variants []ConflictVariant
		for content, ms := range byContent {
			variants = append(variants, ConflictVariant{
				SourceIndex:   ms[0].SourceIndex,
				Content:       content,
				ContentLength: len(content),
			})
		}
		report.Conflicts = append(report.Conflicts, Conflict{
			Timestamp: bucket[0].Timestamp,
			SenderID:  bucket[0].SenderID,
			Variants:  variants,
		})
		deduped++
	}
	report.PostDedupedCount = deduped
	return report, nil
}
