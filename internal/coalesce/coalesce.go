// Package coalesce merges adjacent, compatible speech fragments into fewer,
// larger ones before they reach the sequencer. Interim fragments never merge:
// their content is still mutable upstream, so the coalesced stream carries
// only finalized text.
package coalesce

import (
	"sort"

	"github.com/verbatimhq/verbatim/internal/transcript"
)

// Merge coalesces adjacent same-speaker, same-language, non-interim fragments
// whose gap is within windowMs. Pure, deterministic, order-preserving: input
// is sorted by StartMs and relative order of retained fragments is kept.
func Merge(events []transcript.Event, windowMs int64) []transcript.Event {
	if len(events) == 0 {
		return nil
	}
	sorted := make([]transcript.Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].StartMs < sorted[j].StartMs })

	out := make([]transcript.Event, 0, len(sorted))
	current := sorted[0]
	for _, next := range sorted[1:] {
		if mergeable(current, next, windowMs) {
			current = merge(current, next)
			continue
		}
		out = append(out, current)
		current = next
	}
	return append(out, current)
}

// SortByStart returns a copy of events sorted by StartMs, so natural
// arrival order maps to sequence order even when coalescing is disabled.
func SortByStart(events []transcript.Event) []transcript.Event {
	sorted := make([]transcript.Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].StartMs < sorted[j].StartMs })
	return sorted
}

func mergeable(cur, next transcript.Event, windowMs int64) bool {
	if cur.Interim || next.Interim {
		return false
	}
	if cur.SpeakerID != next.SpeakerID || cur.Language != next.Language {
		return false
	}
	return next.StartMs-cur.EndMs <= windowMs
}

func merge(cur, next transcript.Event) transcript.Event {
	cur.Text = cur.Text + " " + next.Text
	cur.EndMs = next.EndMs
	cur.Confidence = (cur.Confidence + next.Confidence) / 2
	return cur
}

// Strategy is the pluggable fragment-merge strategy for the batch
// processor's coalescing variant.
type Strategy struct {
	WindowMs int64
}

// ShouldCoalesce reports whether a queued fragment can absorb the new one.
func (s Strategy) ShouldCoalesce(queued, next transcript.Event) bool {
	return mergeable(queued, next, s.WindowMs)
}

// Coalesce merges next into queued.
func (s Strategy) Coalesce(queued, next transcript.Event) transcript.Event {
	return merge(queued, next)
}
