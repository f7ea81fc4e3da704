package cache

import "time"

// Policy selects the single entry to evict when the store is at capacity.
//
// Victim is a pure function of the snapshot it is given: entries arrive in
// insertion order and ties go to the first candidate encountered, so a policy
// is deterministic and testable without depending on timing or map iteration.
type Policy interface {
	Name() string
	Victim(entries []EntryInfo, now time.Time) (key string, ok bool)
}

// LRU evicts the entry whose last access is the oldest.
type LRU struct{}

func (LRU) Name() string { return "lru" }

func (LRU) Victim(entries []EntryInfo, _ time.Time) (string, bool) {
	if len(entries) == 0 {
		return "", false
	}
	victim := entries[0]
	for _, e := range entries[1:] {
		if e.LastAccessedAt.Before(victim.LastAccessedAt) {
			victim = e
		}
	}
	return victim.Key, true
}

// LFU evicts the entry with the lowest access count.
type LFU struct{}

func (LFU) Name() string { return "lfu" }

func (LFU) Victim(entries []EntryInfo, _ time.Time) (string, bool) {
	if len(entries) == 0 {
		return "", false
	}
	victim := entries[0]
	for _, e := range entries[1:] {
		if e.AccessCount < victim.AccessCount {
			victim = e
		}
	}
	return victim.Key, true
}

// Adaptive blends access frequency with staleness so a once-popular but now
// cold entry is reclaimed ahead of a less popular, freshly used one. The entry
// with the lowest score is evicted:
//
//	score = FrequencyWeight*accessCount - StalenessWeight*msSinceLastAccess
type Adaptive struct {
	// FrequencyWeight and StalenessWeight default to 0.7 and 0.3 when both
	// are left zero.
	FrequencyWeight float64
	StalenessWeight float64
}

func (Adaptive) Name() string { return "adaptive" }

func (a Adaptive) Victim(entries []EntryInfo, now time.Time) (string, bool) {
	if len(entries) == 0 {
		return "", false
	}
	fw, sw := a.FrequencyWeight, a.StalenessWeight
	if fw == 0 && sw == 0 {
		fw, sw = 0.7, 0.3
	}
	score := func(e EntryInfo) float64 {
		staleness := float64(now.Sub(e.LastAccessedAt).Milliseconds())
		return fw*float64(e.AccessCount) - sw*staleness
	}
	victim := entries[0]
	lowest := score(victim)
	for _, e := range entries[1:] {
		if s := score(e); s < lowest {
			victim, lowest = e, s
		}
	}
	return victim.Key, true
}
