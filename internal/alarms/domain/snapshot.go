package alarms

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"
)

// Snapshot is an immutable view of the active alarm set at one poll.
// Digest identifies the set's content regardless of source ordering, so
// two fetches of the same alarms always compare equal.
type Snapshot struct {
	Alarms  []ActiveAlarm
	TakenAt time.Time
	Digest  string
}

// NewSnapshot builds a snapshot over alarms as of takenAt. The slice is
// copied; callers may reuse their backing array.
func NewSnapshot(list []ActiveAlarm, takenAt time.Time) Snapshot {
	alarms := make([]ActiveAlarm, len(list))
	copy(alarms, list)
	return Snapshot{
		Alarms:  alarms,
		TakenAt: takenAt.UTC(),
		Digest:  digestOf(alarms),
	}
}

// digestOf hashes the sorted alarm identifiers. The empty set has a
// well-defined digest distinct from "never polled".
func digestOf(list []ActiveAlarm) string {
	ids := make([]string, 0, len(list))
	for _, a := range list {
		ids = append(ids, a.ID)
	}
	sort.Strings(ids)
	sum := sha256.Sum256([]byte(strings.Join(ids, "|")))
	return hex.EncodeToString(sum[:])
}

// CountForItems returns how many alarms sit on a permitted item.
func (s Snapshot) CountForItems(permitted map[string]struct{}) int {
	n := 0
	for _, a := range s.Alarms {
		if _, ok := permitted[a.ItemID]; ok {
			n++
		}
	}
	return n
}

// FilterByItems returns the alarms on permitted items, preserving order.
func (s Snapshot) FilterByItems(permitted map[string]struct{}) []ActiveAlarm {
	out := make([]ActiveAlarm, 0, len(s.Alarms))
	for _, a := range s.Alarms {
		if _, ok := permitted[a.ItemID]; ok {
			out = append(out, a)
		}
	}
	return out
}
