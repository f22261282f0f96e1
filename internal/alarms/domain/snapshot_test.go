package alarms

import (
	"testing"
	"time"
)

func TestSnapshotDigestOrderIndependent(t *testing.T) {
	now := time.Now()
	a := NewSnapshot([]ActiveAlarm{{ID: "a1", ItemID: "x"}, {ID: "a2", ItemID: "y"}, {ID: "a3", ItemID: "z"}}, now)
	b := NewSnapshot([]ActiveAlarm{{ID: "a3", ItemID: "z"}, {ID: "a1", ItemID: "x"}, {ID: "a2", ItemID: "y"}}, now)
	if a.Digest != b.Digest {
		t.Fatalf("expected equal digests for reordered sets, got %s vs %s", a.Digest, b.Digest)
	}
}

func TestSnapshotDigestChangesWithContent(t *testing.T) {
	now := time.Now()
	a := NewSnapshot([]ActiveAlarm{{ID: "a1"}, {ID: "a2"}}, now)
	b := NewSnapshot([]ActiveAlarm{{ID: "a1"}, {ID: "a3"}}, now)
	if a.Digest == b.Digest {
		t.Fatalf("expected different digests for different sets")
	}
}

func TestEmptySnapshotHasDigest(t *testing.T) {
	empty := NewSnapshot(nil, time.Now())
	if empty.Digest == "" {
		t.Fatalf("expected non-empty digest for empty set")
	}
	one := NewSnapshot([]ActiveAlarm{{ID: "a1"}}, time.Now())
	if empty.Digest == one.Digest {
		t.Fatalf("expected empty-set digest to differ from one-alarm digest")
	}
}

func TestCountForItems(t *testing.T) {
	snap := NewSnapshot([]ActiveAlarm{
		{ID: "a1", ItemID: "x"},
		{ID: "a2", ItemID: "y"},
		{ID: "a3", ItemID: "x"},
		{ID: "a4", ItemID: "q"},
	}, time.Now())

	permitted := map[string]struct{}{"x": {}, "y": {}}
	if got := snap.CountForItems(permitted); got != 3 {
		t.Fatalf("expected count 3, got %d", got)
	}
	if got := snap.CountForItems(map[string]struct{}{}); got != 0 {
		t.Fatalf("expected count 0 for empty permission set, got %d", got)
	}
	if got := snap.CountForItems(map[string]struct{}{"absent": {}}); got != 0 {
		t.Fatalf("expected count 0 for disjoint permission set, got %d", got)
	}
}

func TestFilterByItemsPreservesOrder(t *testing.T) {
	snap := NewSnapshot([]ActiveAlarm{
		{ID: "a1", ItemID: "x"},
		{ID: "a2", ItemID: "y"},
		{ID: "a3", ItemID: "x"},
	}, time.Now())

	got := snap.FilterByItems(map[string]struct{}{"x": {}})
	if len(got) != 2 {
		t.Fatalf("expected 2 alarms, got %d", len(got))
	}
	if got[0].ID != "a1" || got[1].ID != "a3" {
		t.Fatalf("expected a1,a3 in order, got %s,%s", got[0].ID, got[1].ID)
	}
}

func TestNewSnapshotCopiesInput(t *testing.T) {
	src := []ActiveAlarm{{ID: "a1", ItemID: "x"}}
	snap := NewSnapshot(src, time.Now())
	src[0].ID = "mutated"
	if snap.Alarms[0].ID != "a1" {
		t.Fatalf("expected snapshot to be isolated from caller slice, got %s", snap.Alarms[0].ID)
	}
}
