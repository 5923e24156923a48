package lookup

import (
	"testing"
	"time"
)

func TestBuildIndexRowNumbering(t *testing.T) {
	ix := BuildIndex([]string{"111", "", "0222", "abc"}, time.Now())
	if ix.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", ix.Len())
	}
	if row, ok := ix.Lookup("111"); !ok || row != 2 {
		t.Fatalf("Lookup(111) = %d, %v; want 2, true", row, ok)
	}
	// "0222" normalizes to "222" and sits two cells down, so row 4.
	if row, ok := ix.Lookup("222"); !ok || row != 4 {
		t.Fatalf("Lookup(222) = %d, %v; want 4, true", row, ok)
	}
}

func TestBuildIndexDuplicateLastWins(t *testing.T) {
	ix := BuildIndex([]string{"555", "555"}, time.Now())
	if row, _ := ix.Lookup("555"); row != 3 {
		t.Fatalf("Lookup(555) = %d, want 3", row)
	}
}

func TestSuffixMatch(t *testing.T) {
	ix := BuildIndex([]string{"79161234567", "1234567", "89991234567"}, time.Now())

	// Unique longer key ending in the query.
	if row, ok := ix.SuffixMatch("9161234567"); !ok || row != 2 {
		t.Fatalf("SuffixMatch(9161234567) = %d, %v; want 2, true", row, ok)
	}
	// Two stored keys of equal length end in "1234567": ambiguous.
	if _, ok := ix.SuffixMatch("234567"); ok {
		t.Fatal("SuffixMatch(234567) matched, want ambiguous miss")
	}
	// Exact-length keys are not suffix matches of themselves.
	if _, ok := ix.SuffixMatch("79161234567"); ok {
		t.Fatal("SuffixMatch of full key matched, want miss")
	}
	if _, ok := ix.SuffixMatch(""); ok {
		t.Fatal("SuffixMatch of empty key matched, want miss")
	}
}

func TestSuffixMatchLongestWins(t *testing.T) {
	ix := BuildIndex([]string{"91234", "791234"}, time.Now())
	if row, ok := ix.SuffixMatch("1234"); !ok || row != 3 {
		t.Fatalf("SuffixMatch(1234) = %d, %v; want 3 (longest stored key), true", row, ok)
	}
}

func TestIndexStale(t *testing.T) {
	builtAt := time.Now()
	ix := BuildIndex(nil, builtAt)
	if ix.Stale(time.Minute, builtAt.Add(30*time.Second)) {
		t.Fatal("index stale before ttl elapsed")
	}
	if !ix.Stale(time.Minute, builtAt.Add(2*time.Minute)) {
		t.Fatal("index not stale after ttl elapsed")
	}
}

func TestEntriesReturnsCopy(t *testing.T) {
	ix := BuildIndex([]string{"111"}, time.Now())
	entries := ix.Entries()
	entries["999"] = 7
	if _, ok := ix.Lookup("999"); ok {
		t.Fatal("mutating Entries() copy leaked into the index")
	}
}
