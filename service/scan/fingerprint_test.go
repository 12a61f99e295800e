package scan

import (
	"testing"
	"time"
)

func TestFingerprintPrefersContentHash(t *testing.T) {
	meta := FileMetadata{
		ContentHash: "abc123",
		Revision:    "7",
		Size:        100,
		ModifiedAt:  time.Unix(1700000000, 0),
	}

	if got := Fingerprint(meta); got != "hash:abc123" {
		t.Fatalf("unexpected fingerprint: %s", got)
	}
}

func TestFingerprintFallsBackToRevision(t *testing.T) {
	meta := FileMetadata{
		Revision:   "7",
		Size:       100,
		ModifiedAt: time.Unix(1700000000, 0),
	}

	if got := Fingerprint(meta); got != "rev:7" {
		t.Fatalf("unexpected fingerprint: %s", got)
	}
}

func TestFingerprintFallsBackToSizeAndMtime(t *testing.T) {
	meta := FileMetadata{
		Size:       100,
		ModifiedAt: time.Unix(1700000000, 0),
	}

	if got := Fingerprint(meta); got != "meta:100:1700000000" {
		t.Fatalf("unexpected fingerprint: %s", got)
	}
}

func TestFingerprintChangesWithContent(t *testing.T) {
	a := FileMetadata{ContentHash: "aaa"}
	b := FileMetadata{ContentHash: "bbb"}

	if Fingerprint(a) == Fingerprint(b) {
		t.Fatal("different content hashes must produce different fingerprints")
	}
}
