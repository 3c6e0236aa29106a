package slack

import (
	"sync"
	"testing"
	"time"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestFingerprintSource_Deterministic(t *testing.T) {
	at := time.Date(2024, 12, 11, 10, 30, 0, 0, time.UTC)

	a := NewFingerprintSource("csid-1", "T123").WithClock(fixedClock(at)).WithSeed(42).Next()
	b := NewFingerprintSource("csid-1", "T123").WithClock(fixedClock(at)).WithSeed(42).Next()

	if a != b {
		t.Errorf("fingerprints differ under fixed clock and seed: %+v vs %+v", a, b)
	}
	if a.SessionID != "csid-1" {
		t.Errorf("SessionID = %q, want csid-1", a.SessionID)
	}
	if a.VersionTs != "1733913000" {
		t.Errorf("VersionTs = %q, want unix second of fixed clock", a.VersionTs)
	}
}

func TestFingerprintSource_NoCollisions(t *testing.T) {
	src := NewFingerprintSource("csid-1", "T123")

	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		fp := src.Next()
		if seen[fp.RequestID] {
			t.Fatalf("request id %q minted twice", fp.RequestID)
		}
		seen[fp.RequestID] = true
	}
}

func TestFingerprintSource_ConcurrentNext(t *testing.T) {
	src := NewFingerprintSource("csid-1", "T123")

	const goroutines = 8
	const perGoroutine = 200

	ids := make(chan string, goroutines*perGoroutine)
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func() {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				ids <- src.Next().RequestID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		if seen[id] {
			t.Fatalf("request id %q minted twice", id)
		}
		seen[id] = true
	}
}

func TestFingerprint_Query(t *testing.T) {
	fp := Fingerprint{
		RequestID: "abc-123.4",
		SessionID: "csid-1",
		Route:     "T123",
		VersionTs: "1733913000",
	}

	q := fp.Query()
	for key, want := range map[string]string{
		"_x_id":                  "abc-123.4",
		"_x_csid":                "csid-1",
		"slack_route":            "T123",
		"_x_version_ts":          "1733913000",
		"_x_frontend_build_type": "current",
		"_x_desktop_ia":          "4",
		"_x_gantry":              "true",
		"fp":                     "15",
		"_x_num_retries":         "0",
	} {
		if got := q.Get(key); got != want {
			t.Errorf("query[%s] = %q, want %q", key, got, want)
		}
	}
}
