package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://ufcstats.com/statistics/events/completed", "ufcstats.com"},
		{"standard https", "https://UFCStats.com/path", "ufcstats.com"},
		{"no scheme", "ufcstats.com/path", "ufcstats.com"},
		{"host with port", "127.0.0.1:8080", "127.0.0.1"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	first := crawlPagesTotal
	Init()
	if crawlPagesTotal == nil || crawlPagesTotal != first {
		t.Fatal("Init() must create collectors exactly once")
	}
}

func TestObserveSaveLabels(t *testing.T) {
	Init()
	ok := datasetSavesTotal.WithLabelValues("events", "direct", "ok")
	failed := datasetSavesTotal.WithLabelValues("events", "progress", "error")
	okBefore, failedBefore := testutil.ToFloat64(ok), testutil.ToFloat64(failed)

	ObserveSave("events", true, nil)
	ObserveSave("events", false, errors.New("disk full"))

	if got := testutil.ToFloat64(ok) - okBefore; got != 1 {
		t.Errorf("direct ok saves = %f, want 1", got)
	}
	if got := testutil.ToFloat64(failed) - failedBefore; got != 1 {
		t.Errorf("progress error saves = %f, want 1", got)
	}
}

func TestObserveRecordsIgnoresEmpty(t *testing.T) {
	Init()
	c := crawlRecordsTotal.WithLabelValues("fighters")
	before := testutil.ToFloat64(c)

	ObserveRecords("fighters", 0)
	ObserveRecords("fighters", 3)

	if got := testutil.ToFloat64(c) - before; got != 3 {
		t.Errorf("records = %f, want 3", got)
	}
}

func TestObserveFetchWithoutStatus(t *testing.T) {
	Init()
	c := fetchesTotal.WithLabelValues("ufcstats.com", "error")
	before := testutil.ToFloat64(c)

	ObserveFetch("http://ufcstats.com/event-details/x", 0)

	if got := testutil.ToFloat64(c) - before; got != 1 {
		t.Errorf("error fetches = %f, want 1", got)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://ufcstats.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
