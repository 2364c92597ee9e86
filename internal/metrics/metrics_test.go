package metrics

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCounterAndGauge(t *testing.T) {
	r := NewRegistry("test")
	c := r.Counter("events_total", "Events", nil)
	c.Inc()
	c.Add(4)
	if c.Value() != 5 {
		t.Errorf("counter = %d, want 5", c.Value())
	}

	if again := r.Counter("events_total", "Events", nil); again != c {
		t.Error("registering the same name twice should return the existing counter")
	}

	g := r.Gauge("sessions", "Sessions", nil)
	g.Set(10)
	g.Add(-3)
	if g.Value() != 7 {
		t.Errorf("gauge = %d, want 7", g.Value())
	}
}

func TestHistogramBuckets(t *testing.T) {
	r := NewRegistry("")
	h := r.Histogram("latency_seconds", "Latency", Labels{"op": "sync"}, []float64{0.1, 1})
	h.Observe(0.05)
	h.Observe(0.1)
	h.Observe(0.5)
	h.ObserveDuration(2 * time.Second)

	if h.Count() != 4 {
		t.Fatalf("count = %d, want 4", h.Count())
	}

	var buf bytes.Buffer
	if err := r.WritePrometheus(&buf); err != nil {
		t.Fatalf("WritePrometheus: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		`latency_seconds_bucket{op="sync",le="0.1"} 2`,
		`latency_seconds_bucket{op="sync",le="1"} 3`,
		`latency_seconds_bucket{op="sync",le="+Inf"} 4`,
		`latency_seconds_count{op="sync"} 4`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestHandler(t *testing.T) {
	set := NewSet(NewRegistry("meetingd"))
	set.SyncsTotal.Inc()
	set.CacheHits.Add(3)

	rec := httptest.NewRecorder()
	set.Registry().Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	if !strings.Contains(body, "meetingd_syncs_total 1") {
		t.Errorf("missing syncs_total:\n%s", body)
	}
	if !strings.Contains(body, "meetingd_cache_hits_total 3") {
		t.Errorf("missing cache_hits_total:\n%s", body)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("content type = %q", ct)
	}
}
