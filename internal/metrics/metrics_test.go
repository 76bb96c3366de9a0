package metrics

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestCounter(t *testing.T) {
	c := NewCounter("test_counter", "help", nil)
	c.Inc()
	c.Add(4)
	if c.Value() != 5 {
		t.Errorf("expected 5, got %d", c.Value())
	}
	if c.Name() != "test_counter" {
		t.Errorf("unexpected name %q", c.Name())
	}
}

func TestCounterConcurrent(t *testing.T) {
	c := NewCounter("concurrent", "help", nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Inc()
			}
		}()
	}
	wg.Wait()
	if c.Value() != 5000 {
		t.Errorf("expected 5000, got %d", c.Value())
	}
}

func TestGauge(t *testing.T) {
	g := NewGauge("test_gauge", "help", nil)
	g.Set(10)
	g.Inc()
	g.Dec()
	g.Dec()
	if g.Value() != 9 {
		t.Errorf("expected 9, got %d", g.Value())
	}
}

func TestHistogram(t *testing.T) {
	h := NewHistogram("test_hist", "help", nil, []float64{10, 1, 5})
	for _, v := range []float64{0.5, 1, 3, 7, 20} {
		h.Observe(v)
	}

	if h.Count() != 5 {
		t.Errorf("expected count 5, got %d", h.Count())
	}
	if got := h.Mean(); got != 6.3 {
		t.Errorf("expected mean 6.3, got %v", got)
	}

	h.mu.Lock()
	cum := h.cumulative()
	h.mu.Unlock()
	want := []uint64{2, 3, 4, 5}
	for i := range want {
		if cum[i] != want[i] {
			t.Errorf("bucket %d: expected %d, got %d", i, want[i], cum[i])
		}
	}
}

func TestHistogramPercentile(t *testing.T) {
	h := NewHistogram("p", "help", nil, []float64{1, 2, 3, 4})
	if h.Percentile(50) != 0 {
		t.Error("empty histogram should report 0")
	}
	for _, v := range []float64{0.5, 1.5, 2.5, 3.5} {
		h.Observe(v)
	}
	if got := h.Percentile(50); got != 2 {
		t.Errorf("expected p50 2, got %v", got)
	}
	if got := h.Percentile(100); got != 4 {
		t.Errorf("expected p100 4, got %v", got)
	}
}

func TestHistogramTimer(t *testing.T) {
	h := NewHistogram("timer", "help", nil, nil)
	d := h.Timer().Stop()
	if d < 0 {
		t.Errorf("negative duration %v", d)
	}
	if h.Count() != 1 {
		t.Errorf("expected 1 observation, got %d", h.Count())
	}
}

func TestRegistryNames(t *testing.T) {
	r := NewRegistry("tetmeter", "eval")
	c := r.RegisterCounter("trials_total", "help", nil)
	if c.Name() != "tetmeter_eval_trials_total" {
		t.Errorf("unexpected name %q", c.Name())
	}
	if again := r.RegisterCounter("trials_total", "help", nil); again != c {
		t.Error("re-registering should return the existing counter")
	}
}

func TestWritePrometheus(t *testing.T) {
	r := NewRegistry("tetmeter", "")
	r.RegisterCounter("b_total", "B things", Labels{"method": "qwerty"}).Add(2)
	r.RegisterCounter("a_total", "A things", nil).Inc()
	r.RegisterGauge("in_flight", "In flight", nil).Set(3)
	r.RegisterHistogram("tp", "Throughput", nil, []float64{1, 10}).Observe(5)

	var buf bytes.Buffer
	if err := r.WritePrometheus(&buf); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	for _, want := range []string{
		"# TYPE tetmeter_a_total counter\ntetmeter_a_total 1\n",
		`tetmeter_b_total{method="qwerty"} 2`,
		"# TYPE tetmeter_in_flight gauge\ntetmeter_in_flight 3\n",
		`tetmeter_tp_bucket{le="1"} 0`,
		`tetmeter_tp_bucket{le="10"} 1`,
		`tetmeter_tp_bucket{le="+Inf"} 1`,
		"tetmeter_tp_sum 5\n",
		"tetmeter_tp_count 1\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Index(out, "tetmeter_a_total") > strings.Index(out, "tetmeter_b_total") {
		t.Error("counters should be sorted by name")
	}
}

func TestHTTPHandler(t *testing.T) {
	r := NewRegistry("tetmeter", "")
	r.RegisterCounter("trials_total", "help", nil).Add(7)
	handler := r.HTTPHandler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain") {
		t.Errorf("unexpected content type %q", rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Body.String(), "tetmeter_trials_total 7") {
		t.Errorf("unexpected body %q", rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Accept", "application/json")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var snapshot map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &snapshot); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if snapshot["tetmeter_trials_total"] != float64(7) {
		t.Errorf("unexpected snapshot %v", snapshot)
	}
}

func TestEvaluationMetrics(t *testing.T) {
	m := NewEvaluationMetrics(NewRegistry("tetmeter", ""))

	done := m.StartTrial()
	if m.InFlight.Value() != 1 {
		t.Errorf("expected 1 in flight, got %d", m.InFlight.Value())
	}
	done(true, 12.5)
	m.StartTrial()(false, 0)
	m.RecordSession(time.Millisecond)

	if m.InFlight.Value() != 0 {
		t.Errorf("expected 0 in flight, got %d", m.InFlight.Value())
	}
	if m.TrialsTotal.Value() != 2 || m.UndefinedTotal.Value() != 1 {
		t.Errorf("unexpected totals %d/%d", m.TrialsTotal.Value(), m.UndefinedTotal.Value())
	}
	if m.Throughput.Count() != 1 || m.Throughput.Mean() != 12.5 {
		t.Errorf("unexpected throughput histogram count=%d mean=%v", m.Throughput.Count(), m.Throughput.Mean())
	}
	if m.SessionsTotal.Value() != 1 || m.Registry() == nil {
		t.Error("session not recorded")
	}
}

func TestDefaultRegistry(t *testing.T) {
	if Default() != Default() {
		t.Error("Default should return the same registry")
	}
	prev := Default()
	defer SetDefault(prev)

	r := NewRegistry("custom", "")
	SetDefault(r)
	if Default() != r {
		t.Error("SetDefault did not replace the registry")
	}
}
