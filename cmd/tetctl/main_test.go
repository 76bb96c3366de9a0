package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"tetmeter/internal/codec"
	"tetmeter/internal/config"
	"tetmeter/internal/health"
	"tetmeter/internal/metrics"
	"tetmeter/internal/store"
	"tetmeter/internal/tet"
	"tetmeter/internal/trial"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Storage.Path = filepath.Join(t.TempDir(), "tetmeter.db")
	return cfg
}

func TestResolveDistribution(t *testing.T) {
	cfg := testConfig(t)

	d, name, err := resolveDistribution(cfg, "")
	if err != nil {
		t.Fatalf("default distribution: %v", err)
	}
	if d != tet.English() || name != "english" {
		t.Errorf("expected built-in english, got %s", name)
	}

	coin, err := tet.NewDistributionFromWeights([]tet.Weighted[rune]{{Symbol: 'h', P: 0.5}, {Symbol: 't', P: 0.5}})
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "coin.yaml")
	if err := codec.SaveDistributionFile(path, coin); err != nil {
		t.Fatal(err)
	}

	d, name, err = resolveDistribution(cfg, path)
	if err != nil {
		t.Fatalf("file distribution: %v", err)
	}
	if name != "coin" || d.Len() != 2 {
		t.Errorf("unexpected file distribution %s with %d symbols", name, d.Len())
	}

	s, err := store.Open(cfg.Storage.Path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.SaveDistribution("coin", coin); err != nil {
		t.Fatal(err)
	}
	s.Close()

	d, name, err = resolveDistribution(cfg, "store:coin")
	if err != nil {
		t.Fatalf("stored distribution: %v", err)
	}
	if name != "coin" || d.Entropy() != 1 {
		t.Errorf("unexpected stored distribution %s, H = %v", name, d.Entropy())
	}

	if _, _, err := resolveDistribution(cfg, "store:missing"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestResolveDistributionFromCorpus(t *testing.T) {
	cfg := testConfig(t)
	cfg.Distribution.Source = config.SourceCorpus
	cfg.Corpus.Paths = []string{filepath.Join(t.TempDir(), "missing")}

	if _, _, err := resolveDistribution(cfg, ""); err == nil {
		t.Error("expected error for unreadable corpus")
	}
}

func TestPrintResults(t *testing.T) {
	e := trial.NewEvaluator(tet.NewCalculator(tet.English()), trial.EvaluatorConfig{Workers: 1})
	results := []trial.Result{
		e.EvaluateTrial(trial.Trial{ID: "ok", Method: "qwerty", Presented: "the cat", Transcribed: "the cat", ElapsedSeconds: 1}),
		e.EvaluateTrial(trial.Trial{Method: "qwerty", Presented: "hi!", Transcribed: "hi!", ElapsedSeconds: 1}),
	}
	results[1].Index = 1

	var buf bytes.Buffer
	printResults(&buf, results)
	out := buf.String()

	if !strings.Contains(out, "ok") || !strings.Contains(out, "bits/s") {
		t.Errorf("missing defined row:\n%s", out)
	}
	if !strings.Contains(out, "#2") || !strings.Contains(out, "undefined") {
		t.Errorf("missing undefined row:\n%s", out)
	}

	buf.Reset()
	printSummary(&buf, trial.Summarize(results))
	if !strings.Contains(buf.String(), "qwerty") {
		t.Errorf("summary missing method:\n%s", buf.String())
	}
}

func TestStatusMux(t *testing.T) {
	registry := metrics.NewRegistry("tetmeter", "")
	m := metrics.NewEvaluationMetrics(registry)
	m.StartTrial()(true, 10)

	checker := health.NewChecker()
	checker.RegisterFunc("database", true, health.DatabaseCheck(func(context.Context) error { return nil }))
	checker.SetReady(true)
	mux := statusMux(registry, checker)

	tests := []struct {
		path string
		code int
		body string
	}{
		{"/metrics", http.StatusOK, "tetmeter_trials_total 1"},
		{"/livez", http.StatusOK, "alive"},
		{"/readyz", http.StatusOK, "healthy"},
		{"/healthz", http.StatusOK, "healthy"},
		{"/nope", http.StatusNotFound, ""},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if rec.Code != tt.code {
			t.Errorf("%s: expected %d, got %d", tt.path, tt.code, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), tt.body) {
			t.Errorf("%s: body %q does not contain %q", tt.path, rec.Body.String(), tt.body)
		}
	}
}
