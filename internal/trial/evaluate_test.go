package trial

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tetmeter/internal/logging"
	"tetmeter/internal/metrics"
	"tetmeter/internal/store"
	"tetmeter/internal/tet"
)

func newTestEvaluator(cfg EvaluatorConfig) *Evaluator {
	cfg.Logger = logging.NewWithWriter(logging.DefaultConfig(), io.Discard)
	return NewEvaluator(tet.NewCalculator(tet.English()), cfg)
}

func TestEvaluate(t *testing.T) {
	e := newTestEvaluator(EvaluatorConfig{Workers: 3})
	s := &Session{
		Version: SessionVersion,
		Name:    "pilot",
		Trials: []Trial{
			{ID: "exact", Method: "qwerty", Presented: "the cat", Transcribed: "the cat", ElapsedSeconds: 1},
			{ID: "comma", Method: "qwerty", Presented: "hello world", Transcribed: "hello, world", ElapsedSeconds: 3},
			{ID: "zero", Method: "t9", Presented: "abc", Transcribed: "abc", ElapsedSeconds: 0},
			{ID: "typo", Method: "t9", Presented: "quickly", Transcribed: "qucehkly", ElapsedSeconds: 2},
		},
	}

	results, err := e.Evaluate(context.Background(), s)
	require.NoError(t, err)
	require.Len(t, results, 4)

	for i, r := range results {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, s.Trials[i].ID, r.Trial.ID)
	}

	exact := results[0]
	require.True(t, exact.Defined())
	h := tet.English().Entropy()
	assert.InDelta(t, 0.0, exact.Measurement.ConditionalEntropy, 1e-12)
	assert.InDelta(t, h*7, exact.Throughput(), 1e-9)

	assert.False(t, results[1].Defined())
	assert.ErrorIs(t, results[1].Err, tet.ErrSymbolNotCovered)
	assert.Zero(t, results[1].Throughput())

	assert.False(t, results[2].Defined())
	assert.ErrorIs(t, results[2].Err, tet.ErrNonPositiveDuration)

	require.True(t, results[3].Defined())
	assert.Equal(t, uint64(3), results[3].Measurement.Alignment.Distance())
}

func TestEvaluate_MatchesSequential(t *testing.T) {
	words := []string{"the", "quick", "brown", "fox", "jumps", "over", "lazy", "dog"}
	s := &Session{Version: SessionVersion}
	for i := 0; i < 64; i++ {
		p := words[i%len(words)] + " " + words[(i+3)%len(words)]
		tr := words[i%len(words)] + " " + words[(i+5)%len(words)]
		s.Trials = append(s.Trials, Trial{ID: fmt.Sprint(i), Presented: p, Transcribed: tr, ElapsedSeconds: 1 + float64(i%4)})
	}

	parallel, err := newTestEvaluator(EvaluatorConfig{Workers: 8}).Evaluate(context.Background(), s)
	require.NoError(t, err)
	sequential, err := newTestEvaluator(EvaluatorConfig{Workers: 1}).Evaluate(context.Background(), s)
	require.NoError(t, err)

	require.Len(t, parallel, len(s.Trials))
	for i := range parallel {
		assert.Equal(t, sequential[i].Throughput(), parallel[i].Throughput(), "trial %d", i)
	}
}

func TestEvaluate_Metrics(t *testing.T) {
	m := metrics.NewEvaluationMetrics(metrics.NewRegistry("tetmeter", ""))
	e := newTestEvaluator(EvaluatorConfig{Workers: 2, Metrics: m})
	s := &Session{
		Name: "metrics",
		Trials: []Trial{
			{ID: "a", Presented: "abc", Transcribed: "abc", ElapsedSeconds: 1},
			{ID: "b", Presented: "abc", Transcribed: "abd", ElapsedSeconds: 1},
			{ID: "c", Presented: "abc", Transcribed: "abc", ElapsedSeconds: -1},
		},
	}

	_, err := e.Evaluate(context.Background(), s)
	require.NoError(t, err)

	assert.Equal(t, uint64(3), m.TrialsTotal.Value())
	assert.Equal(t, uint64(1), m.UndefinedTotal.Value())
	assert.Equal(t, uint64(1), m.SessionsTotal.Value())
	assert.Equal(t, uint64(2), m.Throughput.Count())
	assert.Equal(t, uint64(3), m.TrialDuration.Count())
	assert.Zero(t, m.InFlight.Value())
}

func TestEvaluate_MaxSymbols(t *testing.T) {
	e := newTestEvaluator(EvaluatorConfig{MaxSymbols: 5})
	s := &Session{Trials: []Trial{
		{Presented: "short", Transcribed: "short", ElapsedSeconds: 1},
		{Presented: "short", Transcribed: "much longer", ElapsedSeconds: 1},
	}}

	results, err := e.Evaluate(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, results[0].Defined())
	assert.ErrorIs(t, results[1].Err, ErrTrialTooLong)
}

func TestEvaluate_Empty(t *testing.T) {
	results, err := newTestEvaluator(EvaluatorConfig{}).Evaluate(context.Background(), &Session{})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestEvaluate_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := &Session{Name: "late", Trials: []Trial{{Presented: "a", Transcribed: "a", ElapsedSeconds: 1}}}
	_, err := newTestEvaluator(EvaluatorConfig{}).Evaluate(ctx, s)
	assert.True(t, errors.Is(err, context.Canceled))
}

// cancelAfter cancels once n "trial evaluated" records have been logged.
type cancelAfter struct {
	mu     sync.Mutex
	n      int
	cancel context.CancelFunc
}

func (c *cancelAfter) Write(p []byte) (int, error) {
	if bytes.Contains(p, []byte("trial evaluated")) {
		c.mu.Lock()
		if c.n--; c.n == 0 {
			c.cancel()
		}
		c.mu.Unlock()
	}
	return len(p), nil
}

func TestEvaluate_CancelledAfterLastTrial(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := &Session{Name: "finished", Trials: []Trial{
		{ID: "a", Presented: "abc", Transcribed: "abc", ElapsedSeconds: 1},
		{ID: "b", Presented: "abc", Transcribed: "abd", ElapsedSeconds: 1},
	}}
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LevelDebug
	e := NewEvaluator(tet.NewCalculator(tet.English()), EvaluatorConfig{
		Workers: 2,
		Logger:  logging.NewWithWriter(cfg, &cancelAfter{n: len(s.Trials), cancel: cancel}),
	})

	results, err := e.Evaluate(ctx, s)
	require.Error(t, ctx.Err())
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.True(t, results[0].Defined())
	assert.True(t, results[1].Defined())
}

func TestEvaluate_ElapsedOutOfRange(t *testing.T) {
	e := newTestEvaluator(EvaluatorConfig{})

	tiny := e.EvaluateTrial(Trial{Presented: "abc", Transcribed: "abc", ElapsedSeconds: 1e-10})
	assert.False(t, tiny.Defined())
	assert.ErrorIs(t, tiny.Err, tet.ErrDurationOutOfRange)

	huge := e.EvaluateTrial(Trial{Presented: "abc", Transcribed: "abc", ElapsedSeconds: 1e10})
	assert.ErrorIs(t, huge.Err, tet.ErrDurationOutOfRange)

	zero := e.EvaluateTrial(Trial{Presented: "abc", Transcribed: "abc", ElapsedSeconds: 0})
	assert.ErrorIs(t, zero.Err, tet.ErrNonPositiveDuration)
}

func TestEvaluate_RequestID(t *testing.T) {
	s := &Session{Name: "tagged", Trials: []Trial{
		{ID: "a", Presented: "abc", Transcribed: "abc", ElapsedSeconds: 1},
	}}

	var buf bytes.Buffer
	e := NewEvaluator(tet.NewCalculator(tet.English()), EvaluatorConfig{
		Workers: 1,
		Logger:  logging.NewWithWriter(logging.DefaultConfig(), &buf),
	})
	ctx := logging.ContextWithRequestID(context.Background(), "req-7")
	_, err := e.Evaluate(ctx, s)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "request_id=req-7")

	buf.Reset()
	_, err = e.Evaluate(context.Background(), s)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "request_id=")
	assert.NotContains(t, buf.String(), "req-7")
}

func TestResult_Record(t *testing.T) {
	e := newTestEvaluator(EvaluatorConfig{})
	tr := Trial{ID: "t1", Participant: "p01", Method: "qwerty", Presented: "quickly", Transcribed: "qucehkly", ElapsedSeconds: 2}

	r := e.EvaluateTrial(tr)
	require.True(t, r.Defined())

	rec := r.Record("pilot", "english")
	assert.Equal(t, store.Fingerprint("english", "quickly", "qucehkly", 2_000_000_000), rec.Fingerprint)
	assert.Equal(t, "pilot", rec.Session)
	assert.Equal(t, "t1", rec.TrialID)
	assert.Equal(t, "qwerty", rec.Method)
	assert.Equal(t, int64(2_000_000_000), rec.ElapsedNs)
	assert.True(t, rec.Defined)
	assert.Equal(t, int64(3), rec.Distance)
	assert.Equal(t, 9, rec.AlignedLength)
	assert.Equal(t, r.Measurement.Throughput, rec.Throughput)
	assert.Empty(t, rec.Error)

	undefined := e.EvaluateTrial(Trial{Presented: "a!", Transcribed: "a!", ElapsedSeconds: 1})
	rec = undefined.Record("pilot", "english")
	assert.False(t, rec.Defined)
	assert.NotEmpty(t, rec.Error)
	assert.Zero(t, rec.Throughput)
}
