package trial

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"
	"unicode/utf8"

	"tetmeter/internal/logging"
	"tetmeter/internal/metrics"
	"tetmeter/internal/store"
	"tetmeter/internal/tet"
)

// ErrTrialTooLong is returned for a trial whose presented or transcribed
// string exceeds the evaluator's symbol limit.
var ErrTrialTooLong = errors.New("trial: string exceeds symbol limit")

// Result is the outcome of one trial. Measurement is nil and Err set when
// the throughput is undefined.
type Result struct {
	Index       int
	Trial       Trial
	Measurement *tet.Measurement[rune]
	Err         error
}

// Defined reports whether a throughput was computed.
func (r *Result) Defined() bool {
	return r.Err == nil && r.Measurement != nil
}

// Throughput returns the throughput in bits per second, or 0 when undefined.
func (r *Result) Throughput() float64 {
	if !r.Defined() {
		return 0
	}
	return r.Measurement.Throughput
}

// Record converts r into a storable result.
func (r *Result) Record(session, distribution string) *store.ResultRecord {
	elapsed := tet.Seconds(r.Trial.ElapsedSeconds).Nanoseconds()
	rec := &store.ResultRecord{
		Fingerprint:  store.Fingerprint(distribution, r.Trial.Presented, r.Trial.Transcribed, elapsed),
		Session:      session,
		TrialID:      r.Trial.ID,
		Participant:  r.Trial.Participant,
		Method:       r.Trial.Method,
		Distribution: distribution,
		Presented:    r.Trial.Presented,
		Transcribed:  r.Trial.Transcribed,
		ElapsedNs:    elapsed,
		Defined:      r.Defined(),
	}
	if !rec.Defined {
		if r.Err != nil {
			rec.Error = r.Err.Error()
		}
		return rec
	}

	m := r.Measurement
	rec.Distance = int64(m.Alignment.Distance())
	rec.AlignedLength = m.Alignment.Len()
	rec.Insertion = m.Rates.Insertion
	rec.Omission = m.Rates.Omission
	rec.Substitution = m.Rates.Substitution
	rec.Correct = m.Rates.Correct
	rec.SourceEntropy = m.SourceEntropy
	rec.ConditionalEntropy = m.ConditionalEntropy
	rec.MutualInformation = m.MutualInformation
	rec.Throughput = m.Throughput
	return rec
}

// EvaluatorConfig configures an Evaluator.
type EvaluatorConfig struct {
	// Workers is the number of trials evaluated concurrently. Zero means
	// one per CPU.
	Workers int
	// MaxSymbols bounds the length of either string of a trial. Zero
	// disables the limit.
	MaxSymbols int
	Logger     *logging.Logger
	// Metrics, when set, receives per-trial and per-session observations.
	Metrics *metrics.EvaluationMetrics
}

// Evaluator measures the throughput of every trial in a session against one
// reference distribution.
type Evaluator struct {
	calc       *tet.Calculator[rune]
	workers    int
	maxSymbols int
	logger     *logging.Logger
	metrics    *metrics.EvaluationMetrics
}

// NewEvaluator returns an evaluator backed by calc.
func NewEvaluator(calc *tet.Calculator[rune], cfg EvaluatorConfig) *Evaluator {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Evaluator{
		calc:       calc,
		workers:    workers,
		maxSymbols: cfg.MaxSymbols,
		logger:     logger.WithComponent("evaluator"),
		metrics:    cfg.Metrics,
	}
}

// Evaluate computes one Result per trial, in trial order. Failing trials are
// reported through Result.Err. The returned error is non-nil only when ctx
// ends before every trial was handed to a worker. Log records carry the
// request ID found in ctx, or a fresh one.
func (e *Evaluator) Evaluate(ctx context.Context, s *Session) ([]Result, error) {
	results := make([]Result, len(s.Trials))
	if len(s.Trials) == 0 {
		return results, nil
	}
	if logging.RequestIDFromContext(ctx) == "" {
		ctx = logging.ContextWithRequestID(ctx, e.logger.NewRequestID())
	}
	logger := e.logger.WithContext(ctx)

	start := time.Now()
	jobs := make(chan int)
	dispatched := make(chan int, 1)
	go func() {
		defer close(jobs)
		n := 0
		defer func() { dispatched <- n }()
		for i := range s.Trials {
			select {
			case <-ctx.Done():
				return
			default:
			}
			select {
			case jobs <- i:
				n++
			case <-ctx.Done():
				return
			}
		}
	}()

	workers := min(e.workers, len(s.Trials))
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = e.evaluate(logger, i, s.Trials[i])
			}
		}()
	}
	wg.Wait()

	// Cancellation only matters when it left trials unevaluated.
	if n := <-dispatched; n < len(s.Trials) {
		return nil, fmt.Errorf("evaluate session %q: %w", s.Name, ctx.Err())
	}

	if e.metrics != nil {
		e.metrics.RecordSession(time.Since(start))
	}

	undefined := 0
	for i := range results {
		if !results[i].Defined() {
			undefined++
		}
	}
	logger.Info("session evaluated",
		"session", s.Name,
		"trials", len(results),
		"undefined", undefined,
		"workers", workers,
		"duration", time.Since(start),
	)
	return results, nil
}

// EvaluateTrial measures a single trial.
func (e *Evaluator) EvaluateTrial(t Trial) Result {
	return e.evaluate(e.logger, 0, t)
}

func (e *Evaluator) evaluate(logger *logging.Logger, index int, t Trial) Result {
	r := Result{Index: index, Trial: t}
	if e.metrics != nil {
		done := e.metrics.StartTrial()
		defer func() { done(r.Defined(), r.Throughput()) }()
	}

	if e.maxSymbols > 0 {
		if n := max(utf8.RuneCountInString(t.Presented), utf8.RuneCountInString(t.Transcribed)); n > e.maxSymbols {
			r.Err = fmt.Errorf("%w: %d > %d", ErrTrialTooLong, n, e.maxSymbols)
		}
	}
	var elapsed time.Duration
	if r.Err == nil {
		elapsed, r.Err = tet.ParseSeconds(t.ElapsedSeconds)
	}
	if r.Err == nil {
		r.Measurement, r.Err = tet.MeasureText(e.calc, t.Presented, t.Transcribed, elapsed)
	}

	if r.Err != nil {
		logger.Warn("throughput undefined",
			"trial", t.ID,
			"index", index,
			"error", r.Err,
		)
		return r
	}
	logger.Debug("trial evaluated",
		"trial", t.ID,
		"index", index,
		"distance", r.Measurement.Alignment.Distance(),
		"throughput", r.Measurement.Throughput,
	)
	return r
}
