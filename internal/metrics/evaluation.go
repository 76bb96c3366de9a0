package metrics

import "time"

// EvaluationMetrics groups the metrics recorded while evaluating sessions.
type EvaluationMetrics struct {
	registry *Registry

	TrialsTotal     *Counter
	UndefinedTotal  *Counter
	SessionsTotal   *Counter
	InFlight        *Gauge
	Throughput      *Histogram
	TrialDuration   *Histogram
	SessionDuration *Histogram
}

// NewEvaluationMetrics registers the evaluation metrics in registry.
func NewEvaluationMetrics(registry *Registry) *EvaluationMetrics {
	return &EvaluationMetrics{
		registry: registry,
		TrialsTotal: registry.RegisterCounter("trials_total",
			"Trials evaluated", nil),
		UndefinedTotal: registry.RegisterCounter("trials_undefined_total",
			"Trials whose throughput was undefined", nil),
		SessionsTotal: registry.RegisterCounter("sessions_total",
			"Sessions evaluated", nil),
		InFlight: registry.RegisterGauge("trials_in_flight",
			"Trials currently being evaluated", nil),
		Throughput: registry.RegisterHistogram("throughput_bits_per_second",
			"Throughput of defined trials", nil, ThroughputBuckets),
		TrialDuration: registry.RegisterHistogram("trial_duration_seconds",
			"Time spent evaluating one trial", nil, DurationBuckets),
		SessionDuration: registry.RegisterHistogram("session_duration_seconds",
			"Time spent evaluating one session", nil, DurationBuckets),
	}
}

// Registry returns the registry the metrics live in.
func (m *EvaluationMetrics) Registry() *Registry {
	return m.registry
}

// StartTrial marks a trial as in flight and returns a function that records
// its outcome.
func (m *EvaluationMetrics) StartTrial() func(defined bool, throughput float64) {
	start := time.Now()
	m.InFlight.Inc()
	return func(defined bool, throughput float64) {
		m.InFlight.Dec()
		m.TrialsTotal.Inc()
		m.TrialDuration.ObserveDuration(time.Since(start))
		if !defined {
			m.UndefinedTotal.Inc()
			return
		}
		m.Throughput.Observe(throughput)
	}
}

// RecordSession records a finished session.
func (m *EvaluationMetrics) RecordSession(d time.Duration) {
	m.SessionsTotal.Inc()
	m.SessionDuration.ObserveDuration(d)
}
