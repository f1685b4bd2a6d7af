package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AnswersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lattice_answers_total",
			Help: "Total answered questions by terminal state",
		},
		[]string{"state"},
	)

	AttemptsPerAnswer = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lattice_attempts_per_answer",
			Help:    "Generation attempts consumed per answered question",
			Buckets: []float64{1, 2, 3, 4, 5},
		},
	)

	AttemptFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lattice_attempt_failures_total",
			Help: "Per-attempt failures by error kind",
		},
		[]string{"kind"},
	)

	SafetyViolations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lattice_safety_violations_total",
			Help: "Generated queries rejected by the safety gate",
		},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lattice_cache_lookups_total",
			Help: "Semantic cache lookups by result (hit/miss)",
		},
		[]string{"result"},
	)

	GoldenSetSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lattice_golden_set_size",
			Help: "Current number of golden examples",
		},
	)

	GoldenEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lattice_golden_evictions_total",
			Help: "Golden examples evicted by revalidation",
		},
	)

	AnswerDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lattice_answer_duration_seconds",
			Help:    "End-to-end answer latency including retries",
			Buckets: prometheus.DefBuckets,
		},
	)
)
