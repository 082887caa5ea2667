package portal

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome label values
const (
	outcomeOK      = "ok"
	outcomeFailed  = "failed"
	outcomeBusy    = "busy"
	outcomeAbsent  = "absent"
	outcomeAborted = "aborted"
)

// Metrics holds the Prometheus instruments for the engine.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	logins           *prometheus.CounterVec
	keepAliveTicks   *prometheus.CounterVec
	downloadEntries  *prometheus.CounterVec
	downloadAttempts prometheus.Counter
	downloadRuns     *prometheus.CounterVec
	runDuration      prometheus.Histogram
	activeSessions   prometheus.Gauge
}

// NewMetrics creates the instruments and registers them with reg.
// A nil reg creates unregistered instruments.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		logins: f.NewCounterVec(prometheus.CounterOpts{
			Name: "portalkeeper_logins_total",
			Help: "Login attempts by outcome.",
		}, []string{"session", "outcome"}),
		keepAliveTicks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "portalkeeper_keepalive_ticks_total",
			Help: "Keep-alive ticks by outcome (ok, busy, absent, failed).",
		}, []string{"session", "outcome"}),
		downloadEntries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "portalkeeper_download_entries_total",
			Help: "Catalog entries processed by status.",
		}, []string{"status"}),
		downloadAttempts: f.NewCounter(prometheus.CounterOpts{
			Name: "portalkeeper_download_attempts_total",
			Help: "Individual download attempts, including retries.",
		}),
		downloadRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "portalkeeper_download_runs_total",
			Help: "Download runs by outcome.",
		}, []string{"outcome"}),
		runDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "portalkeeper_download_run_duration_seconds",
			Help:    "Duration of download runs in seconds.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		activeSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "portalkeeper_active_sessions",
			Help: "Sessions currently registered.",
		}),
	}
}

// RecordLogin counts a login attempt.
func (m *Metrics) RecordLogin(session string, err error) {
	if m == nil {
		return
	}
	outcome := outcomeOK
	if err != nil {
		outcome = outcomeFailed
	}
	m.logins.WithLabelValues(session, outcome).Inc()
}

// RecordKeepAlive counts a keep-alive tick.
func (m *Metrics) RecordKeepAlive(session, outcome string) {
	if m == nil {
		return
	}
	m.keepAliveTicks.WithLabelValues(session, outcome).Inc()
}

// RecordEntry counts a processed catalog entry.
func (m *Metrics) RecordEntry(status EntryStatus) {
	if m == nil {
		return
	}
	m.downloadEntries.WithLabelValues(string(status)).Inc()
}

// RecordAttempt counts a single download attempt.
func (m *Metrics) RecordAttempt() {
	if m == nil {
		return
	}
	m.downloadAttempts.Inc()
}

// RecordRun counts a finished download run and its duration.
func (m *Metrics) RecordRun(seconds float64, err error) {
	if m == nil {
		return
	}
	outcome := outcomeOK
	if err != nil {
		outcome = outcomeAborted
	}
	m.downloadRuns.WithLabelValues(outcome).Inc()
	m.runDuration.Observe(seconds)
}

// SetActiveSessions records the number of registered sessions.
func (m *Metrics) SetActiveSessions(n int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(n))
}
