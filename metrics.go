package authcore

import "sync/atomic"

// MetricID indexes a single engine counter.
type MetricID uint16

const (
	// MetricLoginSuccess counts successful logins.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts failed password checks.
	MetricLoginFailure
	// MetricLoginLockedOut counts logins refused while a key was locked.
	MetricLoginLockedOut
	// MetricAuthSuccess counts successful request authentications.
	MetricAuthSuccess
	// MetricAuthFailure counts rejected request authentications.
	MetricAuthFailure
	// MetricAuthRevoked counts rejections caused by a blacklisted jti.
	MetricAuthRevoked
	// MetricRefreshSuccess counts successful refreshes.
	MetricRefreshSuccess
	// MetricRefreshFailure counts rejected refreshes.
	MetricRefreshFailure
	// MetricSessionCreated counts session creations.
	MetricSessionCreated
	// MetricSessionRevoked counts session revocations.
	MetricSessionRevoked
	// MetricSessionEvicted counts sessions removed by capacity enforcement.
	MetricSessionEvicted
	// MetricSessionFallback counts operations served by the process-local store.
	MetricSessionFallback
	// MetricRateLimited counts limiter denials.
	MetricRateLimited
	// MetricRateDegraded counts fail-open admissions during store outages.
	MetricRateDegraded
	// MetricCSRFRejected counts double-submit failures.
	MetricCSRFRejected
	// MetricLogout counts single-session logouts.
	MetricLogout
	// MetricLogoutAll counts revoke-all operations.
	MetricLogoutAll
	metricIDCount
)

const cacheLineSize = 64

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free engine counters. Increments are atomic and
// allocation-free; Snapshot copies current values for export.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]paddedCounter
}

func newMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Inc increments a counter. No-op when metrics are disabled.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Get returns the current value of a counter.
func (m *Metrics) Get(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters [metricIDCount]uint64
}

// Snapshot copies all counter values.
func (m *Metrics) Snapshot() MetricsSnapshot {
	var snap MetricsSnapshot
	if m == nil {
		return snap
	}
	for i := MetricID(0); i < metricIDCount; i++ {
		snap.Counters[i] = atomic.LoadUint64(&m.counters[i].value)
	}
	return snap
}
