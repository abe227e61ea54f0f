package authcore

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter or latency histogram.
type MetricID uint16

const (
	MetricRegisterSuccess MetricID = iota
	MetricRegisterConflict
	MetricLoginSuccess
	MetricLoginFailure
	MetricLoginLocked
	MetricLoginUnverified
	MetricAccountLocked
	MetricEmailVerificationSuccess
	MetricEmailVerificationFailure
	MetricOTPResent
	MetricOTPResendCooldown
	MetricPasswordResetRequest
	MetricPasswordResetSuccess
	MetricPasswordResetFailure
	MetricRateLimitHit
	MetricRateLimiterUnavailable
	MetricSessionCreated
	MetricSessionRenewed
	MetricSessionInvalidated
	MetricLogout
	MetricEmailSendFailure
	MetricInternalError
	MetricAuditDropped

	// Latency histograms.
	MetricRegisterLatency
	MetricLoginLatency
	MetricValidateLatency
	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

// HistogramBounds are the upper bounds, in seconds, of the latency buckets.
// The last bucket is unbounded.
var HistogramBounds = [histBucketCount]float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 0}

type metricHistogram struct {
	buckets [histBucketCount]uint64
	sumNs   uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds lock-free counters and fixed-bucket latency histograms.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// HistogramSnapshot is a point-in-time copy of one histogram. Buckets are
// non-cumulative.
type HistogramSnapshot struct {
	Buckets [histBucketCount]uint64
	Sum     time.Duration
}

// Count returns the number of observations.
func (h HistogramSnapshot) Count() uint64 {
	var n uint64
	for _, b := range h.Buckets {
		n += b
	}
	return n
}

// MetricsSnapshot is a point-in-time copy of all metrics.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID]HistogramSnapshot
}

// NewMetrics allocates counters. Histograms are recorded only when both
// flags are set.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) LatencyEnabled() bool {
	return m != nil && m.enableLatency
}

// Inc adds one to a counter.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records a latency sample. Only histogram ids accept samples.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency || !isHistogram(id) {
		return
	}
	h := &m.histograms[id]
	atomic.AddUint64(&h.buckets[bucketIndex(d)], 1)
	if d > 0 {
		atomic.AddUint64(&h.sumNs, uint64(d))
	}
}

// Value returns the current value of a counter.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot copies every counter and, when enabled, every histogram.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID]HistogramSnapshot{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID]HistogramSnapshot, 3),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if isHistogram(id) {
			continue
		}
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		for _, id := range HistogramIDs() {
			var hs HistogramSnapshot
			for i := 0; i < histBucketCount; i++ {
				hs.Buckets[i] = atomic.LoadUint64(&m.histograms[id].buckets[i])
			}
			hs.Sum = time.Duration(atomic.LoadUint64(&m.histograms[id].sumNs))
			s.Histograms[id] = hs
		}
	}

	return s
}

// HistogramIDs lists the latency histogram ids.
func HistogramIDs() []MetricID {
	return []MetricID{MetricRegisterLatency, MetricLoginLatency, MetricValidateLatency}
}

func isHistogram(id MetricID) bool {
	return id >= MetricRegisterLatency && id < metricIDCount
}

func bucketIndex(d time.Duration) int {
	secs := d.Seconds()
	for i, upper := range HistogramBounds[:histBucketCount-1] {
		if secs <= upper {
			return i
		}
	}
	return histBucketCount - 1
}
