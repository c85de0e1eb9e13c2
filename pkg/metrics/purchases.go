package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PurchaseMetrics tracks the purchase workflow: submissions, state transitions,
// OTP outcomes and access checks.
type PurchaseMetrics struct {
	created     *prometheus.CounterVec
	transitions *prometheus.CounterVec
	otp         *prometheus.CounterVec
	access      *prometheus.CounterVec
	proofBytes  prometheus.Histogram
}

// NewPurchaseMetrics registers the purchase metrics. A nil registerer yields a no-op recorder.
func NewPurchaseMetrics(reg prometheus.Registerer) *PurchaseMetrics {
	if reg == nil {
		return &PurchaseMetrics{}
	}
	m := &PurchaseMetrics{
		created: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "purchases_created_total",
			Help: "Purchases created, by product kind and initial status.",
		}, []string{"kind", "status"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "purchase_transitions_total",
			Help: "Purchase status transitions.",
		}, []string{"from", "to"}),
		otp: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "otp_outcomes_total",
			Help: "One-time code issue and verification outcomes.",
		}, []string{"outcome"}),
		access: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "access_checks_total",
			Help: "Protected asset access decisions.",
		}, []string{"result"}),
		proofBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "payment_proof_bytes",
			Help:    "Size of accepted payment proof images.",
			Buckets: prometheus.ExponentialBuckets(16<<10, 2, 10),
		}),
	}
	reg.MustRegister(m.created, m.transitions, m.otp, m.access, m.proofBytes)
	return m
}

func (m *PurchaseMetrics) PurchaseCreated(kind, status string) {
	if m == nil || m.created == nil {
		return
	}
	m.created.WithLabelValues(normalizeLabel(kind), normalizeLabel(status)).Inc()
}

func (m *PurchaseMetrics) Transition(from, to string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}

func (m *PurchaseMetrics) OTPOutcome(outcome string) {
	if m == nil || m.otp == nil {
		return
	}
	m.otp.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *PurchaseMetrics) AccessCheck(granted bool) {
	if m == nil || m.access == nil {
		return
	}
	result := "denied"
	if granted {
		result = "granted"
	}
	m.access.WithLabelValues(result).Inc()
}

func (m *PurchaseMetrics) ProofStored(size int64) {
	if m == nil || m.proofBytes == nil {
		return
	}
	m.proofBytes.Observe(float64(size))
}
