package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Verification outcomes.
const (
	OutcomeVerified  = "verified"
	OutcomeDuplicate = "duplicate"
	OutcomeRejected  = "rejected"
	OutcomeError     = "error"
)

// PaymentMetrics tracks signature checks and gateway round trips.
type PaymentMetrics struct {
	verifications *prometheus.CounterVec
	gateway       *prometheus.HistogramVec
	refunds       *prometheus.CounterVec
}

func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	verifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "payments",
		Name:      "verifications_total",
		Help:      "Payment confirmations by source and outcome.",
	}, []string{"source", "outcome"})
	gateway := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "payments",
		Name:      "gateway_request_duration_seconds",
		Help:      "Latency of payment gateway calls.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"operation", "result"})
	refunds := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "payments",
		Name:      "refund_intents_total",
		Help:      "Refund intents recorded by reason.",
	}, []string{"reason"})
	reg.MustRegister(verifications, gateway, refunds)
	return &PaymentMetrics{verifications: verifications, gateway: gateway, refunds: refunds}
}

// IncVerification counts one confirmation attempt.
func (p *PaymentMetrics) IncVerification(source, outcome string) {
	if p == nil || p.verifications == nil {
		return
	}
	p.verifications.WithLabelValues(normalizeLabel(source), normalizeLabel(outcome)).Inc()
}

// ObserveGateway records a gateway call. A nil err is labelled "ok".
func (p *PaymentMetrics) ObserveGateway(operation string, started time.Time, err error) {
	if p == nil || p.gateway == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	p.gateway.WithLabelValues(normalizeLabel(operation), result).Observe(time.Since(started).Seconds())
}

func (p *PaymentMetrics) IncRefund(reason string) {
	if p == nil || p.refunds == nil {
		return
	}
	p.refunds.WithLabelValues(normalizeLabel(reason)).Inc()
}
