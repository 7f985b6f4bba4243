package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics counts checkout, settlement and payout outcomes.
type PaymentMetrics struct {
	checkouts   *prometheus.CounterVec
	settlements *prometheus.CounterVec
	integrity   *prometheus.CounterVec
	payouts     *prometheus.CounterVec
}

// NewPaymentMetrics registers the payment metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_total",
		Help: "Checkout attempts by payment method and outcome.",
	}, []string{"method", "outcome"})
	settlements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_total",
		Help: "Settlement results by payment method and outcome.",
	}, []string{"method", "outcome"})
	integrity := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_integrity_failures_total",
		Help: "Verifications rejected for amount or reference mismatch.",
	}, []string{"method"})
	payouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payout_total",
		Help: "Seller payouts by provider and outcome.",
	}, []string{"provider", "outcome"})
	reg.MustRegister(checkouts, settlements, integrity, payouts)
	return &PaymentMetrics{
		checkouts:   checkouts,
		settlements: settlements,
		integrity:   integrity,
		payouts:     payouts,
	}
}

func (p *PaymentMetrics) IncCheckout(method, outcome string) {
	if p == nil || p.checkouts == nil {
		return
	}
	p.checkouts.WithLabelValues(normalizeLabel(method), normalizeLabel(outcome)).Inc()
}

func (p *PaymentMetrics) IncSettlement(method, outcome string) {
	if p == nil || p.settlements == nil {
		return
	}
	p.settlements.WithLabelValues(normalizeLabel(method), normalizeLabel(outcome)).Inc()
}

func (p *PaymentMetrics) IncIntegrityFailure(method string) {
	if p == nil || p.integrity == nil {
		return
	}
	p.integrity.WithLabelValues(normalizeLabel(method)).Inc()
}

func (p *PaymentMetrics) IncPayout(provider, outcome string) {
	if p == nil || p.payouts == nil {
		return
	}
	p.payouts.WithLabelValues(normalizeLabel(provider), normalizeLabel(outcome)).Inc()
}
