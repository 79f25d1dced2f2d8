package metrics

import "github.com/prometheus/client_golang/prometheus"

// PaymentMetrics tracks the checkout funnel and gateway reconciliation.
type PaymentMetrics struct {
	ordersCreated *prometheus.CounterVec
	verifications *prometheus.CounterVec
	reconciled    *prometheus.CounterVec
}

// NewPaymentMetrics registers the payment counters on the provided registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	ordersCreated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Orders created, labelled by whether the gateway intent was attached.",
	}, []string{"result"})
	verifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_verifications_total",
		Help: "Payment signature verifications by outcome.",
	}, []string{"outcome"})
	reconciled := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_reconciled_total",
		Help: "Orders resolved by the reconciliation job by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(ordersCreated, verifications, reconciled)
	return &PaymentMetrics{
		ordersCreated: ordersCreated,
		verifications: verifications,
		reconciled:    reconciled,
	}
}

// IncOrderCreated counts an order; result is "attached" or "detached".
func (p *PaymentMetrics) IncOrderCreated(result string) {
	if p == nil || p.ordersCreated == nil {
		return
	}
	p.ordersCreated.WithLabelValues(normalizeLabel(result)).Inc()
}

// IncVerification counts a verify-payment attempt.
func (p *PaymentMetrics) IncVerification(outcome string) {
	if p == nil || p.verifications == nil {
		return
	}
	p.verifications.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncReconciled counts an order settled by reconciliation.
func (p *PaymentMetrics) IncReconciled(outcome string) {
	if p == nil || p.reconciled == nil {
		return
	}
	p.reconciled.WithLabelValues(normalizeLabel(outcome)).Inc()
}
