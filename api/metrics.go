/*
metrics.go - Prometheus instrumentation for charge generation

PURPOSE:
  Counters for finance-charge runs so operators can watch how much the
  engine is doing and whether invoices are failing.

SEE ALSO:
  - server.go: /metrics endpoint
  - scheduler.go: scheduled runs record here too
*/
package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/clearbook/finance-engine/apr"
)

var (
	chargeRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "finance_charge_runs_total",
		Help: "Number of finance-charge generation runs.",
	})
	chargesCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "finance_charges_created_total",
		Help: "Number of finance-charge invoices created and posted.",
	})
	chargeFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "finance_charge_failures_total",
		Help: "Number of invoices that failed during charge generation.",
	})
)

// recordRun records one engine run in the counters.
func recordRun(report *apr.RunReport) {
	chargeRunsTotal.Inc()
	chargesCreatedTotal.Add(float64(len(report.Created)))
	chargeFailuresTotal.Add(float64(len(report.Failures)))
}
