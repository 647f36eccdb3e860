// Package metrics registers prometheus instruments for the watcher loops.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "price_polls_total", Help: "Price poll attempts by outcome"},
		[]string{"outcome"},
	)
	TriggersTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "triggers_total", Help: "Threshold trigger events"},
	)
	RejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "gate_rejections_total", Help: "Safety gate rejections by reason"},
		[]string{"reason"},
	)
	StakesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "stake_operations_total", Help: "Stake operations by result"},
		[]string{"result"},
	)
	LastPrice = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "subnet_price_tao", Help: "Last observed subnet alpha price in TAO"},
	)
)

func init() {
	prometheus.MustRegister(PollsTotal, TriggersTotal, RejectionsTotal, StakesTotal, LastPrice)
}

// Serve exposes /metrics on addr. The server runs until the process exits.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
