package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cyhdev/backend/internal/serverstate"
)

// newMetricsHandler wires a dedicated Prometheus registry around
// ServerState's in-process caches, grounded on the promhttp.Handler()
// pattern used for metrics endpoints across the example pack
// (e.g. github.com/jordigilh/kubernaut's contextapi server). Each gauge
// reads straight off the live cache rather than being pushed to, since
// every component already exposes a cheap Len()/GetCPUUsage()-style
// accessor.
func newMetricsHandler(state *serverstate.ServerState) http.Handler {
	reg := prometheus.NewRegistry()

	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "cyhdev_sessions_active",
		Help: "Number of sessions currently held in the session store.",
	}, func() float64 { return float64(state.Sessions.Count()) }))

	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "cyhdev_posts_cached",
		Help: "Number of posts currently held in the post cache.",
	}, func() float64 { return float64(state.Posts.Len()) }))

	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "cyhdev_wasm_bundles_cached",
		Help: "Number of wasm bundles currently held in the bundle cache.",
	}, func() float64 { return float64(state.WasmBundles.Len()) }))

	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "cyhdev_visitor_board_entries",
		Help: "Number of distinct coordinates recorded on the visitor board.",
	}, func() float64 { return float64(state.VisitorBoard.Len()) }))

	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "cyhdev_worker_pool_in_use",
		Help: "Number of worker pool slots currently occupied.",
	}, func() float64 { return float64(state.Workers.InUse()) }))

	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "cyhdev_worker_pool_capacity",
		Help: "Total number of worker pool slots.",
	}, func() float64 { return float64(state.Workers.Capacity()) }))

	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "cyhdev_system_cpu_usage_percent",
		Help: "Most recently sampled CPU usage percentage.",
	}, func() float64 {
		v, _ := state.SysStats.GetCPUUsage()
		return v
	}))

	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "cyhdev_system_memory_usage_percent",
		Help: "Most recently sampled memory usage percentage.",
	}, func() float64 {
		v, _ := state.SysStats.GetMemoryUsage()
		return v
	}))

	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
