package api

import "net/http"

// systemStats serves the most recent CPU/memory sample from the ring
// buffer (C8); the ring is populated once per second by the scheduler.
func (h *handlers) systemStats(w http.ResponseWriter, r *http.Request) {
	cpu, cpuOK := h.state.SysStats.GetCPUUsage()
	mem, memOK := h.state.SysStats.GetMemoryUsage()
	ok(w, envelope{
		"cpu_usage":        cpu,
		"cpu_available":    cpuOK,
		"memory_usage":     mem,
		"memory_available": memOK,
	})
}
