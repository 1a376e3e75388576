// Package usage records token consumption per model. The Prometheus
// implementation exposes counters on the default registry; NoOpRecorder and
// MemoryRecorder serve wiring without metrics and tests respectively.
package usage
