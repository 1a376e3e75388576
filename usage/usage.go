// Package usage records token consumption reported by model providers. The
// Recorder interface is consumed by the engine; the Prometheus implementation
// exposes per-model prompt/completion counters on the standard registry.
package usage

import (
	"sync"

	"github.com/parley-ai/parley/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder receives one usage sample per settled model call.
type Recorder interface {
	Record(modelName string, usage core.TokenUsage)
}

// NoOpRecorder discards usage samples.
type NoOpRecorder struct{}

// Record implements Recorder.
func (NoOpRecorder) Record(string, core.TokenUsage) {}

// PrometheusRecorder counts prompt and completion tokens per model.
type PrometheusRecorder struct {
	prompt     *prometheus.CounterVec
	completion *prometheus.CounterVec
}

// NewPrometheusRecorder registers the token counters with the given registerer
// (nil selects the default registry).
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		prompt: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_prompt_tokens_total",
			Help: "Prompt tokens consumed, by model.",
		}, []string{"model"}),
		completion: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "parley_completion_tokens_total",
			Help: "Completion tokens produced, by model.",
		}, []string{"model"}),
	}
}

// Record implements Recorder.
func (r *PrometheusRecorder) Record(modelName string, usage core.TokenUsage) {
	r.prompt.WithLabelValues(modelName).Add(float64(usage.PromptTokens))
	r.completion.WithLabelValues(modelName).Add(float64(usage.CompletionTokens))
}

// MemoryRecorder accumulates usage in memory; used by tests and the /usage
// debug endpoint.
type MemoryRecorder struct {
	mu     sync.Mutex
	totals map[string]core.TokenUsage
}

// NewMemoryRecorder constructs an empty MemoryRecorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{totals: make(map[string]core.TokenUsage)}
}

// Record implements Recorder.
func (r *MemoryRecorder) Record(modelName string, usage core.TokenUsage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := r.totals[modelName]
	total.Add(usage)
	r.totals[modelName] = total
}

// Total returns the accumulated usage for a model.
func (r *MemoryRecorder) Total(modelName string) core.TokenUsage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.totals[modelName]
}
