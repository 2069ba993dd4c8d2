package stats

import (
	"context"
	"sync"
	"time"

	"facemask-api/internal/model"
)

// Summary aggregates prediction events since process start.
type Summary struct {
	TotalRequests  int64            `json:"total_requests"`
	Failures       int64            `json:"failures"`
	CacheHits      int64            `json:"cache_hits"`
	ByClass        map[string]int64 `json:"by_class"`
	MeanConfidence float64          `json:"mean_confidence"`
	MeanLatencyMs  float64          `json:"mean_latency_ms"`
	LastEventAt    *time.Time       `json:"last_event_at,omitempty"`
}

// Recorder keeps in-memory counters. It satisfies the event publisher used by
// the prediction service, so it can receive events directly or from the queue
// worker.
type Recorder struct {
	mu sync.Mutex

	total         int64
	failures      int64
	cacheHits     int64
	byClass       map[string]int64
	confidenceSum float64
	latencySum    int64
	last          time.Time
}

func NewRecorder() *Recorder {
	return &Recorder{byClass: make(map[string]int64)}
}

func (r *Recorder) Publish(_ context.Context, event model.PredictionEvent) error {
	r.Record(event)
	return nil
}

func (r *Recorder) Record(event model.PredictionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.total++
	r.latencySum += event.LatencyMs
	if event.CreatedAt.After(r.last) {
		r.last = event.CreatedAt
	}
	if event.Failed() {
		r.failures++
		return
	}
	if event.Cached {
		r.cacheHits++
	}
	r.byClass[event.Class]++
	r.confidenceSum += event.Confidence
}

func (r *Recorder) Summary() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Summary{
		TotalRequests: r.total,
		Failures:      r.failures,
		CacheHits:     r.cacheHits,
		ByClass:       make(map[string]int64, len(r.byClass)),
	}
	for k, v := range r.byClass {
		s.ByClass[k] = v
	}
	if ok := r.total - r.failures; ok > 0 {
		s.MeanConfidence = r.confidenceSum / float64(ok)
	}
	if r.total > 0 {
		s.MeanLatencyMs = float64(r.latencySum) / float64(r.total)
	}
	if !r.last.IsZero() {
		last := r.last
		s.LastEventAt = &last
	}
	return s
}
