package framepool

import (
	"fmt"
	"sync"
)

// StreamStats são os contadores acumulados de um stream.
type StreamStats struct {
	Requested      int64
	Missed         int64
	Returned       int64
	EmergencyFreed int64
	HitRate        float64
}

func (s StreamStats) String() string {
	return fmt.Sprintf("Requested: %d, Missed: %d, Returned: %d, EmergencyFreed: %d (hit rate %.2f%%)",
		s.Requested, s.Missed, s.Returned, s.EmergencyFreed, s.HitRate*100)
}

// Stats é um snapshot por stream, desacoplado dos contadores vivos.
type Stats map[string]StreamStats

type streamCounters struct {
	requested      int64
	missed         int64
	returned       int64
	emergencyFreed int64
}

// recorder acumula contadores por stream. Tem seu próprio mutex para que
// Stats/ResetStats possam rodar em paralelo com acquire/release.
type recorder struct {
	mu      sync.Mutex
	streams map[string]*streamCounters
}

func newRecorder() *recorder {
	return &recorder{streams: make(map[string]*streamCounters)}
}

func (r *recorder) counters(streamID string) *streamCounters {
	c, ok := r.streams[streamID]
	if !ok {
		c = &streamCounters{}
		r.streams[streamID] = c
	}
	return c
}

func (r *recorder) recordRequest(streamID string) {
	r.mu.Lock()
	r.counters(streamID).requested++
	r.mu.Unlock()
}

func (r *recorder) recordMiss(streamID string) {
	r.mu.Lock()
	r.counters(streamID).missed++
	r.mu.Unlock()
}

func (r *recorder) recordReturn(streamID string) {
	r.mu.Lock()
	r.counters(streamID).returned++
	r.mu.Unlock()
}

func (r *recorder) recordEmergencyFreed(streamID string, n int) {
	r.mu.Lock()
	r.counters(streamID).emergencyFreed += int64(n)
	r.mu.Unlock()
}

// snapshot copia os contadores e deriva o hit rate. Com zero requisições o
// hit rate é 0, não NaN.
func (r *recorder) snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(Stats, len(r.streams))
	for id, c := range r.streams {
		hitRate := float64(0)
		if c.requested > 0 {
			hitRate = float64(c.requested-c.missed) / float64(c.requested)
		}
		out[id] = StreamStats{
			Requested:      c.requested,
			Missed:         c.missed,
			Returned:       c.returned,
			EmergencyFreed: c.emergencyFreed,
			HitRate:        hitRate,
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.streams = make(map[string]*streamCounters)
	r.mu.Unlock()
}
