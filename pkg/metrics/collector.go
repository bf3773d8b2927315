package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuffersAcquired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framepool_buffers_acquired_total",
			Help: "Total de buffers adquiridos por stream",
		},
		[]string{"stream_id"},
	)

	BufferMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framepool_buffer_misses_total",
			Help: "Total de aquisições que falharam por exaustão do pool",
		},
		[]string{"stream_id"},
	)

	BuffersReturned = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framepool_buffers_returned_total",
			Help: "Total de buffers devolvidos por stream",
		},
		[]string{"stream_id"},
	)

	EmergencyFreed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framepool_emergency_freed_total",
			Help: "Total de buffers liberados por limpeza de emergência",
		},
		[]string{"stream_id"},
	)

	PoolAvailable = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "framepool_pool_available",
			Help: "Buffers ociosos no pool de cada stream",
		},
		[]string{"stream_id"},
	)

	PoolInUse = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "framepool_pool_in_use",
			Help: "Buffers emprestados a chamadores por stream",
		},
		[]string{"stream_id"},
	)

	PoolMemoryBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "framepool_memory_in_use_bytes",
		Help: "Bytes atualmente creditados a buffers em uso em todos os pools",
	})

	FramesProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framepool_frames_processed_total",
			Help: "Total de frames processados por stream",
		},
		[]string{"stream_id"},
	)

	FramesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "framepool_frames_dropped_total",
			Help: "Total de frames descartados por stream",
		},
		[]string{"stream_id", "reason"},
	)

	WorkerPoolQueueSize = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "framepool_worker_pool_queue_size",
			Help: "Tamanho atual da fila do worker pool",
		},
		[]string{"pool_name"},
	)

	WorkerPoolProcessing = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "framepool_worker_pool_processing",
			Help: "Número de jobs em processamento",
		},
		[]string{"pool_name"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "framepool_circuit_breaker_state",
			Help: "Estado do circuit breaker (0=closed, 1=open, 2=half-open)",
		},
		[]string{"breaker_name"},
	)

	PublishLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "framepool_publish_latency_seconds",
			Help:    "Latência de publicação de telemetria",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"publisher_type"},
	)
)
