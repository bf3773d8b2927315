package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MemoryUsagePercent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "framepool_memory_usage_percent",
		Help: "Porcentagem de uso de memória em relação ao teto configurado",
	})

	MemoryAllocMB = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "framepool_memory_alloc_mb",
		Help: "Memória alocada pelo processo em megabytes",
	})

	MemoryLevel = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "framepool_memory_level",
		Help: "Nível de memória atual (0=Normal, 1=Warning, 2=Critical, 3=Emergency)",
	})

	MemoryGCCount = promauto.NewCounter(prometheus.CounterOpts{
		Name: "framepool_memory_gc_total",
		Help: "Número total de coletas de lixo forçadas",
	})

	PressureEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "framepool_pressure_events_total",
		Help: "Número de eventos de pressão de memória entregues aos pools",
	})
)
