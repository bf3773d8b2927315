package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/T3-Labs/edge-framepool/internal/storage"
	"github.com/T3-Labs/edge-framepool/internal/telemetry"
	"github.com/T3-Labs/edge-framepool/pkg/circuit"
	"github.com/T3-Labs/edge-framepool/pkg/config"
	"github.com/T3-Labs/edge-framepool/pkg/framepool"
	"github.com/T3-Labs/edge-framepool/pkg/logger"
	"github.com/T3-Labs/edge-framepool/pkg/memcontrol"
	"github.com/T3-Labs/edge-framepool/pkg/metrics"
	"github.com/T3-Labs/edge-framepool/pkg/mq"
	"github.com/T3-Labs/edge-framepool/pkg/util"
	"github.com/T3-Labs/edge-framepool/pkg/worker"
)

func main() {
	configFile := flag.String("config", "config.yaml", "Caminho para o arquivo de configuração")
	flag.Parse()

	err := logger.InitLogger(false)
	if err != nil {
		log.Fatalf("erro ao inicializar logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		logger.Log.Fatalw("Erro ao carregar config", "error", err, "config_file", *configFile)
	}

	interval := cfg.GetFrameInterval()
	logger.Log.Infow("Configuração carregada",
		"config_file", *configFile,
		"target_fps", cfg.Simulation.TargetFPS,
		"interval", interval,
		"streams", len(cfg.Streams),
		"memory_limit_mb", cfg.Memory.LimitMB)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	controller := memcontrol.NewController(cfg.Memory.LimitMB)
	applyMemoryConfig(controller, cfg)
	controller.Start()
	defer controller.Stop()

	manager := framepool.NewManager(controller)
	defer manager.Close()

	maxWorkers := cfg.Simulation.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	queueSize := cfg.Simulation.QueueSize
	if queueSize <= 0 {
		queueSize = 64
	}
	workerPool := worker.NewPool(ctx, "frames", maxWorkers, queueSize)
	defer workerPool.Close()

	var publisher mq.Publisher
	var amqpPublisher *mq.AMQPPublisher
	if cfg.Protocol == "mqtt" {
		p, err := mq.NewMQTTPublisher(cfg.MQTT.Broker, cfg.MQTT.TopicPrefix)
		if err != nil {
			logger.Log.Fatalw("Erro ao criar mqtt publisher", "error", err)
		}
		publisher = p
	} else {
		p, err := mq.NewAMQPPublisher(cfg.AMQP.AmqpURL, cfg.AMQP.Exchange, cfg.AMQP.RoutingKeyPrefix)
		if err != nil {
			logger.Log.Fatalw("Erro ao criar amqp publisher", "error", err)
		}
		publisher = p
		amqpPublisher = p
	}
	defer publisher.Close()

	resetTimeout := time.Duration(cfg.Simulation.CircuitResetSec) * time.Second
	if resetTimeout == 0 {
		resetTimeout = 60 * time.Second
	}
	maxFailures := int64(cfg.Simulation.CircuitMaxFailures)
	if maxFailures == 0 {
		maxFailures = 5
	}
	breaker := circuit.NewBreaker("publisher", maxFailures, resetTimeout)

	var compressor *util.Compressor
	if cfg.Compression.Enabled {
		comp, err := util.NewCompressor(cfg.Compression.Level)
		if err != nil {
			logger.Log.Fatalw("Erro ao criar compressor", "error", err)
		}
		compressor = comp
		defer compressor.Close()
	}

	keys := storage.NewKeyGenerator(storage.KeyGeneratorConfig{
		Prefix:    cfg.Redis.Prefix,
		Namespace: cfg.Redis.Namespace,
	})
	store := storage.NewRedisStore(cfg.Redis.Address, cfg.Redis.TTLSeconds, keys, cfg.Redis.Enabled)
	defer store.Close()

	var telemPublisher *telemetry.Publisher
	if amqpPublisher != nil {
		telemPublisher = telemetry.NewPublisher(amqpPublisher.GetChannel(), cfg.Telemetry.Exchange, cfg.Telemetry.RoutingKey, cfg.Telemetry.Enabled)
	} else {
		telemPublisher = telemetry.NewPublisher(nil, "", "", false)
	}

	// Eventos de pressão viram telemetria além de encolherem os pools
	controller.RegisterCallback(memcontrol.LevelCritical, func(st memcontrol.Stats) {
		if err := telemPublisher.PublishPressure(st.Level.String(), 0,
			fmt.Sprintf("uso em %.1f%%", st.UsagePercent)); err != nil {
			logger.Log.Warnw("Falha ao publicar evento de pressão", "error", err)
		}
	})

	applyStreams(manager, telemPublisher, nil, cfg)

	watcher, err := config.NewWatcher(*configFile, func(newCfg *config.Config) {
		applyStreams(manager, telemPublisher, cfg, newCfg)
		cfg = newCfg
	})
	if err != nil {
		logger.Log.Warnw("Hot reload de configuração indisponível", "error", err)
	} else {
		watcher.Start()
		defer watcher.Close()
	}

	go startMetricsServer(metricsAddr(cfg))

	go telemetryLoop(ctx, manager, telemPublisher, store, workerPool, cfg.GetTelemetryInterval())

	for _, sc := range cfg.Streams {
		go runStream(ctx, sc, interval, manager, workerPool, publisher, breaker, compressor)
		logger.Log.Infow("Stream iniciado",
			"stream_id", sc.ID,
			"stream_name", sc.Name,
			"resolution", fmt.Sprintf("%dx%d", sc.Width, sc.Height),
			"pixel_format", sc.PixelFormat)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Log.Info("Recebido sinal de finalização, encerrando...")
	cancel()

	time.Sleep(2 * time.Second)

	logger.Log.Info("Aplicação finalizada")
}

func metricsAddr(cfg *config.Config) string {
	if cfg.Metrics.Address != "" {
		return cfg.Metrics.Address
	}
	return ":9090"
}

func applyMemoryConfig(controller *memcontrol.Controller, cfg *config.Config) {
	tc := controller.GetConfig()
	changed := false
	if cfg.Memory.WarningPercent > 0 {
		tc.WarningPercent = cfg.Memory.WarningPercent
		changed = true
	}
	if cfg.Memory.CriticalPercent > 0 {
		tc.CriticalPercent = cfg.Memory.CriticalPercent
		changed = true
	}
	if cfg.Memory.EmergencyPercent > 0 {
		tc.EmergencyPercent = cfg.Memory.EmergencyPercent
		changed = true
	}
	if cfg.Memory.CheckIntervalSec > 0 {
		tc.CheckInterval = time.Duration(cfg.Memory.CheckIntervalSec) * time.Second
		changed = true
	}
	if changed {
		controller.UpdateConfig(tc)
	}
}

// applyStreams reconcilia os pools do manager com a configuração nova:
// cria/substitui pools declarados e remove os que sumiram do arquivo.
func applyStreams(manager *framepool.Manager, telem *telemetry.Publisher, oldCfg, newCfg *config.Config) {
	declared := make(map[string]bool, len(newCfg.Streams))
	for _, sc := range newCfg.Streams {
		declared[sc.ID] = true
		poolCfg := sc.PoolConfig()
		manager.CreatePool(sc.ID, poolCfg)
		if err := telem.PublishPoolLifecycle(sc.ID, telemetry.PoolActionCreated, poolCfg); err != nil {
			logger.Log.Warnw("Falha ao publicar lifecycle de pool", "stream_id", sc.ID, "error", err)
		}
	}

	if oldCfg == nil {
		return
	}
	for _, sc := range oldCfg.Streams {
		if declared[sc.ID] {
			continue
		}
		manager.RemovePool(sc.ID)
		if err := telem.PublishPoolLifecycle(sc.ID, telemetry.PoolActionRemoved, sc.PoolConfig()); err != nil {
			logger.Log.Warnw("Falha ao publicar lifecycle de pool", "stream_id", sc.ID, "error", err)
		}
	}
}

// runStream simula o tick de captura de um stream: adquire, preenche com um
// padrão sintético e entrega ao worker pool. Sem buffer livre o frame é
// descartado, nunca bloqueia.
func runStream(ctx context.Context, sc config.StreamConfig, interval time.Duration,
	manager *framepool.Manager, jobs *worker.Pool, publisher mq.Publisher,
	breaker *circuit.Breaker, compressor *util.Compressor) {

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var frameIndex int64
	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			buf, ok := manager.Acquire(sc.ID)
			if !ok {
				metrics.FramesDropped.WithLabelValues(sc.ID, "pool_exhausted").Inc()
				continue
			}

			fillTestPattern(buf.Data(), frameIndex)
			frame := framepool.Frame{
				StreamID: sc.ID,
				Payload:  buf,
				PTS:      time.Duration(frameIndex) * interval,
				DTS:      time.Duration(frameIndex) * interval,
				Duration: interval,
			}
			frameIndex++

			job := &frameJob{
				frame:      frame,
				streamID:   sc.ID,
				manager:    manager,
				publisher:  publisher,
				breaker:    breaker,
				compressor: compressor,
			}
			if !jobs.SubmitNonBlocking(job) {
				manager.Release(buf, sc.ID)
				metrics.FramesDropped.WithLabelValues(sc.ID, "queue_full").Inc()
			}
		}
	}
}

// fillTestPattern escreve um gradiente que muda por frame, só para o payload
// não ser compressível demais.
func fillTestPattern(data []byte, frameIndex int64) {
	base := byte(frameIndex)
	for i := range data {
		data[i] = base + byte(i%251)
	}
}

type frameJob struct {
	frame      framepool.Frame
	streamID   string
	manager    *framepool.Manager
	publisher  mq.Publisher
	breaker    *circuit.Breaker
	compressor *util.Compressor
}

func (j *frameJob) GetID() string {
	return fmt.Sprintf("%s/%d", j.streamID, j.frame.PTS)
}

func (j *frameJob) Process(ctx context.Context) error {
	// O buffer volta ao pool independente do resultado do transform
	defer j.manager.Release(j.frame.Payload, j.streamID)

	out, ok := j.manager.ProcessFrame(j.frame, j.streamID, j.transform)
	if !ok {
		metrics.FramesDropped.WithLabelValues(j.streamID, "transform_failed").Inc()
		return nil
	}
	metrics.FramesProcessed.WithLabelValues(j.streamID).Inc()

	return j.breaker.Call(func() error {
		return j.publisher.Publish(ctx, j.streamID, out.Payload.Data())
	})
}

func (j *frameJob) transform(b *framepool.Buffer) (*framepool.Buffer, bool) {
	if j.compressor == nil {
		packed := make([]byte, len(b.Data()))
		copy(packed, b.Data())
		return framepool.Wrap(packed, b.Width(), b.Height(), b.Format()), true
	}
	return framepool.Wrap(j.compressor.Compress(b.Data()), b.Width(), b.Height(), b.Format()), true
}

// telemetryLoop publica o snapshot de cada pool e persiste no Redis.
func telemetryLoop(ctx context.Context, manager *framepool.Manager,
	telem *telemetry.Publisher, store *storage.RedisStore,
	workerPool *worker.Pool, interval time.Duration) {

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			stats := manager.Stats()
			memoryInUse := manager.MemoryInUse()

			for streamID, st := range stats {
				available, inUse, ok := manager.PoolUsage(streamID)
				if !ok {
					continue
				}

				redisKey := ""
				if store.Enabled() {
					snapshot, err := json.Marshal(telemetry.PoolStatsEvent{
						EventType:      telemetry.EventTypePoolStats,
						StreamID:       streamID,
						Timestamp:      time.Now(),
						Requested:      st.Requested,
						Missed:         st.Missed,
						Returned:       st.Returned,
						EmergencyFreed: st.EmergencyFreed,
						HitRate:        st.HitRate,
						Available:      available,
						InUse:          inUse,
						MemoryBytes:    memoryInUse,
					})
					if err == nil {
						key, err := store.SaveSnapshot(ctx, streamID, time.Now(), snapshot)
						if err != nil {
							logger.Log.Warnw("Falha ao salvar snapshot no Redis",
								"stream_id", streamID, "error", err)
						} else {
							redisKey = key
						}
					}
				}

				if err := telem.PublishPoolStats(streamID, st, available, inUse, memoryInUse, redisKey); err != nil {
					logger.Log.Warnw("Falha ao publicar telemetria de pool",
						"stream_id", streamID, "error", err)
				}
			}

			logger.Log.Infow("System stats",
				"memory_in_use_bytes", memoryInUse,
				"streams", len(stats),
				"worker_pool", workerPool.Stats().String())
		}
	}
}

func startMetricsServer(addr string) {
	http.Handle("/metrics", promhttp.Handler())

	logger.Log.Infow("Servidor de métricas iniciado", "address", addr)

	if err := http.ListenAndServe(addr, nil); err != nil {
		logger.Log.Errorw("Erro no servidor de métricas", "error", err)
	}
}
