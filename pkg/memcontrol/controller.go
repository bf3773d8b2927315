package memcontrol

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/T3-Labs/edge-framepool/pkg/logger"
	"github.com/T3-Labs/edge-framepool/pkg/metrics"
)

type Level int

const (
	LevelNormal Level = iota
	LevelWarning
	LevelCritical
	LevelEmergency
)

func (l Level) String() string {
	switch l {
	case LevelNormal:
		return "NORMAL"
	case LevelWarning:
		return "WARNING"
	case LevelCritical:
		return "CRITICAL"
	case LevelEmergency:
		return "EMERGENCY"
	default:
		return "UNKNOWN"
	}
}

type Stats struct {
	Alloc             uint64
	Sys               uint64
	NumGC             uint32
	HeapAlloc         uint64
	HeapInuse         uint64
	SystemUsedPercent float64
	UsagePercent      float64
	Level             Level
	Timestamp         time.Time
}

type ThresholdConfig struct {
	MaxMemoryMB      uint64
	WarningPercent   float64
	CriticalPercent  float64
	EmergencyPercent float64
	CheckInterval    time.Duration
	GCCooldown       time.Duration
}

// Controller monitora a memória do processo contra um teto configurado e
// classifica o uso em níveis. A partir de CRITICAL ele passa a sinalizar
// pressão: é a implementação concreta de framepool.PressureSource.
type Controller struct {
	mu           sync.RWMutex
	config       ThresholdConfig
	currentLevel Level
	stats        Stats
	callbacks    map[Level][]func(Stats)
	pressureFns  []func()
	gcInProgress bool
	lastGC       time.Time
	ctx          context.Context
	cancel       context.CancelFunc
}

// NewController cria o controller. Com maxMemoryMB == 0 o teto é deduzido da
// memória física do host (75%, nunca abaixo de 512MB).
func NewController(maxMemoryMB uint64) *Controller {
	if maxMemoryMB == 0 {
		if vm, err := mem.VirtualMemory(); err == nil {
			maxMemoryMB = uint64(float64(vm.Total/1024/1024) * 0.75)
		}
		if maxMemoryMB < 512 {
			maxMemoryMB = 512
		}
	}

	ctx, cancel := context.WithCancel(context.Background())

	config := ThresholdConfig{
		MaxMemoryMB:      maxMemoryMB,
		WarningPercent:   60.0,
		CriticalPercent:  75.0,
		EmergencyPercent: 85.0,
		CheckInterval:    2 * time.Second,
		GCCooldown:       5 * time.Second,
	}

	c := &Controller{
		config:       config,
		currentLevel: LevelNormal,
		callbacks:    make(map[Level][]func(Stats)),
		lastGC:       time.Now(),
		ctx:          ctx,
		cancel:       cancel,
	}

	if logger.Log != nil {
		logger.Log.Infow("Memory Controller inicializado",
			"max_memory_mb", maxMemoryMB,
			"warning_percent", config.WarningPercent,
			"critical_percent", config.CriticalPercent,
			"emergency_percent", config.EmergencyPercent)
	}

	return c
}

func (c *Controller) Start() {
	go c.monitorLoop()
	if logger.Log != nil {
		logger.Log.Info("Memory Controller iniciado")
	}
}

func (c *Controller) Stop() {
	c.cancel()
	if logger.Log != nil {
		logger.Log.Info("Memory Controller parado")
	}
}

func (c *Controller) monitorLoop() {
	ticker := time.NewTicker(c.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.updateStats()
			c.checkAndAct()
		}
	}
}

func (c *Controller) updateStats() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	allocMB := memStats.Alloc / 1024 / 1024
	usagePercent := (float64(allocMB) / float64(c.config.MaxMemoryMB)) * 100

	systemUsed := float64(0)
	if vm, err := mem.VirtualMemory(); err == nil {
		systemUsed = vm.UsedPercent
	}

	c.mu.Lock()
	c.stats = Stats{
		Alloc:             memStats.Alloc,
		Sys:               memStats.Sys,
		NumGC:             memStats.NumGC,
		HeapAlloc:         memStats.HeapAlloc,
		HeapInuse:         memStats.HeapInuse,
		SystemUsedPercent: systemUsed,
		UsagePercent:      usagePercent,
		Level:             c.determineLevel(usagePercent),
		Timestamp:         time.Now(),
	}
	c.mu.Unlock()

	metrics.MemoryUsagePercent.Set(usagePercent)
	metrics.MemoryAllocMB.Set(float64(allocMB))
}

func (c *Controller) determineLevel(usagePercent float64) Level {
	switch {
	case usagePercent >= c.config.EmergencyPercent:
		return LevelEmergency
	case usagePercent >= c.config.CriticalPercent:
		return LevelCritical
	case usagePercent >= c.config.WarningPercent:
		return LevelWarning
	default:
		return LevelNormal
	}
}

func (c *Controller) checkAndAct() {
	c.mu.Lock()
	stats := c.stats
	oldLevel := c.currentLevel
	newLevel := stats.Level
	c.mu.Unlock()

	if newLevel != oldLevel {
		c.onLevelChange(oldLevel, newLevel, stats)
	}

	switch newLevel {
	case LevelWarning:
		if c.shouldTriggerGC(stats) {
			c.triggerGC("warning level")
		}
	case LevelCritical:
		c.triggerGC("critical level")
		debug.FreeOSMemory()
	case LevelEmergency:
		c.triggerGC("emergency level")
		debug.FreeOSMemory()
		runtime.GC()
		debug.FreeOSMemory()
	}
}

func (c *Controller) onLevelChange(old, new Level, stats Stats) {
	c.mu.Lock()
	c.currentLevel = new
	c.mu.Unlock()

	metrics.MemoryLevel.Set(float64(new))

	if logger.Log != nil {
		logger.Log.Warnw("Nível de memória alterado",
			"old_level", old,
			"new_level", new,
			"usage_percent", fmt.Sprintf("%.2f%%", stats.UsagePercent),
			"alloc_mb", stats.Alloc/1024/1024,
			"system_used_percent", fmt.Sprintf("%.2f%%", stats.SystemUsedPercent))
	}

	c.notifyCallbacks(new, stats)

	// A pressão começa quando cruzamos para CRITICAL ou acima
	if new >= LevelCritical && old < LevelCritical {
		c.notifyPressure()
	}
}

func (c *Controller) shouldTriggerGC(stats Stats) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.gcInProgress {
		return false
	}
	if time.Since(c.lastGC) < c.config.GCCooldown {
		return false
	}
	return stats.UsagePercent >= c.config.WarningPercent
}

func (c *Controller) triggerGC(reason string) {
	c.mu.Lock()
	if c.gcInProgress {
		c.mu.Unlock()
		return
	}
	c.gcInProgress = true
	c.lastGC = time.Now()
	c.mu.Unlock()

	go func() {
		defer func() {
			c.mu.Lock()
			c.gcInProgress = false
			c.mu.Unlock()
		}()

		start := time.Now()
		runtime.GC()
		metrics.MemoryGCCount.Inc()
		if logger.Log != nil {
			logger.Log.Infow("Coleta de lixo forçada",
				"reason", reason,
				"duration", time.Since(start))
		}
	}()
}

// UnderPressure implementa framepool.PressureSource.
func (c *Controller) UnderPressure() bool {
	return c.GetLevel() >= LevelCritical
}

// OnPressure implementa framepool.PressureSource. O callback é disparado em
// goroutine própria a cada transição para CRITICAL ou acima.
func (c *Controller) OnPressure(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pressureFns = append(c.pressureFns, fn)
}

func (c *Controller) notifyPressure() {
	c.mu.RLock()
	fns := append([]func(){}, c.pressureFns...)
	c.mu.RUnlock()

	for _, fn := range fns {
		go fn()
	}
}

// RegisterCallback registra um observador para um nível específico,
// notificado sempre que o nível é atingido em uma mudança.
func (c *Controller) RegisterCallback(level Level, callback func(Stats)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks[level] = append(c.callbacks[level], callback)
}

func (c *Controller) notifyCallbacks(level Level, stats Stats) {
	c.mu.RLock()
	callbacks := append([]func(Stats){}, c.callbacks[level]...)
	c.mu.RUnlock()

	for _, cb := range callbacks {
		go cb(stats)
	}
}

func (c *Controller) GetStats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

func (c *Controller) GetLevel() Level {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentLevel
}

func (c *Controller) ForceGC() {
	c.triggerGC("manual trigger")
}

func (c *Controller) GetConfig() ThresholdConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.config
}

func (c *Controller) UpdateConfig(config ThresholdConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config = config
	if logger.Log != nil {
		logger.Log.Infow("Configuração de memória atualizada",
			"max_memory_mb", config.MaxMemoryMB,
			"warning_percent", config.WarningPercent,
			"critical_percent", config.CriticalPercent)
	}
}
