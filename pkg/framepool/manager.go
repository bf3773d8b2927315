package framepool

import (
	"sync"
	"time"

	"github.com/T3-Labs/edge-framepool/pkg/logger"
	"github.com/T3-Labs/edge-framepool/pkg/metrics"
)

// PressureSource é a capacidade abstrata de sinal de pressão de memória.
// A implementação concreta fica em pkg/memcontrol; os testes injetam uma
// fonte sintética.
type PressureSource interface {
	// UnderPressure informa se o host está pedindo redução de memória agora.
	UnderPressure() bool
	// OnPressure registra um callback disparado quando a pressão começa.
	OnPressure(fn func())
}

// Intervalo mínimo entre mitigações disparadas pelo caminho quente de
// Acquire. O caminho de subscription não é limitado.
const pressureMitigationInterval = time.Second

// Manager é a fachada pública do alocador: mapeia stream -> Pool, mantém o
// acumulador de memória e as estatísticas, e assina a fonte de pressão.
//
// Ordem de locks: sempre Manager antes de Pool, nunca o contrário. Nenhum
// método de Pool chama de volta o Manager.
type Manager struct {
	mu             sync.Mutex
	pools          map[string]*Pool
	memoryInUse    int64
	lastMitigation time.Time

	rec      *recorder
	pressure PressureSource
}

// NewManager cria o manager e assina a fonte de pressão. A fonte pode ser
// nil (sem mitigação automática).
func NewManager(pressure PressureSource) *Manager {
	m := &Manager{
		pools:    make(map[string]*Pool),
		rec:      newRecorder(),
		pressure: pressure,
	}
	if pressure != nil {
		pressure.OnPressure(m.HandlePressure)
	}
	return m
}

// CreatePool registra um pool para o stream, substituindo (e drenando) o
// anterior se existir. O pool novo já sai pré-alocado.
func (m *Manager) CreatePool(streamID string, cfg PoolConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.pools[streamID]; ok {
		old.Drain()
	}

	p := NewPool(cfg)
	m.pools[streamID] = p
	m.updatePoolGauges(streamID, p)

	if logger.Log != nil {
		logger.Log.Infow("Pool criado",
			"stream_id", streamID,
			"config", p.Config().String(),
			"frame_bytes", p.Config().FrameBytes())
	}
}

// RemovePool drena e remove o pool do stream; no-op se não existir. Os bytes
// de buffers ainda emprestados são debitados aqui, já que a devolução deles
// nunca mais vai encontrar o pool.
func (m *Manager) RemovePool(streamID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pools[streamID]
	if !ok {
		return
	}

	outstanding := int64(p.InUse()) * int64(p.Config().FrameBytes())
	m.memoryInUse -= outstanding
	if m.memoryInUse < 0 {
		m.memoryInUse = 0
	}
	metrics.PoolMemoryBytes.Set(float64(m.memoryInUse))

	p.Drain()
	delete(m.pools, streamID)

	metrics.PoolAvailable.DeleteLabelValues(streamID)
	metrics.PoolInUse.DeleteLabelValues(streamID)

	if logger.Log != nil {
		logger.Log.Infow("Pool removido", "stream_id", streamID)
	}
}

// Acquire entrega um buffer do pool do stream. Retorna (nil, false) se o
// stream não tem pool ou se o pool está exausto — um miss, não um erro.
func (m *Manager) Acquire(streamID string) (*Buffer, bool) {
	// Mitigação best-effort no caminho quente, limitada por intervalo para
	// não transformar cada acquire em uma varredura de pools
	if m.pressure != nil && m.pressure.UnderPressure() {
		m.mitigate()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pools[streamID]
	if !ok {
		return nil, false
	}

	m.rec.recordRequest(streamID)
	b, ok := p.Acquire()
	if !ok {
		m.rec.recordMiss(streamID)
		metrics.BufferMisses.WithLabelValues(streamID).Inc()
		return nil, false
	}

	m.memoryInUse += int64(b.Size())
	metrics.BuffersAcquired.WithLabelValues(streamID).Inc()
	metrics.PoolMemoryBytes.Set(float64(m.memoryInUse))
	m.updatePoolGauges(streamID, p)
	return b, true
}

// Release devolve um buffer ao pool do stream. Stream sem pool registrado é
// um no-op completo: sem estatística, sem contabilidade (RemovePool já
// debitou os buffers pendentes). Com pool presente a contabilidade é sempre
// debitada (com clamp em zero), mesmo que o pool não reconheça o buffer —
// isso absorve devoluções tardias para pools já reconfigurados.
func (m *Manager) Release(b *Buffer, streamID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.pools[streamID]
	if !ok {
		return
	}

	p.Recycle(b)
	m.updatePoolGauges(streamID, p)

	if b != nil {
		m.memoryInUse -= int64(b.Size())
		if m.memoryInUse < 0 {
			m.memoryInUse = 0
		}
		metrics.PoolMemoryBytes.Set(float64(m.memoryInUse))
	}

	m.rec.recordReturn(streamID)
	metrics.BuffersReturned.WithLabelValues(streamID).Inc()
}

// ProcessFrame aplica o transform ao payload e monta um frame novo com os
// mesmos metadados de timing. O frame original nunca é mutado. O transform
// roda fora de qualquer lock do manager.
func (m *Manager) ProcessFrame(frame Frame, streamID string, transform Transform) (Frame, bool) {
	if transform == nil || frame.Payload == nil {
		return Frame{}, false
	}

	out, ok := transform(frame.Payload)
	if !ok || out == nil {
		return Frame{}, false
	}

	return Frame{
		StreamID: streamID,
		Payload:  out,
		PTS:      frame.PTS,
		DTS:      frame.DTS,
		Duration: frame.Duration,
	}, true
}

// HandlePressure roda a rotina de pressão contra todos os pools: Shrink(0.5)
// e em seguida EmergencyClear, creditando o total liberado na estatística de
// cada stream. Invocado pela fonte de pressão e pelo caminho de Acquire.
func (m *Manager) HandlePressure() {
	m.mu.Lock()
	m.lastMitigation = time.Now()
	m.handlePressureLocked()
	m.mu.Unlock()
}

func (m *Manager) mitigate() {
	m.mu.Lock()
	if time.Since(m.lastMitigation) < pressureMitigationInterval {
		m.mu.Unlock()
		return
	}
	m.lastMitigation = time.Now()
	m.handlePressureLocked()
	m.mu.Unlock()
}

func (m *Manager) handlePressureLocked() {
	totalFreed := 0
	for id, p := range m.pools {
		freed := p.Shrink(0.5)
		freed += p.EmergencyClear()
		if freed > 0 {
			m.rec.recordEmergencyFreed(id, freed)
			metrics.EmergencyFreed.WithLabelValues(id).Add(float64(freed))
			totalFreed += freed
		}
		m.updatePoolGauges(id, p)
	}
	metrics.PressureEvents.Inc()

	if logger.Log != nil {
		logger.Log.Warnw("Pressão de memória: pools reduzidos",
			"pools", len(m.pools),
			"buffers_freed", totalFreed)
	}
}

// Stats retorna um snapshot das estatísticas por stream.
func (m *Manager) Stats() Stats {
	return m.rec.snapshot()
}

// ResetStats zera os contadores sem tocar no estado dos pools.
func (m *Manager) ResetStats() {
	m.rec.reset()
}

// MemoryInUse retorna os bytes atualmente creditados a buffers em uso.
func (m *Manager) MemoryInUse() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.memoryInUse
}

// Streams lista os stream ids com pool registrado.
func (m *Manager) Streams() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]string, 0, len(m.pools))
	for id := range m.pools {
		ids = append(ids, id)
	}
	return ids
}

// PoolUsage retorna os tamanhos atuais dos conjuntos do pool do stream.
func (m *Manager) PoolUsage(streamID string) (available, inUse int, ok bool) {
	m.mu.Lock()
	p, exists := m.pools[streamID]
	m.mu.Unlock()
	if !exists {
		return 0, 0, false
	}
	return p.Available(), p.InUse(), true
}

// Close drena todos os pools e limpa o registro. Usado no teardown da
// sessão de captura.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, p := range m.pools {
		p.Drain()
		metrics.PoolAvailable.DeleteLabelValues(id)
		metrics.PoolInUse.DeleteLabelValues(id)
	}
	m.pools = make(map[string]*Pool)
	m.memoryInUse = 0
	metrics.PoolMemoryBytes.Set(0)

	if logger.Log != nil {
		logger.Log.Info("Manager finalizado, todos os pools drenados")
	}
}

// updatePoolGauges publica os tamanhos dos conjuntos no prometheus.
// Chamar com m.mu travado (os getters do pool usam o lock interno dele).
func (m *Manager) updatePoolGauges(streamID string, p *Pool) {
	metrics.PoolAvailable.WithLabelValues(streamID).Set(float64(p.Available()))
	metrics.PoolInUse.WithLabelValues(streamID).Set(float64(p.InUse()))
}
