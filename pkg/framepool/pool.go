package framepool

import (
	"fmt"
	"sync"
)

// Defaults da configuração de pool.
const (
	DefaultMinBuffers   = 3
	DefaultMaxBuffers   = 10
	DefaultMaxAvailable = 5
)

// PoolConfig é a configuração imutável de um pool por stream.
type PoolConfig struct {
	Width  int
	Height int
	Format PixelFormat

	// MinBuffers é o piso pré-alocado; MaxBuffers limita o total de buffers
	// vivos (disponíveis + em uso); MaxAvailable limita o conjunto ocioso.
	MinBuffers   int
	MaxBuffers   int
	MaxAvailable int
}

// withDefaults aplica os defaults e normaliza as invariantes
// MinBuffers <= MaxAvailable <= MaxBuffers. A pré-carga enche o conjunto
// disponível, então o piso nunca pode passar do teto de ociosos.
func (c PoolConfig) withDefaults() PoolConfig {
	if c.MinBuffers <= 0 {
		c.MinBuffers = DefaultMinBuffers
	}
	if c.MaxBuffers <= 0 {
		c.MaxBuffers = DefaultMaxBuffers
	}
	if c.MaxAvailable <= 0 {
		c.MaxAvailable = DefaultMaxAvailable
	}
	if c.MaxAvailable > c.MaxBuffers {
		c.MaxAvailable = c.MaxBuffers
	}
	if c.MinBuffers > c.MaxAvailable {
		c.MinBuffers = c.MaxAvailable
	}
	return c
}

// FrameBytes retorna o tamanho em bytes de cada buffer deste pool.
func (c PoolConfig) FrameBytes() int {
	return frameBytes(c.Width, c.Height, c.Format)
}

func (c PoolConfig) String() string {
	return fmt.Sprintf("%dx%d %s, min=%d max=%d avail=%d",
		c.Width, c.Height, c.Format, c.MinBuffers, c.MaxBuffers, c.MaxAvailable)
}

// AllocFunc aloca o bloco de memória de um buffer. Retornar nil sinaliza
// falha de alocação; o pool trata como exaustão, nunca como erro fatal.
type AllocFunc func(size int) []byte

func defaultAlloc(size int) []byte {
	return make([]byte, size)
}

type slotState uint8

const (
	slotFree slotState = iota
	slotAvailable
	slotInUse
)

type slot struct {
	gen   uint32
	state slotState
	buf   *Buffer
}

// Pool possui os conjuntos de buffers disponíveis e em uso de exatamente um
// stream. Os buffers vivem em um arena de slots; o conjunto disponível é uma
// pilha de handles (a ordem não importa para a correção).
//
// Shrink e EmergencyClear só tocam o conjunto disponível: quem segura um
// buffer em uso nunca é invalidado por um evento de pressão.
type Pool struct {
	mu        sync.Mutex
	cfg       PoolConfig
	slots     []slot
	available []Handle
	inUse     int
	alloc     AllocFunc
}

// NewPool cria o pool e pré-aloca MinBuffers buffers. Falhas de alocação na
// pré-carga são ignoradas em silêncio: o pool apenas começa mais vazio.
func NewPool(cfg PoolConfig) *Pool {
	return NewPoolWithAllocator(cfg, defaultAlloc)
}

// NewPoolWithAllocator permite injetar o alocador (os testes usam um que
// falha de propósito).
func NewPoolWithAllocator(cfg PoolConfig, alloc AllocFunc) *Pool {
	if alloc == nil {
		alloc = defaultAlloc
	}
	p := &Pool{
		cfg:   cfg.withDefaults(),
		alloc: alloc,
	}
	p.preallocate()
	return p
}

func (p *Pool) preallocate() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := 0; i < p.cfg.MinBuffers; i++ {
		b := p.newBuffer(slotAvailable)
		if b == nil {
			continue
		}
		p.available = append(p.available, b.handle)
	}
}

// newBuffer ocupa um slot livre (ou estende o arena) com um buffer recém
// alocado. Retorna nil se o alocador falhar. Chamar com p.mu travado.
func (p *Pool) newBuffer(state slotState) *Buffer {
	data := p.alloc(p.cfg.FrameBytes())
	if data == nil {
		return nil
	}

	idx := -1
	for i := range p.slots {
		if p.slots[i].state == slotFree {
			idx = i
			break
		}
	}
	if idx == -1 {
		p.slots = append(p.slots, slot{})
		idx = len(p.slots) - 1
	}

	s := &p.slots[idx]
	s.gen++
	s.state = state
	s.buf = &Buffer{
		handle: Handle{Index: uint32(idx), Gen: s.gen},
		data:   data,
		width:  p.cfg.Width,
		height: p.cfg.Height,
		format: p.cfg.Format,
		pooled: true,
	}
	return s.buf
}

// freeSlot descarta o buffer do slot e o devolve ao runtime. Chamar com
// p.mu travado.
func (p *Pool) freeSlot(idx uint32) {
	s := &p.slots[idx]
	s.state = slotFree
	s.buf = nil
}

// Acquire retorna um buffer disponível ou, se o pool ainda não atingiu
// MaxBuffers, aloca um novo. Exaustão retorna (nil, false) imediatamente:
// nunca bloqueia, a decisão de backpressure fica com o chamador.
func (p *Pool) Acquire() (*Buffer, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n := len(p.available); n > 0 {
		h := p.available[n-1]
		p.available = p.available[:n-1]
		s := &p.slots[h.Index]
		s.state = slotInUse
		p.inUse++
		return s.buf, true
	}

	if p.inUse < p.cfg.MaxBuffers {
		b := p.newBuffer(slotInUse)
		if b == nil {
			// Falha de alocação degrada para exaustão
			return nil, false
		}
		p.inUse++
		return b, true
	}

	return nil, false
}

// Recycle devolve um buffer em uso ao pool. Buffers que não estão no conjunto
// em uso — já devolvidos, drenados ou criados fora deste pool — são ignorados
// em silêncio. Se o conjunto disponível está cheio, o buffer é descartado em
// vez de retido, limitando a memória ociosa.
func (p *Pool) Recycle(b *Buffer) bool {
	if b == nil || !b.pooled {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	h := b.handle
	if int(h.Index) >= len(p.slots) {
		return false
	}
	s := &p.slots[h.Index]
	if s.gen != h.Gen || s.state != slotInUse || s.buf != b {
		return false
	}

	p.inUse--
	if len(p.available) < p.cfg.MaxAvailable {
		s.state = slotAvailable
		p.available = append(p.available, h)
	} else {
		p.freeSlot(h.Index)
	}
	return true
}

// Shrink libera floor(|disponível| * fraction) buffers ociosos.
// Buffers em uso nunca são tocados. Retorna quantos foram liberados.
func (p *Pool) Shrink(fraction float64) int {
	if fraction <= 0 {
		return 0
	}
	if fraction > 1 {
		fraction = 1
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	n := int(float64(len(p.available)) * fraction)
	for i := 0; i < n; i++ {
		last := len(p.available) - 1
		h := p.available[last]
		p.available = p.available[:last]
		p.freeSlot(h.Index)
	}
	return n
}

// EmergencyClear esvazia todo o conjunto disponível e retorna quantos buffers
// foram liberados. Buffers em uso não são invalidados.
func (p *Pool) EmergencyClear() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.available)
	for _, h := range p.available {
		p.freeSlot(h.Index)
	}
	p.available = p.available[:0]
	return n
}

// Drain limpa os dois conjuntos incondicionalmente. Usado apenas no teardown
// do pool; handles que o chamador ainda segurar viram no-ops em Recycle.
func (p *Pool) Drain() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := range p.slots {
		p.slots[i].state = slotFree
		p.slots[i].buf = nil
	}
	p.available = p.available[:0]
	p.inUse = 0
}

// Available retorna o tamanho atual do conjunto ocioso.
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.available)
}

// InUse retorna quantos buffers estão emprestados a chamadores.
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inUse
}

// Config retorna a configuração (já normalizada) do pool.
func (p *Pool) Config() PoolConfig {
	return p.cfg
}
