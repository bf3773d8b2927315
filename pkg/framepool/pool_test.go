package framepool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func testPoolConfig() PoolConfig {
	return PoolConfig{
		Width:        320,
		Height:       240,
		Format:       FormatBGRA,
		MinBuffers:   3,
		MaxBuffers:   10,
		MaxAvailable: 5,
	}
}

func TestNewPoolPreallocates(t *testing.T) {
	pool := NewPool(testPoolConfig())

	assert.NotNil(t, pool)
	assert.Equal(t, 3, pool.Available())
	assert.Equal(t, 0, pool.InUse())
}

func TestPoolConfigDefaults(t *testing.T) {
	pool := NewPool(PoolConfig{Width: 320, Height: 240, Format: FormatBGRA})

	cfg := pool.Config()
	assert.Equal(t, DefaultMinBuffers, cfg.MinBuffers)
	assert.Equal(t, DefaultMaxBuffers, cfg.MaxBuffers)
	assert.Equal(t, DefaultMaxAvailable, cfg.MaxAvailable)
}

func TestPoolConfigNormalization(t *testing.T) {
	pool := NewPool(PoolConfig{
		Width:        320,
		Height:       240,
		MinBuffers:   20,
		MaxBuffers:   10,
		MaxAvailable: 15,
	})

	cfg := pool.Config()
	assert.Equal(t, 10, cfg.MinBuffers)
	assert.Equal(t, 10, cfg.MaxAvailable)
	assert.LessOrEqual(t, cfg.MinBuffers, cfg.MaxBuffers)
	assert.LessOrEqual(t, cfg.MaxAvailable, cfg.MaxBuffers)
}

func TestPoolPreallocateRespectsMaxAvailable(t *testing.T) {
	// Piso maior que o teto de ociosos: a pré-carga não pode estourar o
	// conjunto disponível
	pool := NewPool(PoolConfig{Width: 64, Height: 64, MinBuffers: 8, MaxBuffers: 10, MaxAvailable: 5})

	assert.Equal(t, 5, pool.Available())
	assert.Equal(t, 5, pool.Config().MinBuffers)
	assert.LessOrEqual(t, pool.Available(), pool.Config().MaxAvailable)
}

func TestFrameBytesPerFormat(t *testing.T) {
	tests := []struct {
		format   PixelFormat
		expected int
	}{
		{FormatBGRA, 320 * 240 * 4},
		{FormatYUY2, 320 * 240 * 2},
		{FormatNV12, 320 * 240 * 3 / 2},
		{FormatGray8, 320 * 240},
	}

	for _, tt := range tests {
		cfg := PoolConfig{Width: 320, Height: 240, Format: tt.format}
		assert.Equal(t, tt.expected, cfg.FrameBytes(), "formato %s", tt.format)
	}
}

// Cenário completo do ciclo de vida: pré-carga, reuso, crescimento até o
// teto, exaustão e reciclagem.
func TestPoolAcquireScenario(t *testing.T) {
	pool := NewPool(testPoolConfig())

	// Os 3 pré-alocados saem primeiro
	seen := make(map[Handle]bool)
	var held []*Buffer
	for i := 0; i < 3; i++ {
		b, ok := pool.Acquire()
		assert.True(t, ok)
		assert.False(t, seen[b.Handle()], "buffer repetido no acquire %d", i)
		seen[b.Handle()] = true
		held = append(held, b)
	}
	assert.Equal(t, 0, pool.Available())
	assert.Equal(t, 3, pool.InUse())

	// O 4º acquire aloca um buffer novo
	b, ok := pool.Acquire()
	assert.True(t, ok)
	held = append(held, b)
	assert.Equal(t, 4, pool.InUse())

	// Cresce até MaxBuffers
	for pool.InUse() < 10 {
		b, ok := pool.Acquire()
		assert.True(t, ok)
		held = append(held, b)
	}

	// O 11º acquire sinaliza exaustão, não erro
	_, ok = pool.Acquire()
	assert.False(t, ok)

	// Reciclar um devolve ao conjunto disponível
	assert.True(t, pool.Recycle(held[0]))
	assert.Equal(t, 9, pool.InUse())
	assert.Equal(t, 1, pool.Available())
}

func TestPoolExhaustion(t *testing.T) {
	pool := NewPool(PoolConfig{Width: 64, Height: 64, MinBuffers: 1, MaxBuffers: 4, MaxAvailable: 2})

	for i := 0; i < 4; i++ {
		_, ok := pool.Acquire()
		assert.True(t, ok, "acquire %d deveria ter sucesso", i)
	}

	_, ok := pool.Acquire()
	assert.False(t, ok)
}

func TestPoolCapacityBound(t *testing.T) {
	cfg := PoolConfig{Width: 64, Height: 64, MinBuffers: 3, MaxBuffers: 6, MaxAvailable: 4}
	pool := NewPool(cfg)

	var held []*Buffer
	for {
		b, ok := pool.Acquire()
		if !ok {
			break
		}
		held = append(held, b)
	}
	for _, b := range held {
		pool.Recycle(b)
	}

	assert.LessOrEqual(t, pool.Available()+pool.InUse(), cfg.MaxBuffers)
	assert.LessOrEqual(t, pool.Available(), cfg.MaxAvailable)
}

func TestPoolRecycleDropsBeyondMaxAvailable(t *testing.T) {
	pool := NewPool(PoolConfig{Width: 64, Height: 64, MinBuffers: 1, MaxBuffers: 8, MaxAvailable: 2})

	var held []*Buffer
	for i := 0; i < 5; i++ {
		b, ok := pool.Acquire()
		assert.True(t, ok)
		held = append(held, b)
	}

	for _, b := range held {
		pool.Recycle(b)
	}

	// Só MaxAvailable ficam retidos; o resto é descartado
	assert.Equal(t, 2, pool.Available())
	assert.Equal(t, 0, pool.InUse())
}

func TestPoolDoubleReleaseNoOp(t *testing.T) {
	pool := NewPool(testPoolConfig())

	b, ok := pool.Acquire()
	assert.True(t, ok)

	assert.True(t, pool.Recycle(b))
	available := pool.Available()

	// Segunda devolução do mesmo buffer não muda nada
	assert.False(t, pool.Recycle(b))
	assert.Equal(t, available, pool.Available())
	assert.Equal(t, 0, pool.InUse())
}

func TestPoolRecycleForeignBuffer(t *testing.T) {
	pool := NewPool(testPoolConfig())

	// Buffer avulso nunca entra no pool
	foreign := Wrap(make([]byte, 16), 2, 2, FormatBGRA)
	assert.False(t, pool.Recycle(foreign))

	// Buffer de outro pool também não, mesmo com handle coincidente
	other := NewPool(testPoolConfig())
	b, ok := other.Acquire()
	assert.True(t, ok)
	assert.False(t, pool.Recycle(b))

	assert.Equal(t, 3, pool.Available())
	assert.Equal(t, 0, pool.InUse())
}

func TestPoolRecycleNil(t *testing.T) {
	pool := NewPool(testPoolConfig())
	assert.False(t, pool.Recycle(nil))
}

func TestPoolShrinkProportional(t *testing.T) {
	pool := NewPool(PoolConfig{Width: 64, Height: 64, MinBuffers: 9, MaxBuffers: 12, MaxAvailable: 9})

	b, ok := pool.Acquire()
	assert.True(t, ok)
	assert.Equal(t, 8, pool.Available())
	assert.Equal(t, 1, pool.InUse())

	freed := pool.Shrink(0.5)

	assert.Equal(t, 4, freed)
	assert.Equal(t, 4, pool.Available())
	assert.Equal(t, 1, pool.InUse())

	pool.Recycle(b)
}

func TestPoolShrinkFractionBounds(t *testing.T) {
	pool := NewPool(PoolConfig{Width: 64, Height: 64, MinBuffers: 4, MaxBuffers: 10, MaxAvailable: 6})

	assert.Equal(t, 0, pool.Shrink(0))
	assert.Equal(t, 0, pool.Shrink(-1))
	assert.Equal(t, 4, pool.Available())

	// Fração acima de 1 é tratada como 1
	assert.Equal(t, 4, pool.Shrink(2.0))
	assert.Equal(t, 0, pool.Available())
}

func TestPoolEmergencyClear(t *testing.T) {
	pool := NewPool(PoolConfig{Width: 64, Height: 64, MinBuffers: 5, MaxBuffers: 10, MaxAvailable: 5})

	b, ok := pool.Acquire()
	assert.True(t, ok)

	freed := pool.EmergencyClear()
	assert.Equal(t, 4, freed)
	assert.Equal(t, 0, pool.Available())
	assert.Equal(t, 1, pool.InUse())

	// O buffer em uso continua válido e reciclável
	assert.True(t, pool.Recycle(b))
	assert.Equal(t, 1, pool.Available())
}

func TestPoolDrain(t *testing.T) {
	pool := NewPool(testPoolConfig())

	b, ok := pool.Acquire()
	assert.True(t, ok)

	pool.Drain()

	assert.Equal(t, 0, pool.Available())
	assert.Equal(t, 0, pool.InUse())

	// Devolução depois do drain é um no-op silencioso
	assert.False(t, pool.Recycle(b))
	assert.Equal(t, 0, pool.Available())
}

func TestPoolAllocFailure(t *testing.T) {
	calls := 0
	failingAlloc := func(size int) []byte {
		calls++
		if calls > 2 {
			return nil
		}
		return make([]byte, size)
	}

	pool := NewPoolWithAllocator(PoolConfig{
		Width: 64, Height: 64, MinBuffers: 4, MaxBuffers: 6, MaxAvailable: 4,
	}, failingAlloc)

	// Pré-carga sob-enche em silêncio: só 2 das 4 alocações funcionaram
	assert.Equal(t, 2, pool.Available())

	b1, ok := pool.Acquire()
	assert.True(t, ok)
	b2, ok := pool.Acquire()
	assert.True(t, ok)

	// Sem disponíveis e com alocador falhando, degrada para exaustão
	_, ok = pool.Acquire()
	assert.False(t, ok)
	assert.Equal(t, 2, pool.InUse())

	pool.Recycle(b1)
	pool.Recycle(b2)
}

func TestPoolSlotReuseInvalidatesOldHandle(t *testing.T) {
	pool := NewPool(PoolConfig{Width: 8, Height: 8, MinBuffers: 1, MaxBuffers: 2, MaxAvailable: 1})

	first, ok := pool.Acquire()
	assert.True(t, ok)
	pool.Drain()

	// O slot do buffer antigo é reaproveitado com geração nova
	second, ok := pool.Acquire()
	assert.True(t, ok)

	assert.False(t, pool.Recycle(first))
	assert.True(t, pool.Recycle(second))
}

func TestPoolConcurrentNoDoubleIssue(t *testing.T) {
	pool := NewPool(PoolConfig{Width: 64, Height: 64, MinBuffers: 5, MaxBuffers: 50, MaxAvailable: 25})

	const goroutines = 10
	const iterations = 100

	var mu sync.Mutex
	inFlight := make(map[Handle]bool)
	var wg sync.WaitGroup

	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				b, ok := pool.Acquire()
				if !ok {
					continue
				}

				mu.Lock()
				assert.False(t, inFlight[b.Handle()], "buffer emitido em dobro")
				inFlight[b.Handle()] = true
				mu.Unlock()

				mu.Lock()
				delete(inFlight, b.Handle())
				mu.Unlock()

				pool.Recycle(b)
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, 0, pool.InUse())
	assert.LessOrEqual(t, pool.Available(), 25)
}

func BenchmarkPoolAcquireRecycle(b *testing.B) {
	pool := NewPool(PoolConfig{Width: 640, Height: 480, MinBuffers: 4, MaxBuffers: 16, MaxAvailable: 8})

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		buf, ok := pool.Acquire()
		if ok {
			pool.Recycle(buf)
		}
	}
}
