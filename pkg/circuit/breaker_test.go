package circuit

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// Encurta a janela de backoff para o teste não esperar o mínimo de 5s.
func shortenBackoff(cb *Breaker, d time.Duration) {
	cb.mu.Lock()
	cb.initialBackoff = d
	cb.currentBackoff = d
	cb.mu.Unlock()
}

func TestNewBreaker(t *testing.T) {
	breaker := NewBreaker("publisher", 3, 10*time.Second)

	assert.NotNil(t, breaker)
	assert.Equal(t, "publisher", breaker.name)
	assert.Equal(t, int64(3), breaker.maxFailures)
	assert.Equal(t, 10*time.Second, breaker.resetTimeout)
	assert.Equal(t, StateClosed, breaker.State())
}

func TestBreakerBackoffFloor(t *testing.T) {
	breaker := NewBreaker("publisher", 3, 100*time.Millisecond)

	// Janelas curtas demais são elevadas ao piso de 5s
	assert.Equal(t, 5*time.Second, breaker.initialBackoff)

	breaker = NewBreaker("publisher", 3, time.Minute)
	assert.Equal(t, 30*time.Second, breaker.initialBackoff)
}

func TestBreakerStateClosed(t *testing.T) {
	breaker := NewBreaker("publisher", 3, time.Second)

	err := breaker.Call(func() error {
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, StateClosed, breaker.State())
}

func TestBreakerOpensAfterMaxFailures(t *testing.T) {
	breaker := NewBreaker("publisher", 3, time.Second)

	for i := 0; i < 3; i++ {
		_ = breaker.Call(func() error {
			return errors.New("broker fora do ar")
		})
	}

	assert.Equal(t, StateOpen, breaker.State())

	// Aberto, nem executa a função
	executed := false
	err := breaker.Call(func() error {
		executed = true
		return nil
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker")
	assert.False(t, executed)
}

func TestBreakerHalfOpenAfterBackoff(t *testing.T) {
	breaker := NewBreaker("publisher", 2, time.Second)

	_ = breaker.Call(func() error { return errors.New("erro 1") })
	_ = breaker.Call(func() error { return errors.New("erro 2") })
	assert.Equal(t, StateOpen, breaker.State())

	shortenBackoff(breaker, 50*time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	assert.True(t, breaker.Allow())
	assert.Equal(t, StateHalfOpen, breaker.State())
}

func TestBreakerRecovery(t *testing.T) {
	breaker := NewBreaker("publisher", 2, time.Second)

	breaker.RecordFailure()
	breaker.RecordFailure()
	assert.Equal(t, StateOpen, breaker.State())

	shortenBackoff(breaker, 50*time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	assert.True(t, breaker.Allow())

	// Fecha de novo depois de halfOpenSuccesses sucessos seguidos
	for i := 0; i < breaker.halfOpenSuccesses; i++ {
		breaker.RecordSuccess()
	}

	assert.Equal(t, StateClosed, breaker.State())
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	breaker := NewBreaker("publisher", 2, time.Second)

	breaker.RecordFailure()
	breaker.RecordFailure()
	assert.Equal(t, StateOpen, breaker.State())

	shortenBackoff(breaker, 50*time.Millisecond)
	time.Sleep(100 * time.Millisecond)

	assert.True(t, breaker.Allow())
	assert.Equal(t, StateHalfOpen, breaker.State())

	breaker.RecordFailure()
	assert.Equal(t, StateOpen, breaker.State())
}

func TestBreakerBackoffGrows(t *testing.T) {
	breaker := NewBreaker("publisher", 1, time.Second)

	breaker.RecordFailure()
	assert.Equal(t, StateOpen, breaker.State())

	first := breaker.Stats().CurrentBackoff

	// Falha em half-open dobra a janela
	breaker.mu.Lock()
	breaker.state = StateHalfOpen
	breaker.mu.Unlock()
	breaker.RecordFailure()

	assert.Equal(t, 2*first, breaker.Stats().CurrentBackoff)
}

func TestBreakerStats(t *testing.T) {
	breaker := NewBreaker("publisher", 5, time.Second)

	breaker.RecordSuccess()
	breaker.RecordFailure()

	stats := breaker.Stats()

	assert.Equal(t, "publisher", stats.Name)
	assert.Equal(t, StateClosed, stats.State)
	assert.Equal(t, int64(1), stats.Failures)
	assert.Contains(t, stats.String(), "Circuit[publisher]")
}

func TestBreakerReset(t *testing.T) {
	breaker := NewBreaker("publisher", 2, time.Second)

	breaker.RecordFailure()
	breaker.RecordFailure()
	assert.Equal(t, StateOpen, breaker.State())

	breaker.Reset()

	assert.Equal(t, StateClosed, breaker.State())
	assert.Equal(t, int64(0), breaker.failures)
	assert.Equal(t, int64(0), breaker.successes)
}

func TestBreakerConcurrent(t *testing.T) {
	breaker := NewBreaker("publisher", 50, time.Second)

	done := make(chan bool)
	successCount := int64(0)
	failureCount := int64(0)

	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				if j%2 == 0 {
					breaker.RecordSuccess()
					atomic.AddInt64(&successCount, 1)
				} else {
					breaker.RecordFailure()
					atomic.AddInt64(&failureCount, 1)
				}
			}
			done <- true
		}()
	}

	for i := 0; i < 10; i++ {
		<-done
	}

	total := atomic.LoadInt64(&successCount) + atomic.LoadInt64(&failureCount)
	assert.Equal(t, int64(1000), total)
}

func BenchmarkBreakerCall(b *testing.B) {
	breaker := NewBreaker("publisher", 1000, 10*time.Second)

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		_ = breaker.Call(func() error {
			return nil
		})
	}
}
