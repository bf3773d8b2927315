package worker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/T3-Labs/edge-framepool/pkg/logger"
	"github.com/T3-Labs/edge-framepool/pkg/metrics"
)

type Job interface {
	Process(ctx context.Context) error
	GetID() string
}

// Pool executa jobs em um número fixo de workers com fila limitada.
// O simulador usa para tirar o transform de frame do tick de captura.
type Pool struct {
	name       string
	jobs       chan Job
	workers    int
	ctx        context.Context
	cancel     context.CancelFunc
	processing int32

	totalProcessed int64
	totalErrors    int64
}

func NewPool(ctx context.Context, name string, workers int, bufferSize int) *Pool {
	ctx, cancel := context.WithCancel(ctx)

	pool := &Pool{
		name:    name,
		jobs:    make(chan Job, bufferSize),
		workers: workers,
		ctx:     ctx,
		cancel:  cancel,
	}

	for i := 0; i < workers; i++ {
		go pool.worker()
	}

	go pool.reportLoop()

	if logger.Log != nil {
		logger.Log.Infow("Worker pool inicializado",
			"name", name,
			"workers", workers,
			"buffer_size", bufferSize)
	}

	return pool
}

func (p *Pool) worker() {
	for {
		select {
		case <-p.ctx.Done():
			return

		case job, ok := <-p.jobs:
			if !ok {
				return
			}

			atomic.AddInt32(&p.processing, 1)
			err := job.Process(p.ctx)
			atomic.AddInt32(&p.processing, -1)
			atomic.AddInt64(&p.totalProcessed, 1)

			if err != nil {
				count := atomic.AddInt64(&p.totalErrors, 1)
				if count%100 == 1 && logger.Log != nil {
					logger.Log.Warnw("Erro em job do worker pool",
						"pool", p.name,
						"job_id", job.GetID(),
						"total_errors", count,
						"error", err)
				}
			}
		}
	}
}

func (p *Pool) reportLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return

		case <-ticker.C:
			metrics.WorkerPoolQueueSize.WithLabelValues(p.name).Set(float64(len(p.jobs)))
			metrics.WorkerPoolProcessing.WithLabelValues(p.name).Set(float64(atomic.LoadInt32(&p.processing)))
		}
	}
}

func (p *Pool) Submit(job Job) error {
	select {
	case p.jobs <- job:
		return nil
	case <-p.ctx.Done():
		return fmt.Errorf("pool fechado")
	default:
		return fmt.Errorf("buffer cheio")
	}
}

func (p *Pool) SubmitNonBlocking(job Job) bool {
	select {
	case p.jobs <- job:
		return true
	default:
		return false
	}
}

func (p *Pool) Close() {
	close(p.jobs)

	timeout := time.After(5 * time.Second)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-timeout:
			if logger.Log != nil {
				logger.Log.Warnw("Timeout no fechamento do worker pool",
					"pool", p.name,
					"processing", atomic.LoadInt32(&p.processing))
			}
			p.cancel()
			return

		case <-ticker.C:
			if atomic.LoadInt32(&p.processing) == 0 {
				p.cancel()
				return
			}
		}
	}
}

func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Name:           p.name,
		Workers:        p.workers,
		QueueSize:      len(p.jobs),
		Processing:     int(atomic.LoadInt32(&p.processing)),
		Capacity:       cap(p.jobs),
		TotalProcessed: atomic.LoadInt64(&p.totalProcessed),
		TotalErrors:    atomic.LoadInt64(&p.totalErrors),
	}
}

type PoolStats struct {
	Name           string
	Workers        int
	QueueSize      int
	Processing     int
	Capacity       int
	TotalProcessed int64
	TotalErrors    int64
}

func (ps PoolStats) String() string {
	return fmt.Sprintf("Workers: %d, Queue: %d/%d, Processing: %d, Total: %d (erros: %d)",
		ps.Workers, ps.QueueSize, ps.Capacity, ps.Processing, ps.TotalProcessed, ps.TotalErrors)
}
