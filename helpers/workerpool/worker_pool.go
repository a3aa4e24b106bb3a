package workerpool

import "sync"

type WorkerPool struct {
	workQueue chan func()
	stop      chan struct{}
	stopOnce  sync.Once
	workers   sync.WaitGroup
}

func NewWorkerPool(poolSize int) *WorkerPool {
	if poolSize < 1 {
		poolSize = 1
	}

	pool := &WorkerPool{
		workQueue: make(chan func()),
		stop:      make(chan struct{}),
	}

	pool.workers.Add(poolSize)
	for i := 0; i < poolSize; i++ {
		go pool.startWorker()
	}

	return pool
}

// ScheduleWork blocks until a worker picks the work up. It returns false,
// dropping the work, once the pool has been stopped.
func (pool *WorkerPool) ScheduleWork(work func()) bool {
	select {
	case <-pool.stop:
		return false
	default:
	}

	select {
	case pool.workQueue <- work:
		return true
	case <-pool.stop:
		return false
	}
}

// StopWorkers waits for in-flight work to finish.
func (pool *WorkerPool) StopWorkers() {
	pool.stopOnce.Do(func() {
		close(pool.stop)
	})
	pool.workers.Wait()
}

func (pool *WorkerPool) startWorker() {
	defer pool.workers.Done()
	for {
		select {
		case work := <-pool.workQueue:
			work()
		case <-pool.stop:
			return
		}
	}
}
