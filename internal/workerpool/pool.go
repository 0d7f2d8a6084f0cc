// Package workerpool ограниченный пул воркеров, возвращающий future на результат.
package workerpool

import (
	"errors"

	"github.com/alitto/pond/v2"
)

// ErrStopped пул уже остановлен
var ErrStopped = errors.New("worker pool stopped")

// Pool выполняет не более concurrency задач одновременно. Порядок запуска
// примерно FIFO; если нужен строгий порядок, его кодируют в самих задачах.
type Pool[T any] struct {
	name string
	pool pond.ResultPool[T]
}

// New создаёт пул. concurrency < 1 означает 1.
func New[T any](name string, concurrency int) *Pool[T] {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Pool[T]{
		name: name,
		pool: pond.NewResultPool[T](concurrency),
	}
}

// Future результат задачи
type Future[T any] struct {
	result pond.Result[T]
	err    error
}

// Wait блокируется до завершения задачи
func (f Future[T]) Wait() (T, error) {
	if f.err != nil {
		var zero T
		return zero, f.err
	}
	return f.result.Wait()
}

// Done закрывается по завершении задачи
func (f Future[T]) Done() <-chan struct{} {
	if f.err != nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return f.result.Done()
}

// Queue передаёт задачу следующему свободному воркеру
func (p *Pool[T]) Queue(fn func() (T, error)) Future[T] {
	if p.pool.Stopped() {
		return Future[T]{err: ErrStopped}
	}
	return Future[T]{result: p.pool.SubmitErr(fn)}
}

// Name имя пула для логов и метрик
func (p *Pool[T]) Name() string { return p.name }

// Concurrency максимальное число одновременных задач
func (p *Pool[T]) Concurrency() int { return p.pool.MaxConcurrency() }

// Running число задач, выполняемых прямо сейчас
func (p *Pool[T]) Running() int64 { return p.pool.RunningWorkers() }

// Waiting число задач в очереди
func (p *Pool[T]) Waiting() uint64 { return p.pool.WaitingTasks() }

// Completed число завершённых задач
func (p *Pool[T]) Completed() uint64 { return p.pool.CompletedTasks() }

// Stop дожидается текущих задач и останавливает пул
func (p *Pool[T]) Stop() {
	p.pool.StopAndWait()
}
