package state

import (
	"context"
	"log"
	"sync"
)

type mirrorJob struct {
	desc string
	run  func(ctx context.Context) error
}

// mirrorQueue runs remote favorites writes in submission order on a single
// background goroutine. Failures are logged and dropped.
type mirrorQueue struct {
	base context.Context

	mu      sync.Mutex
	cond    *sync.Cond
	jobs    []mirrorJob
	pending int
	running bool
}

func newMirrorQueue(base context.Context) *mirrorQueue {
	q := &mirrorQueue{base: base}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *mirrorQueue) push(desc string, run func(ctx context.Context) error) {
	q.mu.Lock()
	q.jobs = append(q.jobs, mirrorJob{desc: desc, run: run})
	q.pending++
	if !q.running {
		q.running = true
		go q.drain()
	}
	q.mu.Unlock()
}

func (q *mirrorQueue) drain() {
	for {
		q.mu.Lock()
		if len(q.jobs) == 0 {
			q.running = false
			q.mu.Unlock()
			return
		}
		job := q.jobs[0]
		q.jobs = q.jobs[1:]
		q.mu.Unlock()

		if err := job.run(q.base); err != nil {
			log.Printf("[state.favorites] WARN: remote %s failed: %v", job.desc, err)
		}

		q.mu.Lock()
		q.pending--
		if q.pending == 0 {
			q.cond.Broadcast()
		}
		q.mu.Unlock()
	}
}

// wait blocks until every job pushed so far has finished.
func (q *mirrorQueue) wait() {
	q.mu.Lock()
	for q.pending > 0 {
		q.cond.Wait()
	}
	q.mu.Unlock()
}
