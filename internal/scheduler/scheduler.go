// Package scheduler implements the fixed worker pool described in the
// design's §4.7: a bounded number of workers pull jobs off a shared FIFO
// queue fed by the network layer, each job owning its session handle.
// Workers are interchangeable and carry no affinity to any particular
// session or database.
package scheduler

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Job is one unit of work a worker executes: parse/ACL/apply for a single
// request tuple against its owning session. The network layer builds the
// closure; the scheduler only owns when and on which goroutine it runs.
type Job func()

// Pool is a fixed-size worker pool draining a shared job queue until its
// context is canceled, at which point workers finish their current job and
// exit (no job in flight is interrupted -- see the design's cancellation
// model in §5).
type Pool struct {
	jobs chan Job
	grp  *errgroup.Group
}

// New starts a Pool of n workers pulling from a queue of the given
// capacity, all bound to ctx's lifetime.
func New(ctx context.Context, n, queueCap int) *Pool {
	grp, ctx := errgroup.WithContext(ctx)
	p := &Pool{jobs: make(chan Job, queueCap)}
	for i := 0; i < n; i++ {
		grp.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case job, ok := <-p.jobs:
					if !ok {
						return nil
					}
					job()
				}
			}
		})
	}
	p.grp = grp
	return p
}

// Submit enqueues job, blocking if the queue is full. It returns false if
// the pool's context has already been canceled, leaving job unrun.
func (p *Pool) Submit(ctx context.Context, job Job) bool {
	select {
	case p.jobs <- job:
		return true
	case <-ctx.Done():
		return false
	}
}

// Close stops accepting new jobs and waits for in-flight jobs to drain.
func (p *Pool) Close() error {
	close(p.jobs)
	return p.grp.Wait()
}
