package chat

import "sync"

type fanoutJob struct {
	conns   []*Client
	payload []byte
}

// Fanout spreads one payload across many session queues on a small
// worker pool, so a publish never blocks the caller.
type Fanout struct {
	jobs      chan fanoutJob
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewFanout(workers, queue int) *Fanout {
	if workers <= 0 {
		workers = 4
	}
	f := &Fanout{jobs: make(chan fanoutJob, queue)}
	f.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer f.wg.Done()
			for job := range f.jobs {
				for _, c := range job.conns {
					// Slow client: skip rather than stall the whole room
					_ = c.TrySend(job.payload)
				}
			}
		}()
	}
	return f
}

// Broadcast queues one delivery job. Safe to call during and after
// Close; a late publish (a bridge frame arriving mid-shutdown) is
// dropped instead of hitting the closed queue.
func (f *Fanout) Broadcast(conns []*Client, payload []byte) {
	if len(conns) == 0 || len(payload) == 0 {
		return
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return
	}
	f.jobs <- fanoutJob{conns: conns, payload: payload}
}

// Close stops the workers after the queue drains.
func (f *Fanout) Close() {
	f.closeOnce.Do(func() {
		f.mu.Lock()
		f.closed = true
		close(f.jobs)
		f.mu.Unlock()
	})
	f.wg.Wait()
}
