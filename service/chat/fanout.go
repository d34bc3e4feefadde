package chat

import "sync"

type fanoutJob struct {
	conns   []*Client
	payload []byte
}

// Fanout decouples broadcast composition from socket writes: handlers submit
// (clients, payload) jobs and a fixed worker pool pushes them onto each
// client's send queue.
type Fanout struct {
	jobs     chan fanoutJob
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewFanout(workers, queue int) *Fanout {
	if workers <= 0 {
		workers = 4
	}
	if queue <= 0 {
		queue = 1024
	}
	f := &Fanout{jobs: make(chan fanoutJob, queue)}
	f.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer f.wg.Done()
			for job := range f.jobs {
				for _, c := range job.conns {
					c.enqueue(job.payload)
				}
			}
		}()
	}
	return f
}

func (f *Fanout) Broadcast(conns []*Client, payload []byte) {
	if len(conns) == 0 || len(payload) == 0 {
		return
	}
	f.jobs <- fanoutJob{conns: conns, payload: payload}
}

// Stop drains the queue and waits for the workers.
func (f *Fanout) Stop() {
	f.stopOnce.Do(func() { close(f.jobs) })
	f.wg.Wait()
}
