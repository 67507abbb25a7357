package conversation

import (
	"log/slog"
	"sync"
)

// Serializer runs jobs one at a time per key, in submission order. Jobs of different keys run
// concurrently.
type Serializer struct {
	logger *slog.Logger
	mu     sync.Mutex
	queues map[string]*jobQueue
	wg     sync.WaitGroup
}

type jobQueue struct {
	jobs []func()
}

func NewSerializer(logger *slog.Logger) *Serializer {
	return &Serializer{
		logger: logger.With("module", "serializer"),
		queues: make(map[string]*jobQueue),
	}
}

// Go queues job behind every job already submitted for key.
func (s *Serializer) Go(key string, job func()) {
	s.mu.Lock()

	if queue, running := s.queues[key]; running {
		queue.jobs = append(queue.jobs, job)
		s.mu.Unlock()

		return
	}

	queue := &jobQueue{jobs: []func(){job}}
	s.queues[key] = queue
	s.wg.Add(1)
	s.mu.Unlock()

	go s.drain(key, queue)
}

// Wait blocks until every queued job has run.
func (s *Serializer) Wait() {
	s.wg.Wait()
}

func (s *Serializer) drain(key string, queue *jobQueue) {
	defer s.wg.Done()

	for {
		s.mu.Lock()
		if len(queue.jobs) == 0 {
			delete(s.queues, key)
			s.mu.Unlock()

			return
		}

		job := queue.jobs[0]
		queue.jobs[0] = nil
		queue.jobs = queue.jobs[1:]
		s.mu.Unlock()

		s.run(key, job)
	}
}

func (s *Serializer) run(key string, job func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job panicked", "key", key, "panic", r)
		}
	}()

	job()
}
