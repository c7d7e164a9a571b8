package reconciler

import "sync"

// mutationQueue serializes mutations for one cart. Each caller takes a ticket
// behind the current tail and waits for it, so execution order matches call
// order even when callers race.
type mutationQueue struct {
	mu   sync.Mutex
	tail chan struct{}
}

// do runs fn after every previously enqueued mutation has finished.
func (q *mutationQueue) do(fn func()) {
	q.mu.Lock()
	prev := q.tail
	done := make(chan struct{})
	q.tail = done
	q.mu.Unlock()

	if prev != nil {
		<-prev
	}
	defer close(done)
	fn()
}

// queueSet hands out one mutationQueue per key.
type queueSet struct {
	mu     sync.Mutex
	queues map[string]*mutationQueue
}

func newQueueSet() *queueSet {
	return &queueSet{queues: make(map[string]*mutationQueue)}
}

func (s *queueSet) get(key string) *mutationQueue {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queues[key]
	if !ok {
		q = &mutationQueue{}
		s.queues[key] = q
	}
	return q
}
