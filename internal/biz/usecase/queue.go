package usecase

import "github.com/wechatter/qq-bot-bridge/internal/biz/domain"

// requestFIFO is an unbounded first-in first-out list of send requests
type requestFIFO struct {
	items []*domain.SendRequest
}

func (f *requestFIFO) push(req *domain.SendRequest) {
	f.items = append(f.items, req)
}

func (f *requestFIFO) pop() *domain.SendRequest {
	if len(f.items) == 0 {
		return nil
	}
	req := f.items[0]
	f.items[0] = nil
	f.items = f.items[1:]
	return req
}

// popN removes up to n requests from the front, keeping their order
func (f *requestFIFO) popN(n int) []*domain.SendRequest {
	if n > len(f.items) {
		n = len(f.items)
	}
	if n <= 0 {
		return nil
	}
	out := make([]*domain.SendRequest, n)
	copy(out, f.items[:n])
	clear(f.items[:n])
	f.items = f.items[n:]
	return out
}

func (f *requestFIFO) len() int {
	return len(f.items)
}

// ChannelQueue is the delivery queue of one surface kind.
// Only the dispatch loop reads or writes it.
type ChannelQueue struct {
	kind domain.SurfaceKind
	fifo requestFIFO
}

// NewChannelQueue creates an empty queue for kind
func NewChannelQueue(kind domain.SurfaceKind) *ChannelQueue {
	return &ChannelQueue{kind: kind}
}

// Kind returns the surface kind served by the queue
func (q *ChannelQueue) Kind() domain.SurfaceKind {
	return q.kind
}

// Push appends req at the tail
func (q *ChannelQueue) Push(req *domain.SendRequest) {
	q.fifo.push(req)
}

// Pop removes the head, or returns nil when the queue is empty
func (q *ChannelQueue) Pop() *domain.SendRequest {
	return q.fifo.pop()
}

// Len returns the number of pending requests
func (q *ChannelQueue) Len() int {
	return q.fifo.len()
}
