package usecase

import "github.com/wechatter/qq-bot-bridge/internal/biz/domain"

// DeferredBuffer holds requests that could not be sent for lack of a usable
// reply token. Requests in it carry no token; a fresh token releases a batch
// of them back into the live queue.
type DeferredBuffer struct {
	kind domain.SurfaceKind
	fifo requestFIFO
}

// NewDeferredBuffer creates an empty buffer for kind
func NewDeferredBuffer(kind domain.SurfaceKind) *DeferredBuffer {
	return &DeferredBuffer{kind: kind}
}

// Push appends req. A token-bearing request is marked delayed first.
func (b *DeferredBuffer) Push(req *domain.SendRequest) {
	if req.HasToken() {
		req.MarkDelayed()
	}
	b.fifo.push(req)
}

// Drain removes up to max requests from the front in arrival order
func (b *DeferredBuffer) Drain(max int) []*domain.SendRequest {
	return b.fifo.popN(max)
}

// Len returns the number of buffered requests
func (b *DeferredBuffer) Len() int {
	return b.fifo.len()
}
