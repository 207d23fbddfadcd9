package session

import (
	"container/heap"

	"github.com/okian/pitchvision/internal/adapters/mq/worker"
)

// resultHeap is a min-heap of worker results keyed by frame index.
type resultHeap []worker.Result

func (h resultHeap) Len() int           { return len(h) }
func (h resultHeap) Less(i, j int) bool { return h[i].Index() < h[j].Index() }
func (h resultHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *resultHeap) Push(x any)        { *h = append(*h, x.(worker.Result)) }
func (h *resultHeap) Pop() any {
	old := *h
	n := len(old)
	r := old[n-1]
	old[n-1] = worker.Result{}
	*h = old[:n-1]
	return r
}

// reorderBuffer releases results strictly in frame order starting at 0.
type reorderBuffer struct {
	h    resultHeap
	next int
}

func (b *reorderBuffer) push(r worker.Result) {
	heap.Push(&b.h, r)
}

// pop returns the next in-order result if it has arrived.
func (b *reorderBuffer) pop() (worker.Result, bool) {
	if len(b.h) == 0 || b.h[0].Index() != b.next {
		return worker.Result{}, false
	}
	b.next++
	return heap.Pop(&b.h).(worker.Result), true
}

func (b *reorderBuffer) len() int { return len(b.h) }
