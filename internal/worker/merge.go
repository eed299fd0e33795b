package worker

import (
	"container/heap"

	"github.com/AmiBuch/flowmr/internal/mapreduce"
)

// run is one intermediate partition's records, already sorted by key.
type run struct {
	kvs []mapreduce.KV
	pos int
}

func (r *run) peek() (mapreduce.KV, bool) {
	if r.pos >= len(r.kvs) {
		return mapreduce.KV{}, false
	}
	return r.kvs[r.pos], true
}

// runHeap orders runs by their current head key — the same container/heap
// idiom internal/task/queue.go uses for FIFO-by-index ordering, applied
// here to k-way merge the M map outputs for one reduce partition. The
// runs are in-memory slices; the merge itself does not bound memory.
type runHeap []*run

func (h runHeap) Len() int { return len(h) }
func (h runHeap) Less(i, j int) bool {
	a, _ := h[i].peek()
	b, _ := h[j].peek()
	return a.Key < b.Key
}
func (h runHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *runHeap) Push(x interface{}) {
	*h = append(*h, x.(*run))
}
func (h *runHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// mergeByKey k-way merges already-sorted runs, invoking emit once per
// contiguous key group with every value in that group — the
// reducer(key, values_iter) contract of spec.md 4.5.
func mergeByKey(runs []*run, emit func(key string, values []string)) {
	h := make(runHeap, 0, len(runs))
	for _, r := range runs {
		if _, ok := r.peek(); ok {
			h = append(h, r)
		}
	}
	heap.Init(&h)

	var curKey string
	var curValues []string
	first := true

	for h.Len() > 0 {
		r := h[0]
		kv, _ := r.peek()
		r.pos++
		if _, ok := r.peek(); ok {
			heap.Fix(&h, 0)
		} else {
			heap.Pop(&h)
		}

		if first || kv.Key != curKey {
			if !first {
				emit(curKey, curValues)
			}
			curKey = kv.Key
			curValues = nil
			first = false
		}
		curValues = append(curValues, kv.Value)
	}
	if !first {
		emit(curKey, curValues)
	}
}
