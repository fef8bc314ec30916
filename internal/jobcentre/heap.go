package jobcentre

import "encoding/json"

type jobState int

const (
	jobReady jobState = iota
	jobHeld
	jobDeleted
)

// job is one broker-owned record. holder identifies the connection
// currently holding it (empty when not held).
type job struct {
	id      int64
	queue   string
	pri     int64
	payload json.RawMessage
	state   jobState
	holder  string
	index   int // maintained by jobHeap for O(log n) heap.Remove
}

// jobHeap orders by (-pri, id): highest priority first, ties broken by
// lower id.
type jobHeap []*job

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	if h[i].pri != h[j].pri {
		return h[i].pri > h[j].pri
	}
	return h[i].id < h[j].id
}

func (h jobHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *jobHeap) Push(x any) {
	j := x.(*job)
	j.index = len(*h)
	*h = append(*h, j)
}

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	j := old[n-1]
	old[n-1] = nil
	j.index = -1
	*h = old[:n-1]
	return j
}
