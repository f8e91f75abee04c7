package queue

import (
	"container/heap"
	"context"
	"sort"
	"sync"

	"github.com/danmuck/radioctl/internal/protocol/session"
	"github.com/puzpuzpuz/xsync/v3"
)

// entry is one queued message with its resolved ordering key.
type entry struct {
	prio  session.Priority
	order uint64 // insertion order, breaks exact key ties
	msg   *session.Message
	index int
}

// entryHeap implements heap.Interface ordered by (level, seq, node, order).
type entryHeap []*entry

func (h entryHeap) Len() int { return len(h) }

func (h entryHeap) Less(i, j int) bool {
	if h[i].prio != h[j].prio {
		return h[i].prio.Less(h[j].prio)
	}
	return h[i].order < h[j].order
}

func (h entryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *entryHeap) Push(x interface{}) {
	e := x.(*entry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil // avoid memory leak
	e.index = -1
	*h = old[:n-1]
	return e
}

// Outbound orders not-yet-sent messages by priority level and, within the
// fair levels, round-robin across destinations.
//
// Each fair level keeps a per-destination counter and a level-wide floor. A
// Put advances its destination's counter to max(counter+1, floor), and a Get
// raises the floor to the served counter. Destinations with smaller counters
// are therefore served first, and a destination that was idle joins at the
// floor instead of jumping the line. Counters and floors reset once the queue
// drains. Non-fair levels use one global counter, which makes them FIFO.
type Outbound struct {
	mu      sync.Mutex
	items   entryHeap
	counts  map[session.Level]map[session.NodeID]uint64
	floors  map[session.Level]uint64
	counter uint64
	order   uint64
	perNode *xsync.MapOf[session.NodeID, int]
	notify  chan struct{}
}

func NewOutbound() *Outbound {
	return &Outbound{
		items:   make(entryHeap, 0),
		counts:  make(map[session.Level]map[session.NodeID]uint64),
		floors:  make(map[session.Level]uint64),
		perNode: xsync.NewMapOf[session.NodeID, int](),
		notify:  make(chan struct{}, 1),
	}
}

// Put enqueues msg and returns the priority it was filed under. It never
// blocks.
func (q *Outbound) Put(prio session.Priority, msg *session.Message) session.Priority {
	q.mu.Lock()
	level := prio.Level
	if level.Fair() {
		nodes, ok := q.counts[level]
		if !ok {
			nodes = make(map[session.NodeID]uint64)
			q.counts[level] = nodes
		}
		seq := nodes[prio.Node] + 1
		if floor := q.floors[level]; seq < floor {
			seq = floor
		}
		nodes[prio.Node] = seq
		prio.Seq = seq
	} else {
		prio.Seq = q.counter
		q.counter++
	}
	q.order++
	heap.Push(&q.items, &entry{prio: prio, order: q.order, msg: msg})
	q.perNode.Compute(prio.Node, func(old int, _ bool) (int, bool) {
		return old + 1, false
	})
	q.mu.Unlock()

	q.signal()
	return prio
}

// Get removes and returns the lowest-ordered message, blocking while the
// queue is empty.
func (q *Outbound) Get(ctx context.Context) (*session.Message, session.Priority, error) {
	for {
		if msg, prio, ok := q.TryGet(); ok {
			return msg, prio, nil
		}
		select {
		case <-ctx.Done():
			return nil, session.Priority{}, ctx.Err()
		case <-q.notify:
		}
	}
}

// TryGet is the non-blocking form of Get.
func (q *Outbound) TryGet() (*session.Message, session.Priority, bool) {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		return nil, session.Priority{}, false
	}
	e := heap.Pop(&q.items).(*entry)
	if e.prio.Level.Fair() {
		q.floors[e.prio.Level] = e.prio.Seq
	}
	q.perNode.Compute(e.prio.Node, func(old int, _ bool) (int, bool) {
		return old - 1, old <= 1
	})
	remaining := len(q.items)
	if remaining == 0 {
		q.counts = make(map[session.Level]map[session.NodeID]uint64)
		q.floors = make(map[session.Level]uint64)
	}
	q.mu.Unlock()

	if remaining > 0 {
		// pass the wakeup on to any other waiting consumer
		q.signal()
	}
	return e.msg, e.prio, true
}

func (q *Outbound) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Len returns the total number of queued messages.
func (q *Outbound) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// LenForNode returns the number of queued messages for one destination.
func (q *Outbound) LenForNode(n session.NodeID) int {
	v, _ := q.perNode.Load(n)
	return v
}

// NodeDepth is one destination's queue depth.
type NodeDepth struct {
	Node  session.NodeID `json:"node"`
	Depth int            `json:"depth"`
}

// Depths returns every destination with queued messages, sorted by node.
func (q *Outbound) Depths() []NodeDepth {
	out := make([]NodeDepth, 0)
	q.perNode.Range(func(n session.NodeID, depth int) bool {
		if depth > 0 {
			out = append(out, NodeDepth{Node: n, Depth: depth})
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Node < out[j].Node })
	return out
}
