package history

import (
	"sort"
	"sync"
	"time"

	"github.com/danmuck/radioctl/internal/protocol/session"
)

// Entry is the immutable record of one resolved transaction.
type Entry struct {
	Node       session.NodeID `json:"node"`
	Priority   string         `json:"priority"`
	Request    string         `json:"request"`
	Reply      string         `json:"reply,omitempty"`
	State      string         `json:"state"`
	Error      string         `json:"error,omitempty"`
	Start      time.Time      `json:"start"`
	End        time.Time      `json:"end"`
	Duration   time.Duration  `json:"duration_ns"`
	Retries    int            `json:"retries"`
	Naks       int            `json:"naks"`
	Collisions int            `json:"collisions"`
}

// FromResult converts a terminal session result into a history entry.
func FromResult(res session.Result) Entry {
	e := Entry{
		State:      res.State.String(),
		Start:      res.Start,
		End:        res.End,
		Duration:   res.Duration(),
		Retries:    res.Retries,
		Naks:       res.Naks,
		Collisions: res.Collisions,
	}
	if res.Message != nil {
		e.Node = res.Message.Node()
		e.Priority = res.Message.Priority.String()
		e.Request = res.Message.String()
	}
	if !res.Reply.IsZero() {
		e.Reply = res.Reply.String()
	}
	if res.Err != nil {
		e.Error = res.Err.Error()
	}
	return e
}

// NodeStats aggregates transactions addressed to one destination.
type NodeStats struct {
	Node         session.NodeID `json:"node"`
	Transactions int            `json:"transactions"`
	Failures     int            `json:"failures"`
	MeanDuration time.Duration  `json:"mean_duration_ns"`
	total        time.Duration
}

// Stats is the cumulative view over every recorded transaction, including
// entries that already fell out of the bounded ring.
type Stats struct {
	Transactions int            `json:"transactions"`
	ByState      map[string]int `json:"by_state"`
	MeanDuration time.Duration  `json:"mean_duration_ns"`
	Retries      int            `json:"retries"`
	Naks         int            `json:"naks"`
	Collisions   int            `json:"collisions"`
	Nodes        []NodeStats    `json:"nodes"`
}

// Store keeps the most recent entries plus running aggregates.
type Store struct {
	mu         sync.RWMutex
	capacity   int
	entries    []Entry
	count      int
	byState    map[string]int
	total      time.Duration
	retries    int
	naks       int
	collisions int
	nodes      map[session.NodeID]*NodeStats
}

func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = session.DefaultConfig().HistorySize
	}
	return &Store{
		capacity: capacity,
		entries:  make([]Entry, 0, capacity),
		byState:  make(map[string]int),
		nodes:    make(map[session.NodeID]*NodeStats),
	}
}

// Add appends e, evicting the oldest entry once the store is full.
func (s *Store) Add(e Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == s.capacity {
		copy(s.entries, s.entries[1:])
		s.entries = s.entries[:len(s.entries)-1]
	}
	s.entries = append(s.entries, e)

	s.count++
	s.byState[e.State]++
	s.total += e.Duration
	s.retries += e.Retries
	s.naks += e.Naks
	s.collisions += e.Collisions

	ns, ok := s.nodes[e.Node]
	if !ok {
		ns = &NodeStats{Node: e.Node}
		s.nodes[e.Node] = ns
	}
	ns.Transactions++
	ns.total += e.Duration
	if e.State != session.StateSuccess.String() {
		ns.Failures++
	}
}

// Recent returns up to limit of the newest entries, oldest first. A limit of
// zero or less returns everything retained.
func (s *Store) Recent(limit int) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || len(s.entries) <= limit {
		out := make([]Entry, len(s.entries))
		copy(out, s.entries)
		return out
	}
	out := make([]Entry, limit)
	copy(out, s.entries[len(s.entries)-limit:])
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{
		Transactions: s.count,
		ByState:      make(map[string]int, len(s.byState)),
		Retries:      s.retries,
		Naks:         s.naks,
		Collisions:   s.collisions,
		Nodes:        make([]NodeStats, 0, len(s.nodes)),
	}
	for k, v := range s.byState {
		st.ByState[k] = v
	}
	if s.count > 0 {
		st.MeanDuration = s.total / time.Duration(s.count)
	}
	for _, ns := range s.nodes {
		out := *ns
		out.MeanDuration = ns.total / time.Duration(ns.Transactions)
		out.total = 0
		st.Nodes = append(st.Nodes, out)
	}
	sort.Slice(st.Nodes, func(i, j int) bool { return st.Nodes[i].Node < st.Nodes[j].Node })
	return st
}
