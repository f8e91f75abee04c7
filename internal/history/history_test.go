package history

import (
	"testing"
	"time"

	"github.com/danmuck/radioctl/internal/protocol/frame"
	"github.com/danmuck/radioctl/internal/protocol/session"
	"github.com/danmuck/radioctl/internal/testutil/testlog"
)

func entry(node session.NodeID, state session.State, d time.Duration) Entry {
	start := time.Unix(100, 0)
	return Entry{Node: node, State: state.String(), Start: start, End: start.Add(d), Duration: d}
}

func TestFromResult(t *testing.T) {
	testlog.Start(t)
	start := time.Unix(10, 0)
	msg := &session.Message{Priority: session.NodePriorityLo(5), Payload: frame.Request(0x13, 0x05)}
	res := session.Result{
		Message: msg,
		State:   session.StateSuccess,
		Reply:   frame.Control(frame.ACK),
		Start:   start,
		End:     start.Add(40 * time.Millisecond),
		Retries: 2,
		Naks:    2,
	}
	e := FromResult(res)
	if e.Node != 5 || e.State != "success" || e.Reply != "ACK" {
		t.Fatalf("unexpected entry: %+v", e)
	}
	if e.Duration != 40*time.Millisecond || e.Retries != 2 || e.Error != "" {
		t.Fatalf("unexpected timings: %+v", e)
	}

	failed := FromResult(session.Result{Message: msg, State: session.StateFailed, Err: session.ErrRetriesExhausted})
	if failed.Error != session.ErrRetriesExhausted.Error() || failed.Reply != "" {
		t.Fatalf("unexpected failed entry: %+v", failed)
	}
}

func TestStoreEvictsOldestButKeepsAggregates(t *testing.T) {
	testlog.Start(t)
	s := NewStore(3)
	s.Add(entry(1, session.StateSuccess, 10*time.Millisecond))
	s.Add(entry(2, session.StateFailed, 20*time.Millisecond))
	s.Add(entry(1, session.StateSuccess, 30*time.Millisecond))
	s.Add(entry(2, session.StateTimedOut, 40*time.Millisecond))

	if s.Len() != 3 {
		t.Fatalf("len=%d", s.Len())
	}
	recent := s.Recent(0)
	if recent[0].Duration != 20*time.Millisecond || recent[2].Duration != 40*time.Millisecond {
		t.Fatalf("unexpected ring order: %+v", recent)
	}
	if got := s.Recent(1); len(got) != 1 || got[0].State != "timed_out" {
		t.Fatalf("unexpected tail: %+v", got)
	}

	st := s.Stats()
	if st.Transactions != 4 || st.MeanDuration != 25*time.Millisecond {
		t.Fatalf("unexpected stats: %+v", st)
	}
	if st.ByState["success"] != 2 || st.ByState["failed"] != 1 || st.ByState["timed_out"] != 1 {
		t.Fatalf("unexpected by_state: %+v", st.ByState)
	}
	if len(st.Nodes) != 2 || st.Nodes[0].Node != 1 || st.Nodes[1].Failures != 2 {
		t.Fatalf("unexpected node stats: %+v", st.Nodes)
	}
	if st.Nodes[0].MeanDuration != 20*time.Millisecond {
		t.Fatalf("node 1 mean=%v", st.Nodes[0].MeanDuration)
	}
}

func TestTraceRingWraps(t *testing.T) {
	testlog.Start(t)
	tr := NewTrace(3)
	if got := tr.Recent(10); len(got) != 0 {
		t.Fatalf("empty trace returned %d", len(got))
	}
	now := time.Now()
	for i := byte(0); i < 5; i++ {
		tr.Add(now, DirTx, []byte{i}, "")
	}
	got := tr.Recent(0)
	if len(got) != 3 || got[0].Bytes != "02" || got[2].Bytes != "04" {
		t.Fatalf("unexpected trace: %+v", got)
	}
	last := tr.Recent(2)
	if len(last) != 2 || last[0].Bytes != "03" {
		t.Fatalf("unexpected tail: %+v", last)
	}
}
