package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/radioctl/internal/driver"
	"github.com/danmuck/radioctl/internal/history"
	"github.com/danmuck/radioctl/internal/protocol/session"
	"github.com/danmuck/radioctl/internal/queue"
	"github.com/danmuck/radioctl/internal/testutil/testlog"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	inflight  bool
	lastLimit int
}

func (s *stubSource) Stats() driver.Stats {
	return driver.Stats{
		Stats:     history.Stats{Transactions: 4, ByState: map[string]int{"success": 3, "failed": 1}},
		QueueSize: 2,
	}
}

func (s *stubSource) QueueSize() int { return 2 }

func (s *stubSource) QueueDepths() []queue.NodeDepth {
	return []queue.NodeDepth{{Node: 3, Depth: 2}}
}

func (s *stubSource) Inflight() (session.Snapshot, bool) {
	if !s.inflight {
		return session.Snapshot{}, false
	}
	return session.Snapshot{
		Node:     5,
		Priority: session.NodePriorityLo(5),
		Payload:  []byte{0x01, 0x02},
		State:    session.StateAwaitingAck,
		Start:    time.Now().Add(-time.Second),
		Retries:  1,
		Naks:     1,
	}, true
}

func (s *stubSource) History(limit int) []history.Entry {
	s.lastLimit = limit
	return []history.Entry{{Node: 5, State: "success"}}
}

func (s *stubSource) Trace(limit int) []history.Record {
	s.lastLimit = limit
	return []history.Record{{Dir: history.DirTx, Bytes: "0102"}}
}

func get(t *testing.T, srv *Server, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	srv.HTTPRouter().ServeHTTP(rr, req)
	var body map[string]any
	if strings.HasPrefix(rr.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	}
	return rr, body
}

func TestDiagnosticsRoutes(t *testing.T) {
	testlog.Start(t)
	src := &stubSource{}
	srv := New(":0", src, nil)

	rr, body := get(t, srv, "/health")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "ok", body["status"])

	rr, body = get(t, srv, "/stats")
	require.Equal(t, http.StatusOK, rr.Code)
	require.EqualValues(t, 4, body["transactions"])
	require.EqualValues(t, 2, body["queue_size"])

	rr, body = get(t, srv, "/queue")
	require.Equal(t, http.StatusOK, rr.Code)
	require.EqualValues(t, 2, body["size"])
	require.Len(t, body["nodes"], 1)

	_, body = get(t, srv, "/inflight")
	require.Equal(t, false, body["inflight"])
	src.inflight = true
	_, body = get(t, srv, "/inflight")
	require.Equal(t, true, body["inflight"])
	require.Equal(t, "awaiting_ack", body["state"])
	require.Equal(t, "0102", body["payload"])

	rr, body = get(t, srv, "/history?limit=7")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, 7, src.lastLimit)
	require.Len(t, body["entries"], 1)

	_, _ = get(t, srv, "/trace")
	require.Equal(t, defaultLimit, src.lastLimit)

	rr, _ = get(t, srv, "/history?limit=-1")
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestMetricsEndpointServesPrometheus(t *testing.T) {
	testlog.Start(t)
	srv := New(":0", &stubSource{}, []string{"http://localhost:5173"})
	get(t, srv, "/health")

	rr, _ := get(t, srv, "/metrics")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "radioctl_http_requests_total")
}
