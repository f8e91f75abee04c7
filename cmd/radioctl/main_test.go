package main

import (
	"bytes"
	"testing"

	"github.com/danmuck/radioctl/internal/protocol/frame"
	"github.com/danmuck/radioctl/internal/protocol/session"
	"github.com/danmuck/radioctl/internal/testutil/testlog"
	"github.com/spf13/cobra"
)

func TestParseFunc(t *testing.T) {
	testlog.Start(t)
	for raw, want := range map[string]byte{"0x15": 0x15, "21": 21, " 0X13 ": 0x13} {
		got, err := parseFunc(raw)
		if err != nil || got != want {
			t.Fatalf("parseFunc(%q)=%#x,%v want %#x", raw, got, err, want)
		}
	}
	if _, err := parseFunc("0x100"); err == nil {
		t.Fatalf("out of range func accepted")
	}
}

func TestParseData(t *testing.T) {
	testlog.Start(t)
	got, err := parseData("05, 0x02,ff")
	if err != nil || !bytes.Equal(got, []byte{0x05, 0x02, 0xff}) {
		t.Fatalf("parseData=% x err=%v", got, err)
	}
	if got, err := parseData(""); err != nil || got != nil {
		t.Fatalf("empty data=% x err=%v", got, err)
	}
	if _, err := parseData("05,zz"); err == nil {
		t.Fatalf("bad byte accepted")
	}
}

func TestPickPriority(t *testing.T) {
	testlog.Start(t)
	if p := pickPriority(session.NoNode, true); p.Level != session.LevelExpedited {
		t.Fatalf("controller priority=%s", p)
	}
	if p := pickPriority(5, true); p.Level != session.LevelHigh || p.Node != 5 {
		t.Fatalf("high priority=%s", p)
	}
	if p := pickPriority(5, false); p.Level != session.LevelLow {
		t.Fatalf("low priority=%s", p)
	}
}

func TestSendFlagsBuildExpectation(t *testing.T) {
	testlog.Start(t)
	cmd := &cobra.Command{Use: "send"}
	addSendFlags(cmd)
	if err := cmd.Flags().Parse([]string{"--func", "0x15", "--expect-response", "--node", "7"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	req, err := parseSendFlags(cmd)
	if err != nil {
		t.Fatalf("parseSendFlags: %v", err)
	}
	if req.fn != 0x15 || req.priority.Node != 7 || req.expect == nil {
		t.Fatalf("unexpected request: %+v", req)
	}
	reply, _, _ := frame.Extract(frame.Response(0x15, 0x01))
	if !req.expect(reply) {
		t.Fatalf("expectation does not match response")
	}
}
