package statelog

import (
	"testing"

	"github.com/danmuck/armlink/internal/protocol/session"
	"github.com/danmuck/armlink/internal/robot"
)

func state(id uint64) robot.State { return robot.State{MessageID: id} }

func TestRingOverwritesOldest(t *testing.T) {
	l := New(3)
	for id := uint64(1); id <= 5; id++ {
		l.Log(state(id), nil)
	}
	recs := l.Records()
	if len(recs) != 3 || l.Len() != 3 {
		t.Fatalf("len: records=%d Len=%d", len(recs), l.Len())
	}
	for i, want := range []uint64{3, 4, 5} {
		if recs[i].State.MessageID != want {
			t.Fatalf("record %d: got=%d want=%d", i, recs[i].State.MessageID, want)
		}
	}
}

func TestPartialRingKeepsOrder(t *testing.T) {
	l := New(4)
	l.Log(state(1), nil)
	l.Log(state(2), nil)
	recs := l.Records()
	if len(recs) != 2 || recs[0].State.MessageID != 1 || recs[1].State.MessageID != 2 {
		t.Fatalf("unexpected records: %+v", recs)
	}
}

func TestCommandIsCopied(t *testing.T) {
	l := New(2)
	cmd := &session.RobotCommand{MessageID: 7, HasMotion: true}
	l.Log(state(8), cmd)
	cmd.MessageID = 99
	recs := l.Records()
	if recs[0].Command == nil || recs[0].Command.MessageID != 7 {
		t.Fatalf("command aliased caller memory: %+v", recs[0].Command)
	}
}

func TestZeroSizeDisables(t *testing.T) {
	l := New(0)
	l.Log(state(1), nil)
	if l.Len() != 0 || len(l.Records()) != 0 || l.Cap() != 0 {
		t.Fatalf("disabled log recorded")
	}
}

func TestReset(t *testing.T) {
	l := New(2)
	l.Log(state(1), nil)
	l.Log(state(2), nil)
	l.Log(state(3), nil)
	l.Reset()
	if l.Len() != 0 {
		t.Fatalf("len after reset: %d", l.Len())
	}
	l.Log(state(4), nil)
	if recs := l.Records(); len(recs) != 1 || recs[0].State.MessageID != 4 {
		t.Fatalf("records after reset: %+v", recs)
	}
}

var _ robot.StateLogger = (*Log)(nil)
