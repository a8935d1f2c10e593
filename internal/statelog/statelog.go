// Package statelog keeps a bounded history of exchanged cycles for
// post-mortem inspection after a motion fault.
package statelog

import (
	"sync"

	"github.com/danmuck/armlink/internal/protocol/session"
	"github.com/danmuck/armlink/internal/robot"
)

// Record is one received state and the command sent in the same cycle, if any.
type Record struct {
	State   robot.State
	Command *session.RobotCommand
}

// Log is a fixed-size ring. A zero size disables recording.
type Log struct {
	mu      sync.Mutex
	records []Record
	next    int
	full    bool
}

func New(size int) *Log {
	if size < 0 {
		size = 0
	}
	return &Log{records: make([]Record, size)}
}

// Log overwrites the oldest record once the ring is full.
func (l *Log) Log(state robot.State, cmd *session.RobotCommand) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.records) == 0 {
		return
	}
	var c *session.RobotCommand
	if cmd != nil {
		cp := *cmd
		c = &cp
	}
	l.records[l.next] = Record{State: state, Command: c}
	l.next++
	if l.next == len(l.records) {
		l.next = 0
		l.full = true
	}
}

// Records returns a copy ordered oldest to newest.
func (l *Log) Records() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.full {
		return append([]Record(nil), l.records[:l.next]...)
	}
	out := make([]Record, 0, len(l.records))
	out = append(out, l.records[l.next:]...)
	return append(out, l.records[:l.next]...)
}

func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.full {
		return len(l.records)
	}
	return l.next
}

func (l *Log) Cap() int { return len(l.records) }

func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	clear(l.records)
	l.next = 0
	l.full = false
}
