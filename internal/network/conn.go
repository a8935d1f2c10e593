package network

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/armlink/internal/fault"
	"github.com/danmuck/armlink/internal/observability"
	"github.com/danmuck/armlink/internal/protocol/frame"
	"github.com/danmuck/armlink/internal/protocol/schema"
	"github.com/danmuck/armlink/internal/protocol/session"
	"github.com/danmuck/armlink/internal/protocol/tlv"
	"github.com/rs/zerolog/log"
)

// Conn is one live controller session. Response and state reads may be called
// from one goroutine while the background readers run.
type Conn struct {
	id      string
	cfg     session.Config
	version uint16

	tcp     net.Conn
	reader  *bufio.Reader
	writeMu sync.Mutex

	udp      *net.UDPConn
	udpLocal *net.UDPAddr
	udpPeer  atomic.Pointer[net.UDPAddr]
	states   chan session.RobotState

	nextCommandID atomic.Uint32

	mu sync.Mutex
	// pending queues responses per command id. Move is answered twice.
	pending map[uint32][]session.Response
	// discarded holds ids whose terminal response is dropped on arrival.
	discarded map[uint32]uint32
	notify    chan struct{}

	abortOnce sync.Once
	done      chan struct{}
	err       error
	closing   atomic.Bool
	wg        sync.WaitGroup
}

func (c *Conn) ID() string      { return c.id }
func (c *Conn) Version() uint16 { return c.version }

// UDPPort is the local port announced to the controller in Connect.
func (c *Conn) UDPPort() int { return c.udpLocal.Port }

// Err returns the fault that ended the session, or nil while it is healthy.
func (c *Conn) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

func (c *Conn) Close() error {
	c.closing.Store(true)
	c.abort("close", fault.Network("network.Conn.Close", ErrClosed))
	tcpErr := c.tcp.Close()
	udpErr := c.udp.Close()
	c.wg.Wait()
	if tcpErr != nil && !isClosedErr(tcpErr) {
		return tcpErr
	}
	if udpErr != nil && !isClosedErr(udpErr) {
		return udpErr
	}
	return nil
}

func (c *Conn) abort(channel string, err error) {
	c.abortOnce.Do(func() {
		c.err = err
		close(c.done)
		if !c.closing.Load() {
			observability.RecordSessionAbort(channel)
			log.Error().Str("session", c.id).Str("channel", channel).Err(err).Msg("network.Conn aborted")
		}
		_ = c.tcp.Close()
		_ = c.udp.Close()
	})
}

// SendRequest writes one command request and returns its command id.
func (c *Conn) SendRequest(ctx context.Context, kind uint32, fields []tlv.Field) (uint32, error) {
	const op = "network.Conn.SendRequest"
	if err := c.Err(); err != nil {
		return 0, err
	}
	id := c.nextCommandID.Add(1)
	wire, err := session.EncodeRequestFrame(session.Request{Kind: kind, CommandID: id, Fields: fields})
	if err != nil {
		return 0, fault.Protocol(op, err.Error())
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.tcp.SetWriteDeadline(c.deadline(ctx, c.cfg.WriteTimeout)); err != nil {
		return 0, c.fail(op, "tcp", err)
	}
	if _, err := c.tcp.Write(wire); err != nil {
		return 0, c.fail(op, "tcp", err)
	}
	log.Debug().Str("session", c.id).Str("kind", schema.KindName(kind)).Uint32("command_id", id).Msg(op)
	return id, nil
}

// BlockingReceiveResponse waits for the response to command id.
func (c *Conn) BlockingReceiveResponse(ctx context.Context, kind, id uint32) (session.Response, error) {
	const op = "network.Conn.BlockingReceiveResponse"
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ResponseTimeout)
	defer cancel()
	for {
		resp, ok, err := c.take(op, kind, id)
		if ok || err != nil {
			return resp, err
		}
		c.mu.Lock()
		wait := c.notify
		arrived := len(c.pending[id]) > 0
		c.mu.Unlock()
		if arrived {
			continue
		}
		select {
		case <-wait:
		case <-c.done:
			if resp, ok, err := c.take(op, kind, id); ok || err != nil {
				return resp, err
			}
			return session.Response{}, c.err
		case <-ctx.Done():
			return session.Response{}, c.fail(op, "tcp", fmt.Errorf("waiting for %s response id=%d: %w",
				schema.KindName(kind), id, ctx.Err()))
		}
	}
}

// TryReceiveResponse returns the response to command id if it already arrived.
func (c *Conn) TryReceiveResponse(kind, id uint32) (session.Response, bool, error) {
	resp, ok, err := c.take("network.Conn.TryReceiveResponse", kind, id)
	if ok || err != nil {
		return resp, ok, err
	}
	return session.Response{}, false, c.Err()
}

// Discard drops the responses to command id, queued now or arriving later,
// up to and including its terminal one.
func (c *Conn) Discard(kind, id uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	terminal := false
	for _, resp := range c.pending[id] {
		if resp.Kind == kind && resp.Status != schema.StatusMotionStarted {
			terminal = true
		}
	}
	delete(c.pending, id)
	if !terminal {
		c.discarded[id] = kind
	}
}

func (c *Conn) take(op string, kind, id uint32) (session.Response, bool, error) {
	c.mu.Lock()
	queue := c.pending[id]
	var resp session.Response
	ok := len(queue) > 0
	if ok {
		resp = queue[0]
		if len(queue) == 1 {
			delete(c.pending, id)
		} else {
			c.pending[id] = queue[1:]
		}
	}
	c.mu.Unlock()
	if !ok {
		return session.Response{}, false, nil
	}
	if resp.Kind != kind {
		err := fault.Protocol(op, fmt.Sprintf("command id=%d answered as %s, expected %s",
			id, schema.KindName(resp.Kind), schema.KindName(kind)))
		c.abort("tcp", err)
		return session.Response{}, false, err
	}
	return resp, true, nil
}

// SendRobotCommand sends one command datagram to the controller's state endpoint.
func (c *Conn) SendRobotCommand(ctx context.Context, cmd session.RobotCommand) error {
	const op = "network.Conn.SendRobotCommand"
	if err := c.Err(); err != nil {
		return err
	}
	peer := c.udpPeer.Load()
	if peer == nil {
		return fault.Network(op, ErrNoStatePeer)
	}
	wire, err := session.EncodeCommandDatagram(cmd)
	if err != nil {
		return fault.Protocol(op, err.Error())
	}
	if err := c.udp.SetWriteDeadline(c.deadline(ctx, c.cfg.WriteTimeout)); err != nil {
		return c.fail(op, "udp", err)
	}
	if _, err := c.udp.WriteToUDP(wire, peer); err != nil {
		return c.fail(op, "udp", err)
	}
	return nil
}

// ReceiveState returns the newest state datagram, waiting for one if none is buffered.
func (c *Conn) ReceiveState(ctx context.Context) (session.RobotState, error) {
	const op = "network.Conn.ReceiveState"
	select {
	case s := <-c.states:
		return s, nil
	default:
	}
	timer := time.NewTimer(c.cfg.StateTimeout)
	defer timer.Stop()
	select {
	case s := <-c.states:
		return s, nil
	case <-c.done:
		return session.RobotState{}, c.err
	case <-ctx.Done():
		return session.RobotState{}, fault.Network(op, ctx.Err())
	case <-timer.C:
		return session.RobotState{}, c.fail(op, "udp", fmt.Errorf("no state within %s", c.cfg.StateTimeout))
	}
}

func (c *Conn) fail(op, channel string, err error) error {
	ferr := fault.Network(op, err)
	c.abort(channel, ferr)
	return c.err
}

func (c *Conn) deadline(ctx context.Context, d time.Duration) time.Time {
	deadline := time.Now().Add(d)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	return deadline
}

func (c *Conn) readResponses() {
	defer c.wg.Done()
	const op = "network.Conn.readResponses"
	for {
		f, err := frame.ReadFrame(c.reader, frame.DefaultLimits())
		if err != nil {
			c.abort("tcp", fault.Network(op, err))
			return
		}
		resp, err := session.DecodeResponseFrame(f)
		if err != nil {
			c.abort("tcp", fault.Network(op, err))
			return
		}
		c.mu.Lock()
		if kind, ok := c.discarded[resp.CommandID]; ok && kind == resp.Kind {
			if resp.Status != schema.StatusMotionStarted {
				delete(c.discarded, resp.CommandID)
			}
			c.mu.Unlock()
			log.Debug().
				Str("session", c.id).
				Uint32("command_id", resp.CommandID).
				Msg("network.Conn.readResponses discarded")
			continue
		}
		c.pending[resp.CommandID] = append(c.pending[resp.CommandID], resp)
		close(c.notify)
		c.notify = make(chan struct{})
		c.mu.Unlock()
		log.Debug().
			Str("session", c.id).
			Str("kind", schema.KindName(resp.Kind)).
			Uint32("command_id", resp.CommandID).
			Uint8("status", resp.Status).
			Msg(op)
	}
}

func (c *Conn) readStates() {
	defer c.wg.Done()
	const op = "network.Conn.readStates"
	buf := make([]byte, 64*1024)
	for {
		n, from, err := c.udp.ReadFromUDP(buf)
		if err != nil {
			c.abort("udp", fault.Network(op, err))
			return
		}
		s, err := session.DecodeStateDatagram(buf[:n])
		if err != nil {
			c.abort("udp", fault.Network(op, err))
			return
		}
		if peer := c.udpPeer.Load(); peer == nil || !peer.IP.Equal(from.IP) || peer.Port != from.Port {
			c.udpPeer.Store(from)
		}
		select {
		case <-c.states:
			observability.RecordStaleState()
		default:
		}
		c.states <- s
	}
}
