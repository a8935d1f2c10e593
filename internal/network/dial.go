package network

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/danmuck/armlink/internal/fault"
	"github.com/danmuck/armlink/internal/protocol/frame"
	"github.com/danmuck/armlink/internal/protocol/schema"
	"github.com/danmuck/armlink/internal/protocol/session"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Dial connects to the controller, opens the state socket and performs the
// Connect handshake. Only the TCP dial is retried.
func Dial(ctx context.Context, cfg Config) (*Conn, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, fault.Network("network.Dial", err)
	}
	tcp, err := dialWithRetry(ctx, cfg)
	if err != nil {
		return nil, fault.Network("network.Dial", err)
	}
	udpAddr, err := net.ResolveUDPAddr("udp", cfg.UDPAddress)
	if err != nil {
		_ = tcp.Close()
		return nil, fault.Network("network.Dial", err)
	}
	udp, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		_ = tcp.Close()
		return nil, fault.Network("network.Dial", err)
	}

	c := &Conn{
		id:        uuid.NewString(),
		cfg:       cfg.Session,
		tcp:       tcp,
		reader:    bufio.NewReader(tcp),
		udp:       udp,
		pending:   make(map[uint32][]session.Response),
		discarded: make(map[uint32]uint32),
		notify:    make(chan struct{}),
		states:    make(chan session.RobotState, 1),
		done:      make(chan struct{}),
		udpLocal:  udp.LocalAddr().(*net.UDPAddr),
	}
	version, err := c.handshake(ctx, cfg.Version)
	if err != nil {
		_ = tcp.Close()
		_ = udp.Close()
		return nil, err
	}
	c.version = version

	c.wg.Add(2)
	go c.readResponses()
	go c.readStates()
	log.Info().
		Str("session", c.id).
		Str("addr", cfg.Address).
		Int("udp_port", c.udpLocal.Port).
		Uint16("version", version).
		Msg("network.Dial connected")
	return c, nil
}

func dialWithRetry(ctx context.Context, cfg Config) (net.Conn, error) {
	dialer := net.Dialer{Timeout: cfg.Session.ConnectTimeout}
	var attempt int
	for {
		attempt++
		conn, err := dialer.DialContext(ctx, "tcp", cfg.Address)
		if err == nil {
			return conn, nil
		}
		log.Warn().Int("attempt", attempt).Str("addr", cfg.Address).Err(err).Msg("network.Dial attempt failed")
		if attempt >= cfg.Session.MaxConnectAttempts {
			return nil, err
		}
		timer := time.NewTimer(cfg.Session.Backoff.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

func (c *Conn) handshake(ctx context.Context, version uint16) (uint16, error) {
	const op = "network.Conn.handshake"
	deadline := time.Now().Add(c.cfg.HandshakeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = c.tcp.SetDeadline(deadline)
	defer func() { _ = c.tcp.SetDeadline(time.Time{}) }()

	req := session.ConnectRequest{Version: version, UDPPort: uint16(c.udpLocal.Port)}
	id := c.nextCommandID.Add(1)
	wire, err := session.EncodeRequestFrame(session.Request{Kind: schema.MsgConnect, CommandID: id, Fields: req.Fields()})
	if err != nil {
		return 0, fault.Network(op, err)
	}
	if _, err := c.tcp.Write(wire); err != nil {
		return 0, fault.Network(op, err)
	}
	f, err := frame.ReadFrame(c.reader, frame.DefaultLimits())
	if err != nil {
		return 0, fault.Network(op, err)
	}
	resp, err := session.DecodeResponseFrame(f)
	if err != nil {
		return 0, fault.Network(op, err)
	}
	if resp.Kind != schema.MsgConnect || resp.CommandID != id {
		return 0, fault.Protocol(op, fmt.Sprintf("unexpected %s response id=%d to Connect id=%d",
			schema.KindName(resp.Kind), resp.CommandID, id))
	}
	server, err := session.ConnectVersion(resp)
	if err != nil {
		return 0, fault.Network(op, err)
	}
	switch resp.Status {
	case schema.StatusSuccess:
		return server, nil
	case schema.StatusIncompatibleVersion:
		return 0, fault.Network(op, fmt.Errorf("%w: controller=%d client=%d", ErrIncompatibleVersion, server, version))
	default:
		return 0, fault.Protocol(op, fmt.Sprintf("unexpected Connect status %d", resp.Status))
	}
}

func isClosedErr(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
