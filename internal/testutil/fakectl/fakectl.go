// Package fakectl is a scripted controller peer for transport tests.
package fakectl

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/danmuck/armlink/internal/protocol/frame"
	"github.com/danmuck/armlink/internal/protocol/schema"
	"github.com/danmuck/armlink/internal/protocol/session"
	"github.com/danmuck/armlink/internal/protocol/tlv"
	"github.com/rs/zerolog/log"
)

var ErrNotConnected = errors.New("fakectl: no client connected")

type Config struct {
	// Version is reported in every Connect response.
	Version uint16
	// Accept decides the Connect status. Nil accepts only Version.
	Accept func(clientVersion uint16) uint8
}

// Server accepts one client session at a time.
type Server struct {
	cfg Config
	ln  net.Listener
	udp *net.UDPConn

	mu         sync.Mutex
	conn       net.Conn
	clientUDP  *net.UDPAddr
	connected  chan struct{}
	requests   chan session.Request
	commands   chan session.RobotCommand
	connectReq session.ConnectRequest

	wg sync.WaitGroup
}

func New(cfg Config) (*Server, error) {
	if cfg.Version == 0 {
		cfg.Version = session.ProtocolVersion
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	udp, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		_ = ln.Close()
		return nil, err
	}
	s := &Server{
		cfg:       cfg,
		ln:        ln,
		udp:       udp,
		connected: make(chan struct{}),
		requests:  make(chan session.Request, 64),
		commands:  make(chan session.RobotCommand, 256),
	}
	s.wg.Add(2)
	go s.acceptLoop()
	go s.readCommands()
	return s, nil
}

func (s *Server) Addr() string { return s.ln.Addr().String() }

// Requests yields every non-Connect request in arrival order.
func (s *Server) Requests() <-chan session.Request { return s.requests }

// Commands yields every command datagram in arrival order.
func (s *Server) Commands() <-chan session.RobotCommand { return s.commands }

// WaitConnected blocks until a client completed Connect.
func (s *Server) WaitConnected(timeout time.Duration) (session.ConnectRequest, error) {
	select {
	case <-s.connected:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.connectReq, nil
	case <-time.After(timeout):
		return session.ConnectRequest{}, ErrNotConnected
	}
}

// NextRequest waits for the next request.
func (s *Server) NextRequest(timeout time.Duration) (session.Request, error) {
	select {
	case req := <-s.requests:
		return req, nil
	case <-time.After(timeout):
		return session.Request{}, fmt.Errorf("fakectl: no request within %s", timeout)
	}
}

// Respond answers a request with status and optional extra fields.
func (s *Server) Respond(kind, id uint32, status uint8, fields ...tlv.Field) error {
	wire, err := session.EncodeResponseFrame(session.Response{Kind: kind, CommandID: id, Status: status, Fields: fields})
	if err != nil {
		return err
	}
	return s.writeTCP(wire)
}

// WriteRaw writes arbitrary bytes to the command channel.
func (s *Server) WriteRaw(b []byte) error { return s.writeTCP(b) }

func (s *Server) writeTCP(b []byte) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	_, err := conn.Write(b)
	return err
}

// SendState sends one state datagram to the connected client.
func (s *Server) SendState(st session.RobotState) error {
	wire, err := session.EncodeStateDatagram(st)
	if err != nil {
		return err
	}
	return s.SendRawState(wire)
}

func (s *Server) SendRawState(b []byte) error {
	s.mu.Lock()
	addr := s.clientUDP
	s.mu.Unlock()
	if addr == nil {
		return ErrNotConnected
	}
	_, err := s.udp.WriteToUDP(b, addr)
	return err
}

// DropConnection closes the command channel of the current client.
func (s *Server) DropConnection() {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
	}
}

func (s *Server) Close() {
	_ = s.ln.Close()
	_ = s.udp.Close()
	s.DropConnection()
	s.wg.Wait()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go s.serve(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()
	reader := bufio.NewReader(conn)
	for {
		f, err := frame.ReadFrame(reader, frame.DefaultLimits())
		if err != nil {
			return
		}
		req, err := session.DecodeRequestFrame(f)
		if err != nil {
			log.Warn().Err(err).Msg("fakectl.Server.serve decode")
			return
		}
		if req.Kind != schema.MsgConnect {
			s.requests <- req
			continue
		}
		if err := s.handleConnect(conn, req); err != nil {
			log.Warn().Err(err).Msg("fakectl.Server.serve connect")
			return
		}
	}
}

func (s *Server) handleConnect(conn net.Conn, req session.Request) error {
	cr, err := session.ParseConnectRequest(req)
	if err != nil {
		return err
	}
	status := schema.StatusSuccess
	if s.cfg.Accept != nil {
		status = s.cfg.Accept(cr.Version)
	} else if cr.Version != s.cfg.Version {
		status = schema.StatusIncompatibleVersion
	}
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.conn = conn
	s.connectReq = cr
	s.clientUDP = &net.UDPAddr{IP: net.ParseIP(host), Port: int(cr.UDPPort)}
	s.mu.Unlock()

	wire, err := session.EncodeResponseFrame(session.Response{
		Kind:      schema.MsgConnect,
		CommandID: req.CommandID,
		Status:    status,
		Fields:    []tlv.Field{tlv.U16(schema.FieldVersion, s.cfg.Version)},
	})
	if err != nil {
		return err
	}
	if _, err := conn.Write(wire); err != nil {
		return err
	}
	if status == schema.StatusSuccess {
		select {
		case <-s.connected:
		default:
			close(s.connected)
		}
	}
	return nil
}

func (s *Server) readCommands() {
	defer s.wg.Done()
	buf := make([]byte, 64*1024)
	for {
		n, _, err := s.udp.ReadFromUDP(buf)
		if err != nil {
			return
		}
		cmd, err := session.DecodeCommandDatagram(buf[:n])
		if err != nil {
			log.Warn().Err(err).Msg("fakectl.Server.readCommands decode")
			continue
		}
		select {
		case s.commands <- cmd:
		default:
		}
	}
}
