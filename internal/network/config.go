package network

import (
	"errors"
	"strings"

	"github.com/danmuck/armlink/internal/protocol/session"
)

var (
	ErrAddressRequired     = errors.New("network: controller address required")
	ErrIncompatibleVersion = errors.New("network: incompatible controller version")
	ErrClosed              = errors.New("network: connection closed")
	ErrNoStatePeer         = errors.New("network: no state datagram received yet")
)

type Config struct {
	// Address is the controller command endpoint, host:port.
	Address string
	// UDPAddress is the local bind address for state datagrams. Port 0 picks one.
	UDPAddress string
	// Version is announced in Connect and must match the controller's.
	Version uint16
	Session session.Config
}

func DefaultConfig() Config {
	return Config{
		UDPAddress: "0.0.0.0:0",
		Version:    session.ProtocolVersion,
		Session:    session.DefaultConfig(),
	}
}

func (c Config) withDefaults() (Config, error) {
	if strings.TrimSpace(c.Address) == "" {
		return c, ErrAddressRequired
	}
	def := DefaultConfig()
	if strings.TrimSpace(c.UDPAddress) == "" {
		c.UDPAddress = def.UDPAddress
	}
	if c.Version == 0 {
		c.Version = def.Version
	}
	c.Session = c.Session.WithDefaults()
	return c, nil
}
