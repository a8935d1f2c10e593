package robot

// ServerVersion is the command-set version agreed in the Connect handshake.
func (s *Session) ServerVersion() uint16 {
	return s.version
}

func (s *Session) RealtimeConfig() RealtimeConfig {
	return s.opts.Realtime
}
