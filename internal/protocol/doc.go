// Package protocol owns the controller wire contract.
//
// Ownership boundary:
// - frame: fixed header primitives shared by the command (TCP) and cycle (UDP) channels
// - tlv: payload field primitives
// - schema: message kinds, field ids, status codes and required-field table
// - session: typed request/response, connect and cycle datagram codecs
package protocol
