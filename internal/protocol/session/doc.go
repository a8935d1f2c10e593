// Package session owns controller session wire helpers.
//
// Ownership boundary:
// - connect handshake request/response
// - command request/response frames correlated by command id
// - robot state and robot command cycle datagrams
// - session timeout defaults
package session
