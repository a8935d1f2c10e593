// Package network implements the controller transport: a TCP command channel
// with responses correlated by command id, and a UDP channel carrying one
// state datagram per control cycle in each direction.
package network
