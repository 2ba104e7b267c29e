// Package core defines core data structures with zero external dependencies.
package core

import (
	"encoding/binary"
	"fmt"
	"net/netip"
)

// ConnType is the transport protocol of a tracked connection.
type ConnType uint8

const (
	ConnTypeUDP ConnType = 0
	ConnTypeTCP ConnType = 1
)

func (t ConnType) String() string {
	if t == ConnTypeTCP {
		return "tcp"
	}
	return "udp"
}

// ConnFamily is the address family of a tracked connection.
type ConnFamily uint8

const (
	ConnFamilyV4 ConnFamily = 0
	ConnFamilyV6 ConnFamily = 1
)

func (f ConnFamily) String() string {
	if f == ConnFamilyV6 {
		return "v6"
	}
	return "v4"
}

// Metadata bit layout.
const (
	metadataTypeMask   = 0x1
	metadataFamilyMask = 0x2
)

// ConnTupleSize is the length of the fixed binary form of a ConnTuple.
const ConnTupleSize = 48

// ConnTuple identifies a tracked connection.
//
// The layout follows the kernel tracer's conn_tuple: each address is split
// into a high and a low 64-bit half (IPv4 lives in the low half). The struct
// is comparable and has a fixed binary form, so it works both as a Go map key
// and as a hash input.
type ConnTuple struct {
	SaddrH   uint64
	SaddrL   uint64
	DaddrH   uint64
	DaddrL   uint64
	Sport    uint16
	Dport    uint16
	Netns    uint32
	Pid      uint32
	Metadata uint32 // bit 0: ConnType, bit 1: ConnFamily
}

// NewConnTuple builds a tuple from two endpoints. IPv4-mapped IPv6
// addresses are unmapped so both spellings produce the same key.
func NewConnTuple(src, dst netip.AddrPort, typ ConnType, netns uint32) ConnTuple {
	t := ConnTuple{
		Sport: src.Port(),
		Dport: dst.Port(),
		Netns: netns,
	}
	srcAddr, dstAddr := src.Addr().Unmap(), dst.Addr().Unmap()
	t.SaddrH, t.SaddrL = splitAddr(srcAddr)
	t.DaddrH, t.DaddrL = splitAddr(dstAddr)

	t.Metadata = uint32(typ) & metadataTypeMask
	if srcAddr.Is6() {
		t.Metadata |= metadataFamilyMask
	}
	return t
}

func splitAddr(a netip.Addr) (hi, lo uint64) {
	if a.Is4() {
		b := a.As4()
		return 0, uint64(binary.BigEndian.Uint32(b[:]))
	}
	b := a.As16()
	return binary.BigEndian.Uint64(b[:8]), binary.BigEndian.Uint64(b[8:])
}

func joinAddr(hi, lo uint64, family ConnFamily) netip.Addr {
	if family == ConnFamilyV4 {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(lo))
		return netip.AddrFrom4(b)
	}
	var b [16]byte
	binary.BigEndian.PutUint64(b[:8], hi)
	binary.BigEndian.PutUint64(b[8:], lo)
	return netip.AddrFrom16(b)
}

// Type returns the transport protocol.
func (t ConnTuple) Type() ConnType {
	return ConnType(t.Metadata & metadataTypeMask)
}

// Family returns the address family.
func (t ConnTuple) Family() ConnFamily {
	if t.Metadata&metadataFamilyMask != 0 {
		return ConnFamilyV6
	}
	return ConnFamilyV4
}

// SrcAddr returns the source endpoint.
func (t ConnTuple) SrcAddr() netip.AddrPort {
	return netip.AddrPortFrom(joinAddr(t.SaddrH, t.SaddrL, t.Family()), t.Sport)
}

// DstAddr returns the destination endpoint.
func (t ConnTuple) DstAddr() netip.AddrPort {
	return netip.AddrPortFrom(joinAddr(t.DaddrH, t.DaddrL, t.Family()), t.Dport)
}

// Flip swaps source and destination.
func (t ConnTuple) Flip() ConnTuple {
	t.SaddrH, t.DaddrH = t.DaddrH, t.SaddrH
	t.SaddrL, t.DaddrL = t.DaddrL, t.SaddrL
	t.Sport, t.Dport = t.Dport, t.Sport
	return t
}

// Normalize orders the endpoints so both directions of a connection map to
// the same tuple. The boolean reports whether t was already in canonical
// order, i.e. whether the packet travels from the lower endpoint.
func (t ConnTuple) Normalize() (ConnTuple, bool) {
	if t.lessOrEqualEndpoints() {
		return t, true
	}
	return t.Flip(), false
}

func (t ConnTuple) lessOrEqualEndpoints() bool {
	if t.SaddrH != t.DaddrH {
		return t.SaddrH < t.DaddrH
	}
	if t.SaddrL != t.DaddrL {
		return t.SaddrL < t.DaddrL
	}
	return t.Sport <= t.Dport
}

// AppendBinary appends the fixed little-endian form of t to b.
func (t ConnTuple) AppendBinary(b []byte) []byte {
	b = binary.LittleEndian.AppendUint64(b, t.SaddrH)
	b = binary.LittleEndian.AppendUint64(b, t.SaddrL)
	b = binary.LittleEndian.AppendUint64(b, t.DaddrH)
	b = binary.LittleEndian.AppendUint64(b, t.DaddrL)
	b = binary.LittleEndian.AppendUint16(b, t.Sport)
	b = binary.LittleEndian.AppendUint16(b, t.Dport)
	b = binary.LittleEndian.AppendUint32(b, t.Netns)
	b = binary.LittleEndian.AppendUint32(b, t.Pid)
	b = binary.LittleEndian.AppendUint32(b, t.Metadata)
	return b
}

func (t ConnTuple) String() string {
	s := fmt.Sprintf("%s %s -> %s", t.Type(), t.SrcAddr(), t.DstAddr())
	if t.Netns != 0 {
		s += fmt.Sprintf(" netns=%d", t.Netns)
	}
	return s
}
