// Package capture opens packet sources: pcap and pcapng files, and live
// interfaces through libpcap or AF_PACKET.
package capture

import (
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Source is a stream of raw frames of a single link type.
//
// Live sources report read timeouts as an empty read (nil data, nil error)
// so callers can check for cancellation. io.EOF ends the stream.
type Source interface {
	gopacket.PacketDataSource
	LinkType() layers.LinkType
	Close() error
}
