// Package classify recognises application protocols in captured packets and
// records the result as connection tags.
package classify

import (
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/conntag/internal/core"
)

// Packet is a decoded transport segment.
type Packet struct {
	Tuple     core.ConnTuple
	Payload   []byte
	Length    int // wire length of the frame
	Timestamp time.Time
}

// Decoder decodes frames of one link type into Packets. A Decoder reuses its
// layer buffers and must not be shared between goroutines.
type Decoder struct {
	netns    uint32
	linkType layers.LinkType

	eth   layers.Ethernet
	dot1q layers.Dot1Q
	ip4   layers.IPv4
	ip6   layers.IPv6
	tcp   layers.TCP
	udp   layers.UDP

	// Raw IP frames carry no link header, so the first layer depends on
	// the version nibble of each packet.
	ethParser *gopacket.DecodingLayerParser
	ip4Parser *gopacket.DecodingLayerParser
	ip6Parser *gopacket.DecodingLayerParser
	decoded   []gopacket.LayerType
}

// NewDecoder creates a decoder for frames of linkType. netns is recorded in
// every decoded tuple.
func NewDecoder(linkType layers.LinkType, netns uint32) (*Decoder, error) {
	switch linkType {
	case layers.LinkTypeEthernet, layers.LinkTypeRaw, layers.LinkTypeIPv4, layers.LinkTypeIPv6:
	default:
		return nil, fmt.Errorf("%w: link type %s", core.ErrUnsupportedProto, linkType)
	}

	d := &Decoder{
		netns:    netns,
		linkType: linkType,
		decoded:  make([]gopacket.LayerType, 0, 8),
	}
	newParser := func(first gopacket.LayerType) *gopacket.DecodingLayerParser {
		p := gopacket.NewDecodingLayerParser(first, &d.eth, &d.dot1q, &d.ip4, &d.ip6, &d.tcp, &d.udp)
		// Application payloads are inspected by detectors, not decoded here.
		p.IgnoreUnsupported = true
		return p
	}
	d.ethParser = newParser(layers.LayerTypeEthernet)
	d.ip4Parser = newParser(layers.LayerTypeIPv4)
	d.ip6Parser = newParser(layers.LayerTypeIPv6)
	return d, nil
}

// Decode decodes one frame. The returned payload aliases data.
func (d *Decoder) Decode(data []byte, ci gopacket.CaptureInfo) (*Packet, error) {
	parser, err := d.parserFor(data)
	if err != nil {
		return nil, err
	}

	if err := parser.DecodeLayers(data, &d.decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrPacketTooShort, err)
	}

	var (
		src, dst     netip.Addr
		haveIP       bool
		sport, dport uint16
		typ          core.ConnType
		payload      []byte
		haveL4       bool
	)
	for _, lt := range d.decoded {
		switch lt {
		case layers.LayerTypeIPv4:
			if d.ip4.Flags&layers.IPv4MoreFragments != 0 || d.ip4.FragOffset != 0 {
				return nil, fmt.Errorf("%w: ipv4 fragment", core.ErrUnsupportedProto)
			}
			src, dst, haveIP = addr(d.ip4.SrcIP), addr(d.ip4.DstIP), true
		case layers.LayerTypeIPv6:
			src, dst, haveIP = addr(d.ip6.SrcIP), addr(d.ip6.DstIP), true
		case layers.LayerTypeTCP:
			sport, dport, typ = uint16(d.tcp.SrcPort), uint16(d.tcp.DstPort), core.ConnTypeTCP
			payload, haveL4 = d.tcp.Payload, true
		case layers.LayerTypeUDP:
			sport, dport, typ = uint16(d.udp.SrcPort), uint16(d.udp.DstPort), core.ConnTypeUDP
			payload, haveL4 = d.udp.Payload, true
		}
	}
	if !haveIP || !haveL4 {
		return nil, fmt.Errorf("%w: no tcp or udp segment", core.ErrUnsupportedProto)
	}

	length := ci.Length
	if length == 0 {
		length = len(data)
	}
	return &Packet{
		Tuple:     core.NewConnTuple(netip.AddrPortFrom(src, sport), netip.AddrPortFrom(dst, dport), typ, d.netns),
		Payload:   payload,
		Length:    length,
		Timestamp: ci.Timestamp,
	}, nil
}

func (d *Decoder) parserFor(data []byte) (*gopacket.DecodingLayerParser, error) {
	switch d.linkType {
	case layers.LinkTypeEthernet:
		return d.ethParser, nil
	case layers.LinkTypeIPv4:
		return d.ip4Parser, nil
	case layers.LinkTypeIPv6:
		return d.ip6Parser, nil
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty frame", core.ErrPacketTooShort)
	}
	switch data[0] >> 4 {
	case 4:
		return d.ip4Parser, nil
	case 6:
		return d.ip6Parser, nil
	default:
		return nil, fmt.Errorf("%w: ip version %d", core.ErrUnsupportedProto, data[0]>>4)
	}
}

func addr(ip net.IP) netip.Addr {
	a, _ := netip.AddrFromSlice(ip)
	return a
}
