package classify

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/require"
)

var (
	macA = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	macB = net.HardwareAddr{0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb}
)

func serialize(t *testing.T, ls ...gopacket.SerializableLayer) []byte {
	t.Helper()
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, ls...))
	return append([]byte(nil), buf.Bytes()...)
}

func ipv4(src, dst string, proto layers.IPProtocol) *layers.IPv4 {
	return &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: proto,
		SrcIP:    net.ParseIP(src).To4(),
		DstIP:    net.ParseIP(dst).To4(),
	}
}

func tcpSegment(t *testing.T, ip gopacket.NetworkLayer, sport, dport uint16) *layers.TCP {
	t.Helper()
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(sport),
		DstPort: layers.TCPPort(dport),
		Seq:     1,
		ACK:     true,
		PSH:     true,
		Window:  65535,
	}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))
	return tcp
}

// tcpFrame builds an Ethernet/IPv4/TCP frame.
func tcpFrame(t *testing.T, src string, sport uint16, dst string, dport uint16, payload string) []byte {
	t.Helper()
	eth := &layers.Ethernet{SrcMAC: macA, DstMAC: macB, EthernetType: layers.EthernetTypeIPv4}
	ip := ipv4(src, dst, layers.IPProtocolTCP)
	return serialize(t, eth, ip, tcpSegment(t, ip, sport, dport), gopacket.Payload(payload))
}

// udp6Raw builds a raw IPv6/UDP packet without a link header.
func udp6Raw(t *testing.T, src string, sport uint16, dst string, dport uint16, payload string) []byte {
	t.Helper()
	ip := &layers.IPv6{
		Version:    6,
		NextHeader: layers.IPProtocolUDP,
		HopLimit:   64,
		SrcIP:      net.ParseIP(src),
		DstIP:      net.ParseIP(dst),
	}
	udp := &layers.UDP{SrcPort: layers.UDPPort(sport), DstPort: layers.UDPPort(dport)}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))
	return serialize(t, ip, udp, gopacket.Payload(payload))
}

func captureInfo(data []byte, ts time.Time) gopacket.CaptureInfo {
	return gopacket.CaptureInfo{Timestamp: ts, CaptureLength: len(data), Length: len(data)}
}

// sliceSource replays frames; nil frames are read timeouts.
type sliceSource struct {
	linkType layers.LinkType
	frames   [][]byte
	pos      int
}

func (s *sliceSource) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	if s.pos >= len(s.frames) {
		return nil, gopacket.CaptureInfo{}, io.EOF
	}
	data := s.frames[s.pos]
	s.pos++
	if data == nil {
		return nil, gopacket.CaptureInfo{}, nil
	}
	return data, captureInfo(data, time.Unix(1700000000, int64(s.pos))), nil
}

func (s *sliceSource) LinkType() layers.LinkType {
	return s.linkType
}
