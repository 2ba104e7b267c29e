package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"
)

// LiveOptions configures a live capture.
type LiveOptions struct {
	Interface    string
	Mode         string // pcap / afpacket
	SnapLen      int
	Promiscuous  bool
	Timeout      time.Duration
	Filter       string
	BufferSizeMB int
	FanoutID     uint16
}

// OpenLive opens a live capture on an interface.
func OpenLive(opts LiveOptions) (Source, error) {
	if opts.Interface == "" {
		return nil, fmt.Errorf("capture interface is required")
	}
	if opts.SnapLen <= 0 {
		opts.SnapLen = 65535
	}

	switch opts.Mode {
	case "", "pcap":
		return openPcap(opts)
	case "afpacket":
		return openAfpacket(opts)
	default:
		return nil, fmt.Errorf("unsupported capture mode: %s", opts.Mode)
	}
}

// PcapSource captures through libpcap.
type PcapSource struct {
	handle *pcap.Handle
}

func openPcap(opts LiveOptions) (*PcapSource, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = pcap.BlockForever
	}

	handle, err := pcap.OpenLive(opts.Interface, int32(opts.SnapLen), opts.Promiscuous, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", opts.Interface, err)
	}

	if opts.Filter != "" {
		if err := handle.SetBPFFilter(opts.Filter); err != nil {
			handle.Close()
			return nil, fmt.Errorf("failed to set BPF filter %q: %w", opts.Filter, err)
		}
	}

	slog.Info("live capture opened", "interface", opts.Interface, "mode", "pcap",
		"snaplen", opts.SnapLen, "link_type", handle.LinkType().String())
	return &PcapSource{handle: handle}, nil
}

func (s *PcapSource) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	data, ci, err := s.handle.ReadPacketData()
	if errors.Is(err, pcap.NextErrorTimeoutExpired) {
		return nil, gopacket.CaptureInfo{}, nil
	}
	return data, ci, err
}

func (s *PcapSource) LinkType() layers.LinkType {
	return s.handle.LinkType()
}

func (s *PcapSource) Close() error {
	s.handle.Close()
	return nil
}
