package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/afpacket"
	"github.com/google/gopacket/layers"
)

// AfpacketSource captures through a TPACKET_V3 memory-mapped ring.
type AfpacketSource struct {
	handle *afpacket.TPacket
}

func openAfpacket(opts LiveOptions) (*AfpacketSource, error) {
	frameSize, blockSize, numBlocks, err := ringSize(opts.BufferSizeMB, opts.SnapLen, os.Getpagesize())
	if err != nil {
		return nil, err
	}

	tpOpts := []interface{}{
		afpacket.OptInterface(opts.Interface),
		afpacket.OptFrameSize(frameSize),
		afpacket.OptBlockSize(blockSize),
		afpacket.OptNumBlocks(numBlocks),
		afpacket.SocketRaw,
		afpacket.TPacketVersion3,
	}
	if opts.Timeout > 0 {
		tpOpts = append(tpOpts, afpacket.OptPollTimeout(opts.Timeout))
	}

	tp, err := afpacket.NewTPacket(tpOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", opts.Interface, err)
	}

	if opts.FanoutID > 0 {
		if err := tp.SetFanout(afpacket.FanoutHashWithDefrag, opts.FanoutID); err != nil {
			tp.Close()
			return nil, fmt.Errorf("failed to join fanout group %d: %w", opts.FanoutID, err)
		}
	}

	if opts.Filter != "" {
		prog, err := CompileFilter(opts.Filter, frameSize, layers.LinkTypeEthernet)
		if err != nil {
			tp.Close()
			return nil, err
		}
		if err := tp.SetBPF(prog); err != nil {
			tp.Close()
			return nil, fmt.Errorf("failed to attach BPF filter: %w", err)
		}
	}

	slog.Info("live capture opened", "interface", opts.Interface, "mode", "afpacket",
		"frame_size", frameSize, "block_size", blockSize, "num_blocks", numBlocks)
	return &AfpacketSource{handle: tp}, nil
}

func (s *AfpacketSource) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	data, ci, err := s.handle.ReadPacketData()
	if errors.Is(err, afpacket.ErrTimeout) {
		return nil, gopacket.CaptureInfo{}, nil
	}
	return data, ci, err
}

func (s *AfpacketSource) LinkType() layers.LinkType {
	return layers.LinkTypeEthernet
}

func (s *AfpacketSource) Close() error {
	s.handle.Close()
	return nil
}
