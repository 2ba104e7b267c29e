package capture

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// pcapng section header block type.
var ngMagic = []byte{0x0a, 0x0d, 0x0d, 0x0a}

type frameReader interface {
	gopacket.PacketDataSource
	LinkType() layers.LinkType
}

// FileSource reads frames from a capture file.
type FileSource struct {
	path   string
	file   *os.File
	reader frameReader
}

// OpenFile opens a pcap or pcapng file. The format is detected from the
// leading magic bytes.
func OpenFile(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file %s: %w", path, err)
	}

	br := bufio.NewReader(f)
	magic, err := br.Peek(4)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read capture file header %s: %w", path, err)
	}

	var r frameReader
	if bytes.Equal(magic, ngMagic) {
		r, err = pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	} else {
		r, err = pcapgo.NewReader(br)
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to parse capture file %s: %w", path, err)
	}

	return &FileSource{path: path, file: f, reader: r}, nil
}

// ReadPacketData returns the next frame, or io.EOF at the end of the file.
func (fs *FileSource) ReadPacketData() ([]byte, gopacket.CaptureInfo, error) {
	data, ci, err := fs.reader.ReadPacketData()
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, gopacket.CaptureInfo{}, io.EOF
		}
		return nil, gopacket.CaptureInfo{}, fmt.Errorf("failed to read packet from %s: %w", fs.path, err)
	}
	return data, ci, nil
}

func (fs *FileSource) LinkType() layers.LinkType {
	return fs.reader.LinkType()
}

func (fs *FileSource) Close() error {
	if fs.file == nil {
		return nil
	}
	err := fs.file.Close()
	fs.file = nil
	return err
}
