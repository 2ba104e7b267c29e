package capture

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var frames = [][]byte{
	[]byte("frame-one-0123456789"),
	[]byte("frame-two"),
}

func writePcap(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65535, layers.LinkTypeEthernet))
	for i, data := range frames {
		ci := gopacket.CaptureInfo{
			Timestamp:     time.Unix(1700000000+int64(i), 0),
			CaptureLength: len(data),
			Length:        len(data),
		}
		require.NoError(t, w.WritePacket(ci, data))
	}
}

func writePcapng(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w, err := pcapgo.NewNgWriter(f, layers.LinkTypeRaw)
	require.NoError(t, err)
	for i, data := range frames {
		ci := gopacket.CaptureInfo{
			Timestamp:      time.Unix(1700000000+int64(i), 0),
			CaptureLength:  len(data),
			Length:         len(data),
			InterfaceIndex: 0,
		}
		require.NoError(t, w.WritePacket(ci, data))
	}
	require.NoError(t, w.Flush())
}

func readAll(t *testing.T, src Source) [][]byte {
	t.Helper()
	var out [][]byte
	for {
		data, _, err := src.ReadPacketData()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, append([]byte(nil), data...))
	}
}

func TestOpenFilePcap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.pcap")
	writePcap(t, path)

	src, err := OpenFile(path)
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, layers.LinkTypeEthernet, src.LinkType())
	assert.Equal(t, frames, readAll(t, src))
}

func TestOpenFilePcapng(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.pcapng")
	writePcapng(t, path)

	src, err := OpenFile(path)
	require.NoError(t, err)
	defer src.Close()

	assert.Equal(t, layers.LinkTypeRaw, src.LinkType())
	assert.Equal(t, frames, readAll(t, src))
}

func TestOpenFileErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := OpenFile(filepath.Join(dir, "missing.pcap"))
	assert.Error(t, err)

	garbage := filepath.Join(dir, "garbage.pcap")
	require.NoError(t, os.WriteFile(garbage, []byte("definitely not a capture file"), 0644))
	_, err = OpenFile(garbage)
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.pcap")
	require.NoError(t, os.WriteFile(empty, nil, 0644))
	_, err = OpenFile(empty)
	assert.Error(t, err)
}

func TestCloseTwice(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.pcap")
	writePcap(t, path)

	src, err := OpenFile(path)
	require.NoError(t, err)
	require.NoError(t, src.Close())
	assert.NoError(t, src.Close())
}
