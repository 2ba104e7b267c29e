package capture

import "fmt"

const (
	tpacketAlignment = 16 // TPACKET_ALIGNMENT
	tpacketHdrLen    = 52 // approximate TPACKET3 header length
	defaultBlockSize = 1 << 20
	maxBlockSize     = 4 << 20
)

// ringSize computes AF_PACKET ring geometry for a memory budget.
//
// PACKET_MMAP requires frameSize aligned to TPACKET_ALIGNMENT, and blockSize
// a multiple of both pageSize and frameSize. Frames are rounded up to a power
// of two so one of frameSize and pageSize always divides the other.
func ringSize(bufferSizeMB, snapLen, pageSize int) (frameSize, blockSize, numBlocks int, err error) {
	if bufferSizeMB <= 0 {
		return 0, 0, 0, fmt.Errorf("buffer size must be positive, got %d MB", bufferSizeMB)
	}
	if snapLen <= 0 {
		return 0, 0, 0, fmt.Errorf("snaplen must be positive, got %d", snapLen)
	}
	if pageSize <= 0 || pageSize%tpacketAlignment != 0 || pageSize&(pageSize-1) != 0 {
		return 0, 0, 0, fmt.Errorf("page size must be a power of two multiple of %d, got %d", tpacketAlignment, pageSize)
	}

	frameSize = tpacketAlignment
	for frameSize < tpacketHdrLen+snapLen {
		frameSize <<= 1
	}

	blockSize = max(frameSize, pageSize)
	if blockSize > maxBlockSize {
		return 0, 0, 0, fmt.Errorf("frame size %d exceeds maximum block size %d", frameSize, maxBlockSize)
	}
	if blockSize < defaultBlockSize {
		blockSize *= defaultBlockSize / blockSize
	}

	numBlocks = bufferSizeMB * 1024 * 1024 / blockSize
	if numBlocks < 1 {
		numBlocks = 1
	}
	return frameSize, blockSize, numBlocks, nil
}
