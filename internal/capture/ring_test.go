package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingSize(t *testing.T) {
	tests := []struct {
		name     string
		bufferMB int
		snapLen  int
		pageSize int
	}{
		{"default snaplen", 8, 65535, 4096},
		{"small snaplen", 8, 128, 4096},
		{"large pages", 64, 1500, 65536},
		{"tiny buffer", 1, 65535, 4096},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frameSize, blockSize, numBlocks, err := ringSize(tt.bufferMB, tt.snapLen, tt.pageSize)
			require.NoError(t, err)

			assert.GreaterOrEqual(t, frameSize, tpacketHdrLen+tt.snapLen)
			assert.Zero(t, frameSize%tpacketAlignment)
			assert.Zero(t, blockSize%tt.pageSize)
			assert.Zero(t, blockSize%frameSize)
			assert.LessOrEqual(t, blockSize, maxBlockSize)
			assert.GreaterOrEqual(t, numBlocks, 1)
		})
	}
}

func TestRingSizeInvalid(t *testing.T) {
	_, _, _, err := ringSize(0, 65535, 4096)
	assert.Error(t, err)
	_, _, _, err = ringSize(8, 0, 4096)
	assert.Error(t, err)
	_, _, _, err = ringSize(8, 65535, 3000)
	assert.Error(t, err)
}
