package tags

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"firestige.xyz/conntag/internal/core"
)

func TestDecodeHistory(t *testing.T) {
	tests := []struct {
		name  string
		value uint64
		want  []core.StaticTag
	}{
		{"empty", 0, nil},
		{"single", 0x01, []core.StaticTag{core.HTTP}},
		{"two", 0x0102, []core.StaticTag{core.LibSSL, core.HTTP}},
		{"gap is skipped", 0x030001, []core.StaticTag{core.HTTP, core.TLS}},
		{"full", 0x0102030405010203, []core.StaticTag{3, 2, 1, 5, 4, 3, 2, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecodeHistory(tt.value))
		})
	}
}

func TestHistoryOnceRespectsExistingTags(t *testing.T) {
	var h History

	h.Add(false, core.TLS)
	h.Add(true, core.HTTP)

	assert.Equal(t, uint64(core.TLS), h.Load())
}

func TestHistoryAppendKeepsLastEight(t *testing.T) {
	var h History
	for i := 0; i < 20; i++ {
		h.Add(false, core.HTTP)
		h.Add(false, core.LibSSL)
	}

	assert.Equal(t, uint64(0x0102010201020102), h.Load())
	assert.Equal(t, core.LibSSL, h.Latest())
}
