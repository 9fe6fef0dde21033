package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecomputeSize(t *testing.T) {
	tests := []struct {
		name      string
		bufferMB  int
		snapLen   int
		wholeFrms bool
	}{
		{"mtu snaplen", 8, 1500, true},
		{"jumbo snaplen", 16, 9000, false},
		{"full snaplen", 64, 65535, false},
		{"tiny budget", 1, 1500, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frameSize, blockSize, numBlocks, err := recomputeSize(tt.bufferMB, tt.snapLen, 4096)
			require.NoError(t, err)

			assert.Zero(t, frameSize%tpacketAlignment)
			assert.GreaterOrEqual(t, frameSize, tt.snapLen+tpacketHdrLen)
			assert.Zero(t, blockSize%4096)
			assert.GreaterOrEqual(t, blockSize, frameSize)
			assert.GreaterOrEqual(t, numBlocks, 1)
			if tt.wholeFrms {
				assert.Zero(t, blockSize%frameSize)
			}
			if blockSize <= tt.bufferMB*1024*1024 {
				assert.LessOrEqual(t, blockSize*numBlocks, tt.bufferMB*1024*1024)
			}
		})
	}
}

func TestRecomputeSizeMTU(t *testing.T) {
	frameSize, blockSize, numBlocks, err := recomputeSize(8, 1500, 4096)
	require.NoError(t, err)
	assert.Equal(t, 1552, frameSize)
	assert.Equal(t, 397312, blockSize)
	assert.Equal(t, 21, numBlocks)
}

func TestRecomputeSizeInvalid(t *testing.T) {
	_, _, _, err := recomputeSize(0, 1500, 4096)
	assert.Error(t, err)
	_, _, _, err = recomputeSize(8, 0, 4096)
	assert.Error(t, err)
	_, _, _, err = recomputeSize(8, 1500, 1000)
	assert.Error(t, err)
}
