package store_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixcuello/cp-server/internal/store"
)

func TestBlobCodecRoundTrip(t *testing.T) {
	payload := []byte(strings.Repeat("315941512 -119267504\n", 5000))

	compressed := store.CompressBlob(payload)
	assert.Less(t, len(compressed), len(payload))

	out, err := store.DecompressBlob(compressed)
	require.NoError(t, err)
	assert.Equal(t, payload, out)
}

func TestDecompressBlob_Garbage(t *testing.T) {
	_, err := store.DecompressBlob([]byte("not zstd at all"))
	assert.Error(t, err)
}
