package store

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// Example payloads (inputs and expected outputs) can run to megabytes for
// stress-test cases; they are stored zstd-compressed and inflated on read.

var (
	blobEncoder, _ = zstd.NewWriter(nil)
	blobDecoder, _ = zstd.NewReader(nil)
)

// CompressBlob compresses an example payload for storage.
func CompressBlob(data []byte) []byte {
	return blobEncoder.EncodeAll(data, make([]byte, 0, len(data)/2))
}

// DecompressBlob inflates a payload written by CompressBlob.
func DecompressBlob(data []byte) ([]byte, error) {
	out, err := blobDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress example blob: %w", err)
	}
	return out, nil
}
