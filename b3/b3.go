package b3

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"

	"lukechampine.com/blake3"
)

// Blake3HashFromReader returns the hex encoded 256-bit BLAKE3 digest of everything read from f.
func Blake3HashFromReader(f io.Reader) (string, error) {
	h := blake3.New(32, nil)
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("calculating blake3 hash: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

func Blake3HashFromBytes(b []byte) (string, error) {
	return Blake3HashFromReader(bytes.NewReader(b))
}
