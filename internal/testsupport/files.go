package testsupport

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// MP4Header is an ISO base media ftyp box; content sniffing reports video/mp4.
var MP4Header = []byte("\x00\x00\x00\x18ftypisom\x00\x00\x02\x00isomiso2")

// PNGHeader is a PNG signature followed by the start of an IHDR chunk.
var PNGHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

// WriteFile writes a stand-in MP4 of exactly size bytes: the ftyp header
// followed by zero padding, truncated when size is shorter than the header.
// A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	data := make([]byte, size)
	copy(data, MP4Header)
	writeAll(t, path, data)
}

// WriteBytes writes data followed by 64 zero bytes and returns path. The
// padding keeps sniffers from treating a bare header as truncated.
func WriteBytes(t testing.TB, path string, data []byte) string {
	t.Helper()

	writeAll(t, path, append(bytes.Clone(data), make([]byte, 64)...))
	return path
}

func writeAll(t testing.TB, path string, data []byte) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
