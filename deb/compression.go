package deb

import (
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
)

// Compression names the codec applied to the control and data tarballs.
type Compression string

// Supported codecs. The archive member names carry the matching extension,
// e.g. "data.tar.xz".
const (
	CompressionNone Compression = "plain"
	CompressionGzip Compression = "gzip"
	CompressionXz   Compression = "xz"
	CompressionZstd Compression = "zstd"
)

// DefaultCompression is used when Options.Compression is empty.
const DefaultCompression = CompressionGzip

// ParseCompression maps a codec name or tarball suffix ("tar.gz", "xz", ...)
// to a Compression.
func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "", "gzip", "gz", "tar.gz", "tgz":
		return CompressionGzip, nil
	case "plain", "none", "tar":
		return CompressionNone, nil
	case "xz", "tar.xz":
		return CompressionXz, nil
	case "zstd", "zst", "tar.zst":
		return CompressionZstd, nil
	}
	return "", fmt.Errorf("%w: unknown compression %q", ErrConfig, s)
}

// Valid returns a nil error iff c is a supported codec.
func (c Compression) Valid() error {
	switch c {
	case CompressionNone, CompressionGzip, CompressionXz, CompressionZstd:
		return nil
	}
	return fmt.Errorf("%w: unknown compression %q", ErrConfig, string(c))
}

// Extension returns the file suffix of the codec, "" for CompressionNone.
func (c Compression) Extension() string {
	switch c {
	case CompressionGzip:
		return ".gz"
	case CompressionXz:
		return ".xz"
	case CompressionZstd:
		return ".zst"
	}
	return ""
}

// compressionFromName guesses the codec of an archive member from its suffix.
func compressionFromName(name string) Compression {
	switch {
	case strings.HasSuffix(name, ".gz"):
		return CompressionGzip
	case strings.HasSuffix(name, ".xz"):
		return CompressionXz
	case strings.HasSuffix(name, ".zst"):
		return CompressionZstd
	}
	return CompressionNone
}

// Writer returns a streaming compressor writing to w. Closing it flushes the
// codec but leaves w open.
//
// zstd spreads the work over GOMAXPROCS encoders. xz runs on a single
// goroutine, as github.com/ulikunitz/xz has no multi-threaded writer.
func (c Compression) Writer(w io.Writer) (io.WriteCloser, error) {
	switch c {
	case CompressionNone:
		return nopWriteCloser{w}, nil
	case CompressionGzip:
		return gzip.NewWriterLevel(w, gzip.BestCompression)
	case CompressionXz:
		return xz.NewWriter(w)
	case CompressionZstd:
		return zstd.NewWriter(w, zstd.WithEncoderConcurrency(runtime.GOMAXPROCS(0)))
	}
	return nil, c.Valid()
}

// Reader returns a decompressor reading from r.
func (c Compression) Reader(r io.Reader) (io.ReadCloser, error) {
	switch c {
	case CompressionNone:
		return io.NopCloser(r), nil
	case CompressionGzip:
		return gzip.NewReader(r)
	case CompressionXz:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(xr), nil
	case CompressionZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zr.IOReadCloser(), nil
	}
	return nil, c.Valid()
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
