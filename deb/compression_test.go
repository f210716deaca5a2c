package deb

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressionRoundTrip(t *testing.T) {
	payload := []byte(strings.Repeat("debpack compresses tarballs. ", 1000))
	for _, c := range []Compression{CompressionNone, CompressionGzip, CompressionXz, CompressionZstd} {
		t.Run(string(c), func(t *testing.T) {
			var buf bytes.Buffer
			w, err := c.Writer(&buf)
			require.NoError(t, err)
			_, err = w.Write(payload)
			require.NoError(t, err)
			require.NoError(t, w.Close())

			if c != CompressionNone {
				assert.Less(t, buf.Len(), len(payload))
			}

			r, err := c.Reader(&buf)
			require.NoError(t, err)
			defer r.Close()
			got, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, payload, got)
		})
	}
}

func TestCompressionPlainIsIdentity(t *testing.T) {
	var buf bytes.Buffer
	w, err := CompressionNone.Writer(&buf)
	require.NoError(t, err)
	_, err = w.Write([]byte("as is"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.Equal(t, "as is", buf.String())
}

func TestParseCompression(t *testing.T) {
	tests := map[string]Compression{
		"":         CompressionGzip,
		"gzip":     CompressionGzip,
		"tar.gz":   CompressionGzip,
		"GZ":       CompressionGzip,
		"tar":      CompressionNone,
		"plain":    CompressionNone,
		"none":     CompressionNone,
		"xz":       CompressionXz,
		"tar.xz":   CompressionXz,
		"zstd":     CompressionZstd,
		".tar.zst": CompressionZstd,
	}
	for in, want := range tests {
		got, err := ParseCompression(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseCompression("bzip2")
	assert.ErrorIs(t, err, ErrConfig)
}

func TestCompressionExtension(t *testing.T) {
	assert.Equal(t, "", CompressionNone.Extension())
	assert.Equal(t, ".gz", CompressionGzip.Extension())
	assert.Equal(t, ".xz", CompressionXz.Extension())
	assert.Equal(t, ".zst", CompressionZstd.Extension())

	for _, c := range []Compression{CompressionNone, CompressionGzip, CompressionXz, CompressionZstd} {
		assert.Equal(t, c, compressionFromName("data.tar"+c.Extension()))
	}
	assert.ErrorIs(t, Compression("lz4").Valid(), ErrConfig)
}
