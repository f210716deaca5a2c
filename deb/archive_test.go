package deb

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/blakesmith/ar"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTime = time.Unix(1700000000, 0)

func TestArchiveWriterFirstAppend(t *testing.T) {
	var buf bytes.Buffer
	aw := NewArchiveWriter(&buf, WithMemberTime(testTime))
	assert.Zero(t, buf.Len(), "nothing is written before the first member")

	require.NoError(t, aw.AppendBytes("a", []byte("ab")))

	out := buf.Bytes()
	require.True(t, bytes.HasPrefix(out, []byte(ArchiveMagic)))
	out = out[len(ArchiveMagic):]

	hdr, err := DecodeHeader(out[:HeaderSize])
	require.NoError(t, err)
	assert.Equal(t, "debian-binary", hdr.Name)
	assert.Equal(t, "4", hdr.Size)
	assert.Equal(t, "1700000000", hdr.Timestamp)
	assert.Equal(t, "2.0\n", string(out[HeaderSize:HeaderSize+4]))
	out = out[HeaderSize+4:]

	hdr, err = DecodeHeader(out[:HeaderSize])
	require.NoError(t, err)
	assert.Equal(t, "a", hdr.Name)
	assert.Equal(t, "ab", string(out[HeaderSize:]))
	assert.Equal(t, int64(buf.Len()), aw.Written())
}

func TestArchiveWriterPadding(t *testing.T) {
	tests := []struct {
		body    string
		padding int
	}{
		{"", 0},
		{"a", 1},
		{"ab", 0},
		{"abc", 1},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		aw := NewArchiveWriter(&buf, PlainArchive())
		require.NoError(t, aw.AppendBytes("m", []byte(tt.body)))

		want := len(ArchiveMagic) + HeaderSize + len(tt.body) + tt.padding
		assert.Equal(t, want, buf.Len(), "body %q", tt.body)
		if tt.padding == 1 {
			assert.Equal(t, byte('\n'), buf.Bytes()[buf.Len()-1])
		}
	}
}

func TestArchiveWriterPlain(t *testing.T) {
	var buf bytes.Buffer
	aw := NewArchiveWriter(&buf, PlainArchive())
	require.NoError(t, aw.AppendBytes("only", []byte("x")))

	hdr, err := DecodeHeader(buf.Bytes()[len(ArchiveMagic) : len(ArchiveMagic)+HeaderSize])
	require.NoError(t, err)
	assert.Equal(t, "only", hdr.Name)
}

func TestArchiveWriterCallOrder(t *testing.T) {
	var buf bytes.Buffer
	aw := NewArchiveWriter(&buf, WithMemberTime(testTime))
	require.NoError(t, aw.AppendBytes("control.tar", []byte("control")))
	require.NoError(t, aw.AppendBytes("data.tar", []byte("data!")))

	// Cross-check with an independent reader.
	r := ar.NewReader(bytes.NewReader(buf.Bytes()))
	var names, bodies []string
	for {
		hdr, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		body, err := io.ReadAll(r)
		require.NoError(t, err)
		names = append(names, strings.TrimSpace(hdr.Name))
		bodies = append(bodies, string(body))
		assert.Equal(t, testTime.Unix(), hdr.ModTime.Unix())
	}
	assert.Equal(t, []string{"debian-binary", "control.tar", "data.tar"}, names)
	assert.Equal(t, []string{"2.0\n", "control", "data!"}, bodies)
}

func TestArchiveWriterInvalidHeaderWritesNothing(t *testing.T) {
	var buf bytes.Buffer
	aw := NewArchiveWriter(&buf)
	err := aw.Append(MemberHeader{Name: strings.Repeat("x", 17), Size: "1"}, strings.NewReader("x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFormat)

	var me *MemberError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, strings.Repeat("x", 17), me.Member)
	assert.Zero(t, buf.Len())

	// The writer is still usable.
	require.NoError(t, aw.AppendBytes("ok", nil))
}

func TestArchiveWriterSizeMismatch(t *testing.T) {
	for _, body := range []string{"abc", "abcdefgh"} {
		var buf bytes.Buffer
		aw := NewArchiveWriter(&buf, PlainArchive())
		err := aw.Append(NewMemberHeader("m", 5, testTime), strings.NewReader(body))
		require.Error(t, err, "body %q", body)
		assert.ErrorIs(t, err, ErrFormat)

		err = aw.AppendBytes("next", nil)
		assert.ErrorIs(t, err, ErrState)
	}
}

type failingWriter struct {
	after int
	n     int
}

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.n+len(p) > w.after {
		return 0, errors.New("disk full")
	}
	w.n += len(p)
	return len(p), nil
}

func TestArchiveWriterSinkFailure(t *testing.T) {
	aw := NewArchiveWriter(&failingWriter{after: len(ArchiveMagic) + HeaderSize + 4 + 10}, WithMemberTime(testTime))
	err := aw.AppendBytes("control.tar", []byte("payload"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrIO)

	var me *MemberError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, "control.tar", me.Member)

	err = aw.AppendBytes("data.tar", []byte("payload"))
	assert.ErrorIs(t, err, ErrState)
}

func TestArchiveWriterAppendFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/scratch/data.tar.gz", []byte("12345"), 0o644))

	var buf bytes.Buffer
	aw := NewArchiveWriter(&buf, PlainArchive(), WithMemberTime(testTime))
	require.NoError(t, aw.AppendFile(fs, "", "/scratch/data.tar.gz"))

	r := ar.NewReader(bytes.NewReader(buf.Bytes()))
	hdr, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "data.tar.gz", strings.TrimSpace(hdr.Name))
	assert.Equal(t, int64(5), hdr.Size)

	err = aw.AppendFile(fs, "missing", "/scratch/missing")
	assert.ErrorIs(t, err, ErrIO)
}
