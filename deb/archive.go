package deb

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/afero"
)

// ArchiveWriter writes members to an ar archive, one at a time and in call order.
//
// The first call to Append writes the archive signature and, unless the
// writer was created with PlainArchive, the debian-binary member that
// declares the .deb format version. Every payload occupying an odd number
// of bytes is followed by a '\n' padding byte.
//
// An ArchiveWriter is not safe for concurrent use: the layout of the
// archive depends on the order of the calls.
type ArchiveWriter struct {
	w          *countingWriter
	plain      bool
	memberTime time.Time
	started    bool
	err        error // sticky sink failure
}

// ArchiveOption configures an ArchiveWriter.
type ArchiveOption func(*ArchiveWriter)

// PlainArchive disables the debian-binary member, producing a generic ar archive.
func PlainArchive() ArchiveOption {
	return func(aw *ArchiveWriter) { aw.plain = true }
}

// WithMemberTime sets the timestamp given to members whose header leaves it empty.
func WithMemberTime(t time.Time) ArchiveOption {
	return func(aw *ArchiveWriter) { aw.memberTime = t }
}

// NewArchiveWriter binds an ArchiveWriter to w. Nothing is written until the
// first member is appended.
func NewArchiveWriter(w io.Writer, opts ...ArchiveOption) *ArchiveWriter {
	aw := &ArchiveWriter{w: &countingWriter{w: w}}
	for _, opt := range opts {
		opt(aw)
	}
	return aw
}

// Written returns the number of bytes written to the sink so far.
func (aw *ArchiveWriter) Written() int64 {
	return aw.w.n
}

// Append writes hdr followed by the payload read from body. body must yield
// exactly hdr.Size bytes.
func (aw *ArchiveWriter) Append(hdr MemberHeader, body io.Reader) error {
	if aw.err != nil {
		return fmt.Errorf("%w: archive writer failed earlier: %v", ErrState, aw.err)
	}
	if hdr.Timestamp == "" && !aw.memberTime.IsZero() {
		hdr.Timestamp = strconv.FormatInt(aw.memberTime.Unix(), 10)
	}
	// Validate before touching the sink so a bad header leaves no partial write.
	encoded, err := hdr.Encode()
	if err != nil {
		return &MemberError{Member: hdr.Name, Err: err}
	}
	size, err := hdr.SizeInt()
	if err != nil {
		return &MemberError{Member: hdr.Name, Err: err}
	}

	if !aw.started {
		if err := aw.writeSignature(); err != nil {
			return err
		}
	}
	return aw.writeMember(hdr.Name, encoded, size, body)
}

// AppendBytes writes a member named name holding body.
func (aw *ArchiveWriter) AppendBytes(name string, body []byte) error {
	return aw.Append(NewMemberHeader(name, int64(len(body)), time.Time{}), bytes.NewReader(body))
}

// AppendFile streams the file at path from fsys as a member named name.
// If name is empty the base name of path is used.
func (aw *ArchiveWriter) AppendFile(fsys afero.Fs, name, path string) error {
	if name == "" {
		name = filepath.Base(path)
	}
	if aw.err != nil {
		return fmt.Errorf("%w: archive writer failed earlier: %v", ErrState, aw.err)
	}
	f, err := fsys.Open(path)
	if err != nil {
		return &MemberError{Member: name, Err: ioErr("opening %s: %w", path, err)}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return &MemberError{Member: name, Err: ioErr("stat %s: %w", path, err)}
	}
	return aw.Append(NewMemberHeader(name, info.Size(), time.Time{}), f)
}

func (aw *ArchiveWriter) writeSignature() error {
	aw.started = true
	if _, err := io.WriteString(aw.w, ArchiveMagic); err != nil {
		aw.err = err
		return &MemberError{Member: "!<arch>", Err: ioErr("writing archive signature: %w", err)}
	}
	if aw.plain {
		return nil
	}
	hdr := NewMemberHeader(string(PkgDebianBinary), int64(len(debianBinaryBody)), aw.memberTime)
	encoded, err := hdr.Encode()
	if err != nil {
		return &MemberError{Member: hdr.Name, Err: err}
	}
	return aw.writeMember(hdr.Name, encoded, int64(len(debianBinaryBody)), bytes.NewBufferString(debianBinaryBody))
}

func (aw *ArchiveWriter) writeMember(name string, encoded []byte, size int64, body io.Reader) error {
	if _, err := aw.w.Write(encoded); err != nil {
		aw.err = err
		return &MemberError{Member: name, Err: ioErr("writing header: %w", err)}
	}

	// Read one byte past the declared size to detect oversized payloads.
	n, err := io.Copy(aw.w, io.LimitReader(body, size+1))
	if err != nil {
		aw.err = err
		return &MemberError{Member: name, Err: ioErr("writing payload: %w", err)}
	}
	if n != size {
		// The fixed-offset layout is now corrupt; refuse further members.
		aw.err = fmt.Errorf("payload of %s is not %d bytes", name, size)
		return &MemberError{Member: name, Err: &FieldError{
			Field:  "size",
			Value:  strconv.FormatInt(size, 10),
			Reason: "does not match payload length",
		}}
	}

	if size%2 != 0 {
		if _, err := io.WriteString(aw.w, "\n"); err != nil {
			aw.err = err
			return &MemberError{Member: name, Err: ioErr("writing padding byte: %w", err)}
		}
	}
	return nil
}
