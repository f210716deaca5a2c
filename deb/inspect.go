package deb

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/blakesmith/ar"
)

// ArchiveMember describes a member of a .deb archive.
type ArchiveMember struct {
	Name    string
	ModTime time.Time
	UID     int
	GID     int
	Mode    int64
	Size    int64
	// Offset is the position of the member header in the archive.
	Offset int64
}

// Info is the content of a .deb file, as read by Inspect.
type Info struct {
	Members  []ArchiveMember
	Metadata Metadata
	// Control holds the raw text of the control file.
	Control string
	// ControlFiles maps every file of the control tarball to its content.
	ControlFiles map[string]string
	// ControlEntries and DataEntries are the headers of the tarball entries, in archive order.
	ControlEntries []*tar.Header
	DataEntries    []*tar.Header
}

// Inspect reads a .deb file from r. Tarball members are decompressed
// according to their suffix.
func Inspect(r io.Reader) (*Info, error) {
	info := &Info{
		Metadata:     Metadata{ExtraFields: make(map[string]string)},
		ControlFiles: make(map[string]string),
	}

	offset := int64(len(ArchiveMagic))
	arR := ar.NewReader(r)
	for {
		header, err := arR.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, ioErr("reading ar header: %w", err)
		}
		name := strings.TrimSuffix(strings.TrimSpace(header.Name), "/")
		info.Members = append(info.Members, ArchiveMember{
			Name:    name,
			ModTime: header.ModTime,
			UID:     header.Uid,
			GID:     header.Gid,
			Mode:    header.Mode,
			Size:    header.Size,
			Offset:  offset,
		})
		offset += HeaderSize + header.Size + header.Size%2

		switch {
		case name == string(PkgDebianBinary):
			body, err := io.ReadAll(arR)
			if err != nil {
				return nil, ioErr("reading %s: %w", name, err)
			}
			if string(body) != debianBinaryBody {
				return nil, fmt.Errorf("%w: unsupported package format %q", ErrFormat, strings.TrimSpace(string(body)))
			}
		case strings.HasPrefix(name, string(PkgControlTar)):
			err = readTarMember(arR, name, func(th *tar.Header, body []byte) error {
				info.ControlEntries = append(info.ControlEntries, th)
				if th.Typeflag != tar.TypeReg {
					return nil
				}
				info.ControlFiles[path.Base(th.Name)] = string(body)
				return nil
			})
		case strings.HasPrefix(name, string(PkgDataTar)):
			err = readTarMember(arR, name, func(th *tar.Header, _ []byte) error {
				info.DataEntries = append(info.DataEntries, th)
				return nil
			})
		}
		if err != nil {
			return nil, err
		}
	}

	if len(info.Members) == 0 || info.Members[0].Name != string(PkgDebianBinary) {
		return nil, fmt.Errorf("%w: %s must be the first member", ErrFormat, PkgDebianBinary)
	}
	control, ok := info.ControlFiles[string(FileControl)]
	if !ok {
		return nil, fmt.Errorf("%w: control file not found", ErrFormat)
	}
	info.Control = control
	if err := parseControlFile(control, &info.Metadata); err != nil {
		return nil, fmt.Errorf("parsing control file: %w", err)
	}
	return info, nil
}

// readTarMember decompresses the tarball member name from r and calls fn
// for every entry.
func readTarMember(r io.Reader, name string, fn func(*tar.Header, []byte) error) error {
	zr, err := compressionFromName(name).Reader(r)
	if err != nil {
		return ioErr("opening %s: %w", name, err)
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	for {
		th, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return ioErr("reading %s: %w", name, err)
		}
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, tr); err != nil {
			return ioErr("reading %s in %s: %w", th.Name, name, err)
		}
		if err := fn(th, buf.Bytes()); err != nil {
			return err
		}
	}
}
