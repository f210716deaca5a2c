package deb

import (
	"archive/tar"
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/afero"
)

// permissionsUnsupported is true on hosts whose file permission bits carry no
// meaning; entries then get fixed modes before any hook runs.
var permissionsUnsupported = runtime.GOOS == "windows"

const (
	fallbackDirMode  = 0o755
	fallbackFileMode = 0o644
	scriptMode       = 0o755
)

// TarEntry is a synthetic entry appended after the walked tree, e.g. a
// symlink the host filesystem cannot represent.
type TarEntry struct {
	Header *tar.Header
	// Body is the content of regular file entries. Header.Size defaults to len(Body).
	Body []byte
}

// Artifact is a compressed tarball produced by a TarStager.
type Artifact struct {
	// Name is the archive member name, the base name of Path.
	Name        string
	Path        string
	Compression Compression
	Size        int64
}

// TarStager turns a directory into a compressed tarball.
//
// Every walked entry goes through, in order: ownership normalization to
// root:root, fixed modes on hosts without permission bits, ModifyHeader, and
// when ControlScripts is set, mode 0755 for maintainer scripts. A
// ModifyHeader returning a nil header drops the entry.
type TarStager struct {
	Fs             afero.Fs
	Compression    Compression
	ModifyHeader   HeaderFunc
	ControlScripts bool
	ExtraEntries   []TarEntry
	// ModTime, if set, replaces the modification time of every walked entry.
	ModTime time.Time
	Logger  *slog.Logger
}

// Stage writes the tarball of sourceDir to dest and returns once dest is
// synced and closed. On failure the partial dest file is removed.
func (s *TarStager) Stage(ctx context.Context, sourceDir, dest string) (art *Artifact, err error) {
	if err := s.Compression.Valid(); err != nil {
		return nil, err
	}
	fsys := s.Fs
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	logger := s.Logger
	if logger == nil {
		logger = discardLogger
	}
	start := time.Now()

	f, err := fsys.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, ioErr("creating %s: %w", dest, err)
	}
	closed := false
	defer func() {
		if err == nil {
			return
		}
		if !closed {
			f.Close()
		}
		if rmErr := fsys.Remove(dest); rmErr != nil && !os.IsNotExist(rmErr) {
			logger.Warn("removing partial tarball", "path", dest, "error", rmErr)
		}
	}()

	bw := bufio.NewWriterSize(f, 64<<10)
	cw, err := s.Compression.Writer(bw)
	if err != nil {
		return nil, fmt.Errorf("opening %s compressor: %w", s.Compression, err)
	}
	tw := tar.NewWriter(cw)

	if err := s.walk(ctx, fsys, tw, sourceDir); err != nil {
		cw.Close()
		return nil, err
	}
	for _, e := range s.ExtraEntries {
		if err := ctx.Err(); err != nil {
			cw.Close()
			return nil, err
		}
		if err := writeExtraEntry(tw, e); err != nil {
			cw.Close()
			return nil, err
		}
	}

	if err := tw.Close(); err != nil {
		cw.Close()
		return nil, ioErr("finalizing tarball %s: %w", dest, err)
	}
	if err := cw.Close(); err != nil {
		return nil, ioErr("closing %s compressor: %w", s.Compression, err)
	}
	if err := bw.Flush(); err != nil {
		return nil, ioErr("writing %s: %w", dest, err)
	}
	if err := f.Sync(); err != nil {
		return nil, ioErr("syncing %s: %w", dest, err)
	}
	closed = true
	if err := f.Close(); err != nil {
		return nil, ioErr("closing %s: %w", dest, err)
	}

	info, err := fsys.Stat(dest)
	if err != nil {
		return nil, ioErr("stat %s: %w", dest, err)
	}
	art = &Artifact{
		Name:        filepath.Base(dest),
		Path:        dest,
		Compression: s.Compression,
		Size:        info.Size(),
	}
	logger.Debug("tarball staged", "source", sourceDir, "artifact", art.Name, "size", art.Size, "duration", time.Since(start))
	return art, nil
}

func (s *TarStager) walk(ctx context.Context, fsys afero.Fs, tw *tar.Writer, sourceDir string) error {
	return afero.Walk(fsys, sourceDir, func(p string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return ioErr("walking %s: %w", p, walkErr)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(sourceDir, p)
		if err != nil {
			return fmt.Errorf("relative path of %s: %w", p, err)
		}

		var link string
		if info.Mode()&os.ModeSymlink != 0 {
			lr, ok := fsys.(afero.LinkReader)
			if !ok {
				return fmt.Errorf("%w: filesystem cannot read symlink %s", ErrIO, p)
			}
			if link, err = lr.ReadlinkIfPossible(p); err != nil {
				return ioErr("reading symlink %s: %w", p, err)
			}
		}

		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return fmt.Errorf("tar header for %s: %w", p, err)
		}
		hdr.Name = entryName(rel, info.IsDir())
		hdr.AccessTime = time.Time{}
		hdr.ChangeTime = time.Time{}
		hdr.ModTime = hdr.ModTime.Truncate(time.Second)
		if !s.ModTime.IsZero() {
			hdr.ModTime = s.ModTime
		}

		if hdr, err = s.transform(hdr); err != nil {
			return err
		}
		if hdr == nil {
			return nil
		}

		if err := tw.WriteHeader(hdr); err != nil {
			return ioErr("writing tar header for %s: %w", hdr.Name, err)
		}
		if hdr.Typeflag != tar.TypeReg || hdr.Size == 0 {
			return nil
		}
		return copyFileTo(tw, fsys, p, hdr.Size)
	})
}

// transform runs the per-entry header pipeline.
func (s *TarStager) transform(hdr *tar.Header) (*tar.Header, error) {
	hdr.Uid, hdr.Gid = 0, 0
	hdr.Uname, hdr.Gname = "root", "root"

	if permissionsUnsupported {
		switch hdr.Typeflag {
		case tar.TypeDir:
			hdr.Mode = fallbackDirMode
		case tar.TypeReg:
			hdr.Mode = fallbackFileMode
		}
	}

	if s.ModifyHeader != nil {
		name := hdr.Name
		var err error
		if hdr, err = s.ModifyHeader(hdr); err != nil {
			return nil, &HookError{Hook: HookModifyTarHeader, Err: fmt.Errorf("entry %s: %w", name, err)}
		}
		if hdr == nil {
			return nil, nil
		}
	}

	// Applied after the hook so that scripts stay executable whatever it does.
	if s.ControlScripts && isMaintainerScript(trimEntryName(hdr.Name)) {
		hdr.Mode = scriptMode
	}
	return hdr, nil
}

func copyFileTo(w io.Writer, fsys afero.Fs, p string, size int64) error {
	f, err := fsys.Open(p)
	if err != nil {
		return ioErr("opening %s: %w", p, err)
	}
	defer f.Close()
	if _, err := io.CopyN(w, f, size); err != nil {
		return ioErr("reading %s: %w", p, err)
	}
	return nil
}

func writeExtraEntry(tw *tar.Writer, e TarEntry) error {
	if e.Header == nil {
		return fmt.Errorf("%w: additional tar entry without header", ErrConfig)
	}
	hdr := *e.Header
	if hdr.Size == 0 && len(e.Body) > 0 {
		hdr.Size = int64(len(e.Body))
	}
	if err := tw.WriteHeader(&hdr); err != nil {
		return ioErr("writing tar header for %s: %w", hdr.Name, err)
	}
	if len(e.Body) > 0 {
		if _, err := tw.Write(e.Body); err != nil {
			return ioErr("writing %s: %w", hdr.Name, err)
		}
	}
	return nil
}

// entryName returns the tar name of a path relative to the staged directory:
// "./" for the root, "./a/b" for files and "./a/b/" for directories.
func entryName(rel string, dir bool) string {
	if rel == "." {
		return "./"
	}
	name := "./" + filepath.ToSlash(rel)
	if dir {
		name += "/"
	}
	return name
}

// trimEntryName strips the "./" prefix and trailing slash of a tar name.
func trimEntryName(name string) string {
	for len(name) >= 2 && name[:2] == "./" {
		name = name[2:]
	}
	for len(name) > 0 && name[len(name)-1] == '/' {
		name = name[:len(name)-1]
	}
	return name
}
