package deb

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// DesktopEntry holds the key/value pairs of a freedesktop.org desktop entry.
//
// Reference: https://specifications.freedesktop.org/desktop-entry-spec/latest/
type DesktopEntry map[string]string

// String renders the entry as a .desktop file, keys sorted.
func (d DesktopEntry) String() string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("[Desktop Entry]\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "%s=%s\n", k, d[k])
	}
	return b.String()
}

// populate fills the scratch tree: the source files under the installation
// root, the maintainer scripts, conffiles, the control file, then the icon
// and the desktop entry.
func (p *Packager) populate(ctx context.Context, tree scratchTree) error {
	installDir := filepath.Join(tree.data, filepath.FromSlash(p.installRoot))
	atRoot := p.installRoot == "."
	if !atRoot {
		if err := p.fs.MkdirAll(filepath.Dir(installDir), 0o755); err != nil {
			return ioErr("creating %s: %w", filepath.Dir(installDir), err)
		}
	}
	installed, err := copyTree(ctx, p.fs, p.opts.SourceDir, installDir, !atRoot)
	if err != nil {
		return fmt.Errorf("copying %s: %w", p.opts.SourceDir, err)
	}
	p.logger.Debug("source tree copied", "source", p.opts.SourceDir, "root", p.installRoot, "bytes", installed)

	for _, name := range MaintainerScripts {
		src, ok := p.opts.MaintainerScripts[name]
		if !ok {
			continue
		}
		if err := copyFile(p.fs, src, filepath.Join(tree.control, string(name)), scriptMode); err != nil {
			return fmt.Errorf("copying %s script: %w", name, err)
		}
	}

	if len(p.opts.Conffiles) > 0 {
		if err := p.writeFile(filepath.Join(tree.control, string(FileConffiles)), []byte(generateConffiles(p.opts.Conffiles)), 0o644); err != nil {
			return err
		}
	}

	control := generateControlFile(&p.opts.Control, installed)
	if err := p.writeFile(filepath.Join(tree.control, string(FileControl)), []byte(control), 0o644); err != nil {
		return err
	}

	icon, err := p.copyIcon(tree)
	if err != nil {
		return err
	}
	if p.opts.SkipDesktopEntry {
		return nil
	}
	return p.writeDesktopEntry(ctx, tree, icon)
}

// copyIcon copies the icon to usr/share/pixmaps and reports whether it did.
// A missing icon is skipped with a warning.
func (p *Packager) copyIcon(tree scratchTree) (bool, error) {
	if p.opts.Icon == "" {
		return false, nil
	}
	info, err := p.fs.Stat(p.opts.Icon)
	if err != nil || info.IsDir() {
		p.logger.Warn("icon not found, skipping app icon", "path", p.opts.Icon)
		return false, nil
	}
	dest := filepath.Join(tree.data, "usr", "share", "pixmaps", p.opts.Control.Package+filepath.Ext(p.opts.Icon))
	if err := p.fs.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return false, ioErr("creating %s: %w", filepath.Dir(dest), err)
	}
	if err := copyFile(p.fs, p.opts.Icon, dest, 0o644); err != nil {
		return false, fmt.Errorf("copying icon: %w", err)
	}
	p.logger.Debug("app icon copied", "path", dest)
	return true, nil
}

func (p *Packager) writeDesktopEntry(ctx context.Context, tree scratchTree, icon bool) error {
	m := p.opts.Control
	entry := DesktopEntry{
		"Comment":     m.Description,
		"GenericName": m.Package,
		"Name":        m.Package,
		"Type":        "Application",
	}
	if icon {
		entry["Icon"] = m.Package
	}
	if p.hooks.beforeCreateDesktopEntry != nil {
		var err error
		if entry, err = p.hooks.beforeCreateDesktopEntry(ctx, entry); err != nil {
			return &HookError{Hook: HookBeforeCreateDesktopEntry, Err: err}
		}
	}
	if len(entry) == 0 {
		p.logger.Debug("empty desktop entry, skipping")
		return nil
	}
	dest := filepath.Join(tree.data, "usr", "share", "applications", m.Package+".desktop")
	if err := p.fs.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return ioErr("creating %s: %w", filepath.Dir(dest), err)
	}
	return p.writeFile(dest, []byte(entry.String()), 0o644)
}

// copyTree copies the tree rooted at src into dst, keeping modes and
// modification times, and returns the total size of the regular files.
// Symlinks are recreated when the filesystem supports them. dst itself only
// gets the mode and time of src when keepRoot is set.
//
// Directories stay writable while they are filled; their modes and times
// are applied afterwards, children first.
func copyTree(ctx context.Context, fsys afero.Fs, src, dst string, keepRoot bool) (int64, error) {
	type dirAttrs struct {
		path    string
		perm    os.FileMode
		modTime time.Time
	}
	var (
		total int64
		dirs  []dirAttrs
	)
	err := afero.Walk(fsys, src, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return ioErr("walking %s: %w", p, err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		switch mode := info.Mode(); {
		case mode.IsDir():
			if err := fsys.MkdirAll(target, mode.Perm()|0o700); err != nil {
				return ioErr("creating %s: %w", target, err)
			}
			if rel != "." || keepRoot {
				dirs = append(dirs, dirAttrs{path: target, perm: mode.Perm(), modTime: info.ModTime()})
			}
			return nil
		case mode&os.ModeSymlink != 0:
			return copySymlink(fsys, p, target)
		case mode.IsRegular():
			if err := copyFile(fsys, p, target, mode.Perm()); err != nil {
				return err
			}
			total += info.Size()
		default:
			return fmt.Errorf("%w: %s has unsupported file type %s", ErrIO, p, mode.Type())
		}
		if err := fsys.Chtimes(target, info.ModTime(), info.ModTime()); err != nil {
			return ioErr("chtimes %s: %w", target, err)
		}
		return nil
	})
	if err != nil {
		return total, err
	}

	for i := len(dirs) - 1; i >= 0; i-- {
		d := dirs[i]
		// MkdirAll leaves existing directories alone and applies the umask.
		if err := fsys.Chmod(d.path, d.perm); err != nil {
			return total, ioErr("chmod %s: %w", d.path, err)
		}
		if err := fsys.Chtimes(d.path, d.modTime, d.modTime); err != nil {
			return total, ioErr("chtimes %s: %w", d.path, err)
		}
	}
	return total, nil
}

// removeTree removes root like RemoveAll, first making directories writable
// when a read-only one is in the way.
func removeTree(fsys afero.Fs, root string) error {
	if err := fsys.RemoveAll(root); err == nil {
		return nil
	}
	afero.Walk(fsys, root, func(p string, info os.FileInfo, err error) error {
		if err == nil && info.IsDir() {
			fsys.Chmod(p, info.Mode().Perm()|0o700)
		}
		return nil
	})
	return fsys.RemoveAll(root)
}

func copySymlink(fsys afero.Fs, src, dst string) error {
	lr, ok := fsys.(afero.LinkReader)
	sl, ok2 := fsys.(afero.Symlinker)
	if !ok || !ok2 {
		return fmt.Errorf("%w: filesystem cannot copy symlink %s", ErrIO, src)
	}
	link, err := lr.ReadlinkIfPossible(src)
	if err != nil {
		return ioErr("reading symlink %s: %w", src, err)
	}
	if err := sl.SymlinkIfPossible(link, dst); err != nil {
		return ioErr("creating symlink %s: %w", dst, err)
	}
	return nil
}

// copyFile streams src to dst, creating or truncating it with mode perm.
func copyFile(fsys afero.Fs, src, dst string, perm os.FileMode) error {
	in, err := fsys.Open(src)
	if err != nil {
		return ioErr("opening %s: %w", src, err)
	}
	defer in.Close()

	out, err := fsys.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return ioErr("creating %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return ioErr("copying %s: %w", src, err)
	}
	if err := out.Close(); err != nil {
		return ioErr("closing %s: %w", dst, err)
	}
	// OpenFile applies the umask to perm.
	if err := fsys.Chmod(dst, perm); err != nil {
		return ioErr("chmod %s: %w", dst, err)
	}
	return nil
}
