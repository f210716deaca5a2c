package deb

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"path"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/spf13/afero"
	"go.yaml.in/yaml/v3"
)

// Hook names, as reported in HookError.
const (
	HookBeforeCreateDesktopEntry = "beforeCreateDesktopEntry"
	HookBeforePackage            = "beforePackage"
	HookModifyTarHeader          = "modifyTarHeader"
)

// HeaderFunc rewrites a tar header before it is written. It may change any
// field, and returning an error aborts the staging run.
type HeaderFunc func(hdr *tar.Header) (*tar.Header, error)

// PackageFunc runs once the data tree is populated, before it is archived.
// dataDir is the root of the data tree in the scratch directory.
type PackageFunc func(ctx context.Context, dataDir string) error

// DesktopEntryFunc receives the default desktop entries and returns the ones
// to write. Returning an empty map skips the .desktop file.
type DesktopEntryFunc func(ctx context.Context, entries DesktopEntry) (DesktopEntry, error)

// HookFunc is the set of function types a Hook can carry.
type HookFunc interface {
	HeaderFunc | PackageFunc | DesktopEntryFunc
}

// Hook is either an inline function or a reference to a file that resolves
// to one. The zero Hook is unset.
//
// A path resolves according to the hook kind:
//   - HeaderFunc: a YAML file of HeaderRules.
//   - DesktopEntryFunc: a YAML mapping merged over the default entries; an
//     empty value removes the key.
//   - PackageFunc: an executable invoked with the data directory as its
//     only argument.
type Hook[F HookFunc] struct {
	fn   F
	path string
}

// Inline returns a Hook calling fn.
func Inline[F HookFunc](fn F) Hook[F] {
	return Hook[F]{fn: fn}
}

// PathRef returns a Hook resolved from the file at path.
func PathRef[F HookFunc](path string) Hook[F] {
	return Hook[F]{path: path}
}

// Path returns the referenced file, or "" for inline hooks.
func (h Hook[F]) Path() string { return h.path }

// HeaderRule rewrites the headers of the tar entries it matches.
type HeaderRule struct {
	// Match is a path.Match pattern tested against the entry name without
	// its "./" prefix or trailing slash. Empty matches every entry.
	Match string `yaml:"match"`
	// Type restricts the rule to "file", "dir" or "symlink" entries.
	Type string `yaml:"type"`
	// Mode is the octal permission to set, e.g. "0700".
	Mode  string `yaml:"mode"`
	UID   *int   `yaml:"uid"`
	GID   *int   `yaml:"gid"`
	Uname string `yaml:"uname"`
	Gname string `yaml:"gname"`
}

// HeaderRules is an ordered list of rules; every matching rule applies.
type HeaderRules []HeaderRule

// Validate checks patterns, types and modes.
func (rs HeaderRules) Validate() error {
	for i, r := range rs {
		if _, err := path.Match(r.Match, ""); err != nil {
			return fmt.Errorf("rule %d: bad pattern %q: %w", i, r.Match, err)
		}
		switch r.Type {
		case "", "file", "dir", "symlink":
		default:
			return fmt.Errorf("rule %d: unknown type %q", i, r.Type)
		}
		if r.Mode != "" {
			if _, err := strconv.ParseInt(r.Mode, 8, 64); err != nil {
				return fmt.Errorf("rule %d: mode %q is not octal", i, r.Mode)
			}
		}
	}
	return nil
}

// Func returns a HeaderFunc applying the rules. The rules must be valid.
func (rs HeaderRules) Func() HeaderFunc {
	return func(hdr *tar.Header) (*tar.Header, error) {
		name := strings.TrimSuffix(strings.TrimPrefix(hdr.Name, "./"), "/")
		for _, r := range rs {
			if !r.matches(name, hdr.Typeflag) {
				continue
			}
			if r.Mode != "" {
				mode, _ := strconv.ParseInt(r.Mode, 8, 64)
				hdr.Mode = mode
			}
			if r.UID != nil {
				hdr.Uid = *r.UID
			}
			if r.GID != nil {
				hdr.Gid = *r.GID
			}
			if r.Uname != "" {
				hdr.Uname = r.Uname
			}
			if r.Gname != "" {
				hdr.Gname = r.Gname
			}
		}
		return hdr, nil
	}
}

func (r HeaderRule) matches(name string, typeflag byte) bool {
	switch r.Type {
	case "file":
		if typeflag != tar.TypeReg {
			return false
		}
	case "dir":
		if typeflag != tar.TypeDir {
			return false
		}
	case "symlink":
		if typeflag != tar.TypeSymlink {
			return false
		}
	}
	if r.Match == "" {
		return true
	}
	ok, _ := path.Match(r.Match, name)
	return ok
}

// resolvedHooks holds the callable form of every configured hook.
type resolvedHooks struct {
	beforeCreateDesktopEntry DesktopEntryFunc
	beforePackage            PackageFunc
	modifyTarHeader          HeaderFunc
}

// hookResolver turns Hooks into functions, reading referenced files from fsys.
type hookResolver struct {
	fsys   afero.Fs
	logger *slog.Logger
}

func (r hookResolver) header(h Hook[HeaderFunc]) (HeaderFunc, error) {
	if h.fn != nil || h.path == "" {
		return h.fn, nil
	}
	data, err := r.read(HookModifyTarHeader, h.path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		Rules HeaderRules `yaml:"rules"`
	}
	if err := decodeYAML(data, &doc); err != nil {
		return nil, &HookError{Hook: HookModifyTarHeader, Err: fmt.Errorf("%w: parsing %s: %w", ErrConfig, h.path, err)}
	}
	if err := doc.Rules.Validate(); err != nil {
		return nil, &HookError{Hook: HookModifyTarHeader, Err: fmt.Errorf("%w: %s: %w", ErrConfig, h.path, err)}
	}
	return doc.Rules.Func(), nil
}

func (r hookResolver) desktopEntry(h Hook[DesktopEntryFunc]) (DesktopEntryFunc, error) {
	if h.fn != nil || h.path == "" {
		return h.fn, nil
	}
	data, err := r.read(HookBeforeCreateDesktopEntry, h.path)
	if err != nil {
		return nil, err
	}
	var overrides map[string]string
	if err := decodeYAML(data, &overrides); err != nil {
		return nil, &HookError{Hook: HookBeforeCreateDesktopEntry, Err: fmt.Errorf("%w: parsing %s: %w", ErrConfig, h.path, err)}
	}
	return func(_ context.Context, entries DesktopEntry) (DesktopEntry, error) {
		out := make(DesktopEntry, len(entries)+len(overrides))
		for k, v := range entries {
			out[k] = v
		}
		for k, v := range overrides {
			if v == "" {
				delete(out, k)
				continue
			}
			out[k] = v
		}
		return out, nil
	}, nil
}

func (r hookResolver) pkg(h Hook[PackageFunc]) (PackageFunc, error) {
	if h.fn != nil || h.path == "" {
		return h.fn, nil
	}
	script, err := filepath.Abs(h.path)
	if err != nil {
		return nil, &HookError{Hook: HookBeforePackage, Err: fmt.Errorf("%w: %w", ErrConfig, err)}
	}
	info, err := r.fsys.Stat(script)
	if err != nil {
		return nil, &HookError{Hook: HookBeforePackage, Err: fmt.Errorf("%w: the file %s doesn't exist or cannot be accessed: %w", ErrConfig, h.path, err)}
	}
	if info.IsDir() || (runtime.GOOS != "windows" && info.Mode().Perm()&0o111 == 0) {
		return nil, &HookError{Hook: HookBeforePackage, Err: fmt.Errorf("%w: the file %s must be an executable", ErrConfig, h.path)}
	}
	logger := r.logger
	return func(ctx context.Context, dataDir string) error {
		cmd := exec.CommandContext(ctx, script, dataDir)
		out, err := cmd.CombinedOutput()
		if len(out) > 0 {
			logger.Debug("hook output", "hook", HookBeforePackage, "output", string(bytes.TrimSpace(out)))
		}
		if err != nil {
			return fmt.Errorf("running %s: %w", script, err)
		}
		return nil
	}, nil
}

func (r hookResolver) read(hook, p string) ([]byte, error) {
	data, err := afero.ReadFile(r.fsys, p)
	if err != nil {
		return nil, &HookError{Hook: hook, Err: fmt.Errorf("%w: the file %s doesn't exist or cannot be accessed: %w", ErrConfig, p, err)}
	}
	return data, nil
}

// resolve resolves every hook of opts.
func (r hookResolver) resolve(opts *Options) (resolvedHooks, error) {
	var (
		hooks resolvedHooks
		err   error
	)
	if hooks.beforeCreateDesktopEntry, err = r.desktopEntry(opts.BeforeCreateDesktopEntry); err != nil {
		return hooks, err
	}
	if hooks.beforePackage, err = r.pkg(opts.BeforePackage); err != nil {
		return hooks, err
	}
	if hooks.modifyTarHeader, err = r.header(opts.ModifyTarHeader); err != nil {
		return hooks, err
	}
	return hooks, nil
}

func decodeYAML(data []byte, v any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
