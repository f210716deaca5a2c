package deb

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

// Stage is a step of a packaging run.
type Stage int

const (
	StageInitializing Stage = iota
	StagePopulating
	StagePreAssemblyHook
	StageStaging
	StageAssembling
	StageCleanup
	StageDone
)

var stageNames = [...]string{
	StageInitializing:    "Initializing",
	StagePopulating:      "Populating",
	StagePreAssemblyHook: "PreAssemblyHook",
	StageStaging:         "Staging",
	StageAssembling:      "Assembling",
	StageCleanup:         "Cleanup",
	StageDone:            "Done",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("Stage(%d)", int(s))
	}
	return stageNames[s]
}

// MarshalText renders the stage by name in events.
func (s Stage) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Options describes the package to build.
type Options struct {
	// SourceDir is the directory holding the files to install.
	SourceDir string
	// TargetDir receives the package file. It is created if needed.
	TargetDir string
	// TargetFileName is the package file name. It defaults to
	// Control.StandardFilename(); ".deb" is appended when missing.
	TargetFileName string

	// Compression of the control and data tarballs. Defaults to DefaultCompression.
	Compression Compression

	// InstallationRoot is where SourceDir lands on the target system.
	// It defaults to "usr/lib/<Package>"; "/" installs at the root.
	InstallationRoot string

	Control Metadata

	// MaintainerScripts maps a script name (preinst, postinst, prerm,
	// postrm) to the file to ship.
	MaintainerScripts map[ControlFile]string

	// Conffiles lists the absolute paths, on the target system, of the
	// configuration files.
	Conffiles []string

	// Icon is copied to /usr/share/pixmaps and referenced by the desktop entry.
	Icon string
	// SkipDesktopEntry disables the /usr/share/applications entry.
	SkipDesktopEntry bool

	// AdditionalTarEntries are appended to the data tarball after the tree.
	AdditionalTarEntries []TarEntry

	BeforeCreateDesktopEntry Hook[DesktopEntryFunc]
	BeforePackage            Hook[PackageFunc]
	// ModifyTarHeader is applied to the entries of both tarballs, which are
	// staged concurrently.
	ModifyTarHeader Hook[HeaderFunc]

	// ModTime, if set, stamps every tar entry and archive member, making
	// the output reproducible.
	ModTime time.Time
}

// Option configures a Packager.
type Option func(*Packager)

// WithFs sets the filesystem the Packager works on. Defaults to the OS filesystem.
func WithFs(fs afero.Fs) Option {
	return func(p *Packager) { p.fs = fs }
}

// WithLogger sets the logger. Defaults to discarding everything.
func WithLogger(l *slog.Logger) Option {
	return func(p *Packager) { p.logger = l }
}

// WithListener registers a callback receiving the events of the run.
func WithListener(l Listener) Option {
	return func(p *Packager) { p.listener = l }
}

// WithTempDir sets the parent of the scratch directory. Defaults to the
// system temporary directory.
func WithTempDir(dir string) Option {
	return func(p *Packager) { p.tempDir = dir }
}

// Packager builds one package. A Packager runs at most once.
type Packager struct {
	opts        Options
	installRoot string
	fileName    string

	fs       afero.Fs
	logger   *slog.Logger
	listener Listener
	tempDir  string

	hooksMu     sync.Mutex
	hooksLoaded bool
	hooks       resolvedHooks

	runMu sync.Mutex
	ran   bool
}

// New validates opts, applies the defaults and returns a Packager ready to run.
// Every validation failure matches ErrConfig.
func New(opts Options, options ...Option) (*Packager, error) {
	p := &Packager{opts: opts}
	for _, o := range options {
		o(p)
	}
	if p.fs == nil {
		p.fs = afero.NewOsFs()
	}
	if p.logger == nil {
		p.logger = discardLogger
	}
	if err := p.init(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Packager) init() error {
	o := &p.opts
	if o.SourceDir == "" {
		return fmt.Errorf("%w: the source directory is required", ErrConfig)
	}
	if o.TargetDir == "" {
		return fmt.Errorf("%w: the target directory is required", ErrConfig)
	}
	var err error
	if o.SourceDir, err = filepath.Abs(o.SourceDir); err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if o.TargetDir, err = filepath.Abs(o.TargetDir); err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}

	if o.Compression == "" {
		o.Compression = DefaultCompression
	}
	if err := o.Compression.Valid(); err != nil {
		return err
	}

	o.Control.applyDefaults()
	if err := o.Control.validate(); err != nil {
		return err
	}

	info, err := p.fs.Stat(o.SourceDir)
	if err != nil {
		return fmt.Errorf("%w: the source directory %s doesn't exist or cannot be accessed: %w", ErrConfig, o.SourceDir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: the source %s is not a directory", ErrConfig, o.SourceDir)
	}
	if info, err := p.fs.Stat(o.TargetDir); err == nil && !info.IsDir() {
		return fmt.Errorf("%w: the target %s is not a directory", ErrConfig, o.TargetDir)
	}

	for name, script := range o.MaintainerScripts {
		if !isMaintainerScript(string(name)) {
			return fmt.Errorf("%w: unknown maintainer script %q", ErrConfig, name)
		}
		info, err := p.fs.Stat(script)
		if err != nil {
			return fmt.Errorf("%w: the %s script %s doesn't exist or cannot be accessed: %w", ErrConfig, name, script, err)
		}
		if !info.Mode().IsRegular() {
			return fmt.Errorf("%w: the %s script %s is not a regular file", ErrConfig, name, script)
		}
	}

	for _, e := range o.AdditionalTarEntries {
		if e.Header == nil || e.Header.Name == "" {
			return fmt.Errorf("%w: additional tar entries need a header with a name", ErrConfig)
		}
	}

	p.installRoot = installationRoot(o.InstallationRoot, o.Control.Package)

	p.fileName = o.TargetFileName
	if p.fileName == "" {
		p.fileName = o.Control.StandardFilename()
	}
	if strings.ContainsAny(p.fileName, `/\`) {
		return fmt.Errorf("%w: the target file name %q must not contain a path separator", ErrConfig, p.fileName)
	}
	if !strings.HasSuffix(p.fileName, ".deb") {
		p.fileName += ".deb"
	}
	return nil
}

// installationRoot returns the install path relative to the data root, "."
// for the root itself.
func installationRoot(root, pkg string) string {
	if root == "" {
		return path.Join("usr/lib", pkg)
	}
	clean := path.Clean("/" + filepath.ToSlash(root))
	if clean == "/" {
		return "."
	}
	return strings.TrimPrefix(clean, "/")
}

// Options returns the options after defaults were applied.
func (p *Packager) Options() Options { return p.opts }

// OutputPath returns the path the package file is written to.
func (p *Packager) OutputPath() string {
	return filepath.Join(p.opts.TargetDir, p.fileName)
}

// LoadHooks resolves the hooks given as paths. It runs as part of Package
// and can be called beforehand to fail early. Once it succeeds, the
// resolved hooks are kept and later calls do nothing.
func (p *Packager) LoadHooks() error {
	p.hooksMu.Lock()
	defer p.hooksMu.Unlock()
	if p.hooksLoaded {
		return nil
	}
	hooks, err := hookResolver{fsys: p.fs, logger: p.logger}.resolve(&p.opts)
	if err != nil {
		return err
	}
	p.hooks = hooks
	p.hooksLoaded = true
	return nil
}

// scratchTree is the private working directory of a run.
type scratchTree struct {
	root    string
	control string
	data    string
}

// Package builds the package and returns the absolute path of the written
// file. The scratch directory is removed whatever the outcome, and no file
// is left at the output path on failure.
func (p *Packager) Package(ctx context.Context) (out string, err error) {
	p.runMu.Lock()
	if p.ran {
		p.runMu.Unlock()
		return "", &StageError{Stage: StageInitializing, Err: fmt.Errorf("%w: the packager already ran", ErrState)}
	}
	p.ran = true
	p.runMu.Unlock()

	start := time.Now()
	p.enter(StageInitializing)
	tree, err := p.createScratch()
	if err != nil {
		return "", &StageError{Stage: StageInitializing, Err: err}
	}
	defer func() {
		p.enter(StageCleanup)
		if rmErr := removeTree(p.fs, tree.root); rmErr != nil {
			p.logger.Warn("removing scratch directory", "path", tree.root, "error", rmErr)
		}
		if err != nil {
			p.logger.Error("packaging failed", "package", p.opts.Control.Package, "error", err)
			return
		}
		p.enter(StageDone)
		p.logger.Info("package written", "path", out, "duration", time.Since(start))
	}()

	if err := p.LoadHooks(); err != nil {
		return "", &StageError{Stage: StageInitializing, Err: err}
	}

	p.enter(StagePopulating)
	if err := p.populate(ctx, tree); err != nil {
		return "", &StageError{Stage: StagePopulating, Err: err}
	}

	p.enter(StagePreAssemblyHook)
	if err := p.preAssembly(ctx, tree); err != nil {
		return "", &StageError{Stage: StagePreAssemblyHook, Err: err}
	}

	p.enter(StageStaging)
	control, data, err := p.stage(ctx, tree)
	if err != nil {
		return "", &StageError{Stage: StageStaging, Err: err}
	}

	p.enter(StageAssembling)
	if out, err = p.assemble(ctx, control, data); err != nil {
		return "", &StageError{Stage: StageAssembling, Err: err}
	}
	return out, nil
}

func (p *Packager) enter(s Stage) {
	p.logger.Info("stage", "stage", s.String(), "package", p.opts.Control.Package)
	p.emit(EventStage{Stage: s})
}

func (p *Packager) emit(e fmt.Stringer) {
	if p.listener != nil {
		p.listener(e)
	}
}

func (p *Packager) createScratch() (scratchTree, error) {
	root, err := afero.TempDir(p.fs, p.tempDir, "debpack-")
	if err != nil {
		return scratchTree{}, ioErr("creating scratch directory: %w", err)
	}
	tree := scratchTree{
		root:    root,
		control: filepath.Join(root, "control"),
		data:    filepath.Join(root, "data"),
	}
	for _, dir := range []string{tree.control, tree.data} {
		if err := p.fs.MkdirAll(dir, 0o755); err != nil {
			p.fs.RemoveAll(root)
			return scratchTree{}, ioErr("creating %s: %w", dir, err)
		}
	}
	p.logger.Debug("scratch directory created", "path", root)
	return tree, nil
}

// preAssembly runs the beforePackage hook, then records the checksums of
// the data tree as it is after the hook.
func (p *Packager) preAssembly(ctx context.Context, tree scratchTree) error {
	if p.hooks.beforePackage != nil {
		if err := p.hooks.beforePackage(ctx, tree.data); err != nil {
			return &HookError{Hook: HookBeforePackage, Err: err}
		}
	}
	sums, err := generateMd5sums(p.fs, tree.data)
	if err != nil {
		return fmt.Errorf("computing md5sums: %w", err)
	}
	return p.writeFile(filepath.Join(tree.control, string(FileMd5sums)), []byte(sums), 0o644)
}

// stage produces the control and data tarballs concurrently.
func (p *Packager) stage(ctx context.Context, tree scratchTree) (control, data *Artifact, err error) {
	ext := p.opts.Compression.Extension()
	controlStager := &TarStager{
		Fs:             p.fs,
		Compression:    p.opts.Compression,
		ModifyHeader:   p.hooks.modifyTarHeader,
		ControlScripts: true,
		ModTime:        p.opts.ModTime,
		Logger:         p.logger,
	}
	dataStager := &TarStager{
		Fs:           p.fs,
		Compression:  p.opts.Compression,
		ModifyHeader: p.hooks.modifyTarHeader,
		ExtraEntries: p.opts.AdditionalTarEntries,
		ModTime:      p.opts.ModTime,
		Logger:       p.logger,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		control, err = controlStager.Stage(gctx, tree.control, filepath.Join(tree.root, string(PkgControlTar)+ext))
		return err
	})
	g.Go(func() error {
		var err error
		data, err = dataStager.Stage(gctx, tree.data, filepath.Join(tree.root, string(PkgDataTar)+ext))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	for _, a := range []*Artifact{control, data} {
		p.emit(EventArtifactStaged{Name: a.Name, Size: a.Size})
	}
	return control, data, nil
}

// assemble writes the package under a temporary name in the target
// directory, then renames it into place.
func (p *Packager) assemble(ctx context.Context, control, data *Artifact) (string, error) {
	if err := p.fs.MkdirAll(p.opts.TargetDir, 0o755); err != nil {
		return "", ioErr("creating target directory %s: %w", p.opts.TargetDir, err)
	}
	final := p.OutputPath()
	tmp, err := afero.TempFile(p.fs, p.opts.TargetDir, "."+p.fileName+".*.tmp")
	if err != nil {
		return "", ioErr("creating temporary package file: %w", err)
	}
	tmpName := tmp.Name()
	committed, closed := false, false
	defer func() {
		if committed {
			return
		}
		if !closed {
			tmp.Close()
		}
		if err := p.fs.Remove(tmpName); err != nil && !os.IsNotExist(err) {
			p.logger.Warn("removing temporary package file", "path", tmpName, "error", err)
		}
	}()

	aw := NewArchiveWriter(tmp, WithMemberTime(p.opts.ModTime))
	// Control must precede data.
	for _, a := range []*Artifact{control, data} {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if err := aw.AppendFile(p.fs, a.Name, a.Path); err != nil {
			return "", err
		}
		p.logger.Debug("member written", "member", a.Name, "size", a.Size)
		p.emit(EventMemberWritten{Member: a.Name, Size: a.Size})
	}

	if err := tmp.Sync(); err != nil {
		return "", ioErr("syncing %s: %w", tmpName, err)
	}
	closed = true
	if err := tmp.Close(); err != nil {
		return "", ioErr("closing %s: %w", tmpName, err)
	}
	if err := p.fs.Rename(tmpName, final); err != nil {
		return "", ioErr("renaming %s to %s: %w", tmpName, final, err)
	}
	committed = true

	m := p.opts.Control
	p.emit(EventPackageWritten{
		Path:         final,
		Package:      m.Package,
		Version:      m.Version,
		Architecture: m.Architecture,
		Size:         aw.Written(),
	})
	return final, nil
}

func (p *Packager) writeFile(name string, body []byte, perm os.FileMode) error {
	if err := afero.WriteFile(p.fs, name, body, perm); err != nil {
		return ioErr("writing %s: %w", name, err)
	}
	return nil
}
