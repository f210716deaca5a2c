package manifest

import (
	"archive/tar"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/etnz/debpack/deb"
)

// Package represents the definition of a Debian package: where its files
// come from, its control metadata and the hooks customizing the build.
// Every string value may use {{ .KEY }} templates resolved from Defines.
type Package struct {
	// Defines is a map of variables available to templates in this package.
	Defines map[string]string `json:"defines,omitempty" yaml:"defines" toml:"defines,omitempty"`
	// Source is the directory holding the files to install.
	Source string `json:"source" yaml:"source" toml:"source"`
	// Target is the directory receiving the .deb file.
	Target string `json:"target" yaml:"target" toml:"target"`
	// FileName overrides the standard {package}_{version}_{arch}.deb name.
	FileName string `json:"file_name,omitempty" yaml:"file_name" toml:"file_name,omitempty"`
	// Compression is one of plain, gzip, xz or zstd.
	Compression string `json:"compression,omitempty" yaml:"compression" toml:"compression,omitempty"`
	// InstallationRoot is where Source lands on the target system.
	InstallationRoot string `json:"installation_root,omitempty" yaml:"installation_root" toml:"installation_root,omitempty"`
	// Meta contains the control file fields, keyed by their control file name (e.g. "Pre-Depends").
	Meta map[string]string `json:"meta" yaml:"meta" toml:"meta"`
	// Scripts maps a maintainer script name to its source file.
	Scripts map[string]string `json:"scripts,omitempty" yaml:"scripts" toml:"scripts,omitempty"`
	// Conffiles lists the absolute paths of configuration files on the target system.
	Conffiles []string `json:"conffiles,omitempty" yaml:"conffiles" toml:"conffiles,omitempty"`
	// Icon is the application icon copied to /usr/share/pixmaps.
	Icon string `json:"icon,omitempty" yaml:"icon" toml:"icon,omitempty"`
	// SkipDesktopEntry disables the generated .desktop file.
	SkipDesktopEntry bool `json:"skip_desktop_entry,omitempty" yaml:"skip_desktop_entry" toml:"skip_desktop_entry,omitempty"`
	// Links are symlinks added to the data archive.
	Links []Link `json:"links,omitempty" yaml:"links" toml:"links,omitempty"`
	// Hooks reference the files customizing the build.
	Hooks Hooks `json:"hooks,omitempty" yaml:"hooks" toml:"hooks,omitempty"`
	// SourceDateEpoch, if set, stamps every entry with this Unix time.
	SourceDateEpoch int64 `json:"source_date_epoch,omitempty" yaml:"source_date_epoch" toml:"source_date_epoch,omitempty"`

	filePath string
	engine   *templateEngine
}

// Link is a symbolic link installed by the package.
type Link struct {
	// Path is the absolute path of the link on the target system.
	Path string `json:"path" yaml:"path" toml:"path"`
	// Target is what the link points to.
	Target string `json:"target" yaml:"target" toml:"target"`
}

// Hooks holds the paths of the hook files, relative to the manifest.
type Hooks struct {
	// BeforeCreateDesktopEntry is a YAML mapping merged over the default desktop entry.
	BeforeCreateDesktopEntry string `json:"before_create_desktop_entry,omitempty" yaml:"before_create_desktop_entry" toml:"before_create_desktop_entry,omitempty"`
	// BeforePackage is an executable run with the data directory as argument.
	BeforePackage string `json:"before_package,omitempty" yaml:"before_package" toml:"before_package,omitempty"`
	// ModifyTarHeader is a YAML file of header rules.
	ModifyTarHeader string `json:"modify_tar_header,omitempty" yaml:"modify_tar_header" toml:"modify_tar_header,omitempty"`
}

// FilePath returns the path the manifest was loaded from.
func (p *Package) FilePath() string { return p.filePath }

// resolve returns path relative to the manifest directory, unless absolute.
func (p *Package) resolve(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(filepath.Dir(p.filePath), path)
}

// Options renders the templates of the manifest and maps it to deb.Options.
func (p *Package) Options() (deb.Options, error) {
	var opts deb.Options
	if p.engine == nil {
		p.engine = newTemplateEngine(p.Defines)
	}
	r := renderer{engine: p.engine}

	opts.SourceDir = p.resolve(r.render("source", p.Source))
	opts.TargetDir = p.resolve(r.render("target", p.Target))
	opts.TargetFileName = r.render("file_name", p.FileName)
	opts.InstallationRoot = r.render("installation_root", p.InstallationRoot)
	opts.Icon = p.resolve(r.render("icon", p.Icon))
	opts.SkipDesktopEntry = p.SkipDesktopEntry

	if c := r.render("compression", p.Compression); c != "" && r.err == nil {
		compression, err := deb.ParseCompression(c)
		if err != nil {
			return opts, err
		}
		opts.Compression = compression
	}

	// Sorted for deterministic error reporting.
	keys := make([]string, 0, len(p.Meta))
	for k := range p.Meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		opts.Control.Set(k, r.render("meta."+k, p.Meta[k]))
	}

	if len(p.Scripts) > 0 {
		opts.MaintainerScripts = make(map[deb.ControlFile]string, len(p.Scripts))
		for name, src := range p.Scripts {
			opts.MaintainerScripts[deb.ControlFile(name)] = p.resolve(r.render("scripts."+name, src))
		}
	}

	for i, c := range p.Conffiles {
		opts.Conffiles = append(opts.Conffiles, r.render(fmt.Sprintf("conffiles[%d]", i), c))
	}

	if p.SourceDateEpoch != 0 {
		opts.ModTime = time.Unix(p.SourceDateEpoch, 0).UTC()
	}
	linkTime := opts.ModTime
	if linkTime.IsZero() {
		linkTime = time.Now().Truncate(time.Second)
	}
	for i, l := range p.Links {
		name := r.render(fmt.Sprintf("links[%d].path", i), l.Path)
		target := r.render(fmt.Sprintf("links[%d].target", i), l.Target)
		opts.AdditionalTarEntries = append(opts.AdditionalTarEntries, deb.TarEntry{Header: &tar.Header{
			Typeflag: tar.TypeSymlink,
			Name:     "./" + strings.TrimPrefix(name, "/"),
			Linkname: target,
			Mode:     0o777,
			ModTime:  linkTime,
			Uname:    "root",
			Gname:    "root",
		}})
	}

	if h := p.resolve(r.render("hooks.before_create_desktop_entry", p.Hooks.BeforeCreateDesktopEntry)); h != "" {
		opts.BeforeCreateDesktopEntry = deb.PathRef[deb.DesktopEntryFunc](h)
	}
	if h := p.resolve(r.render("hooks.before_package", p.Hooks.BeforePackage)); h != "" {
		opts.BeforePackage = deb.PathRef[deb.PackageFunc](h)
	}
	if h := p.resolve(r.render("hooks.modify_tar_header", p.Hooks.ModifyTarHeader)); h != "" {
		opts.ModifyTarHeader = deb.PathRef[deb.HeaderFunc](h)
	}

	if r.err != nil {
		return deb.Options{}, r.err
	}
	return opts, nil
}

// renderer renders templates until the first error, which it keeps.
type renderer struct {
	engine *templateEngine
	err    error
}

func (r *renderer) render(name, text string) string {
	if r.err != nil {
		return ""
	}
	out, err := r.engine.render(name, text)
	if err != nil {
		r.err = fmt.Errorf("rendering %s: %w", name, err)
		return ""
	}
	return out
}
