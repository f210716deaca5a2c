package deb

import (
	"fmt"
	"regexp"
	"runtime"
	"strings"
)

// Metadata maps directly to the fields in the Debian 'control' file.
//
// Reference: https://www.debian.org/doc/debian-policy/ch-controlfields.html#binary-package-control-files-debian-control
type Metadata struct {
	// Package is the name of the package. It must consist only of lower case
	// letters (a-z), digits (0-9), plus (+) and minus (-) signs, and periods (.).
	// It must be at least two characters long and must start with an alphanumeric character.
	//
	// Reference: https://www.debian.org/doc/debian-policy/ch-controlfields.html#s-f-package
	Package string

	// Version is the version number of the package. The format is: [epoch:]upstream_version[-debian_revision].
	//
	// Reference: https://www.debian.org/doc/debian-policy/ch-controlfields.html#s-f-version
	Version string

	// Architecture specifies the hardware architecture the package is compiled for.
	// It defaults to the Debian name of the host architecture (see DebianArch).
	//
	// Reference: https://www.debian.org/doc/debian-policy/ch-controlfields.html#s-f-architecture
	Architecture string

	// Maintainer is the name and email address of the person responsible for this package.
	// Format: "Name <email@address.com>".
	//
	// Reference: https://www.debian.org/doc/debian-policy/ch-controlfields.html#s-f-maintainer
	Maintainer string

	// Description is the single line synopsis of the package.
	//
	// Reference: https://www.debian.org/doc/debian-policy/ch-controlfields.html#s-f-description
	Description string

	// ExtendedDescription is the body following the synopsis. Empty lines are
	// written as " ." in the control file. It defaults to Description.
	ExtendedDescription string

	// Section classifies the package into a category (e.g., "utils", "web", "devel").
	//
	// Reference: https://www.debian.org/doc/debian-policy/ch-controlfields.html#s-f-section
	Section string

	// Priority represents the importance of this package. It defaults to "optional".
	//
	// Reference: https://www.debian.org/doc/debian-policy/ch-controlfields.html#s-f-priority
	Priority string

	// Homepage is the URL of the upstream project's home page.
	//
	// Reference: https://www.debian.org/doc/debian-policy/ch-controlfields.html#s-f-homepage
	Homepage string

	// Essential, if set to true, indicates that the package is essential for the system to function.
	//
	// Reference: https://www.debian.org/doc/debian-policy/ch-controlfields.html#s-f-essential
	Essential bool

	// Relationships with other packages, each item formatted as "package-name (>= version)".
	//
	// Reference: https://www.debian.org/doc/debian-policy/ch-relationships.html
	Depends    []string
	PreDepends []string
	Recommends []string
	Suggests   []string
	Enhances   []string
	Conflicts  []string
	Breaks     []string
	Replaces   []string
	Provides   []string

	// BuiltUsing identifies the source packages used to build this binary package.
	//
	// Reference: https://www.debian.org/doc/debian-policy/ch-controlfields.html#s-f-built-using
	BuiltUsing string

	// Source identifies the source package name if it differs from the binary package name.
	//
	// Reference: https://www.debian.org/doc/debian-policy/ch-controlfields.html#s-f-source
	Source string

	// ExtraFields holds any custom or non-standard fields that should be written to the control file.
	//
	// Reference: https://www.debian.org/doc/debian-policy/ch-controlfields.html#user-defined-fields
	ExtraFields map[string]string
}

// StandardFilename returns the canonical base name of the package file, without extension.
// Format: {Package}_{Version}_{Architecture}
//
// Reference: https://www.debian.org/doc/manuals/debian-faq/ch-pkg_basics.en.html#s-pkgname
func (m *Metadata) StandardFilename() string {
	return fmt.Sprintf("%s_%s_%s", m.Package, m.Version, m.Architecture)
}

// Set updates a specific field from its control file representation.
func (m *Metadata) Set(key, value string) {
	switch ControlField(key) {
	case FieldPackage:
		m.Package = value
	case FieldVersion:
		m.Version = value
	case FieldArchitecture:
		m.Architecture = value
	case FieldMaintainer:
		m.Maintainer = value
	case FieldDescription:
		synopsis, body, _ := strings.Cut(value, "\n")
		m.Description = strings.TrimSpace(synopsis)
		m.ExtendedDescription = unfoldDescription(body)
	case FieldSection:
		m.Section = value
	case FieldPriority:
		m.Priority = value
	case FieldHomepage:
		m.Homepage = value
	case FieldEssential:
		m.Essential = (value == "yes")
	case FieldDepends:
		m.Depends = splitList(value)
	case FieldPreDepends:
		m.PreDepends = splitList(value)
	case FieldRecommends:
		m.Recommends = splitList(value)
	case FieldSuggests:
		m.Suggests = splitList(value)
	case FieldEnhances:
		m.Enhances = splitList(value)
	case FieldConflicts:
		m.Conflicts = splitList(value)
	case FieldBreaks:
		m.Breaks = splitList(value)
	case FieldReplaces:
		m.Replaces = splitList(value)
	case FieldProvides:
		m.Provides = splitList(value)
	case FieldBuiltUsing:
		m.BuiltUsing = value
	case FieldSource:
		m.Source = value
	case FieldInstalledSize:
		// ignored, computed at generation time.
	default:
		if m.ExtraFields == nil {
			m.ExtraFields = make(map[string]string)
		}
		m.ExtraFields[key] = value
	}
}

var packageNameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9+.-]+$`)

// applyDefaults fills in the fields that have a sensible default.
func (m *Metadata) applyDefaults() {
	if m.Architecture == "" {
		m.Architecture = DebianArch(runtime.GOARCH)
	}
	if m.Priority == "" {
		m.Priority = "optional"
	}
	if m.ExtendedDescription == "" {
		m.ExtendedDescription = m.Description
	}
}

// validate checks the mandatory fields.
func (m *Metadata) validate() error {
	var missing []string
	for _, f := range []struct {
		field ControlField
		value string
	}{
		{FieldPackage, m.Package},
		{FieldVersion, m.Version},
		{FieldMaintainer, m.Maintainer},
		{FieldDescription, m.Description},
	} {
		if strings.TrimSpace(f.value) == "" {
			missing = append(missing, string(f.field))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing mandatory control fields: %s", ErrConfig, strings.Join(missing, ", "))
	}
	if !packageNameRe.MatchString(m.Package) {
		return fmt.Errorf("%w: package name %q must be at least two characters of [a-z0-9+.-] starting with an alphanumeric character", ErrConfig, m.Package)
	}
	if strings.Contains(m.Description, "\n") {
		return fmt.Errorf("%w: the description must be a single line, use the extended description for more", ErrConfig)
	}
	return nil
}

// DebianArch maps a GOARCH value to the Debian architecture name.
// Unknown values are returned unchanged.
//
// Reference: https://wiki.debian.org/SupportedArchitectures
func DebianArch(goarch string) string {
	switch goarch {
	case "386":
		return "i386"
	case "arm":
		return "armhf"
	case "ppc64le":
		return "ppc64el"
	case "mips64le":
		return "mips64el"
	case "loong64":
		return "loong64"
	}
	return goarch
}
