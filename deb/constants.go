package deb

// ControlField represents a standard field in a Debian control file.
type ControlField string

const (
	FieldPackage       ControlField = "Package"
	FieldVersion       ControlField = "Version"
	FieldArchitecture  ControlField = "Architecture"
	FieldMaintainer    ControlField = "Maintainer"
	FieldDescription   ControlField = "Description"
	FieldSection       ControlField = "Section"
	FieldPriority      ControlField = "Priority"
	FieldHomepage      ControlField = "Homepage"
	FieldEssential     ControlField = "Essential"
	FieldDepends       ControlField = "Depends"
	FieldPreDepends    ControlField = "Pre-Depends"
	FieldRecommends    ControlField = "Recommends"
	FieldSuggests      ControlField = "Suggests"
	FieldEnhances      ControlField = "Enhances"
	FieldConflicts     ControlField = "Conflicts"
	FieldBreaks        ControlField = "Breaks"
	FieldReplaces      ControlField = "Replaces"
	FieldProvides      ControlField = "Provides"
	FieldBuiltUsing    ControlField = "Built-Using"
	FieldSource        ControlField = "Source"
	FieldInstalledSize ControlField = "Installed-Size"
)

// ControlFile represents a standard file found in the control archive.
type ControlFile string

const (
	FileControl   ControlFile = "control"
	FileMd5sums   ControlFile = "md5sums"
	FileConffiles ControlFile = "conffiles"
	FilePreinst   ControlFile = "preinst"
	FilePostinst  ControlFile = "postinst"
	FilePrerm     ControlFile = "prerm"
	FilePostrm    ControlFile = "postrm"
)

// MaintainerScripts lists the control files that dpkg executes and that
// therefore must carry mode 0755 in the control archive.
var MaintainerScripts = []ControlFile{FilePreinst, FilePostinst, FilePrerm, FilePostrm}

// isMaintainerScript reports whether name is one of MaintainerScripts.
func isMaintainerScript(name string) bool {
	for _, s := range MaintainerScripts {
		if string(s) == name {
			return true
		}
	}
	return false
}

// PackageFile represents a standard member of the .deb archive (ar format).
// The tar members carry the codec extension, e.g. "data.tar.xz".
type PackageFile string

const (
	PkgDebianBinary PackageFile = "debian-binary"
	PkgControlTar   PackageFile = "control.tar"
	PkgDataTar      PackageFile = "data.tar"
)

// debianBinaryBody is the payload of the debian-binary member, the format version.
//
// Reference: https://manpages.debian.org/unstable/dpkg-dev/deb.5.en.html#FORMAT
const debianBinaryBody = "2.0\n"
