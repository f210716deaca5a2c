package deb

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// generateControlFile renders the control file of m for a package whose
// installed files occupy installedBytes.
func generateControlFile(m *Metadata, installedBytes int64) string {
	var b strings.Builder

	writeField := func(field ControlField, value string) {
		if value != "" {
			fmt.Fprintf(&b, "%s: %s\n", field, value)
		}
	}
	writeRel := func(field ControlField, items []string) {
		if len(items) > 0 {
			writeField(field, strings.Join(items, ", "))
		}
	}

	writeField(FieldPackage, m.Package)
	writeField(FieldVersion, m.Version)
	writeField(FieldSection, m.Section)
	writeField(FieldPriority, m.Priority)
	writeField(FieldArchitecture, m.Architecture)
	writeField(FieldMaintainer, m.Maintainer)
	if m.Essential {
		writeField(FieldEssential, "yes")
	}

	writeRel(FieldDepends, m.Depends)
	writeRel(FieldPreDepends, m.PreDepends)
	writeRel(FieldRecommends, m.Recommends)
	writeRel(FieldSuggests, m.Suggests)
	writeRel(FieldEnhances, m.Enhances)
	writeRel(FieldConflicts, m.Conflicts)
	writeRel(FieldBreaks, m.Breaks)
	writeRel(FieldReplaces, m.Replaces)
	writeRel(FieldProvides, m.Provides)

	// Installed-Size is in kilobytes, rounded up
	kbytes := (installedBytes + 1023) / 1024
	writeField(FieldInstalledSize, fmt.Sprintf("%d", kbytes))

	writeField(FieldHomepage, m.Homepage)
	writeField(FieldBuiltUsing, m.BuiltUsing)
	writeField(FieldSource, m.Source)

	keys := make([]string, 0, len(m.ExtraFields))
	for k := range m.ExtraFields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeField(ControlField(k), m.ExtraFields[k])
	}

	writeField(FieldDescription, m.Description)
	if m.ExtendedDescription != "" {
		for _, line := range strings.Split(strings.TrimRight(m.ExtendedDescription, "\n"), "\n") {
			if strings.TrimSpace(line) == "" {
				b.WriteString(" .\n")
				continue
			}
			// Ensure extended description lines start with a space
			if !strings.HasPrefix(line, " ") {
				b.WriteString(" ")
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// unfoldDescription reverts the folding applied by generateControlFile to
// the extended description.
func unfoldDescription(body string) string {
	if body == "" {
		return ""
	}
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		line = strings.TrimPrefix(strings.TrimPrefix(line, "\t"), " ")
		if line == "." {
			line = ""
		}
		lines[i] = line
	}
	return strings.Join(lines, "\n")
}

// generateConffiles lists the configuration files, one absolute path per line.
//
// Reference: https://www.debian.org/doc/debian-policy/ch-files.html#s-config-files
func generateConffiles(conffiles []string) string {
	var b strings.Builder
	for _, c := range conffiles {
		fmt.Fprintf(&b, "/%s\n", strings.TrimPrefix(c, "/"))
	}
	return b.String()
}

// generateMd5sums walks the data tree rooted at dataDir and returns the
// md5sums control file: one "<md5>  <relative path>" line per regular file,
// sorted by path.
func generateMd5sums(fsys afero.Fs, dataDir string) (string, error) {
	md5Map := make(map[string]string)
	err := afero.Walk(fsys, dataDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return ioErr("walking %s: %w", p, err)
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dataDir, p)
		if err != nil {
			return err
		}
		sum, err := md5File(fsys, p)
		if err != nil {
			return err
		}
		md5Map[filepath.ToSlash(rel)] = sum
		return nil
	})
	if err != nil {
		return "", err
	}

	paths := make([]string, 0, len(md5Map))
	for p := range md5Map {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var b strings.Builder
	for _, p := range paths {
		fmt.Fprintf(&b, "%s  %s\n", md5Map[p], p)
	}
	return b.String(), nil
}

func md5File(fsys afero.Fs, p string) (string, error) {
	f, err := fsys.Open(p)
	if err != nil {
		return "", ioErr("opening %s: %w", p, err)
	}
	defer f.Close()
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", ioErr("reading %s: %w", p, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// parseControlFile parses the content of a Debian control file and populates the Metadata struct.
// It handles standard fields mapping to struct fields and puts unknown fields into ExtraFields.
// It also handles multiline values (folded fields).
func parseControlFile(content string, m *Metadata) error {
	var currentKey string
	var currentValue strings.Builder

	flush := func() {
		if currentKey != "" {
			m.Set(currentKey, strings.TrimRight(currentValue.String(), " \t\n"))
		}
	}

	for i, line := range strings.Split(content, "\n") {
		switch {
		case strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t"):
			if currentKey == "" {
				return fmt.Errorf("line %d: continuation line without a field", i+1)
			}
			currentValue.WriteString("\n" + line)
		case strings.Contains(line, ":"):
			flush()
			key, value, _ := strings.Cut(line, ":")
			currentKey = key
			currentValue.Reset()
			currentValue.WriteString(strings.TrimSpace(value))
		case strings.TrimSpace(line) == "":
		default:
			return fmt.Errorf("line %d: %q is not a field", i+1, line)
		}
	}
	flush()
	return nil
}

// splitList splits a comma-separated string into a slice of strings, trimming whitespace from each element.
// It returns nil if the input string is empty.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	var res []string
	for _, p := range parts {
		res = append(res, strings.TrimSpace(p))
	}
	return res
}
