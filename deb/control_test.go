package deb

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"runtime"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

func TestCountingWriter(t *testing.T) {
	var buf bytes.Buffer
	cw := &countingWriter{w: &buf}

	data := []byte("hello")
	n, err := cw.Write(data)
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if n != 5 {
		t.Errorf("expected 5 bytes written, got %d", n)
	}
	if cw.n != 5 {
		t.Errorf("expected count 5, got %d", cw.n)
	}
	if buf.String() != "hello" {
		t.Errorf("buffer mismatch")
	}
}

func TestGenerateControlFile(t *testing.T) {
	m := &Metadata{
		Package:             "test-pkg",
		Version:             "1.2.3",
		Architecture:        "amd64",
		Maintainer:          "Maintainer <m@example.com>",
		Description:         "Short description",
		ExtendedDescription: "Long description line 1\n\nLong description line 2",
		Depends:             []string{"libc6", "git"},
		ExtraFields:         map[string]string{"Bugs": "https://example.com/bugs"},
	}

	// 2049 bytes -> 3KB installed size
	out := generateControlFile(m, 2049)

	expected := `Package: test-pkg
Version: 1.2.3
Architecture: amd64
Maintainer: Maintainer <m@example.com>
Depends: libc6, git
Installed-Size: 3
Bugs: https://example.com/bugs
Description: Short description
 Long description line 1
 .
 Long description line 2
`
	if out != expected {
		t.Errorf("expected:\n%s\ngot:\n%s", expected, out)
	}
}

func TestGenerateConffiles(t *testing.T) {
	got := generateConffiles([]string{"/etc/app.conf", "etc/other.conf"})
	if got != "/etc/app.conf\n/etc/other.conf\n" {
		t.Errorf("unexpected conffiles %q", got)
	}
}

func TestGenerateMd5sums(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/data/usr/bin/b", []byte("b"), 0o755)
	afero.WriteFile(fs, "/data/usr/bin/a", []byte("a"), 0o755)
	fs.MkdirAll("/data/usr/share/empty", 0o755)

	out, err := generateMd5sums(fs, "/data")
	if err != nil {
		t.Fatalf("generateMd5sums failed: %v", err)
	}

	sum := func(s string) string {
		h := md5.Sum([]byte(s))
		return hex.EncodeToString(h[:])
	}
	// Expect sorted output
	expected := sum("a") + "  usr/bin/a\n" + sum("b") + "  usr/bin/b\n"
	if out != expected {
		t.Errorf("expected:\n%q\ngot:\n%q", expected, out)
	}
}

func TestParseControlFileFull(t *testing.T) {
	content := `Package: my-pkg
Version: 1.2.3
Architecture: amd64
Depends: libc6, git
Installed-Size: 12
Description: A test package
 This is the extended description.
 .
 Second paragraph.
Extra: value
`
	var m Metadata
	m.ExtraFields = make(map[string]string)
	if err := parseControlFile(content, &m); err != nil {
		t.Fatalf("parseControlFile failed: %v", err)
	}

	if m.Package != "my-pkg" {
		t.Errorf("expected Package my-pkg, got %s", m.Package)
	}
	if m.Version != "1.2.3" {
		t.Errorf("expected Version 1.2.3, got %s", m.Version)
	}
	if len(m.Depends) != 2 || m.Depends[0] != "libc6" || m.Depends[1] != "git" {
		t.Errorf("expected Depends [libc6 git], got %v", m.Depends)
	}
	if m.Description != "A test package" {
		t.Errorf("expected synopsis, got %q", m.Description)
	}
	if m.ExtendedDescription != "This is the extended description.\n\nSecond paragraph." {
		t.Errorf("extended description mismatch: %q", m.ExtendedDescription)
	}
	if m.ExtraFields["Extra"] != "value" {
		t.Errorf("expected Extra field value, got %s", m.ExtraFields["Extra"])
	}
	if _, ok := m.ExtraFields["Installed-Size"]; ok {
		t.Errorf("Installed-Size must not be kept")
	}
}

func TestParseControlFileErrors(t *testing.T) {
	for _, content := range []string{
		" leading continuation\n",
		"Package: x\nnot a field\n",
	} {
		var m Metadata
		if err := parseControlFile(content, &m); err == nil {
			t.Errorf("expected an error for %q", content)
		}
	}
}

func TestControlRoundTrip(t *testing.T) {
	m := &Metadata{
		Package:             "round",
		Version:             "2:1.0-1",
		Architecture:        "all",
		Maintainer:          "M <m@example.com>",
		Description:         "synopsis",
		ExtendedDescription: "first\n\nsecond",
		Section:             "utils",
		Priority:            "optional",
		PreDepends:          []string{"dpkg (>= 1.17)"},
		Essential:           true,
	}
	var got Metadata
	if err := parseControlFile(generateControlFile(m, 0), &got); err != nil {
		t.Fatalf("parseControlFile failed: %v", err)
	}
	if got.Package != m.Package || got.Version != m.Version || got.Section != m.Section || !got.Essential {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.ExtendedDescription != m.ExtendedDescription {
		t.Errorf("expected %q, got %q", m.ExtendedDescription, got.ExtendedDescription)
	}
	if len(got.PreDepends) != 1 || got.PreDepends[0] != "dpkg (>= 1.17)" {
		t.Errorf("unexpected Pre-Depends %v", got.PreDepends)
	}
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"", nil},
		{"a", []string{"a"}},
		{"a, b", []string{"a", "b"}},
		{" a , b , c ", []string{"a", "b", "c"}},
	}

	for _, tt := range tests {
		got := splitList(tt.input)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Errorf("splitList(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestStandardFilename(t *testing.T) {
	m := &Metadata{
		Package:      "foo",
		Version:      "1.0.0",
		Architecture: "arm64",
	}
	if got := m.StandardFilename(); got != "foo_1.0.0_arm64" {
		t.Errorf("expected foo_1.0.0_arm64, got %s", got)
	}
}

func TestMetadataDefaults(t *testing.T) {
	m := &Metadata{Package: "app", Version: "1", Maintainer: "m", Description: "d"}
	m.applyDefaults()
	if m.Architecture != DebianArch(runtime.GOARCH) {
		t.Errorf("unexpected architecture %s", m.Architecture)
	}
	if m.Priority != "optional" {
		t.Errorf("unexpected priority %s", m.Priority)
	}
	if m.ExtendedDescription != "d" {
		t.Errorf("extended description should default to the description, got %q", m.ExtendedDescription)
	}
	if err := m.validate(); err != nil {
		t.Errorf("validate failed: %v", err)
	}
}

func TestMetadataValidate(t *testing.T) {
	valid := Metadata{Package: "app", Version: "1", Maintainer: "m", Description: "d"}
	tests := []func(*Metadata){
		func(m *Metadata) { m.Package = "" },
		func(m *Metadata) { m.Version = "" },
		func(m *Metadata) { m.Maintainer = " " },
		func(m *Metadata) { m.Description = "" },
		func(m *Metadata) { m.Package = "a" },
		func(m *Metadata) { m.Package = "App" },
		func(m *Metadata) { m.Package = "-app" },
		func(m *Metadata) { m.Package = "my_app" },
		func(m *Metadata) { m.Description = "two\nlines" },
	}
	for i, mutate := range tests {
		m := valid
		mutate(&m)
		if err := m.validate(); err == nil {
			t.Errorf("case %d: expected an error for %+v", i, m)
		}
	}
}

func TestDebianArch(t *testing.T) {
	for goarch, want := range map[string]string{
		"amd64":   "amd64",
		"arm64":   "arm64",
		"386":     "i386",
		"arm":     "armhf",
		"ppc64le": "ppc64el",
	} {
		if got := DebianArch(goarch); got != want {
			t.Errorf("DebianArch(%s) = %s, want %s", goarch, got, want)
		}
	}
}
