// Package manifest loads declarative package definitions and turns them into
// deb.Options.
//
// A manifest is a YAML, JSON or TOML file, chosen by extension. Unknown
// fields are rejected. Relative paths are resolved against the manifest's
// directory.
package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"go.yaml.in/yaml/v3"
)

// DefaultFile is the manifest looked up when none is given.
const DefaultFile = "debpack.toml"

// Load reads and parses the manifest at path. defines override the ones
// declared in the manifest.
func Load(path string, defines map[string]string) (*Package, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	var pkg Package
	if err := unmarshal(path, content, &pkg); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}

	if pkg.filePath, err = filepath.Abs(path); err != nil {
		return nil, err
	}
	pkg.engine = newTemplateEngine(pkg.Defines).sub(defines)
	return &pkg, nil
}

// unmarshal parses JSON, YAML or TOML based on file extension.
func unmarshal(path string, data []byte, v interface{}) error {
	r := bytes.NewReader(data)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		return dec.Decode(v)
	case ".toml":
		dec := toml.NewDecoder(r)
		dec.DisallowUnknownFields()
		return dec.Decode(v)
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// Init creates a DefaultFile manifest in dir for a package called name.
// It returns the path of the manifest, or an error if it already exists.
func Init(dir, name string) (string, error) {
	path := filepath.Join(dir, DefaultFile)

	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("%s already exists", DefaultFile)
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("checking %s: %w", path, err)
	}

	pkg := &Package{
		Defines: map[string]string{"VERSION": "0.1.0"},
		Source:  "dist",
		Target:  "build",
		Meta: map[string]string{
			"Package":     name,
			"Version":     "{{ .VERSION }}",
			"Maintainer":  "Your Name <you@example.com>",
			"Description": "Short description of " + name,
			"Section":     "utils",
		},
	}
	data, err := toml.Marshal(pkg)
	if err != nil {
		return "", fmt.Errorf("marshaling manifest: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}

// InferName derives a package name from a directory path.
func InferName(dir string) string {
	name := strings.ToLower(filepath.Base(dir))
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '+', r == '-', r == '.':
			return r
		}
		return '-'
	}, name)
}
