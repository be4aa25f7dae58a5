// Package mimetypes maps attachment content types to the filename extension
// the mail provider expects.
package mimetypes

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed mimetypes.yaml
var defaultTable []byte

// Table is an immutable content-type to extension lookup.
type Table struct {
	exts map[string]string
}

// Default returns the table shipped with the binary.
func Default() *Table {
	t, err := parse(defaultTable)
	if err != nil {
		panic(fmt.Sprintf("mimetypes: embedded table is invalid: %v", err))
	}
	return t
}

// Load reads a YAML mapping of content type to extension.
func Load(r io.Reader) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read mime type table: %w", err)
	}
	return parse(data)
}

// LoadFile reads the table from path. An empty path yields Default().
func LoadFile(path string) (*Table, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open mime type table: %w", err)
	}
	defer f.Close()
	return Load(f)
}

func parse(data []byte) (*Table, error) {
	raw := make(map[string]string)
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse mime type table: %w", err)
	}
	t := &Table{exts: make(map[string]string, len(raw))}
	for ct, ext := range raw {
		ext = strings.TrimPrefix(strings.TrimSpace(ext), ".")
		if ext == "" {
			return nil, fmt.Errorf("empty extension for content type %q", ct)
		}
		t.exts[normalize(ct)] = ext
	}
	return t, nil
}

// Extension returns the extension registered for contentType. Parameters
// such as charset are ignored.
func (t *Table) Extension(contentType string) (string, bool) {
	ext, ok := t.exts[normalize(contentType)]
	return ext, ok
}

// Len returns the number of registered content types.
func (t *Table) Len() int {
	return len(t.exts)
}

func normalize(ct string) string {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}
