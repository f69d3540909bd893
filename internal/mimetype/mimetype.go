package mimetype

import (
	"fmt"
	"mime"
	"strings"
)

// Default is returned for any extension missing from the table.
const Default = "application/octet-stream"

// Mapping pairs a lower-case extension (without the dot) with its MIME type.
type Mapping struct {
	Ext  string
	MIME string
}

var table = []Mapping{
	{"pdf", "application/pdf"},
	{"txt", "text/plain"},
	{"jpg", "image/jpeg"},
	{"jpeg", "image/jpeg"},
	{"png", "image/png"},
	{"xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"},
	{"docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
}

var byExt = func() map[string]string {
	m := make(map[string]string, len(table))
	for _, e := range table {
		if _, ok := m[e.Ext]; !ok {
			m[e.Ext] = e.MIME
		}
	}
	return m
}()

// Table returns a copy of the extension table in declaration order.
func Table() []Mapping {
	return append([]Mapping(nil), table...)
}

// Extension returns the lower-cased text after the last dot in name, or "".
func Extension(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return ""
	}
	return strings.ToLower(name[i+1:])
}

// Classify maps a file name to a MIME type by extension. It never fails.
func Classify(name string) string {
	if mt, ok := byExt[Extension(name)]; ok {
		return mt
	}
	return Default
}

// Validate checks the table for empty or malformed entries and duplicates.
// It is run once at startup.
func Validate() error {
	return validate(table)
}

func validate(entries []Mapping) error {
	if len(entries) == 0 {
		return fmt.Errorf("mime table is empty")
	}
	seen := make(map[string]bool, len(entries))
	for i, e := range entries {
		if e.Ext == "" {
			return fmt.Errorf("mime table entry %d: empty extension", i)
		}
		if e.Ext != strings.ToLower(e.Ext) || strings.ContainsAny(e.Ext, "./\\") {
			return fmt.Errorf("mime table entry %d: extension %q must be lower-case without dots or separators", i, e.Ext)
		}
		if seen[e.Ext] {
			return fmt.Errorf("mime table entry %d: duplicate extension %q", i, e.Ext)
		}
		seen[e.Ext] = true
		if _, _, err := mime.ParseMediaType(e.MIME); err != nil {
			return fmt.Errorf("mime table entry %d (%s): %w", i, e.Ext, err)
		}
	}
	return nil
}
