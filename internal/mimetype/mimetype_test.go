package mimetype

import (
	"strings"
	"testing"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		want string
	}{
		{"report.pdf", "application/pdf"},
		{"a.PDF", "application/pdf"},
		{"notes.txt", "text/plain"},
		{"photo.jpg", "image/jpeg"},
		{"photo.JPEG", "image/jpeg"},
		{"icon.png", "image/png"},
		{"sheet.xlsx", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"},
		{"letter.docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
		{"archive.tar.gz", Default},
		{"jt808-v1.0.1.zip", Default},
		{"noext", Default},
		{"trailing.", Default},
		{"", Default},
		{".pdf", "application/pdf"},
	}
	for _, c := range cases {
		if got := Classify(c.name); got != c.want {
			t.Errorf("Classify(%q) = %q, want %q", c.name, got, c.want)
		}
	}
}

func TestClassifyCaseInsensitive(t *testing.T) {
	if Classify("a.PDF") != Classify("a.pdf") {
		t.Errorf("Classify should ignore extension case")
	}
	if Classify("a.PdF") != "application/pdf" {
		t.Errorf("mixed case extension not recognised")
	}
}

func TestExtension(t *testing.T) {
	cases := map[string]string{
		"a.b.C":     "c",
		"noext":     "",
		"dir/x.Txt": "txt",
		"x.":        "",
		"":          "",
	}
	for in, want := range cases {
		if got := Extension(in); got != want {
			t.Errorf("Extension(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestValidateBuiltinTable(t *testing.T) {
	if err := Validate(); err != nil {
		t.Fatalf("builtin table invalid: %v", err)
	}
}

func TestValidateRejectsBadTables(t *testing.T) {
	cases := []struct {
		name    string
		entries []Mapping
		wantSub string
	}{
		{"empty", nil, "empty"},
		{"empty_ext", []Mapping{{"", "text/plain"}}, "empty extension"},
		{"upper", []Mapping{{"PDF", "application/pdf"}}, "lower-case"},
		{"dotted", []Mapping{{".pdf", "application/pdf"}}, "lower-case"},
		{"dup", []Mapping{{"pdf", "application/pdf"}, {"pdf", "text/plain"}}, "duplicate"},
		{"bad_mime", []Mapping{{"pdf", "not a mime"}}, "pdf"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := validate(c.entries)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), c.wantSub) {
				t.Errorf("error %q does not contain %q", err, c.wantSub)
			}
		})
	}
}

func TestTableReturnsCopy(t *testing.T) {
	tb := Table()
	tb[0].MIME = "mutated"
	if Classify("x.pdf") != "application/pdf" {
		t.Error("Table should not expose the internal slice")
	}
}
