package main

import (
	"flag"
	"io"
	"reflect"
	"testing"
)

func TestParseInterspersed(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		out    string
		server string
		want   []string
	}{
		{"flags first", []string{"--out", "/tmp", "app.exe"}, "/tmp", "", []string{"app.exe"}},
		{"flags after name", []string{"app.exe", "--out", "/tmp"}, "/tmp", "", []string{"app.exe"}},
		{"flags around name", []string{"--server", "http://h", "app.exe", "-out=/tmp"}, "/tmp", "http://h", []string{"app.exe"}},
		{"several names", []string{"a.zip", "--out", "/tmp", "b.zip"}, "/tmp", "", []string{"a.zip", "b.zip"}},
		{"double dash", []string{"--out", "/tmp", "--", "--server"}, "/tmp", "", []string{"--server"}},
		{"no args", nil, ".", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := flag.NewFlagSet("fetch", flag.ContinueOnError)
			out := fs.String("out", ".", "")
			server := fs.String("server", "", "")
			got, err := parseInterspersed(fs, tt.args)
			if err != nil {
				t.Fatal(err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("positionals = %q, want %q", got, tt.want)
			}
			if *out != tt.out || *server != tt.server {
				t.Errorf("out = %q, server = %q", *out, *server)
			}
		})
	}
}

func TestParseInterspersedBadFlag(t *testing.T) {
	fs := flag.NewFlagSet("fetch", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.String("out", ".", "")
	if _, err := parseInterspersed(fs, []string{"app.exe", "--bogus"}); err == nil {
		t.Error("expected an error for an unknown flag")
	}
}
