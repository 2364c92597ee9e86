package pipe

import (
	"errors"
	"testing"
)

func TestParseRef(t *testing.T) {
	tests := []struct {
		in      string
		owner   string
		repo    string
		branch  string
		subPath string
		name    string
	}{
		{"https://host/owner/repo", "owner", "repo", "main", "", "repo"},
		{"https://host/owner/repo/tree/dev/examples/foo", "owner", "repo", "dev", "examples/foo", "foo"},
		{"github.com/owner/repo.git/", "owner", "repo", "main", "", "repo"},
		{"https://github.com/a/b/tree/v1/x", "a", "b", "v1", "x", "x"},
	}
	for _, tt := range tests {
		ref, err := ParseRef(tt.in)
		if err != nil {
			t.Fatalf("ParseRef(%q): %v", tt.in, err)
		}
		if ref.Owner != tt.owner || ref.Repo != tt.repo || ref.Branch != tt.branch || ref.SubPath != tt.subPath {
			t.Errorf("ParseRef(%q) = %+v", tt.in, ref)
		}
		if ref.IsSubdirectory() != (tt.subPath != "") {
			t.Errorf("ParseRef(%q).IsSubdirectory() = %v", tt.in, ref.IsSubdirectory())
		}
		if ref.Name() != tt.name {
			t.Errorf("ParseRef(%q).Name() = %q, want %q", tt.in, ref.Name(), tt.name)
		}
	}
}

func TestParseRefInvalid(t *testing.T) {
	for _, in := range []string{
		"",
		"https://host/",
		"https://host/owner",
		"https://host/owner/repo/blob/main/x",
		"https://host/owner/repo/tree/main",
	} {
		_, err := ParseRef(in)
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("ParseRef(%q) error = %v, want *ValidationError", in, err)
		}
	}
}
