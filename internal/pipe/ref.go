package pipe

import (
	"net/url"
	"strings"
)

// DefaultBranch is assumed for references to a repository root.
const DefaultBranch = "main"

// Ref identifies a pipe: either a whole repository or a subdirectory of one
// on a given branch.
type Ref struct {
	Raw     string
	Owner   string
	Repo    string
	Branch  string
	SubPath string
}

// IsSubdirectory reports whether the ref points inside the repository.
func (r Ref) IsSubdirectory() bool { return r.SubPath != "" }

// FullName is "owner/repo".
func (r Ref) FullName() string { return r.Owner + "/" + r.Repo }

// Name is the last path segment of the subdirectory, or the repository
// name.
func (r Ref) Name() string {
	if r.SubPath == "" {
		return r.Repo
	}
	return r.SubPath[strings.LastIndexByte(r.SubPath, '/')+1:]
}

// ParseRef parses "https://host/owner/repo" and
// "https://host/owner/repo/tree/{branch}/{subpath...}". The scheme may be
// omitted.
func ParseRef(raw string) (Ref, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Ref{}, &ValidationError{Input: raw, Reason: "empty"}
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return Ref{}, &ValidationError{Input: raw, Reason: err.Error()}
	}

	var segs []string
	for _, p := range strings.Split(u.Path, "/") {
		if p != "" {
			segs = append(segs, p)
		}
	}
	if len(segs) < 2 {
		return Ref{}, &ValidationError{Input: raw, Reason: "expected owner/repo"}
	}

	ref := Ref{
		Raw:    raw,
		Owner:  segs[0],
		Repo:   strings.TrimSuffix(segs[1], ".git"),
		Branch: DefaultBranch,
	}
	if len(segs) == 2 {
		return ref, nil
	}
	if segs[2] != "tree" {
		return Ref{}, &ValidationError{Input: raw, Reason: "expected /tree/{branch}/{path} after owner/repo"}
	}
	if len(segs) < 5 {
		return Ref{}, &ValidationError{Input: raw, Reason: "subdirectory reference needs a branch and a path"}
	}
	ref.Branch = segs[3]
	ref.SubPath = strings.Join(segs[4:], "/")
	return ref, nil
}
