// Package source provides parsing and formatting for skill source
// coordinates: the shorthand, URL, and SSH forms a user may hand to the CLI,
// and the @owner/name reference used by the registry API.
//
// Accepted forms:
//
//	acme/widget                         (shorthand)
//	acme/widget/skills/foo              (shorthand with skill path)
//	https://github.com/acme/widget      (HTTPS URL)
//	https://github.com/acme/widget/tree/main/skills/foo
//	git@github.com:acme/widget.git      (SSH)
//
// Format always emits the canonical shorthand, so Parse(Format(s)) == s.
package source

import (
	"fmt"
	"net/url"
	"strings"
)

// Source identifies a skill location on the source host.
type Source struct {
	Owner string
	Repo  string
	Path  string // optional sub-path inside the repository
}

// Parse parses any accepted source form into a Source.
func Parse(raw string) (*Source, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty source")
	}

	switch {
	case strings.HasPrefix(raw, "git@"):
		return parseSSH(raw)
	case strings.Contains(raw, "://"):
		return parseURL(raw)
	default:
		return parseShorthand(raw)
	}
}

// Format returns the canonical shorthand form.
func (s *Source) Format() string {
	out := s.Owner + "/" + s.Repo
	if s.Path != "" {
		out += "/" + s.Path
	}
	return out
}

// String implements fmt.Stringer.
func (s *Source) String() string { return s.Format() }

// URL returns the HTTPS repository URL for this source.
func (s *Source) URL() string {
	return "https://github.com/" + s.Owner + "/" + s.Repo
}

// MustParse parses a source and panics on error. Useful in tests.
func MustParse(raw string) *Source {
	s, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return s
}

func parseShorthand(raw string) (*Source, error) {
	raw = strings.TrimPrefix(raw, "@")
	parts := strings.Split(strings.Trim(raw, "/"), "/")
	if len(parts) < 2 {
		return nil, fmt.Errorf("source %q: expected owner/repo", raw)
	}
	s := &Source{Owner: parts[0], Repo: parts[1]}
	if len(parts) > 2 {
		s.Path = strings.Join(parts[2:], "/")
	}
	return s, s.validate()
}

func parseURL(raw string) (*Source, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid source URL: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 {
		return nil, fmt.Errorf("source URL %q: expected /owner/repo", raw)
	}
	s := &Source{Owner: parts[0], Repo: strings.TrimSuffix(parts[1], ".git")}
	// "/tree/{branch}/{path}" and "/blob/{branch}/{path}" carry a sub-path
	// after the branch segment.
	if len(parts) >= 4 && (parts[2] == "tree" || parts[2] == "blob") {
		s.Path = strings.Join(parts[4:], "/")
	}
	return s, s.validate()
}

func parseSSH(raw string) (*Source, error) {
	// git@host:owner/repo.git
	_, rest, ok := strings.Cut(raw, ":")
	if !ok {
		return nil, fmt.Errorf("invalid SSH source %q", raw)
	}
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) < 2 {
		return nil, fmt.Errorf("SSH source %q: expected owner/repo", raw)
	}
	s := &Source{Owner: parts[0], Repo: strings.TrimSuffix(parts[1], ".git")}
	return s, s.validate()
}

func (s *Source) validate() error {
	if s.Owner == "" || s.Repo == "" {
		return fmt.Errorf("source is missing owner or repo")
	}
	for _, seg := range []string{s.Owner, s.Repo} {
		if strings.ContainsAny(seg, " \t?#") {
			return fmt.Errorf("invalid source segment %q", seg)
		}
	}
	return nil
}

// FormatRef returns the @owner/name reference accepted by the registry's
// legacy single-segment skill endpoint.
func FormatRef(owner, name string) string {
	return "@" + owner + "/" + name
}

// ParseRef splits an @owner/name (or owner/name) reference.
func ParseRef(ref string) (owner, name string, err error) {
	ref = strings.TrimPrefix(strings.TrimSpace(ref), "@")
	owner, name, ok := strings.Cut(ref, "/")
	if !ok || owner == "" || name == "" {
		return "", "", fmt.Errorf("reference %q: expected @owner/name", ref)
	}
	return owner, name, nil
}
