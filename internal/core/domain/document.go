package domain

import (
	"net/url"
	"path/filepath"
	"strings"
)

// Document is an editor document as seen by the protocol bridge
type Document struct {
	URI        string
	LanguageID string
	Version    int
	Text       string
}

// DocumentSelector decides which documents reach the language server
type DocumentSelector struct {
	Scheme   string `yaml:"scheme"`
	Language string `yaml:"language"`
}

// NewFileSelector returns the selector for on-disk documents of the given language
func NewFileSelector(language string) DocumentSelector {
	return DocumentSelector{Scheme: "file", Language: language}
}

// Matches reports whether doc has the selector's URI scheme and language id.
// URIs that do not parse never match.
func (s DocumentSelector) Matches(doc Document) bool {
	if doc.LanguageID != s.Language {
		return false
	}
	u, err := url.Parse(doc.URI)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Scheme, s.Scheme)
}

// FileURI converts a local path to a file:// URI.
func FileURI(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	slashed := filepath.ToSlash(abs)
	if !strings.HasPrefix(slashed, "/") {
		// Windows drive paths become file:///C:/...
		slashed = "/" + slashed
	}
	u := url.URL{Scheme: "file", Path: slashed}
	return u.String(), nil
}
