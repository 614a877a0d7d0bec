// Package legal serves the portal's legal documents.
package legal

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/dspops/portal/internal/agreements"
)

//go:embed documents/*.md
var files embed.FS

// ErrUnknownDocument is returned for names outside the library.
var ErrUnknownDocument = errors.New("legal: unknown document")

// Document names.
const (
	TermsOfUse          = "terms-of-use"
	PrivacyPolicy       = "privacy-policy"
	NDA                 = "nda"
	MembershipAgreement = "membership-agreement"
)

var versions = map[string]string{
	TermsOfUse:          "2024-01-10",
	PrivacyPolicy:       "2024-01-10",
	NDA:                 agreements.NDAVersion,
	MembershipAgreement: agreements.MembershipVersion,
}

// Document is one read-only legal text.
type Document struct {
	Name     string `json:"name"`
	Title    string `json:"title"`
	Version  string `json:"version"`
	Markdown string `json:"markdown"`
	HTML     string `json:"html"`
}

// Library holds every document, rendered once at startup.
type Library struct {
	docs map[string]Document
}

// Load reads and renders the embedded documents.
func Load() (*Library, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.Typographer))
	lib := &Library{docs: make(map[string]Document, len(versions))}
	for name, version := range versions {
		raw, err := fs.ReadFile(files, "documents/"+name+".md")
		if err != nil {
			return nil, fmt.Errorf("legal: read %s: %w", name, err)
		}
		var html bytes.Buffer
		if err := md.Convert(raw, &html); err != nil {
			return nil, fmt.Errorf("legal: render %s: %w", name, err)
		}
		lib.docs[name] = Document{
			Name:     name,
			Title:    title(string(raw), name),
			Version:  version,
			Markdown: string(raw),
			HTML:     html.String(),
		}
	}
	return lib, nil
}

// Get returns the named document.
func (l *Library) Get(name string) (Document, error) {
	doc, ok := l.docs[name]
	if !ok {
		return Document{}, fmt.Errorf("%w: %q", ErrUnknownDocument, name)
	}
	return doc, nil
}

// ForAgreement returns the document a user accepts for kind.
func (l *Library) ForAgreement(kind agreements.Kind) (Document, error) {
	switch kind {
	case agreements.KindNDA:
		return l.Get(NDA)
	case agreements.KindMembership:
		return l.Get(MembershipAgreement)
	}
	return Document{}, fmt.Errorf("%w: agreement %q", ErrUnknownDocument, kind)
}

// Names lists the available documents.
func (l *Library) Names() []string {
	names := make([]string, 0, len(l.docs))
	for name := range l.docs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// title is the first level-one heading, or name when there is none.
func title(markdown, name string) string {
	for _, line := range strings.Split(markdown, "\n") {
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# "))
		}
	}
	return name
}
