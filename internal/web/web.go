// Package web is the static/template surface (spec C7): it serves
// embedded assets under `.cpr/…` and renders the HTML the transaction
// engine needs (directory listings, the mounts index, and one-off
// messages) via a fixed template contract, matching spec.md's framing of
// templating as a delegated collaborator with a stable interface rather
// than something the transaction engine builds strings for inline.
package web

import (
	"embed"
	"html/template"
	"io"
	"io/fs"
)

//go:embed all:assets
var assetsFS embed.FS

//go:embed tpl/*.html
var templateFS embed.FS

// Assets exposes the embedded `.cpr/` static surface.
func Assets() fs.FS {
	sub, err := fs.Sub(assetsFS, "assets")
	if err != nil {
		panic(err)
	}
	return sub
}

// BreadcrumbNode is one entry of the directory-listing breadcrumb trail.
type BreadcrumbNode struct {
	Href string
	Name string
}

// Entry is one rendered directory-listing row.
type Entry struct {
	Margin  string // "DIR" or "-"
	Href    string
	Name    string
	Size    int64
	ModTime string
}

// BrowserData is the fixed contract the directory-listing template
// receives (spec §4.5.4: "vdir, vpnodes, entries, can_upload, and a
// cache-busting stamp"). The directory-listing handler in internal/httpcli
// does not set CacheStamp, so the template receives it empty.
type BrowserData struct {
	VDir       string
	VPNodes    []BreadcrumbNode
	Entries    []Entry
	CanUpload  bool
	CacheStamp string
}

// MountsData is what the mounts-index template receives.
type MountsData struct {
	Readable []string
	Writable []string
}

// MessageData is what the generic message template (login result, upload
// result) receives.
type MessageData struct {
	H1  string
	H2  template.HTML
	Pre string
}

// Templates renders the three fixed page kinds.
type Templates struct {
	browser *template.Template
	mounts  *template.Template
	message *template.Template
}

// Load parses the embedded template set.
func Load() (*Templates, error) {
	parse := func(name string) (*template.Template, error) {
		return template.New(name).Funcs(template.FuncMap{}).ParseFS(templateFS, "tpl/"+name)
	}
	browser, err := parse("browser.html")
	if err != nil {
		return nil, err
	}
	mounts, err := parse("mounts.html")
	if err != nil {
		return nil, err
	}
	message, err := parse("message.html")
	if err != nil {
		return nil, err
	}
	return &Templates{browser: browser, mounts: mounts, message: message}, nil
}

// Browser renders a directory listing.
func (t *Templates) Browser(w io.Writer, data BrowserData) error {
	return t.browser.ExecuteTemplate(w, "browser.html", data)
}

// Mounts renders the user's mount index.
func (t *Templates) Mounts(w io.Writer, data MountsData) error {
	return t.mounts.ExecuteTemplate(w, "mounts.html", data)
}

// Message renders a generic one-off message page (login result, upload
// result).
func (t *Templates) Message(w io.Writer, data MessageData) error {
	return t.message.ExecuteTemplate(w, "message.html", data)
}
