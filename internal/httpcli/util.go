package httpcli

import (
	"bytes"
	"html"
	"io"
	"mime"
	"path/filepath"
	"time"
)

// strBuf is a tiny bytes.Buffer alias so template Render calls (which take
// io.Writer) and t.reply (which wants a []byte) share one buffer type
// without importing bytes everywhere it's used.
type strBuf struct {
	bytes.Buffer
}

func readAll(r io.Reader) ([]byte, error) {
	return io.ReadAll(r)
}

// guessMime guesses a MIME type from a file extension, defaulting to
// application/octet-stream (spec §4.5.3, §6 "MIME guessed from extension").
func guessMime(name string) string {
	ext := filepath.Ext(name)
	if ext == "" {
		return "application/octet-stream"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

func htmlEscape(s string) string {
	return html.EscapeString(s)
}

// listingTimeFormat matches copyparty's directory-listing timestamp
// (httpcli.py `tx_browser`: "%Y-%m-%d %H:%M:%S").
const listingTimeFormat = "2006-01-02 15:04:05"

// lastModifiedFormat is the fixed Last-Modified / If-Modified-Since wire
// format from spec §4.5.3: "%a, %b %d %Y %H:%M:%S GMT" (UTC).
const lastModifiedFormat = "Mon, Jan 02 2006 15:04:05 GMT"

func formatListingTime(t time.Time) string {
	return t.UTC().Format(listingTimeFormat)
}

func formatLastModified(t time.Time) string {
	return t.UTC().Format(lastModifiedFormat)
}

// parseFixedTime parses the fixed Last-Modified wire format strictly,
// returning an error on anything else (spec §4.5.3, §9 notes the source's
// lenient string-fallback behavior and recommends strict parsing here).
func parseFixedTime(s string) (time.Time, error) {
	return time.Parse(lastModifiedFormat, s)
}
