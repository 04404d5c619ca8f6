package httpcli

import (
	"bytes"
	"fmt"
	"html"
	"html/template"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/codemicro/sharesrv/internal/hashcopy"
	"github.com/codemicro/sharesrv/internal/multipart"
	"github.com/codemicro/sharesrv/internal/web"
)

// handlePost implements spec §4.5.5: Expect: 100-continue, mandatory
// Content-Type, and dispatch by content-type substring.
func (t *txn) handlePost() (bool, error) {
	t.log("POST " + t.reqTarget)

	if strings.EqualFold(t.headers["expect"], "100-continue") {
		if _, err := t.conn.w.Write([]byte("HTTP/1.1 100 Continue\r\n\r\n")); err != nil {
			return false, NewPebkac("client disconnected before http response")
		}
	}

	ctype, ok := t.headers["content-type"]
	if !ok {
		return false, NewPebkac("you can't post without a content-type header")
	}
	lower := strings.ToLower(ctype)

	switch {
	case strings.Contains(lower, "multipart/form-data"):
		return t.handlePostMultipart(ctype)
	case strings.Contains(lower, "text/plain"):
		return t.handlePostJSON(ctype)
	case strings.Contains(lower, "application/octet-stream"):
		return false, NewPebkac("binary POST is not implemented")
	default:
		return false, Pebkacf("don't know how to handle a %s POST", ctype)
	}
}

// handlePostJSON implements spec §4.5.5's JSON branch: bounded-size body
// read with a charset parsed from the content-type parameter.
func (t *txn) handlePostJSON(ctype string) (bool, error) {
	clHdr, ok := t.headers["content-length"]
	if !ok {
		return false, NewPebkac("you must supply a content-length for JSON POST")
	}
	remains, perr := strconv.ParseInt(clHdr, 10, 64)
	if perr != nil {
		return false, NewPebkac("bad content-length")
	}
	const maxJSON = 1024 * 1024
	if remains > maxJSON {
		return false, NewPebkac("json 2big")
	}

	enc := "utf-8"
	if idx := strings.Index(ctype, "charset"); idx >= 0 {
		rest := ctype[idx+len("charset"):]
		rest = strings.TrimLeft(rest, " =")
		if semi := strings.IndexByte(rest, ';'); semi >= 0 {
			rest = rest[:semi]
		}
		enc = strings.TrimSpace(rest)
	}

	buf := make([]byte, remains)
	if _, err := io.ReadFull(t.conn.br, buf); err != nil {
		return false, NewPebkac("short json body")
	}
	t.log(fmt.Sprintf("decoding %d bytes of %s json", len(buf), enc))
	// JSON POST handling is a reserved control-plane surface (spec §4.5.5
	// lists it but only the multipart/login/upload paths are exercised by
	// this implementation); acknowledge receipt without acting on it.
	return true, t.reply(nil, "200 OK", "application/json", nil)
}

// handlePostMultipart implements spec §4.5.5's multipart dispatch:
// `act=bput` uploads, `act=login` establishes a session.
func (t *txn) handlePostMultipart(ctype string) (bool, error) {
	p, perr := multipart.New(t.conn.br, ctype)
	if perr != nil {
		return false, NewPebkac(perr.Error())
	}

	act, rerr := p.Require("act", 64)
	if rerr != nil {
		return false, NewPebkac(rerr.Error())
	}

	switch act {
	case "bput":
		return t.handlePlainUpload(p)
	case "login":
		return t.handleLogin(p)
	default:
		return false, Pebkacf("invalid action %q", act)
	}
}

// handleLogin implements spec §4.5.5's login branch.
func (t *txn) handleLogin(p *multipart.Parser) (bool, error) {
	pwd, rerr := p.Require("cppwd", 64)
	if rerr != nil {
		return false, NewPebkac(rerr.Error())
	}
	_ = p.Drop()

	token := pwd
	msg := "login ok"
	if !t.conn.eng.Auth.Login(token, pwd) {
		msg = "naw dude"
		token = "x"
	}

	setCookie := fmt.Sprintf("Set-Cookie: cppwd=%s; Path=/", token)
	var buf strBuf
	if err := t.conn.eng.Tpl.Message(&buf, web.MessageData{
		H1: msg,
		H2: `<a href="/">ack</a>`,
	}); err != nil {
		return false, err
	}
	return true, t.reply(buf.Bytes(), "200 OK", "text/html", []string{setCookie})
}

// upload is one accepted file's recorded outcome.
type upload struct {
	size       int64
	sha512     string
	sniffedCT  string
}

// handlePlainUpload implements spec §4.5.6.
func (t *txn) handlePlainUpload(p *multipart.Parser) (bool, error) {
	vr := t.conn.eng.Auth.VFS()
	node, rem, gerr := vr.Get(t.vpath, t.uname, false, true)
	if gerr != nil {
		return false, NewPebkac("no write access")
	}

	if strings.HasPrefix(rem, "/") || strings.HasPrefix(rem, "../") || strings.Contains(rem, "/../") {
		return false, NewPebkac("that was close")
	}

	var uploads []upload
	var errmsg string
	t0 := time.Now()

	for {
		part, nerr := p.Next()
		if nerr != nil {
			errmsg = nerr.Error()
			break
		}
		if part == nil {
			break
		}
		if part.Filename == "" {
			t.log("discarding incoming file without filename")
			continue
		}

		fdir := node.Canonical(rem)
		fn := filepath.Join(fdir, sanitizeFilename(part.Filename))

		if _, serr := os.Stat(fdir); serr != nil {
			errmsg = "that folder does not exist"
			break
		}
		if _, serr := os.Stat(fn); serr == nil {
			fn = fmt.Sprintf("%s.%d", fn, time.Now().UnixMicro())
		}

		u, uerr := writeUploadedFile(fn, part, t.conn.eng.NullWrite)
		if uerr != nil {
			errmsg = uerr.Error()
			break
		}
		uploads = append(uploads, u)
	}

	td := time.Since(t0).Seconds()
	var total int64
	for _, u := range uploads {
		total += u.size
	}
	if t.conn.eng.UploadBytes != nil {
		t.conn.eng.UploadBytes.Add(float64(total))
	}
	spd := 0.0
	if td > 0 {
		spd = (float64(total) / td) / (1024 * 1024)
	}

	status := "OK"
	if errmsg != "" {
		t.log(errmsg)
		errmsg = "ERROR: " + errmsg
		status = "ERROR"
	}

	msg := fmt.Sprintf("%s // %d bytes // %.3f MiB/s\n", status, total, spd)
	if errmsg != "" {
		msg += errmsg + "\n"
	}
	for _, u := range uploads {
		msg += fmt.Sprintf("sha512: %s // %d bytes", hashcopy.Truncated56(u.sha512), u.size)
		if u.sniffedCT != "" {
			msg += " // type: " + u.sniffedCT
		}
		msg += "\n"
	}
	t.log(msg)

	t.writeAuditLine(t0, msg, errmsg)

	var buf strBuf
	if err := t.conn.eng.Tpl.Message(&buf, web.MessageData{
		H2:  template.HTML(fmt.Sprintf(`<a href="/%s">return to /%s</a>`, url.PathEscape(t.vpath), html.EscapeString(t.vpath))),
		Pre: msg,
	}); err != nil {
		return false, err
	}
	_ = p.Drop()
	return true, t.reply(buf.Bytes(), "200 OK", "text/html", nil)
}

// writeUploadedFile streams one part to disk via hash-while-copy,
// renaming the partial artifact to ".PARTIAL" on failure (spec §4.4,
// §4.5.6).
func writeUploadedFile(fn string, part *multipart.Part, nullWrite bool) (upload, error) {
	if nullWrite {
		sz, sha, err := hashcopy.Copy(discardWriter{}, part.Body)
		if err != nil {
			return upload{}, err
		}
		if sz == 0 {
			return upload{}, NewPebkac("empty files in post")
		}
		return upload{size: sz, sha512: sha}, nil
	}

	f, cerr := os.Create(fn)
	if cerr != nil {
		return upload{}, cerr
	}

	// mimetype.DetectReader drains its input into its own buffer without
	// replaying it, so sniff off a peeked prefix and stitch it back onto
	// the stream rather than handing part.Body to it directly.
	peek := make([]byte, 3072)
	n, _ := io.ReadFull(part.Body, peek)
	peek = peek[:n]
	ct := mimetype.Detect(peek).String()
	body := io.MultiReader(bytes.NewReader(peek), part.Body)

	sz, sha, werr := hashcopy.Copy(f, body)
	closeErr := f.Close()
	if werr != nil {
		_ = os.Rename(fn, fn+".PARTIAL")
		return upload{}, werr
	}
	if closeErr != nil {
		_ = os.Rename(fn, fn+".PARTIAL")
		return upload{}, closeErr
	}
	if sz == 0 {
		_ = os.Rename(fn, fn+".PARTIAL")
		return upload{}, NewPebkac("empty files in post")
	}
	return upload{size: sz, sha512: sha, sniffedCT: ct}, nil
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// writeAuditLine writes up.<unix_ts_with_microseconds>.txt, per spec §6
// "Audit file". AuditDir is one directory shared by every connection the
// Engine serves; files are told apart only by the upload's start time.
func (t *txn) writeAuditLine(t0 time.Time, msg, errmsg string) {
	dir := t.conn.eng.AuditDir
	if dir == "" {
		dir = "."
	}
	name := fmt.Sprintf("up.%d.txt", t0.UnixMicro())
	addr := t.conn.addr
	if t.conn.eng.Hasher != nil {
		addr = t.conn.eng.Hasher.Hash(t.conn.addr)
	}
	body := addr + "\n" + strings.TrimRight(msg, "\n") + "\n" + errmsg + "\n"
	_ = os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644)
}

// sanitizeFilename strips directory components and NUL bytes from a
// client-supplied filename before it ever touches a filesystem path.
func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\x00", "")
	name = filepath.Base(name)
	if name == "." || name == ".." || name == "" {
		return "_"
	}
	return name
}
