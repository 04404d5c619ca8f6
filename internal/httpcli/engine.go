// Package httpcli implements the HTTP transaction engine (spec C5): a
// hand-rolled HTTP/1.1 request parser and responder that serves one
// connection's worth of request/response transactions directly against a
// buffered socket reader/writer, without routing through net/http's own
// request parsing. This mirrors the teacher's (rclone) habit of keeping
// protocol plumbing in its own package, generalized here to the spec's
// requirement that the engine itself own header parsing, ranged transfer,
// and multipart dispatch rather than delegate them to net/http.
package httpcli

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"net"

	"github.com/sirupsen/logrus"

	"github.com/codemicro/sharesrv/internal/auth"
	"github.com/codemicro/sharesrv/internal/web"
)

// RequestCounter is the narrow metrics hook the engine increments once per
// handled transaction, labeled by method. Kept as an interface so this
// package doesn't need to import internal/metrics directly.
type RequestCounter interface {
	IncMethod(method string)
}

// ByteCounter is the narrow metrics hook the engine adds accepted upload
// bytes to.
type ByteCounter interface {
	Add(n float64)
}

// Engine holds everything a transaction needs that outlives any one
// connection: the auth store, the template/asset collaborator, and
// logging. One Engine is shared by every connection a worker serves.
type Engine struct {
	Auth   *auth.Store
	Tpl    *web.Templates
	Assets fs.FS
	Hasher *IPHasher
	Log    *logrus.Entry

	// AuditDir is the directory upload audit lines are written to (spec
	// §9 Open Questions: "Implementers should make the path explicit…
	// per-worker subdirectory").
	AuditDir string

	// NullWrite discards upload bodies instead of writing them to disk,
	// mirroring copyparty's `args.nw` dry-run flag. No caller in this
	// repository sets it.
	NullWrite bool

	// Requests, if set, counts handled transactions by method.
	// UploadBytes, if set, accumulates accepted upload bytes. Both are
	// nil-safe: an Engine built without them (as in tests) just skips
	// the increment.
	Requests    RequestCounter
	UploadBytes ByteCounter
}

// Conn is one accepted socket's worth of state: the buffered reader
// driving request parsing, the raw writer transactions reply through, and
// the peer address used for logging and audit lines.
type Conn struct {
	eng  *Engine
	br   *bufio.Reader
	w    io.Writer
	addr string
}

// NewConn wraps an accepted socket for the transaction engine. Splitting
// reader and writer (rather than taking one net.Conn) lets tests drive the
// engine over plain io.Reader/io.Writer pairs.
func NewConn(eng *Engine, r io.Reader, w io.Writer, addr string) *Conn {
	return &Conn{eng: eng, br: bufio.NewReaderSize(r, 32*1024), w: w, addr: addr}
}

// Serve drives transactions on this connection until a request signals the
// connection should close (a transport error, or a malformed request line
// that can't be recovered from) or the client stops sending requests.
func (c *Conn) Serve() {
	for {
		cont, err := c.handleOne()
		if err != nil {
			if err != io.EOF {
				c.eng.Log.WithError(err).WithField("addr", c.addr).Debug("connection closed")
			}
			return
		}
		if !cont {
			return
		}
	}
}

// ServeNetConn is the convenience entry point worker HTTP listeners use.
func ServeNetConn(eng *Engine, nc net.Conn) {
	defer nc.Close()
	NewConn(eng, nc, nc, nc.RemoteAddr().String()).Serve()
}

// handleOne parses and dispatches exactly one request, returning whether
// the connection should keep serving further requests. Every well-formed
// request produces exactly one status line on the wire (spec §3
// invariant).
func (c *Conn) handleOne() (cont bool, err error) {
	lines, err := readHeaderBlock(c.br)
	if err != nil {
		return false, err
	}
	if len(lines) == 0 {
		return false, io.EOF
	}

	t := &txn{conn: c}

	rl, perr := parseRequestLine(lines[0])
	if perr != nil {
		t.loudReply(perr.Error())
		return false, nil
	}
	t.method = rl.Method
	if c.eng.Requests != nil {
		c.eng.Requests.IncMethod(t.method)
	}
	t.reqTarget = rl.Target
	t.headers = parseHeaders(lines[1:])
	t.outHeaders = map[string]string{}

	if tok, ok := parseCookie(t.headers["cookie"]); ok {
		t.uname = c.eng.Auth.Resolve(tok)
	} else {
		t.uname = "*"
	}

	t.vpath, t.uparam, t.absoluteURLs = parseTarget(t.reqTarget)

	switch t.method {
	case "GET", "HEAD":
		ok, derr := t.handleGet()
		if derr != nil {
			if pk, isPebkac := derr.(*Pebkac); isPebkac {
				t.loudReply(pk.Error())
				return true, nil
			}
			return false, derr
		}
		return ok, nil
	case "POST":
		ok, derr := t.handlePost()
		if derr != nil {
			if pk, isPebkac := derr.(*Pebkac); isPebkac {
				t.loudReply(pk.Error())
				return true, nil
			}
			return false, derr
		}
		return ok, nil
	default:
		t.loudReply(fmt.Sprintf("invalid HTTP mode %q", t.method))
		return true, nil
	}
}
