package httpcli

import (
	"os"
	"strconv"
	"strings"
)

// txFile implements ranged + conditional file transmission (spec §4.5.3).
func (t *txn) txFile(abspath string) (bool, error) {
	info, err := os.Stat(abspath)
	if err != nil {
		return false, NewPebkac("404 not found")
	}
	fileTS := info.ModTime().UTC()
	fileLastmod := formatLastModified(fileTS)

	doSend := true
	status := "200 OK"

	if cli, ok := t.headers["if-modified-since"]; ok {
		if cliTS, perr := parseFixedTime(cli); perr == nil {
			doSend = fileTS.Unix() > cliTS.Unix()
		} else {
			t.log("bad lastmod format: " + cli)
			doSend = fileLastmod != cli
		}
	}
	if !doSend {
		status = "304 Not Modified"
	}

	fileSize := info.Size()
	lower := int64(0)
	upper := fileSize
	var extraHeaders []string

	if doSend {
		if rangeHdr, ok := t.headers["range"]; ok {
			l, u, rerr := parseRange(rangeHdr, fileSize)
			if rerr != nil {
				t.loudReply("invalid range requested: " + rangeHdr)
				return true, nil
			}
			lower, upper = l, u
			status = "206 Partial Content"
			extraHeaders = append(extraHeaders, "Content-Range: bytes "+
				strconv.FormatInt(lower, 10)+"-"+strconv.FormatInt(upper-1, 10)+"/"+strconv.FormatInt(fileSize, 10))
		}
	}

	mime := guessMime(abspath)
	extraHeaders = append(extraHeaders,
		"Accept-Ranges: bytes",
		"Last-Modified: "+fileLastmod,
	)

	head := "HTTP/1.1 " + status + "\r\n" +
		"Connection: Keep-Alive\r\n" +
		"Content-Type: " + mime + "\r\n" +
		"Content-Length: " + strconv.FormatInt(upper-lower, 10) + "\r\n"
	for _, h := range extraHeaders {
		head += h + "\r\n"
	}
	head += "\r\n"

	if _, werr := t.conn.w.Write([]byte(head)); werr != nil {
		return false, NewPebkac("client disconnected before http response")
	}

	if t.method == "HEAD" || !doSend {
		return true, nil
	}

	f, ferr := os.Open(abspath)
	if ferr != nil {
		return false, NewPebkac("404 not found")
	}
	defer f.Close()

	if _, serr := f.Seek(lower, 0); serr != nil {
		return false, serr
	}

	const chunk = 4096
	buf := make([]byte, chunk)
	remains := upper - lower
	var sent int64
	for remains > 0 {
		n := int64(len(buf))
		if remains < n {
			n = remains
		}
		rn, rerr := f.Read(buf[:n])
		if rn > 0 {
			if _, werr := t.conn.w.Write(buf[:rn]); werr != nil {
				t.conn.eng.Log.WithField("sent", sent).Warn("client write failed mid-transfer")
				return false, nil
			}
			sent += int64(rn)
			remains -= int64(rn)
		}
		if rerr != nil {
			break
		}
	}
	return true, nil
}

// parseRange parses a "bytes=LOW-HIGH" Range header value, per spec
// §4.5.3: missing LOW defaults to 0, missing HIGH defaults to filesize,
// HIGH is inclusive so upper = HIGH+1.
func parseRange(header string, fileSize int64) (lower, upper int64, err error) {
	_, rval, ok := strings.Cut(header, "=")
	if !ok {
		return 0, 0, NewPebkac("bad range header")
	}
	a, b, ok := strings.Cut(rval, "-")
	if !ok {
		return 0, 0, NewPebkac("bad range header")
	}
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)

	if a == "" && b == "" {
		return 0, 0, NewPebkac("empty range")
	}

	lower = 0
	if a != "" {
		v, perr := strconv.ParseInt(a, 10, 64)
		if perr != nil {
			return 0, 0, NewPebkac("bad range header")
		}
		lower = v
	}

	upper = fileSize
	if b != "" {
		v, perr := strconv.ParseInt(b, 10, 64)
		if perr != nil {
			return 0, 0, NewPebkac("bad range header")
		}
		upper = v + 1
	}

	if lower < 0 || lower >= fileSize || upper < 0 || upper > fileSize {
		return 0, 0, NewPebkac("na")
	}
	return lower, upper, nil
}
