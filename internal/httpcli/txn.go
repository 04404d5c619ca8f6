package httpcli

import (
	"fmt"
)

// txn is one request's worth of parsed state (spec §3 "Request context…
// Per transaction"). It is never shared across requests; each call to
// Conn.handleOne builds a fresh one.
type txn struct {
	conn *Conn

	method    string
	reqTarget string
	headers   map[string]string

	vpath        string
	uparam       map[string]Value
	uname        string
	absoluteURLs bool

	outHeaders map[string]string
}

func (t *txn) log(msg string) {
	t.conn.eng.Log.WithField("addr", t.conn.addr).Info(msg)
}

// reply writes one complete HTTP/1.1 response: status line, the
// engine-accumulated out-headers, any extra headers, then the body (spec
// §4.5.1's reply() contract). HEAD requests suppress the body but compute
// headers identically (spec §4.5.2).
func (t *txn) reply(body []byte, status string, mime string, extra []string) error {
	if status == "" {
		status = "200 OK"
	}
	if mime == "" {
		mime = "text/html"
	}
	head := fmt.Sprintf("HTTP/1.1 %s\r\nConnection: Keep-Alive\r\nContent-Type: %s\r\nContent-Length: %d\r\n",
		status, mime, len(body))
	for k, v := range t.outHeaders {
		head += fmt.Sprintf("%s: %s\r\n", k, v)
	}
	for _, h := range extra {
		head += h + "\r\n"
	}
	head += "\r\n"

	if _, err := t.conn.w.Write([]byte(head)); err != nil {
		return NewPebkac("client disconnected before http response")
	}
	if t.method == "HEAD" {
		return nil
	}
	if _, err := t.conn.w.Write(body); err != nil {
		return NewPebkac("client disconnected before http response")
	}
	return nil
}

// loudReply logs the error message and sends it to the client wrapped in
// <pre> (spec §4.5.7 "loud_reply").
func (t *txn) loudReply(msg string) {
	t.log(msg)
	_ = t.reply([]byte("<pre>"+msg+"</pre>"), "200 OK", "text/html", nil)
}
