package httpcli

import "fmt"

// Pebkac is the single recoverable user-error kind (spec §4.5.7, §7): bad
// headers, bad ranges, missing content-type, invalid actions, not-found,
// and upload constraint violations all surface as a Pebkac. It is caught
// at the top of request dispatch and rendered to the client wrapped in
// <pre>; anything else escapes and tears down the connection.
type Pebkac struct {
	msg string
}

func (p *Pebkac) Error() string { return p.msg }

// NewPebkac builds a Pebkac with a literal message.
func NewPebkac(msg string) *Pebkac { return &Pebkac{msg: msg} }

// Pebkacf builds a Pebkac with a formatted message.
func Pebkacf(format string, args ...any) *Pebkac {
	return &Pebkac{msg: fmt.Sprintf(format, args...)}
}
