package ahjo

import "fmt"

// ErrorKind classifies remote API failures.
type ErrorKind string

// KindUnavailable means the remote system itself could not serve any
// request (connection failure or a gateway-level status). KindTransport
// covers request-level HTTP failures from a reachable remote, such as a
// 404 for one deleted record.
const (
	KindConfig        ErrorKind = "config"
	KindAuth          ErrorKind = "auth"
	KindUnavailable   ErrorKind = "unavailable"
	KindTransport     ErrorKind = "transport"
	KindDecode        ErrorKind = "decode"
	KindDataIntegrity ErrorKind = "data-integrity"
)

// Error is the single error type every client operation fails with.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("ahjo: %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("ahjo: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func errorf(kind ErrorKind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}
