package core

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// Kind classifies every failure a public operation can report.
type Kind int

const (
	KindUnknown Kind = iota
	UnsupportedFormat
	MalformedContainer
	TruncatedData
	EncodingError
	AccessDenied
	EncodeError
	IOError
)

var kindNames = [...]string{
	KindUnknown:        "unknown error",
	UnsupportedFormat:  "unsupported format",
	MalformedContainer: "malformed container",
	TruncatedData:      "truncated data",
	EncodingError:      "encoding error",
	AccessDenied:       "access denied",
	EncodeError:        "encode error",
	IOError:            "i/o error",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is the single error type returned by the public API.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op == "" && e.Err == nil:
		return e.Kind.String()
	case e.Op == "":
		return e.Kind.String() + ": " + e.Err.Error()
	case e.Err == nil:
		return e.Op + ": " + e.Kind.String()
	}
	return e.Op + ": " + e.Kind.String() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the bare sentinels below by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Op != "" || t.Err != nil {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrUnsupportedFormat  = &Error{Kind: UnsupportedFormat}
	ErrMalformedContainer = &Error{Kind: MalformedContainer}
	ErrTruncatedData      = &Error{Kind: TruncatedData}
	ErrEncoding           = &Error{Kind: EncodingError}
	ErrAccessDenied       = &Error{Kind: AccessDenied}
	ErrEncode             = &Error{Kind: EncodeError}
	ErrIO                 = &Error{Kind: IOError}
)

// Errorf builds an *Error with a formatted cause.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap attaches a kind to err. An err that already carries a kind keeps it.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok && e.Op == "" {
		return &Error{Kind: e.Kind, Op: op, Err: e.Err}
	}
	var ce *Error
	if errors.As(err, &ce) {
		kind = ce.Kind
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf reports the kind carried by err, or KindUnknown.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnknown
}

// Collector gathers every failure of one operation so the caller sees a
// single error at the end of it.
type Collector struct {
	op   string
	kind Kind
	errs *multierror.Error
}

// NewCollector starts an accumulator for the named operation.
func NewCollector(op string) *Collector {
	return &Collector{op: op}
}

// Add records err. nil is ignored.
func (c *Collector) Add(err error) {
	if err == nil {
		return
	}
	if c.kind == KindUnknown {
		c.kind = KindOf(err)
	}
	c.errs = multierror.Append(c.errs, err)
}

// Addf records a new error of the given kind.
func (c *Collector) Addf(kind Kind, format string, args ...any) {
	c.Add(&Error{Kind: kind, Err: fmt.Errorf(format, args...)})
}

// Len returns the number of recorded errors.
func (c *Collector) Len() int {
	if c.errs == nil {
		return 0
	}
	return len(c.errs.Errors)
}

// Err returns nil or one *Error whose kind is that of the first failure.
func (c *Collector) Err() error {
	if c.Len() == 0 {
		return nil
	}
	if c.Len() == 1 {
		return Wrap(c.kind, c.op, c.errs.Errors[0])
	}
	c.errs.ErrorFormat = listFormat
	return &Error{Kind: c.kind, Op: c.op, Err: c.errs}
}

func listFormat(es []error) string {
	s := fmt.Sprintf("%d errors occurred:", len(es))
	for _, e := range es {
		s += "\n\t* " + e.Error()
	}
	return s
}
