package errors

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
)

// AnnotatedError includes more context than a plain error that is useful for troubleshooting.
type AnnotatedError struct {
	// msg is the error message.
	msg string
	// pc is the program counter for the location of the error provided by runtime.Callers.
	pc uintptr
	// attrs are slog attributes that are added to the log event to provide more context for the error.
	attrs []slog.Attr
}

func annotate(skip int, msg string, attrs []slog.Attr) AnnotatedError {
	var pcs [1]uintptr
	runtime.Callers(skip, pcs[:])
	return AnnotatedError{
		msg:   msg,
		pc:    pcs[0],
		attrs: attrs,
	}
}

// New creates a new AnnotatedError with the given message and attributes.
func New(msg string, attrs ...slog.Attr) error {
	// Skip runtime.Callers, annotate and this function.
	return annotate(3, msg, attrs) //nolint:mnd // see above
}

// NewSentinel creates a plain error without other context that can be detected with errors.Is.
func NewSentinel(msg string) error {
	return errors.New(msg)
}

// Wrap adds msg and attrs to err. The returned error matches err with Is and As.
func Wrap(err error, msg string, attrs ...slog.Attr) error {
	return fmt.Errorf("%w: %w", annotate(3, msg, attrs), err) //nolint:mnd // skip runtime.Callers, annotate, Wrap
}

// Error implements error interface.
func (err AnnotatedError) Error() string {
	return err.msg
}

// source returns the file:line where the error was created.
func (err AnnotatedError) source() string {
	frames := runtime.CallersFrames([]uintptr{err.pc})
	frame, _ := frames.Next()
	return fmt.Sprintf("%s:%d", frame.File, frame.Line)
}

// LogValue formats the error for useful logging.
func (err AnnotatedError) LogValue() slog.Value {
	attrs := append([]slog.Attr{slog.String("source", err.source())}, err.attrs...)
	return slog.GroupValue(attrs...)
}

// SlogError returns an attribute describing err together with the attributes of every AnnotatedError in its tree.
//
// The reported source is the one closest to the origin of the error.
func SlogError(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	var (
		attrs  []slog.Attr
		source string
	)
	walk(err, func(annotated AnnotatedError) {
		attrs = append(attrs, annotated.attrs...)
		source = annotated.source()
	})
	group := []any{slog.String("message", err.Error())}
	if source != "" {
		group = append(group, slog.String("source", source))
	}
	for _, attr := range attrs {
		group = append(group, attr)
	}
	return slog.Group("error", group...)
}

func walk(err error, visit func(AnnotatedError)) {
	if err == nil {
		return
	}
	if annotated, ok := err.(AnnotatedError); ok { //nolint:errorlint // we walk the tree ourselves
		visit(annotated)
	}
	switch unwrapper := err.(type) { //nolint:errorlint // we walk the tree ourselves
	case interface{ Unwrap() []error }:
		for _, inner := range unwrapper.Unwrap() {
			walk(inner, visit)
		}
	case interface{ Unwrap() error }:
		walk(unwrapper.Unwrap(), visit)
	}
}

// As exposes stdlib errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Is exposes stdlib errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Unwrap exposes stdlib errors.Unwrap.
func Unwrap(err error) error {
	return errors.Unwrap(err)
}

// Join exposes stdlib errors.Join.
func Join(errs ...error) error {
	return errors.Join(errs...)
}
