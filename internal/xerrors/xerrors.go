// Package xerrors wraps errors with the call site or stack they passed
// through, so the logger can report where a failure started.
package xerrors

import (
	"errors"
	"fmt"
	"runtime"
)

// stacked carries the full stack of the point it was created at.
type stacked struct {
	err error
	pcs []uintptr
}

func (s *stacked) Error() string       { return s.err.Error() }
func (s *stacked) Unwrap() error       { return s.err }
func (s *stacked) StackPCs() []uintptr { return s.pcs }
func (s *stacked) IsXerrorsWrapper()   {}

// annotated prefixes err with msg and remembers the wrapping call site.
type annotated struct {
	err error
	msg string
	pc  uintptr
}

func (a *annotated) Error() string     { return a.msg + ": " + a.err.Error() }
func (a *annotated) Unwrap() error     { return a.err }
func (a *annotated) PC() uintptr       { return a.pc }
func (a *annotated) IsXerrorsWrapper() {}

// skip counts frames above the exported constructor
func stack(skip int) []uintptr {
	pcs := make([]uintptr, 64)
	return pcs[:runtime.Callers(3+skip, pcs)]
}

func site(skip int) uintptr {
	var pcs [1]uintptr
	if runtime.Callers(3+skip, pcs[:]) == 0 {
		return 0
	}
	return pcs[0]
}

func New(msg string) error { return &stacked{err: errors.New(msg), pcs: stack(0)} }

func Newf(format string, args ...any) error {
	return &stacked{err: fmt.Errorf(format, args...), pcs: stack(0)}
}

func WithStack(err error) error {
	if err == nil {
		return nil
	}
	return &stacked{err: err, pcs: stack(0)}
}

// EnsureTrace adds a stack unless err already carries one.
func EnsureTrace(err error) error {
	if err == nil {
		return nil
	}
	var hs interface{ StackPCs() []uintptr }
	if errors.As(err, &hs) && len(hs.StackPCs()) > 0 {
		return err
	}
	return &stacked{err: err, pcs: stack(0)}
}

func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return &annotated{err: err, msg: msg, pc: site(0)}
}

func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &annotated{err: err, msg: fmt.Sprintf(format, args...), pc: site(0)}
}

// PanicError is a recovered panic value turned into an error.
type PanicError struct {
	Value any
	pcs   []uintptr
}

func (p *PanicError) Error() string       { return fmt.Sprintf("panic: %v", p.Value) }
func (p *PanicError) StackPCs() []uintptr { return p.pcs }

// Unwrap exposes the panic value when it was itself an error.
func (p *PanicError) Unwrap() error {
	if err, ok := p.Value.(error); ok {
		return err
	}
	return nil
}

// Recovered converts the result of recover() into an error. It must be called
// from the deferred function so the captured stack includes the panicking
// frames. A nil value yields nil.
func Recovered(v any) error {
	if v == nil {
		return nil
	}
	return &PanicError{Value: v, pcs: stack(0)}
}
