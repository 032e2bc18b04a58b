package health

import (
	"context"

	"github.com/keithlinneman/httppipe/internal/xerrors"
)

// Probe reports nil when healthy and the reason otherwise.
type Probe interface{ Check(context.Context) error }

type CheckFunc func(context.Context) error

func (f CheckFunc) Check(ctx context.Context) error { return f(ctx) }

// Fixed always passes, or always fails with reason.
func Fixed(ok bool, reason string) CheckFunc {
	var failure error
	if !ok {
		if reason == "" {
			reason = "unhealthy"
		}
		failure = xerrors.New(reason)
	}
	return func(context.Context) error { return failure }
}

// Named prefixes a failure from p with name. A nil p passes.
func Named(name string, p Probe) CheckFunc {
	return func(ctx context.Context) error {
		if p == nil {
			return nil
		}
		return xerrors.Wrap(p.Check(ctx), name)
	}
}
