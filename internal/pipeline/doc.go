// Package pipeline composes request middleware into a single callable chain.
//
// A pipeline is an ordered list of components built once at startup and
// invoked once per exchange. Each Middleware receives the exchange Context
// and a Next continuation for the rest of the chain; it may do work before
// calling next, after it returns, or skip it entirely to short-circuit.
//
// Composition wraps right-to-left, so before-phases run in registration
// order and after-phases unwind in reverse. Failures (returned errors or
// panics) unwind the same way and skip any after-phase code between the
// failure and whatever catches it.
//
// Branches divert an exchange into a separately built sub-pipeline:
// [Builder.MapWhen] never returns to the outer chain, [Builder.UseWhen]
// hands the outer remainder to the branch as its terminal so it may rejoin.
//
// Responses are buffered on the Context and only transmitted by
// [Context.Commit], which first runs the callbacks registered with
// [Context.OnStarting].
package pipeline
