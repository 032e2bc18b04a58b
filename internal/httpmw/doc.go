// Package httpmw provides the cross-cutting pipeline middlewares.
//
// The server assembles them in apphttp.NewPipeline: exception boundary,
// correlation id, client address, request logger, response headers, timing,
// request log, rate limiting and the key guard on the secure branch.
//
// Middlewares share data through Context items rather than adjacency, so a
// boundary can read the correlation id set by a later component. Query
// strings, user agents and other request headers are kept out of logs.
package httpmw
