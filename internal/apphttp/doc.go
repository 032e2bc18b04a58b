// Package apphttp assembles the demo application: the ordered middleware
// pipeline, its /health and /terminal branches, and the endpoints served
// by a chi router at the end of the chain.
package apphttp
