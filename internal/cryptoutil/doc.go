// Package cryptoutil holds the small hashing helpers used to check shared
// secrets without leaking timing.
package cryptoutil
