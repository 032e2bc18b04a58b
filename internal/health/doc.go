// Package health holds the probes behind the liveness and readiness
// endpoints and the public /health branch.
//
// DrainGate fails readiness as soon as shutdown starts so load balancers
// stop routing before in-flight exchanges finish.
package health
