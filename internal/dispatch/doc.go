// Package dispatch is the caller-facing entry point. A Dispatcher resolves
// the execution strategy once, on first use or at an explicit Resolve, and
// routes every later operation to the resulting backend without probing
// again.
package dispatch
