// Package outcome normalizes what the native binding and the engine process
// produce into a single Outcome, so callers observe the same success/failure
// contract whichever strategy executed.
package outcome
