// Package runner records engine operations as runs. It persists each run's
// lifecycle (pending, running, then completed, failed or killed) together
// with its captured output lines, and fans those lines out to live
// subscribers while the run is in flight.
package runner
