// Package invoker runs the MatFree engine executable as a child process.
// Bounded operations (evaluate, run_file, version) capture stdout and stderr
// under a timeout; interactive sessions inherit the caller's terminal.
package invoker
