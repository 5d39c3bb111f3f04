// Package backend defines the interface both execution strategies implement,
// the native binding and the engine subprocess, along with the types the
// dispatcher exchanges with them.
package backend
