// Package binding defines the contract of an in-process MatFree engine
// binding and the registry through which builds that include one make it
// available. A build without any registered provider has no native binding,
// which is what sends the dispatcher down the subprocess path.
package binding
