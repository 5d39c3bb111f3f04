package invoker

import (
	"bytes"
	"strings"
)

// lineWriter splits written bytes into lines and hands each to fn. It is not
// safe for concurrent use; each stream gets its own.
type lineWriter struct {
	stream string
	fn     LineFunc
	buf    []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.fn(w.stream, strings.TrimSuffix(string(w.buf[:i]), "\r"))
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}

// Flush emits a trailing line that was not newline-terminated.
func (w *lineWriter) Flush() {
	if len(w.buf) == 0 {
		return
	}
	w.fn(w.stream, string(w.buf))
	w.buf = nil
}
