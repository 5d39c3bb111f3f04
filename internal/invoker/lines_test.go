package invoker

import (
	"reflect"
	"testing"
)

func TestLineWriterSplitsAcrossWrites(t *testing.T) {
	var got []string
	w := &lineWriter{stream: StreamStdout, fn: func(_, line string) { got = append(got, line) }}

	for _, chunk := range []string{"ans =", " 3\r\nx", " = 4\n", "tail"} {
		if _, err := w.Write([]byte(chunk)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if want := []string{"ans = 3", "x = 4"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("lines before flush = %q, want %q", got, want)
	}

	w.Flush()
	if want := []string{"ans = 3", "x = 4", "tail"}; !reflect.DeepEqual(got, want) {
		t.Errorf("lines after flush = %q, want %q", got, want)
	}

	w.Flush()
	if len(got) != 3 {
		t.Errorf("second Flush emitted a line: %q", got)
	}
}
