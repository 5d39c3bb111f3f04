package binding

import (
	"fmt"
	"strconv"
	"strings"
)

// Binding is an in-process handle to the engine. Both operations are
// synchronous and report failure through the error, never a sentinel value.
type Binding interface {
	// Eval executes code and returns the text it printed.
	Eval(code string) (string, error)

	// Get returns the value of a workspace variable.
	Get(name string) (Value, error)
}

// FileRunner is implemented by bindings that can execute a script file.
type FileRunner interface {
	RunFile(path string) (string, error)
}

// Setter is implemented by bindings that can assign workspace variables.
type Setter interface {
	Set(name string, v Value) error
}

// ValueKind tags the variant held by a Value.
type ValueKind string

// Value kinds.
const (
	KindEmpty  ValueKind = "empty"
	KindScalar ValueKind = "scalar"
	KindMatrix ValueKind = "matrix"
	KindString ValueKind = "string"
)

// Value is a workspace variable as exchanged with a binding.
type Value struct {
	Kind   ValueKind   `json:"kind"`
	Scalar float64     `json:"scalar,omitempty"`
	Matrix [][]float64 `json:"matrix,omitempty"`
	Text   string      `json:"text,omitempty"`
}

// Empty returns the empty value, used for unset or empty variables.
func Empty() Value { return Value{Kind: KindEmpty} }

// Scalar wraps a number.
func Scalar(f float64) Value { return Value{Kind: KindScalar, Scalar: f} }

// String wraps text.
func String(s string) Value { return Value{Kind: KindString, Text: s} }

// Matrix wraps a row-major matrix. Rows must have equal length.
func Matrix(rows [][]float64) (Value, error) {
	for i, r := range rows {
		if len(r) != len(rows[0]) {
			return Value{}, fmt.Errorf("matrix row %d has %d columns, want %d", i, len(r), len(rows[0]))
		}
	}
	return Value{Kind: KindMatrix, Matrix: rows}, nil
}

// Dims returns the value's rows and columns.
func (v Value) Dims() (int, int) {
	switch v.Kind {
	case KindScalar:
		return 1, 1
	case KindString:
		return 1, len(v.Text)
	case KindMatrix:
		if len(v.Matrix) == 0 {
			return 0, 0
		}
		return len(v.Matrix), len(v.Matrix[0])
	default:
		return 0, 0
	}
}

// String renders the value in the engine's display style.
func (v Value) String() string {
	switch v.Kind {
	case KindScalar:
		return formatNumber(v.Scalar)
	case KindString:
		return v.Text
	case KindMatrix:
		var b strings.Builder
		for i, row := range v.Matrix {
			if i > 0 {
				b.WriteByte('\n')
			}
			for j, x := range row {
				if j > 0 {
					b.WriteString("   ")
				}
				b.WriteString(formatNumber(x))
			}
		}
		return b.String()
	default:
		return "[]"
	}
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
