package model

// Strategy identifies how an operation reaches the engine.
type Strategy string

const (
	// StrategyNative calls an in-process binding directly.
	StrategyNative Strategy = "native"
	// StrategySubprocess spawns the engine executable.
	StrategySubprocess Strategy = "subprocess"
)

// String implements fmt.Stringer.
func (s Strategy) String() string {
	return string(s)
}

// Strategy selection modes accepted by MATFREE_STRATEGY.
const (
	ModeAuto       = "auto"
	ModeNative     = "native"
	ModeSubprocess = "subprocess"
)
