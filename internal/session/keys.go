package session

// keySequences maps named keys to the escape sequences written to the PTY.
// Unknown keys are a no-op.
var keySequences = map[string][]byte{
	"enter":     []byte("\r"),
	"tab":       []byte("\t"),
	"backspace": {0x7f},
	"delete":    []byte("\x1b[3~"),
	"escape":    {0x1b},
	"up":        []byte("\x1b[A"),
	"down":      []byte("\x1b[B"),
	"right":     []byte("\x1b[C"),
	"left":      []byte("\x1b[D"),
	"home":      []byte("\x1b[H"),
	"end":       []byte("\x1b[F"),
	"pageup":    []byte("\x1b[5~"),
	"pagedown":  []byte("\x1b[6~"),
	"space":     []byte(" "),
	"ctrl+a":    {0x01},
	"ctrl+c":    {0x03},
	"ctrl+d":    {0x04},
	"ctrl+e":    {0x05},
	"ctrl+l":    {0x0c},
	"ctrl+r":    {0x12},
	"ctrl+u":    {0x15},
	"ctrl+z":    {0x1a},
	"shift+tab": []byte("\x1b[Z"),
	"f1":        []byte("\x1bOP"),
	"f2":        []byte("\x1bOQ"),
	"f3":        []byte("\x1bOR"),
	"f4":        []byte("\x1bOS"),
}

// KeySequence returns the bytes for a named key; ok is false for unknown
// names.
func KeySequence(name string) ([]byte, bool) {
	seq, ok := keySequences[name]
	return seq, ok
}
