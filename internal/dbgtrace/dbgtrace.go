// Package dbgtrace renders a guest call stack into a human-readable trace
// for Trap messages (spec.md §7 "launcher" requirement that a trap report
// names the guest frames involved). Grounded on the teacher's own
// wasmdebug.ErrorBuilder pattern (FuncName qualification, AddFrame
// accumulation) inferred from its retained test file before that file was
// dropped as source-less.
package dbgtrace

import (
	"fmt"
	"strings"

	"github.com/wavmgo/wavm/internal/trap"
)

// FuncName formats a guest function's qualified name for diagnostics:
// "module.function", falling back to a synthetic "$<index>" name when the
// debug-names section didn't supply one.
func FuncName(moduleName, funcName string, funcIdx uint32) string {
	if funcName == "" {
		funcName = fmt.Sprintf("$%d", funcIdx)
	}
	if moduleName == "" {
		return "." + funcName
	}
	return moduleName + "." + funcName
}

// Builder accumulates guest frames innermost-first as the call stack is
// unwound at a trap boundary, then renders them into one multi-line trace.
type Builder struct {
	frames []string
}

// AddFrame appends one guest frame, innermost call first.
func (b *Builder) AddFrame(qualifiedName string) {
	b.frames = append(b.frames, qualifiedName)
}

// Frames converts the accumulated names into trap.Frame values by splitting
// the last "." into module/function, for trap.Trap.Frames.
func (b *Builder) Frames() []trap.Frame {
	out := make([]trap.Frame, len(b.frames))
	for i, f := range b.frames {
		mod, fn := f, ""
		if idx := strings.LastIndex(f, "."); idx >= 0 {
			mod, fn = f[:idx], f[idx+1:]
		}
		out[i] = trap.Frame{ModuleName: mod, FuncName: fn}
	}
	return out
}

// String renders the accumulated stack, one frame per line, innermost
// first -- the shape a CLI launcher prints under "wasm stack trace:".
func (b *Builder) String() string {
	var sb strings.Builder
	for _, f := range b.frames {
		sb.WriteString("\t")
		sb.WriteString(f)
		sb.WriteString("\n")
	}
	return sb.String()
}
