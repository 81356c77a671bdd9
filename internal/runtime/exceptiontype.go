package runtime

import wasm "github.com/wavmgo/wavm/internal/wasm"

// ExceptionTypeInstance is an ExceptionType object (spec.md §4.4 object
// table): the runtime identity a `try`/`throw`/`catch` tag refers to, once
// exception handling is enabled. Two imports of "the same" exception type
// are only the same object if they resolve to one ExceptionTypeInstance;
// tag instances never compare equal merely by having the same parameter
// tuple.
type ExceptionTypeInstance struct {
	object

	// Params is the parameter tuple carried by a throw of this type.
	Params []wasm.ValueType
	// DebugName is optional, for Trap formatting and tooling.
	DebugName string
}

// NewExceptionType allocates an exception type, registering it in c.
func NewExceptionType(c *Compartment, params []wasm.ValueType, debugName string) *ExceptionTypeInstance {
	e := &ExceptionTypeInstance{Params: params, DebugName: debugName}
	e.object = object{kind: KindExceptionType}
	c.addExceptionType(e)
	return e
}
