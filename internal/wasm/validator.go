package wasm

import "fmt"

// ValidationError is returned for a single function body's validation
// failure (spec.md §4.2 "Failure produces ValidationError{function_index,
// byte_offset, reason} and halts that function; module-level validation
// continues collecting errors up to an implementation-defined cap").
type ValidationError struct {
	FunctionIndex uint32
	ByteOffset    uint32
	Reason        string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("function[%d] at offset %#x: %s", e.FunctionIndex, e.ByteOffset, e.Reason)
}

// maxValidationErrors bounds how many function failures Validate collects
// before giving up on the module, per spec.md §4.2's "implementation-defined
// cap".
const maxValidationErrors = 100

// Validate performs spec.md §4.2's full module validation: per-function
// polymorphic-stack type checking plus the structural invariants of §3
// (delegated to Module.SecondaryInvariants). It is always run before a
// Module is handed to a Codegen (spec.md §8 "No execution of invalid
// code").
func (m *Module) Validate(enabled Features) error {
	if err := m.SecondaryInvariants(); err != nil {
		return err
	}
	var errs []error
	for i, code := range m.CodeSection {
		funcIdx := m.importFuncCount + uint32(i)
		ft, err := m.TypeOfFunction(funcIdx)
		if err != nil {
			return err
		}
		if err := newFuncValidator(m, enabled, funcIdx, ft, code).validate(); err != nil {
			errs = append(errs, err)
			if len(errs) >= maxValidationErrors {
				break
			}
		}
	}
	for i, g := range m.GlobalSection {
		if err := m.validateConstantExpression(g.Init, g.Type.ValType, enabled); err != nil {
			errs = append(errs, fmt.Errorf("global[%d]: %w", i, err))
		}
	}
	for i, d := range m.DataSection {
		if d.Mode == DataSegmentModeActive {
			if err := m.validateConstantExpression(d.OffsetExpr, ValueTypeI32, enabled); err != nil {
				errs = append(errs, fmt.Errorf("data[%d]: %w", i, err))
			}
		}
	}
	for i, e := range m.ElementSection {
		if e.Mode == ElementSegmentModeActive {
			if err := m.validateConstantExpression(e.OffsetExpr, ValueTypeI32, enabled); err != nil {
				errs = append(errs, fmt.Errorf("element[%d]: %w", i, err))
			}
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return &multiError{errs}
}

type multiError struct{ errs []error }

func (m *multiError) Error() string {
	s := fmt.Sprintf("%d validation error(s): ", len(m.errs))
	for i, e := range m.errs {
		if i > 0 {
			s += "; "
		}
		s += e.Error()
	}
	return s
}

// validateConstantExpression checks one of spec.md §3's four "Initializer
// expression" shapes evaluates in-type, per §4.2 "every constant initializer
// expression evaluates in-type".
func (m *Module) validateConstantExpression(ce ConstantExpression, want ValueType, enabled Features) error {
	switch ce.Kind {
	case ValueTypeI32, ValueTypeI64, ValueTypeF32, ValueTypeF64, ValueTypeV128:
		if ce.Kind != want {
			return fmt.Errorf("constant expression type %s does not match expected %s", ValueTypeName(ce.Kind), ValueTypeName(want))
		}
		return nil
	case ValueTypeFuncref, ValueTypeExternref, valueTypeNullRef:
		if !isReferenceType(want) && want != ce.Kind {
			return fmt.Errorf("constant expression type %s does not match expected %s", ValueTypeName(ce.Kind), ValueTypeName(want))
		}
		return nil
	}
	return fmt.Errorf("invalid constant expression kind %#x", ce.Kind)
}

// controlFrame is one entry of the validator's control stack (spec.md §4.2
// "a control stack whose frames carry (label_types, end_types,
// height_at_entry, unreachable_flag)").
type controlFrame struct {
	opcode        Opcode
	params        []ValueType // the block's parameter types, restored to the stack by `else`
	labelTypes    []ValueType // what `br` to this frame must match: params for loop, results otherwise
	endTypes      []ValueType // what the value stack must equal when `end` is reached
	heightAtEntry int
	unreachable   bool
	elseSeen      bool
}

type funcValidator struct {
	m        *Module
	enabled  Features
	funcIdx  uint32
	sig      *FunctionType
	locals   []ValueType
	code     *Code
	stack    []ValueType
	frames   []controlFrame
}

func newFuncValidator(m *Module, enabled Features, funcIdx uint32, sig *FunctionType, code *Code) *funcValidator {
	locals := make([]ValueType, 0, len(sig.Params)+len(code.LocalTypes))
	locals = append(locals, sig.Params...)
	locals = append(locals, code.LocalTypes...)
	return &funcValidator{m: m, enabled: enabled, funcIdx: funcIdx, sig: sig, locals: locals, code: code}
}

func (v *funcValidator) fail(offset uint32, format string, args ...interface{}) error {
	return &ValidationError{FunctionIndex: v.funcIdx, ByteOffset: offset, Reason: fmt.Sprintf(format, args...)}
}

// validate walks the decoded instruction stream exactly per spec.md §4.2
// steps 1-5.
func (v *funcValidator) validate() error {
	v.pushControlFrame(0, nil, v.sig.Results, v.sig.Results)
	instrs, err := v.decodeBody()
	if err != nil {
		return err
	}
	for _, op := range instrs {
		if err := v.step(op); err != nil {
			return err
		}
	}
	if len(v.frames) != 0 {
		return v.fail(0, "function body ended without matching `end`")
	}
	return nil
}

// decodeBody decodes the body with this package's DecodeInstructions
// (decode.go), so validator.go has no dependency on the binary package
// (avoiding an import cycle), per
// spec.md §9's direction to keep concerns narrowly scoped.
func (v *funcValidator) decodeBody() ([]Instruction, error) {
	return DecodeInstructions(v.code.Body)
}

func (v *funcValidator) curFrame() *controlFrame { return &v.frames[len(v.frames)-1] }

func (v *funcValidator) pushControlFrame(op Opcode, labelTypes, endTypes []ValueType, resultsForHeight []ValueType) {
	v.frames = append(v.frames, controlFrame{
		opcode: op, labelTypes: labelTypes, endTypes: endTypes, heightAtEntry: len(v.stack),
	})
}

func (v *funcValidator) push(t ValueType)  { v.stack = append(v.stack, t) }
func (v *funcValidator) pushN(ts []ValueType) {
	for _, t := range ts {
		v.push(t)
	}
}

// pop implements spec.md §4.2 steps 1-2: pop the top of stack, checking it
// against want (subtype rule), or synthesize Unknown if the current frame
// is unreachable and height_at_entry has been exhausted.
func (v *funcValidator) pop(offset uint32, want ValueType) (ValueType, error) {
	f := v.curFrame()
	if len(v.stack) == f.heightAtEntry {
		if f.unreachable {
			return valueTypeUnknown, nil
		}
		return 0, v.fail(offset, "expected %s, but stack was empty", ValueTypeName(want))
	}
	got := v.stack[len(v.stack)-1]
	if !isSubtype(got, want) {
		return 0, v.fail(offset, "type mismatch: expected %s, got %s", ValueTypeName(want), ValueTypeName(got))
	}
	v.stack = v.stack[:len(v.stack)-1]
	return got, nil
}

func (v *funcValidator) popN(offset uint32, want []ValueType) error {
	for i := len(want) - 1; i >= 0; i-- {
		if _, err := v.pop(offset, want[i]); err != nil {
			return err
		}
	}
	return nil
}

// popUnknown pops one value of any type (used for drop, select's operands
// before the type is known).
func (v *funcValidator) popUnknown(offset uint32) (ValueType, error) {
	return v.pop(offset, valueTypeUnknown)
}

func isSubtype(sub, super ValueType) bool {
	if sub == super || sub == valueTypeUnknown || super == valueTypeUnknown {
		return true
	}
	if sub == valueTypeNullRef && isReferenceType(super) {
		return true
	}
	return false
}

// setUnreachable implements spec.md §4.2 step 5: "unreachable marks the
// current frame, truncates the stack to height_at_entry, and allows
// arbitrary types until the next end".
func (v *funcValidator) setUnreachable() {
	f := v.curFrame()
	v.stack = v.stack[:f.heightAtEntry]
	f.unreachable = true
}

// endFrame implements step 4's `end` handling: verify the value stack
// matches the frame's end types and height, then pop the control frame and
// push its results to the enclosing frame.
func (v *funcValidator) endFrame(offset uint32) error {
	f := *v.curFrame()
	if err := v.popN(offset, f.endTypes); err != nil {
		return err
	}
	if len(v.stack) != f.heightAtEntry {
		return v.fail(offset, "values remain on stack at end of block")
	}
	v.frames = v.frames[:len(v.frames)-1]
	v.pushN(f.endTypes)
	return nil
}

// branchTo implements step 4's br/br_if/br_table handling: "require the
// label types to be subtypes of the top-of-stack" without consuming them
// (br_if) or consuming them and marking unreachable (br).
func (v *funcValidator) branchTo(offset uint32, depth uint32) ([]ValueType, error) {
	if int(depth) >= len(v.frames) {
		return nil, v.fail(offset, "branch depth %d exceeds control stack", depth)
	}
	target := v.frames[len(v.frames)-1-int(depth)]
	return target.labelTypes, nil
}

