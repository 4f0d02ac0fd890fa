package vm

import "fmt"

// Opcode is a bytecode instruction. Operands follow the opcode as non-op
// Instructions: a short operand takes two (big-endian), a byte one.
type Opcode byte

const (
	// ========================================================================
	// Variables
	// ========================================================================

	OpGlobalDefine   Opcode = iota // name:u16; pops value
	OpGlobalGet                    // name:u16
	OpGlobalSet                    // name:u16; leaves value
	OpLocalGet                     // slot:u16
	OpLocalSet                     // slot:u16; leaves value
	OpFuncArgDefault               // slot:u16 skip:u16; jumps over default code when the argument was passed
	OpUpvalueGet                   // index:u16
	OpUpvalueSet                   // index:u16; leaves value
	OpUpvalueClose                 // closes the upvalue on top, then pops it

	// ========================================================================
	// Properties
	// ========================================================================

	OpPropertyGet     // name:u16; obj -> value
	OpPropertyGetSelf // name:u16; this -> value
	OpPropertySet     // name:u16; obj value -> value

	// ========================================================================
	// Control flow
	// ========================================================================

	OpJumpIfFalse // offset:u16; does not pop
	OpJumpNow     // offset:u16
	OpLoop        // offset:u16 (backwards)

	// ========================================================================
	// Comparison and constants
	// ========================================================================

	OpEqual
	OpGreater
	OpLess
	OpPushEmpty
	OpPushNull
	OpPushTrue
	OpPushFalse
	OpPushOne
	OpPushConstant // index:u16

	// ========================================================================
	// Arithmetic and bitwise
	// ========================================================================

	OpAdd
	OpSub
	OpMul
	OpDiv
	OpFloorDiv
	OpMod
	OpPow
	OpNegate
	OpNot
	OpBitNot
	OpBitAnd
	OpBitOr
	OpBitXor
	OpShl
	OpShr

	// ========================================================================
	// Stack and misc
	// ========================================================================

	OpEcho
	OpPop
	OpDup
	OpPopN // count:u16
	OpAssert
	OpThrow

	// ========================================================================
	// Functions and classes
	// ========================================================================

	OpMakeClosure         // func:u16 then per upvalue isLocal:u8 index:u16
	OpCallFunction        // argc:u8
	OpCallMethod          // name:u16 argc:u8
	OpInvokeThis          // name:u16 argc:u8
	OpReturn              //
	OpMakeClass           // name:u16
	OpMakeMethod          // name:u16 static:u8; class closure -> class
	OpClassPropertyDefine // name:u16 static:u8; class value -> class
	OpClassInherit        // class super -> class
	OpGetSuper            // name:u16; this super -> bound
	OpInvokeSuper         // name:u16 argc:u8; this args.. super
	OpInvokeSuperSelf     // argc:u8; this args.. super, runs the super constructor

	// ========================================================================
	// Containers
	// ========================================================================

	OpMakeRange      // lo hi -> range
	OpMakeArray      // count:u16
	OpMakeDict       // count:u16 (key/value pairs)
	OpIndexGet       // assign:u8; obj idx -> value (keeps obj idx when assign)
	OpIndexGetRanged // assign:u8; obj lo hi -> slice
	OpIndexSet       // obj idx value -> value

	// ========================================================================
	// Modules, exceptions and the rest
	// ========================================================================

	OpImport // path:u16
	OpTry    // class:u16 catch:u16 finally:u16
	OpPopTry
	OpPublishTry // re-raises the exception on top
	OpStringify
	OpSwitch // switch:u16; pops the subject
	OpTypeof
	OpInstanceOf
	OpHalt

	opcodeCount
)

// OpcodeInfo provides metadata about each opcode for disassembly.
type OpcodeInfo struct {
	Name     string
	Operands []int // width in instructions of each fixed operand
}

var (
	noOps    = []int{}
	shortOp  = []int{2}
	byteOp   = []int{1}
	shortx2  = []int{2, 2}
	shortx3  = []int{2, 2, 2}
	shortByt = []int{2, 1}
)

var opcodeInfoTable = [opcodeCount]OpcodeInfo{
	OpGlobalDefine:        {"GLOBALDEFINE", shortOp},
	OpGlobalGet:           {"GLOBALGET", shortOp},
	OpGlobalSet:           {"GLOBALSET", shortOp},
	OpLocalGet:            {"LOCALGET", shortOp},
	OpLocalSet:            {"LOCALSET", shortOp},
	OpFuncArgDefault:      {"FUNCARGDEFAULT", shortx2},
	OpUpvalueGet:          {"UPVALUEGET", shortOp},
	OpUpvalueSet:          {"UPVALUESET", shortOp},
	OpUpvalueClose:        {"UPVALUECLOSE", noOps},
	OpPropertyGet:         {"PROPERTYGET", shortOp},
	OpPropertyGetSelf:     {"PROPERTYGETSELF", shortOp},
	OpPropertySet:         {"PROPERTYSET", shortOp},
	OpJumpIfFalse:         {"JUMPIFFALSE", shortOp},
	OpJumpNow:             {"JUMPNOW", shortOp},
	OpLoop:                {"LOOP", shortOp},
	OpEqual:               {"EQUAL", noOps},
	OpGreater:             {"GREATER", noOps},
	OpLess:                {"LESS", noOps},
	OpPushEmpty:           {"PUSHEMPTY", noOps},
	OpPushNull:            {"PUSHNULL", noOps},
	OpPushTrue:            {"PUSHTRUE", noOps},
	OpPushFalse:           {"PUSHFALSE", noOps},
	OpPushOne:             {"PUSHONE", noOps},
	OpPushConstant:        {"PUSHCONSTANT", shortOp},
	OpAdd:                 {"ADD", noOps},
	OpSub:                 {"SUB", noOps},
	OpMul:                 {"MUL", noOps},
	OpDiv:                 {"DIV", noOps},
	OpFloorDiv:            {"FLOORDIV", noOps},
	OpMod:                 {"MOD", noOps},
	OpPow:                 {"POW", noOps},
	OpNegate:              {"NEGATE", noOps},
	OpNot:                 {"NOT", noOps},
	OpBitNot:              {"BITNOT", noOps},
	OpBitAnd:              {"BITAND", noOps},
	OpBitOr:               {"BITOR", noOps},
	OpBitXor:              {"BITXOR", noOps},
	OpShl:                 {"SHL", noOps},
	OpShr:                 {"SHR", noOps},
	OpEcho:                {"ECHO", noOps},
	OpPop:                 {"POP", noOps},
	OpDup:                 {"DUP", noOps},
	OpPopN:                {"POPN", shortOp},
	OpAssert:              {"ASSERT", noOps},
	OpThrow:               {"THROW", noOps},
	OpMakeClosure:         {"MAKECLOSURE", shortOp},
	OpCallFunction:        {"CALLFUNCTION", byteOp},
	OpCallMethod:          {"CALLMETHOD", shortByt},
	OpInvokeThis:          {"INVOKETHIS", shortByt},
	OpReturn:              {"RETURN", noOps},
	OpMakeClass:           {"MAKECLASS", shortOp},
	OpMakeMethod:          {"MAKEMETHOD", shortByt},
	OpClassPropertyDefine: {"CLASSPROPERTYDEFINE", shortByt},
	OpClassInherit:        {"CLASSINHERIT", noOps},
	OpGetSuper:            {"GETSUPER", shortOp},
	OpInvokeSuper:         {"INVOKESUPER", shortByt},
	OpInvokeSuperSelf:     {"INVOKESUPERSELF", byteOp},
	OpMakeRange:           {"MAKERANGE", noOps},
	OpMakeArray:           {"MAKEARRAY", shortOp},
	OpMakeDict:            {"MAKEDICT", shortOp},
	OpIndexGet:            {"INDEXGET", byteOp},
	OpIndexGetRanged:      {"INDEXGETRANGED", byteOp},
	OpIndexSet:            {"INDEXSET", noOps},
	OpImport:              {"IMPORT", shortOp},
	OpTry:                 {"TRY", shortx3},
	OpPopTry:              {"POPTRY", noOps},
	OpPublishTry:          {"PUBLISHTRY", noOps},
	OpStringify:           {"STRINGIFY", noOps},
	OpSwitch:              {"SWITCH", shortOp},
	OpTypeof:              {"TYPEOF", noOps},
	OpInstanceOf:          {"INSTANCEOF", noOps},
	OpHalt:                {"HALT", noOps},
}

// GetOpcodeInfo returns metadata for an opcode.
// Returns an OpcodeInfo named "UNKNOWN(..)" if the opcode is not recognized.
func GetOpcodeInfo(op Opcode) OpcodeInfo {
	if op < opcodeCount {
		return opcodeInfoTable[op]
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN(0x%02X)", byte(op)), Operands: noOps}
}

// String returns the mnemonic of op.
func (op Opcode) String() string {
	return GetOpcodeInfo(op).Name
}

// OperandLen returns how many operand instructions follow op. For
// OpMakeClosure this excludes the per-upvalue triples.
func (op Opcode) OperandLen() int {
	n := 0
	for _, w := range GetOpcodeInfo(op).Operands {
		n += w
	}
	return n
}

// IsJump reports whether op transfers control by a relative offset.
func (op Opcode) IsJump() bool {
	return op == OpJumpIfFalse || op == OpJumpNow || op == OpLoop
}

// OpcodeCount returns the number of defined opcodes.
func OpcodeCount() int { return int(opcodeCount) }
