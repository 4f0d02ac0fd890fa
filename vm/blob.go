package vm

// Instruction is one element of a blob. Opcodes and their operand bytes are
// stored alike; IsOp tells them apart and Line maps back to source.
type Instruction struct {
	IsOp bool
	Code byte
	Line int
}

// Blob is a compiled function body: instruction stream and constant pool.
type Blob struct {
	Code      []Instruction
	Constants []Value
}

// Len returns the instruction count.
func (b *Blob) Len() int { return len(b.Code) }

// Emit appends a raw instruction and returns its index.
func (b *Blob) Emit(isOp bool, code byte, line int) int {
	b.Code = append(b.Code, Instruction{IsOp: isOp, Code: code, Line: line})
	return len(b.Code) - 1
}

// EmitOp appends an opcode.
func (b *Blob) EmitOp(op Opcode, line int) int {
	return b.Emit(true, byte(op), line)
}

// EmitByte appends a one-byte operand.
func (b *Blob) EmitByte(v byte, line int) int {
	return b.Emit(false, v, line)
}

// EmitShort appends a big-endian two-byte operand and returns the index of
// its first byte.
func (b *Blob) EmitShort(v int, line int) int {
	at := b.Emit(false, byte(v>>8), line)
	b.Emit(false, byte(v), line)
	return at
}

// PatchShort overwrites the short operand starting at at.
func (b *Blob) PatchShort(at, v int) {
	b.Code[at].Code = byte(v >> 8)
	b.Code[at+1].Code = byte(v)
}

// ReadShort decodes the short operand starting at at.
func (b *Blob) ReadShort(at int) int {
	return int(b.Code[at].Code)<<8 | int(b.Code[at+1].Code)
}

// AddConstant appends v to the pool and returns its index. Equal
// primitive and string constants are shared.
func (b *Blob) AddConstant(v Value) int {
	if !v.IsObject() || v.IsString() {
		for i, c := range b.Constants {
			if c.typ == v.typ && Equal(c, v) {
				return i
			}
		}
	}
	b.Constants = append(b.Constants, v)
	return len(b.Constants) - 1
}
