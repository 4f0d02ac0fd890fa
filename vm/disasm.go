package vm

import (
	"fmt"
	"io"
	"strings"
)

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// DisassembleInstruction renders the instruction at pos of fn and returns
// the position of the next one.
func DisassembleInstruction(fn *FuncScript, pos int) (string, int) {
	b := &fn.Blob
	ins := b.Code[pos]
	line := fmt.Sprintf("%04d %4d  ", pos, ins.Line)
	if !ins.IsOp {
		return line + fmt.Sprintf("<operand 0x%02x>", ins.Code), pos + 1
	}
	op := Opcode(ins.Code)
	name := op.String()
	at := pos + 1
	short := func() int {
		v := b.ReadShort(at)
		at += 2
		return v
	}
	byt := func() int {
		v := int(b.Code[at].Code)
		at++
		return v
	}
	constant := func(i int) string {
		if i < len(b.Constants) {
			return fmt.Sprintf("%d '%s'", i, formatConstant(b.Constants[i]))
		}
		return fmt.Sprintf("%d <bad constant>", i)
	}

	switch op {
	case OpGlobalDefine, OpGlobalGet, OpGlobalSet, OpPropertyGet, OpPropertyGetSelf,
		OpPropertySet, OpPushConstant, OpMakeClass, OpGetSuper, OpImport, OpSwitch:
		return line + name + " " + constant(short()), at

	case OpJumpIfFalse, OpJumpNow:
		off := short()
		return line + fmt.Sprintf("%s %d (-> %04d)", name, off, at+off), at

	case OpLoop:
		off := short()
		return line + fmt.Sprintf("%s %d (-> %04d)", name, off, at-off), at

	case OpCallMethod, OpInvokeThis, OpInvokeSuper:
		c := short()
		argc := byt()
		return line + fmt.Sprintf("%s %s argc=%d", name, constant(c), argc), at

	case OpMakeMethod, OpClassPropertyDefine:
		c := short()
		static := byt()
		return line + fmt.Sprintf("%s %s static=%d", name, constant(c), static), at

	case OpTry:
		c := short()
		catchAddr := short()
		finallyAddr := short()
		return line + fmt.Sprintf("%s %s catch=%04d finally=%04d", name, constant(c), catchAddr, finallyAddr), at

	case OpFuncArgDefault:
		slot := short()
		skip := short()
		return line + fmt.Sprintf("%s slot=%d (-> %04d)", name, slot, at+skip), at

	case OpMakeClosure:
		c := short()
		var sb strings.Builder
		sb.WriteString(line + name + " " + constant(c))
		if c < len(b.Constants) && b.Constants[c].IsObjKind(KindFuncScript) {
			inner := b.Constants[c].AsFuncScript()
			for i := 0; i < inner.UpvalueCount; i++ {
				isLocal := byt()
				index := short()
				kind := "upvalue"
				if isLocal == 1 {
					kind = "local"
				}
				fmt.Fprintf(&sb, "\n%04d        |  %s %d", at-3, kind, index)
			}
		}
		return sb.String(), at
	}

	info := GetOpcodeInfo(op)
	var args []string
	for _, w := range info.Operands {
		if w == 2 {
			args = append(args, fmt.Sprint(short()))
		} else {
			args = append(args, fmt.Sprint(byt()))
		}
	}
	if len(args) == 0 {
		return line + name, at
	}
	return line + name + " " + strings.Join(args, " "), at
}

func formatConstant(v Value) string {
	switch {
	case v.IsString():
		return v.AsString().Chars
	case v.IsObjKind(KindFuncScript):
		return "<function " + funcName(v.AsFuncScript()) + ">"
	case v.IsObjKind(KindSwitch):
		return "<switch>"
	case v.IsNumber():
		return FormatNumber(v.num)
	case v.IsBool():
		if v.AsBool() {
			return "true"
		}
		return "false"
	case v.IsNull():
		return "null"
	}
	return "<" + v.obj.header().kind.String() + ">"
}

// Disassemble writes a listing of fn and of every function nested in its
// constant pool.
func Disassemble(w io.Writer, fn *FuncScript) {
	fmt.Fprintf(w, "== %s ==\n", funcName(fn))
	for pos := 0; pos < len(fn.Blob.Code); {
		var text string
		text, pos = DisassembleInstruction(fn, pos)
		fmt.Fprintln(w, text)
	}
	for _, c := range fn.Blob.Constants {
		if c.IsObjKind(KindFuncScript) {
			fmt.Fprintln(w)
			Disassemble(w, c.AsFuncScript())
		}
	}
}
