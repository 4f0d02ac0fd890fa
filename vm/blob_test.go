package vm

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

// buildProduct assembles `echo 6 * 7` by hand.
func buildProduct(s *State) *FuncScript {
	mod := s.NewModule("product", "<test>")
	s.pushRoot(FromObject(mod))
	defer s.popRoots(1)
	fn := s.NewFuncScript(mod, FuncKindScript)
	b := &fn.Blob
	b.EmitOp(OpPushConstant, 1)
	b.EmitShort(b.AddConstant(Number(6)), 1)
	b.EmitOp(OpPushConstant, 1)
	b.EmitShort(b.AddConstant(Number(7)), 1)
	b.EmitOp(OpMul, 1)
	b.EmitOp(OpEcho, 1)
	b.EmitOp(OpPushNull, 2)
	b.EmitOp(OpReturn, 2)
	return fn
}

func TestBlobEmitAndPatch(t *testing.T) {
	var b Blob
	at := b.EmitShort(0xffff, 1)
	b.PatchShort(at, 0x1234)
	if got := b.ReadShort(at); got != 0x1234 {
		t.Errorf("ReadShort = %#x, want 0x1234", got)
	}
	if b.Code[at].IsOp || b.Code[at+1].IsOp {
		t.Error("operand bytes flagged as opcodes")
	}

	i := b.AddConstant(Number(3))
	if j := b.AddConstant(Number(3)); j != i {
		t.Errorf("equal constants got slots %d and %d", i, j)
	}
}

func TestRunHandBuiltFunction(t *testing.T) {
	s, out := newTestState(t)
	st, err := s.RunFunction(buildProduct(s))
	if st != StatusOK || err != nil {
		t.Fatalf("RunFunction = %v, %v", st, err)
	}
	if out.String() != "42\n" {
		t.Errorf("output = %q, want %q", out.String(), "42\n")
	}
	if s.StackDepth() != 0 || s.FrameDepth() != 0 {
		t.Errorf("stack=%d frames=%d after run, want 0/0", s.StackDepth(), s.FrameDepth())
	}
}

func TestBlobRoundTrip(t *testing.T) {
	s, _ := newTestState(t)
	fn := buildProduct(s)

	inner := s.NewFuncScript(fn.Module, FuncKindFunction)
	fn.Blob.AddConstant(FromObject(inner))
	inner.Name = s.CopyString("inner")
	inner.Arity = 2
	inner.Variadic = true
	inner.UpvalueCount = 1
	inner.Blob.EmitOp(OpPushTrue, 9)
	inner.Blob.EmitOp(OpReturn, 9)

	sw := s.NewSwitch()
	fn.Blob.AddConstant(FromObject(sw))
	sw.Table.Set(s.String("a"), Number(3))
	sw.Table.Set(Number(2), Number(8))
	sw.DefaultJump = 12
	sw.ExitJump = 20

	fn.Blob.AddConstant(s.String("text"))
	fn.Blob.AddConstant(Bool(true))
	fn.Blob.AddConstant(Null())

	var buf bytes.Buffer
	if err := s.WriteBlob(&buf, fn); err != nil {
		t.Fatalf("WriteBlob: %v", err)
	}

	s2, out := newTestState(t)
	got, err := s2.ReadBlob(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("ReadBlob: %v", err)
	}

	if len(got.Blob.Code) != len(fn.Blob.Code) {
		t.Fatalf("code length = %d, want %d", len(got.Blob.Code), len(fn.Blob.Code))
	}
	for i := range fn.Blob.Code {
		if got.Blob.Code[i] != fn.Blob.Code[i] {
			t.Errorf("instruction %d = %+v, want %+v", i, got.Blob.Code[i], fn.Blob.Code[i])
		}
	}
	if len(got.Blob.Constants) != len(fn.Blob.Constants) {
		t.Fatalf("constants = %d, want %d", len(got.Blob.Constants), len(fn.Blob.Constants))
	}

	gi := got.Blob.Constants[2].AsFuncScript()
	if gi.Name == nil || gi.Name.Chars != "inner" || gi.Arity != 2 || !gi.Variadic || gi.UpvalueCount != 1 {
		t.Errorf("inner function = name %v arity %d variadic %v upvalues %d",
			gi.Name, gi.Arity, gi.Variadic, gi.UpvalueCount)
	}
	if gi.Kind != FuncKindFunction {
		t.Errorf("inner kind = %d, want %d", gi.Kind, FuncKindFunction)
	}

	gsw := got.Blob.Constants[3].AsSwitch()
	if gsw.DefaultJump != 12 || gsw.ExitJump != 20 {
		t.Errorf("switch jumps = %d/%d, want 12/20", gsw.DefaultJump, gsw.ExitJump)
	}
	if v, ok := gsw.Table.GetValue(s2.String("a")); !ok || v.AsNumber() != 3 {
		t.Errorf("switch case \"a\" = %v, %v", v.AsNumber(), ok)
	}
	if v, ok := gsw.Table.GetValue(Number(2)); !ok || v.AsNumber() != 8 {
		t.Errorf("switch case 2 = %v, %v", v.AsNumber(), ok)
	}

	if got.Blob.Constants[4].Str() != "text" {
		t.Errorf("string constant = %q", got.Blob.Constants[4].Str())
	}
	if c := got.Blob.Constants[5]; !c.IsBool() || !c.AsBool() {
		t.Error("bool constant lost")
	}
	if !got.Blob.Constants[6].IsNull() {
		t.Error("null constant lost")
	}

	if st, err := s2.RunFunction(got); st != StatusOK || err != nil {
		t.Fatalf("RunFunction(decoded) = %v, %v", st, err)
	}
	if out.String() != "42\n" {
		t.Errorf("decoded output = %q", out.String())
	}
}

func TestBlobDeterministic(t *testing.T) {
	s, _ := newTestState(t)
	fn := buildProduct(s)
	var a, b bytes.Buffer
	if err := s.WriteBlob(&a, fn); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteBlob(&b, fn); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Error("encoding the same function twice gave different bytes")
	}
}

func TestReadBlobRejects(t *testing.T) {
	s, _ := newTestState(t)

	wrongMagic, err := blobEncMode.Marshal(&blobImage{Magic: "NOTABLOB", Version: blobVersion})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.ReadBlob(bytes.NewReader(wrongMagic)); !errors.Is(err, ErrBadBlob) {
		t.Errorf("wrong magic: err = %v, want ErrBadBlob", err)
	}

	wrongVersion, err := blobEncMode.Marshal(&blobImage{Magic: blobMagic, Version: blobVersion + 1})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.ReadBlob(bytes.NewReader(wrongVersion)); err == nil {
		t.Error("wrong version accepted")
	}

	badOp, err := blobEncMode.Marshal(&blobImage{
		Magic:   blobMagic,
		Version: blobVersion,
		Func: wireFunc{
			Kind: uint8(FuncKindScript),
			Code: []wireInstruction{{IsOp: true, Code: byte(opcodeCount)}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.ReadBlob(bytes.NewReader(badOp)); err == nil {
		t.Error("unknown opcode accepted")
	}

	if _, err := s.ReadBlob(strings.NewReader("garbage")); err == nil {
		t.Error("garbage accepted")
	}
}

func TestDisassemble(t *testing.T) {
	s, _ := newTestState(t)
	fn := buildProduct(s)

	var buf bytes.Buffer
	Disassemble(&buf, fn)
	text := buf.String()
	for _, want := range []string{"== <script> ==", "PUSHCONSTANT 0 '6'", "PUSHCONSTANT 1 '7'", "MUL", "ECHO", "RETURN"} {
		if !strings.Contains(text, want) {
			t.Errorf("listing lacks %q:\n%s", want, text)
		}
	}

	line, next := DisassembleInstruction(fn, 0)
	if next != 3 {
		t.Errorf("next = %d, want 3", next)
	}
	if !strings.HasPrefix(line, "0000    1  ") {
		t.Errorf("line = %q", line)
	}
}

func TestOpcodeTable(t *testing.T) {
	for op := Opcode(0); op < opcodeCount; op++ {
		if op.String() == "" {
			t.Errorf("opcode %d has no name", op)
		}
	}
	if OpTry.OperandLen() != 6 {
		t.Errorf("OpTry.OperandLen() = %d, want 6", OpTry.OperandLen())
	}
	if OpCallMethod.OperandLen() != 3 {
		t.Errorf("OpCallMethod.OperandLen() = %d, want 3", OpCallMethod.OperandLen())
	}
}
