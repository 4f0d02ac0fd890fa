package vm

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
)

// ---------------------------------------------------------------------------
// Entry points
// ---------------------------------------------------------------------------

// Interpret compiles source and runs it as the top-level module. Later
// calls reuse the same module, so a REPL keeps its definitions.
func (s *State) Interpret(source, filename string) (Status, error) {
	if s.compile == nil {
		return StatusFailCompile, ErrNoCompiler
	}
	mod := s.topModule
	if mod == nil {
		name := "eval-" + s.id
		if filename != "" {
			name = moduleName(filename)
		} else {
			filename = "<" + name + ">"
		}
		mod = s.NewModule(name, filename)
		s.pushRoot(FromObject(mod))
		s.modules.Set(FromObject(mod.Name), FromObject(mod))
		s.popRoots(1)
		s.topModule = mod
	}
	fn, err := s.compile(s, source, filename, mod)
	if err != nil {
		return StatusFailCompile, err
	}
	return s.RunFunction(fn)
}

// RunFile reads and interprets a source file.
func (s *State) RunFile(path string) (Status, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return StatusFailCompile, fmt.Errorf("cannot read %s: %w", path, err)
	}
	return s.Interpret(string(src), path)
}

// RunFunction executes a compiled top-level function.
func (s *State) RunFunction(fn *FuncScript) (Status, error) {
	if s.config.DumpInstructions {
		Disassemble(s.config.Stdout, fn)
	}
	if fn.Module != nil && s.topModule == nil {
		s.topModule = fn.Module
	}
	s.pushRoot(FromObject(fn))
	cl := s.NewClosure(fn)
	s.popRoots(1)
	base := s.stackTop
	exit := s.frameCount
	s.push(FromObject(cl))
	if !s.callClosure(cl, 0) {
		s.pendingExc = s.pop()
		s.truncate(base)
		return StatusFailRuntime, s.takePending()
	}
	if st := s.runVM(exit); st != StatusOK {
		return st, s.takePending()
	}
	s.truncate(base)
	return StatusOK, nil
}

func moduleName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ---------------------------------------------------------------------------
// Re-entrant calls
// ---------------------------------------------------------------------------

// CallValue calls callee with args and returns its result. When this is
// not Empty it becomes the receiver of a closure or native. It may be used
// from natives: an exception escaping the callee stays pending, so the
// native should return at once and let the interpreter propagate it.
func (s *State) CallValue(callee, this Value, args ...Value) (Value, error) {
	base := s.stackTop
	before := s.frameCount
	s.ensureStack(len(args) + 1)
	s.push(callee)
	for _, a := range args {
		s.push(a)
	}
	argc := len(args)
	var ok bool
	switch c := callee.obj.(type) {
	case *FuncClosure:
		if !this.IsEmpty() {
			s.stack[base] = this
		}
		ok = s.callClosure(c, argc)
	case *FuncNative:
		recv := this
		if recv.IsEmpty() {
			recv = callee
		}
		ok = s.callNative(c, recv, argc)
	default:
		if !callee.IsObject() {
			s.popN(argc)
			ok = s.raise(s.classes.typeError, "object of type %s is not callable", s.TypeName(callee))
		} else {
			ok = s.callValue(callee, argc)
		}
	}
	if !ok {
		exc := s.pop()
		s.truncate(base)
		s.pendingExc = exc
		if s.vmDepth == 0 {
			return Value{}, s.takePending()
		}
		return Value{}, s.exceptionInfo(exc)
	}
	if s.frameCount > before {
		if st := s.runVM(before); st != StatusOK {
			if s.stackTop > base {
				s.truncate(base)
			}
			if s.vmDepth == 0 {
				return Value{}, s.takePending()
			}
			return Value{}, s.exceptionInfo(s.pendingExc)
		}
	}
	result := s.pop()
	s.truncate(base)
	return result, nil
}

// ClearPending drops an exception a native chose to handle itself.
func (s *State) ClearPending() { s.pendingExc = Value{} }

// rethrowPending moves the pending exception onto the stack so the
// interpreter can propagate it.
func (s *State) rethrowPending() bool {
	exc := s.pendingExc
	s.pendingExc = Value{}
	if exc.IsEmpty() {
		exc = FromObject(s.newException(s.classes.exception, "nested call failed"))
	}
	s.push(exc)
	return false
}

// ---------------------------------------------------------------------------
// Dispatch loop
// ---------------------------------------------------------------------------

func readShort(fr *CallFrame) int {
	code := fr.closure.Fn.Blob.Code
	v := int(code[fr.ip].Code)<<8 | int(code[fr.ip+1].Code)
	fr.ip += 2
	return v
}

func readByte(fr *CallFrame) int {
	v := int(fr.closure.Fn.Blob.Code[fr.ip].Code)
	fr.ip++
	return v
}

func readConstant(fr *CallFrame) Value {
	return fr.closure.Fn.Blob.Constants[readShort(fr)]
}

func readString(fr *CallFrame) *String {
	return readConstant(fr).AsString()
}

// runVM executes until the frame count drops back to exitFrame. Frames
// below exitFrame belong to outer invocations and are never unwound here.
func (s *State) runVM(exitFrame int) Status {
	savedBase := s.baseFrame
	s.baseFrame = exitFrame
	s.vmDepth++
	defer func() {
		s.baseFrame = savedBase
		s.vmDepth--
	}()

	for {
		// Re-fetched every instruction: calls may grow the frame array.
		fr := &s.frames[s.frameCount-1]
		code := fr.closure.Fn.Blob.Code
		var op Opcode
		if fr.ip >= len(code) {
			s.push(Null())
			op = OpReturn
		} else {
			op = Opcode(code[fr.ip].Code)
			fr.ip++
		}
		ok := true

		switch op {
		case OpGlobalDefine:
			name := readString(fr)
			s.globalTable(fr).Set(FromObject(name), s.peek(0))
			s.pop()

		case OpGlobalGet:
			name := readString(fr)
			v, found := s.lookupGlobal(fr, name)
			if !found {
				ok = s.raise(s.classes.exception, "'%s' is undefined in this scope", name.Chars)
				break
			}
			s.push(v)

		case OpGlobalSet:
			name := readString(fr)
			ok = s.assignGlobal(fr, name, s.peek(0))

		case OpLocalGet:
			s.push(s.stack[fr.slotBase+readShort(fr)])

		case OpLocalSet:
			s.stack[fr.slotBase+readShort(fr)] = s.peek(0)

		case OpFuncArgDefault:
			slot := readShort(fr)
			skip := readShort(fr)
			if fr.argCount >= slot {
				fr.ip += skip
			}

		case OpUpvalueGet:
			s.push(s.upvalueGet(fr.closure.Upvalues[readShort(fr)]))

		case OpUpvalueSet:
			s.upvalueSet(fr.closure.Upvalues[readShort(fr)], s.peek(0))

		case OpUpvalueClose:
			s.closeUpvalues(s.stackTop - 1)
			s.pop()

		case OpPropertyGet:
			ok = s.getProperty(readString(fr), false)

		case OpPropertyGetSelf:
			ok = s.getProperty(readString(fr), true)

		case OpPropertySet:
			ok = s.setProperty(readString(fr))

		case OpJumpIfFalse:
			off := readShort(fr)
			if s.peek(0).IsFalse() {
				fr.ip += off
			}

		case OpJumpNow:
			off := readShort(fr)
			fr.ip += off

		case OpLoop:
			off := readShort(fr)
			fr.ip -= off

		case OpEqual:
			b := s.pop()
			a := s.pop()
			s.push(Bool(Equal(a, b)))

		case OpGreater, OpLess:
			ok = s.compareOp(op)

		case OpPushEmpty:
			s.push(Empty())
		case OpPushNull:
			s.push(Null())
		case OpPushTrue:
			s.push(Bool(true))
		case OpPushFalse:
			s.push(Bool(false))
		case OpPushOne:
			s.push(Number(1))
		case OpPushConstant:
			s.push(readConstant(fr))

		case OpAdd, OpSub, OpMul, OpDiv, OpFloorDiv, OpMod, OpPow,
			OpBitAnd, OpBitOr, OpBitXor, OpShl, OpShr:
			ok = s.binaryOp(op)

		case OpNegate:
			v := s.peek(0)
			n, isNum := coerceNumber(v)
			if !isNum {
				ok = s.raise(s.classes.typeError, "operand to - must be a number, %s given", s.TypeName(v))
				break
			}
			s.stack[s.stackTop-1] = Number(-n)

		case OpNot:
			s.push(Bool(s.pop().IsFalse()))

		case OpBitNot:
			v := s.peek(0)
			n, isNum := coerceNumber(v)
			if !isNum {
				ok = s.raise(s.classes.typeError, "operand to ~ must be a number, %s given", s.TypeName(v))
				break
			}
			s.stack[s.stackTop-1] = Number(float64(^int64(n)))

		case OpEcho:
			str, good := s.stringify(s.peek(0))
			if !good {
				ok = false
				break
			}
			fmt.Fprintln(s.config.Stdout, str.Chars)
			s.pop()

		case OpStringify:
			if !s.peek(0).IsString() {
				str, good := s.stringify(s.peek(0))
				if !good {
					ok = false
					break
				}
				s.stack[s.stackTop-1] = FromObject(str)
			}

		case OpPop:
			s.pop()

		case OpDup:
			s.push(s.peek(0))

		case OpPopN:
			s.popN(readShort(fr))

		case OpAssert:
			msg := s.pop()
			cond := s.pop()
			if cond.IsFalse() {
				text := "assertion failed"
				if !msg.IsNull() && !msg.IsEmpty() {
					text = s.Format(msg)
				}
				ok = s.raise(s.classes.assertionError, "%s", text)
			}

		case OpThrow:
			v := s.peek(0)
			if !s.IsException(v) {
				s.pop()
				ok = s.raise(s.classes.typeError, "instance of Exception expected, %s given", s.TypeName(v))
				break
			}
			s.attachTrace(v.AsInstance())
			ok = false

		case OpMakeClosure:
			fn := readConstant(fr).AsFuncScript()
			cl := s.NewClosure(fn)
			s.push(FromObject(cl))
			for i := 0; i < fn.UpvalueCount; i++ {
				isLocal := readByte(fr)
				index := readShort(fr)
				if isLocal == 1 {
					cl.Upvalues[i] = s.captureUpvalue(fr.slotBase + index)
				} else {
					cl.Upvalues[i] = fr.closure.Upvalues[index]
				}
			}

		case OpCallFunction:
			argc := readByte(fr)
			ok = s.callValue(s.peek(argc), argc)

		case OpCallMethod, OpInvokeThis:
			name := readString(fr)
			argc := readByte(fr)
			ok = s.invoke(name, argc)

		case OpReturn:
			result := s.pop()
			s.closeUpvalues(fr.slotBase)
			s.truncate(fr.slotBase)
			s.frameCount--
			s.push(result)
			if s.frameCount == exitFrame {
				return StatusOK
			}

		case OpMakeClass:
			name := readString(fr)
			cls := s.NewClass(name, nil)
			s.push(FromObject(cls))

		case OpMakeMethod:
			name := readString(fr)
			static := readByte(fr) == 1
			method := s.peek(0)
			cls := s.peek(1).AsClass()
			switch {
			case name.Chars == "constructor" && !static:
				cls.Constructor = method
				cls.Methods.Set(FromObject(name), method)
			case static:
				cls.StaticMethods.Set(FromObject(name), method)
			default:
				cls.Methods.Set(FromObject(name), method)
			}
			s.pop()

		case OpClassPropertyDefine:
			name := readString(fr)
			static := readByte(fr) == 1
			cls := s.peek(1).AsClass()
			if static {
				cls.StaticFields.Set(FromObject(name), s.peek(0))
			} else {
				cls.Fields.Set(FromObject(name), s.peek(0))
			}
			s.pop()

		case OpClassInherit:
			super := s.peek(1)
			if !super.IsClass() {
				ok = s.raise(s.classes.typeError, "cannot inherit from non-class %s", s.TypeName(super))
				break
			}
			sub := s.peek(0).AsClass()
			sub.Super = super.AsClass()
			super.AsClass().Fields.CopyTo(&sub.Fields)
			s.pop()

		case OpGetSuper:
			name := readString(fr)
			super := s.pop().AsClass()
			if !s.bindMethod(super, name) {
				ok = s.raise(s.classes.typeError, "class %s has no method '%s'", super.Name.Chars, name.Chars)
			}

		case OpInvokeSuper:
			name := readString(fr)
			argc := readByte(fr)
			super := s.pop().AsClass()
			ok = s.invokeFromClass(super, name, argc)

		case OpInvokeSuperSelf:
			argc := readByte(fr)
			super := s.pop().AsClass()
			ctor, found := findConstructor(super)
			if !found {
				if argc != 0 {
					s.popN(argc)
					ok = s.raise(s.classes.argumentError, "%s constructor expects 0 arguments, %d given", super.Name.Chars, argc)
				}
				break
			}
			ok = s.callMethodValue(ctor, s.peek(argc), argc)

		case OpMakeRange:
			hi := s.peek(0)
			lo := s.peek(1)
			if !lo.IsNumber() || !hi.IsNumber() {
				ok = s.raise(s.classes.typeError, "range bounds must be numbers")
				break
			}
			r := s.NewRange(lo.AsInt(), hi.AsInt())
			s.popN(2)
			s.push(FromObject(r))

		case OpMakeArray:
			n := readShort(fr)
			items := make([]Value, n)
			copy(items, s.stack[s.stackTop-n:s.stackTop])
			arr := s.NewArray(items)
			s.popN(n)
			s.push(FromObject(arr))

		case OpMakeDict:
			ok = s.makeDict(readShort(fr))

		case OpIndexGet:
			ok = s.indexGet(readByte(fr) == 1)

		case OpIndexGetRanged:
			ok = s.indexGetRanged(readByte(fr) == 1)

		case OpIndexSet:
			ok = s.indexSet()

		case OpImport:
			ok = s.importModule(readString(fr).Chars)

		case OpTry:
			typeName := readString(fr)
			catchAddr := readShort(fr)
			finallyAddr := readShort(fr)
			v, found := s.lookupGlobal(fr, typeName)
			if !found || !v.IsClass() {
				ok = s.raise(s.classes.typeError, "object of type '%s' is not an exception class", typeName.Chars)
				break
			}
			ok = s.pushHandler(fr, v.AsClass(), catchAddr, finallyAddr)

		case OpPopTry:
			fr.popHandler()

		case OpPublishTry:
			ok = false

		case OpSwitch:
			sw := readConstant(fr).AsSwitch()
			subject := s.pop()
			base := fr.ip
			if p, found := sw.Table.Get(subject); found {
				fr.ip = base + p.Value.AsInt()
			} else if sw.DefaultJump >= 0 {
				fr.ip = base + sw.DefaultJump
			} else {
				fr.ip = base + sw.ExitJump
			}

		case OpTypeof:
			v := s.pop()
			s.push(s.String(s.TypeName(v)))

		case OpInstanceOf:
			cls := s.pop()
			v := s.pop()
			if !cls.IsClass() {
				ok = s.raise(s.classes.typeError, "right operand of instanceof must be a class, %s given", s.TypeName(cls))
				break
			}
			s.push(Bool(s.instanceOf(v, cls.AsClass())))

		case OpHalt:
			return StatusOK

		default:
			ok = s.raise(s.classes.exception, "unknown opcode %d", byte(op))
		}

		if !ok {
			if !s.propagate() {
				return StatusFailRuntime
			}
		}
	}
}

// instanceOf reports whether v is an instance of cls or a subclass.
func (s *State) instanceOf(v Value, cls *Class) bool {
	if inst, isInst := v.obj.(*Instance); isInst && v.IsObject() {
		return isSubclass(inst.Class, cls)
	}
	if c := s.classFor(v); c != nil {
		return isSubclass(c, cls)
	}
	return false
}

// coerceNumber converts numbers, booleans and null to float64.
func coerceNumber(v Value) (float64, bool) {
	switch v.typ {
	case ValNumber:
		return v.num, true
	case ValBool:
		return v.num, true
	case ValNull:
		return 0, true
	}
	return 0, false
}

func floorDiv(a, b float64) float64 { return math.Floor(a / b) }
