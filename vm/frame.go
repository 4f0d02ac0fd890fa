package vm

// ---------------------------------------------------------------------------
// Call frames
// ---------------------------------------------------------------------------

// MaxExceptionHandlers bounds the try blocks active in one frame.
const MaxExceptionHandlers = 16

// ExceptionFrame is one installed try handler. Addresses are instruction
// indices into the frame's blob; zero means "absent".
type ExceptionFrame struct {
	class       *Class
	catchAddr   int
	finallyAddr int
	stackHeight int
}

// CallFrame records one active invocation. Every position is an index,
// so growing the stack or the frame array never invalidates a frame.
type CallFrame struct {
	closure      *FuncClosure
	ip           int
	slotBase     int
	argCount     int // arguments actually passed, before padding
	handlers     [MaxExceptionHandlers]ExceptionFrame
	handlerCount int
	gcProtCount  int
}

func (s *State) pushFrame() (*CallFrame, bool) {
	if s.frameCount == len(s.frames) {
		if len(s.frames) >= s.config.MaxFrames {
			return nil, false
		}
		size := len(s.frames) * 2
		if size > s.config.MaxFrames {
			size = s.config.MaxFrames
		}
		grown := make([]CallFrame, size)
		copy(grown, s.frames[:s.frameCount])
		s.frames = grown
	}
	fr := &s.frames[s.frameCount]
	s.frameCount++
	*fr = CallFrame{}
	return fr, true
}

// ---------------------------------------------------------------------------
// Calls
// ---------------------------------------------------------------------------
//
// On entry to every call helper the stack holds the callee (or receiver)
// followed by argc arguments. Helpers return false after leaving an
// exception on top of the stack; the caller must then propagate it.

func funcName(fn *FuncScript) string {
	if fn.Name == nil {
		if fn.Kind == FuncKindAnonymous {
			return "<anonymous>"
		}
		return "<script>"
	}
	return fn.Name.Chars
}

func (s *State) callClosure(cl *FuncClosure, argc int) bool {
	fn := cl.Fn
	given := argc
	if !fn.Variadic {
		if argc > fn.Arity {
			s.popN(argc)
			return s.raise(s.classes.argumentError, "function '%s' expected %d arguments but got %d",
				funcName(fn), fn.Arity, argc)
		}
		s.ensureStack(fn.Arity - argc)
		for ; argc < fn.Arity; argc++ {
			s.push(Null())
		}
	} else {
		if argc < fn.Arity-1 {
			s.popN(argc)
			return s.raise(s.classes.argumentError, "function '%s' expected at least %d arguments but got %d",
				funcName(fn), fn.Arity-1, argc)
		}
		surplus := argc - (fn.Arity - 1)
		items := make([]Value, surplus)
		copy(items, s.stack[s.stackTop-surplus:s.stackTop])
		arr := s.NewArray(items)
		s.popN(surplus)
		s.push(FromObject(arr))
		argc = fn.Arity
	}
	fr, ok := s.pushFrame()
	if !ok {
		s.popN(argc)
		return s.raise(s.classes.stackOverflow, "maximum call depth of %d exceeded", s.config.MaxFrames)
	}
	fr.closure = cl
	fr.ip = 0
	fr.slotBase = s.stackTop - argc - 1
	fr.argCount = given
	return true
}

func (s *State) callNative(nat *FuncNative, this Value, argc int) bool {
	base := s.stackTop - argc
	cs := &CallState{
		Name: nat.Name,
		This: this,
		Args: s.stack[base:s.stackTop:s.stackTop],
		s:    s,
	}
	prot := s.protCounter()
	saved := *prot
	*prot = 0
	result := nat.Fn(s, cs)
	// Values protected by the native sit above its arguments.
	s.GCClearProtect()
	*s.protCounter() = saved
	s.truncate(base - 1)
	if !s.pendingExc.IsEmpty() {
		exc := s.pendingExc
		s.pendingExc = Value{}
		s.push(exc)
		return false
	}
	if result.IsEmpty() {
		result = Null()
	}
	s.push(result)
	return true
}

// callValue calls the callee sitting argc slots below the top.
func (s *State) callValue(callee Value, argc int) bool {
	if callee.IsObject() {
		switch c := callee.obj.(type) {
		case *FuncClosure:
			return s.callClosure(c, argc)
		case *FuncBound:
			s.stack[s.stackTop-argc-1] = c.Receiver
			return s.callMethodValue(c.Method, c.Receiver, argc)
		case *FuncNative:
			return s.callNative(c, s.stack[s.stackTop-argc-1], argc)
		case *Class:
			return s.callClass(c, argc)
		case *Module:
			if p, ok := c.Defs.GetByStr(c.Name.Chars); ok {
				s.stack[s.stackTop-argc-1] = p.Value
				return s.callValue(p.Value, argc)
			}
			s.popN(argc)
			return s.raise(s.classes.typeError, "module %s does not export a default function", c.Name.Chars)
		}
	}
	s.popN(argc)
	return s.raise(s.classes.typeError, "object of type %s is not callable", s.TypeName(callee))
}

// callMethodValue calls method with this already stored in the callee slot.
func (s *State) callMethodValue(method, this Value, argc int) bool {
	switch m := method.obj.(type) {
	case *FuncClosure:
		return s.callClosure(m, argc)
	case *FuncNative:
		return s.callNative(m, this, argc)
	}
	return s.callValue(method, argc)
}

// findConstructor walks the superclass chain for the nearest constructor.
func findConstructor(c *Class) (Value, bool) {
	for k := c; k != nil; k = k.Super {
		if !k.Constructor.IsNull() && !k.Constructor.IsEmpty() {
			return k.Constructor, true
		}
	}
	return Value{}, false
}

func (s *State) callClass(c *Class, argc int) bool {
	inst := s.NewInstance(c)
	this := FromObject(inst)
	s.stack[s.stackTop-argc-1] = this
	ctor, ok := findConstructor(c)
	if !ok {
		if argc != 0 {
			s.popN(argc)
			return s.raise(s.classes.argumentError, "%s constructor expects 0 arguments, %d given", c.Name.Chars, argc)
		}
		return true
	}
	if nat, isNative := ctor.obj.(*FuncNative); isNative {
		if !s.callNative(nat, this, argc) {
			return false
		}
		// Builtin value classes (String, File, ...) construct their own
		// object; everything else evaluates to the new instance.
		if s.stack[s.stackTop-1].IsNull() {
			s.stack[s.stackTop-1] = this
		}
		return true
	}
	return s.callMethodValue(ctor, this, argc)
}

// ---------------------------------------------------------------------------
// Method invocation
// ---------------------------------------------------------------------------

// findMethod looks name up in c's instance methods and its ancestors.
func findMethod(c *Class, name *String) (Value, bool) {
	key := FromObject(name)
	for k := c; k != nil; k = k.Super {
		if p, ok := k.Methods.Get(key); ok {
			return p.Value, true
		}
	}
	return Value{}, false
}

func findStatic(c *Class, name *String) (Property, bool) {
	key := FromObject(name)
	for k := c; k != nil; k = k.Super {
		if p, ok := k.StaticMethods.Get(key); ok {
			return p, true
		}
		if p, ok := k.StaticFields.Get(key); ok {
			return p, true
		}
	}
	return Property{}, false
}

// classFor returns the builtin class whose methods serve receiver.
func (s *State) classFor(v Value) *Class {
	switch v.typ {
	case ValNumber:
		return s.classes.number
	case ValBool, ValNull, ValEmpty:
		return nil
	}
	switch v.obj.header().kind {
	case KindString:
		return s.classes.string
	case KindArray:
		return s.classes.array
	case KindDict:
		return s.classes.dict
	case KindRange:
		return s.classes.rangeCls
	case KindFile:
		return s.classes.file
	case KindInstance:
		return v.AsInstance().Class
	case KindClosure, KindBound, KindNative, KindFuncScript:
		return s.classes.function
	}
	return nil
}

// invoke calls method name on the receiver argc slots below the top.
func (s *State) invoke(name *String, argc int) bool {
	receiver := s.peek(argc)
	key := FromObject(name)
	if receiver.IsObject() {
		switch r := receiver.obj.(type) {
		case *Instance:
			if p, ok := r.Props.Get(key); ok {
				s.stack[s.stackTop-argc-1] = p.Value
				return s.callValue(p.Value, argc)
			}
			if m, ok := findMethod(r.Class, name); ok {
				return s.callMethodValue(m, receiver, argc)
			}
			if m, ok := findMethod(s.classes.object, name); ok {
				return s.callMethodValue(m, receiver, argc)
			}
			s.popN(argc)
			return s.raise(s.classes.typeError, "undefined method '%s' in %s", name.Chars, r.Class.Name.Chars)
		case *Class:
			if p, ok := findStatic(r, name); ok {
				return s.callMethodValue(p.Value, receiver, argc)
			}
			s.popN(argc)
			return s.raise(s.classes.typeError, "unknown static method '%s' in class %s", name.Chars, r.Name.Chars)
		case *Module:
			if p, ok := r.Defs.Get(key); ok {
				s.stack[s.stackTop-argc-1] = p.Value
				return s.callValue(p.Value, argc)
			}
			s.popN(argc)
			return s.raise(s.classes.typeError, "module %s does not define '%s'", r.Name.Chars, name.Chars)
		case *Dict:
			if p, ok := r.Table.Get(key); ok && p.Value.IsCallable() {
				s.stack[s.stackTop-argc-1] = p.Value
				return s.callValue(p.Value, argc)
			}
		}
	}
	if cls := s.classFor(receiver); cls != nil {
		if m, ok := findMethod(cls, name); ok {
			return s.callMethodValue(m, receiver, argc)
		}
		if m, ok := findMethod(s.classes.object, name); ok {
			return s.callMethodValue(m, receiver, argc)
		}
		s.popN(argc)
		return s.raise(s.classes.typeError, "%s has no method '%s'", s.TypeName(receiver), name.Chars)
	}
	s.popN(argc)
	return s.raise(s.classes.typeError, "cannot call method '%s' on %s", name.Chars, s.TypeName(receiver))
}

// invokeFromClass calls a method found on cls with the receiver in place.
func (s *State) invokeFromClass(cls *Class, name *String, argc int) bool {
	m, ok := findMethod(cls, name)
	if !ok {
		s.popN(argc)
		return s.raise(s.classes.typeError, "undefined method '%s' in %s", name.Chars, cls.Name.Chars)
	}
	return s.callMethodValue(m, s.peek(argc), argc)
}

// bindMethod replaces the receiver on top of the stack with a bound method.
func (s *State) bindMethod(cls *Class, name *String) bool {
	m, ok := findMethod(cls, name)
	if !ok {
		return false
	}
	b := s.NewBound(s.peek(0), m)
	s.stack[s.stackTop-1] = FromObject(b)
	return true
}

// ---------------------------------------------------------------------------
// Upvalues
// ---------------------------------------------------------------------------

// captureUpvalue finds or creates the open upvalue for stack slot index.
// The open list is kept ordered by descending slot.
func (s *State) captureUpvalue(index int) *Upvalue {
	var prev *Upvalue
	uv := s.openUpvalues
	for uv != nil && uv.index > index {
		prev = uv
		uv = uv.nextOpen
	}
	if uv != nil && uv.index == index {
		return uv
	}
	created := s.newUpvalue(index)
	created.nextOpen = uv
	if prev == nil {
		s.openUpvalues = created
	} else {
		prev.nextOpen = created
	}
	return created
}

// closeUpvalues closes every open upvalue at or above slot last.
func (s *State) closeUpvalues(last int) {
	for s.openUpvalues != nil && s.openUpvalues.index >= last {
		uv := s.openUpvalues
		uv.closed = s.stack[uv.index]
		uv.open = false
		s.openUpvalues = uv.nextOpen
		uv.nextOpen = nil
	}
}

func (s *State) upvalueGet(uv *Upvalue) Value {
	if uv.open {
		return s.stack[uv.index]
	}
	return uv.closed
}

func (s *State) upvalueSet(uv *Upvalue, v Value) {
	if uv.open {
		s.stack[uv.index] = v
		return
	}
	uv.closed = v
}
