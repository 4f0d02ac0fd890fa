package vm

import (
	"math"
	"strings"
)

// ---------------------------------------------------------------------------
// Globals
// ---------------------------------------------------------------------------

func (s *State) globalTable(fr *CallFrame) *HashTable {
	if m := fr.closure.Fn.Module; m != nil {
		return &m.Defs
	}
	return &s.globals
}

func (s *State) lookupGlobal(fr *CallFrame, name *String) (Value, bool) {
	key := FromObject(name)
	if m := fr.closure.Fn.Module; m != nil {
		if p, ok := m.Defs.Get(key); ok {
			return p.Value, true
		}
	}
	p, ok := s.globals.Get(key)
	return p.Value, ok
}

func (s *State) assignGlobal(fr *CallFrame, name *String, v Value) bool {
	key := FromObject(name)
	defs := s.globalTable(fr)
	if _, ok := defs.Get(key); ok {
		defs.Set(key, v)
		return true
	}
	if _, ok := s.globals.Get(key); ok {
		s.globals.Set(key, v)
		return true
	}
	if s.config.Strict {
		return s.raise(s.classes.exception, "cannot assign to undeclared variable '%s'", name.Chars)
	}
	defs.Set(key, v)
	return true
}

// ---------------------------------------------------------------------------
// Properties
// ---------------------------------------------------------------------------

// callGetter evaluates a getter property against receiver.
func (s *State) callGetter(getter, receiver Value) (Value, bool) {
	if nat, ok := getter.obj.(*FuncNative); ok {
		cs := &CallState{Name: nat.Name, This: receiver, s: s}
		r := nat.Fn(s, cs)
		if s.Pending() {
			return Value{}, s.rethrowPending()
		}
		if r.IsEmpty() {
			r = Null()
		}
		return r, true
	}
	r, err := s.CallValue(getter, receiver)
	if err != nil {
		return Value{}, s.rethrowPending()
	}
	return r, true
}

// resolveProperty replaces the receiver on top with the value of p.
func (s *State) resolveProperty(p Property, receiver Value) bool {
	if p.Kind == PropGetter {
		v, ok := s.callGetter(p.Value, receiver)
		if !ok {
			return false
		}
		s.stack[s.stackTop-1] = v
		return true
	}
	s.stack[s.stackTop-1] = p.Value
	return true
}

// getProperty replaces the object on top of the stack with its property
// name. Methods are returned bound to the receiver.
func (s *State) getProperty(name *String, self bool) bool {
	receiver := s.peek(0)
	key := FromObject(name)
	if receiver.IsObject() {
		switch r := receiver.obj.(type) {
		case *Instance:
			if p, ok := r.Props.Get(key); ok {
				return s.resolveProperty(p, receiver)
			}
			if s.bindMethod(r.Class, name) {
				return true
			}
			if s.bindMethod(s.classes.object, name) {
				return true
			}
			return s.raise(s.classes.typeError, "instance of %s does not have a property or method named '%s'",
				r.Class.Name.Chars, name.Chars)
		case *Class:
			if p, ok := findStatic(r, name); ok {
				return s.resolveProperty(p, receiver)
			}
			if self {
				if m, ok := findMethod(r, name); ok {
					s.stack[s.stackTop-1] = m
					return true
				}
			}
			return s.raise(s.classes.typeError, "class %s does not have a static property or method named '%s'",
				r.Name.Chars, name.Chars)
		case *Module:
			if p, ok := r.Defs.Get(key); ok {
				return s.resolveProperty(p, receiver)
			}
			return s.raise(s.classes.typeError, "module %s does not define '%s'", r.Name.Chars, name.Chars)
		case *Dict:
			if p, ok := r.Table.Get(key); ok {
				s.stack[s.stackTop-1] = p.Value
				return true
			}
		}
	}
	cls := s.classFor(receiver)
	if cls == nil {
		return s.raise(s.classes.typeError, "object of type %s does not carry properties", s.TypeName(receiver))
	}
	if p, ok := cls.Fields.Get(key); ok {
		return s.resolveProperty(p, receiver)
	}
	if s.bindMethod(cls, name) || s.bindMethod(s.classes.object, name) {
		return true
	}
	return s.raise(s.classes.typeError, "%s has no property or method named '%s'", s.TypeName(receiver), name.Chars)
}

// setProperty assigns obj.name = value and leaves value on the stack.
func (s *State) setProperty(name *String) bool {
	value := s.peek(0)
	target := s.peek(1)
	key := FromObject(name)
	if !target.IsObject() {
		return s.raise(s.classes.typeError, "cannot set property '%s' on %s", name.Chars, s.TypeName(target))
	}
	switch t := target.obj.(type) {
	case *Instance:
		t.Props.Set(key, value)
	case *Class:
		t.StaticFields.Set(key, value)
	case *Dict:
		if !s.dictSet(t, key, value) {
			return false
		}
	case *Module:
		t.Defs.Set(key, value)
	default:
		return s.raise(s.classes.typeError, "cannot set property '%s' on %s", name.Chars, s.TypeName(target))
	}
	s.popN(2)
	s.push(value)
	return true
}

// ---------------------------------------------------------------------------
// Operators
// ---------------------------------------------------------------------------

func (s *State) compareOp(op Opcode) bool {
	b := s.peek(0)
	a := s.peek(1)
	var result bool
	if a.IsString() && b.IsString() {
		c := strings.Compare(a.AsString().Chars, b.AsString().Chars)
		result = (op == OpGreater && c > 0) || (op == OpLess && c < 0)
	} else {
		x, okA := coerceNumber(a)
		y, okB := coerceNumber(b)
		if !okA || !okB {
			sym := ">"
			if op == OpLess {
				sym = "<"
			}
			return s.raise(s.classes.typeError, "unsupported operand types for %s: %s and %s",
				sym, s.TypeName(a), s.TypeName(b))
		}
		result = (op == OpGreater && x > y) || (op == OpLess && x < y)
	}
	s.popN(2)
	s.push(Bool(result))
	return true
}

var opSymbols = map[Opcode]string{
	OpAdd: "+", OpSub: "-", OpMul: "*", OpDiv: "/", OpFloorDiv: "//", OpMod: "%", OpPow: "**",
	OpBitAnd: "&", OpBitOr: "|", OpBitXor: "^", OpShl: "<<", OpShr: ">>",
}

func (s *State) binaryOp(op Opcode) bool {
	b := s.peek(0)
	a := s.peek(1)
	switch op {
	case OpAdd:
		if a.IsString() || b.IsString() {
			sa, ok := s.stringify(a)
			if !ok {
				return false
			}
			s.pushRoot(FromObject(sa))
			sb, ok := s.stringify(b)
			if !ok {
				return false
			}
			joined := s.CopyString(sa.Chars + sb.Chars)
			s.popRoots(1)
			s.popN(2)
			s.push(FromObject(joined))
			return true
		}
		if a.IsArray() && b.IsArray() {
			x, y := a.AsArray().Items, b.AsArray().Items
			items := make([]Value, 0, len(x)+len(y))
			items = append(append(items, x...), y...)
			arr := s.NewArray(items)
			s.popN(2)
			s.push(FromObject(arr))
			return true
		}
	case OpMul:
		if a.IsString() && b.IsNumber() {
			n := b.AsInt()
			if n < 0 {
				n = 0
			}
			str := s.CopyString(strings.Repeat(a.AsString().Chars, n))
			s.popN(2)
			s.push(FromObject(str))
			return true
		}
		if a.IsArray() && b.IsNumber() {
			n := b.AsInt()
			src := a.AsArray().Items
			items := make([]Value, 0, len(src)*max(n, 0))
			for i := 0; i < n; i++ {
				items = append(items, src...)
			}
			arr := s.NewArray(items)
			s.popN(2)
			s.push(FromObject(arr))
			return true
		}
	}
	x, okA := coerceNumber(a)
	y, okB := coerceNumber(b)
	if !okA || !okB {
		return s.raise(s.classes.typeError, "unsupported operand types for %s: %s and %s",
			opSymbols[op], s.TypeName(a), s.TypeName(b))
	}
	var r float64
	switch op {
	case OpAdd:
		r = x + y
	case OpSub:
		r = x - y
	case OpMul:
		r = x * y
	case OpDiv:
		r = x / y
	case OpFloorDiv:
		r = floorDiv(x, y)
	case OpMod:
		r = math.Mod(x, y)
	case OpPow:
		r = math.Pow(x, y)
	case OpBitAnd:
		r = float64(int64(x) & int64(y))
	case OpBitOr:
		r = float64(int64(x) | int64(y))
	case OpBitXor:
		r = float64(int64(x) ^ int64(y))
	case OpShl:
		r = float64(int64(x) << uint64(int64(y)&63))
	case OpShr:
		r = float64(int64(x) >> uint64(int64(y)&63))
	}
	s.popN(2)
	s.push(Number(r))
	return true
}

// stringify converts v to a String, calling a to_string method on
// instances that define one.
func (s *State) stringify(v Value) (*String, bool) {
	if inst, ok := v.obj.(*Instance); ok && v.IsObject() {
		if m, found := findMethod(inst.Class, s.CopyString("to_string")); found {
			r, err := s.CallValue(m, v)
			if err != nil {
				return nil, s.rethrowPending()
			}
			return s.ToString(r), true
		}
	}
	return s.ToString(v), true
}

// ---------------------------------------------------------------------------
// Dictionaries
// ---------------------------------------------------------------------------

func validDictKey(v Value) bool {
	if v.IsEmpty() {
		return false
	}
	return !v.IsArray() && !v.IsDict() && !v.IsFile()
}

// dictSet stores key in d, appending it to the ordered key list when new.
func (s *State) dictSet(d *Dict, key, value Value) bool {
	if !validDictKey(key) {
		return s.raise(s.classes.typeError, "dictionary key cannot be of type %s", s.TypeName(key))
	}
	if d.Table.Set(key, value) {
		d.Keys = append(d.Keys, key)
		s.accountBytes(sizeValue + sizeEntry)
	}
	return true
}

// DictSet is the native-facing form of dictSet. It reports an invalid key
// through State.Raise.
func (s *State) DictSet(d *Dict, key, value Value) bool {
	if !validDictKey(key) {
		s.Raise(s.classes.typeError, "dictionary key cannot be of type %s", s.TypeName(key))
		return false
	}
	if d.Table.Set(key, value) {
		d.Keys = append(d.Keys, key)
	}
	return true
}

// DictRemove deletes key from both the table and the key order.
func DictRemove(d *Dict, key Value) bool {
	if !d.Table.Remove(key) {
		return false
	}
	for i, k := range d.Keys {
		if Equal(k, key) {
			d.Keys = append(d.Keys[:i], d.Keys[i+1:]...)
			break
		}
	}
	return true
}

func (s *State) makeDict(pairs int) bool {
	n := pairs * 2
	base := s.stackTop - n
	for i := 0; i < n; i += 2 {
		if k := s.stack[base+i]; !validDictKey(k) {
			return s.raise(s.classes.typeError, "dictionary key cannot be of type %s", s.TypeName(k))
		}
	}
	d := s.NewDict()
	for i := 0; i < n; i += 2 {
		s.dictSet(d, s.stack[base+i], s.stack[base+i+1])
	}
	s.popN(n)
	s.push(FromObject(d))
	return true
}

// ---------------------------------------------------------------------------
// Indexing
// ---------------------------------------------------------------------------

func normIndex(i, n int) int {
	if i < 0 {
		i += n
	}
	return i
}

func (s *State) indexGet(willAssign bool) bool {
	idx := s.peek(0)
	obj := s.peek(1)
	var result Value
	switch {
	case obj.IsArray():
		items := obj.AsArray().Items
		if !idx.IsNumber() {
			return s.raise(s.classes.typeError, "array index must be a number, %s given", s.TypeName(idx))
		}
		i := normIndex(idx.AsInt(), len(items))
		if i < 0 || i >= len(items) {
			return s.raise(s.classes.indexError, "array index %d out of range", idx.AsInt())
		}
		result = items[i]
	case obj.IsString():
		str := obj.AsString().Chars
		if !idx.IsNumber() {
			return s.raise(s.classes.typeError, "string index must be a number, %s given", s.TypeName(idx))
		}
		i := normIndex(idx.AsInt(), len(str))
		if i < 0 || i >= len(str) {
			return s.raise(s.classes.indexError, "string index %d out of range", idx.AsInt())
		}
		result = s.String(str[i : i+1])
	case obj.IsDict():
		v, ok := obj.AsDict().Table.GetValue(idx)
		if !ok {
			v = Null()
		}
		result = v
	case obj.IsModule():
		v, ok := obj.AsModule().Defs.GetValue(idx)
		if !ok {
			return s.raise(s.classes.keyError, "module %s does not define %s", obj.AsModule().Name.Chars, s.Format(idx))
		}
		result = v
	case obj.IsInstance():
		v, ok := obj.AsInstance().Props.GetValue(idx)
		if !ok {
			v = Null()
		}
		result = v
	default:
		return s.raise(s.classes.typeError, "cannot index object of type %s", s.TypeName(obj))
	}
	if !willAssign {
		s.popN(2)
	}
	s.push(result)
	return true
}

func sliceBounds(lo, hi Value, n int) (int, int, bool) {
	start, end := 0, n
	if !lo.IsNull() && !lo.IsEmpty() {
		if !lo.IsNumber() {
			return 0, 0, false
		}
		start = normIndex(lo.AsInt(), n)
	}
	if !hi.IsNull() && !hi.IsEmpty() {
		if !hi.IsNumber() {
			return 0, 0, false
		}
		end = normIndex(hi.AsInt(), n)
	}
	start = min(max(start, 0), n)
	end = min(max(end, 0), n)
	if end < start {
		end = start
	}
	return start, end, true
}

func (s *State) indexGetRanged(willAssign bool) bool {
	hi := s.peek(0)
	lo := s.peek(1)
	obj := s.peek(2)
	var result Value
	switch {
	case obj.IsArray():
		items := obj.AsArray().Items
		a, b, ok := sliceBounds(lo, hi, len(items))
		if !ok {
			return s.raise(s.classes.typeError, "slice bounds must be numbers")
		}
		out := make([]Value, b-a)
		copy(out, items[a:b])
		result = FromObject(s.NewArray(out))
	case obj.IsString():
		str := obj.AsString().Chars
		a, b, ok := sliceBounds(lo, hi, len(str))
		if !ok {
			return s.raise(s.classes.typeError, "slice bounds must be numbers")
		}
		result = s.String(str[a:b])
	default:
		return s.raise(s.classes.typeError, "cannot slice object of type %s", s.TypeName(obj))
	}
	if !willAssign {
		s.popN(3)
	}
	s.push(result)
	return true
}

func (s *State) indexSet() bool {
	value := s.peek(0)
	idx := s.peek(1)
	obj := s.peek(2)
	switch {
	case obj.IsArray():
		arr := obj.AsArray()
		if !idx.IsNumber() {
			return s.raise(s.classes.typeError, "array index must be a number, %s given", s.TypeName(idx))
		}
		i := normIndex(idx.AsInt(), len(arr.Items))
		switch {
		case i >= 0 && i < len(arr.Items):
			arr.Items[i] = value
		case i == len(arr.Items):
			arr.Items = append(arr.Items, value)
			s.accountBytes(sizeValue)
		default:
			return s.raise(s.classes.indexError, "array index %d out of range", idx.AsInt())
		}
	case obj.IsDict():
		if !s.dictSet(obj.AsDict(), idx, value) {
			return false
		}
	case obj.IsInstance():
		obj.AsInstance().Props.Set(idx, value)
	case obj.IsModule():
		obj.AsModule().Defs.Set(idx, value)
	default:
		return s.raise(s.classes.typeError, "object of type %s does not support index assignment", s.TypeName(obj))
	}
	s.popN(3)
	s.push(value)
	return true
}
