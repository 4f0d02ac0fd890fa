package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Object and Function: methods every receiver understands
// ---------------------------------------------------------------------------

var objectClassDef = ClassDef{
	Name: "Object",
	Functions: []FuncDef{
		{Name: "dump", Fn: objDump},
		{Name: "to_string", Fn: objToString},
		{Name: "class_name", Fn: objClassName},
		{Name: "is_a", Fn: objIsA},
	},
}

var functionClassDef = ClassDef{
	Name: "Function",
	Functions: []FuncDef{
		{Name: "name", Fn: fnName},
		{Name: "arity", Fn: fnArity},
		{Name: "call", Fn: fnCall},
		{Name: "apply", Fn: fnApply},
	},
}

// objDump renders the receiver with all of its properties.
func objDump(s *State, cs *CallState) Value {
	inst, ok := cs.This.obj.(*Instance)
	if !ok || !cs.This.IsObject() {
		return s.String(s.Format(cs.This))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "<instance of %s", inst.Class.Name.Chars)
	inst.Props.Each(func(k Value, p Property) bool {
		fmt.Fprintf(&b, " %s=%s", s.Format(k), s.Format(p.Value))
		return true
	})
	b.WriteByte('>')
	return s.String(b.String())
}

func objToString(s *State, cs *CallState) Value { return s.String(s.Format(cs.This)) }

func objClassName(s *State, cs *CallState) Value {
	if cls := s.classFor(cs.This); cls != nil {
		return FromObject(cls.Name)
	}
	return s.String(s.TypeName(cs.This))
}

func objIsA(s *State, cs *CallState) Value {
	if !cs.CheckCount(1) || !cs.CheckType(0, Value.IsClass, "class") {
		return Value{}
	}
	return Bool(s.instanceOf(cs.This, cs.Args[0].AsClass()))
}

func fnName(s *State, cs *CallState) Value {
	switch f := cs.This.obj.(type) {
	case *FuncClosure:
		return s.String(funcName(f.Fn))
	case *FuncNative:
		return s.String(f.Name)
	case *FuncBound:
		return s.String(s.Format(f.Method))
	}
	return Null()
}

func fnArity(s *State, cs *CallState) Value {
	switch f := cs.This.obj.(type) {
	case *FuncClosure:
		return Number(float64(f.Fn.Arity))
	case *FuncBound:
		if cl, ok := f.Method.obj.(*FuncClosure); ok {
			return Number(float64(cl.Fn.Arity))
		}
	}
	return Number(-1)
}

func fnCall(s *State, cs *CallState) Value {
	r, ok := s.callback(cs.This, cs.Args...)
	if !ok {
		return Value{}
	}
	return r
}

func fnApply(s *State, cs *CallState) Value {
	if !cs.CheckCount(1) || !cs.CheckType(0, Value.IsArray, "array") {
		return Value{}
	}
	args := append([]Value(nil), cs.Args[0].AsArray().Items...)
	r, ok := s.callback(cs.This, args...)
	if !ok {
		return Value{}
	}
	return r
}
