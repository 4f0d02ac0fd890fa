package vm

import (
	"fmt"
)

// NativeFn is the signature of every Go function callable from scripts.
// A native reports failure by calling State.Raise and returning.
type NativeFn func(s *State, cs *CallState) Value

// CallState describes one native invocation.
type CallState struct {
	Name string
	This Value
	Args []Value

	s *State
}

// Arg returns argument i, or null when it was not supplied.
func (cs *CallState) Arg(i int) Value {
	if i < len(cs.Args) {
		return cs.Args[i]
	}
	return Null()
}

// CheckCount raises ArgumentError unless exactly n arguments were passed.
func (cs *CallState) CheckCount(n int) bool {
	if len(cs.Args) != n {
		cs.s.Raise(cs.s.classes.argumentError, "%s() expects %d arguments, %d given", cs.Name, n, len(cs.Args))
		return false
	}
	return true
}

// CheckCountRange raises ArgumentError unless lo <= argc <= hi.
func (cs *CallState) CheckCountRange(lo, hi int) bool {
	n := len(cs.Args)
	if n < lo || n > hi {
		if lo == hi {
			return cs.CheckCount(lo)
		}
		cs.s.Raise(cs.s.classes.argumentError, "%s() expects between %d and %d arguments, %d given", cs.Name, lo, hi, n)
		return false
	}
	return true
}

// CheckMin raises ArgumentError when fewer than n arguments were passed.
func (cs *CallState) CheckMin(n int) bool {
	if len(cs.Args) < n {
		cs.s.Raise(cs.s.classes.argumentError, "%s() expects at least %d arguments, %d given", cs.Name, n, len(cs.Args))
		return false
	}
	return true
}

// CheckBy raises ArgumentError unless pred accepts argument i.
func (cs *CallState) CheckBy(i int, pred func(Value) bool, want string) bool {
	if i >= len(cs.Args) || !pred(cs.Args[i]) {
		got := "nothing"
		if i < len(cs.Args) {
			got = cs.s.TypeName(cs.Args[i])
		}
		cs.s.Raise(cs.s.classes.argumentError, "%s() expects argument %d as %s, %s given", cs.Name, i+1, want, got)
		return false
	}
	return true
}

// CheckType is CheckBy over a Value predicate method such as Value.IsString.
func (cs *CallState) CheckType(i int, pred func(Value) bool, want string) bool {
	return cs.CheckBy(i, pred, want)
}

// ---------------------------------------------------------------------------
// Module registration
// ---------------------------------------------------------------------------

// FieldDef is a module or class field. Value, when set, computes the value
// at load time; IsGetter installs Getter as a property getter instead.
type FieldDef struct {
	Name     string
	Value    func(s *State) Value
	IsGetter bool
	Getter   NativeFn
	IsStatic bool
}

// FuncDef binds a native function to a name.
type FuncDef struct {
	Name     string
	Fn       NativeFn
	IsStatic bool
}

// ClassDef describes a native class exported by a module.
type ClassDef struct {
	Name      string
	Fields    []FieldDef
	Functions []FuncDef
}

// ModuleDef describes a native module.
type ModuleDef struct {
	Name      string
	Fields    []FieldDef
	Functions []FuncDef
	Classes   []ClassDef
	Preload   func(s *State)
	Unload    func(s *State)
}

// RegisterModule makes def importable by name.
func (s *State) RegisterModule(def *ModuleDef) {
	s.natives[def.Name] = def
}

// loadNativeModule instantiates def as a Module object.
func (s *State) loadNativeModule(def *ModuleDef, path string) (*Module, error) {
	mod := s.NewModule(def.Name, path)
	s.pushRoot(FromObject(mod))
	defer s.popRoots(1)
	for _, f := range def.Fields {
		s.defineField(&mod.Defs, f)
	}
	for _, f := range def.Functions {
		s.defineNative(&mod.Defs, f.Name, f.Fn)
	}
	for _, c := range def.Classes {
		cls, err := s.buildNativeClass(c)
		if err != nil {
			return nil, fmt.Errorf("module %s: %w", def.Name, err)
		}
		mod.Defs.Set(FromObject(cls.Name), FromObject(cls))
	}
	if def.Preload != nil {
		def.Preload(s)
	}
	mod.Unload = def.Unload
	return mod, nil
}

func (s *State) defineNative(t *HashTable, name string, fn NativeFn) {
	nat := s.NewNative(name, fn, FuncKindFunction)
	s.pushRoot(FromObject(nat))
	t.Set(s.String(name), FromObject(nat))
	s.popRoots(1)
}

func (s *State) defineField(t *HashTable, f FieldDef) {
	if f.IsGetter {
		nat := s.NewNative(f.Name, f.Getter, FuncKindMethod)
		s.pushRoot(FromObject(nat))
		t.SetType(s.String(f.Name), FromObject(nat), PropGetter)
		s.popRoots(1)
		return
	}
	v := Null()
	if f.Value != nil {
		v = f.Value(s)
	}
	s.pushRoot(v)
	t.Set(s.String(f.Name), v)
	s.popRoots(1)
}

func (s *State) buildNativeClass(def ClassDef) (*Class, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("class without a name")
	}
	name := s.CopyString(def.Name)
	s.pushRoot(FromObject(name))
	cls := s.NewClass(name, nil)
	s.pushRoot(FromObject(cls))
	defer s.popRoots(2)
	for _, f := range def.Fields {
		if f.IsStatic {
			s.defineField(&cls.StaticFields, f)
		} else {
			s.defineField(&cls.Fields, f)
		}
	}
	for _, f := range def.Functions {
		switch {
		case f.Name == "constructor":
			nat := s.NewNative(def.Name, f.Fn, FuncKindInitializer)
			cls.Constructor = FromObject(nat)
			cls.Methods.Set(s.String("constructor"), cls.Constructor)
		case f.IsStatic:
			s.defineNative(&cls.StaticMethods, f.Name, f.Fn)
		default:
			s.defineNative(&cls.Methods, f.Name, f.Fn)
		}
	}
	return cls, nil
}

// DefineNative binds a native function as a VM-wide global.
func (s *State) DefineNative(name string, fn NativeFn) {
	nat := s.NewNative(name, fn, FuncKindFunction)
	s.DefineGlobal(name, FromObject(nat))
}
