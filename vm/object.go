package vm

import (
	"bufio"
	"io"
	"os"
	"plugin"
)

// ---------------------------------------------------------------------------
// Object header and kinds
// ---------------------------------------------------------------------------

// ObjKind discriminates the heap object subtypes.
type ObjKind uint8

const (
	KindString ObjKind = iota + 1
	KindArray
	KindDict
	KindRange
	KindFile
	KindUpvalue
	KindFuncScript
	KindClosure
	KindBound
	KindNative
	KindClass
	KindInstance
	KindModule
	KindSwitch
	KindUserdata
)

var kindNames = [...]string{
	KindString:     "string",
	KindArray:      "array",
	KindDict:       "dictionary",
	KindRange:      "range",
	KindFile:       "file",
	KindUpvalue:    "upvalue",
	KindFuncScript: "function",
	KindClosure:    "function",
	KindBound:      "function",
	KindNative:     "function",
	KindClass:      "class",
	KindInstance:   "instance",
	KindModule:     "module",
	KindSwitch:     "switch",
	KindUserdata:   "userdata",
}

func (k ObjKind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return "unknown"
}

// ObjHeader is embedded first in every heap object. The registry linked
// through next is the only owner of an object.
type ObjHeader struct {
	kind  ObjKind
	mark  bool
	stale bool
	next  Object
}

func (h *ObjHeader) header() *ObjHeader { return h }

// Kind returns the subtype discriminant.
func (h *ObjHeader) Kind() ObjKind { return h.kind }

// Object is implemented by every heap object through its embedded header.
type Object interface {
	header() *ObjHeader
}

// ---------------------------------------------------------------------------
// Subtypes
// ---------------------------------------------------------------------------

// String is an interned, immutable byte string with a cached hash.
type String struct {
	ObjHeader
	Chars string
	hash  uint32
}

// Array is an ordered sequence of values.
type Array struct {
	ObjHeader
	Items []Value
}

// Dict keeps insertion order in Keys and lookups in Table. Both are updated
// together by every mutator.
type Dict struct {
	ObjHeader
	Keys  []Value
	Table HashTable
}

// Range is an integer interval. Lower is advanced in place by the @iter
// protocol, so a Range aliased across two loops shares iteration state.
type Range struct {
	ObjHeader
	Lower int
	Upper int
	Span  int
}

// File wraps an OS file handle.
type File struct {
	ObjHeader
	Path   *String
	Mode   *String
	handle *os.File
	reader *bufio.Reader
	writer io.Writer
	isStd  bool
	isOpen bool
}

// Upvalue is a captured variable. While open it names a live stack slot;
// after close it owns its value.
type Upvalue struct {
	ObjHeader
	index    int
	closed   Value
	open     bool
	nextOpen *Upvalue
}

// FuncKind tells the compiler and the call machinery how a function was
// declared.
type FuncKind uint8

const (
	FuncKindFunction FuncKind = iota
	FuncKindAnonymous
	FuncKindMethod
	FuncKindStatic
	FuncKindInitializer
	FuncKindScript
)

// FuncScript is a compiled function: bytecode, constants and signature.
type FuncScript struct {
	ObjHeader
	Name         *String
	Arity        int
	Variadic     bool
	UpvalueCount int
	Kind         FuncKind
	Blob         Blob
	Module       *Module
}

// FuncClosure binds a FuncScript to its captured upvalues.
type FuncClosure struct {
	ObjHeader
	Fn       *FuncScript
	Upvalues []*Upvalue
}

// FuncBound pairs a method (closure or native) with its receiver.
type FuncBound struct {
	ObjHeader
	Receiver Value
	Method   Value
}

// FuncNative is a Go function callable from scripts.
type FuncNative struct {
	ObjHeader
	Name string
	Fn   NativeFn
	Kind FuncKind
}

// Class holds field templates and method tables. Methods are looked up
// through the superclass chain and never copied into instances.
type Class struct {
	ObjHeader
	Name          *String
	Super         *Class
	Constructor   Value
	Fields        HashTable
	StaticFields  HashTable
	Methods       HashTable
	StaticMethods HashTable
}

// Instance is an object of a script or builtin class.
type Instance struct {
	ObjHeader
	Class *Class
	Props HashTable
}

// Module is a namespace of top-level definitions.
type Module struct {
	ObjHeader
	Name     *String
	Path     *String
	Defs     HashTable
	Imported bool
	Unload   func(s *State)
	lib      *plugin.Plugin
}

// Switch maps case constants to jump offsets relative to the end of the
// Switch instruction. DefaultJump is -1 when there is no default case.
type Switch struct {
	ObjHeader
	Table       HashTable
	DefaultJump int
	ExitJump    int
}

// Userdata carries an opaque host pointer with an optional finalizer.
type Userdata struct {
	ObjHeader
	Name string
	Ptr  any
	Free func(any)
}

// ---------------------------------------------------------------------------
// Allocation
// ---------------------------------------------------------------------------

// Approximate per-kind sizes, used only for GC accounting.
const (
	sizeHeader   = 32
	sizeValue    = 24
	sizeEntry    = 56
	sizeClass    = sizeHeader + 4*32 + 2*sizeValue
	sizeFunction = sizeHeader + 96
)

func objectSize(o Object) int {
	switch x := o.(type) {
	case *String:
		return sizeHeader + len(x.Chars)
	case *Array:
		return sizeHeader + cap(x.Items)*sizeValue
	case *Dict:
		return sizeHeader + cap(x.Keys)*sizeValue + len(x.Table.entries)*sizeEntry
	case *FuncScript:
		return sizeFunction + len(x.Blob.Code)*16 + len(x.Blob.Constants)*sizeValue
	case *FuncClosure:
		return sizeHeader + len(x.Upvalues)*8
	case *Class:
		return sizeClass
	case *Instance:
		return sizeHeader + len(x.Props.entries)*sizeEntry
	case *Module:
		return sizeHeader + len(x.Defs.entries)*sizeEntry
	}
	return sizeHeader + sizeValue
}

// register links a freshly built object into the registry. A collection
// may run before the link, never after it, so the new object is safe until
// the next allocation.
func (s *State) register(o Object, kind ObjKind) {
	s.gcMaybeCollect(objectSize(o))
	h := o.header()
	h.kind = kind
	h.mark = !s.currentMark
	h.next = s.objects
	s.objects = o
	s.objectCount++
}

// NewArray allocates an array holding items. The slice is owned by the
// array afterwards.
func (s *State) NewArray(items []Value) *Array {
	a := &Array{Items: items}
	s.register(a, KindArray)
	return a
}

// NewDict allocates an empty dictionary.
func (s *State) NewDict() *Dict {
	d := &Dict{}
	s.register(d, KindDict)
	return d
}

// NewRange allocates a range.
func (s *State) NewRange(lower, upper int) *Range {
	span := upper - lower
	if span < 0 {
		span = -span
	}
	r := &Range{Lower: lower, Upper: upper, Span: span}
	s.register(r, KindRange)
	return r
}

// NewFuncScript allocates an empty function in module mod.
func (s *State) NewFuncScript(mod *Module, kind FuncKind) *FuncScript {
	fn := &FuncScript{Kind: kind, Module: mod}
	s.register(fn, KindFuncScript)
	return fn
}

// NewClosure allocates a closure over fn with room for its upvalues.
func (s *State) NewClosure(fn *FuncScript) *FuncClosure {
	c := &FuncClosure{Fn: fn, Upvalues: make([]*Upvalue, fn.UpvalueCount)}
	s.register(c, KindClosure)
	return c
}

// NewBound allocates a bound method.
func (s *State) NewBound(receiver, method Value) *FuncBound {
	b := &FuncBound{Receiver: receiver, Method: method}
	s.register(b, KindBound)
	return b
}

// NewNative allocates a native function object.
func (s *State) NewNative(name string, fn NativeFn, kind FuncKind) *FuncNative {
	n := &FuncNative{Name: name, Fn: fn, Kind: kind}
	s.register(n, KindNative)
	return n
}

// NewClass allocates a class named name.
func (s *State) NewClass(name *String, super *Class) *Class {
	c := &Class{Name: name, Super: super, Constructor: Null()}
	s.register(c, KindClass)
	return c
}

// NewInstance allocates an instance of cls, seeding its properties with a
// shallow copy of the class field template.
func (s *State) NewInstance(cls *Class) *Instance {
	inst := &Instance{Class: cls}
	cls.Fields.CopyTo(&inst.Props)
	s.register(inst, KindInstance)
	return inst
}

// NewModule allocates a module.
func (s *State) NewModule(name, path string) *Module {
	n := s.CopyString(name)
	s.pushRoot(FromObject(n))
	p := s.CopyString(path)
	s.pushRoot(FromObject(p))
	m := &Module{Name: n, Path: p}
	s.register(m, KindModule)
	s.popRoots(2)
	return m
}

// NewSwitch allocates an empty switch table.
func (s *State) NewSwitch() *Switch {
	sw := &Switch{DefaultJump: -1}
	s.register(sw, KindSwitch)
	return sw
}

// NewUserdata wraps a host pointer.
func (s *State) NewUserdata(name string, ptr any, free func(any)) *Userdata {
	u := &Userdata{Name: name, Ptr: ptr, Free: free}
	s.register(u, KindUserdata)
	return u
}

func (s *State) newUpvalue(index int) *Upvalue {
	u := &Upvalue{index: index, open: true, closed: Null()}
	s.register(u, KindUpvalue)
	return u
}

// destroy releases resources held by o before it leaves the registry.
func (s *State) destroy(o Object) {
	switch x := o.(type) {
	case *File:
		if x.isOpen && !x.isStd && x.handle != nil {
			x.handle.Close()
		}
		x.isOpen = false
		x.handle = nil
		x.reader = nil
		x.writer = nil
	case *Module:
		if x.Imported && x.Unload != nil {
			x.Unload(s)
		}
		x.Defs.Clear()
	case *Userdata:
		if x.Free != nil {
			x.Free(x.Ptr)
		}
		x.Ptr = nil
	case *Array:
		x.Items = nil
	case *Dict:
		x.Keys = nil
		x.Table.Clear()
	case *Instance:
		x.Props.Clear()
	case *Class:
		x.Fields.Clear()
		x.StaticFields.Clear()
		x.Methods.Clear()
		x.StaticMethods.Clear()
	}
}
