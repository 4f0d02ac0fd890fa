package vm

import (
	"hash/crc32"
	"math"
)

// ---------------------------------------------------------------------------
// Value: tagged union of every runtime value
// ---------------------------------------------------------------------------

// ValueType is the discriminant of a Value.
type ValueType uint8

const (
	ValEmpty ValueType = iota
	ValNull
	ValBool
	ValNumber
	ValObject
)

// Value is a two-word tagged union. Values are passed and stored by value;
// an object payload is a non-owning reference into the State's registry.
//
// The zero Value is Empty.
type Value struct {
	typ ValueType
	num float64
	obj Object
}

// Empty returns the empty value, used for "no value" sentinels.
func Empty() Value { return Value{} }

// Null returns the null value.
func Null() Value { return Value{typ: ValNull} }

// Bool returns a boolean value.
func Bool(b bool) Value {
	if b {
		return Value{typ: ValBool, num: 1}
	}
	return Value{typ: ValBool}
}

// Number returns a numeric value.
func Number(f float64) Value { return Value{typ: ValNumber, num: f} }

// FromObject wraps a heap object. It panics on a nil object, since an
// object-tagged value must always carry a payload.
func FromObject(o Object) Value {
	if o == nil {
		panic("vm.FromObject: nil object")
	}
	return Value{typ: ValObject, obj: o}
}

// ---------------------------------------------------------------------------
// Predicates and accessors
// ---------------------------------------------------------------------------

func (v Value) Type() ValueType { return v.typ }
func (v Value) IsEmpty() bool   { return v.typ == ValEmpty }
func (v Value) IsNull() bool    { return v.typ == ValNull }
func (v Value) IsBool() bool    { return v.typ == ValBool }
func (v Value) IsNumber() bool  { return v.typ == ValNumber }
func (v Value) IsObject() bool  { return v.typ == ValObject }

// IsObjKind reports whether v is an object of kind k.
func (v Value) IsObjKind(k ObjKind) bool {
	return v.typ == ValObject && v.obj.header().kind == k
}

func (v Value) IsString() bool   { return v.IsObjKind(KindString) }
func (v Value) IsArray() bool    { return v.IsObjKind(KindArray) }
func (v Value) IsDict() bool     { return v.IsObjKind(KindDict) }
func (v Value) IsRange() bool    { return v.IsObjKind(KindRange) }
func (v Value) IsFile() bool     { return v.IsObjKind(KindFile) }
func (v Value) IsClass() bool    { return v.IsObjKind(KindClass) }
func (v Value) IsInstance() bool { return v.IsObjKind(KindInstance) }
func (v Value) IsModule() bool   { return v.IsObjKind(KindModule) }
func (v Value) IsClosure() bool  { return v.IsObjKind(KindClosure) }

// IsCallable reports whether v can appear in callee position.
func (v Value) IsCallable() bool {
	if v.typ != ValObject {
		return false
	}
	switch v.obj.header().kind {
	case KindClosure, KindBound, KindNative, KindClass, KindFuncScript:
		return true
	}
	return false
}

// AsBool returns the boolean payload. Only valid when IsBool.
func (v Value) AsBool() bool { return v.num != 0 }

// AsNumber returns the numeric payload. Only valid when IsNumber.
func (v Value) AsNumber() float64 { return v.num }

// AsInt truncates the numeric payload.
func (v Value) AsInt() int { return int(v.num) }

// AsObject returns the object payload, or nil for non-objects.
func (v Value) AsObject() Object { return v.obj }

func (v Value) AsString() *String         { return v.obj.(*String) }
func (v Value) AsArray() *Array           { return v.obj.(*Array) }
func (v Value) AsDict() *Dict             { return v.obj.(*Dict) }
func (v Value) AsRange() *Range           { return v.obj.(*Range) }
func (v Value) AsFile() *File             { return v.obj.(*File) }
func (v Value) AsClass() *Class           { return v.obj.(*Class) }
func (v Value) AsInstance() *Instance     { return v.obj.(*Instance) }
func (v Value) AsModule() *Module         { return v.obj.(*Module) }
func (v Value) AsClosure() *FuncClosure   { return v.obj.(*FuncClosure) }
func (v Value) AsFuncScript() *FuncScript { return v.obj.(*FuncScript) }
func (v Value) AsNative() *FuncNative     { return v.obj.(*FuncNative) }
func (v Value) AsBound() *FuncBound       { return v.obj.(*FuncBound) }
func (v Value) AsSwitch() *Switch         { return v.obj.(*Switch) }
func (v Value) AsUserdata() *Userdata     { return v.obj.(*Userdata) }

// Str returns the Go string of a String value, or "" for anything else.
func (v Value) Str() string {
	if s, ok := v.obj.(*String); ok && v.typ == ValObject {
		return s.Chars
	}
	return ""
}

// ---------------------------------------------------------------------------
// Truthiness
// ---------------------------------------------------------------------------

// IsFalse reports whether v counts as false in a condition.
//
// Numbers are false only when negative; zero is true. Strings, arrays and
// dictionaries are false when empty.
func (v Value) IsFalse() bool {
	switch v.typ {
	case ValEmpty, ValNull:
		return true
	case ValBool:
		return !v.AsBool()
	case ValNumber:
		return v.num < 0
	case ValObject:
		switch o := v.obj.(type) {
		case *String:
			return len(o.Chars) == 0
		case *Array:
			return len(o.Items) == 0
		case *Dict:
			return len(o.Keys) == 0
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Equality
// ---------------------------------------------------------------------------

// Equal compares two values. Objects compare by identity first; strings
// then compare by content and arrays element-wise.
func Equal(a, b Value) bool {
	if a.typ != b.typ {
		return false
	}
	switch a.typ {
	case ValEmpty, ValNull:
		return true
	case ValBool, ValNumber:
		return a.num == b.num
	}
	if a.obj == b.obj {
		return true
	}
	return equalObjects(a.obj, b.obj)
}

func equalObjects(a, b Object) bool {
	switch x := a.(type) {
	case *String:
		y, ok := b.(*String)
		return ok && x.hash == y.hash && x.Chars == y.Chars
	case *Array:
		y, ok := b.(*Array)
		if !ok || len(x.Items) != len(y.Items) {
			return false
		}
		for i := range x.Items {
			if !Equal(x.Items[i], y.Items[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// Hashing
// ---------------------------------------------------------------------------

func hashBits(bits uint64) uint32 {
	h := bits
	h = ^h + (h << 18)
	h ^= h >> 31
	h *= 21
	h ^= h >> 11
	h += h << 6
	h ^= h >> 22
	return uint32(h & 0x3fffffff)
}

func hashNumber(f float64) uint32 {
	// -0 and +0 are equal, so they must hash alike.
	if f == 0 {
		f = 0
	}
	return hashBits(math.Float64bits(f))
}

func hashString(s string) uint32 {
	return crc32.ChecksumIEEE([]byte(s))
}

// Hash returns the table hash of v. Objects without a content hash
// (instances, closures, files...) hash to 0 and rely on identity comparison
// while probing.
func (v Value) Hash() uint32 {
	switch v.typ {
	case ValBool:
		if v.AsBool() {
			return 3
		}
		return 5
	case ValNull:
		return 7
	case ValNumber:
		return hashNumber(v.num)
	case ValObject:
		switch o := v.obj.(type) {
		case *String:
			return o.hash
		case *Class:
			return o.Name.hash
		case *FuncScript:
			return uint32(o.Arity) ^ uint32(len(o.Blob.Constants))
		}
	}
	return 0
}
