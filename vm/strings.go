package vm

import "strings"

// CopyString returns the interned String for chars, allocating it on first
// use. Equal contents always yield the same *String.
func (s *State) CopyString(chars string) *String {
	h := hashString(chars)
	if interned := s.strings.FindString(chars, h); interned != nil {
		return interned
	}
	return s.allocString(chars, h)
}

// TakeString interns the contents of buf. The buffer is not retained.
func (s *State) TakeString(buf []byte) *String {
	return s.CopyString(string(buf))
}

// String is a convenience that interns chars and wraps it in a Value.
func (s *State) String(chars string) Value {
	return FromObject(s.CopyString(chars))
}

func (s *State) allocString(chars string, h uint32) *String {
	str := &String{Chars: chars, hash: h}
	s.register(str, KindString)
	s.pushRoot(FromObject(str))
	s.strings.Set(FromObject(str), Null())
	s.popRoots(1)
	return str
}

// ---------------------------------------------------------------------------
// Stringification
// ---------------------------------------------------------------------------

// ToString converts any value to a String object, as used by string
// concatenation and interpolation.
func (s *State) ToString(v Value) *String {
	if v.IsString() {
		return v.AsString()
	}
	return s.CopyString(s.Format(v))
}

// lowerASCII lowercases ASCII letters only; other bytes pass through.
func lowerASCII(str string) string {
	var b strings.Builder
	b.Grow(len(str))
	for i := 0; i < len(str); i++ {
		c := str[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		b.WriteByte(c)
	}
	return b.String()
}

func upperASCII(str string) string {
	var b strings.Builder
	b.Grow(len(str))
	for i := 0; i < len(str); i++ {
		c := str[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		b.WriteByte(c)
	}
	return b.String()
}
