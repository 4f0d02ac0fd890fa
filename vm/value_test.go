package vm

import (
	"bytes"
	"math"
	"testing"
)

func newTestState(t *testing.T) (*State, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	s := New(Config{Stdout: &out, Stderr: &out})
	t.Cleanup(s.Close)
	return s, &out
}

// ---------------------------------------------------------------------------
// Truthiness
// ---------------------------------------------------------------------------

func TestIsFalse(t *testing.T) {
	s, _ := newTestState(t)

	tests := []struct {
		name string
		v    Value
		want bool
	}{
		{"empty", Empty(), true},
		{"null", Null(), true},
		{"false", Bool(false), true},
		{"true", Bool(true), false},
		{"zero", Number(0), false},
		{"positive", Number(3), false},
		{"negative", Number(-1), true},
		{"empty string", s.String(""), true},
		{"string", s.String("a"), false},
		{"empty array", FromObject(s.NewArray(nil)), true},
		{"array", FromObject(s.NewArray([]Value{Null()})), false},
		{"empty dict", FromObject(s.NewDict()), true},
	}
	for _, tt := range tests {
		if got := tt.v.IsFalse(); got != tt.want {
			t.Errorf("%s: IsFalse() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Equality and hashing
// ---------------------------------------------------------------------------

func TestEqual(t *testing.T) {
	s, _ := newTestState(t)

	a1 := FromObject(s.NewArray([]Value{Number(1), s.String("x")}))
	a2 := FromObject(s.NewArray([]Value{Number(1), s.String("x")}))
	a3 := FromObject(s.NewArray([]Value{Number(1)}))
	d1 := FromObject(s.NewDict())
	d2 := FromObject(s.NewDict())

	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"null null", Null(), Null(), true},
		{"null false", Null(), Bool(false), false},
		{"numbers", Number(2), Number(2), true},
		{"signed zero", Number(0), Number(math.Copysign(0, -1)), true},
		{"number vs bool", Number(1), Bool(true), false},
		{"strings", s.String("abc"), s.String("abc"), true},
		{"different strings", s.String("abc"), s.String("abd"), false},
		{"arrays by element", a1, a2, true},
		{"arrays by length", a1, a3, false},
		{"dicts by identity", d1, d2, false},
		{"same dict", d1, d1, true},
	}
	for _, tt := range tests {
		if got := Equal(tt.a, tt.b); got != tt.want {
			t.Errorf("%s: Equal() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestHashSignedZero(t *testing.T) {
	if Number(0).Hash() != Number(math.Copysign(0, -1)).Hash() {
		t.Error("0 and -0 hash differently")
	}
}

func TestHashPrimitives(t *testing.T) {
	if Bool(true).Hash() == Bool(false).Hash() {
		t.Error("true and false share a hash")
	}
	if Null().Hash() == Bool(false).Hash() {
		t.Error("null and false share a hash")
	}
}

// ---------------------------------------------------------------------------
// Formatting
// ---------------------------------------------------------------------------

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0"},
		{42, "42"},
		{-7, "-7"},
		{1.5, "1.5"},
		{0.1, "0.1"},
		{math.NaN(), "nan"},
		{math.Inf(1), "infinity"},
		{math.Inf(-1), "-infinity"},
	}
	for _, tt := range tests {
		if got := FormatNumber(tt.in); got != tt.want {
			t.Errorf("FormatNumber(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormat(t *testing.T) {
	s, _ := newTestState(t)

	arr := s.NewArray([]Value{Number(1), s.String("two"), Null()})
	if got := s.Format(FromObject(arr)); got != `[1, "two", null]` {
		t.Errorf("Format(array) = %s", got)
	}

	d := s.NewDict()
	s.DictSet(d, s.String("k"), Bool(true))
	if got := s.Format(FromObject(d)); got != `{"k": true}` {
		t.Errorf("Format(dict) = %s", got)
	}

	// Self-reference must not recurse forever.
	arr.Items = append(arr.Items, FromObject(arr))
	if got := s.Format(FromObject(arr)); got != `[1, "two", null, [...]]` {
		t.Errorf("Format(cyclic) = %s", got)
	}

	if got := s.Format(FromObject(s.NewRange(1, 5))); got != "<range 1..5>" {
		t.Errorf("Format(range) = %s", got)
	}
}

func TestTypeName(t *testing.T) {
	s, _ := newTestState(t)
	tests := []struct {
		v    Value
		want string
	}{
		{Null(), "null"},
		{Bool(true), "boolean"},
		{Number(1), "number"},
		{s.String("x"), "string"},
		{FromObject(s.NewArray(nil)), "array"},
		{FromObject(s.NewDict()), "dictionary"},
	}
	for _, tt := range tests {
		if got := s.TypeName(tt.v); got != tt.want {
			t.Errorf("TypeName(%s) = %q, want %q", s.Format(tt.v), got, tt.want)
		}
	}
}
