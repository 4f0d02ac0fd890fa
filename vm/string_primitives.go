package vm

import (
	"strconv"
	"strings"
	"unicode"
)

// ---------------------------------------------------------------------------
// String methods
// ---------------------------------------------------------------------------

var stringClassDef = ClassDef{
	Name: "String",
	Fields: []FieldDef{
		{Name: "length", IsGetter: true, Getter: strLength},
	},
	Functions: []FuncDef{
		{Name: "constructor", Fn: strConstruct},
		{Name: "length", Fn: strLength},
		{Name: "upper", Fn: strUpper},
		{Name: "lower", Fn: strLower},
		{Name: "trim", Fn: strTrim},
		{Name: "ltrim", Fn: strLTrim},
		{Name: "rtrim", Fn: strRTrim},
		{Name: "split", Fn: strSplit},
		{Name: "index_of", Fn: strIndexOf},
		{Name: "starts_with", Fn: strStartsWith},
		{Name: "ends_with", Fn: strEndsWith},
		{Name: "contains", Fn: strContains},
		{Name: "replace", Fn: strReplace},
		{Name: "char_at", Fn: strCharAt},
		{Name: "ord", Fn: strOrd},
		{Name: "to_number", Fn: strToNumber},
		{Name: "to_string", Fn: strToString},
		{Name: "is_alpha", Fn: strIsAlpha},
		{Name: "is_number", Fn: strIsNumber},
		{Name: "is_space", Fn: strIsSpace},
		{Name: "substr", Fn: strSubstr},
		{Name: "repeat", Fn: strRepeat},
		{Name: "@iter", Fn: strIter},
		{Name: "@itern", Fn: strIterN},
		{Name: "fromCharCode", Fn: strFromCharCode, IsStatic: true},
	},
}

func thisString(cs *CallState) string { return cs.This.AsString().Chars }

func strConstruct(s *State, cs *CallState) Value {
	if len(cs.Args) == 0 {
		return s.String("")
	}
	str, ok := s.stringify(cs.Args[0])
	if !ok {
		// stringify left the exception on the stack; hand it over.
		return s.RaiseValue(s.pop())
	}
	return FromObject(str)
}

func strLength(s *State, cs *CallState) Value {
	return Number(float64(len(thisString(cs))))
}

func strUpper(s *State, cs *CallState) Value {
	if !cs.CheckCount(0) {
		return Value{}
	}
	return s.String(upperASCII(thisString(cs)))
}

func strLower(s *State, cs *CallState) Value {
	if !cs.CheckCount(0) {
		return Value{}
	}
	return s.String(lowerASCII(thisString(cs)))
}

func trimChars(cs *CallState) (string, bool) {
	if !cs.CheckCountRange(0, 1) {
		return "", false
	}
	if len(cs.Args) == 1 {
		if !cs.CheckType(0, Value.IsString, "string") {
			return "", false
		}
		return cs.Args[0].AsString().Chars, true
	}
	return " \t\r\n\v\f", true
}

func strTrim(s *State, cs *CallState) Value {
	chars, ok := trimChars(cs)
	if !ok {
		return Value{}
	}
	return s.String(strings.Trim(thisString(cs), chars))
}

func strLTrim(s *State, cs *CallState) Value {
	chars, ok := trimChars(cs)
	if !ok {
		return Value{}
	}
	return s.String(strings.TrimLeft(thisString(cs), chars))
}

func strRTrim(s *State, cs *CallState) Value {
	chars, ok := trimChars(cs)
	if !ok {
		return Value{}
	}
	return s.String(strings.TrimRight(thisString(cs), chars))
}

func strSplit(s *State, cs *CallState) Value {
	if !cs.CheckCount(1) || !cs.CheckType(0, Value.IsString, "string") {
		return Value{}
	}
	parts := strings.Split(thisString(cs), cs.Args[0].AsString().Chars)
	arr := s.NewArray(make([]Value, 0, len(parts)))
	s.GCProtect(FromObject(arr))
	for _, p := range parts {
		arr.Items = append(arr.Items, s.String(p))
	}
	return FromObject(arr)
}

func strIndexOf(s *State, cs *CallState) Value {
	if !cs.CheckCount(1) || !cs.CheckType(0, Value.IsString, "string") {
		return Value{}
	}
	return Number(float64(strings.Index(thisString(cs), cs.Args[0].AsString().Chars)))
}

func strStartsWith(s *State, cs *CallState) Value {
	if !cs.CheckCount(1) || !cs.CheckType(0, Value.IsString, "string") {
		return Value{}
	}
	return Bool(strings.HasPrefix(thisString(cs), cs.Args[0].AsString().Chars))
}

func strEndsWith(s *State, cs *CallState) Value {
	if !cs.CheckCount(1) || !cs.CheckType(0, Value.IsString, "string") {
		return Value{}
	}
	return Bool(strings.HasSuffix(thisString(cs), cs.Args[0].AsString().Chars))
}

func strContains(s *State, cs *CallState) Value {
	if !cs.CheckCount(1) || !cs.CheckType(0, Value.IsString, "string") {
		return Value{}
	}
	return Bool(strings.Contains(thisString(cs), cs.Args[0].AsString().Chars))
}

func strReplace(s *State, cs *CallState) Value {
	if !cs.CheckCount(2) || !cs.CheckType(0, Value.IsString, "string") || !cs.CheckType(1, Value.IsString, "string") {
		return Value{}
	}
	return s.String(strings.ReplaceAll(thisString(cs), cs.Args[0].AsString().Chars, cs.Args[1].AsString().Chars))
}

func strCharAt(s *State, cs *CallState) Value {
	if !cs.CheckCount(1) || !cs.CheckType(0, Value.IsNumber, "number") {
		return Value{}
	}
	str := thisString(cs)
	i := normIndex(cs.Args[0].AsInt(), len(str))
	if i < 0 || i >= len(str) {
		return s.Raise(s.classes.indexError, "string index %d out of range", cs.Args[0].AsInt())
	}
	return s.String(str[i : i+1])
}

func strOrd(s *State, cs *CallState) Value {
	str := thisString(cs)
	if len(str) == 0 {
		return s.Raise(s.classes.valueError, "ord() of empty string")
	}
	return Number(float64(str[0]))
}

func strToNumber(s *State, cs *CallState) Value {
	return parseNumber(thisString(cs))
}

// parseNumber converts text to a number, returning null when it is not one.
// Hex (0x), binary (0b) and octal (0c) prefixes are understood.
func parseNumber(text string) Value {
	t := strings.TrimSpace(text)
	if len(t) > 2 && t[0] == '0' {
		base := 0
		switch t[1] {
		case 'x', 'X':
			base = 16
		case 'b', 'B':
			base = 2
		case 'c', 'C':
			base = 8
		}
		if base != 0 {
			n, err := strconv.ParseInt(t[2:], base, 64)
			if err != nil {
				return Null()
			}
			return Number(float64(n))
		}
	}
	f, err := strconv.ParseFloat(t, 64)
	if err != nil {
		return Null()
	}
	return Number(f)
}

func strToString(s *State, cs *CallState) Value { return cs.This }

func allBytes(str string, pred func(rune) bool) bool {
	if str == "" {
		return false
	}
	for i := 0; i < len(str); i++ {
		if !pred(rune(str[i])) {
			return false
		}
	}
	return true
}

func strIsAlpha(s *State, cs *CallState) Value {
	return Bool(allBytes(thisString(cs), unicode.IsLetter))
}

func strIsNumber(s *State, cs *CallState) Value {
	return Bool(allBytes(thisString(cs), unicode.IsDigit))
}

func strIsSpace(s *State, cs *CallState) Value {
	return Bool(allBytes(thisString(cs), unicode.IsSpace))
}

func strSubstr(s *State, cs *CallState) Value {
	if !cs.CheckCountRange(1, 2) || !cs.CheckType(0, Value.IsNumber, "number") {
		return Value{}
	}
	str := thisString(cs)
	start := min(max(normIndex(cs.Args[0].AsInt(), len(str)), 0), len(str))
	end := len(str)
	if len(cs.Args) == 2 {
		if !cs.CheckType(1, Value.IsNumber, "number") {
			return Value{}
		}
		end = min(start+max(cs.Args[1].AsInt(), 0), len(str))
	}
	return s.String(str[start:end])
}

func strRepeat(s *State, cs *CallState) Value {
	if !cs.CheckCount(1) || !cs.CheckType(0, Value.IsNumber, "number") {
		return Value{}
	}
	return s.String(strings.Repeat(thisString(cs), max(cs.Args[0].AsInt(), 0)))
}

func strIter(s *State, cs *CallState) Value {
	if !cs.CheckCount(1) || !cs.CheckType(0, Value.IsNumber, "number") {
		return Value{}
	}
	str := thisString(cs)
	i := cs.Args[0].AsInt()
	if i < 0 || i >= len(str) {
		return Null()
	}
	return s.String(str[i : i+1])
}

func strIterN(s *State, cs *CallState) Value {
	if !cs.CheckCount(1) {
		return Value{}
	}
	return iterNext(cs.Args[0], len(thisString(cs)))
}

// iterNext implements @itern for integer-indexed sequences of length n.
func iterNext(key Value, n int) Value {
	if key.IsNull() {
		if n == 0 {
			return Null()
		}
		return Number(0)
	}
	if !key.IsNumber() {
		return Null()
	}
	next := key.AsInt() + 1
	if next < n {
		return Number(float64(next))
	}
	return Null()
}

func strFromCharCode(s *State, cs *CallState) Value {
	if !cs.CheckCount(1) || !cs.CheckType(0, Value.IsNumber, "number") {
		return Value{}
	}
	return s.String(string(rune(cs.Args[0].AsInt())))
}
