package vm

import (
	"math"
	"math/rand/v2"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Global functions
// ---------------------------------------------------------------------------

var globalFunctions = []FuncDef{
	{Name: "print", Fn: globalPrint},
	{Name: "println", Fn: globalPrintln},
	{Name: "printf", Fn: globalPrintf},
	{Name: "sprintf", Fn: globalSprintf},
	{Name: "eval", Fn: globalEval},
	{Name: "typeof", Fn: globalTypeof},
	{Name: "instanceof", Fn: globalInstanceOf},
	{Name: "chr", Fn: globalChr},
	{Name: "ord", Fn: globalOrd},
	{Name: "rand", Fn: globalRand},
	{Name: "time", Fn: globalTime},
	{Name: "microtime", Fn: globalMicrotime},
	{Name: "id", Fn: globalID},
	{Name: "int", Fn: globalInt},
	{Name: "hex", Fn: radixFn(16, "0x")},
	{Name: "bin", Fn: radixFn(2, "0b")},
	{Name: "oct", Fn: radixFn(8, "0c")},
	{Name: "isNaN", Fn: globalIsNaN},
	{Name: "to_string", Fn: globalToString},
	{Name: "to_number", Fn: globalToNumber},
	{Name: "to_bool", Fn: globalToBool},
	{Name: "to_int", Fn: globalInt},
	{Name: "to_list", Fn: globalToList},
	{Name: "to_dict", Fn: globalToDict},
	{Name: "is_callable", Fn: isFn(Value.IsCallable)},
	{Name: "is_string", Fn: isFn(Value.IsString)},
	{Name: "is_number", Fn: isFn(Value.IsNumber)},
	{Name: "is_bool", Fn: isFn(Value.IsBool)},
	{Name: "is_array", Fn: isFn(Value.IsArray)},
	{Name: "is_dict", Fn: isFn(Value.IsDict)},
	{Name: "is_object", Fn: isFn(Value.IsObject)},
	{Name: "is_function", Fn: isFn(Value.IsCallable)},
	{Name: "is_iterable", Fn: isFn(isIterable)},
	{Name: "is_class", Fn: isFn(Value.IsClass)},
	{Name: "is_file", Fn: isFn(Value.IsFile)},
	{Name: "is_instance", Fn: isFn(Value.IsInstance)},
	{Name: "max", Fn: globalMax},
	{Name: "min", Fn: globalMin},
	{Name: "sum", Fn: globalSum},
	{Name: "abs", Fn: globalAbs},
	{Name: "gc", Fn: globalGC},
	{Name: "file", Fn: fileConstruct},
}

func (s *State) writeOut(cs *CallState) bool {
	var b strings.Builder
	for _, a := range cs.Args {
		str, ok := s.stringify(a)
		if !ok {
			s.RaiseValue(s.pop())
			return false
		}
		b.WriteString(str.Chars)
	}
	if _, err := s.config.Stdout.Write([]byte(b.String())); err != nil {
		s.Raise(s.classes.ioError, "cannot write to stdout: %v", err)
		return false
	}
	return true
}

func globalPrint(s *State, cs *CallState) Value {
	s.writeOut(cs)
	return Null()
}

func globalPrintln(s *State, cs *CallState) Value {
	if s.writeOut(cs) {
		s.config.Stdout.Write([]byte{'\n'})
	}
	return Null()
}

// formatValues expands a printf-style template. %s %d %i %g print the
// value, %q %p quote it, %c prints a character code and %% a percent.
func (s *State) formatValues(cs *CallState) (string, bool) {
	if !cs.CheckMin(1) || !cs.CheckType(0, Value.IsString, "string") {
		return "", false
	}
	format := cs.Args[0].AsString().Chars
	args := cs.Args[1:]
	var b strings.Builder
	next := 0
	for i := 0; i < len(format); i++ {
		ch := format[i]
		if ch != '%' || i+1 >= len(format) {
			b.WriteByte(ch)
			continue
		}
		i++
		verb := format[i]
		if verb == '%' {
			b.WriteByte('%')
			continue
		}
		if next >= len(args) {
			s.Raise(s.classes.argumentError, "too few arguments for format %q", format)
			return "", false
		}
		arg := args[next]
		next++
		switch verb {
		case 'q', 'p':
			if arg.IsString() {
				b.WriteString(strconv.Quote(arg.AsString().Chars))
			} else {
				b.WriteString(s.Format(arg))
			}
		case 'c':
			b.WriteRune(rune(arg.AsInt()))
		case 's', 'd', 'i', 'g':
			str, ok := s.stringify(arg)
			if !ok {
				s.RaiseValue(s.pop())
				return "", false
			}
			b.WriteString(str.Chars)
		default:
			s.Raise(s.classes.argumentError, "unknown format flag '%c'", verb)
			return "", false
		}
	}
	return b.String(), true
}

func globalSprintf(s *State, cs *CallState) Value {
	out, ok := s.formatValues(cs)
	if !ok {
		return Value{}
	}
	return s.String(out)
}

func globalPrintf(s *State, cs *CallState) Value {
	out, ok := s.formatValues(cs)
	if !ok {
		return Value{}
	}
	s.config.Stdout.Write([]byte(out))
	return Null()
}

// globalEval compiles source into the running module and calls it.
func globalEval(s *State, cs *CallState) Value {
	if !cs.CheckCount(1) || !cs.CheckType(0, Value.IsString, "string") {
		return Value{}
	}
	if s.compile == nil {
		return s.Raise(s.classes.exception, "eval: %v", ErrNoCompiler)
	}
	mod := s.topModule
	if s.frameCount > 0 {
		if m := s.frames[s.frameCount-1].closure.Fn.Module; m != nil {
			mod = m
		}
	}
	fn, err := s.compile(s, cs.Args[0].AsString().Chars, "<eval>", mod)
	if err != nil {
		return s.Raise(s.classes.exception, "eval: %v", err)
	}
	s.GCProtect(FromObject(fn))
	cl := s.NewClosure(fn)
	s.GCProtect(FromObject(cl))
	r, ok := s.callback(FromObject(cl))
	if !ok {
		return Value{}
	}
	return r
}

func globalTypeof(s *State, cs *CallState) Value {
	if !cs.CheckCount(1) {
		return Value{}
	}
	return s.String(s.TypeName(cs.Args[0]))
}

func globalInstanceOf(s *State, cs *CallState) Value {
	if !cs.CheckCount(2) || !cs.CheckType(1, Value.IsClass, "class") {
		return Value{}
	}
	return Bool(s.instanceOf(cs.Args[0], cs.Args[1].AsClass()))
}

func globalChr(s *State, cs *CallState) Value {
	if !cs.CheckCount(1) || !cs.CheckType(0, Value.IsNumber, "number") {
		return Value{}
	}
	return s.String(string(rune(cs.Args[0].AsInt())))
}

func globalOrd(s *State, cs *CallState) Value {
	if !cs.CheckCount(1) || !cs.CheckType(0, Value.IsString, "string") {
		return Value{}
	}
	str := cs.Args[0].AsString().Chars
	if len(str) == 0 {
		return s.Raise(s.classes.valueError, "ord() of empty string")
	}
	return Number(float64(str[0]))
}

// globalRand returns a float in [0, 1) with no arguments, an integer in
// [0, n) with one, and an integer in [lo, hi) with two.
func globalRand(s *State, cs *CallState) Value {
	if !cs.CheckCountRange(0, 2) {
		return Value{}
	}
	for i := range cs.Args {
		if !cs.CheckType(i, Value.IsNumber, "number") {
			return Value{}
		}
	}
	lo, hi := 0, 0
	switch len(cs.Args) {
	case 0:
		return Number(rand.Float64())
	case 1:
		hi = cs.Args[0].AsInt()
	case 2:
		lo, hi = cs.Args[0].AsInt(), cs.Args[1].AsInt()
	}
	if lo > hi {
		lo, hi = hi, lo
	}
	if hi == lo {
		return Number(float64(lo))
	}
	return Number(float64(lo + rand.IntN(hi-lo)))
}

func globalTime(s *State, cs *CallState) Value {
	return Number(float64(time.Now().Unix()))
}

func globalMicrotime(s *State, cs *CallState) Value {
	return Number(float64(time.Now().UnixMicro()))
}

// globalID returns a number identifying an object for its lifetime.
// Non-object values have no identity and yield -1.
func globalID(s *State, cs *CallState) Value {
	if !cs.CheckCount(1) {
		return Value{}
	}
	if !cs.Args[0].IsObject() {
		return Number(-1)
	}
	return Number(float64(reflect.ValueOf(cs.Args[0].obj).Pointer()))
}

func globalInt(s *State, cs *CallState) Value {
	if !cs.CheckCountRange(0, 1) {
		return Value{}
	}
	if len(cs.Args) == 0 {
		return Number(0)
	}
	return Number(math.Trunc(toNumber(cs.Args[0]).num))
}

func radixFn(base int, prefix string) NativeFn {
	return func(s *State, cs *CallState) Value {
		if !cs.CheckCount(1) || !cs.CheckType(0, Value.IsNumber, "number") {
			return Value{}
		}
		n := int64(cs.Args[0].num)
		sign := ""
		if n < 0 {
			sign, n = "-", -n
		}
		return s.String(sign + prefix + strconv.FormatInt(n, base))
	}
}

func globalIsNaN(s *State, cs *CallState) Value {
	if !cs.CheckCount(1) {
		return Value{}
	}
	return Bool(cs.Args[0].IsNumber() && math.IsNaN(cs.Args[0].num))
}

func globalToString(s *State, cs *CallState) Value {
	if !cs.CheckCount(1) {
		return Value{}
	}
	str, ok := s.stringify(cs.Args[0])
	if !ok {
		return s.RaiseValue(s.pop())
	}
	return FromObject(str)
}

func globalToNumber(s *State, cs *CallState) Value {
	if !cs.CheckCount(1) {
		return Value{}
	}
	return toNumber(cs.Args[0])
}

func globalToBool(s *State, cs *CallState) Value {
	if !cs.CheckCount(1) {
		return Value{}
	}
	return Bool(!cs.Args[0].IsFalse())
}

func globalToList(s *State, cs *CallState) Value {
	if !cs.CheckCount(1) {
		return Value{}
	}
	v := cs.Args[0]
	switch {
	case v.IsArray():
		return v
	case v.IsDict():
		d := v.AsDict()
		out := make([]Value, 0, len(d.Keys))
		for _, k := range d.Keys {
			pair := s.NewArray([]Value{k, Null()})
			pair.Items[1], _ = d.Table.GetValue(k)
			s.GCProtect(FromObject(pair))
			out = append(out, FromObject(pair))
		}
		return FromObject(s.NewArray(out))
	case v.IsString():
		str := v.AsString().Chars
		arr := s.NewArray(make([]Value, 0, len(str)))
		s.GCProtect(FromObject(arr))
		for i := 0; i < len(str); i++ {
			arr.Items = append(arr.Items, s.String(str[i:i+1]))
		}
		return FromObject(arr)
	case v.IsRange():
		r := v.AsRange()
		out := make([]Value, 0, r.Span)
		step := 1
		if r.Lower > r.Upper {
			step = -1
		}
		for i, x := 0, r.Lower; i < r.Span; i, x = i+1, x+step {
			out = append(out, Number(float64(x)))
		}
		return FromObject(s.NewArray(out))
	}
	return FromObject(s.NewArray([]Value{v}))
}

func globalToDict(s *State, cs *CallState) Value {
	if !cs.CheckCount(1) {
		return Value{}
	}
	v := cs.Args[0]
	if v.IsDict() {
		return v
	}
	d := s.NewDict()
	s.GCProtect(FromObject(d))
	switch {
	case v.IsArray():
		for i, it := range v.AsArray().Items {
			s.DictSet(d, Number(float64(i)), it)
		}
	case v.IsInstance():
		var failed bool
		v.AsInstance().Props.Each(func(k Value, p Property) bool {
			failed = !s.DictSet(d, k, p.Value)
			return !failed
		})
		if failed {
			return Value{}
		}
	default:
		s.DictSet(d, Number(0), v)
	}
	return FromObject(d)
}

func isFn(pred func(Value) bool) NativeFn {
	return func(s *State, cs *CallState) Value {
		if !cs.CheckCount(1) {
			return Value{}
		}
		return Bool(pred(cs.Args[0]))
	}
}

func isIterable(v Value) bool {
	return v.IsArray() || v.IsDict() || v.IsString() || v.IsRange() || v.IsInstance()
}

func numericArgs(cs *CallState) ([]float64, bool) {
	if !cs.CheckMin(1) {
		return nil, false
	}
	args := cs.Args
	if len(args) == 1 && args[0].IsArray() {
		args = args[0].AsArray().Items
	}
	out := make([]float64, 0, len(args))
	for i, a := range args {
		f, ok := coerceNumber(a)
		if !ok {
			cs.s.Raise(cs.s.classes.argumentError, "%s() expects numbers, %s given at position %d", cs.Name, cs.s.TypeName(a), i+1)
			return nil, false
		}
		out = append(out, f)
	}
	return out, true
}

func globalMax(s *State, cs *CallState) Value {
	nums, ok := numericArgs(cs)
	if !ok {
		return Value{}
	}
	if len(nums) == 0 {
		return Null()
	}
	m := nums[0]
	for _, n := range nums[1:] {
		m = max(m, n)
	}
	return Number(m)
}

func globalMin(s *State, cs *CallState) Value {
	nums, ok := numericArgs(cs)
	if !ok {
		return Value{}
	}
	if len(nums) == 0 {
		return Null()
	}
	m := nums[0]
	for _, n := range nums[1:] {
		m = min(m, n)
	}
	return Number(m)
}

func globalSum(s *State, cs *CallState) Value {
	nums, ok := numericArgs(cs)
	if !ok {
		return Value{}
	}
	var total float64
	for _, n := range nums {
		total += n
	}
	return Number(total)
}

func globalAbs(s *State, cs *CallState) Value {
	if !cs.CheckCount(1) || !cs.CheckType(0, Value.IsNumber, "number") {
		return Value{}
	}
	return Number(math.Abs(cs.Args[0].num))
}

// globalGC forces a collection and returns the number of live objects.
func globalGC(s *State, cs *CallState) Value {
	s.CollectGarbage()
	return Number(float64(s.objectCount))
}
