package vm

import (
	"cmp"
	"slices"
	"strings"
)

// ---------------------------------------------------------------------------
// Array methods
// ---------------------------------------------------------------------------

var arrayClassDef = ClassDef{
	Name: "Array",
	Fields: []FieldDef{
		{Name: "length", IsGetter: true, Getter: arrLength},
	},
	Functions: []FuncDef{
		{Name: "constructor", Fn: arrConstruct},
		{Name: "length", Fn: arrLength},
		{Name: "push", Fn: arrPush},
		{Name: "append", Fn: arrPush},
		{Name: "pop", Fn: arrPop},
		{Name: "shift", Fn: arrShift},
		{Name: "unshift", Fn: arrUnshift},
		{Name: "insert", Fn: arrInsert},
		{Name: "remove_at", Fn: arrRemoveAt},
		{Name: "clear", Fn: arrClear},
		{Name: "first", Fn: arrFirst},
		{Name: "last", Fn: arrLast},
		{Name: "index_of", Fn: arrIndexOf},
		{Name: "contains", Fn: arrContains},
		{Name: "reverse", Fn: arrReverse},
		{Name: "sort", Fn: arrSort},
		{Name: "join", Fn: arrJoin},
		{Name: "slice", Fn: arrSlice},
		{Name: "copy", Fn: arrCopy},
		{Name: "map", Fn: arrMap},
		{Name: "filter", Fn: arrFilter},
		{Name: "reduce", Fn: arrReduce},
		{Name: "each", Fn: arrEach},
		{Name: "some", Fn: arrSome},
		{Name: "every", Fn: arrEvery},
		{Name: "to_dict", Fn: arrToDict},
		{Name: "to_list", Fn: arrCopy},
		{Name: "@iter", Fn: arrIter},
		{Name: "@itern", Fn: arrIterN},
	},
}

func thisArray(cs *CallState) *Array { return cs.This.AsArray() }

// callback invokes a script function from a native. On failure the
// exception is left pending for callNative to pick up.
func (s *State) callback(fn Value, args ...Value) (Value, bool) {
	r, err := s.CallValue(fn, Empty(), args...)
	if err != nil {
		if !s.Pending() {
			s.Raise(s.classes.exception, "%v", err)
		}
		return Value{}, false
	}
	return r, true
}

// iterCallback calls fn with at most as many of args as it declares, so
// map(function(x) {...}) can ignore the index. Natives and variadic
// functions get everything.
func (s *State) iterCallback(fn Value, args ...Value) (Value, bool) {
	target := fn
	if target.IsObjKind(KindBound) {
		target = target.AsBound().Method
	}
	if target.IsClosure() {
		if sc := target.AsClosure().Fn; !sc.Variadic {
			args = args[:min(len(args), sc.Arity)]
		}
	}
	return s.callback(fn, args...)
}

func arrConstruct(s *State, cs *CallState) Value {
	items := make([]Value, 0, len(cs.Args))
	if len(cs.Args) == 1 && cs.Args[0].IsNumber() {
		n := max(cs.Args[0].AsInt(), 0)
		items = make([]Value, n)
		for i := range items {
			items[i] = Null()
		}
	} else {
		items = append(items, cs.Args...)
	}
	return FromObject(s.NewArray(items))
}

func arrLength(s *State, cs *CallState) Value {
	return Number(float64(len(thisArray(cs).Items)))
}

func arrPush(s *State, cs *CallState) Value {
	a := thisArray(cs)
	a.Items = append(a.Items, cs.Args...)
	s.accountBytes(len(cs.Args) * sizeValue)
	return cs.This
}

func arrPop(s *State, cs *CallState) Value {
	a := thisArray(cs)
	if len(a.Items) == 0 {
		return Null()
	}
	v := a.Items[len(a.Items)-1]
	a.Items = a.Items[:len(a.Items)-1]
	return v
}

func arrShift(s *State, cs *CallState) Value {
	a := thisArray(cs)
	if len(a.Items) == 0 {
		return Null()
	}
	v := a.Items[0]
	a.Items = slices.Delete(a.Items, 0, 1)
	return v
}

func arrUnshift(s *State, cs *CallState) Value {
	a := thisArray(cs)
	a.Items = slices.Insert(a.Items, 0, cs.Args...)
	s.accountBytes(len(cs.Args) * sizeValue)
	return cs.This
}

func arrInsert(s *State, cs *CallState) Value {
	if !cs.CheckCount(2) || !cs.CheckType(0, Value.IsNumber, "number") {
		return Value{}
	}
	a := thisArray(cs)
	i := normIndex(cs.Args[0].AsInt(), len(a.Items))
	if i < 0 || i > len(a.Items) {
		return s.Raise(s.classes.indexError, "array index %d out of range", cs.Args[0].AsInt())
	}
	a.Items = slices.Insert(a.Items, i, cs.Args[1])
	return cs.This
}

func arrRemoveAt(s *State, cs *CallState) Value {
	if !cs.CheckCount(1) || !cs.CheckType(0, Value.IsNumber, "number") {
		return Value{}
	}
	a := thisArray(cs)
	i := normIndex(cs.Args[0].AsInt(), len(a.Items))
	if i < 0 || i >= len(a.Items) {
		return s.Raise(s.classes.indexError, "array index %d out of range", cs.Args[0].AsInt())
	}
	v := a.Items[i]
	a.Items = slices.Delete(a.Items, i, i+1)
	return v
}

func arrClear(s *State, cs *CallState) Value {
	a := thisArray(cs)
	clear(a.Items)
	a.Items = a.Items[:0]
	return cs.This
}

func arrFirst(s *State, cs *CallState) Value {
	a := thisArray(cs)
	if len(a.Items) == 0 {
		return Null()
	}
	return a.Items[0]
}

func arrLast(s *State, cs *CallState) Value {
	a := thisArray(cs)
	if len(a.Items) == 0 {
		return Null()
	}
	return a.Items[len(a.Items)-1]
}

func arrIndexOf(s *State, cs *CallState) Value {
	if !cs.CheckCount(1) {
		return Value{}
	}
	for i, v := range thisArray(cs).Items {
		if Equal(v, cs.Args[0]) {
			return Number(float64(i))
		}
	}
	return Number(-1)
}

func arrContains(s *State, cs *CallState) Value {
	if !cs.CheckCount(1) {
		return Value{}
	}
	return Bool(slices.ContainsFunc(thisArray(cs).Items, func(v Value) bool {
		return Equal(v, cs.Args[0])
	}))
}

func arrReverse(s *State, cs *CallState) Value {
	slices.Reverse(thisArray(cs).Items)
	return cs.This
}

// compareValues orders numbers numerically and strings bytewise. Values of
// different types are ordered by type name.
func (s *State) compareValues(a, b Value) int {
	switch {
	case a.IsNumber() && b.IsNumber():
		return cmp.Compare(a.num, b.num)
	case a.IsString() && b.IsString():
		return strings.Compare(a.AsString().Chars, b.AsString().Chars)
	case a.IsBool() && b.IsBool():
		return cmp.Compare(a.num, b.num)
	}
	return strings.Compare(s.TypeName(a), s.TypeName(b))
}

func arrSort(s *State, cs *CallState) Value {
	if !cs.CheckCountRange(0, 1) {
		return Value{}
	}
	a := thisArray(cs)
	if len(cs.Args) == 0 {
		slices.SortStableFunc(a.Items, s.compareValues)
		return cs.This
	}
	if !cs.CheckBy(0, Value.IsCallable, "function") {
		return Value{}
	}
	fn := cs.Args[0]
	failed := false
	sorted := slices.Clone(a.Items)
	s.GCProtect(FromObject(s.NewArray(sorted)))
	slices.SortStableFunc(sorted, func(x, y Value) int {
		if failed {
			return 0
		}
		r, ok := s.iterCallback(fn, x, y)
		if !ok {
			failed = true
			return 0
		}
		if !r.IsNumber() {
			if r.IsFalse() {
				return 1
			}
			return -1
		}
		return cmp.Compare(r.num, 0)
	})
	if failed {
		return Value{}
	}
	copy(a.Items, sorted)
	return cs.This
}

func arrJoin(s *State, cs *CallState) Value {
	if !cs.CheckCountRange(0, 1) {
		return Value{}
	}
	sep := ""
	if len(cs.Args) == 1 {
		if !cs.CheckType(0, Value.IsString, "string") {
			return Value{}
		}
		sep = cs.Args[0].AsString().Chars
	}
	items := thisArray(cs).Items
	parts := make([]string, 0, len(items))
	for _, v := range items {
		str, ok := s.stringify(v)
		if !ok {
			return s.RaiseValue(s.pop())
		}
		parts = append(parts, str.Chars)
	}
	return s.String(strings.Join(parts, sep))
}

func arrSlice(s *State, cs *CallState) Value {
	if !cs.CheckCountRange(1, 2) {
		return Value{}
	}
	a := thisArray(cs)
	lo, hi, ok := sliceBounds(cs.Arg(0), cs.Arg(1), len(a.Items))
	if !ok {
		return s.Raise(s.classes.typeError, "slice bounds must be numbers")
	}
	return FromObject(s.NewArray(slices.Clone(a.Items[lo:hi])))
}

func arrCopy(s *State, cs *CallState) Value {
	return FromObject(s.NewArray(slices.Clone(thisArray(cs).Items)))
}

func arrMap(s *State, cs *CallState) Value {
	if !cs.CheckCount(1) || !cs.CheckBy(0, Value.IsCallable, "function") {
		return Value{}
	}
	src := thisArray(cs)
	out := s.NewArray(make([]Value, 0, len(src.Items)))
	s.GCProtect(FromObject(out))
	for i := 0; i < len(src.Items); i++ {
		r, ok := s.iterCallback(cs.Args[0], src.Items[i], Number(float64(i)))
		if !ok {
			return Value{}
		}
		out.Items = append(out.Items, r)
	}
	return FromObject(out)
}

func arrFilter(s *State, cs *CallState) Value {
	if !cs.CheckCount(1) || !cs.CheckBy(0, Value.IsCallable, "function") {
		return Value{}
	}
	src := thisArray(cs)
	out := s.NewArray(nil)
	s.GCProtect(FromObject(out))
	for i := 0; i < len(src.Items); i++ {
		v := src.Items[i]
		r, ok := s.iterCallback(cs.Args[0], v, Number(float64(i)))
		if !ok {
			return Value{}
		}
		if !r.IsFalse() {
			out.Items = append(out.Items, v)
		}
	}
	return FromObject(out)
}

func arrReduce(s *State, cs *CallState) Value {
	if !cs.CheckCountRange(1, 2) || !cs.CheckBy(0, Value.IsCallable, "function") {
		return Value{}
	}
	items := thisArray(cs).Items
	start := 0
	acc := Null()
	if len(cs.Args) == 2 {
		acc = cs.Args[1]
	} else if len(items) > 0 {
		acc = items[0]
		start = 1
	}
	// hold keeps the accumulator reachable between callbacks.
	hold := s.NewArray([]Value{acc})
	s.GCProtect(FromObject(hold))
	for i := start; i < len(thisArray(cs).Items); i++ {
		r, ok := s.iterCallback(cs.Args[0], hold.Items[0], thisArray(cs).Items[i], Number(float64(i)))
		if !ok {
			return Value{}
		}
		hold.Items[0] = r
	}
	return hold.Items[0]
}

func arrEach(s *State, cs *CallState) Value {
	if !cs.CheckCount(1) || !cs.CheckBy(0, Value.IsCallable, "function") {
		return Value{}
	}
	a := thisArray(cs)
	for i := 0; i < len(a.Items); i++ {
		if _, ok := s.iterCallback(cs.Args[0], a.Items[i], Number(float64(i))); !ok {
			return Value{}
		}
	}
	return Null()
}

func (s *State) arrTest(cs *CallState, want bool) Value {
	if !cs.CheckCount(1) || !cs.CheckBy(0, Value.IsCallable, "function") {
		return Value{}
	}
	a := thisArray(cs)
	for i := 0; i < len(a.Items); i++ {
		r, ok := s.iterCallback(cs.Args[0], a.Items[i], Number(float64(i)))
		if !ok {
			return Value{}
		}
		if !r.IsFalse() == want {
			return Bool(want)
		}
	}
	return Bool(!want)
}

func arrSome(s *State, cs *CallState) Value { return s.arrTest(cs, true) }

func arrEvery(s *State, cs *CallState) Value { return s.arrTest(cs, false) }

func arrToDict(s *State, cs *CallState) Value {
	d := s.NewDict()
	s.GCProtect(FromObject(d))
	for i, v := range thisArray(cs).Items {
		s.DictSet(d, Number(float64(i)), v)
	}
	return FromObject(d)
}

func arrIter(s *State, cs *CallState) Value {
	if !cs.CheckCount(1) || !cs.CheckType(0, Value.IsNumber, "number") {
		return Value{}
	}
	items := thisArray(cs).Items
	i := cs.Args[0].AsInt()
	if i < 0 || i >= len(items) {
		return Null()
	}
	return items[i]
}

func arrIterN(s *State, cs *CallState) Value {
	if !cs.CheckCount(1) {
		return Value{}
	}
	return iterNext(cs.Args[0], len(thisArray(cs).Items))
}
