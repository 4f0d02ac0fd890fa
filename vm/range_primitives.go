package vm

var rangeClassDef = ClassDef{
	Name: "Range",
	Functions: []FuncDef{
		{Name: "constructor", Fn: rangeConstruct},
		{Name: "lower", Fn: rangeLower},
		{Name: "upper", Fn: rangeUpper},
		{Name: "range", Fn: rangeSpan},
		{Name: "@iter", Fn: rangeIter},
		{Name: "@itern", Fn: rangeIterN},
	},
}

func thisRange(cs *CallState) *Range { return cs.This.AsRange() }

func rangeConstruct(s *State, cs *CallState) Value {
	if !cs.CheckCount(2) || !cs.CheckType(0, Value.IsNumber, "number") || !cs.CheckType(1, Value.IsNumber, "number") {
		return Value{}
	}
	return FromObject(s.NewRange(cs.Args[0].AsInt(), cs.Args[1].AsInt()))
}

func rangeLower(s *State, cs *CallState) Value { return Number(float64(thisRange(cs).Lower)) }

func rangeUpper(s *State, cs *CallState) Value { return Number(float64(thisRange(cs).Upper)) }

func rangeSpan(s *State, cs *CallState) Value { return Number(float64(thisRange(cs).Span)) }

// rangeIter yields lower for the first key and then steps lower toward
// upper, one per call. The range itself is the cursor.
func rangeIter(s *State, cs *CallState) Value {
	if !cs.CheckCount(1) || !cs.CheckType(0, Value.IsNumber, "number") {
		return Value{}
	}
	r := thisRange(cs)
	if cs.Args[0].AsInt() == 0 {
		return Number(float64(r.Lower))
	}
	if r.Lower > r.Upper {
		r.Lower--
	} else {
		r.Lower++
	}
	return Number(float64(r.Lower))
}

func rangeIterN(s *State, cs *CallState) Value {
	if !cs.CheckCount(1) {
		return Value{}
	}
	return iterNext(cs.Args[0], thisRange(cs).Span)
}
