package vm

import "math"

var numberClassDef = ClassDef{
	Name: "Number",
	Functions: []FuncDef{
		{Name: "constructor", Fn: numConstruct},
		{Name: "to_string", Fn: numToString},
		{Name: "floor", Fn: numFloor},
		{Name: "ceil", Fn: numCeil},
		{Name: "round", Fn: numRound},
		{Name: "abs", Fn: numAbs},
		{Name: "is_integer", Fn: numIsInteger},
	},
}

func numConstruct(s *State, cs *CallState) Value {
	if !cs.CheckCountRange(0, 1) {
		return Value{}
	}
	if len(cs.Args) == 0 {
		return Number(0)
	}
	return toNumber(cs.Args[0])
}

// toNumber implements to_number for any value.
func toNumber(v Value) Value {
	switch {
	case v.IsNumber():
		return v
	case v.IsBool():
		if v.AsBool() {
			return Number(1)
		}
		return Number(0)
	case v.IsNull(), v.IsEmpty():
		return Number(0)
	case v.IsString():
		if n := parseNumber(v.AsString().Chars); !n.IsNull() {
			return n
		}
		return Number(0)
	}
	return Number(0)
}

func numToString(s *State, cs *CallState) Value { return s.String(FormatNumber(cs.This.num)) }

func numFloor(s *State, cs *CallState) Value { return Number(math.Floor(cs.This.num)) }

func numCeil(s *State, cs *CallState) Value { return Number(math.Ceil(cs.This.num)) }

func numRound(s *State, cs *CallState) Value { return Number(math.Round(cs.This.num)) }

func numAbs(s *State, cs *CallState) Value { return Number(math.Abs(cs.This.num)) }

func numIsInteger(s *State, cs *CallState) Value {
	return Bool(cs.This.num == math.Trunc(cs.This.num))
}
