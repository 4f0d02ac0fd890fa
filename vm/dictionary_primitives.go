package vm

import "slices"

// ---------------------------------------------------------------------------
// Dictionary methods
// ---------------------------------------------------------------------------

var dictClassDef = ClassDef{
	Name: "Dictionary",
	Fields: []FieldDef{
		{Name: "length", IsGetter: true, Getter: dictLength},
	},
	Functions: []FuncDef{
		{Name: "constructor", Fn: dictConstruct},
		{Name: "length", Fn: dictLength},
		{Name: "set", Fn: dictSetMethod},
		{Name: "get", Fn: dictGet},
		{Name: "remove", Fn: dictRemove},
		{Name: "contains", Fn: dictContains},
		{Name: "keys", Fn: dictKeys},
		{Name: "values", Fn: dictValues},
		{Name: "clear", Fn: dictClear},
		{Name: "copy", Fn: dictCopy},
		{Name: "extend", Fn: dictExtend},
		{Name: "each", Fn: dictEach},
		{Name: "to_list", Fn: dictToList},
		{Name: "@iter", Fn: dictIter},
		{Name: "@itern", Fn: dictIterN},
	},
}

func thisDict(cs *CallState) *Dict { return cs.This.AsDict() }

func dictConstruct(s *State, cs *CallState) Value {
	return FromObject(s.NewDict())
}

func dictLength(s *State, cs *CallState) Value {
	return Number(float64(len(thisDict(cs).Keys)))
}

func dictSetMethod(s *State, cs *CallState) Value {
	if !cs.CheckCount(2) {
		return Value{}
	}
	if !s.DictSet(thisDict(cs), cs.Args[0], cs.Args[1]) {
		return Value{}
	}
	return cs.This
}

func dictGet(s *State, cs *CallState) Value {
	if !cs.CheckCountRange(1, 2) {
		return Value{}
	}
	if v, ok := thisDict(cs).Table.GetValue(cs.Args[0]); ok {
		return v
	}
	return cs.Arg(1)
}

func dictRemove(s *State, cs *CallState) Value {
	if !cs.CheckCount(1) {
		return Value{}
	}
	d := thisDict(cs)
	v, ok := d.Table.GetValue(cs.Args[0])
	if !ok {
		return Null()
	}
	DictRemove(d, cs.Args[0])
	return v
}

func dictContains(s *State, cs *CallState) Value {
	if !cs.CheckCount(1) {
		return Value{}
	}
	_, ok := thisDict(cs).Table.Get(cs.Args[0])
	return Bool(ok)
}

func dictKeys(s *State, cs *CallState) Value {
	return FromObject(s.NewArray(slices.Clone(thisDict(cs).Keys)))
}

func dictValues(s *State, cs *CallState) Value {
	d := thisDict(cs)
	out := make([]Value, 0, len(d.Keys))
	for _, k := range d.Keys {
		v, _ := d.Table.GetValue(k)
		out = append(out, v)
	}
	return FromObject(s.NewArray(out))
}

func dictClear(s *State, cs *CallState) Value {
	d := thisDict(cs)
	d.Keys = nil
	d.Table.Clear()
	return cs.This
}

func dictCopy(s *State, cs *CallState) Value {
	src := thisDict(cs)
	d := s.NewDict()
	d.Keys = slices.Clone(src.Keys)
	src.Table.CopyTo(&d.Table)
	return FromObject(d)
}

func dictExtend(s *State, cs *CallState) Value {
	if !cs.CheckCount(1) || !cs.CheckType(0, Value.IsDict, "dictionary") {
		return Value{}
	}
	d := thisDict(cs)
	other := cs.Args[0].AsDict()
	for _, k := range other.Keys {
		v, _ := other.Table.GetValue(k)
		s.DictSet(d, k, v)
	}
	return cs.This
}

func dictEach(s *State, cs *CallState) Value {
	if !cs.CheckCount(1) || !cs.CheckBy(0, Value.IsCallable, "function") {
		return Value{}
	}
	d := thisDict(cs)
	keys := s.NewArray(slices.Clone(d.Keys))
	s.GCProtect(FromObject(keys))
	for _, k := range keys.Items {
		v, ok := d.Table.GetValue(k)
		if !ok {
			continue
		}
		if _, ok := s.iterCallback(cs.Args[0], v, k); !ok {
			return Value{}
		}
	}
	return Null()
}

// dictToList returns [keys, values].
func dictToList(s *State, cs *CallState) Value {
	keys := dictKeys(s, cs)
	s.GCProtect(keys)
	values := dictValues(s, cs)
	s.GCProtect(values)
	return FromObject(s.NewArray([]Value{keys, values}))
}

func dictIter(s *State, cs *CallState) Value {
	if !cs.CheckCount(1) {
		return Value{}
	}
	v, ok := thisDict(cs).Table.GetValue(cs.Args[0])
	if !ok {
		return Null()
	}
	return v
}

// dictIterN walks the insertion-ordered key list: null yields the first
// key, any other key yields its successor.
func dictIterN(s *State, cs *CallState) Value {
	if !cs.CheckCount(1) {
		return Value{}
	}
	keys := thisDict(cs).Keys
	if cs.Args[0].IsNull() {
		if len(keys) == 0 {
			return Null()
		}
		return keys[0]
	}
	for i, k := range keys {
		if Equal(k, cs.Args[0]) {
			if i+1 < len(keys) {
				return keys[i+1]
			}
			return Null()
		}
	}
	return Null()
}
