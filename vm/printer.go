package vm

import (
	"math"
	"strconv"
	"strings"
)

// TypeName returns the name typeof reports for v.
func (s *State) TypeName(v Value) string {
	switch v.typ {
	case ValEmpty:
		return "empty"
	case ValNull:
		return "null"
	case ValBool:
		return "boolean"
	case ValNumber:
		return "number"
	}
	return v.obj.header().kind.String()
}

// FormatNumber renders a number the way echo does: integral values print
// without a fraction, others with up to 16 significant digits.
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "infinity"
	case math.IsInf(f, -1):
		return "-infinity"
	}
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', 16, 64)
}

// Format renders v as text without calling back into script code.
func (s *State) Format(v Value) string {
	var b strings.Builder
	p := printer{b: &b, seen: map[Object]bool{}}
	p.value(v, false)
	return b.String()
}

type printer struct {
	b    *strings.Builder
	seen map[Object]bool
}

func (p *printer) value(v Value, nested bool) {
	switch v.typ {
	case ValEmpty:
		return
	case ValNull:
		p.b.WriteString("null")
		return
	case ValBool:
		if v.AsBool() {
			p.b.WriteString("true")
		} else {
			p.b.WriteString("false")
		}
		return
	case ValNumber:
		p.b.WriteString(FormatNumber(v.num))
		return
	}
	p.object(v.obj, nested)
}

func (p *printer) object(o Object, nested bool) {
	switch x := o.(type) {
	case *String:
		if nested {
			p.b.WriteString(strconv.Quote(x.Chars))
		} else {
			p.b.WriteString(x.Chars)
		}
	case *Array:
		if p.seen[o] {
			p.b.WriteString("[...]")
			return
		}
		p.seen[o] = true
		p.b.WriteByte('[')
		for i, it := range x.Items {
			if i > 0 {
				p.b.WriteString(", ")
			}
			p.value(it, true)
		}
		p.b.WriteByte(']')
		delete(p.seen, o)
	case *Dict:
		if p.seen[o] {
			p.b.WriteString("{...}")
			return
		}
		p.seen[o] = true
		p.b.WriteByte('{')
		for i, k := range x.Keys {
			if i > 0 {
				p.b.WriteString(", ")
			}
			p.value(k, true)
			p.b.WriteString(": ")
			if val, ok := x.Table.GetValue(k); ok {
				p.value(val, true)
			}
		}
		p.b.WriteByte('}')
		delete(p.seen, o)
	case *Range:
		p.b.WriteString("<range ")
		p.b.WriteString(strconv.Itoa(x.Lower))
		p.b.WriteString("..")
		p.b.WriteString(strconv.Itoa(x.Upper))
		p.b.WriteByte('>')
	case *File:
		p.b.WriteString("<file at ")
		if x.Path != nil {
			p.b.WriteString(x.Path.Chars)
		}
		p.b.WriteString(" in mode ")
		if x.Mode != nil {
			p.b.WriteString(x.Mode.Chars)
		}
		p.b.WriteByte('>')
	case *FuncScript:
		p.b.WriteString("<function " + funcName(x) + ">")
	case *FuncClosure:
		p.b.WriteString("<function " + funcName(x.Fn) + ">")
	case *FuncBound:
		p.b.WriteString("<bound ")
		p.value(x.Method, true)
		p.b.WriteByte('>')
	case *FuncNative:
		p.b.WriteString("<function " + x.Name + "(native)>")
	case *Class:
		p.b.WriteString("<class " + x.Name.Chars + ">")
	case *Instance:
		p.b.WriteString("<instance of " + x.Class.Name.Chars + ">")
	case *Module:
		p.b.WriteString("<module " + x.Name.Chars + " at " + x.Path.Chars + ">")
	case *Upvalue:
		p.b.WriteString("<upvalue>")
	case *Switch:
		p.b.WriteString("<switch>")
	case *Userdata:
		p.b.WriteString("<userdata " + x.Name + ">")
	}
}
