package vm

import (
	"math"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// os
// ---------------------------------------------------------------------------

var osModule = &ModuleDef{
	Name: "os",
	Fields: []FieldDef{
		{Name: "platform", Value: func(s *State) Value { return s.String(runtime.GOOS) }},
		{Name: "args", Value: func(s *State) Value {
			arr := s.NewArray(nil)
			s.pushRoot(FromObject(arr))
			for _, a := range s.config.Args {
				arr.Items = append(arr.Items, s.String(a))
			}
			s.popRoots(1)
			return FromObject(arr)
		}},
	},
	Functions: []FuncDef{
		{Name: "getenv", Fn: osGetenv},
		{Name: "setenv", Fn: osSetenv},
		{Name: "cwd", Fn: osCwd},
		{Name: "exit", Fn: osExit},
		{Name: "exec", Fn: osExec},
		{Name: "readdir", Fn: osReadDir},
		{Name: "remove", Fn: osRemove},
		{Name: "mkdir", Fn: osMkdir},
		{Name: "stat", Fn: osStat},
		{Name: "uuid", Fn: osUUID},
	},
}

func osGetenv(s *State, cs *CallState) Value {
	if !cs.CheckCount(1) || !cs.CheckType(0, Value.IsString, "string") {
		return Value{}
	}
	v, ok := os.LookupEnv(cs.Args[0].AsString().Chars)
	if !ok {
		return Null()
	}
	return s.String(v)
}

func osSetenv(s *State, cs *CallState) Value {
	if !cs.CheckCount(2) || !cs.CheckType(0, Value.IsString, "string") || !cs.CheckType(1, Value.IsString, "string") {
		return Value{}
	}
	if err := os.Setenv(cs.Args[0].AsString().Chars, cs.Args[1].AsString().Chars); err != nil {
		return s.Raise(s.classes.ioError, "setenv: %v", err)
	}
	return Bool(true)
}

func osCwd(s *State, cs *CallState) Value {
	wd, err := os.Getwd()
	if err != nil {
		return s.Raise(s.classes.ioError, "cwd: %v", err)
	}
	return s.String(wd)
}

func osExit(s *State, cs *CallState) Value {
	if !cs.CheckCountRange(0, 1) {
		return Value{}
	}
	code := 0
	if len(cs.Args) == 1 {
		if !cs.CheckType(0, Value.IsNumber, "number") {
			return Value{}
		}
		code = cs.Args[0].AsInt()
	}
	vmLog.Infof("exit(%d) requested by script", code)
	os.Exit(code)
	return Null()
}

// osExec runs a shell command and returns its combined output.
func osExec(s *State, cs *CallState) Value {
	if !cs.CheckCount(1) || !cs.CheckType(0, Value.IsString, "string") {
		return Value{}
	}
	out, err := exec.Command("sh", "-c", cs.Args[0].AsString().Chars).CombinedOutput()
	if err != nil {
		if _, exited := err.(*exec.ExitError); !exited {
			return s.Raise(s.classes.ioError, "exec: %v", err)
		}
	}
	return FromObject(s.TakeString(out))
}

func osReadDir(s *State, cs *CallState) Value {
	if !cs.CheckCount(1) || !cs.CheckType(0, Value.IsString, "string") {
		return Value{}
	}
	entries, err := os.ReadDir(cs.Args[0].AsString().Chars)
	if err != nil {
		return s.Raise(s.classes.ioError, "readdir: %v", err)
	}
	arr := s.NewArray(make([]Value, 0, len(entries)))
	s.GCProtect(FromObject(arr))
	for _, e := range entries {
		arr.Items = append(arr.Items, s.String(e.Name()))
	}
	return FromObject(arr)
}

func osRemove(s *State, cs *CallState) Value {
	if !cs.CheckCount(1) || !cs.CheckType(0, Value.IsString, "string") {
		return Value{}
	}
	if err := os.RemoveAll(cs.Args[0].AsString().Chars); err != nil {
		return s.Raise(s.classes.ioError, "remove: %v", err)
	}
	return Bool(true)
}

func osMkdir(s *State, cs *CallState) Value {
	if !cs.CheckCount(1) || !cs.CheckType(0, Value.IsString, "string") {
		return Value{}
	}
	if err := os.MkdirAll(cs.Args[0].AsString().Chars, 0o755); err != nil {
		return s.Raise(s.classes.ioError, "mkdir: %v", err)
	}
	return Bool(true)
}

func osStat(s *State, cs *CallState) Value {
	if !cs.CheckCount(1) || !cs.CheckType(0, Value.IsString, "string") {
		return Value{}
	}
	st, err := os.Stat(cs.Args[0].AsString().Chars)
	if err != nil {
		return s.Raise(s.classes.ioError, "stat: %v", err)
	}
	d := s.NewDict()
	s.GCProtect(FromObject(d))
	set := func(k string, v Value) {
		key := s.String(k)
		s.GCProtect(key)
		s.DictSet(d, key, v)
	}
	set("name", s.String(st.Name()))
	set("size", Number(float64(st.Size())))
	set("mode", Number(float64(st.Mode().Perm())))
	set("is_dir", Bool(st.IsDir()))
	set("mtime", Number(float64(st.ModTime().Unix())))
	return FromObject(d)
}

func osUUID(s *State, cs *CallState) Value {
	return s.String(uuid.NewString())
}

// ---------------------------------------------------------------------------
// math
// ---------------------------------------------------------------------------

var mathModule = &ModuleDef{
	Name: "math",
	Fields: []FieldDef{
		{Name: "pi", Value: func(*State) Value { return Number(math.Pi) }},
		{Name: "e", Value: func(*State) Value { return Number(math.E) }},
	},
	Functions: []FuncDef{
		{Name: "sin", Fn: mathUnary(math.Sin)},
		{Name: "cos", Fn: mathUnary(math.Cos)},
		{Name: "tan", Fn: mathUnary(math.Tan)},
		{Name: "sqrt", Fn: mathUnary(math.Sqrt)},
		{Name: "floor", Fn: mathUnary(math.Floor)},
		{Name: "ceil", Fn: mathUnary(math.Ceil)},
		{Name: "round", Fn: mathUnary(math.Round)},
		{Name: "abs", Fn: mathUnary(math.Abs)},
		{Name: "log", Fn: mathUnary(math.Log)},
		{Name: "exp", Fn: mathUnary(math.Exp)},
		{Name: "pow", Fn: mathPow},
		{Name: "min", Fn: globalMin},
		{Name: "max", Fn: globalMax},
	},
}

func mathUnary(f func(float64) float64) NativeFn {
	return func(s *State, cs *CallState) Value {
		if !cs.CheckCount(1) || !cs.CheckType(0, Value.IsNumber, "number") {
			return Value{}
		}
		return Number(f(cs.Args[0].num))
	}
}

func mathPow(s *State, cs *CallState) Value {
	if !cs.CheckCount(2) || !cs.CheckType(0, Value.IsNumber, "number") || !cs.CheckType(1, Value.IsNumber, "number") {
		return Value{}
	}
	return Number(math.Pow(cs.Args[0].num, cs.Args[1].num))
}

// ---------------------------------------------------------------------------
// io
// ---------------------------------------------------------------------------

var ioModule = &ModuleDef{
	Name: "io",
	Functions: []FuncDef{
		{Name: "read_line", Fn: ioReadLine},
		{Name: "readfile", Fn: fileStaticRead},
		{Name: "writefile", Fn: ioWriteFile},
	},
}

func ioReadLine(s *State, cs *CallState) Value {
	if !cs.CheckCountRange(0, 1) {
		return Value{}
	}
	if len(cs.Args) == 1 {
		str, ok := s.stringify(cs.Args[0])
		if !ok {
			return s.RaiseValue(s.pop())
		}
		s.config.Stdout.Write([]byte(str.Chars))
	}
	in, ok := s.Global("STDIN")
	if !ok || !in.IsFile() || in.AsFile().reader == nil {
		return s.Raise(s.classes.ioError, "standard input is not readable")
	}
	line, err := in.AsFile().reader.ReadString('\n')
	if line == "" && err != nil {
		return Null()
	}
	return s.String(strings.TrimRight(line, "\r\n"))
}

func ioWriteFile(s *State, cs *CallState) Value {
	if !cs.CheckCount(2) || !cs.CheckType(0, Value.IsString, "string") {
		return Value{}
	}
	str, ok := s.stringify(cs.Args[1])
	if !ok {
		return s.RaiseValue(s.pop())
	}
	if err := os.WriteFile(cs.Args[0].AsString().Chars, []byte(str.Chars), 0o644); err != nil {
		return s.Raise(s.classes.ioError, "writefile: %v", err)
	}
	return Number(float64(len(str.Chars)))
}
