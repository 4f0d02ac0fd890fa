package vm

import (
	"os"
	"strings"
)

// builtinClasses holds the classes the runtime itself dispatches on.
type builtinClasses struct {
	object   *Class
	number   *Class
	string   *Class
	array    *Class
	dict     *Class
	rangeCls *Class
	file     *Class
	function *Class

	exception      *Class
	argumentError  *Class
	assertionError *Class
	typeError      *Class
	indexError     *Class
	keyError       *Class
	valueError     *Class
	stackOverflow  *Class
	ioError        *Class
}

func (b *builtinClasses) all() []*Class {
	return []*Class{
		b.object, b.number, b.string, b.array, b.dict, b.rangeCls, b.file, b.function,
		b.exception, b.argumentError, b.assertionError, b.typeError, b.indexError,
		b.keyError, b.valueError, b.stackOverflow, b.ioError,
	}
}

func (b *builtinClasses) mark(s *State) {
	for _, c := range b.all() {
		if c != nil {
			s.MarkObject(c)
		}
	}
}

// Class returns the global class named name, or nil.
func (s *State) Class(name string) *Class {
	v, ok := s.Global(name)
	if !ok || !v.IsClass() {
		return nil
	}
	return v.AsClass()
}

// ExceptionClass returns the root Exception class.
func (s *State) ExceptionClass() *Class { return s.classes.exception }

// ArgumentErrorClass returns the class raised by argument validators.
func (s *State) ArgumentErrorClass() *Class { return s.classes.argumentError }

// TypeErrorClass returns the class raised on operand type mismatches.
func (s *State) TypeErrorClass() *Class { return s.classes.typeError }

// IOErrorClass returns the class raised by file operations.
func (s *State) IOErrorClass() *Class { return s.classes.ioError }

func (s *State) defineBuiltinClass(def ClassDef) *Class {
	cls, err := s.buildNativeClass(def)
	if err != nil {
		panic(err)
	}
	s.DefineGlobal(def.Name, FromObject(cls))
	return cls
}

// bootstrap installs builtin classes, exception classes, globals and the
// importable native modules.
func (s *State) bootstrap() {
	c := &s.classes
	c.exception = s.newExceptionClass("Exception", nil)
	c.argumentError = s.newExceptionClass("ArgumentError", c.exception)
	c.assertionError = s.newExceptionClass("AssertionError", c.exception)
	c.typeError = s.newExceptionClass("TypeError", c.exception)
	c.indexError = s.newExceptionClass("IndexError", c.exception)
	c.keyError = s.newExceptionClass("KeyError", c.exception)
	c.valueError = s.newExceptionClass("ValueError", c.exception)
	c.stackOverflow = s.newExceptionClass("StackOverflowError", c.exception)
	c.ioError = s.newExceptionClass("IOError", c.exception)

	c.object = s.defineBuiltinClass(objectClassDef)
	c.number = s.defineBuiltinClass(numberClassDef)
	c.string = s.defineBuiltinClass(stringClassDef)
	c.array = s.defineBuiltinClass(arrayClassDef)
	c.dict = s.defineBuiltinClass(dictClassDef)
	c.rangeCls = s.defineBuiltinClass(rangeClassDef)
	c.file = s.defineBuiltinClass(fileClassDef)
	c.function = s.defineBuiltinClass(functionClassDef)

	s.installGlobals()
	s.RegisterModule(osModule)
	s.RegisterModule(mathModule)
	s.RegisterModule(ioModule)
}

func (s *State) installGlobals() {
	for _, f := range globalFunctions {
		s.DefineNative(f.Name, f.Fn)
	}

	s.DefineGlobal("STDIN", FromObject(s.newStdFile("<stdin>", "r", s.config.Stdin, nil)))
	s.DefineGlobal("STDOUT", FromObject(s.newStdFile("<stdout>", "w", nil, s.config.Stdout)))
	s.DefineGlobal("STDERR", FromObject(s.newStdFile("<stderr>", "w", nil, s.config.Stderr)))

	argv := s.NewArray(nil)
	s.pushRoot(FromObject(argv))
	for _, a := range s.config.Args {
		argv.Items = append(argv.Items, s.String(a))
	}
	s.DefineGlobal("ARGV", FromObject(argv))
	s.popRoots(1)

	env := s.NewDict()
	s.pushRoot(FromObject(env))
	for _, kv := range os.Environ() {
		k, v, _ := strings.Cut(kv, "=")
		key := s.String(k)
		s.pushRoot(key)
		s.dictSet(env, key, s.String(v))
		s.popRoots(1)
	}
	s.DefineGlobal("ENV", FromObject(env))
	s.popRoots(1)
}
