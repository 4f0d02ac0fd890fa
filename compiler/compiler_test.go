package compiler

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/neon/vm"
)

// run interprets src in a fresh VM and returns its status, output and
// error stream.
func run(t *testing.T, src string) (vm.Status, string, string, error) {
	t.Helper()
	return runWith(t, vm.Config{}, src)
}

func runWith(t *testing.T, cfg vm.Config, src string) (vm.Status, string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cfg.Stdout = &stdout
	cfg.Stderr = &stderr
	s := vm.New(cfg)
	defer s.Close()
	s.UseCompiler(Compile)
	st, err := s.Interpret(src, "test.nn")
	return st, stdout.String(), stderr.String(), err
}

// expectOutput runs src and compares its standard output.
func expectOutput(t *testing.T, src, want string) {
	t.Helper()
	st, out, errOut, err := run(t, src)
	if st != vm.StatusOK {
		t.Fatalf("status = %v, err = %v, stderr = %q", st, err, errOut)
	}
	if out != want {
		t.Errorf("output mismatch\n got: %q\nwant: %q", out, want)
	}
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func TestArithmetic(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{"echo 1 + 2 * 3", "7"},
		{"echo (1 + 2) * 3", "9"},
		{"echo 7 / 2", "3.5"},
		{"echo 7 \\ 2", "3"},
		{"echo -7 \\ 2", "-4"},
		{"echo 7 % 3", "1"},
		{"echo 2 ** 10", "1024"},
		{"echo 6 & 3", "2"},
		{"echo 6 | 3", "7"},
		{"echo 6 ^ 3", "5"},
		{"echo 1 << 4", "16"},
		{"echo ~0", "-1"},
		{"echo -(3)", "-3"},
		{"echo 1 < 2", "true"},
		{"echo 2 <= 1", "false"},
		{"echo 2 >= 2", "true"},
		{"echo 1 != 1", "false"},
		{"echo \"a\" == \"a\"", "true"},
		{"echo !0", "false"},
		{"echo !-1", "true"},
		{"echo 1 < 2 ? \"yes\" : \"no\"", "yes"},
		{"echo null or 5", "5"},
		{"echo 1 and 2", "2"},
		{"echo \"n=\" + 4", "n=4"},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			expectOutput(t, tt.src, tt.want+"\n")
		})
	}
}

func TestCollections(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"sort", "echo [3, 1, 2].sort()", "[1, 2, 3]"},
		{"concat", "echo [1, 2] + [3]", "[1, 2, 3]"},
		{"repeat string", "echo \"ab\" * 3", "ababab"},
		{"length getter", "echo [1, 2, 3].length", "3"},
		{"length method", "echo \"four\".length()", "4"},
		{"index", "var a = [10, 20, 30]\necho a[1]", "20"},
		{"negative index", "var a = [10, 20, 30]\necho a[-1]", "30"},
		{"slice", "var a = [1, 2, 3, 4]\necho a[1:3]", "[2, 3]"},
		{"string slice", "echo \"hello\"[1:3]", "el"},
		{"index set", "var a = [1, 2]\na[0] = 5\necho a", "[5, 2]"},
		{"compound index", "var a = [1, 2]\na[1] += 10\necho a[1]", "12"},
		{"map", "echo [1, 2, 3].map(function(x) { return x * 2 })", "[2, 4, 6]"},
		{"filter", "echo [1, 2, 3, 4].filter(function(x) { return x % 2 == 0 })", "[2, 4]"},
		{"join", "echo [\"a\", \"b\"].join(\"-\")", "a-b"},
		{"string methods", "echo \"  Hi \".trim().upper()", "HI"},
		{"range", "echo 1..4", "<range 1..4>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectOutput(t, tt.src, tt.want+"\n")
		})
	}
}

func TestDictionary(t *testing.T) {
	expectOutput(t, `
var d = {"a": 1, b: 2}
d["c"] = 3
d.set("e", 5)
echo d.length
echo d["b"]
echo d.get("zz", "none")
echo d.remove("a")
echo d.contains("a")
echo d.length
`, "4\n2\nnone\n1\nfalse\n3\n")
}

func TestDictionaryOverwrite(t *testing.T) {
	expectOutput(t, `
var d = {}
d.set("a", 1)
d.set("a", 2)
echo d.length
echo d.get("a")
d.remove("a")
echo d.get("a", "default")
`, "1\n2\ndefault\n")
}

func TestStringInterpolation(t *testing.T) {
	expectOutput(t, `
var name = "neon"
var n = 3
echo "hello ${name}, ${n + 1} times"
echo "nested ${"inner ${n}"}"
`, "hello neon, 4 times\nnested inner 3\n")
}

// ---------------------------------------------------------------------------
// Variables and functions
// ---------------------------------------------------------------------------

func TestClosureCounter(t *testing.T) {
	expectOutput(t, `
function counter() {
	var n = 0
	return function() {
		n = n + 1
		return n
	}
}
var c = counter()
echo c()
echo c()
echo c()
`, "1\n2\n3\n")
}

func TestSharedUpvalue(t *testing.T) {
	expectOutput(t, `
function pair() {
	var v = 0
	var get = function() { return v }
	var set = function(x) { v = x }
	return [get, set]
}
var p = pair()
p[1](42)
echo p[0]()
`, "42\n")
}

func TestClosedUpvaluesAreIndependent(t *testing.T) {
	expectOutput(t, `
var fns = []
for (var i = 0; i < 3; i++) {
	var j = i
	fns.push(function() { return j })
}
echo fns[0]() + fns[1]() + fns[2]()
echo fns[2]()
`, "3\n2\n")
}

func TestArity(t *testing.T) {
	expectOutput(t, `
function two(a, b) { return typeof b }
echo two(1)
try {
	two(1, 2, 3)
} catch (e) {
	echo "too many"
}
`, "null\ntoo many\n")
}

func TestDefaultAndVariadicParams(t *testing.T) {
	expectOutput(t, `
function greet(who, greeting = "hello") {
	return greeting + " " + who
}
function count(first, ...rest) {
	return rest.length
}
echo greet("bob")
echo greet("bob", "hi")
echo count(1, 2, 3, 4)
echo count(1)
`, "hello bob\nhi bob\n3\n0\n")
}

func TestRecursion(t *testing.T) {
	expectOutput(t, `
function fib(n) {
	if (n < 2) return n
	return fib(n - 1) + fib(n - 2)
}
echo fib(15)
`, "610\n")
}

func TestIncrementOperators(t *testing.T) {
	expectOutput(t, `
var i = 1
i++
++i
i += 2
i *= 3
echo i
`, "15\n")
}

func TestTypeof(t *testing.T) {
	expectOutput(t, `
echo typeof 1
echo typeof "s"
echo typeof [1]
echo typeof null
`, "number\nstring\narray\nnull\n")
}

// ---------------------------------------------------------------------------
// Control flow
// ---------------------------------------------------------------------------

func TestLoops(t *testing.T) {
	expectOutput(t, `
var total = 0
for (var i = 0; i < 10; i++) {
	if (i == 2) continue
	if (i == 6) break
	total += i
}
echo total

var n = 0
while (n < 5) n++
echo n

var m = 0
do {
	m += 2
} while (m < 7)
echo m
`, "13\n5\n8\n")
}

func TestForeach(t *testing.T) {
	expectOutput(t, `
var out = ""
for (x in ["a", "b", "c"]) {
	out += x
}
echo out

var sum = 0
foreach (k, v in [5, 6, 7]) {
	sum += k * v
}
echo sum

var keys = []
for (k, v in {"one": 1}) {
	keys.push(k + "=" + v)
}
echo keys
`, "abc\n20\n[\"one=1\"]\n")
}

func TestNestedLoopBreak(t *testing.T) {
	expectOutput(t, `
var hits = 0
for (var i = 0; i < 3; i++) {
	for (var j = 0; j < 3; j++) {
		if (j == 1) break
		hits++
	}
}
echo hits
`, "3\n")
}

func TestSwitch(t *testing.T) {
	expectOutput(t, `
function name(n) {
	switch (n) {
	case 1:
		return "one"
	case 2, 3:
		return "few"
	case "x":
		return "letter"
	default:
		return "many"
	}
}
echo name(1)
echo name(3)
echo name("x")
echo name(9)

var hit = ""
switch (2) {
case 2:
	hit = "two"
	break
	hit = "unreachable"
}
echo hit
`, "one\nfew\nletter\nmany\ntwo\n")
}

// ---------------------------------------------------------------------------
// Classes
// ---------------------------------------------------------------------------

func TestClasses(t *testing.T) {
	expectOutput(t, `
class Animal {
	var sound = "..."
	constructor(name) {
		this.name = name
	}
	speak() {
		return this.name + " says " + this.sound
	}
	static function kind() {
		return "animal"
	}
}

class Dog extends Animal {
	var sound = "woof"
	constructor(name) {
		super(name + " the dog")
	}
	speak() {
		return super.speak() + "!"
	}
}

var d = Dog("rex")
echo d.speak()
echo Animal("cat").speak()
echo Animal.kind()
echo d instanceof Animal
echo Animal("x") instanceof Dog
`, "rex the dog says woof!\ncat says ...\nanimal\ntrue\nfalse\n")
}

func TestNewAndFields(t *testing.T) {
	expectOutput(t, `
class Point {
	var x = 0
	var y = 0
	constructor(x, y) {
		this.x = x
		this.y = y
	}
	move(dx) {
		this.x += dx
		return this
	}
}
var p = new Point(1, 2)
echo p.move(3).move(1).x
echo p.y
`, "5\n2\n")
}

// ---------------------------------------------------------------------------
// Exceptions
// ---------------------------------------------------------------------------

func TestCatchTypedException(t *testing.T) {
	expectOutput(t, `
class SomeError extends Exception {}

function f() {
	try {
		throw SomeError("x")
	} catch (SomeError e) {
		return e.message
	}
	return "not caught"
}
echo f()
`, "x\n")
}

func TestCatchSkipsOtherTypes(t *testing.T) {
	expectOutput(t, `
class AError extends Exception {}
class BError extends Exception {}

try {
	try {
		throw BError("b")
	} catch (AError e) {
		echo "wrong handler"
	}
} catch (BError e) {
	echo "outer " + e.message
}
`, "outer b\n")
}

func TestFinallyRethrows(t *testing.T) {
	expectOutput(t, `
try {
	try {
		throw Exception("boom")
	} finally {
		echo "cleanup"
	}
} catch (e) {
	echo "caught " + e.message
}
`, "cleanup\ncaught boom\n")
}

func TestFinallyAfterNormalExit(t *testing.T) {
	expectOutput(t, `
try {
	echo "body"
} catch (e) {
	echo "never"
} finally {
	echo "finally"
}
`, "body\nfinally\n")
}

func TestRuntimeErrorsAreCatchable(t *testing.T) {
	expectOutput(t, `
try {
	var x = 1 + []
} catch (TypeError e) {
	echo "type error"
}
try {
	undefinedName()
} catch (e) {
	echo "caught"
}
`, "type error\ncaught\n")
}

func TestUncaughtException(t *testing.T) {
	st, _, errOut, err := run(t, `
function inner() { throw Exception("deep") }
function outer() { inner() }
outer()
`)
	if st != vm.StatusFailRuntime {
		t.Fatalf("status = %v, want %v", st, vm.StatusFailRuntime)
	}
	var re *vm.RuntimeError
	if !errors.As(err, &re) {
		t.Fatalf("err = %v, want *vm.RuntimeError", err)
	}
	if re.Class != "Exception" || re.Message != "deep" {
		t.Errorf("got %s: %s", re.Class, re.Message)
	}
	if !strings.Contains(errOut, "unhandled Exception: deep") {
		t.Errorf("stderr = %q", errOut)
	}
	if !strings.Contains(errOut, "inner") {
		t.Errorf("trace does not name the throwing function: %q", errOut)
	}
}

func TestAssert(t *testing.T) {
	st, _, errOut, _ := run(t, `assert 1 == 2, "math is broken"`)
	if st != vm.StatusFailRuntime {
		t.Fatalf("status = %v, want %v", st, vm.StatusFailRuntime)
	}
	if !strings.Contains(errOut, "math is broken") {
		t.Errorf("stderr = %q", errOut)
	}
}

// ---------------------------------------------------------------------------
// Compile errors
// ---------------------------------------------------------------------------

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"const assign", "const a = 1\na = 2", "cannot assign to constant 'a'"},
		{"const without value", "const a", "requires an initializer"},
		{"break outside loop", "break", "'break' can only be used"},
		{"continue in switch", "switch (1) { case 1: continue }", "'continue' can only be used in a loop"},
		{"bad case label", "var x = 1\nswitch (1) { case x: echo 1 }", "case label must be a literal"},
		{"duplicate case", "switch (1) { case 1: echo 1\ncase 1: echo 2 }", "duplicate case label"},
		{"try alone", "try { echo 1 }", "expected 'catch' or 'finally'"},
		{"return in constructor", "class A { constructor() { return 1 } }", "cannot return a value from a constructor"},
		{"self inherit", "class A extends A {}", "cannot inherit from itself"},
		{"default order", "function f(a = 1, b) {}", "without default"},
		{"unclosed paren", "echo (1 + 2", "expected"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, _, _, err := run(t, tt.src)
			if st != vm.StatusFailCompile {
				t.Fatalf("status = %v, want %v", st, vm.StatusFailCompile)
			}
			var cerr *Error
			if !errors.As(err, &cerr) {
				t.Fatalf("err = %v, want *Error", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not contain %q", err, tt.want)
			}
		})
	}
}

func TestCompileErrorLine(t *testing.T) {
	_, _, _, err := run(t, "var a = 1\nvar b = 2\nconst c = 3\nc = 4\n")
	var cerr *Error
	if !errors.As(err, &cerr) {
		t.Fatalf("err = %v, want *Error", err)
	}
	if cerr.Line != 4 {
		t.Errorf("line = %d, want 4", cerr.Line)
	}
	if cerr.File != "test.nn" {
		t.Errorf("file = %q", cerr.File)
	}
}

// ---------------------------------------------------------------------------
// Modules and blobs
// ---------------------------------------------------------------------------

func TestImportModule(t *testing.T) {
	dir := t.TempDir()
	lib := "var greeting = \"hi\"\nfunction shout(s) { return s.upper() + \"!\" }\n"
	if err := os.WriteFile(filepath.Join(dir, "util"+vm.SourceExt), []byte(lib), 0o644); err != nil {
		t.Fatal(err)
	}

	st, out, errOut, err := runWith(t, vm.Config{ModulePaths: []string{dir}}, `
import util
import "util" as u2
echo util.shout(util.greeting)
echo u2.greeting
`)
	if st != vm.StatusOK {
		t.Fatalf("status = %v, err = %v, stderr = %q", st, err, errOut)
	}
	if out != "HI!\nhi\n" {
		t.Errorf("output = %q", out)
	}
}

func TestImportBuiltinModule(t *testing.T) {
	expectOutput(t, `
import math
echo math.sqrt(16)
echo math.floor(2.7)
`, "4\n2\n")
}

func TestImportMissing(t *testing.T) {
	st, _, _, _ := run(t, `import no_such_module_here`)
	if st != vm.StatusFailRuntime {
		t.Errorf("status = %v, want %v", st, vm.StatusFailRuntime)
	}
}

func TestCompiledBlobRuns(t *testing.T) {
	var out bytes.Buffer
	s := vm.New(vm.Config{Stdout: &out, Stderr: &out})
	defer s.Close()
	s.UseCompiler(Compile)

	src := `
function square(x) { return x * x }
var total = 0
for (v in [1, 2, 3]) total += square(v)
echo "total ${total}"
`
	mod := s.NewModule("blob", "blob.nn")
	fn, err := Compile(s, src, "blob.nn", mod)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	var buf bytes.Buffer
	if err := s.WriteBlob(&buf, fn); err != nil {
		t.Fatalf("WriteBlob: %v", err)
	}

	var out2 bytes.Buffer
	s2 := vm.New(vm.Config{Stdout: &out2, Stderr: &out2})
	defer s2.Close()
	loaded, err := s2.ReadBlob(&buf)
	if err != nil {
		t.Fatalf("ReadBlob: %v", err)
	}
	if st, err := s2.RunFunction(loaded); st != vm.StatusOK {
		t.Fatalf("status = %v, err = %v, output = %q", st, err, out2.String())
	}
	if got := out2.String(); got != "total 14\n" {
		t.Errorf("output = %q", got)
	}
}

func TestReplKeepsDefinitions(t *testing.T) {
	var out bytes.Buffer
	s := vm.New(vm.Config{Stdout: &out, Stderr: &out})
	defer s.Close()
	s.UseCompiler(Compile)

	for _, line := range []string{"var x = 20", "function add(n) { return x + n }", "echo add(22)"} {
		if st, err := s.Interpret(line, ""); st != vm.StatusOK {
			t.Fatalf("%q: status = %v, err = %v", line, st, err)
		}
	}
	if out.String() != "42\n" {
		t.Errorf("output = %q", out.String())
	}
}

func TestGCStress(t *testing.T) {
	// A tiny threshold forces collections in the middle of compilation and
	// execution.
	st, out, errOut, err := runWith(t, vm.Config{GCStart: 1024, GCGrowth: 1.1}, `
class Node {
	constructor(v, next) {
		this.v = v
		this.next = next
	}
}
var head = null
for (var i = 0; i < 500; i++) {
	head = Node("n" + i, head)
}
var count = 0
var words = []
while (head) {
	count++
	words.push(head.v)
	head = head.next
}
echo count
echo words[0] + " " + words[499]
`)
	if st != vm.StatusOK {
		t.Fatalf("status = %v, err = %v, stderr = %q", st, err, errOut)
	}
	if out != "500\nn499 n0\n" {
		t.Errorf("output = %q", out)
	}
}

// ---------------------------------------------------------------------------
// Callbacks from natives
// ---------------------------------------------------------------------------

func TestCallbackArity(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"map one param", "echo [1, 2, 3].map(function(x) { return x * 2 })", "[2, 4, 6]"},
		{"map with index", "echo [5, 5].map(function(x, i) { return x + i })", "[5, 6]"},
		{"map variadic", "echo [1, 2].map(function(...a) { return a.length })", "[2, 2]"},
		{"filter one param", "echo [1, 2, 3, 4].filter(function(x) { return x > 2 })", "[3, 4]"},
		{"each one param", "var n = 0\n[1, 2, 3].each(function(x) { n += x })\necho n", "6"},
		{"each no params", "var n = 0\n[1, 2, 3].each(function() { n++ })\necho n", "3"},
		{"some", "echo [1, 2].some(function(x) { return x == 2 })", "true"},
		{"every", "echo [1, 2].every(function(x) { return x == 2 })", "false"},
		{"reduce two params", "echo [1, 2, 3].reduce(function(a, b) { return a + b }, 0)", "6"},
		{"reduce with index", "echo [10, 20].reduce(function(acc, x, i) { return acc + x * i }, 0)", "20"},
		{"sort comparator", "echo [3, 1, 2].sort(function(a, b) { return b - a })", "[3, 2, 1]"},
		{"dict each value", "var d = {\"a\": 1, \"b\": 2}\nvar t = 0\nd.each(function(v) { t += v })\necho t", "3"},
		{"dict each key", "var d = {\"a\": 1, \"b\": 2}\nvar s = \"\"\nd.each(function(v, k) { s += k + v })\necho s", "a1b2"},
		{"bound method", "class D {\n\ttwice(x) { return x * 2 }\n}\nvar d = D()\necho [1, 2].map(d.twice)", "[2, 4]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectOutput(t, tt.src, tt.want+"\n")
		})
	}
}

func TestExceptionsAcrossNatives(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"sort comparator throws", `
try {
	[3, 1, 2].sort(function(a, b) { throw Exception("cmp") })
} catch (e) {
	echo "caught " + e.message
}
echo "after"
`, "caught cmp\nafter\n"},
		{"map callback throws typed", `
class Stop extends Exception {}
function run() {
	try {
		return [1, 2, 3].map(function(x) {
			if (x == 2) throw Stop("at " + x)
			return x
		})
	} catch (Stop e) {
		return e.message
	}
}
echo run()
`, "at 2\n"},
		{"runtime error in callback", `
try {
	[1].each(function(x) { return x + [] })
} catch (TypeError e) {
	echo "type error"
}
`, "type error\n"},
		{"unwind across frames", `
function a() { throw Exception("deep") }
function b() { a() }
function c() {
	try {
		b()
	} catch (e) {
		return "c caught " + e.message
	}
}
echo c()
`, "c caught deep\n"},
		{"inner try without match", `
class AError extends Exception {}
function inner() {
	try {
		throw Exception("plain")
	} catch (AError e) {
		return "wrong"
	}
}
function outer() {
	try {
		return inner()
	} catch (e) {
		return "outer " + e.message
	}
}
echo outer()
`, "outer plain\n"},
		{"nested native callbacks", `
try {
	[[1], [2]].map(function(row) {
		return row.map(function(x) {
			if (x == 2) throw Exception("inner " + x)
			return x
		})
	})
} catch (e) {
	echo e.message
}
`, "inner 2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectOutput(t, tt.src, tt.want)
		})
	}
}

func TestAnonymousFunctionName(t *testing.T) {
	st, _, errOut, _ := run(t, "var f = function(x) { return x }\nf(1, 2)\n")
	if st != vm.StatusFailRuntime {
		t.Fatalf("status = %v, want %v", st, vm.StatusFailRuntime)
	}
	if !strings.Contains(errOut, "function '<anonymous>' expected 1 arguments but got 2") {
		t.Errorf("stderr = %q", errOut)
	}

	_, _, errOut, _ = run(t, "var g = function() { throw Exception(\"x\") }\ng()\n")
	if !strings.Contains(errOut, "<anonymous>()") {
		t.Errorf("trace does not name the anonymous function: %q", errOut)
	}
}

func TestGCStressCallbacksAndExceptions(t *testing.T) {
	st, out, errOut, err := runWith(t, vm.Config{GCStart: 64, GCGrowth: 1.1}, `
var caught = 0
var total = 0
for (var i = 0; i < 200; i++) {
	var words = ["w" + i, "x" + i, "y" + i]
	var upper = words.map(function(w) { return w.upper() + "!" })
	total += upper.filter(function(w) { return w.length > 2 }).length
	try {
		words.sort(function(a, b) {
			if (i % 3 == 0) throw Exception("cmp " + a + b)
			return a < b ? -1 : 1
		})
	} catch (e) {
		if (e.message.starts_with("cmp")) caught++
	}
}
echo total
echo caught
`)
	if st != vm.StatusOK {
		t.Fatalf("status = %v, err = %v, stderr = %q", st, err, errOut)
	}
	if out != "600\n67\n" {
		t.Errorf("output = %q", out)
	}
}
