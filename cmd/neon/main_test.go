package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCLI(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, strings.NewReader(stdin), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestEval(t *testing.T) {
	code, out, errOut := runCLI(t, "", "-e", "echo 6 * 7")
	if code != 0 {
		t.Fatalf("exit = %d, stderr = %q", code, errOut)
	}
	if out != "42\n" {
		t.Errorf("stdout = %q", out)
	}
}

func TestEvalCompileError(t *testing.T) {
	code, _, errOut := runCLI(t, "", "-e", "const a = 1\na = 2")
	if code != 1 {
		t.Fatalf("exit = %d, want 1", code)
	}
	if !strings.Contains(errOut, "cannot assign to constant") {
		t.Errorf("stderr = %q", errOut)
	}
}

func TestEvalUncaught(t *testing.T) {
	code, _, errOut := runCLI(t, "", "-e", `throw Exception("bad")`)
	if code != 1 {
		t.Fatalf("exit = %d, want 1", code)
	}
	if !strings.Contains(errOut, "unhandled Exception: bad") {
		t.Errorf("stderr = %q", errOut)
	}
}

func TestRunFileWithArgs(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "args.nn")
	if err := os.WriteFile(script, []byte("import os\necho os.args.length\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	code, out, errOut := runCLI(t, "", script, "a", "b")
	if code != 0 {
		t.Fatalf("exit = %d, stderr = %q", code, errOut)
	}
	if out != "3\n" {
		t.Errorf("stdout = %q", out)
	}
}

func TestCompileAndRunBlob(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "hello.nn")
	blob := filepath.Join(dir, "hello.nb")
	if err := os.WriteFile(script, []byte("var who = \"blob\"\necho \"hello ${who}\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if code, _, errOut := runCLI(t, "", "-c", blob, script); code != 0 {
		t.Fatalf("compile exit = %d, stderr = %q", code, errOut)
	}
	if _, err := os.Stat(blob); err != nil {
		t.Fatalf("blob not written: %v", err)
	}

	code, out, errOut := runCLI(t, "", "-b", blob)
	if code != 0 {
		t.Fatalf("run exit = %d, stderr = %q", code, errOut)
	}
	if out != "hello blob\n" {
		t.Errorf("stdout = %q", out)
	}
}

func TestManifestEntry(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "neon.toml"), []byte("[project]\nname = \"app\"\nentry = \"main.nn\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "main.nn"), []byte("echo \"from entry\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	code, out, errOut := runCLI(t, "", "-config", filepath.Join(dir, "neon.toml"))
	if code != 0 {
		t.Fatalf("exit = %d, stderr = %q", code, errOut)
	}
	if out != "from entry\n" {
		t.Errorf("stdout = %q", out)
	}
}

func TestREPL(t *testing.T) {
	input := "var x = 2\nfunction f(n) {\n  return n * x\n}\necho f(21)\n"
	code, out, errOut := runCLI(t, input)
	if code != 0 {
		t.Fatalf("exit = %d, stderr = %q", code, errOut)
	}
	if out != "42\n" {
		t.Errorf("stdout = %q", out)
	}
}

func TestOpenBrackets(t *testing.T) {
	tests := []struct {
		src  string
		want int
	}{
		{"echo 1", 0},
		{"function f() {", 1},
		{"f([1, (2", 3},
		{"}", -1},
		{"var s = \"abc", 1},
	}
	for _, tt := range tests {
		if got := openBrackets(tt.src); got != tt.want {
			t.Errorf("openBrackets(%q) = %d, want %d", tt.src, got, tt.want)
		}
	}
}

func TestBadFlag(t *testing.T) {
	code, _, errOut := runCLI(t, "", "-nosuchflag")
	if code != 1 {
		t.Errorf("exit = %d, want 1", code)
	}
	if !strings.Contains(errOut, "Usage") {
		t.Errorf("stderr = %q", errOut)
	}
}
