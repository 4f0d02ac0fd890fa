// Neon CLI - runs scripts and blobs, or starts an interactive REPL
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	"golang.org/x/term"

	"github.com/chazu/neon/compiler"
	"github.com/chazu/neon/manifest"
	"github.com/chazu/neon/vm"
)

var log = commonlog.GetLogger("neon.cli")

type options struct {
	eval      string
	compileTo string
	blob      bool
	gcKiB     int
	dump      bool
	strict    bool
	warnings  bool
	fullStack bool
	verbose   int
	config    string
	deps      bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var opts options
	fs := flag.NewFlagSet("neon", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.eval, "e", "", "Evaluate `code` and exit")
	fs.StringVar(&opts.compileTo, "c", "", "Compile the script to a blob at `dest` instead of running it")
	fs.BoolVar(&opts.blob, "b", false, "Treat the input file as a compiled blob")
	fs.IntVar(&opts.gcKiB, "g", 0, "Collect garbage after `N` KiB of allocation")
	fs.BoolVar(&opts.dump, "d", false, "Dump instructions before running")
	fs.BoolVar(&opts.strict, "s", false, "Strict mode: assigning an undeclared global is an error")
	fs.BoolVar(&opts.warnings, "w", false, "Print compiler warnings")
	fs.BoolVar(&opts.fullStack, "fullstack", false, "Show full stack traces for uncaught exceptions")
	fs.IntVar(&opts.verbose, "v", 0, "Log verbosity (1=info, 2=debug)")
	fs.StringVar(&opts.config, "config", "", "Load configuration from `path` instead of searching for neon.toml")
	fs.BoolVar(&opts.deps, "deps", false, "Fetch the dependencies listed in the manifest and exit")
	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: neon [options] [file | -e code] [args...]\n\n")
		fmt.Fprintf(stderr, "Runs a neon script. With no file, starts an interactive REPL.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  neon script.nn              # Run a script\n")
		fmt.Fprintf(stderr, "  neon -e 'echo 1 + 2'        # Evaluate a snippet\n")
		fmt.Fprintf(stderr, "  neon -c out.nb script.nn    # Compile to a blob\n")
		fmt.Fprintf(stderr, "  neon -b out.nb              # Run a blob\n")
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 1
	}

	commonlog.Configure(opts.verbose, nil)

	rest := fs.Args()
	var file string
	if opts.eval == "" && len(rest) > 0 {
		file, rest = rest[0], rest[1:]
	}

	m, err := loadManifest(opts.config, file)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if opts.deps {
		return resolveDeps(m, stdout, stderr)
	}
	if file == "" && opts.eval == "" && m != nil && m.EntryPath() != "" && !opts.blob {
		file = m.EntryPath()
	}

	cfg := vm.DefaultConfig()
	cfg.Stdin, cfg.Stdout, cfg.Stderr = stdin, stdout, stderr
	if m != nil {
		m.Apply(&cfg)
	}
	if opts.gcKiB > 0 {
		cfg.GCStart = opts.gcKiB * 1024
	}
	cfg.DumpInstructions = cfg.DumpInstructions || opts.dump
	cfg.Strict = cfg.Strict || opts.strict
	cfg.Warnings = cfg.Warnings || opts.warnings
	cfg.ShowFullStack = cfg.ShowFullStack || opts.fullStack
	cfg.Args = append([]string{file}, rest...)

	s := vm.New(cfg)
	defer s.Close()
	s.UseCompiler(compiler.Compile)
	log.Debugf("session %s", s.ID())

	switch {
	case opts.eval != "":
		st, err := s.Interpret(opts.eval, "")
		return exitCode(st, err, stderr)
	case file == "":
		if opts.blob || opts.compileTo != "" {
			fmt.Fprintf(stderr, "Error: no input file\n")
			return 1
		}
		return repl(s, stdin, stdout, stderr)
	case opts.compileTo != "":
		return compileFile(s, file, opts.compileTo, stderr)
	case opts.blob:
		return runBlob(s, file, stderr)
	default:
		st, err := s.RunFile(file)
		return exitCode(st, err, stderr)
	}
}

// loadManifest honours -config, otherwise searches upward from the script
// directory (or the working directory).
func loadManifest(path, file string) (*manifest.Manifest, error) {
	if path != "" {
		return manifest.LoadFile(path)
	}
	start := "."
	if file != "" {
		start = filepath.Dir(file)
	}
	m, err := manifest.FindAndLoad(start)
	if err != nil {
		return nil, err
	}
	if m != nil {
		log.Infof("using %s", m.File)
	}
	return m, nil
}

func resolveDeps(m *manifest.Manifest, stdout, stderr io.Writer) int {
	if m == nil {
		fmt.Fprintf(stderr, "Error: no neon.toml or neon.yaml found\n")
		return 1
	}
	deps, err := manifest.NewResolver(m).Resolve(context.Background())
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	for _, d := range deps {
		fmt.Fprintf(stdout, "%s -> %s (%s)\n", d.Name, d.LocalPath, d.Module)
	}
	return 0
}

func compileFile(s *vm.State, path, dest string, stderr io.Writer) int {
	src, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	mod := s.NewModule(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), path)
	fn, err := compiler.Compile(s, string(src), path, mod)
	if err != nil {
		printCompileError(stderr, err)
		return 1
	}
	out, err := os.Create(dest)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if err := s.WriteBlob(out, fn); err != nil {
		out.Close()
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if err := out.Close(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	log.Infof("wrote %s", dest)
	return 0
}

func runBlob(s *vm.State, path string, stderr io.Writer) int {
	f, err := os.Open(path)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	fn, err := s.ReadBlob(f)
	f.Close()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	st, err := s.RunFunction(fn)
	return exitCode(st, err, stderr)
}

// exitCode maps a run result to the process exit status. Uncaught
// exceptions are reported by the VM itself; compile errors go to w.
func exitCode(st vm.Status, err error, w io.Writer) int {
	if st == vm.StatusOK {
		return 0
	}
	if st == vm.StatusFailCompile && err != nil {
		printCompileError(w, err)
	}
	return 1
}

func printCompileError(w io.Writer, err error) {
	for _, line := range strings.Split(err.Error(), "\n") {
		fmt.Fprintf(w, "%s\n", line)
	}
}

// repl reads statements from in until EOF. Prompts are only shown when in
// is a terminal. Input continues over several lines while brackets are
// open.
func repl(s *vm.State, in io.Reader, stdout, stderr io.Writer) int {
	interactive := false
	if f, ok := in.(*os.File); ok {
		interactive = term.IsTerminal(int(f.Fd()))
	}

	prompt := func(cont bool) {
		if !interactive {
			return
		}
		if cont {
			fmt.Fprint(stdout, "... ")
		} else {
			fmt.Fprint(stdout, "> ")
		}
	}

	scanner := bufio.NewScanner(in)
	var buf strings.Builder
	prompt(false)
	for scanner.Scan() {
		buf.WriteString(scanner.Text())
		buf.WriteByte('\n')
		if openBrackets(buf.String()) > 0 {
			prompt(true)
			continue
		}
		src := buf.String()
		buf.Reset()
		if strings.TrimSpace(src) != "" {
			st, err := s.Interpret(src, "")
			exitCode(st, err, stderr)
		}
		prompt(false)
	}
	if interactive {
		fmt.Fprintln(stdout)
	}
	return 0
}

// openBrackets counts brackets left unclosed in src.
func openBrackets(src string) int {
	depth := 0
	for _, tok := range compiler.Tokenize(src) {
		switch tok.Type {
		case compiler.TokenLParen, compiler.TokenLBrace, compiler.TokenLBracket:
			depth++
		case compiler.TokenRParen, compiler.TokenRBrace, compiler.TokenRBracket:
			depth--
		case compiler.TokenError:
			if strings.Contains(tok.Literal, "unterminated") {
				return depth + 1
			}
		}
	}
	return depth
}
