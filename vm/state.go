package vm

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

const (
	defaultGCStart   = 1024 * 1024
	defaultGCGrowth  = 1.25
	initialFrames    = 32
	initialStack     = 32
	defaultMaxFrames = 1 << 14
)

// Config controls a State. The zero value is completed by DefaultConfig
// when passed to New.
type Config struct {
	GCStart          int     // bytes allocated before the first collection
	GCGrowth         float64 // next threshold = live bytes * GCGrowth
	Strict           bool    // assigning an undeclared global is an error
	Warnings         bool
	ShowFullStack    bool
	DumpInstructions bool
	MaxFrames        int
	ModulePaths      []string
	ModuleAliases    map[string]string // import name -> script path
	Args             []string

	Stdout io.Writer
	Stderr io.Writer
	Stdin  io.Reader
}

// DefaultConfig returns the stock configuration writing to the process
// standard streams.
func DefaultConfig() Config {
	return Config{
		GCStart:   defaultGCStart,
		GCGrowth:  defaultGCGrowth,
		MaxFrames: defaultMaxFrames,
		Stdout:    os.Stdout,
		Stderr:    os.Stderr,
		Stdin:     os.Stdin,
	}
}

func (c *Config) fill() {
	d := DefaultConfig()
	if c.GCStart <= 0 {
		c.GCStart = d.GCStart
	}
	if c.GCGrowth <= 1 {
		c.GCGrowth = d.GCGrowth
	}
	if c.MaxFrames <= 0 {
		c.MaxFrames = d.MaxFrames
	}
	if c.Stdout == nil {
		c.Stdout = d.Stdout
	}
	if c.Stderr == nil {
		c.Stderr = d.Stderr
	}
	if c.Stdin == nil {
		c.Stdin = d.Stdin
	}
}

// ---------------------------------------------------------------------------
// Status and errors
// ---------------------------------------------------------------------------

// Status is the outcome of running code.
type Status int

const (
	StatusOK Status = iota
	StatusFailCompile
	StatusFailRuntime
)

func (st Status) String() string {
	switch st {
	case StatusOK:
		return "ok"
	case StatusFailCompile:
		return "compile error"
	case StatusFailRuntime:
		return "runtime error"
	}
	return fmt.Sprintf("Status(%d)", int(st))
}

// ErrNoCompiler is returned when source is run before UseCompiler.
var ErrNoCompiler = errors.New("vm: no compiler configured")

// RuntimeError describes an exception that escaped every handler.
type RuntimeError struct {
	Class   string
	Message string
	Trace   []string
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("unhandled %s: %s", e.Class, e.Message)
}

// ---------------------------------------------------------------------------
// State
// ---------------------------------------------------------------------------

// CompileFunc turns source text into a top-level function of mod.
type CompileFunc func(s *State, source, filename string, mod *Module) (*FuncScript, error)

// RootSet is implemented by host components holding objects the collector
// cannot otherwise see, such as a compiler in the middle of a parse.
type RootSet interface {
	MarkRoots(s *State)
}

// State is one independent VM instance. It owns the value stack, the frame
// array, the object registry and every global table. A State must not be
// used from more than one goroutine.
type State struct {
	config Config
	id     string

	stack    []Value
	stackTop int

	frames     []CallFrame
	frameCount int
	rootProt   int // protect count used while no frame is active

	openUpvalues *Upvalue

	globals HashTable
	modules HashTable
	strings HashTable

	// GC bookkeeping.
	objects        Object
	objectCount    int
	bytesAllocated int
	nextGC         int
	currentMark    bool
	gray           []Object
	rootSets       []RootSet
	pinned         []Object
	collecting     bool
	gcCycles       int

	// Execution.
	vmDepth    int
	baseFrame  int // frames below this index belong to an outer runVM
	pendingExc Value
	topModule  *Module
	compile    CompileFunc
	natives    map[string]*ModuleDef

	classes builtinClasses
}

// New creates a State with the runtime globals installed.
func New(cfg Config) *State {
	cfg.fill()
	s := &State{
		config:  cfg,
		id:      uuid.New().String(),
		stack:   make([]Value, initialStack),
		frames:  make([]CallFrame, initialFrames),
		nextGC:  cfg.GCStart,
		natives: make(map[string]*ModuleDef),
	}
	s.bootstrap()
	return s
}

// ID returns the session identifier of this State.
func (s *State) ID() string { return s.id }

// Config returns the active configuration.
func (s *State) Config() Config { return s.config }

// Stdout returns the writer used by echo and print.
func (s *State) Stdout() io.Writer { return s.config.Stdout }

// Stderr returns the writer for diagnostics and uncaught exceptions.
func (s *State) Stderr() io.Writer { return s.config.Stderr }

// UseCompiler installs the source compiler backend.
func (s *State) UseCompiler(fn CompileFunc) { s.compile = fn }

// AddRootSet registers extra GC roots.
func (s *State) AddRootSet(r RootSet) { s.rootSets = append(s.rootSets, r) }

// RemoveRootSet unregisters r.
func (s *State) RemoveRootSet(r RootSet) {
	for i := len(s.rootSets) - 1; i >= 0; i-- {
		if s.rootSets[i] == r {
			s.rootSets = append(s.rootSets[:i], s.rootSets[i+1:]...)
			return
		}
	}
}

// Pin marks o stale: it is never collected and its references stay alive.
func (s *State) Pin(o Object) {
	h := o.header()
	if !h.stale {
		h.stale = true
		s.pinned = append(s.pinned, o)
	}
}

// ---------------------------------------------------------------------------
// Stack
// ---------------------------------------------------------------------------

func (s *State) ensureStack(n int) {
	need := s.stackTop + n
	if need <= len(s.stack) {
		return
	}
	size := len(s.stack) * 2
	for size < need {
		size *= 2
	}
	grown := make([]Value, size)
	copy(grown, s.stack[:s.stackTop])
	s.stack = grown
}

func (s *State) push(v Value) {
	if s.stackTop == len(s.stack) {
		s.ensureStack(1)
	}
	s.stack[s.stackTop] = v
	s.stackTop++
}

func (s *State) pop() Value {
	s.stackTop--
	v := s.stack[s.stackTop]
	s.stack[s.stackTop] = Value{}
	return v
}

func (s *State) popN(n int) {
	for i := 0; i < n; i++ {
		s.stackTop--
		s.stack[s.stackTop] = Value{}
	}
}

func (s *State) peek(distance int) Value {
	return s.stack[s.stackTop-1-distance]
}

// truncate drops every slot at or above top.
func (s *State) truncate(top int) {
	for i := top; i < s.stackTop; i++ {
		s.stack[i] = Value{}
	}
	s.stackTop = top
}

// pushRoot keeps v reachable across an allocation. Pair with popRoots.
func (s *State) pushRoot(v Value) { s.push(v) }

func (s *State) popRoots(n int) { s.popN(n) }

// StackDepth returns the number of live stack slots.
func (s *State) StackDepth() int { return s.stackTop }

// FrameDepth returns the number of active call frames.
func (s *State) FrameDepth() int { return s.frameCount }

// reset discards every frame and stack slot.
func (s *State) reset() {
	s.truncate(0)
	s.frameCount = 0
	s.openUpvalues = nil
	s.rootProt = 0
}

// ---------------------------------------------------------------------------
// Globals
// ---------------------------------------------------------------------------

// DefineGlobal binds name in the VM-wide global table.
func (s *State) DefineGlobal(name string, v Value) {
	s.pushRoot(v)
	key := s.CopyString(name)
	s.globals.Set(FromObject(key), v)
	s.popRoots(1)
}

// Global looks up a VM-wide global.
func (s *State) Global(name string) (Value, bool) {
	p, ok := s.globals.GetByStr(name)
	return p.Value, ok
}

// Lookup resolves name the way script code does: the top-level module
// first, then the VM-wide globals.
func (s *State) Lookup(name string) (Value, bool) {
	if s.topModule != nil {
		if p, ok := s.topModule.Defs.GetByStr(name); ok {
			return p.Value, true
		}
	}
	return s.Global(name)
}
