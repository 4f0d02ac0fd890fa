package compiler

import (
	"errors"
	"fmt"

	"github.com/tliron/commonlog"

	"github.com/chazu/neon/vm"
)

var log = commonlog.GetLogger("neon.compiler")

// Limits imposed by the instruction encoding.
const (
	maxLocals    = 1<<16 - 1
	maxUpvalues  = 1<<16 - 1
	maxConstants = 1<<16 - 1
	maxJump      = 1<<16 - 1
	maxArgs      = 255
	maxErrors    = 32
)

// ---------------------------------------------------------------------------
// Compiler state
// ---------------------------------------------------------------------------

type local struct {
	name     string
	depth    int // -1 while the initializer is being compiled
	captured bool
	isConst  bool
}

type upvalueRef struct {
	index   int
	isLocal bool
}

// loopState tracks the innermost breakable statement. Switches are
// breakable but continue skips them.
type loopState struct {
	enclosing  *loopState
	isSwitch   bool
	scopeDepth int
	tryDepth   int
	continueAt int   // -1: continue jumps forward, see continues
	breaks     []int // operand positions patched when the loop ends
	continues  []int
}

// funcState is one function being compiled. They nest for function
// literals and methods.
type funcState struct {
	enclosing  *funcState
	fn         *vm.FuncScript
	kind       vm.FuncKind
	locals     []local
	upvalues   []upvalueRef
	scopeDepth int
	tryDepth   int
	loop       *loopState
}

type classState struct {
	enclosing     *classState
	name          string
	hasSuperclass bool
}

// Parser is a single-pass compiler from neon source to vm bytecode.
type Parser struct {
	s      *vm.State
	lexer  *Lexer
	file   string
	module *vm.Module

	prevToken Token
	curToken  Token
	peekToken Token

	fs        *funcState
	cls       *classState
	constants map[string]bool // top-level const names
	afterThis bool            // the infix operator being compiled follows 'this'

	errs      []error
	panicMode bool
}

// Compile compiles source into the top-level function of mod. It matches
// vm.CompileFunc and is installed with State.UseCompiler.
func Compile(s *vm.State, source, filename string, mod *vm.Module) (*vm.FuncScript, error) {
	p := &Parser{
		s:         s,
		lexer:     NewLexer(source),
		file:      filename,
		module:    mod,
		constants: make(map[string]bool),
	}
	s.AddRootSet(p)
	defer s.RemoveRootSet(p)

	p.nextToken()
	p.nextToken()
	p.beginFunction(vm.FuncKindScript, "")
	for !p.curTokenIs(TokenEOF) {
		p.declaration()
		if len(p.errs) >= maxErrors {
			break
		}
	}
	fn, _ := p.endFunction()
	if len(p.errs) > 0 {
		log.Debugf("%s: %d compile errors", filename, len(p.errs))
		return nil, errors.Join(p.errs...)
	}
	log.Debugf("compiled %s: %d instructions", filename, fn.Blob.Len())
	return fn, nil
}

// MarkRoots keeps the functions under construction alive across
// collections triggered by allocations during the parse.
func (p *Parser) MarkRoots(s *vm.State) {
	if p.module != nil {
		s.MarkObject(p.module)
	}
	for fs := p.fs; fs != nil; fs = fs.enclosing {
		s.MarkObject(fs.fn)
	}
}

// ---------------------------------------------------------------------------
// Tokens
// ---------------------------------------------------------------------------

func (p *Parser) nextToken() {
	p.prevToken = p.curToken
	p.curToken = p.peekToken
	for {
		p.peekToken = p.lexer.NextToken()
		if p.peekToken.Type != TokenError {
			break
		}
		p.errorAt(p.peekToken, p.peekToken.Literal)
	}
}

func (p *Parser) curTokenIs(t TokenType) bool { return p.curToken.Type == t }

func (p *Parser) peekTokenIs(t TokenType) bool { return p.peekToken.Type == t }

// match consumes the current token when it has type t.
func (p *Parser) match(t TokenType) bool {
	if !p.curTokenIs(t) {
		return false
	}
	p.nextToken()
	return true
}

// expect consumes a token of type t or records msg.
func (p *Parser) expect(t TokenType, msg string) bool {
	if p.curTokenIs(t) {
		p.nextToken()
		return true
	}
	p.errorAtCurrent(msg)
	return false
}

// endStatement accepts ';', a line break, '}' or EOF as the end of a
// simple statement.
func (p *Parser) endStatement() {
	if p.match(TokenSemicolon) {
		return
	}
	if p.curToken.NewlineBefore || p.curTokenIs(TokenRBrace) || p.curTokenIs(TokenEOF) {
		return
	}
	p.errorAtCurrent(fmt.Sprintf("expected ';' or newline after statement, got '%s'", p.curToken.Literal))
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

func (p *Parser) errorAt(tok Token, msg string) {
	if p.panicMode {
		return
	}
	p.panicMode = true
	p.errs = append(p.errs, &Error{File: p.file, Line: tok.Line, Msg: msg})
}

func (p *Parser) errorf(format string, args ...interface{}) {
	p.errorAt(p.prevToken, fmt.Sprintf(format, args...))
}

func (p *Parser) errorAtCurrent(msg string) {
	if p.curTokenIs(TokenEOF) {
		msg += " at end of input"
	}
	p.errorAt(p.curToken, msg)
}

func (p *Parser) warnf(format string, args ...interface{}) {
	if p.s.Config().Warnings {
		log.Warningf("%s:%d: %s", p.file, p.prevToken.Line, fmt.Sprintf(format, args...))
	}
}

// synchronize skips to a likely statement boundary after an error.
func (p *Parser) synchronize() {
	p.panicMode = false
	for !p.curTokenIs(TokenEOF) {
		if p.prevToken.Type == TokenSemicolon || p.curToken.NewlineBefore {
			return
		}
		switch p.curToken.Type {
		case TokenClass, TokenFunction, TokenVar, TokenConst, TokenFor, TokenForeach,
			TokenIf, TokenWhile, TokenDo, TokenEcho, TokenReturn, TokenTry, TokenThrow,
			TokenSwitch, TokenImport, TokenAssert:
			return
		}
		p.nextToken()
	}
}

// ---------------------------------------------------------------------------
// Emission
// ---------------------------------------------------------------------------

func (p *Parser) blob() *vm.Blob { return &p.fs.fn.Blob }

func (p *Parser) line() int { return p.prevToken.Line }

func (p *Parser) emitOp(op vm.Opcode) int { return p.blob().EmitOp(op, p.line()) }

func (p *Parser) emitOps(ops ...vm.Opcode) {
	for _, op := range ops {
		p.emitOp(op)
	}
}

func (p *Parser) emitByte(b int) { p.blob().EmitByte(byte(b), p.line()) }

func (p *Parser) emitShort(v int) int { return p.blob().EmitShort(v, p.line()) }

func (p *Parser) emitOpShort(op vm.Opcode, v int) {
	p.emitOp(op)
	p.emitShort(v)
}

// makeConstant adds v to the constant pool of the current function.
func (p *Parser) makeConstant(v vm.Value) int {
	idx := p.blob().AddConstant(v)
	if idx > maxConstants {
		p.errorf("too many constants in one function")
		return 0
	}
	return idx
}

// identifierConstant interns name and adds it as a constant.
func (p *Parser) identifierConstant(name string) int {
	return p.makeConstant(p.s.String(name))
}

func (p *Parser) emitConstant(v vm.Value) {
	p.emitOpShort(vm.OpPushConstant, p.makeConstant(v))
}

// emitJump emits a forward jump and returns the operand position.
func (p *Parser) emitJump(op vm.Opcode) int {
	p.emitOp(op)
	return p.emitShort(0xffff)
}

// patchJump points the jump whose operand is at at to the current end.
func (p *Parser) patchJump(at int) {
	off := p.blob().Len() - (at + 2)
	if off > maxJump {
		p.errorf("too much code to jump over")
	}
	p.blob().PatchShort(at, off)
}

// emitLoop jumps backwards to start.
func (p *Parser) emitLoop(start int) {
	p.emitOp(vm.OpLoop)
	off := p.blob().Len() + 2 - start
	if off > maxJump {
		p.errorf("loop body too large")
	}
	p.emitShort(off)
}

func (p *Parser) emitReturn() {
	if p.fs.kind == vm.FuncKindInitializer {
		p.emitOpShort(vm.OpLocalGet, 0)
	} else {
		p.emitOp(vm.OpPushNull)
	}
	p.emitOp(vm.OpReturn)
}

// ---------------------------------------------------------------------------
// Functions and scopes
// ---------------------------------------------------------------------------

func (p *Parser) beginFunction(kind vm.FuncKind, name string) {
	fs := &funcState{enclosing: p.fs, kind: kind}
	fs.fn = p.s.NewFuncScript(p.module, kind)
	p.fs = fs
	if name != "" {
		fs.fn.Name = p.s.CopyString(name)
	}
	// Slot 0 holds the callee, or the receiver of a method.
	slot0 := ""
	if kind == vm.FuncKindMethod || kind == vm.FuncKindInitializer || kind == vm.FuncKindStatic {
		slot0 = "this"
	}
	fs.locals = append(fs.locals, local{name: slot0})
}

// endFunction finishes the current function and returns it with the
// upvalue descriptors its enclosing MakeClosure must emit.
func (p *Parser) endFunction() (*vm.FuncScript, []upvalueRef) {
	p.emitReturn()
	fs := p.fs
	fs.fn.UpvalueCount = len(fs.upvalues)
	p.fs = fs.enclosing
	return fs.fn, fs.upvalues
}

// emitClosure makes fn a constant of the current function and emits the
// MakeClosure that instantiates it.
func (p *Parser) emitClosure(fn *vm.FuncScript, upvalues []upvalueRef) {
	p.emitOpShort(vm.OpMakeClosure, p.makeConstant(vm.FromObject(fn)))
	for _, uv := range upvalues {
		if uv.isLocal {
			p.emitByte(1)
		} else {
			p.emitByte(0)
		}
		p.emitShort(uv.index)
	}
}

func (p *Parser) beginScope() { p.fs.scopeDepth++ }

func (p *Parser) endScope() {
	fs := p.fs
	fs.scopeDepth--
	n := len(fs.locals)
	for n > 0 && fs.locals[n-1].depth > fs.scopeDepth {
		n--
	}
	p.discardLocals(n)
	fs.locals = fs.locals[:n]
}

// discardLocals emits the pops (and upvalue closes) for every local above
// index keep, without forgetting them. break and continue use it too.
func (p *Parser) discardLocals(keep int) {
	locals := p.fs.locals
	pending := 0
	flush := func() {
		switch {
		case pending == 1:
			p.emitOp(vm.OpPop)
		case pending > 1:
			p.emitOpShort(vm.OpPopN, pending)
		}
		pending = 0
	}
	for i := len(locals) - 1; i >= keep; i-- {
		if locals[i].captured {
			flush()
			p.emitOp(vm.OpUpvalueClose)
			continue
		}
		pending++
	}
	flush()
}

func (p *Parser) addLocal(name string) int {
	fs := p.fs
	if len(fs.locals) >= maxLocals {
		p.errorf("too many local variables in function")
		return 0
	}
	fs.locals = append(fs.locals, local{name: name, depth: -1})
	return len(fs.locals) - 1
}

// declareLocal adds a named local in the current scope, rejecting a
// duplicate in the same scope.
func (p *Parser) declareLocal(name string) int {
	fs := p.fs
	for i := len(fs.locals) - 1; i >= 0; i-- {
		l := fs.locals[i]
		if l.depth != -1 && l.depth < fs.scopeDepth {
			break
		}
		if l.name == name {
			p.errorf("variable '%s' already declared in this scope", name)
		}
	}
	return p.addLocal(name)
}

func (p *Parser) markInitialized() {
	fs := p.fs
	if fs.scopeDepth == 0 || len(fs.locals) == 0 {
		return
	}
	fs.locals[len(fs.locals)-1].depth = fs.scopeDepth
}

// hiddenLocal declares a compiler-owned local for the value on top of the
// stack. Its name cannot collide with identifiers.
func (p *Parser) hiddenLocal(name string) int {
	slot := p.addLocal(" " + name)
	p.fs.locals[slot].depth = p.fs.scopeDepth
	return slot
}

func resolveLocal(p *Parser, fs *funcState, name string) int {
	for i := len(fs.locals) - 1; i >= 0; i-- {
		if fs.locals[i].name == name {
			if fs.locals[i].depth == -1 {
				p.errorf("cannot read local variable '%s' in its own initializer", name)
			}
			return i
		}
	}
	return -1
}

func addUpvalue(p *Parser, fs *funcState, index int, isLocal bool) int {
	for i, uv := range fs.upvalues {
		if uv.index == index && uv.isLocal == isLocal {
			return i
		}
	}
	if len(fs.upvalues) >= maxUpvalues {
		p.errorf("too many closure variables in function")
		return 0
	}
	fs.upvalues = append(fs.upvalues, upvalueRef{index: index, isLocal: isLocal})
	return len(fs.upvalues) - 1
}

func resolveUpvalue(p *Parser, fs *funcState, name string) int {
	if fs.enclosing == nil {
		return -1
	}
	if l := resolveLocal(p, fs.enclosing, name); l != -1 {
		fs.enclosing.locals[l].captured = true
		return addUpvalue(p, fs, l, true)
	}
	if u := resolveUpvalue(p, fs.enclosing, name); u != -1 {
		return addUpvalue(p, fs, u, false)
	}
	return -1
}

// isConstName reports whether name refers to a const binding.
func (p *Parser) isConstName(name string) bool {
	for fs := p.fs; fs != nil; fs = fs.enclosing {
		for i := len(fs.locals) - 1; i >= 0; i-- {
			if fs.locals[i].name == name {
				return fs.locals[i].isConst
			}
		}
	}
	return p.constants[name]
}

// ---------------------------------------------------------------------------
// Variable declaration
// ---------------------------------------------------------------------------

// parseVariable consumes a name. For a local it declares the slot and
// returns -1; for a global it returns the name constant.
func (p *Parser) parseVariable(msg string) (string, int) {
	if !p.expect(TokenIdentifier, msg) {
		return "", -1
	}
	name := p.prevToken.Literal
	if p.fs.scopeDepth > 0 {
		p.declareLocal(name)
		return name, -1
	}
	return name, p.identifierConstant(name)
}

// defineVariable binds the value on top of the stack to the variable
// returned by parseVariable.
func (p *Parser) defineVariable(global int) {
	if p.fs.scopeDepth > 0 {
		p.markInitialized()
		return
	}
	p.emitOpShort(vm.OpGlobalDefine, global)
}
